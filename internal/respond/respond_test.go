package respond

import (
	"strings"
	"testing"

	"github.com/salemchat/salem/internal/business"
	"github.com/salemchat/salem/internal/history"
	"github.com/salemchat/salem/internal/language"
)

func constructionRequest(text string) Request {
	return Request{
		Business: business.Config{
			BusinessID:   "construct_shop",
			BusinessType: "construction",
			SystemPrompt: "Ты консультант магазина стройматериалов.",
		},
		Platform: "telegram",
		UserID:   "42",
		Text:     text,
		Language: language.Russian,
	}
}

func TestCatalogAugmentationAddsStockLines(t *testing.T) {
	t.Parallel()
	augmentation := catalogAugmentation(constructionRequest("сколько стоит кирпич?"))
	if augmentation == "" {
		t.Fatalf("expected augmentation for catalog query")
	}
	if !strings.Contains(augmentation, "Кирпич керамический М-150: 55 ₸/шт (В наличии)") {
		t.Fatalf("expected stock line, got %q", augmentation)
	}
	if !strings.Contains(augmentation, "коммерческое предложение") {
		t.Fatalf("expected quote instruction")
	}
	if lines := strings.Count(augmentation, "\n- "); lines > 5 {
		t.Fatalf("expected at most 5 product lines, got %d", lines)
	}
}

func TestCatalogAugmentationSkipsNonCatalogText(t *testing.T) {
	t.Parallel()
	if got := catalogAugmentation(constructionRequest("когда вы открыты?")); got != "" {
		t.Fatalf("expected no augmentation, got %q", got)
	}
}

func TestCatalogAugmentationSkipsOtherBusinessTypes(t *testing.T) {
	t.Parallel()
	req := constructionRequest("кирпич")
	req.Business.BusinessID = "flower_shop"
	req.Business.BusinessType = "retail"
	if got := catalogAugmentation(req); got != "" {
		t.Fatalf("expected no augmentation for non-construction tenant, got %q", got)
	}
}

func TestBuildMessagesOrdering(t *testing.T) {
	t.Parallel()
	req := constructionRequest("а доставка есть?")
	recent := []history.Entry{
		{Message: "второй вопрос", Response: "второй ответ"},
		{Message: "первый вопрос", Response: "первый ответ"},
	}
	messages := buildMessages(req, recent)
	// system + 2*(user,assistant) + current user
	if len(messages) != 6 {
		t.Fatalf("expected 6 messages, got %d", len(messages))
	}
	if messages[0].OfSystem == nil {
		t.Fatalf("expected system message first")
	}
	if messages[1].OfUser == nil || messages[1].OfUser.Content.OfString.Value != "первый вопрос" {
		t.Fatalf("expected oldest user message second")
	}
	if messages[2].OfAssistant == nil {
		t.Fatalf("expected assistant turn third")
	}
	last := messages[len(messages)-1]
	if last.OfUser == nil || last.OfUser.Content.OfString.Value != "а доставка есть?" {
		t.Fatalf("expected current message last")
	}
}

func TestBuildMessagesSkipsEmptyResponses(t *testing.T) {
	t.Parallel()
	req := constructionRequest("привет")
	recent := []history.Entry{{Message: "без ответа"}}
	messages := buildMessages(req, recent)
	if len(messages) != 3 {
		t.Fatalf("expected system + history user + current user, got %d", len(messages))
	}
}

func TestBuildMessagesLanguageAddon(t *testing.T) {
	t.Parallel()
	req := constructionRequest("привет")
	req.Language = language.Kazakh
	messages := buildMessages(req, nil)
	system := messages[0].OfSystem.Content.OfString.Value
	if !strings.Contains(system, "қазақ тілінде") {
		t.Fatalf("expected kazakh language addon, got %q", system)
	}
}
