// Package respond generates AI replies through the OpenAI chat completions
// API, grounded with conversation history and live catalog data.
package respond

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	osdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/salemchat/salem/internal/business"
	"github.com/salemchat/salem/internal/catalog"
	"github.com/salemchat/salem/internal/history"
	"github.com/salemchat/salem/internal/language"
)

// ErrNotConfigured is returned when no API key is available.
var ErrNotConfigured = errors.New("openai api key not configured")

const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 500
	historyDepth       = 5
)

var languagePrompts = map[language.Language]string{
	language.Kazakh:  "Жауаптарыңызды қазақ тілінде беріңіз.",
	language.Russian: "Отвечайте на русском языке.",
	language.English: "Respond in English.",
}

// Request describes one reply generation.
type Request struct {
	Business business.Config
	Platform string
	UserID   string
	Text     string
	Language language.Language
}

// HistoryStore is the slice of the history service the generator needs.
type HistoryStore interface {
	Append(ctx context.Context, entry history.Entry) (int64, error)
	SetResponse(ctx context.Context, id int64, response string) error
	LastN(ctx context.Context, businessID, platform, userID string, n int) ([]history.Entry, error)
}

// Generator produces AI replies.
type Generator struct {
	client         osdk.Client
	configured     bool
	history        HistoryStore
	logger         *slog.Logger
	requestTimeout time.Duration
}

// NewGenerator creates a generator. An empty API key yields a generator that
// fails every request with ErrNotConfigured; history logging still works.
func NewGenerator(log *slog.Logger, apiKey, baseURL string, requestTimeout time.Duration, store HistoryStore) *Generator {
	if log == nil {
		log = slog.Default()
	}
	apiKey = strings.TrimSpace(apiKey)
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if requestTimeout > 0 {
		opts = append(opts, option.WithRequestTimeout(requestTimeout))
	}
	return &Generator{
		client:         osdk.NewClient(opts...),
		configured:     apiKey != "",
		history:        store,
		logger:         log.With(slog.String("component", "respond")),
		requestTimeout: requestTimeout,
	}
}

// Generate logs the message, builds the prompt, and returns the AI reply.
// History failures are logged and never block the reply.
func (g *Generator) Generate(ctx context.Context, req Request) (string, error) {
	entryID := g.appendHistory(ctx, req)

	if !g.configured {
		return "", ErrNotConfigured
	}

	recent := g.loadHistory(ctx, req)
	messages := buildMessages(req, recent)

	ctx, cancel := g.withTimeout(ctx)
	defer cancel()
	startedAt := time.Now()
	completion, err := g.client.Chat.Completions.New(ctx, osdk.ChatCompletionNewParams{
		Model:       req.Business.Model(),
		Messages:    messages,
		Temperature: osdk.Float(defaultTemperature),
		MaxTokens:   osdk.Int(defaultMaxTokens),
	})
	if err != nil {
		g.logger.Error("completion failed",
			slog.String("business_id", req.Business.BusinessID),
			slog.Int64("duration_ms", time.Since(startedAt).Milliseconds()),
			slog.Any("error", err))
		return "", fmt.Errorf("generate response: %w", err)
	}

	reply := ""
	if len(completion.Choices) > 0 {
		reply = strings.TrimSpace(completion.Choices[0].Message.Content)
	}
	if reply == "" {
		return "", errors.New("completion returned no text")
	}

	g.setHistoryResponse(ctx, entryID, reply)
	g.logger.Debug("completion done",
		slog.String("business_id", req.Business.BusinessID),
		slog.Int64("duration_ms", time.Since(startedAt).Milliseconds()),
		slog.Int("reply_length", len(reply)))
	return reply, nil
}

func buildMessages(req Request, recent []history.Entry) []osdk.ChatCompletionMessageParamUnion {
	systemPrompt := req.Business.SystemPrompt
	if augmentation := catalogAugmentation(req); augmentation != "" {
		systemPrompt += augmentation
	}
	if addon, ok := languagePrompts[req.Language]; ok {
		systemPrompt += "\n\n" + addon
	}

	messages := []osdk.ChatCompletionMessageParamUnion{
		osdk.SystemMessage(systemPrompt),
	}
	// History arrives newest first; replay oldest first as user/assistant turns.
	for i := len(recent) - 1; i >= 0; i-- {
		entry := recent[i]
		messages = append(messages, osdk.UserMessage(entry.Message))
		if strings.TrimSpace(entry.Response) != "" {
			messages = append(messages, osdk.AssistantMessage(entry.Response))
		}
	}
	return append(messages, osdk.UserMessage(req.Text))
}

// catalogAugmentation appends matched stock lines for construction tenants
// when the user asks about goods.
func catalogAugmentation(req Request) string {
	if req.Business.BusinessType != "construction" && req.Business.BusinessID != "construct_shop" {
		return ""
	}
	if !catalog.MentionsProducts(req.Text) {
		return ""
	}
	products := searchByKeywords(req.Text)
	if len(products) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\nАктуальные товары по запросу клиента:\n")
	for i, product := range products {
		if i >= 5 {
			break
		}
		fmt.Fprintf(&b, "- %s: %d ₸/%s (%s)\n", product.Name, product.Price, product.Unit, product.Availability)
	}
	b.WriteString("\nПредложите эти товары, рассчитайте необходимое количество и предложите сформировать коммерческое предложение.")
	return b.String()
}

func searchByKeywords(text string) []catalog.Product {
	lower := strings.ToLower(text)
	seen := map[string]bool{}
	var products []catalog.Product
	for _, kw := range catalog.Keywords {
		if !strings.Contains(lower, kw) {
			continue
		}
		for _, product := range catalog.Search(kw) {
			if seen[product.SKU] {
				continue
			}
			seen[product.SKU] = true
			products = append(products, product)
		}
	}
	return products
}

func (g *Generator) appendHistory(ctx context.Context, req Request) int64 {
	if g.history == nil {
		return 0
	}
	id, err := g.history.Append(ctx, history.Entry{
		BusinessID: req.Business.BusinessID,
		Platform:   req.Platform,
		UserID:     req.UserID,
		Message:    req.Text,
		Language:   req.Language.String(),
	})
	if err != nil {
		g.logger.Warn("append history failed", slog.String("business_id", req.Business.BusinessID), slog.Any("error", err))
		return 0
	}
	return id
}

func (g *Generator) loadHistory(ctx context.Context, req Request) []history.Entry {
	if g.history == nil {
		return nil
	}
	recent, err := g.history.LastN(ctx, req.Business.BusinessID, req.Platform, req.UserID, historyDepth)
	if err != nil {
		g.logger.Warn("load history failed", slog.String("business_id", req.Business.BusinessID), slog.Any("error", err))
		return nil
	}
	return recent
}

func (g *Generator) setHistoryResponse(ctx context.Context, id int64, reply string) {
	if g.history == nil || id == 0 {
		return
	}
	if err := g.history.SetResponse(ctx, id, reply); err != nil {
		g.logger.Warn("set history response failed", slog.Any("error", err))
	}
}

func (g *Generator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.requestTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, g.requestTimeout)
}
