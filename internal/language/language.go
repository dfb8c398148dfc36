// Package language detects the conversation language of short chat messages.
// The detector is a keyword heuristic tuned for Kazakh, Russian, and English
// retail conversations.
package language

import "strings"

// Language is a supported conversation language code.
type Language string

const (
	Russian Language = "ru"
	Kazakh  Language = "kz"
	English Language = "en"
)

// Default is the language used when detection is inconclusive.
const Default = Russian

// String returns the language code.
func (l Language) String() string {
	return string(l)
}

// Parse validates a raw language code.
func Parse(raw string) (Language, bool) {
	switch Language(strings.TrimSpace(strings.ToLower(raw))) {
	case Russian:
		return Russian, true
	case Kazakh:
		return Kazakh, true
	case English:
		return English, true
	default:
		return "", false
	}
}

// Result is a detection outcome with its confidence in [0, 1].
type Result struct {
	Language   Language
	Confidence float64
}

var kazakhKeywords = []string{
	"сәлем", "сәлеметсіз бе", "қалайсыз", "рақмет", "жақсы", "кешіріңіз",
	"мен", "сіз", "біз", "олар", "бұл", "ол",
	"қанша", "қашан", "қайда", "неге", "қалай", "не",
}

var russianKeywords = []string{
	"привет", "здравствуйте", "спасибо", "пожалуйста", "как дела", "извините",
	"я", "вы", "мы", "они", "это", "он", "она",
	"сколько", "когда", "где", "почему", "как", "что",
}

// Letters that exist in Kazakh Cyrillic but not in Russian.
const kazakhSpecificLetters = "әіңғүұқөһ"

// DetectWithConfidence scores the text against both keyword sets and returns
// the better match. Kazakh-specific letters weigh heavier than keyword hits
// because they are unambiguous.
func DetectWithConfidence(text string) Result {
	lower := strings.ToLower(text)

	kazScore := 0
	for _, kw := range kazakhKeywords {
		if strings.Contains(lower, kw) {
			kazScore++
		}
	}
	for _, r := range lower {
		if strings.ContainsRune(kazakhSpecificLetters, r) {
			kazScore += 3
			break
		}
	}

	rusScore := 0
	for _, kw := range russianKeywords {
		if strings.Contains(lower, kw) {
			rusScore++
		}
	}

	total := kazScore + rusScore
	confidence := 0.5
	if total > 0 {
		if kazScore > rusScore {
			confidence = float64(kazScore) / float64(total)
		} else {
			confidence = float64(rusScore) / float64(total)
		}
	}

	if kazScore > rusScore {
		return Result{Language: Kazakh, Confidence: confidence}
	}
	if rusScore > 0 {
		return Result{Language: Russian, Confidence: confidence}
	}
	if containsCyrillic(lower) {
		return Result{Language: Russian, Confidence: 0.5}
	}
	return Result{Language: English, Confidence: 0.3}
}

// Detect returns the detected language when the detector is confident, and
// the default language otherwise.
func Detect(text string) Language {
	result := DetectWithConfidence(text)
	if result.Confidence > 0.7 {
		return result.Language
	}
	return Default
}

func containsCyrillic(text string) bool {
	for _, r := range text {
		if r >= 0x0400 && r <= 0x04FF {
			return true
		}
	}
	return false
}
