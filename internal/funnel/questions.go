package funnel

import "github.com/salemchat/salem/internal/language"

// Questions is the localized funnel script for one language.
type Questions struct {
	Q1        string
	Q2        string
	Q3        string
	Summary   string
	Completed string
}

var funnelQuestions = map[language.Language]Questions{
	language.Russian: {
		Q1:        "Какой товар или услуга вас интересует?",
		Q2:        "Для каких целей вам это нужно?",
		Q3:        "Какой у вас бюджет?",
		Summary:   "Спасибо! На основе ваших ответов, я подготовлю персональное предложение.",
		Completed: "Ваша заявка обработана. Менеджер свяжется с вами в ближайшее время.",
	},
	language.Kazakh: {
		Q1:        "Сізді қандай тауар немесе қызмет қызықтырады?",
		Q2:        "Бұл сізге не үшін керек?",
		Q3:        "Сіздің бюджетіңіз қандай?",
		Summary:   "Рақмет! Сіздің жауаптарыңыз негізінде жеке ұсыныс дайындаймын.",
		Completed: "Сіздің өтінішіңіз өңделді. Менеджер жақын арада сізбен байланысады.",
	},
	language.English: {
		Q1:        "What product or service are you interested in?",
		Q2:        "What do you need it for?",
		Q3:        "What is your budget?",
		Summary:   "Thank you! Based on your answers, I'll prepare a personalized offer.",
		Completed: "Your request has been processed. A manager will contact you soon.",
	},
}

func questionsFor(lang language.Language) Questions {
	if questions, ok := funnelQuestions[lang]; ok {
		return questions
	}
	return funnelQuestions[language.Russian]
}

func buildSummary(state State) string {
	questions := questionsFor(state.Language)
	summary := questions.Summary + "\n\n"
	switch state.Language {
	case language.Kazakh:
		summary += "📋 Сіздің жауаптарыңыз:\n"
		summary += "• Қызықтырады: " + state.Answers.ProductInterest + "\n"
		summary += "• Мақсаты: " + state.Answers.Purpose + "\n"
		summary += "• Бюджет: " + state.Answers.Budget + "\n"
	case language.English:
		summary += "📋 Your answers:\n"
		summary += "• Interested in: " + state.Answers.ProductInterest + "\n"
		summary += "• Purpose: " + state.Answers.Purpose + "\n"
		summary += "• Budget: " + state.Answers.Budget + "\n"
	default:
		summary += "📋 Ваши ответы:\n"
		summary += "• Интересует: " + state.Answers.ProductInterest + "\n"
		summary += "• Цель: " + state.Answers.Purpose + "\n"
		summary += "• Бюджет: " + state.Answers.Budget + "\n"
	}
	return summary
}
