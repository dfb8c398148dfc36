package router

import (
	"strings"

	"github.com/salemchat/salem/internal/channel"
)

var quoteTerms = []string{"коммерческое предложение", "составить кп", "подготовить предложение", "₸", "цен"}

var catalogTerms = []string{"каталог", "товар"}

// replyButtons decorates an AI reply with contextual actions: a quote button
// when the reply talks prices, a catalog button when it mentions goods, and
// the always-present manager and location shortcuts.
func replyButtons(reply string) []channel.Button {
	lower := strings.ToLower(reply)
	var buttons []channel.Button
	for _, term := range quoteTerms {
		if strings.Contains(lower, term) {
			buttons = append(buttons, channel.Button{
				Label: "📄 Получить КП в PDF", Action: channel.ButtonActionCallback, Data: callbackQuote,
			})
			break
		}
	}
	for _, term := range catalogTerms {
		if strings.Contains(lower, term) {
			buttons = append(buttons, channel.Button{
				Label: "📋 Полный каталог", Action: channel.ButtonActionCallback, Data: callbackShowCatalog,
			})
			break
		}
	}
	return append(buttons,
		channel.Button{Label: "💬 Менеджер", Action: channel.ButtonActionCallback, Data: callbackManager},
		channel.Button{Label: "📍 Адрес склада", Action: channel.ButtonActionCallback, Data: callbackLocation},
	)
}

// summaryButtons are attached to the funnel summary message.
func summaryButtons() []channel.Button {
	return []channel.Button{
		{Label: "💳 Оплатить", Action: channel.ButtonActionCallback, Data: callbackPay},
		{Label: "📞 Менеджер", Action: channel.ButtonActionCallback, Data: callbackManager},
	}
}
