package router

import (
	"fmt"
	"strings"

	"github.com/salemchat/salem/internal/catalog"
	"github.com/salemchat/salem/internal/channel"
	"github.com/salemchat/salem/internal/language"
)

// Callback data values understood by the router regardless of platform.
const (
	callbackLangRussian = "lang_ru"
	callbackLangKazakh  = "lang_kz"
	callbackLangEnglish = "lang_en"
	callbackRestart     = "restart"
	callbackOrder       = "order"
	callbackManager     = "manager"
	callbackCatalog     = "catalog"
	callbackShowCatalog = "show_catalog"
	callbackLocation    = "location"
	callbackQuote       = "generate_quote"
	callbackPay         = "pay"
)

func greetingText(senderName, businessName string) string {
	if strings.TrimSpace(senderName) == "" {
		senderName = "Клиент"
	}
	return fmt.Sprintf("🤖 Здравствуйте, %s!\n\n"+
		"Я - виртуальный помощник %s.\n"+
		"Рад приветствовать вас!\n\n"+
		"На каком языке вам удобнее общаться?\n"+
		"Қай тілде сөйлескіңіз келеді?", senderName, businessName)
}

func languageKeyboard() []channel.Button {
	return []channel.Button{
		{Label: "🇷🇺 Русский", Action: channel.ButtonActionCallback, Data: callbackLangRussian},
		{Label: "🇰🇿 Қазақша", Action: channel.ButtonActionCallback, Data: callbackLangKazakh},
		{Label: "🇬🇧 English", Action: channel.ButtonActionCallback, Data: callbackLangEnglish},
	}
}

const goodbyeText = "Спасибо за общение! До свидания! / Сау болыңыз!"

func goodbyeKeyboard() []channel.Button {
	return []channel.Button{
		{Label: "🔄 Начать заново / Қайта бастау", Action: channel.ButtonActionCallback, Data: callbackRestart},
	}
}

func languageConfirmation(lang language.Language) (string, []channel.Button) {
	switch lang {
	case language.Kazakh:
		return "✅ Тіл орнатылды: Қазақша\n\nБүгін сізге қалай көмектесе аламын?", []channel.Button{
			{Label: "🛒 Тапсырыс беру", Action: channel.ButtonActionCallback, Data: callbackOrder},
			{Label: "💬 Менеджермен байланысу", Action: channel.ButtonActionCallback, Data: callbackManager},
			{Label: "📋 Тауарлар каталогы", Action: channel.ButtonActionCallback, Data: callbackCatalog},
		}
	case language.English:
		return "✅ Language set: English\n\nHow can I help you today?", []channel.Button{
			{Label: "🛒 Place Order", Action: channel.ButtonActionCallback, Data: callbackOrder},
			{Label: "💬 Contact Manager", Action: channel.ButtonActionCallback, Data: callbackManager},
			{Label: "📋 Product Catalog", Action: channel.ButtonActionCallback, Data: callbackCatalog},
		}
	default:
		return "✅ Язык установлен: Русский\n\nЧем могу помочь вам сегодня?", []channel.Button{
			{Label: "🛒 Сделать заказ", Action: channel.ButtonActionCallback, Data: callbackOrder},
			{Label: "💬 Связаться с менеджером", Action: channel.ButtonActionCallback, Data: callbackManager},
			{Label: "📋 Каталог товаров", Action: channel.ButtonActionCallback, Data: callbackCatalog},
		}
	}
}

const orderPromptText = "Опишите, какие материалы вам нужны, и я помогу подобрать оптимальные варианты и составить коммерческое предложение."

const managerConfirmationText = "Менеджер свяжется с вами в ближайшее время! / Менеджер жақын арада сізбен байланысады!"

func managerAlertText(senderName, userID, businessID string) string {
	user := strings.TrimSpace(senderName)
	if user == "" {
		user = userID
	}
	return "🆕 Новый клиент требует внимания!\n" +
		"Пользователь: @" + user + "\n" +
		"ID: " + userID + "\n" +
		"Бизнес: " + businessID
}

func locationText() string {
	contacts := catalog.WarehouseContacts
	return "📍 **Наш склад:**\n" +
		contacts.Warehouse + "\n" +
		contacts.WorkHours
}

func catalogText() string {
	var b strings.Builder
	b.WriteString("📋 **КАТАЛОГ СТРОЙМАТЕРИАЛОВ**\n\n")
	for _, category := range catalog.Categories {
		b.WriteString("**" + category.Name + ":**\n")
		for i, product := range category.Products {
			if i >= 3 {
				break
			}
			fmt.Fprintf(&b, "• %s: %d ₸/%s\n", product.Name, product.Price, product.Unit)
		}
		b.WriteString("\n")
	}
	b.WriteString("🚚 Доставка: 15000₸ по городу\n")
	b.WriteString("🏯 Склад: " + catalog.WarehouseContacts.Warehouse + "\n")
	b.WriteString("☎️ " + catalog.WarehouseContacts.Phone)
	return b.String()
}

func apologyText(lang language.Language) string {
	switch lang {
	case language.Kazakh:
		return "Қате пайда болды. Кейінірек қайталап көріңіз."
	case language.English:
		return "An error occurred. Please try again later."
	default:
		return "Произошла ошибка. Попробуйте позже."
	}
}

func paymentsUnavailableText(lang language.Language) string {
	switch lang {
	case language.Kazakh:
		return "Бот арқылы төлем уақытша қолжетімсіз. Тапсырыс рәсімдеу үшін менеджермен байланысыңыз."
	case language.English:
		return "Payments through the bot are unavailable. Please contact the manager to place your order."
	default:
		return "Оплата через бота недоступна. Для оформления заказа свяжитесь с менеджером."
	}
}

func quoteText(senderName string, date string) string {
	client := strings.TrimSpace(senderName)
	if client == "" {
		client = "клиент"
	}
	return "📄 **КОММЕРЧЕСКОЕ ПРЕДЛОЖЕНИЕ**\n" +
		"Дата: " + date + "\n" +
		"Клиент: @" + client + "\n\n" +
		"Пример расчета на 50 м² обоев:\n" +
		"• Обои виниловые: 5 рулонов × 850₸ = 4,250₸\n" +
		"• Клей для обоев: 2 уп. × 450₸ = 900₸\n" +
		"• Грунтовка: 10л × 280₸ = 2,800₸\n\n" +
		"**Итого: 7,950₸**\n\n" +
		"Условия: предоплата 100%, доставка в течение 1-2 дней"
}

const kaspiPaymentCaption = "Отсканируйте QR-код для оплаты через Kaspi"

var managerKeywords = []string{"менеджер", "оператор", "manager", "operator", "адаммен"}

// wantsManager reports whether the text is an explicit request for a human.
func wantsManager(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range managerKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
