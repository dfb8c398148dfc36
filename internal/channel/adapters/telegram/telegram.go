// Package telegram implements the Telegram channel adapter. Inbound traffic
// arrives over long polling, so no webhook surface is needed.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/salemchat/salem/internal/channel"
)

// Type is the platform identifier for this adapter.
const Type = channel.PlatformTelegram

const maxMessageLength = 4096

// Adapter implements channel.Adapter, channel.Sender, and channel.Receiver
// for Telegram.
type Adapter struct {
	logger *slog.Logger
	mu     sync.RWMutex
	bots   map[string]*tgbotapi.BotAPI // keyed by bot token
}

// New creates a Telegram adapter.
func New(log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	adapter := &Adapter{
		logger: log.With(slog.String("adapter", "telegram")),
		bots:   make(map[string]*tgbotapi.BotAPI),
	}
	_ = tgbotapi.SetLogger(&slogBotLogger{log: adapter.logger})
	return adapter
}

// Type returns the Telegram platform identifier.
func (a *Adapter) Type() channel.Platform {
	return Type
}

// Descriptor returns the Telegram channel metadata.
func (a *Adapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{
		Type:        Type,
		DisplayName: "Telegram",
		OutboundPolicy: channel.OutboundPolicy{
			TextLimit:      maxMessageLength,
			RetryMax:       1,
			RetryBackoffMs: 2000,
		},
	}
}

// NormalizeConfig validates a Telegram channel configuration map.
func (a *Adapter) NormalizeConfig(raw map[string]any) (map[string]any, error) {
	token := ""
	if value, ok := raw["botToken"].(string); ok {
		token = strings.TrimSpace(value)
	}
	if token == "" {
		return nil, fmt.Errorf("telegram botToken is required")
	}
	return map[string]any{"botToken": token}, nil
}

func (a *Adapter) getOrCreateBot(token, configID string) (*tgbotapi.BotAPI, error) {
	a.mu.RLock()
	bot, ok := a.bots[token]
	a.mu.RUnlock()
	if ok {
		return bot, nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if bot, ok := a.bots[token]; ok {
		return bot, nil
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		a.logger.Error("create bot failed", slog.String("config_id", configID), slog.Any("error", err))
		return nil, err
	}
	a.bots[token] = bot
	return bot, nil
}

// Connect starts long-polling for Telegram updates and forwards text messages
// and button callbacks to the handler.
func (a *Adapter) Connect(ctx context.Context, cfg channel.ChannelConfig, handler channel.InboundHandler) (channel.Connection, error) {
	a.logger.Info("start", slog.String("config_id", cfg.ID))
	token := cfg.CredentialString("botToken")
	if token == "" {
		return nil, fmt.Errorf("telegram botToken is required")
	}
	bot, err := a.getOrCreateBot(token, cfg.ID)
	if err != nil {
		return nil, err
	}
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 30
	updates := bot.GetUpdatesChan(updateConfig)
	connCtx, cancel := context.WithCancel(ctx)

	go func() {
		for {
			select {
			case <-connCtx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					a.logger.Info("updates channel closed", slog.String("config_id", cfg.ID))
					return
				}
				msg, actionable := a.buildInbound(bot, cfg, update)
				if !actionable {
					continue
				}
				go func() {
					if err := handler(connCtx, cfg, msg); err != nil {
						a.logger.Error("handle inbound failed", slog.String("config_id", cfg.ID), slog.Any("error", err))
					}
				}()
			}
		}
	}()

	stop := func(_ context.Context) error {
		a.logger.Info("stop", slog.String("config_id", cfg.ID))
		bot.StopReceivingUpdates()
		cancel()
		// Drain remaining updates so the library's polling goroutine can
		// finish writing and exit. Without this, the in-flight long-poll
		// HTTP request keeps the old getUpdates session alive, causing
		// "Conflict: terminated by other getUpdates request" when a new
		// connection starts with the same bot token.
		for range updates {
		}
		return nil
	}
	return channel.NewConnection(cfg, stop), nil
}

// buildInbound converts a Telegram update into a normalized inbound message.
// The boolean is false for updates the router cannot act on.
func (a *Adapter) buildInbound(bot *tgbotapi.BotAPI, cfg channel.ChannelConfig, update tgbotapi.Update) (channel.InboundMessage, bool) {
	if update.CallbackQuery != nil {
		return a.buildCallbackInbound(bot, cfg, update.CallbackQuery)
	}
	if update.Message == nil {
		return channel.InboundMessage{}, false
	}
	message := update.Message
	text := strings.TrimSpace(message.Text)
	if text == "" {
		text = strings.TrimSpace(message.Caption)
	}
	if text == "" || message.From == nil {
		return channel.InboundMessage{}, false
	}
	chatID := ""
	if message.Chat != nil {
		chatID = strconv.FormatInt(message.Chat.ID, 10)
		// The visible indicator while the router thinks.
		if bot != nil {
			if err := sendTyping(bot, message.Chat.ID); err != nil {
				a.logger.Debug("send typing action failed", slog.String("config_id", cfg.ID), slog.Any("error", err))
			}
		}
	}
	msg := channel.InboundMessage{
		Platform:          Type,
		ExternalUserID:    strconv.FormatInt(message.From.ID, 10),
		ChatID:            chatID,
		Text:              text,
		ProviderMessageID: strconv.Itoa(message.MessageID),
		BusinessID:        cfg.BusinessID,
		SenderName:        senderName(message.From),
		ReceivedAt:        time.Unix(int64(message.Date), 0).UTC(),
	}
	a.logger.Info("inbound received",
		slog.String("config_id", cfg.ID),
		slog.String("chat_id", chatID),
		slog.String("user_id", msg.ExternalUserID))
	return msg, true
}

func (a *Adapter) buildCallbackInbound(bot *tgbotapi.BotAPI, cfg channel.ChannelConfig, query *tgbotapi.CallbackQuery) (channel.InboundMessage, bool) {
	if query.From == nil || strings.TrimSpace(query.Data) == "" {
		return channel.InboundMessage{}, false
	}
	// Acknowledge the tap so the client stops the loading spinner.
	if bot != nil {
		if _, err := bot.Request(tgbotapi.NewCallback(query.ID, "")); err != nil {
			a.logger.Debug("answer callback failed", slog.String("config_id", cfg.ID), slog.Any("error", err))
		}
	}
	chatID := ""
	if query.Message != nil && query.Message.Chat != nil {
		chatID = strconv.FormatInt(query.Message.Chat.ID, 10)
	}
	msg := channel.InboundMessage{
		Platform:       Type,
		ExternalUserID: strconv.FormatInt(query.From.ID, 10),
		ChatID:         chatID,
		CallbackData:   strings.TrimSpace(query.Data),
		BusinessID:     cfg.BusinessID,
		SenderName:     senderName(query.From),
		ReceivedAt:     time.Now().UTC(),
	}
	a.logger.Info("callback received",
		slog.String("config_id", cfg.ID),
		slog.String("chat_id", chatID),
		slog.String("data", msg.CallbackData))
	return msg, true
}

// Send delivers an outbound message, attaching an inline keyboard when the
// message carries buttons.
func (a *Adapter) Send(ctx context.Context, cfg channel.ChannelConfig, msg channel.OutboundMessage) error {
	token := cfg.CredentialString("botToken")
	if token == "" {
		return fmt.Errorf("telegram botToken is required")
	}
	target := strings.TrimSpace(msg.Target)
	if target == "" {
		return fmt.Errorf("telegram target is required")
	}
	if msg.IsEmpty() {
		return fmt.Errorf("message is required")
	}
	bot, err := a.getOrCreateBot(token, cfg.ID)
	if err != nil {
		return err
	}
	text := truncateText(sanitizeText(msg.Text))
	var message tgbotapi.MessageConfig
	if strings.HasPrefix(target, "@") {
		message = tgbotapi.NewMessageToChannel(target, text)
	} else {
		chatID, err := strconv.ParseInt(target, 10, 64)
		if err != nil {
			return fmt.Errorf("telegram target must be @username or chat_id")
		}
		message = tgbotapi.NewMessage(chatID, text)
	}
	if keyboard, ok := inlineKeyboard(msg.Buttons); ok {
		message.ReplyMarkup = keyboard
	}
	if _, err := bot.Send(message); err != nil {
		return wrapAPIError(err)
	}
	return nil
}

// inlineKeyboard builds a one-button-per-row inline keyboard.
func inlineKeyboard(buttons []channel.Button) (tgbotapi.InlineKeyboardMarkup, bool) {
	if len(buttons) == 0 {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(buttons))
	for _, button := range buttons {
		switch button.Action {
		case channel.ButtonActionURL:
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonURL(button.Label, button.Data)))
		default:
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(button.Label, button.Data)))
		}
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...), true
}

// wrapAPIError converts a Telegram API error into a ProviderError so the
// outbound retry policy can tell transient failures from permanent ones.
func wrapAPIError(err error) error {
	if err == nil {
		return nil
	}
	var apiErrPtr *tgbotapi.Error
	if errors.As(err, &apiErrPtr) {
		return &channel.ProviderError{
			Platform:   Type,
			StatusCode: apiErrPtr.Code,
			Body:       apiErrPtr.Message,
		}
	}
	var apiErr tgbotapi.Error
	if errors.As(err, &apiErr) {
		return &channel.ProviderError{
			Platform:   Type,
			StatusCode: apiErr.Code,
			Body:       apiErr.Message,
		}
	}
	return err
}

func senderName(user *tgbotapi.User) string {
	if user == nil {
		return ""
	}
	if name := strings.TrimSpace(user.UserName); name != "" {
		return name
	}
	return strings.TrimSpace(user.FirstName + " " + user.LastName)
}

func sendTyping(bot *tgbotapi.BotAPI, chatID int64) error {
	_, err := bot.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))
	return err
}

// sanitizeText ensures text is valid UTF-8 for the Telegram API.
func sanitizeText(text string) string {
	if utf8.ValidString(text) {
		return text
	}
	return strings.ToValidUTF8(text, "")
}

// truncateText truncates text to maxMessageLength on a valid UTF-8 rune
// boundary, appending "..." when truncation occurs.
func truncateText(text string) string {
	if len(text) <= maxMessageLength {
		return text
	}
	const suffix = "..."
	limit := maxMessageLength - len(suffix)
	for limit > 0 && !utf8.RuneStart(text[limit]) {
		limit--
	}
	return text[:limit] + suffix
}

type slogBotLogger struct {
	log *slog.Logger
}

func (l *slogBotLogger) Println(v ...interface{}) {
	l.log.Debug(fmt.Sprint(v...))
}

func (l *slogBotLogger) Printf(format string, v ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, v...))
}
