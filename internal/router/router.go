// Package router is the conversation brain: it serializes inbound traffic
// per conversation, applies command triggers, sticky language, the sales
// funnel, manager escalation, and finally the AI response path.
package router

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/salemchat/salem/internal/business"
	"github.com/salemchat/salem/internal/channel"
	"github.com/salemchat/salem/internal/funnel"
	"github.com/salemchat/salem/internal/history"
	"github.com/salemchat/salem/internal/language"
	"github.com/salemchat/salem/internal/payments"
	"github.com/salemchat/salem/internal/respond"
)

// BusinessSource resolves tenant configuration.
type BusinessSource interface {
	Get(ctx context.Context, businessID string) (business.Config, error)
}

// Generator produces AI replies.
type Generator interface {
	Generate(ctx context.Context, req respond.Request) (string, error)
}

// Sender delivers outbound messages. Implemented by the channel manager.
type Sender interface {
	Send(ctx context.Context, cfg channel.ChannelConfig, msg channel.OutboundMessage) error
}

// PaymentCreator issues QR invoices for the pay action.
type PaymentCreator interface {
	CreateKaspi(ctx context.Context, businessID, userID, merchantID string, amount float64, description string) (payments.Payment, error)
}

// HistoryStore logs funnel exchanges. The AI path logs through the generator.
type HistoryStore interface {
	Append(ctx context.Context, entry history.Entry) (int64, error)
	SetResponse(ctx context.Context, id int64, response string) error
}

// Router implements channel.InboundProcessor.
type Router struct {
	logger     *slog.Logger
	businesses BusinessSource
	funnel     *funnel.Manager
	generator  Generator
	sender     Sender
	payments   PaymentCreator
	histories  HistoryStore

	locksMu sync.Mutex
	locks   map[channel.ConversationKey]*sync.Mutex

	stateMu   sync.Mutex
	languages map[channel.ConversationKey]language.Language
}

// New creates a Router. payments may be nil; the pay action then replies with
// an apology instead of an invoice. histories may be nil; funnel exchanges
// then go unlogged.
func New(log *slog.Logger, businesses BusinessSource, funnelManager *funnel.Manager, generator Generator, sender Sender, paymentCreator PaymentCreator, histories HistoryStore) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		logger:     log.With(slog.String("component", "router")),
		businesses: businesses,
		funnel:     funnelManager,
		generator:  generator,
		sender:     sender,
		payments:   paymentCreator,
		histories:  histories,
		locks:      map[channel.ConversationKey]*sync.Mutex{},
		languages:  map[channel.ConversationKey]language.Language{},
	}
}

// HandleInbound processes one normalized inbound message. Messages for the
// same conversation key are handled strictly one at a time; errors are
// handled internally so webhook acknowledgment never depends on processing.
func (r *Router) HandleInbound(ctx context.Context, cfg channel.ChannelConfig, msg channel.InboundMessage) error {
	key := msg.Key()
	if key.IsZero() {
		return errors.New("conversation key is required")
	}
	unlock := r.lockKey(key)
	defer unlock()

	businessID := strings.TrimSpace(msg.BusinessID)
	if businessID == "" {
		businessID = cfg.BusinessID
	}
	biz, err := r.businesses.Get(ctx, businessID)
	if err != nil {
		// Unmapped businesses are acknowledged and dropped.
		r.logger.Warn("business not resolved, message dropped",
			slog.String("business_id", businessID),
			slog.String("key", key.String()),
			slog.Any("error", err))
		return nil
	}

	if msg.IsCallback() {
		r.handleCallback(ctx, cfg, biz, msg)
		return nil
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return nil
	}

	if isStartCommand(text) {
		r.handleStart(ctx, cfg, biz, msg)
		return nil
	}
	if isStopCommand(text) {
		r.handleStop(ctx, cfg, msg)
		return nil
	}
	if strings.HasPrefix(text, "/") {
		// Unknown commands are ignored.
		return nil
	}

	key = msg.Key()
	lang := r.stickyLanguage(key)
	if biz.LanguageDetection {
		lang = r.resolveLanguage(key, text)
	}

	if r.funnel.IsEscalated(key) {
		// A manager owns the conversation; the bot stays silent.
		r.logger.Debug("message suppressed, conversation escalated", slog.String("key", key.String()))
		return nil
	}

	if wantsManager(text) {
		r.escalate(ctx, cfg, biz, msg)
		return nil
	}

	if biz.SalesFunnel && r.funnel.IsActive(key) {
		r.handleFunnelAnswer(ctx, cfg, biz, msg, text, lang)
		return nil
	}

	r.handleAI(ctx, cfg, biz, msg, text, lang)
	return nil
}

func (r *Router) handleStart(ctx context.Context, cfg channel.ChannelConfig, biz business.Config, msg channel.InboundMessage) {
	key := msg.Key()
	r.funnel.Reset(key)
	r.funnel.ClearEscalation(key)
	r.setLanguage(key, language.Default)
	name := biz.BusinessName
	if strings.TrimSpace(name) == "" {
		name = biz.BusinessID
	}
	r.reply(ctx, cfg, msg, channel.OutboundMessage{
		Text:    greetingText(msg.SenderName, name),
		Buttons: languageKeyboard(),
	})
}

func (r *Router) handleStop(ctx context.Context, cfg channel.ChannelConfig, msg channel.InboundMessage) {
	key := msg.Key()
	r.funnel.Reset(key)
	r.funnel.ClearEscalation(key)
	r.reply(ctx, cfg, msg, channel.OutboundMessage{
		Text:    goodbyeText,
		Buttons: goodbyeKeyboard(),
	})
}

func (r *Router) handleCallback(ctx context.Context, cfg channel.ChannelConfig, biz business.Config, msg channel.InboundMessage) {
	key := msg.Key()
	data := strings.TrimSpace(msg.CallbackData)
	switch data {
	case callbackLangRussian, callbackLangKazakh, callbackLangEnglish:
		lang := language.Russian
		switch data {
		case callbackLangKazakh:
			lang = language.Kazakh
		case callbackLangEnglish:
			lang = language.English
		}
		r.setLanguage(key, lang)
		confirmation, menu := languageConfirmation(lang)
		r.reply(ctx, cfg, msg, channel.OutboundMessage{Text: confirmation, Buttons: menu})
		if biz.SalesFunnel {
			firstQuestion := r.funnel.Start(key, biz.BusinessID, lang)
			r.reply(ctx, cfg, msg, channel.OutboundMessage{Text: firstQuestion})
		}
	case callbackRestart:
		r.handleStart(ctx, cfg, biz, msg)
	case callbackOrder:
		r.reply(ctx, cfg, msg, channel.OutboundMessage{Text: orderPromptText})
	case callbackManager:
		r.escalate(ctx, cfg, biz, msg)
	case callbackCatalog, callbackShowCatalog:
		r.reply(ctx, cfg, msg, channel.OutboundMessage{Text: catalogText()})
	case callbackLocation:
		r.reply(ctx, cfg, msg, channel.OutboundMessage{Text: locationText()})
	case callbackQuote:
		r.reply(ctx, cfg, msg, channel.OutboundMessage{
			Text: quoteText(msg.SenderName, time.Now().Format("02.01.2006")),
		})
	case callbackPay:
		r.handlePay(ctx, cfg, biz, msg)
	default:
		r.logger.Debug("unknown callback ignored", slog.String("data", data), slog.String("key", key.String()))
	}
}

func (r *Router) handlePay(ctx context.Context, cfg channel.ChannelConfig, biz business.Config, msg channel.InboundMessage) {
	lang := r.stickyLanguage(msg.Key())
	if !biz.QRPayments {
		r.reply(ctx, cfg, msg, channel.OutboundMessage{Text: paymentsUnavailableText(lang)})
		return
	}
	if r.payments == nil {
		r.reply(ctx, cfg, msg, channel.OutboundMessage{Text: apologyText(lang)})
		return
	}
	merchantID := biz.KaspiMerchantID
	if merchantID == "" {
		merchantID = "1234567890"
	}
	payment, err := r.payments.CreateKaspi(ctx, biz.BusinessID, msg.ExternalUserID, merchantID, 10000, "Оплата заказа")
	if err != nil {
		r.logger.Error("create payment failed", slog.String("business_id", biz.BusinessID), slog.Any("error", err))
		r.reply(ctx, cfg, msg, channel.OutboundMessage{Text: apologyText(lang)})
		return
	}
	r.reply(ctx, cfg, msg, channel.OutboundMessage{
		Text: kaspiPaymentCaption,
		Buttons: []channel.Button{
			{Label: "💳 Kaspi Pay", Action: channel.ButtonActionURL, Data: payment.QRData},
		},
	})
}

func (r *Router) handleFunnelAnswer(ctx context.Context, cfg channel.ChannelConfig, biz business.Config, msg channel.InboundMessage, text string, lang language.Language) {
	key := msg.Key()
	result, ok := r.funnel.HandleAnswer(ctx, key, text)
	if !ok {
		return
	}
	r.logFunnelTurn(ctx, biz, msg, text, lang, result)
	if result.Completed {
		r.funnel.Reset(key)
	}
	if result.Reply == "" {
		return
	}
	out := channel.OutboundMessage{Text: result.Reply}
	if result.Step == funnel.StepSummary {
		out.Buttons = summaryButtons()
	}
	r.reply(ctx, cfg, msg, out)
}

// logFunnelTurn records the funnel exchange in the conversation log with the
// step annotation. Failures never block the reply.
func (r *Router) logFunnelTurn(ctx context.Context, biz business.Config, msg channel.InboundMessage, text string, lang language.Language, result funnel.Result) {
	if r.histories == nil {
		return
	}
	id, err := r.histories.Append(ctx, history.Entry{
		BusinessID: biz.BusinessID,
		Platform:   msg.Platform.String(),
		UserID:     msg.ExternalUserID,
		Message:    text,
		Language:   lang.String(),
		FunnelStep: string(result.Step),
	})
	if err != nil {
		r.logger.Warn("append funnel history failed",
			slog.String("business_id", biz.BusinessID),
			slog.Any("error", err))
		return
	}
	if result.Reply == "" {
		return
	}
	if err := r.histories.SetResponse(ctx, id, result.Reply); err != nil {
		r.logger.Warn("set funnel history response failed",
			slog.String("business_id", biz.BusinessID),
			slog.Any("error", err))
	}
}

func (r *Router) handleAI(ctx context.Context, cfg channel.ChannelConfig, biz business.Config, msg channel.InboundMessage, text string, lang language.Language) {
	reply, err := r.generator.Generate(ctx, respond.Request{
		Business: biz,
		Platform: msg.Platform.String(),
		UserID:   msg.ExternalUserID,
		Text:     text,
		Language: lang,
	})
	if err != nil {
		r.logger.Error("generate reply failed",
			slog.String("business_id", biz.BusinessID),
			slog.String("key", msg.Key().String()),
			slog.Any("error", err))
		r.reply(ctx, cfg, msg, channel.OutboundMessage{Text: apologyText(lang)})
		return
	}
	r.reply(ctx, cfg, msg, channel.OutboundMessage{Text: reply, Buttons: replyButtons(reply)})
}

// escalate hands the conversation to a human: the manager chat is notified
// over Telegram and the bot goes quiet for this key until reset or sweep.
func (r *Router) escalate(ctx context.Context, cfg channel.ChannelConfig, biz business.Config, msg channel.InboundMessage) {
	key := msg.Key()
	r.funnel.Escalate(key)

	if managerID := strings.TrimSpace(biz.ManagerTelegramID); managerID != "" {
		if telegramCfg, ok := biz.TelegramChannelConfig(); ok {
			alert := channel.OutboundMessage{
				Target: managerID,
				Text:   managerAlertText(msg.SenderName, msg.ExternalUserID, biz.BusinessID),
			}
			if err := r.sender.Send(ctx, telegramCfg, alert); err != nil {
				r.logger.Error("manager alert failed",
					slog.String("business_id", biz.BusinessID),
					slog.Any("error", err))
			}
		} else {
			r.logger.Warn("manager alert skipped, telegram not configured",
				slog.String("business_id", biz.BusinessID))
		}
	}
	r.reply(ctx, cfg, msg, channel.OutboundMessage{Text: managerConfirmationText})
}

func (r *Router) reply(ctx context.Context, cfg channel.ChannelConfig, msg channel.InboundMessage, out channel.OutboundMessage) {
	if out.Target == "" {
		out.Target = msg.ChatID
		if out.Target == "" {
			out.Target = msg.ExternalUserID
		}
	}
	if err := r.sender.Send(ctx, cfg, out); err != nil {
		r.logger.Error("reply failed",
			slog.String("platform", msg.Platform.String()),
			slog.String("key", msg.Key().String()),
			slog.Any("error", err))
	}
}

func (r *Router) lockKey(key channel.ConversationKey) func() {
	r.locksMu.Lock()
	lock, ok := r.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[key] = lock
	}
	r.locksMu.Unlock()
	lock.Lock()
	return lock.Unlock
}

// resolveLanguage returns the sticky language for the key, updating it when
// the detector is confident about the message text.
func (r *Router) resolveLanguage(key channel.ConversationKey, text string) language.Language {
	result := language.DetectWithConfidence(text)
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	if result.Confidence > 0.7 {
		r.languages[key] = result.Language
		return result.Language
	}
	if lang, ok := r.languages[key]; ok {
		return lang
	}
	return language.Default
}

func (r *Router) stickyLanguage(key channel.ConversationKey) language.Language {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	if lang, ok := r.languages[key]; ok {
		return lang
	}
	return language.Default
}

func (r *Router) setLanguage(key channel.ConversationKey, lang language.Language) {
	r.stateMu.Lock()
	r.languages[key] = lang
	r.stateMu.Unlock()
}

func isStartCommand(text string) bool {
	return text == "/start" || strings.HasPrefix(text, "/start ")
}

func isStopCommand(text string) bool {
	return text == "/stop" || strings.HasPrefix(text, "/stop ")
}
