// Package funnel implements the three-question sales funnel. State is kept in
// memory per conversation; completed funnels are persisted as leads.
package funnel

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/salemchat/salem/internal/channel"
	"github.com/salemchat/salem/internal/language"
)

// Step is a funnel stage. Stages advance strictly forward.
type Step string

const (
	StepQ1        Step = "Q1"
	StepQ2        Step = "Q2"
	StepQ3        Step = "Q3"
	StepSummary   Step = "summary"
	StepCompleted Step = "completed"
)

// State tracks one user's progress through the funnel.
type State struct {
	Key        channel.ConversationKey
	BusinessID string
	Language   language.Language
	Step       Step
	Answers    Answers
	StartedAt  time.Time
}

// Answers holds the collected funnel answers.
type Answers struct {
	ProductInterest string
	Purpose         string
	Budget          string
}

// Result is the funnel's reply to one user answer.
type Result struct {
	// Reply is the next question, the summary block, or the completion text.
	Reply string
	// Step is the stage the funnel advanced to.
	Step Step
	// Completed is true once the funnel has delivered its completion text.
	Completed bool
	// LeadSaved is true when this answer closed the question set and the lead
	// was handed to the saver.
	LeadSaved bool
}

// Lead is a completed funnel submission.
type Lead struct {
	BusinessID      string
	UserID          string
	Platform        string
	Language        string
	ProductInterest string
	Purpose         string
	Budget          string
	CreatedAt       time.Time
}

// LeadSaver persists completed funnel submissions.
type LeadSaver interface {
	SaveLead(ctx context.Context, lead Lead) error
}

// Manager owns all in-memory funnel states and manager escalations. Both live
// in the same store and are evicted by the same sweep.
type Manager struct {
	mu          sync.Mutex
	states      map[channel.ConversationKey]*State
	escalations map[channel.ConversationKey]time.Time
	leads       LeadSaver
	logger      *slog.Logger
	now         func() time.Time
}

// NewManager creates a funnel manager. saver may be nil, in which case leads
// are dropped with a warning.
func NewManager(log *slog.Logger, saver LeadSaver) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		states:      map[channel.ConversationKey]*State{},
		escalations: map[channel.ConversationKey]time.Time{},
		leads:       saver,
		logger:      log.With(slog.String("component", "funnel")),
		now:         time.Now,
	}
}

// Start initializes (or restarts) the funnel for a conversation and returns
// the first question.
func (m *Manager) Start(key channel.ConversationKey, businessID string, lang language.Language) string {
	questions := questionsFor(lang)
	m.mu.Lock()
	m.states[key] = &State{
		Key:        key,
		BusinessID: businessID,
		Language:   lang,
		Step:       StepQ1,
		StartedAt:  m.now(),
	}
	m.mu.Unlock()
	return questions.Q1
}

// State returns a copy of the conversation's funnel state.
func (m *Manager) State(key channel.ConversationKey) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.states[key]
	if !ok {
		return State{}, false
	}
	return *state, true
}

// IsActive reports whether the conversation is mid-funnel. A completed funnel
// is no longer active.
func (m *Manager) IsActive(key channel.ConversationKey) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.states[key]
	return ok && state.Step != StepCompleted
}

// CurrentQuestion returns the pending question text for the conversation.
func (m *Manager) CurrentQuestion(key channel.ConversationKey) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.states[key]
	if !ok {
		return "", false
	}
	questions := questionsFor(state.Language)
	switch state.Step {
	case StepQ1:
		return questions.Q1, true
	case StepQ2:
		return questions.Q2, true
	case StepQ3:
		return questions.Q3, true
	case StepSummary:
		return questions.Summary, true
	default:
		return "", false
	}
}

// HandleAnswer records the answer for the current step and advances the
// funnel. The boolean is false when the conversation has no funnel state.
//
// At the third answer the lead is persisted and the summary block returned.
// A lead save failure is logged but never blocks the user-facing reply.
func (m *Manager) HandleAnswer(ctx context.Context, key channel.ConversationKey, answer string) (Result, bool) {
	m.mu.Lock()
	state, ok := m.states[key]
	if !ok {
		m.mu.Unlock()
		return Result{}, false
	}
	questions := questionsFor(state.Language)

	switch state.Step {
	case StepQ1:
		state.Answers.ProductInterest = answer
		state.Step = StepQ2
		m.mu.Unlock()
		return Result{Reply: questions.Q2, Step: StepQ2}, true
	case StepQ2:
		state.Answers.Purpose = answer
		state.Step = StepQ3
		m.mu.Unlock()
		return Result{Reply: questions.Q3, Step: StepQ3}, true
	case StepQ3:
		state.Answers.Budget = answer
		state.Step = StepSummary
		lead := Lead{
			BusinessID:      state.BusinessID,
			UserID:          key.ExternalUserID,
			Platform:        key.Platform.String(),
			Language:        state.Language.String(),
			ProductInterest: state.Answers.ProductInterest,
			Purpose:         state.Answers.Purpose,
			Budget:          state.Answers.Budget,
			CreatedAt:       m.now(),
		}
		summary := buildSummary(*state)
		m.mu.Unlock()
		m.saveLead(ctx, lead)
		return Result{Reply: summary, Step: StepSummary, LeadSaved: true}, true
	case StepSummary:
		state.Step = StepCompleted
		m.mu.Unlock()
		return Result{Reply: questions.Completed, Step: StepCompleted, Completed: true}, true
	default:
		m.mu.Unlock()
		return Result{Step: state.Step, Completed: true}, true
	}
}

// Reset drops the conversation's funnel state.
func (m *Manager) Reset(key channel.ConversationKey) {
	m.mu.Lock()
	delete(m.states, key)
	m.mu.Unlock()
}

// Escalate marks the conversation as handed to a human manager.
func (m *Manager) Escalate(key channel.ConversationKey) {
	m.mu.Lock()
	m.escalations[key] = m.now()
	m.mu.Unlock()
}

// IsEscalated reports whether a manager owns the conversation.
func (m *Manager) IsEscalated(key channel.ConversationKey) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.escalations[key]
	return ok
}

// ClearEscalation hands the conversation back to the bot.
func (m *Manager) ClearEscalation(key channel.ConversationKey) {
	m.mu.Lock()
	delete(m.escalations, key)
	m.mu.Unlock()
}

// Sweep removes funnel states and escalations older than maxAge and returns
// how many were evicted. Intended to run periodically.
func (m *Manager) Sweep(maxAge time.Duration) int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	evicted := 0
	for key, state := range m.states {
		if now.Sub(state.StartedAt) > maxAge {
			delete(m.states, key)
			evicted++
		}
	}
	for key, startedAt := range m.escalations {
		if now.Sub(startedAt) > maxAge {
			delete(m.escalations, key)
			evicted++
		}
	}
	return evicted
}

func (m *Manager) saveLead(ctx context.Context, lead Lead) {
	if m.leads == nil {
		m.logger.Warn("lead dropped, no saver configured", slog.String("business_id", lead.BusinessID))
		return
	}
	if err := m.leads.SaveLead(ctx, lead); err != nil {
		m.logger.Error("save lead failed",
			slog.String("business_id", lead.BusinessID),
			slog.String("platform", lead.Platform),
			slog.Any("error", err))
	}
}
