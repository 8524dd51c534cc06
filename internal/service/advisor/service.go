// Package advisor drives the car advisor. Each user event runs as one reactive
// pass over the session: the event's own handler first, then the proactive
// follow-up check.
package advisor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/car-advisor/backend/internal/model/car"
	"github.com/zhouzirui/car-advisor/backend/internal/model/chat"
	"github.com/zhouzirui/car-advisor/backend/internal/service/ai"
	"github.com/zhouzirui/car-advisor/backend/internal/service/audit"
	"github.com/zhouzirui/car-advisor/backend/internal/service/predictor"
	"github.com/zhouzirui/car-advisor/backend/internal/service/session"
)

// Options wires the service's collaborators. Provider may be nil.
type Options struct {
	Store           *session.Store
	Predictor       *predictor.Loader
	Provider        ai.Provider
	Audit           audit.Recorder
	TypingDelay     time.Duration
	AllowSessionKey bool
	Logger          *zap.Logger
}

// Service orchestrates predictions and conversations for all sessions.
type Service struct {
	store           *session.Store
	predictor       *predictor.Loader
	provider        ai.Provider
	audit           audit.Recorder
	typingDelay     time.Duration
	allowSessionKey bool
	logger          *zap.Logger
}

// NewService creates the advisor.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	rec := opts.Audit
	if rec == nil {
		rec = audit.Nop{}
	}
	loader := opts.Predictor
	if loader == nil {
		loader = predictor.NewStaticLoader(nil)
	}
	return &Service{
		store:           opts.Store,
		predictor:       loader,
		provider:        opts.Provider,
		audit:           rec,
		typingDelay:     opts.TypingDelay,
		allowSessionKey: opts.AllowSessionKey,
		logger:          logger,
	}
}

// View is the read model a renderer needs: state plus feature availability.
type View struct {
	SessionID       string              `json:"sessionId"`
	State           chat.State          `json:"state"`
	Stage           chat.ProactiveStage `json:"proactiveStage"`
	ChatEnabled     bool                `json:"chatEnabled"`
	PredictorReady  bool                `json:"predictorReady"`
	AllowSessionKey bool                `json:"allowSessionKey"`
	Provider        string              `json:"provider,omitempty"`
}

// Outcome is what a single pass produced.
type Outcome struct {
	View
	Prediction *car.Prediction `json:"prediction,omitempty"`
	Reply      *chat.Turn      `json:"reply,omitempty"`
	Proactive  *chat.Turn      `json:"proactive,omitempty"`
	Warnings   []string        `json:"warnings,omitempty"`
}

// Submit handles a form submission: predict, then run the follow-up check in the same pass.
// The follow-up runs even when the prediction fails so an armed follow-up can retry.
func (s *Service) Submit(ctx context.Context, sessionID string, record car.Record) (Outcome, error) {
	sess, pass, err := s.begin(ctx, sessionID)
	if err != nil {
		return Outcome{}, err
	}
	defer pass.End()

	out := Outcome{}
	prediction, predictErr := s.predict(ctx, pass, record)
	if predictErr == nil {
		out.Prediction = &prediction
	}
	s.settle(ctx, pass, &out)

	out.View = s.view(sess)
	return out, predictErr
}

// Message handles a chat message. The follow-up is skipped for this pass.
func (s *Service) Message(ctx context.Context, sessionID, text string) (Outcome, error) {
	if strings.TrimSpace(text) == "" {
		return Outcome{}, ErrEmptyMessage
	}

	sess, pass, err := s.begin(ctx, sessionID)
	if err != nil {
		return Outcome{}, err
	}
	defer pass.End()

	out := Outcome{}
	reply := s.converse(ctx, pass, text, &out)
	out.Reply = &reply
	s.settle(ctx, pass, &out)

	out.View = s.view(sess)
	return out, nil
}

// Refresh runs a pass with no user event; only the follow-up check executes.
func (s *Service) Refresh(ctx context.Context, sessionID string) (Outcome, error) {
	sess, pass, err := s.begin(ctx, sessionID)
	if err != nil {
		return Outcome{}, err
	}
	defer pass.End()

	out := Outcome{}
	s.settle(ctx, pass, &out)

	out.View = s.view(sess)
	return out, nil
}

// NewSession starts an empty session.
func (s *Service) NewSession(ctx context.Context) View {
	sess := s.store.Create(ctx)
	return s.view(sess)
}

// Snapshot returns the current view without running a pass.
func (s *Service) Snapshot(ctx context.Context, sessionID string) (View, error) {
	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return View{}, err
	}
	return s.view(sess), nil
}

// ConfigureCredential binds a chat session opened with a user-supplied API key.
func (s *Service) ConfigureCredential(ctx context.Context, sessionID, apiKey string) (View, error) {
	if !s.allowSessionKey {
		return View{}, ErrSessionKeyDisabled
	}
	if s.provider == nil {
		return View{}, &ConfigurationError{Component: "chat", Err: fmt.Errorf("no llm provider configured")}
	}
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return View{}, &ConfigurationError{Component: "chat", Err: ai.ErrCredentialMissing}
	}

	sess, pass, err := s.begin(ctx, sessionID)
	if err != nil {
		return View{}, err
	}
	defer pass.End()

	conv, err := s.provider.Open(ctx, apiKey)
	if err != nil {
		s.logger.Warn("session api key rejected", zap.String("session", sessionID), zap.Error(err))
		return View{}, &ConfigurationError{Component: "chat", Err: err}
	}
	pass.SetConversation(conv)
	s.logger.Info("chat enabled with session api key", zap.String("session", sessionID), zap.String("provider", s.provider.Name()))

	return s.view(sess), nil
}

// Subscribe exposes the live event feed of a session.
func (s *Service) Subscribe(ctx context.Context, sessionID string) (<-chan chat.Event, func(), error) {
	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	events, cancel := sess.Subscribe()
	return events, cancel, nil
}

// PredictorReady reports whether the price model loaded.
func (s *Service) PredictorReady() bool {
	return s.predictor.Ready()
}

func (s *Service) begin(ctx context.Context, sessionID string) (*session.Session, *session.Pass, error) {
	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	pass, err := sess.BeginPass(ctx)
	if err != nil {
		return nil, nil, err
	}
	return sess, pass, nil
}

func (s *Service) view(sess *session.Session) View {
	state := sess.Snapshot()
	v := View{
		SessionID:       sess.ID,
		State:           state,
		Stage:           state.ProactiveStage(),
		PredictorReady:  s.predictor.Ready(),
		AllowSessionKey: s.allowSessionKey && s.provider != nil,
	}
	if s.provider != nil {
		v.Provider = s.provider.Name()
		v.ChatEnabled = sess.HasConversation() || s.provider.HasCredential()
	}
	return v
}

// conversation returns the session's chat endpoint, opening it with the
// process credential on first use. nil means chat is in degraded mode.
func (s *Service) conversation(ctx context.Context, pass *session.Pass, out *Outcome) ai.Conversation {
	if conv := pass.Conversation(); conv != nil {
		return conv
	}
	if s.provider == nil || !s.provider.HasCredential() {
		return nil
	}

	conv, err := s.provider.Open(ctx, "")
	if err != nil {
		cfgErr := &ConfigurationError{Component: "chat", Err: err}
		s.logger.Warn("failed to open chat session", zap.String("session", pass.SessionID()), zap.Error(err))
		s.warn(pass, out, cfgErr)
		return nil
	}
	pass.SetConversation(conv)
	return conv
}

func (s *Service) warn(pass *session.Pass, out *Outcome, err error) {
	out.Warnings = append(out.Warnings, err.Error())
	pass.Publish(chat.Event{Type: chat.EventWarning, Message: err.Error()})
}

func (s *Service) pause(ctx context.Context) {
	if s.typingDelay <= 0 {
		return
	}
	timer := time.NewTimer(s.typingDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
