package advisor

import (
	"context"

	"go.uber.org/zap"

	"github.com/zhouzirui/car-advisor/backend/internal/model/chat"
	"github.com/zhouzirui/car-advisor/backend/internal/service/ai"
	"github.com/zhouzirui/car-advisor/backend/internal/service/session"
)

// settle runs the proactive follow-up at the end of a pass. It sends at most
// one follow-up per prediction and never in a pass that handled a user message.
// A failed send leaves the follow-up armed so the next pass retries it.
func (s *Service) settle(ctx context.Context, pass *session.Pass, out *Outcome) {
	if pass.MessageProcessed() {
		return
	}

	state := pass.State()
	if state.Car == nil || state.Prediction == nil || state.ProactiveFired {
		return
	}

	conv := s.conversation(ctx, pass, out)
	if conv == nil {
		return
	}

	reply, err := conv.Send(ctx, ai.ProactivePrompt(*state.Car, *state.Prediction))
	if err != nil {
		s.logger.Warn("proactive follow-up failed", zap.String("session", pass.SessionID()), zap.Error(err))
		s.warn(pass, out, &ProactiveError{Err: err})
		return
	}

	turn := pass.AppendTurn(chat.RoleAssistant, reply, true)
	pass.MarkProactiveFired()
	out.Proactive = &turn

	s.logger.Info("proactive follow-up sent", zap.String("session", pass.SessionID()), zap.Int("length", len(reply)))
}
