package advisor

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/zhouzirui/car-advisor/backend/internal/model/chat"
	"github.com/zhouzirui/car-advisor/backend/internal/service/ai"
	"github.com/zhouzirui/car-advisor/backend/internal/service/session"
)

// DegradedReply answers chat messages when no chat endpoint is configured.
const DegradedReply = "⚠️ The assistant is not active yet. Add a Gemini API key to enable chat."

// ReplyErrorPrefix starts the assistant turn written when the endpoint call fails.
const ReplyErrorPrefix = "⚠️ Something went wrong: "

// converse appends the user's turn, asks the chat endpoint with the session
// context, and appends whatever comes back. It always yields an assistant turn.
func (s *Service) converse(ctx context.Context, pass *session.Pass, text string, out *Outcome) chat.Turn {
	pass.MarkMessageProcessed()
	pass.AppendTurn(chat.RoleUser, text, false)

	conv := s.conversation(ctx, pass, out)
	if conv == nil {
		return pass.AppendTurn(chat.RoleAssistant, DegradedReply, false)
	}

	pass.Publish(chat.Event{Type: chat.EventTyping, Active: true})
	s.pause(ctx)

	prompt := ai.ContextPrompt(pass.State(), text)
	reply, err := conv.Send(ctx, prompt)
	if err != nil {
		s.logger.Warn("chat endpoint failed", zap.String("session", pass.SessionID()), zap.Error(err))
		reply = fmt.Sprintf("%s%v", ReplyErrorPrefix, err)
	}

	turn := pass.AppendTurn(chat.RoleAssistant, reply, false)
	pass.Publish(chat.Event{Type: chat.EventTyping, Active: false})
	return turn
}
