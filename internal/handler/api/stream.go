package api

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/zhouzirui/car-advisor/backend/internal/middleware"
	"github.com/zhouzirui/car-advisor/backend/internal/model/chat"
	"github.com/zhouzirui/car-advisor/backend/internal/service/advisor"
	"github.com/zhouzirui/car-advisor/backend/pkg/utils"
)

// StreamEvent is the payload of every SSE event on /api/stream.
type StreamEvent struct {
	SessionID string           `json:"sessionId"`
	Turn      *chat.Turn       `json:"turn,omitempty"`
	Active    *bool            `json:"active,omitempty"`
	Message   string           `json:"message,omitempty"`
	Outcome   *advisor.Outcome `json:"outcome,omitempty"`
	Code      string           `json:"code,omitempty"`
}

type messageResult struct {
	out advisor.Outcome
	err error
}

// handleStream runs a chat message pass and streams its progress as it
// happens: the user's turn, the typing indicator, and the reply.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sid := middleware.SessionIDFromContext(ctx)
	message := r.URL.Query().Get("message")
	if strings.TrimSpace(message) == "" {
		_ = utils.RespondErrorCode(w, http.StatusBadRequest, "empty_message", "message query parameter is required")
		return
	}

	events, cancel, err := h.advisor.Subscribe(ctx, sid)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	defer cancel()

	sse, err := utils.NewSSEWriter(w)
	if err != nil {
		_ = utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	done := make(chan messageResult, 1)
	go func() {
		out, err := h.advisor.Message(ctx, sid, message)
		done <- messageResult{out: out, err: err}
	}()

	for {
		select {
		case e, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			h.forward(sse, e)
		case res := <-done:
			// every event of the pass is buffered by now
			h.drain(sse, events)
			if res.err != nil {
				status, code := StatusFor(res.err)
				h.logger.Warn("stream pass failed", zap.String("session", sid), zap.Int("status", status), zap.Error(res.err))
				_ = sse.Event("error", StreamEvent{SessionID: sid, Message: res.err.Error(), Code: code})
				return
			}
			_ = sse.Event("end", StreamEvent{SessionID: sid, Outcome: &res.out})
			return
		case <-ctx.Done():
			return
		}
	}
}

func (h *Handler) drain(sse *utils.SSEWriter, events <-chan chat.Event) {
	if events == nil {
		return
	}
	for {
		select {
		case e, ok := <-events:
			if !ok {
				return
			}
			h.forward(sse, e)
		default:
			return
		}
	}
}

func (h *Handler) forward(sse *utils.SSEWriter, e chat.Event) {
	payload := StreamEvent{SessionID: e.SessionID}
	switch e.Type {
	case chat.EventTurn:
		payload.Turn = e.Turn
	case chat.EventTyping:
		active := e.Active
		payload.Active = &active
	case chat.EventWarning:
		payload.Message = e.Message
	default:
		return
	}
	if err := sse.Event(string(e.Type), payload); err != nil {
		h.logger.Debug("sse write failed", zap.String("session", e.SessionID), zap.Error(err))
	}
}
