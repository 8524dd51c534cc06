package chat

import (
	"time"

	"github.com/zhouzirui/car-advisor/backend/internal/model/car"
)

// EventType enumerates notifications pushed to live clients.
type EventType string

const (
	EventTurn       EventType = "turn"
	EventTyping     EventType = "typing"
	EventPrediction EventType = "prediction"
	EventWarning    EventType = "warning"
	EventError      EventType = "error"
)

// Event is published by a reactive pass while it runs.
type Event struct {
	Type       EventType       `json:"type"`
	SessionID  string          `json:"sessionId"`
	Turn       *Turn           `json:"turn,omitempty"`
	Prediction *car.Prediction `json:"prediction,omitempty"`
	Active     bool            `json:"active,omitempty"`
	Message    string          `json:"message,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}
