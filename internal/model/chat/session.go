package chat

import "github.com/zhouzirui/car-advisor/backend/internal/model/car"

// ProactiveStage describes where the current prediction is in its follow-up lifecycle.
type ProactiveStage string

const (
	StageNone    ProactiveStage = "none"
	StagePending ProactiveStage = "pending"
	StageFired   ProactiveStage = "fired"
)

// State is everything a session remembers between reactive passes.
type State struct {
	Transcript     []Turn          `json:"transcript"`
	Car            *car.Record     `json:"car,omitempty"`
	Prediction     *car.Prediction `json:"prediction,omitempty"`
	ProactiveFired bool            `json:"proactiveFired"`
}

// Clone returns a deep copy safe to hand to renderers.
func (s State) Clone() State {
	out := State{ProactiveFired: s.ProactiveFired}
	out.Transcript = append(make([]Turn, 0, len(s.Transcript)), s.Transcript...)
	if s.Car != nil {
		c := *s.Car
		out.Car = &c
	}
	if s.Prediction != nil {
		p := *s.Prediction
		out.Prediction = &p
	}
	return out
}

// ProactiveStage reports NONE before any prediction, PENDING while the follow-up
// for the current prediction has not been delivered, FIRED afterwards.
func (s State) ProactiveStage() ProactiveStage {
	switch {
	case s.Prediction == nil:
		return StageNone
	case s.ProactiveFired:
		return StageFired
	default:
		return StagePending
	}
}
