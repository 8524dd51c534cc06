package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/car-advisor/backend/internal/model/car"
	"github.com/zhouzirui/car-advisor/backend/internal/model/chat"
	"github.com/zhouzirui/car-advisor/backend/internal/service/ai"
)

const subscriberBuffer = 32

// Session is one user's advisor state plus the chat endpoint session bound to it.
type Session struct {
	ID        string
	CreatedAt time.Time

	// pass admits a single reactive pass at a time.
	pass chan struct{}

	mu    sync.RWMutex
	state chat.State
	conv  ai.Conversation
	seen  time.Time

	subMu   sync.Mutex
	subs    map[uint64]chan chat.Event
	nextSub uint64
	closed  bool
}

func newSession(id string, now time.Time) *Session {
	return &Session{
		ID:        id,
		CreatedAt: now,
		pass:      make(chan struct{}, 1),
		seen:      now,
		subs:      make(map[uint64]chan chat.Event),
	}
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.seen = now
	s.mu.Unlock()
}

func (s *Session) lastSeen() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seen
}

// Snapshot returns a copy of the current state. It does not wait for a running
// pass, so a user turn is visible while its reply is still pending.
func (s *Session) Snapshot() chat.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// HasConversation reports whether a chat endpoint session is bound.
func (s *Session) HasConversation() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conv != nil
}

// Subscribe registers a listener for events published by passes. The returned
// cancel func must be called once the listener is done.
func (s *Session) Subscribe() (<-chan chat.Event, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	ch := make(chan chat.Event, subscriberBuffer)
	if s.closed {
		close(ch)
		return ch, func() {}
	}

	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			if c, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(c)
			}
		})
	}
}

func (s *Session) publish(e chat.Event) {
	e.SessionID = s.ID
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- e:
		default:
			// slow listener, drop
		}
	}
}

func (s *Session) closeSubscribers() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}

// BeginPass waits for exclusive access to the session. Every mutation happens
// through the returned Pass, which must be ended.
func (s *Session) BeginPass(ctx context.Context) (*Pass, error) {
	select {
	case s.pass <- struct{}{}:
		s.touch(time.Now())
		return &Pass{sess: s}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Pass is one reactive pass over a session: a single user event plus the
// follow-up work it triggers.
type Pass struct {
	sess             *Session
	messageProcessed bool
	ended            bool
}

// End releases the session. Calling End twice is a no-op.
func (p *Pass) End() {
	if p.ended {
		return
	}
	p.ended = true
	<-p.sess.pass
}

// SessionID returns the id of the session being mutated.
func (p *Pass) SessionID() string {
	return p.sess.ID
}

// State returns a copy of the state as of now.
func (p *Pass) State() chat.State {
	return p.sess.Snapshot()
}

// AppendTurn adds a turn to the transcript and notifies listeners.
func (p *Pass) AppendTurn(role chat.Role, content string, proactive bool) chat.Turn {
	turn := chat.Turn{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Proactive: proactive,
		CreatedAt: time.Now().UTC(),
	}

	p.sess.mu.Lock()
	p.sess.state.Transcript = append(p.sess.state.Transcript, turn)
	p.sess.mu.Unlock()

	p.sess.publish(chat.Event{Type: chat.EventTurn, Turn: &turn})
	return turn
}

// ReplacePrediction installs a new car and prediction and re-arms the proactive follow-up.
func (p *Pass) ReplacePrediction(record car.Record, prediction car.Prediction) {
	p.sess.mu.Lock()
	p.sess.state.Car = &record
	p.sess.state.Prediction = &prediction
	p.sess.state.ProactiveFired = false
	p.sess.mu.Unlock()

	p.sess.publish(chat.Event{Type: chat.EventPrediction, Prediction: &prediction})
}

// MarkProactiveFired records that the follow-up for the current prediction was delivered.
func (p *Pass) MarkProactiveFired() {
	p.sess.mu.Lock()
	p.sess.state.ProactiveFired = true
	p.sess.mu.Unlock()
}

// Conversation returns the bound chat endpoint session, if any.
func (p *Pass) Conversation() ai.Conversation {
	p.sess.mu.RLock()
	defer p.sess.mu.RUnlock()
	return p.sess.conv
}

// SetConversation binds a chat endpoint session.
func (p *Pass) SetConversation(conv ai.Conversation) {
	p.sess.mu.Lock()
	p.sess.conv = conv
	p.sess.mu.Unlock()
}

// MarkMessageProcessed flags that this pass handled a user message.
func (p *Pass) MarkMessageProcessed() {
	p.messageProcessed = true
}

// MessageProcessed reports whether this pass handled a user message.
func (p *Pass) MessageProcessed() bool {
	return p.messageProcessed
}

// Publish forwards a transient event (typing, warnings) to listeners.
func (p *Pass) Publish(e chat.Event) {
	p.sess.publish(e)
}
