package services

import (
	"log"
	"sync"
	"time"
)

// Typed progression events. Subscribers (SSE streams, the notification
// relay worker) receive them explicitly instead of relying on ambient
// broadcast.

type EventType string

const (
	EventAchievementEarned  EventType = "achievement_earned"
	EventLevelUp            EventType = "level_up"
	EventChallengeCompleted EventType = "challenge_completed"
)

type Event struct {
	Type       EventType `json:"type"`
	UserID     string    `json:"user_id"`
	Name       string    `json:"name,omitempty"` // achievement name / challenge slug
	Title      string    `json:"title,omitempty"`
	Level      int       `json:"level,omitempty"`
	XPAwarded  int64     `json:"xp_awarded,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EventBus is a minimal in-process fan-out. Publish never blocks the
// request path: a subscriber with a full buffer just misses the event.
type EventBus struct {
	mu   sync.RWMutex
	subs []chan Event
}

func NewEventBus() *EventBus {
	return &EventBus{}
}

// Subscribe returns a buffered channel that receives every future event.
func (b *EventBus) Subscribe(buffer int) <-chan Event {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch
}

func (b *EventBus) Publish(ev Event) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			log.Printf("⚠️ [EVENTS] Subscriber buffer full, dropping %s for user %s", ev.Type, ev.UserID)
		}
	}
}
