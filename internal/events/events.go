// Package events provides the engine's event bus. Engine components publish
// typed events; consumers (the WebSocket feed, tests, future UI bridges)
// subscribe without the engine depending on any presentation layer.
//
// Delivery is best-effort and non-blocking: a subscriber whose channel is full
// misses the event rather than stalling the publisher. The engine must never
// block on a slow consumer.
package events

import (
	"sync"
	"time"
)

// Type identifies what happened.
type Type string

const (
	SessionStarted      Type = "session.started"
	SessionEnded        Type = "session.ended"
	SessionCancelled    Type = "session.cancelled"
	MetricsRecorded     Type = "metrics.recorded"
	AnalysisCompleted   Type = "analysis.completed"
	ProgressLevelUp     Type = "progress.levelup"
	AchievementUnlocked Type = "achievement.unlocked"
)

// Event is one engine occurrence with an arbitrary JSON-encodable payload.
type Event struct {
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// subscriberBuf is the channel depth given to each subscriber.
const subscriberBuf = 16

// Bus is a fan-out registry of event subscribers. The zero value is not
// usable; construct with [NewBus]. Safe for concurrent use.
type Bus struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a new subscriber and returns its receive channel plus an
// unsubscribe function. The channel is closed on unsubscribe.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan Event, subscriberBuf)
	b.subs[id] = ch

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, unsubscribe
}

// Publish delivers ev to every subscriber without blocking. Subscribers with
// full buffers are skipped.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Emit is shorthand for publishing a stamped event.
func (b *Bus) Emit(t Type, now time.Time, payload any) {
	b.Publish(Event{Type: t, Timestamp: now, Payload: payload})
}
