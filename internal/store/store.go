// Package store keeps a bounded in-memory journal of conversation events
// for diagnostics.
package store

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const maxEvents = 200

type Event struct {
	ID      string         `json:"id"`
	Type    string         `json:"type"`
	Ts      time.Time      `json:"ts"`
	Payload map[string]any `json:"payload,omitempty"`
}

type Journal struct {
	mu     sync.RWMutex
	events []Event
	max    int
}

func New() *Journal { return &Journal{max: maxEvents} }

// NewWithCap is New with a different cap, mainly for tests.
func NewWithCap(max int) *Journal {
	if max < 2 {
		max = 2
	}
	return &Journal{max: max}
}

func (j *Journal) Append(typ string, payload map[string]any) {
	j.AppendEvent(typ, payload)
}

func (j *Journal) AppendEvent(typ string, payload map[string]any) Event {
	evt := Event{ID: uuid.NewString(), Type: typ, Ts: time.Now().UTC(), Payload: payload}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, evt)
	// Cap total events to avoid unbounded growth
	if l := len(j.events); l > j.max {
		// Keep space for a single truncation warning so the total stays at max
		keep := j.max - 1
		dropped := l - keep
		j.events = append([]Event(nil), j.events[l-keep:]...)
		warn := Event{
			ID:      uuid.NewString(),
			Type:    "events_truncated",
			Ts:      time.Now().UTC(),
			Payload: map[string]any{"dropped": dropped, "kept": keep},
		}
		j.events = append(j.events, warn)
	}
	return evt
}

func (j *Journal) List() []Event {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]Event, len(j.events))
	copy(out, j.events)
	return out
}

func (j *Journal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.events)
}
