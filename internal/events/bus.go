// Package events provides event management functionality.
package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventType represents different event types
type EventType string

const (
	EpisodeStarted   EventType = "EPISODE_STARTED"
	DecisionRecorded EventType = "DECISION_RECORDED"
	EpisodeClosed    EventType = "EPISODE_CLOSED"
	CycleCompleted   EventType = "CYCLE_COMPLETED"
	BeliefsUpdated   EventType = "BELIEFS_UPDATED"
	RiskTriggered    EventType = "RISK_TRIGGERED"
	ErrorOccurred    EventType = "ERROR_OCCURRED"
)

// Event represents a system event with typed data
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Module    string    `json:"module"`
	Data      EventData `json:"data"`
}

// Handler is a callback invoked for each published event
type Handler func(event *Event)

// Bus is a simple in-process publish/subscribe event bus.
// Handlers run synchronously on the publisher's goroutine; anything
// slow (network, disk) must hand off to its own goroutine.
type Bus struct {
	mu       sync.RWMutex
	handlers map[int]Handler
	nextID   int
	log      zerolog.Logger
}

// NewBus creates a new event bus
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		handlers: make(map[int]Handler),
		log:      log.With().Str("component", "event_bus").Logger(),
	}
}

// SubscribeAll registers a handler for every event type and returns a
// subscription id for Unsubscribe. Long-lived subscribers (services)
// can discard the id.
func (b *Bus) SubscribeAll(handler Handler) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = handler
	return id
}

// Unsubscribe removes a previously registered handler
func (b *Bus) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, id)
}

// Publish emits an event to all subscribers
func (b *Bus) Publish(module string, data EventData) {
	event := &Event{
		Type:      data.EventType(),
		Timestamp: time.Now().UTC(),
		Module:    module,
		Data:      data,
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	b.log.Debug().
		Str("event_type", string(event.Type)).
		Str("module", module).
		Msg("Event published")

	for _, h := range handlers {
		h(event)
	}
}
