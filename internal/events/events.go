package events

import (
	"sync"
	"time"

	"github.com/AIoTwin-Adaptive-FL-Orch/relay-router/internal/model"
)

// Event represents a generic event structure
type Event struct {
	Type      string
	Timestamp time.Time
	Data      interface{}
}

// TelemetryEvent carries one reading pushed by a relay node
type TelemetryEvent struct {
	NodeId    string
	Telemetry model.Telemetry
	Source    string
}

// WeightsProposalExecutedEvent is raised when governance finalizes a routing weight change
type WeightsProposalExecutedEvent struct {
	ProposalId string
	Weights    map[string]float64
}

// EventBus represents the event bus that handles event subscription and dispatching
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[string][]chan<- Event
}

// NewEventBus creates a new instance of the event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[string][]chan<- Event),
	}
}

// Subscribe adds a new subscriber for a given event type
func (eb *EventBus) Subscribe(eventType string, subscriber chan<- Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// Unsubscribe removes a subscriber from a given event type
func (eb *EventBus) Unsubscribe(eventType string, subscriber chan<- Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	subscribers := eb.subscribers[eventType]
	for i, s := range subscribers {
		if s == subscriber {
			eb.subscribers[eventType] = append(subscribers[:i:i], subscribers[i+1:]...)
			return
		}
	}
}

// Publish sends an event to all subscribers of a given event type. Subscribers with a full
// buffer are skipped; the number of skipped deliveries is returned.
func (eb *EventBus) Publish(event Event) int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	dropped := 0
	for _, subscriber := range eb.subscribers[event.Type] {
		select {
		case subscriber <- event:
		default:
			dropped++
		}
	}
	return dropped
}
