package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventDecisionMade       EventType = "DECISION_MADE"
	EventTradeClosed        EventType = "TRADE_CLOSED"
	EventThresholdAdjusted  EventType = "THRESHOLD_ADJUSTED"
	EventThresholdReset     EventType = "THRESHOLD_RESET"
	EventBudgetViolation    EventType = "BUDGET_VIOLATION"
	EventEngineStarted      EventType = "ENGINE_STARTED"
	EventEngineStopped      EventType = "ENGINE_STOPPED"
	EventCycleCompleted     EventType = "CYCLE_COMPLETED"
	EventError              EventType = "ERROR"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber // Subscribers to all events
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event) // Run in goroutine to avoid blocking
		}
	}

	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishDecision publishes a finalized decision
func (eb *EventBus) PublishDecision(id, instrument, action, reason string, quality, confidence float64) {
	eb.Publish(Event{
		Type: EventDecisionMade,
		Data: map[string]interface{}{
			"id":         id,
			"instrument": instrument,
			"action":     action,
			"reason":     reason,
			"quality":    quality,
			"confidence": confidence,
		},
	})
}

// PublishTradeClosed publishes a completed trade outcome
func (eb *EventBus) PublishTradeClosed(instrumentClass string, win bool, profitFactor float64) {
	eb.Publish(Event{
		Type: EventTradeClosed,
		Data: map[string]interface{}{
			"instrument_class": instrumentClass,
			"win":              win,
			"profit_factor":    profitFactor,
		},
	})
}

// PublishThresholdAdjusted publishes an adaptive threshold change
func (eb *EventBus) PublishThresholdAdjusted(instrumentClass string, old, new, winRate float64) {
	eb.Publish(Event{
		Type: EventThresholdAdjusted,
		Data: map[string]interface{}{
			"instrument_class": instrumentClass,
			"old":              old,
			"new":              new,
			"win_rate":         winRate,
		},
	})
}

// PublishBudgetViolation publishes a compliance budget breach
func (eb *EventBus) PublishBudgetViolation(instrument, action, reason string) {
	eb.Publish(Event{
		Type: EventBudgetViolation,
		Data: map[string]interface{}{
			"instrument": instrument,
			"action":     action,
			"reason":     reason,
		},
	})
}
