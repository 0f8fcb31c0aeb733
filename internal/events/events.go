// Package events carries lifecycle events from the core to realtime
// subscribers and external sinks.
package events

import (
	"encoding/json"
	"time"
)

// Event is one state change announced after commit.
type Event struct {
	Domain string          `json:"domain"`
	Name   string          `json:"event"`
	Data   json.RawMessage `json:"data"`
	At     time.Time       `json:"at"`
}

// New marshals data into an Event. Marshal failures are programming errors.
func New(domain, name string, data any) Event {
	raw, err := json.Marshal(data)
	if err != nil {
		panic("events: marshal event data: " + err.Error())
	}
	return Event{Domain: domain, Name: name, Data: raw, At: time.Now().UTC()}
}

// Publisher delivers events fire-and-forget. Implementations must not block
// the caller on slow consumers and must swallow their own failures.
type Publisher interface {
	Publish(evt Event)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(evt Event)

func (f PublisherFunc) Publish(evt Event) { f(evt) }

// Multi publishes every event to each of its publishers in order.
type Multi []Publisher

func (m Multi) Publish(evt Event) {
	for _, p := range m {
		if p != nil {
			p.Publish(evt)
		}
	}
}

// Nop discards events.
var Nop Publisher = PublisherFunc(func(Event) {})
