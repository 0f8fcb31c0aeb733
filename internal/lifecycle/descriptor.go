package lifecycle

import (
	"fmt"
	"strings"
)

// EventKind names a lifecycle event independent of the vertical.
type EventKind string

const (
	EventRequestCreated  EventKind = "request_created"
	EventBidCreated      EventKind = "bid_created"
	EventRequestAssigned EventKind = "request_assigned"
	EventRequestUpdated  EventKind = "request_updated"
)

// Field names a request field a vertical may require.
type Field string

const (
	FieldOrigin      Field = "origin"
	FieldDestination Field = "destination"
	FieldTitle       Field = "title"
)

// Descriptor parametrizes the engine for one vertical.
type Descriptor struct {
	Name           string
	RequestNoun    string // "ride", "delivery"
	ProviderNoun   string // "driver", "courier"
	RequiredFields []Field

	// RequiresResource makes provider eligibility depend on a verified
	// resource and records that resource on assignment.
	RequiresResource bool

	// CancelAfterStart lets the requester cancel while ON_WAY or IN_PROGRESS.
	CancelAfterStart bool

	// ProviderMayCancel lets the assigned provider move the request to
	// CANCELLED through a status update.
	ProviderMayCancel bool

	Transitions map[Status][]Status

	// Events maps each kind to the event name published on the bus.
	Events map[EventKind]string
}

// DefaultTransitions is the forward-only status table shared by both verticals.
// ASSIGNED is only entered through bid acceptance or a fixed-price claim.
func DefaultTransitions() map[Status][]Status {
	return map[Status][]Status{
		StatusNew:        {StatusAssigned, StatusCancelled},
		StatusAssigned:   {StatusOnWay, StatusInProgress, StatusCancelled},
		StatusOnWay:      {StatusInProgress, StatusCancelled},
		StatusInProgress: {StatusCompleted, StatusCancelled},
		StatusCompleted:  nil,
		StatusCancelled:  nil,
	}
}

// Taxi describes ride requests.
func Taxi() Descriptor {
	return Descriptor{
		Name:              "taxi",
		RequestNoun:       "ride",
		ProviderNoun:      "driver",
		RequiredFields:    []Field{FieldOrigin, FieldDestination},
		RequiresResource:  true,
		CancelAfterStart:  false,
		ProviderMayCancel: false,
		Transitions:       DefaultTransitions(),
		Events: map[EventKind]string{
			EventRequestCreated:  "trip_created",
			EventBidCreated:      "bid_created",
			EventRequestAssigned: "trip_assigned",
			EventRequestUpdated:  "trip_updated",
		},
	}
}

// Delivery describes delivery orders.
func Delivery() Descriptor {
	return Descriptor{
		Name:              "delivery",
		RequestNoun:       "delivery",
		ProviderNoun:      "courier",
		RequiredFields:    []Field{FieldTitle, FieldDestination},
		RequiresResource:  false,
		CancelAfterStart:  true,
		ProviderMayCancel: true,
		Transitions:       DefaultTransitions(),
		Events: map[EventKind]string{
			EventRequestCreated:  "delivery_order_created",
			EventBidCreated:      "delivery_bid_created",
			EventRequestAssigned: "delivery_order_assigned",
			EventRequestUpdated:  "delivery_order_updated",
		},
	}
}

// Allowed reports whether from -> to is an edge of the transition table.
func (d Descriptor) Allowed(from, to Status) bool {
	for _, s := range d.Transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// EventName returns the published name for kind.
func (d Descriptor) EventName(kind EventKind) string {
	if name, ok := d.Events[kind]; ok {
		return name
	}
	return string(kind)
}

func (d Descriptor) requires(f Field) bool {
	for _, r := range d.RequiredFields {
		if r == f {
			return true
		}
	}
	return false
}

// Notification texts.

func (d Descriptor) createdText(r *Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "New %s request\n", d.RequestNoun)
	if r.Title != "" {
		fmt.Fprintf(&b, "%s\n", r.Title)
	}
	if r.Origin != "" {
		fmt.Fprintf(&b, "From: %s\n", r.Origin)
	}
	if r.Destination != "" {
		fmt.Fprintf(&b, "To: %s\n", r.Destination)
	}
	if r.PriceMode == PriceFixed && r.ClientPrice != nil {
		fmt.Fprintf(&b, "Price: %d\n", *r.ClientPrice)
	} else {
		b.WriteString("Price: open for offers\n")
	}
	b.WriteString("Open the mini app to respond.")
	return b.String()
}

func (d Descriptor) bidText(r *Request, bid *Bid) string {
	return fmt.Sprintf("New offer on your %s request: %d\nOpen the mini app to choose a %s.",
		d.RequestNoun, bid.OfferedPrice, d.ProviderNoun)
}

func (d Descriptor) assignedText(r *Request, byRequester bool) string {
	price := int64(0)
	if r.FinalPrice != nil {
		price = *r.FinalPrice
	}
	if byRequester {
		return fmt.Sprintf("Your offer was accepted. %s request %s, price %d.",
			capitalize(d.RequestNoun), shortID(r.ID), price)
	}
	return fmt.Sprintf("A %s took your %s request, price %d.", d.ProviderNoun, d.RequestNoun, price)
}

func (d Descriptor) updatedText(r *Request) string {
	return fmt.Sprintf("%s request %s is now %s.", capitalize(d.RequestNoun), shortID(r.ID), r.Status)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
