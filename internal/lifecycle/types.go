package lifecycle

import "time"

// Status is the state of a request.
type Status string

const (
	StatusNew        Status = "NEW"
	StatusAssigned   Status = "ASSIGNED"
	StatusOnWay      Status = "ON_WAY"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Active reports whether a request in this status counts toward the
// one-active-request limit.
func (s Status) Active() bool {
	return !s.Terminal()
}

// Started reports whether the provider is already on the way or working.
func (s Status) Started() bool {
	return s == StatusOnWay || s == StatusInProgress
}

// ParseStatus validates a status name.
func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusNew, StatusAssigned, StatusOnWay, StatusInProgress, StatusCompleted, StatusCancelled:
		return st, true
	}
	return "", false
}

// ActiveStatuses lists the statuses that hold the one-active-request slot.
var ActiveStatuses = []Status{StatusNew, StatusAssigned, StatusOnWay, StatusInProgress}

// PriceMode decides how the final price is reached.
type PriceMode string

const (
	PriceFixed PriceMode = "FIXED"
	PriceBid   PriceMode = "BID"
)

// BidStatus is the state of a bid.
type BidStatus string

const (
	BidPending   BidStatus = "PENDING"
	BidAccepted  BidStatus = "ACCEPTED"
	BidRejected  BidStatus = "REJECTED"
	BidWithdrawn BidStatus = "WITHDRAWN"
)

// Party identifies a participant: the internal user id and the external
// messaging id used for notifications.
type Party struct {
	UserID     string `json:"user_id"`
	ExternalID int64  `json:"external_id,omitempty"`
}

// Request is a ride request or delivery order.
type Request struct {
	ID          string    `json:"id"`
	Domain      string    `json:"domain"`
	Requester   Party     `json:"requester"`
	Origin      string    `json:"origin,omitempty"`
	Destination string    `json:"destination,omitempty"`
	Title       string    `json:"title,omitempty"`
	Details     string    `json:"details,omitempty"`
	Comment     string    `json:"comment,omitempty"`
	PriceMode   PriceMode `json:"price_mode"`
	ClientPrice *int64    `json:"client_price,omitempty"`
	FinalPrice  *int64    `json:"final_price,omitempty"`
	Status      Status    `json:"status"`
	Provider    *Party    `json:"provider,omitempty"`
	ResourceID  *string   `json:"resource_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Bid is a provider's price offer on a BID-mode request.
type Bid struct {
	ID           string    `json:"id"`
	Domain       string    `json:"domain"`
	RequestID    string    `json:"request_id"`
	Provider     Party     `json:"provider"`
	OfferedPrice int64     `json:"offered_price"`
	Comment      string    `json:"comment,omitempty"`
	Status       BidStatus `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CreateInput is what a requester submits.
type CreateInput struct {
	Origin      string
	Destination string
	Title       string
	Details     string
	Comment     string
	PriceMode   PriceMode
	ClientPrice *int64
}

// Scope selects which of a party's requests to list.
type Scope string

const (
	ScopeActive  Scope = "active"
	ScopeHistory Scope = "history"
	ScopeAll     Scope = "all"
)

// Statuses returns the statuses a scope covers; nil means all.
func (s Scope) Statuses() []Status {
	switch s {
	case ScopeActive:
		return ActiveStatuses
	case ScopeHistory:
		return []Status{StatusCompleted, StatusCancelled}
	}
	return nil
}

// Filter narrows a request listing.
type Filter struct {
	RequesterID string
	ProviderID  string
	Statuses    []Status
	Limit       int
}
