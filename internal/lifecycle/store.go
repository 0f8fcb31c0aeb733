package lifecycle

import "context"

// Store persists requests and bids. Every mutating method is a single
// conditional write: when its precondition no longer holds it returns an
// apperr Conflict and changes nothing.
type Store interface {
	// CreateRequest inserts r. It fails with Conflict when the requester
	// already holds an active request in r.Domain.
	CreateRequest(ctx context.Context, r *Request) error

	GetRequest(ctx context.Context, domain, id string) (*Request, error)
	ListRequests(ctx context.Context, domain string, f Filter) ([]Request, error)

	// UpsertBid inserts b, or updates price and comment of the provider's
	// existing PENDING bid on the same request. Fails with Conflict unless
	// the request is still NEW.
	UpsertBid(ctx context.Context, b *Bid) (*Bid, error)

	GetBid(ctx context.Context, domain, id string) (*Bid, error)
	ListBids(ctx context.Context, domain, requestID string, status BidStatus) ([]Bid, error)

	// AcceptBid marks the bid ACCEPTED, rejects the request's other PENDING
	// bids and assigns the request at the bid price, all at once, only if
	// the request is NEW and the bid PENDING.
	AcceptBid(ctx context.Context, domain, bidID string, resourceID *string) (*Request, error)

	// ClaimFixed assigns a NEW fixed-price request to provider at its
	// client price.
	ClaimFixed(ctx context.Context, domain, requestID string, provider Party, resourceID *string) (*Request, error)

	// UpdateStatus moves the request from -> to only if it is still in from.
	UpdateStatus(ctx context.Context, domain, requestID string, from, to Status) (*Request, error)

	// CountByStatus returns request counts per domain and status.
	CountByStatus(ctx context.Context) (map[string]map[Status]int, error)
}
