// Package lifecycle implements the request/bid lifecycle shared by every
// vertical: creation, bidding, winner selection and the forward-only status
// machine.
package lifecycle

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sudo-init-do/errandhub/internal/alerts"
	"github.com/sudo-init-do/errandhub/internal/apperr"
	"github.com/sudo-init-do/errandhub/internal/events"
)

// Gate is the provider eligibility check the engine consults.
type Gate interface {
	EnsureAllowed(ctx context.Context, userID string, needActive bool) error
	// Eligible is the read-only form of EnsureAllowed.
	Eligible(ctx context.Context, userID string, needActive bool) (bool, error)
	// ResourceID returns the provider's resource, nil when the vertical
	// has none.
	ResourceID(ctx context.Context, userID string) (*string, error)
	// ActiveContacts lists external ids of eligible active providers,
	// excluding excludeUserID.
	ActiveContacts(ctx context.Context, excludeUserID string) ([]int64, error)
}

const (
	defaultEmitTimeout = 10 * time.Second
	maxTextLen         = 500
	defaultFeedLimit   = 50
)

// Engine runs the lifecycle for one vertical.
type Engine struct {
	desc      Descriptor
	store     Store
	gate      Gate
	publisher events.Publisher
	notifier  alerts.Notifier
	logger    *slog.Logger

	emitTimeout time.Duration
	emitting    sync.WaitGroup
	now         func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithPublisher sets the realtime publisher.
func WithPublisher(p events.Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithNotifier sets the notification dispatcher.
func WithNotifier(n alerts.Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithEmitTimeout bounds how long post-commit emission may take.
func WithEmitTimeout(d time.Duration) Option {
	return func(e *Engine) { e.emitTimeout = d }
}

// New creates an engine for desc.
func New(desc Descriptor, store Store, gate Gate, opts ...Option) *Engine {
	e := &Engine{
		desc:        desc,
		store:       store,
		gate:        gate,
		publisher:   events.Nop,
		logger:      slog.Default(),
		emitTimeout: defaultEmitTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.notifier == nil {
		e.notifier = alerts.LogNotifier{Logger: e.logger}
	}
	return e
}

// Descriptor returns the vertical this engine runs.
func (e *Engine) Descriptor() Descriptor { return e.desc }

// Wait blocks until all in-flight emissions have finished.
func (e *Engine) Wait() { e.emitting.Wait() }

// CreateRequest opens a new request for requester.
func (e *Engine) CreateRequest(ctx context.Context, requester Party, in CreateInput) (*Request, error) {
	if requester.UserID == "" {
		return nil, apperr.Permission("unknown requester")
	}

	r := &Request{
		ID:          uuid.NewString(),
		Domain:      e.desc.Name,
		Requester:   requester,
		Origin:      clean(in.Origin),
		Destination: clean(in.Destination),
		Title:       clean(in.Title),
		Details:     clean(in.Details),
		Comment:     clean(in.Comment),
		PriceMode:   PriceMode(strings.ToUpper(string(in.PriceMode))),
		Status:      StatusNew,
	}

	for _, f := range e.desc.RequiredFields {
		var v string
		switch f {
		case FieldOrigin:
			v = r.Origin
		case FieldDestination:
			v = r.Destination
		case FieldTitle:
			v = r.Title
		}
		if v == "" {
			return nil, apperr.Validation("%s is required", f)
		}
	}

	switch r.PriceMode {
	case PriceFixed:
		if in.ClientPrice == nil || *in.ClientPrice <= 0 {
			return nil, apperr.Validation("fixed price must be positive")
		}
		p := *in.ClientPrice
		r.ClientPrice = &p
	case PriceBid:
		// a client price is meaningless in bidding mode
	default:
		return nil, apperr.Validation("price_mode must be FIXED or BID")
	}

	now := e.now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now

	if err := e.store.CreateRequest(ctx, r); err != nil {
		return nil, err
	}

	e.logger.Info("request created", "domain", e.desc.Name, "request_id", r.ID, "price_mode", r.PriceMode)
	e.emit(ctx, emission{
		kind:    EventRequestCreated,
		request: r,
		text:    e.desc.createdText(r),
		audience: func(ctx context.Context) ([]int64, error) {
			return e.gate.ActiveContacts(ctx, requester.UserID)
		},
	})
	return r, nil
}

// PlaceBid records provider's offer, replacing the price of an existing
// pending offer from the same provider.
func (e *Engine) PlaceBid(ctx context.Context, provider Party, requestID string, price int64, comment string) (*Bid, error) {
	if err := e.gate.EnsureAllowed(ctx, provider.UserID, true); err != nil {
		return nil, err
	}

	r, err := e.store.GetRequest(ctx, e.desc.Name, requestID)
	if err != nil {
		return nil, err
	}
	if r.PriceMode != PriceBid {
		return nil, apperr.Validation("request does not accept offers")
	}
	if price <= 0 {
		return nil, apperr.Validation("offered price must be positive")
	}
	if r.Requester.UserID == provider.UserID {
		return nil, apperr.Permission("cannot bid on your own request")
	}
	if r.Status != StatusNew {
		return nil, apperr.Conflict("request is no longer open")
	}

	now := e.now().UTC()
	bid, err := e.store.UpsertBid(ctx, &Bid{
		ID:           uuid.NewString(),
		Domain:       e.desc.Name,
		RequestID:    r.ID,
		Provider:     provider,
		OfferedPrice: price,
		Comment:      clean(comment),
		Status:       BidPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("bid placed", "domain", e.desc.Name, "request_id", r.ID, "bid_id", bid.ID, "price", price)
	e.emit(ctx, emission{
		kind:     EventBidCreated,
		request:  r,
		bid:      bid,
		text:     e.desc.bidText(r, bid),
		audience: recipients(r.Requester.ExternalID),
	})
	return bid, nil
}

// ListBids returns the pending offers on a request, newest first. Only the
// requester may see them.
func (e *Engine) ListBids(ctx context.Context, requester Party, requestID string) ([]Bid, error) {
	r, err := e.store.GetRequest(ctx, e.desc.Name, requestID)
	if err != nil {
		return nil, err
	}
	if r.Requester.UserID != requester.UserID {
		return nil, apperr.Permission("only the requester can see offers")
	}
	return e.store.ListBids(ctx, e.desc.Name, requestID, BidPending)
}

// AcceptBid picks the winning offer. Exactly one of several concurrent
// accepts on the same request succeeds.
func (e *Engine) AcceptBid(ctx context.Context, requester Party, bidID string) (*Request, error) {
	bid, err := e.store.GetBid(ctx, e.desc.Name, bidID)
	if err != nil {
		return nil, err
	}
	r, err := e.store.GetRequest(ctx, e.desc.Name, bid.RequestID)
	if err != nil {
		return nil, err
	}
	if r.Requester.UserID != requester.UserID {
		return nil, apperr.Permission("only the requester can accept offers")
	}
	if r.Status != StatusNew {
		return nil, apperr.Conflict("request is no longer open")
	}
	if bid.Status != BidPending {
		return nil, apperr.Conflict("offer is no longer pending")
	}

	resourceID, err := e.gate.ResourceID(ctx, bid.Provider.UserID)
	if err != nil {
		return nil, err
	}

	assigned, err := e.store.AcceptBid(ctx, e.desc.Name, bid.ID, resourceID)
	if err != nil {
		return nil, err
	}

	e.logger.Info("bid accepted", "domain", e.desc.Name, "request_id", assigned.ID, "bid_id", bid.ID)
	e.emit(ctx, emission{
		kind:     EventRequestAssigned,
		request:  assigned,
		bid:      bid,
		text:     e.desc.assignedText(assigned, true),
		audience: recipients(bid.Provider.ExternalID),
	})
	return assigned, nil
}

// ClaimFixed takes a fixed-price request at its client price. Exactly one of
// several concurrent claims succeeds.
func (e *Engine) ClaimFixed(ctx context.Context, provider Party, requestID string) (*Request, error) {
	if err := e.gate.EnsureAllowed(ctx, provider.UserID, true); err != nil {
		return nil, err
	}

	r, err := e.store.GetRequest(ctx, e.desc.Name, requestID)
	if err != nil {
		return nil, err
	}
	if r.Status != StatusNew {
		return nil, apperr.Conflict("request is no longer open")
	}
	if r.PriceMode != PriceFixed || r.ClientPrice == nil || *r.ClientPrice <= 0 {
		return nil, apperr.Validation("request has no fixed price")
	}
	if r.Requester.UserID == provider.UserID {
		return nil, apperr.Permission("cannot take your own request")
	}

	resourceID, err := e.gate.ResourceID(ctx, provider.UserID)
	if err != nil {
		return nil, err
	}

	assigned, err := e.store.ClaimFixed(ctx, e.desc.Name, r.ID, provider, resourceID)
	if err != nil {
		return nil, err
	}

	e.logger.Info("request claimed", "domain", e.desc.Name, "request_id", r.ID, "provider_id", provider.UserID)
	e.emit(ctx, emission{
		kind:     EventRequestAssigned,
		request:  assigned,
		text:     e.desc.assignedText(assigned, false),
		audience: recipients(assigned.Requester.ExternalID),
	})
	return assigned, nil
}

// AdvanceStatus moves an assigned request forward. Only the assigned
// provider may do so, and only along the transition table.
func (e *Engine) AdvanceStatus(ctx context.Context, provider Party, requestID string, target Status) (*Request, error) {
	if _, ok := ParseStatus(string(target)); !ok {
		return nil, apperr.Validation("unknown status %q", target)
	}

	r, err := e.store.GetRequest(ctx, e.desc.Name, requestID)
	if err != nil {
		return nil, err
	}
	illegal := target == StatusAssigned || !e.desc.Allowed(r.Status, target)
	// an unassigned request has no owner to check against, so the edge decides
	if r.Provider == nil && illegal {
		return nil, apperr.Conflict("illegal transition %s -> %s", r.Status, target)
	}
	if r.Provider == nil || r.Provider.UserID != provider.UserID {
		return nil, apperr.Permission("only the assigned %s can update this request", e.desc.ProviderNoun)
	}
	if illegal {
		return nil, apperr.Conflict("illegal transition %s -> %s", r.Status, target)
	}
	if target == StatusCancelled && !e.desc.ProviderMayCancel {
		return nil, apperr.Permission("a %s cannot cancel a %s", e.desc.ProviderNoun, e.desc.RequestNoun)
	}

	updated, err := e.store.UpdateStatus(ctx, e.desc.Name, r.ID, r.Status, target)
	if err != nil {
		return nil, err
	}

	e.logger.Info("status advanced", "domain", e.desc.Name, "request_id", r.ID, "from", r.Status, "to", target)
	e.emit(ctx, emission{
		kind:     EventRequestUpdated,
		request:  updated,
		text:     e.desc.updatedText(updated),
		audience: recipients(updated.Requester.ExternalID),
	})
	return updated, nil
}

// Cancel withdraws a request on behalf of its requester.
func (e *Engine) Cancel(ctx context.Context, requester Party, requestID string) (*Request, error) {
	r, err := e.store.GetRequest(ctx, e.desc.Name, requestID)
	if err != nil {
		return nil, err
	}
	if r.Requester.UserID != requester.UserID {
		return nil, apperr.Permission("only the requester can cancel")
	}
	if r.Status.Terminal() {
		return nil, apperr.Conflict("request is already %s", r.Status)
	}
	if r.Status.Started() && !e.desc.CancelAfterStart {
		return nil, apperr.Conflict("cannot cancel once the %s is %s", e.desc.ProviderNoun, r.Status)
	}

	updated, err := e.store.UpdateStatus(ctx, e.desc.Name, r.ID, r.Status, StatusCancelled)
	if err != nil {
		return nil, err
	}

	e.logger.Info("request cancelled", "domain", e.desc.Name, "request_id", r.ID, "from", r.Status)
	var to []int64
	if updated.Provider != nil {
		to = []int64{updated.Provider.ExternalID}
	}
	e.emit(ctx, emission{
		kind:     EventRequestUpdated,
		request:  updated,
		text:     e.desc.updatedText(updated),
		audience: recipients(to...),
	})
	return updated, nil
}

// clean trims and bounds free-text input.
func clean(s string) string {
	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > maxTextLen {
		s = string(r[:maxTextLen])
	}
	return s
}
