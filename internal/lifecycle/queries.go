package lifecycle

import (
	"context"

	"github.com/sudo-init-do/errandhub/internal/apperr"
)

// Get returns a request visible to caller: its requester, its assigned
// provider, or an eligible provider while it is still open.
func (e *Engine) Get(ctx context.Context, caller Party, id string) (*Request, error) {
	r, err := e.store.GetRequest(ctx, e.desc.Name, id)
	if err != nil {
		return nil, err
	}
	if r.Requester.UserID == caller.UserID {
		return r, nil
	}
	if r.Provider != nil && r.Provider.UserID == caller.UserID {
		return r, nil
	}
	if r.Status == StatusNew {
		ok, err := e.gate.Eligible(ctx, caller.UserID, true)
		if err != nil {
			return nil, err
		}
		if ok {
			return r, nil
		}
	}
	return nil, apperr.NotFound("request not found")
}

// ListForRequester returns the requester's own requests, newest first.
func (e *Engine) ListForRequester(ctx context.Context, requester Party, scope Scope, limit int) ([]Request, error) {
	return e.store.ListRequests(ctx, e.desc.Name, Filter{
		RequesterID: requester.UserID,
		Statuses:    scope.Statuses(),
		Limit:       limit,
	})
}

// ListForProvider returns requests assigned to provider, newest first. It is
// not gated: a deactivated provider still sees the work already taken.
func (e *Engine) ListForProvider(ctx context.Context, provider Party, scope Scope, limit int) ([]Request, error) {
	return e.store.ListRequests(ctx, e.desc.Name, Filter{
		ProviderID: provider.UserID,
		Statuses:   scope.Statuses(),
		Limit:      limit,
	})
}

// OpenFeed returns NEW requests for an active provider, excluding the
// provider's own, newest first.
func (e *Engine) OpenFeed(ctx context.Context, provider Party, limit int) ([]Request, error) {
	if err := e.gate.EnsureAllowed(ctx, provider.UserID, true); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > defaultFeedLimit {
		limit = defaultFeedLimit
	}
	list, err := e.store.ListRequests(ctx, e.desc.Name, Filter{
		Statuses: []Status{StatusNew},
		Limit:    limit,
	})
	if err != nil {
		return nil, err
	}
	out := list[:0]
	for _, r := range list {
		if r.Requester.UserID != provider.UserID {
			out = append(out, r)
		}
	}
	return out, nil
}

// AssignedProvider returns the request and its provider for the requester.
// NotFound when nobody has taken it yet.
func (e *Engine) AssignedProvider(ctx context.Context, requester Party, id string) (*Request, error) {
	r, err := e.store.GetRequest(ctx, e.desc.Name, id)
	if err != nil {
		return nil, err
	}
	if r.Requester.UserID != requester.UserID {
		return nil, apperr.Permission("only the requester can view the %s", e.desc.ProviderNoun)
	}
	if r.Provider == nil {
		return nil, apperr.NotFound("no %s assigned yet", e.desc.ProviderNoun)
	}
	return r, nil
}
