// Package memory is an in-process store guarded by a single mutex. Every
// conditional write runs entirely under the lock.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sudo-init-do/errandhub/internal/apperr"
	"github.com/sudo-init-do/errandhub/internal/eligibility"
	"github.com/sudo-init-do/errandhub/internal/lifecycle"
	"github.com/sudo-init-do/errandhub/internal/user"
)

// Compile-time interface checks.
var (
	_ lifecycle.Store   = (*Store)(nil)
	_ eligibility.Store = (*Store)(nil)
	_ user.Store        = (*Store)(nil)
)

// Store keeps everything in maps.
type Store struct {
	mu sync.Mutex

	requests  map[string]*lifecycle.Request
	bids      map[string]*lifecycle.Bid
	profiles  map[string]*eligibility.Profile
	resources map[string]*eligibility.Resource // key: domain/user
	users     map[string]*user.User
	byExtID   map[int64]string

	now func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		requests:  make(map[string]*lifecycle.Request),
		bids:      make(map[string]*lifecycle.Bid),
		profiles:  make(map[string]*eligibility.Profile),
		resources: make(map[string]*eligibility.Resource),
		users:     make(map[string]*user.User),
		byExtID:   make(map[int64]string),
		now:       time.Now,
	}
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() error { return nil }

func (s *Store) CreateRequest(_ context.Context, r *lifecycle.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.requests {
		if existing.Domain == r.Domain && existing.Requester.UserID == r.Requester.UserID && existing.Status.Active() {
			return apperr.Conflict("you already have an active request")
		}
	}
	s.requests[r.ID] = cloneRequest(r)
	return nil
}

func (s *Store) GetRequest(_ context.Context, domain, id string) (*lifecycle.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.request(domain, id)
	if err != nil {
		return nil, err
	}
	return cloneRequest(r), nil
}

func (s *Store) ListRequests(_ context.Context, domain string, f lifecycle.Filter) ([]lifecycle.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []lifecycle.Request
	for _, r := range s.requests {
		if r.Domain != domain {
			continue
		}
		if f.RequesterID != "" && r.Requester.UserID != f.RequesterID {
			continue
		}
		if f.ProviderID != "" && (r.Provider == nil || r.Provider.UserID != f.ProviderID) {
			continue
		}
		if len(f.Statuses) > 0 && !hasStatus(f.Statuses, r.Status) {
			continue
		}
		out = append(out, *cloneRequest(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) UpsertBid(_ context.Context, b *lifecycle.Bid) (*lifecycle.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.request(b.Domain, b.RequestID)
	if err != nil {
		return nil, err
	}
	if r.Status != lifecycle.StatusNew {
		return nil, apperr.Conflict("request is no longer open")
	}

	for _, existing := range s.bids {
		if existing.RequestID == b.RequestID && existing.Provider.UserID == b.Provider.UserID && existing.Status == lifecycle.BidPending {
			existing.OfferedPrice = b.OfferedPrice
			existing.Comment = b.Comment
			existing.UpdatedAt = b.UpdatedAt
			cp := *existing
			return &cp, nil
		}
	}
	cp := *b
	s.bids[b.ID] = &cp
	out := cp
	return &out, nil
}

func (s *Store) GetBid(_ context.Context, domain, id string) (*lifecycle.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bids[id]
	if !ok || b.Domain != domain {
		return nil, apperr.NotFound("offer not found")
	}
	cp := *b
	return &cp, nil
}

func (s *Store) ListBids(_ context.Context, domain, requestID string, status lifecycle.BidStatus) ([]lifecycle.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []lifecycle.Bid
	for _, b := range s.bids {
		if b.Domain == domain && b.RequestID == requestID && (status == "" || b.Status == status) {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *Store) AcceptBid(_ context.Context, domain, bidID string, resourceID *string) (*lifecycle.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bids[bidID]
	if !ok || b.Domain != domain {
		return nil, apperr.NotFound("offer not found")
	}
	r, err := s.request(domain, b.RequestID)
	if err != nil {
		return nil, err
	}
	if r.Status != lifecycle.StatusNew {
		return nil, apperr.Conflict("request is no longer open")
	}
	if b.Status != lifecycle.BidPending {
		return nil, apperr.Conflict("offer is no longer pending")
	}

	now := s.now().UTC()
	for _, other := range s.bids {
		if other.RequestID == r.ID && other.ID != b.ID && other.Status == lifecycle.BidPending {
			other.Status = lifecycle.BidRejected
			other.UpdatedAt = now
		}
	}
	b.Status = lifecycle.BidAccepted
	b.UpdatedAt = now

	price := b.OfferedPrice
	provider := b.Provider
	r.Status = lifecycle.StatusAssigned
	r.FinalPrice = &price
	r.Provider = &provider
	r.ResourceID = cloneString(resourceID)
	r.UpdatedAt = now
	return cloneRequest(r), nil
}

func (s *Store) ClaimFixed(_ context.Context, domain, requestID string, provider lifecycle.Party, resourceID *string) (*lifecycle.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.request(domain, requestID)
	if err != nil {
		return nil, err
	}
	if r.Status != lifecycle.StatusNew {
		return nil, apperr.Conflict("request is no longer open")
	}
	if r.PriceMode != lifecycle.PriceFixed || r.ClientPrice == nil {
		return nil, apperr.Validation("request has no fixed price")
	}

	price := *r.ClientPrice
	p := provider
	r.Status = lifecycle.StatusAssigned
	r.FinalPrice = &price
	r.Provider = &p
	r.ResourceID = cloneString(resourceID)
	r.UpdatedAt = s.now().UTC()
	return cloneRequest(r), nil
}

func (s *Store) UpdateStatus(_ context.Context, domain, requestID string, from, to lifecycle.Status) (*lifecycle.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.request(domain, requestID)
	if err != nil {
		return nil, err
	}
	if r.Status != from {
		return nil, apperr.Conflict("request status changed to %s", r.Status)
	}
	r.Status = to
	r.UpdatedAt = s.now().UTC()
	if to == lifecycle.StatusCancelled {
		for _, b := range s.bids {
			if b.RequestID == r.ID && b.Status == lifecycle.BidPending {
				b.Status = lifecycle.BidRejected
				b.UpdatedAt = r.UpdatedAt
			}
		}
	}
	return cloneRequest(r), nil
}

func (s *Store) CountByStatus(context.Context) (map[string]map[lifecycle.Status]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]map[lifecycle.Status]int)
	for _, r := range s.requests {
		if out[r.Domain] == nil {
			out[r.Domain] = make(map[lifecycle.Status]int)
		}
		out[r.Domain][r.Status]++
	}
	return out, nil
}

func (s *Store) request(domain, id string) (*lifecycle.Request, error) {
	r, ok := s.requests[id]
	if !ok || r.Domain != domain {
		return nil, apperr.NotFound("request not found")
	}
	return r, nil
}

func (s *Store) CreateProfile(_ context.Context, p *eligibility.Profile) (*eligibility.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing := s.newestProfile(p.Domain, p.UserID); existing != nil {
		cp := *existing
		return &cp, nil
	}
	cp := *p
	s.profiles[p.ID] = &cp
	out := cp
	return &out, nil
}

func (s *Store) ListProfiles(_ context.Context, domain, userID string) ([]eligibility.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []eligibility.Profile
	for _, p := range s.profiles {
		if p.Domain == domain && p.UserID == userID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *Store) DeleteProfiles(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.profiles, id)
	}
	return nil
}

func (s *Store) SaveProfile(_ context.Context, p *eligibility.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.profiles[p.ID] = &cp
	return nil
}

func (s *Store) ListPendingProfiles(_ context.Context, domain string) ([]eligibility.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []eligibility.Profile
	for _, p := range s.profiles {
		if p.Domain == domain && !p.Approved && !p.Rejected && p.FullName != "" {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

func (s *Store) GetResource(_ context.Context, domain, userID string) (*eligibility.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.resources[domain+"/"+userID]
	if !ok {
		return nil, apperr.NotFound("resource not found")
	}
	cp := *r
	return &cp, nil
}

func (s *Store) SaveResource(_ context.Context, r *eligibility.Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.resources[r.Domain+"/"+r.UserID] = &cp
	return nil
}

func (s *Store) ActiveProviderContacts(_ context.Context, domain string, requireVerified bool, excludeUserID string) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []int64
	for _, p := range s.profiles {
		if p.Domain != domain || !p.Approved || p.Rejected || !p.Active || p.UserID == excludeUserID {
			continue
		}
		if requireVerified {
			r, ok := s.resources[domain+"/"+p.UserID]
			if !ok || !r.Verified {
				continue
			}
		}
		if u, ok := s.users[p.UserID]; ok && u.ExternalID != 0 {
			out = append(out, u.ExternalID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (s *Store) newestProfile(domain, userID string) *eligibility.Profile {
	var best *eligibility.Profile
	for _, p := range s.profiles {
		if p.Domain == domain && p.UserID == userID && (best == nil || p.UpdatedAt.After(best.UpdatedAt)) {
			best = p
		}
	}
	return best
}

func (s *Store) EnsureUser(_ context.Context, u *user.User) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byExtID[u.ExternalID]; ok {
		existing := s.users[id]
		if u.Username != "" {
			existing.Username = u.Username
		}
		if u.Name != "" {
			existing.Name = u.Name
		}
		cp := *existing
		return &cp, nil
	}

	cp := *u
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if cp.Role == "" {
		cp.Role = user.RoleUser
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = s.now().UTC()
	}
	s.users[cp.ID] = &cp
	s.byExtID[cp.ExternalID] = cp.ID
	out := cp
	return &out, nil
}

func (s *Store) GetUser(_ context.Context, id string) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, apperr.NotFound("user not found")
	}
	cp := *u
	return &cp, nil
}

func (s *Store) GetUserByExternalID(_ context.Context, externalID int64) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byExtID[externalID]
	if !ok {
		return nil, apperr.NotFound("user not found")
	}
	cp := *s.users[id]
	return &cp, nil
}

func (s *Store) UpdateName(_ context.Context, id, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return apperr.NotFound("user not found")
	}
	u.Name = name
	return nil
}

func (s *Store) SetRole(_ context.Context, externalID int64, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byExtID[externalID]
	if !ok {
		return apperr.NotFound("user not found")
	}
	s.users[id].Role = role
	return nil
}

func cloneRequest(r *lifecycle.Request) *lifecycle.Request {
	cp := *r
	cp.ClientPrice = cloneInt(r.ClientPrice)
	cp.FinalPrice = cloneInt(r.FinalPrice)
	cp.ResourceID = cloneString(r.ResourceID)
	if r.Provider != nil {
		p := *r.Provider
		cp.Provider = &p
	}
	return &cp
}

func cloneInt(v *int64) *int64 {
	if v == nil {
		return nil
	}
	x := *v
	return &x
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	x := *v
	return &x
}

func hasStatus(list []lifecycle.Status, s lifecycle.Status) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
