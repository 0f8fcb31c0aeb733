// Package eligibility decides whether a provider may act in a vertical and
// holds the moderation operations behind that decision.
package eligibility

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sudo-init-do/errandhub/internal/apperr"
)

// Denial messages returned by EnsureAllowed.
const (
	ReasonNotApproved = "profile not approved"
	ReasonRejected    = "profile rejected"
	ReasonUnverified  = "resource not verified"
	ReasonInactive    = "provider not active"
)

const (
	maxNameLen    = 120
	maxPhoneLen   = 32
	maxLicenseLen = 64
	maxNotesLen   = 500
	maxShortLen   = 64
	maxURLLen     = 512
	maxSeats      = 60
)

// Gate is the eligibility gate of one vertical.
type Gate struct {
	domain           string
	requiresResource bool
	store            Store
	logger           *slog.Logger
	now              func() time.Time
}

// NewGate builds the gate for domain.
func NewGate(domain string, requiresResource bool, store Store, logger *slog.Logger) *Gate {
	return &Gate{
		domain:           domain,
		requiresResource: requiresResource,
		store:            store,
		logger:           logger,
		now:              time.Now,
	}
}

// Domain returns the vertical this gate guards.
func (g *Gate) Domain() string { return g.domain }

// RequiresResource reports whether providers need a verified resource.
func (g *Gate) RequiresResource() bool { return g.requiresResource }

// GetOrCreateProfile returns the single profile for user, creating an empty
// pending one on first use. Leftover duplicates are removed, keeping the
// most recently updated.
func (g *Gate) GetOrCreateProfile(ctx context.Context, userID string) (*Profile, error) {
	if userID == "" {
		return nil, apperr.Validation("user id is required")
	}

	list, err := g.store.ListProfiles(ctx, g.domain, userID)
	if err != nil {
		return nil, err
	}
	if len(list) > 0 {
		if len(list) > 1 {
			ids := make([]string, 0, len(list)-1)
			for _, p := range list[1:] {
				ids = append(ids, p.ID)
			}
			if err := g.store.DeleteProfiles(ctx, ids); err != nil {
				return nil, err
			}
			g.logger.Warn("removed duplicate provider profiles", "domain", g.domain, "user_id", userID, "removed", len(ids))
		}
		p := list[0]
		return &p, nil
	}

	now := g.now().UTC()
	return g.store.CreateProfile(ctx, &Profile{
		ID:        uuid.NewString(),
		Domain:    g.domain,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

// SubmitProfile stores the provider's details and sends the profile back to
// moderation.
func (g *Gate) SubmitProfile(ctx context.Context, userID string, in ProfileInput) (*Profile, error) {
	p, err := g.GetOrCreateProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	p.FullName = normalize(in.FullName, maxNameLen)
	p.Phone = normalizePhone(in.Phone)
	p.LicenseNumber = normalize(in.LicenseNumber, maxLicenseLen)
	p.Notes = normalize(in.Notes, maxNotesLen)
	if p.FullName == "" {
		return nil, apperr.Validation("full name is required")
	}
	if p.Phone == "" {
		return nil, apperr.Validation("phone is required")
	}

	p.Approved, p.Rejected, p.Active = false, false, false
	p.UpdatedAt = g.now().UTC()
	if err := g.store.SaveProfile(ctx, p); err != nil {
		return nil, err
	}
	g.logger.Info("provider profile submitted", "domain", g.domain, "user_id", userID)
	return p, nil
}

// UpsertResource creates or edits the provider's resource. Any edit drops
// verification and takes the provider offline.
func (g *Gate) UpsertResource(ctx context.Context, userID string, in ResourceInput) (*Resource, error) {
	if !g.requiresResource {
		return nil, apperr.Validation("%s providers have no resource", g.domain)
	}
	p, err := g.GetOrCreateProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	r, err := g.store.GetResource(ctx, g.domain, userID)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		r = &Resource{ID: uuid.NewString(), Domain: g.domain, UserID: userID, CreatedAt: g.now().UTC()}
	case err != nil:
		return nil, err
	}

	r.Make = normalize(in.Make, maxShortLen)
	r.Model = normalize(in.Model, maxShortLen)
	r.Color = normalize(in.Color, maxShortLen)
	r.Plate = strings.ToUpper(normalize(in.Plate, maxShortLen))
	r.PhotoURL = normalize(in.PhotoURL, maxURLLen)
	r.Seats = in.Seats
	if r.Plate == "" {
		return nil, apperr.Validation("plate is required")
	}
	if r.Seats < 0 || r.Seats > maxSeats {
		return nil, apperr.Validation("seats must be between 0 and %d", maxSeats)
	}
	r.Verified = false
	r.UpdatedAt = g.now().UTC()
	if err := g.store.SaveResource(ctx, r); err != nil {
		return nil, err
	}

	if p.Active {
		p.Active = false
		p.UpdatedAt = r.UpdatedAt
		if err := g.store.SaveProfile(ctx, p); err != nil {
			return nil, err
		}
	}
	g.logger.Info("provider resource updated", "domain", g.domain, "user_id", userID)
	return r, nil
}

// SetActive toggles availability. Going online needs a fully eligible
// profile; going offline always succeeds.
func (g *Gate) SetActive(ctx context.Context, userID string, active bool) (*Profile, error) {
	p, err := g.GetOrCreateProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if active {
		if reason, err := g.blocker(ctx, p, false); err != nil {
			return nil, err
		} else if reason != "" {
			return nil, apperr.Permission("%s", reason)
		}
	}
	if p.Active == active {
		return p, nil
	}
	p.Active = active
	p.UpdatedAt = g.now().UTC()
	if err := g.store.SaveProfile(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// EnsureAllowed fails with PermissionDenied naming the first unmet
// requirement.
func (g *Gate) EnsureAllowed(ctx context.Context, userID string, needActive bool) error {
	p, err := g.GetOrCreateProfile(ctx, userID)
	if err != nil {
		return err
	}
	reason, err := g.blocker(ctx, p, needActive)
	if err != nil {
		return err
	}
	if reason != "" {
		return apperr.Permission("%s", reason)
	}
	return nil
}

// Eligible reports whether user currently passes the gate. Unlike
// EnsureAllowed it never creates a profile.
func (g *Gate) Eligible(ctx context.Context, userID string, needActive bool) (bool, error) {
	list, err := g.store.ListProfiles(ctx, g.domain, userID)
	if err != nil || len(list) == 0 {
		return false, err
	}
	reason, err := g.blocker(ctx, &list[0], needActive)
	if err != nil {
		return false, err
	}
	return reason == "", nil
}

// State returns the profile, the resource and the current denial reason.
func (g *Gate) State(ctx context.Context, userID string) (*Status, error) {
	p, err := g.GetOrCreateProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	st := &Status{Profile: p}
	if g.requiresResource {
		r, err := g.store.GetResource(ctx, g.domain, userID)
		if err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return nil, err
		}
		st.Resource = r
	}
	if st.Reason, err = g.blocker(ctx, p, true); err != nil {
		return nil, err
	}
	return st, nil
}

// blocker returns the first unmet requirement, or "".
func (g *Gate) blocker(ctx context.Context, p *Profile, needActive bool) (string, error) {
	switch {
	case p.Rejected:
		return ReasonRejected, nil
	case !p.Approved:
		return ReasonNotApproved, nil
	}
	if g.requiresResource {
		r, err := g.store.GetResource(ctx, g.domain, p.UserID)
		if err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return "", err
		}
		if r == nil || !r.Verified {
			return ReasonUnverified, nil
		}
	}
	if needActive && !p.Active {
		return ReasonInactive, nil
	}
	return "", nil
}

// ResourceID returns the provider's resource id when the vertical has one.
func (g *Gate) ResourceID(ctx context.Context, userID string) (*string, error) {
	if !g.requiresResource {
		return nil, nil
	}
	r, err := g.store.GetResource(ctx, g.domain, userID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	id := r.ID
	return &id, nil
}

// ActiveContacts lists external ids of providers who may take work now.
func (g *Gate) ActiveContacts(ctx context.Context, excludeUserID string) ([]int64, error) {
	return g.store.ActiveProviderContacts(ctx, g.domain, g.requiresResource, excludeUserID)
}

func normalize(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > max {
		s = string(r[:max])
	}
	return s
}

func normalizePhone(s string) string {
	var b strings.Builder
	for i, r := range strings.TrimSpace(s) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	out := b.String()
	if len(out) > maxPhoneLen {
		out = out[:maxPhoneLen]
	}
	if out == "+" {
		return ""
	}
	return out
}
