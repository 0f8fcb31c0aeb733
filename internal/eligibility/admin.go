package eligibility

import (
	"context"
	"errors"

	"github.com/sudo-init-do/errandhub/internal/apperr"
)

// Moderation operations. All are idempotent and fail only with NotFound.

// Approve approves the profile and clears a previous rejection.
func (g *Gate) Approve(ctx context.Context, userID string) (*Profile, error) {
	return g.moderate(ctx, userID, func(p *Profile) {
		p.Approved, p.Rejected = true, false
	})
}

// Reject rejects the profile and takes the provider offline.
func (g *Gate) Reject(ctx context.Context, userID string) (*Profile, error) {
	return g.moderate(ctx, userID, func(p *Profile) {
		p.Approved, p.Rejected, p.Active = false, true, false
	})
}

// VerifyResource marks the provider's resource verified.
func (g *Gate) VerifyResource(ctx context.Context, userID string) (*Resource, error) {
	return g.setVerified(ctx, userID, true)
}

// UnverifyResource clears verification and takes the provider offline.
func (g *Gate) UnverifyResource(ctx context.Context, userID string) (*Resource, error) {
	return g.setVerified(ctx, userID, false)
}

// ApproveAll approves the profile and verifies the resource, if any.
func (g *Gate) ApproveAll(ctx context.Context, userID string) (*Status, error) {
	p, err := g.Approve(ctx, userID)
	if err != nil {
		return nil, err
	}
	st := &Status{Profile: p}
	if g.requiresResource {
		r, err := g.VerifyResource(ctx, userID)
		if err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return nil, err
		}
		st.Resource = r
	}
	st.Reason, err = g.blocker(ctx, p, true)
	return st, err
}

// ListPending returns profiles awaiting a decision with their resources.
func (g *Gate) ListPending(ctx context.Context) ([]Pending, error) {
	profiles, err := g.store.ListPendingProfiles(ctx, g.domain)
	if err != nil {
		return nil, err
	}
	out := make([]Pending, 0, len(profiles))
	for _, p := range profiles {
		item := Pending{Profile: p}
		if g.requiresResource {
			r, err := g.store.GetResource(ctx, g.domain, p.UserID)
			if err != nil && !errors.Is(err, apperr.ErrNotFound) {
				return nil, err
			}
			item.Resource = r
		}
		out = append(out, item)
	}
	return out, nil
}

func (g *Gate) existing(ctx context.Context, userID string) (*Profile, error) {
	list, err := g.store.ListProfiles(ctx, g.domain, userID)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, apperr.NotFound("provider profile not found")
	}
	p := list[0]
	return &p, nil
}

func (g *Gate) moderate(ctx context.Context, userID string, apply func(*Profile)) (*Profile, error) {
	p, err := g.existing(ctx, userID)
	if err != nil {
		return nil, err
	}
	before := *p
	apply(p)
	if *p == before {
		return p, nil
	}
	p.UpdatedAt = g.now().UTC()
	if err := g.store.SaveProfile(ctx, p); err != nil {
		return nil, err
	}
	g.logger.Info("provider moderated", "domain", g.domain, "user_id", userID,
		"approved", p.Approved, "rejected", p.Rejected, "active", p.Active)
	return p, nil
}

func (g *Gate) setVerified(ctx context.Context, userID string, verified bool) (*Resource, error) {
	r, err := g.store.GetResource(ctx, g.domain, userID)
	if err != nil {
		return nil, err
	}
	if r.Verified != verified {
		r.Verified = verified
		r.UpdatedAt = g.now().UTC()
		if err := g.store.SaveResource(ctx, r); err != nil {
			return nil, err
		}
	}
	if !verified {
		if p, err := g.existing(ctx, userID); err == nil && p.Active {
			p.Active = false
			p.UpdatedAt = g.now().UTC()
			if err := g.store.SaveProfile(ctx, p); err != nil {
				return nil, err
			}
		}
	}
	g.logger.Info("provider resource moderated", "domain", g.domain, "user_id", userID, "verified", verified)
	return r, nil
}
