package postgres

import (
	"context"
	"fmt"
)

// ensureSchema creates tables and indexes if missing. Safe to run on every
// start.
func (s *Store) ensureSchema(ctx context.Context) error {
	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"users", s.ensureUsersTable},
		{"requests", s.ensureRequestsTable},
		{"bids", s.ensureBidsTable},
		{"provider_profiles", s.ensureProfilesTable},
		{"provider_resources", s.ensureResourcesTable},
	}
	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			return fmt.Errorf("ensure %s: %w", step.name, err)
		}
	}
	s.logger.Info("schema ensured")
	return nil
}

// ensureUsersTable creates users keyed by Telegram id
func (s *Store) ensureUsersTable(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS users (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            tg_id BIGINT NOT NULL UNIQUE,
            username TEXT NOT NULL DEFAULT '',
            name TEXT NOT NULL DEFAULT '',
            role TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('user','admin')),
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );
    `)
	return err
}

// ensureRequestsTable creates requests with the one-active-request index.
// final_price and provider_id are set exactly when a provider was assigned;
// a request cancelled while NEW never had one.
func (s *Store) ensureRequestsTable(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS requests (
            id UUID PRIMARY KEY,
            domain TEXT NOT NULL,
            requester_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            requester_tg_id BIGINT NOT NULL DEFAULT 0,
            origin TEXT NOT NULL DEFAULT '',
            destination TEXT NOT NULL DEFAULT '',
            title TEXT NOT NULL DEFAULT '',
            details TEXT NOT NULL DEFAULT '',
            comment TEXT NOT NULL DEFAULT '',
            price_mode TEXT NOT NULL CHECK (price_mode IN ('FIXED','BID')),
            client_price BIGINT NULL CHECK (client_price > 0),
            final_price BIGINT NULL,
            status TEXT NOT NULL CHECK (status IN ('NEW','ASSIGNED','ON_WAY','IN_PROGRESS','COMPLETED','CANCELLED')),
            provider_id UUID NULL REFERENCES users(id) ON DELETE SET NULL,
            provider_tg_id BIGINT NULL,
            resource_id UUID NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );
        ALTER TABLE requests
            DROP CONSTRAINT IF EXISTS requests_check,
            DROP CONSTRAINT IF EXISTS requests_check1,
            DROP CONSTRAINT IF EXISTS requests_assigned_check,
            DROP CONSTRAINT IF EXISTS requests_unassigned_check;
        ALTER TABLE requests
            ADD CONSTRAINT requests_assigned_check
                CHECK (status IN ('NEW','CANCELLED') OR (final_price IS NOT NULL AND provider_id IS NOT NULL)),
            ADD CONSTRAINT requests_unassigned_check
                CHECK (status <> 'NEW' OR (final_price IS NULL AND provider_id IS NULL));
        CREATE UNIQUE INDEX IF NOT EXISTS uniq_requests_active_requester
            ON requests(domain, requester_id)
            WHERE status IN ('NEW','ASSIGNED','ON_WAY','IN_PROGRESS');
        CREATE INDEX IF NOT EXISTS idx_requests_domain_status ON requests(domain, status, created_at DESC);
        CREATE INDEX IF NOT EXISTS idx_requests_provider ON requests(provider_id);
    `)
	return err
}

// ensureBidsTable creates bids with at most one PENDING bid per provider
func (s *Store) ensureBidsTable(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS bids (
            id UUID PRIMARY KEY,
            domain TEXT NOT NULL,
            request_id UUID NOT NULL REFERENCES requests(id) ON DELETE CASCADE,
            provider_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            provider_tg_id BIGINT NOT NULL DEFAULT 0,
            offered_price BIGINT NOT NULL CHECK (offered_price > 0),
            comment TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL CHECK (status IN ('PENDING','ACCEPTED','REJECTED','WITHDRAWN')),
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );
        CREATE UNIQUE INDEX IF NOT EXISTS uniq_bids_pending_provider
            ON bids(request_id, provider_id) WHERE status = 'PENDING';
        CREATE UNIQUE INDEX IF NOT EXISTS uniq_bids_accepted_request
            ON bids(request_id) WHERE status = 'ACCEPTED';
    `)
	return err
}

// ensureProfilesTable creates provider_profiles, one per (domain, user)
func (s *Store) ensureProfilesTable(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS provider_profiles (
            id UUID PRIMARY KEY,
            domain TEXT NOT NULL,
            user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            approved BOOLEAN NOT NULL DEFAULT FALSE,
            rejected BOOLEAN NOT NULL DEFAULT FALSE,
            active BOOLEAN NOT NULL DEFAULT FALSE,
            full_name TEXT NOT NULL DEFAULT '',
            phone TEXT NOT NULL DEFAULT '',
            license_number TEXT NOT NULL DEFAULT '',
            notes TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            CHECK (NOT (approved AND rejected))
        );
    `)
	if err != nil {
		return err
	}

	// Older deployments may hold duplicates; the gate collapses them on read,
	// so the unique index is only added once they are gone.
	var dupes bool
	err = s.pool.QueryRow(ctx, `
        SELECT EXISTS (
            SELECT 1 FROM provider_profiles GROUP BY domain, user_id HAVING COUNT(*) > 1
        )`).Scan(&dupes)
	if err != nil {
		return err
	}
	if dupes {
		s.logger.Warn("provider_profiles has duplicates; unique index deferred")
		return nil
	}
	_, err = s.pool.Exec(ctx, `
        CREATE UNIQUE INDEX IF NOT EXISTS uniq_provider_profiles_user ON provider_profiles(domain, user_id);
    `)
	return err
}

// ensureResourcesTable creates provider_resources, one per (domain, user)
func (s *Store) ensureResourcesTable(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS provider_resources (
            id UUID PRIMARY KEY,
            domain TEXT NOT NULL,
            user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            make TEXT NOT NULL DEFAULT '',
            model TEXT NOT NULL DEFAULT '',
            color TEXT NOT NULL DEFAULT '',
            plate TEXT NOT NULL DEFAULT '',
            seats INTEGER NOT NULL DEFAULT 0,
            photo_url TEXT NOT NULL DEFAULT '',
            verified BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            UNIQUE (domain, user_id)
        );
    `)
	return err
}
