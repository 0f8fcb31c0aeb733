package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/sudo-init-do/errandhub/internal/apperr"
	"github.com/sudo-init-do/errandhub/internal/eligibility"
)

const profileColumns = `id::text, domain, user_id::text, approved, rejected, active, full_name, phone, license_number, notes, created_at, updated_at`

const resourceColumns = `id::text, domain, user_id::text, make, model, color, plate, seats, photo_url, verified, created_at, updated_at`

func scanProfile(row pgx.Row) (*eligibility.Profile, error) {
	var p eligibility.Profile
	err := row.Scan(&p.ID, &p.Domain, &p.UserID, &p.Approved, &p.Rejected, &p.Active,
		&p.FullName, &p.Phone, &p.LicenseNumber, &p.Notes, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func scanResource(row pgx.Row) (*eligibility.Resource, error) {
	var r eligibility.Resource
	err := row.Scan(&r.ID, &r.Domain, &r.UserID, &r.Make, &r.Model, &r.Color, &r.Plate, &r.Seats,
		&r.PhotoURL, &r.Verified, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) CreateProfile(ctx context.Context, p *eligibility.Profile) (*eligibility.Profile, error) {
	_, err := s.pool.Exec(ctx, `
        INSERT INTO provider_profiles (id, domain, user_id, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT DO NOTHING`,
		p.ID, p.Domain, p.UserID, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	list, err := s.ListProfiles(ctx, p.Domain, p.UserID)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, apperr.NotFound("provider profile not found")
	}
	return &list[0], nil
}

func (s *Store) ListProfiles(ctx context.Context, domain, userID string) ([]eligibility.Profile, error) {
	return s.queryProfiles(ctx, `
        SELECT `+profileColumns+` FROM provider_profiles
        WHERE domain = $1 AND user_id::text = $2
        ORDER BY updated_at DESC, created_at DESC`, domain, userID)
}

func (s *Store) DeleteProfiles(ctx context.Context, ids []string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM provider_profiles WHERE id::text = ANY($1)`, ids)
	return err
}

func (s *Store) SaveProfile(ctx context.Context, p *eligibility.Profile) error {
	_, err := s.pool.Exec(ctx, `
        INSERT INTO provider_profiles (id, domain, user_id, approved, rejected, active, full_name, phone, license_number, notes, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
        ON CONFLICT (id) DO UPDATE SET
            approved = EXCLUDED.approved,
            rejected = EXCLUDED.rejected,
            active = EXCLUDED.active,
            full_name = EXCLUDED.full_name,
            phone = EXCLUDED.phone,
            license_number = EXCLUDED.license_number,
            notes = EXCLUDED.notes,
            updated_at = EXCLUDED.updated_at`,
		p.ID, p.Domain, p.UserID, p.Approved, p.Rejected, p.Active, p.FullName, p.Phone, p.LicenseNumber, p.Notes,
		p.CreatedAt, p.UpdatedAt,
	)
	return err
}

func (s *Store) ListPendingProfiles(ctx context.Context, domain string) ([]eligibility.Profile, error) {
	return s.queryProfiles(ctx, `
        SELECT `+profileColumns+` FROM provider_profiles
        WHERE domain = $1 AND NOT approved AND NOT rejected AND full_name <> ''
        ORDER BY updated_at ASC`, domain)
}

func (s *Store) queryProfiles(ctx context.Context, query string, args ...any) ([]eligibility.Profile, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []eligibility.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *Store) GetResource(ctx context.Context, domain, userID string) (*eligibility.Resource, error) {
	r, err := scanResource(s.pool.QueryRow(ctx,
		`SELECT `+resourceColumns+` FROM provider_resources WHERE domain = $1 AND user_id::text = $2`, domain, userID))
	if noRows(err) {
		return nil, apperr.NotFound("resource not found")
	}
	return r, err
}

func (s *Store) SaveResource(ctx context.Context, r *eligibility.Resource) error {
	_, err := s.pool.Exec(ctx, `
        INSERT INTO provider_resources (id, domain, user_id, make, model, color, plate, seats, photo_url, verified, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
        ON CONFLICT (domain, user_id) DO UPDATE SET
            make = EXCLUDED.make,
            model = EXCLUDED.model,
            color = EXCLUDED.color,
            plate = EXCLUDED.plate,
            seats = EXCLUDED.seats,
            photo_url = EXCLUDED.photo_url,
            verified = EXCLUDED.verified,
            updated_at = EXCLUDED.updated_at`,
		r.ID, r.Domain, r.UserID, r.Make, r.Model, r.Color, r.Plate, r.Seats, r.PhotoURL, r.Verified, r.CreatedAt, r.UpdatedAt,
	)
	return err
}

func (s *Store) ActiveProviderContacts(ctx context.Context, domain string, requireVerified bool, excludeUserID string) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT DISTINCT u.tg_id
        FROM provider_profiles p
        JOIN users u ON u.id = p.user_id
        LEFT JOIN provider_resources r ON r.domain = p.domain AND r.user_id = p.user_id
        WHERE p.domain = $1 AND p.approved AND NOT p.rejected AND p.active
          AND p.user_id::text <> $2
          AND (NOT $3 OR COALESCE(r.verified, FALSE))
        ORDER BY u.tg_id`, domain, excludeUserID, requireVerified)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
