package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/sudo-init-do/errandhub/internal/apperr"
	"github.com/sudo-init-do/errandhub/internal/eligibility"
)

const profileColumns = `id, domain, user_id, approved, rejected, active, full_name, phone, license_number, notes, created_at, updated_at`

const resourceColumns = `id, domain, user_id, make, model, color, plate, seats, photo_url, verified, created_at, updated_at`

func scanProfile(row scanner) (*eligibility.Profile, error) {
	var p eligibility.Profile
	err := row.Scan(&p.ID, &p.Domain, &p.UserID, &p.Approved, &p.Rejected, &p.Active,
		&p.FullName, &p.Phone, &p.LicenseNumber, &p.Notes, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (db *DB) CreateProfile(ctx context.Context, p *eligibility.Profile) (*eligibility.Profile, error) {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO provider_profiles (id, domain, user_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`,
		p.ID, p.Domain, p.UserID, p.CreatedAt.UTC(), p.UpdatedAt.UTC(),
	)
	if err != nil {
		return nil, err
	}
	list, err := db.ListProfiles(ctx, p.Domain, p.UserID)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, apperr.NotFound("provider profile not found")
	}
	return &list[0], nil
}

func (db *DB) ListProfiles(ctx context.Context, domain, userID string) ([]eligibility.Profile, error) {
	return db.queryProfiles(ctx, `
		SELECT `+profileColumns+` FROM provider_profiles
		WHERE domain = ? AND user_id = ?
		ORDER BY updated_at DESC, created_at DESC`, domain, userID)
}

func (db *DB) DeleteProfiles(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	marks := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := db.conn.ExecContext(ctx, `DELETE FROM provider_profiles WHERE id IN (`+marks+`)`, args...)
	return err
}

func (db *DB) SaveProfile(ctx context.Context, p *eligibility.Profile) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO provider_profiles (id, domain, user_id, approved, rejected, active, full_name, phone, license_number, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			approved = excluded.approved,
			rejected = excluded.rejected,
			active = excluded.active,
			full_name = excluded.full_name,
			phone = excluded.phone,
			license_number = excluded.license_number,
			notes = excluded.notes,
			updated_at = excluded.updated_at`,
		p.ID, p.Domain, p.UserID, p.Approved, p.Rejected, p.Active, p.FullName, p.Phone, p.LicenseNumber, p.Notes,
		p.CreatedAt.UTC(), p.UpdatedAt.UTC(),
	)
	return err
}

func (db *DB) ListPendingProfiles(ctx context.Context, domain string) ([]eligibility.Profile, error) {
	return db.queryProfiles(ctx, `
		SELECT `+profileColumns+` FROM provider_profiles
		WHERE domain = ? AND approved = 0 AND rejected = 0 AND full_name <> ''
		ORDER BY updated_at ASC`, domain)
}

func (db *DB) queryProfiles(ctx context.Context, query string, args ...any) ([]eligibility.Profile, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
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

func (db *DB) GetResource(ctx context.Context, domain, userID string) (*eligibility.Resource, error) {
	var r eligibility.Resource
	err := db.conn.QueryRowContext(ctx,
		`SELECT `+resourceColumns+` FROM provider_resources WHERE domain = ? AND user_id = ?`, domain, userID,
	).Scan(&r.ID, &r.Domain, &r.UserID, &r.Make, &r.Model, &r.Color, &r.Plate, &r.Seats,
		&r.PhotoURL, &r.Verified, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("resource not found")
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (db *DB) SaveResource(ctx context.Context, r *eligibility.Resource) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO provider_resources (id, domain, user_id, make, model, color, plate, seats, photo_url, verified, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (domain, user_id) DO UPDATE SET
			make = excluded.make,
			model = excluded.model,
			color = excluded.color,
			plate = excluded.plate,
			seats = excluded.seats,
			photo_url = excluded.photo_url,
			verified = excluded.verified,
			updated_at = excluded.updated_at`,
		r.ID, r.Domain, r.UserID, r.Make, r.Model, r.Color, r.Plate, r.Seats, r.PhotoURL, r.Verified,
		r.CreatedAt.UTC(), r.UpdatedAt.UTC(),
	)
	return err
}

func (db *DB) ActiveProviderContacts(ctx context.Context, domain string, requireVerified bool, excludeUserID string) ([]int64, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT DISTINCT u.tg_id
		FROM provider_profiles p
		JOIN users u ON u.id = p.user_id
		LEFT JOIN provider_resources r ON r.domain = p.domain AND r.user_id = p.user_id
		WHERE p.domain = ? AND p.approved = 1 AND p.rejected = 0 AND p.active = 1
		  AND p.user_id <> ?
		  AND (? = 0 OR COALESCE(r.verified, 0) = 1)
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
