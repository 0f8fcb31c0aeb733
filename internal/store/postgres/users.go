package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/sudo-init-do/errandhub/internal/apperr"
	"github.com/sudo-init-do/errandhub/internal/user"
)

const userColumns = `id::text, tg_id, username, name, role, created_at`

func scanUser(row pgx.Row) (*user.User, error) {
	var u user.User
	if err := row.Scan(&u.ID, &u.ExternalID, &u.Username, &u.Name, &u.Role, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) EnsureUser(ctx context.Context, u *user.User) (*user.User, error) {
	return scanUser(s.pool.QueryRow(ctx, `
        INSERT INTO users (tg_id, username, name)
        VALUES ($1, $2, $3)
        ON CONFLICT (tg_id) DO UPDATE SET
            username = COALESCE(NULLIF(EXCLUDED.username, ''), users.username),
            name = COALESCE(NULLIF(EXCLUDED.name, ''), users.name)
        RETURNING `+userColumns,
		u.ExternalID, u.Username, u.Name,
	))
}

func (s *Store) GetUser(ctx context.Context, id string) (*user.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id::text = $1`, id))
	if noRows(err) {
		return nil, apperr.NotFound("user not found")
	}
	return u, err
}

func (s *Store) GetUserByExternalID(ctx context.Context, externalID int64) (*user.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE tg_id = $1`, externalID))
	if noRows(err) {
		return nil, apperr.NotFound("user not found")
	}
	return u, err
}

func (s *Store) UpdateName(ctx context.Context, id, name string) error {
	ct, err := s.pool.Exec(ctx, `UPDATE users SET name = $1 WHERE id::text = $2`, name, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return apperr.NotFound("user not found")
	}
	return nil
}

func (s *Store) SetRole(ctx context.Context, externalID int64, role string) error {
	ct, err := s.pool.Exec(ctx, `UPDATE users SET role = $1 WHERE tg_id = $2`, role, externalID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return apperr.NotFound("user not found")
	}
	return nil
}
