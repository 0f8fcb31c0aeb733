package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/sudo-init-do/errandhub/internal/apperr"
	"github.com/sudo-init-do/errandhub/internal/user"
)

const userColumns = `id, tg_id, username, name, role, created_at`

func scanUser(row scanner) (*user.User, error) {
	var u user.User
	if err := row.Scan(&u.ID, &u.ExternalID, &u.Username, &u.Name, &u.Role, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (db *DB) EnsureUser(ctx context.Context, u *user.User) (*user.User, error) {
	return scanUser(db.conn.QueryRowContext(ctx, `
		INSERT INTO users (id, tg_id, username, name, role, created_at)
		VALUES (?, ?, ?, ?, 'user', ?)
		ON CONFLICT (tg_id) DO UPDATE SET
			username = COALESCE(NULLIF(excluded.username, ''), users.username),
			name = COALESCE(NULLIF(excluded.name, ''), users.name)
		RETURNING `+userColumns,
		uuid.NewString(), u.ExternalID, u.Username, u.Name, db.stamp(),
	))
}

func (db *DB) GetUser(ctx context.Context, id string) (*user.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("user not found")
	}
	return u, err
}

func (db *DB) GetUserByExternalID(ctx context.Context, externalID int64) (*user.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE tg_id = ?`, externalID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("user not found")
	}
	return u, err
}

func (db *DB) UpdateName(ctx context.Context, id, name string) error {
	return db.execOne(ctx, `UPDATE users SET name = ? WHERE id = ?`, name, id)
}

func (db *DB) SetRole(ctx context.Context, externalID int64, role string) error {
	return db.execOne(ctx, `UPDATE users SET role = ? WHERE tg_id = ?`, role, externalID)
}

func (db *DB) execOne(ctx context.Context, query string, args ...any) error {
	result, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return apperr.NotFound("user not found")
	}
	return nil
}
