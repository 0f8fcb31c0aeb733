package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/sudo-init-do/errandhub/internal/apperr"
	"github.com/sudo-init-do/errandhub/internal/lifecycle"
)

const requestColumns = `id, domain, requester_id, requester_tg_id, origin, destination, title, details, comment,
	price_mode, client_price, final_price, status, provider_id, provider_tg_id, resource_id, created_at, updated_at`

const bidColumns = `id, domain, request_id, provider_id, provider_tg_id, offered_price, comment, status, created_at, updated_at`

// querier is satisfied by *sql.DB and *sql.Tx. With a single connection,
// code inside a transaction must only query through the transaction.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(row scanner) (*lifecycle.Request, error) {
	var (
		r          lifecycle.Request
		mode       string
		status     string
		providerID sql.NullString
		providerTg sql.NullInt64
	)
	err := row.Scan(
		&r.ID, &r.Domain, &r.Requester.UserID, &r.Requester.ExternalID,
		&r.Origin, &r.Destination, &r.Title, &r.Details, &r.Comment,
		&mode, &r.ClientPrice, &r.FinalPrice, &status, &providerID, &providerTg,
		&r.ResourceID, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.PriceMode = lifecycle.PriceMode(mode)
	r.Status = lifecycle.Status(status)
	if providerID.Valid {
		r.Provider = &lifecycle.Party{UserID: providerID.String, ExternalID: providerTg.Int64}
	}
	return &r, nil
}

func scanBid(row scanner) (*lifecycle.Bid, error) {
	var (
		b      lifecycle.Bid
		status string
	)
	err := row.Scan(&b.ID, &b.Domain, &b.RequestID, &b.Provider.UserID, &b.Provider.ExternalID,
		&b.OfferedPrice, &b.Comment, &status, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	b.Status = lifecycle.BidStatus(status)
	return &b, nil
}

func (db *DB) CreateRequest(ctx context.Context, r *lifecycle.Request) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO requests (id, domain, requester_id, requester_tg_id, origin, destination, title, details, comment,
		                      price_mode, client_price, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Domain, r.Requester.UserID, r.Requester.ExternalID, r.Origin, r.Destination, r.Title, r.Details, r.Comment,
		string(r.PriceMode), r.ClientPrice, string(r.Status), r.CreatedAt.UTC(), r.UpdatedAt.UTC(),
	)
	if isUniqueViolation(err) {
		return apperr.Conflict("you already have an active request")
	}
	return err
}

func (db *DB) GetRequest(ctx context.Context, domain, id string) (*lifecycle.Request, error) {
	return getRequest(ctx, db.conn, domain, id)
}

func getRequest(ctx context.Context, q querier, domain, id string) (*lifecycle.Request, error) {
	r, err := scanRequest(q.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM requests WHERE id = ? AND domain = ?`, id, domain))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("request not found")
	}
	return r, err
}

func (db *DB) ListRequests(ctx context.Context, domain string, f lifecycle.Filter) ([]lifecycle.Request, error) {
	where := []string{"domain = ?"}
	args := []any{domain}
	if f.RequesterID != "" {
		where = append(where, "requester_id = ?")
		args = append(args, f.RequesterID)
	}
	if f.ProviderID != "" {
		where = append(where, "provider_id = ?")
		args = append(args, f.ProviderID)
	}
	if len(f.Statuses) > 0 {
		marks := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			marks[i] = "?"
			args = append(args, string(st))
		}
		where = append(where, "status IN ("+strings.Join(marks, ",")+")")
	}
	query := `SELECT ` + requestColumns + ` FROM requests WHERE ` + strings.Join(where, " AND ") + ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []lifecycle.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (db *DB) UpsertBid(ctx context.Context, b *lifecycle.Bid) (*lifecycle.Bid, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	r, err := getRequest(ctx, tx, b.Domain, b.RequestID)
	if err != nil {
		return nil, err
	}
	if r.Status != lifecycle.StatusNew {
		return nil, apperr.Conflict("request is no longer open")
	}

	stored, err := scanBid(tx.QueryRowContext(ctx, `
		INSERT INTO bids (id, domain, request_id, provider_id, provider_tg_id, offered_price, comment, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 'PENDING', ?, ?)
		ON CONFLICT (request_id, provider_id) WHERE status = 'PENDING'
		DO UPDATE SET offered_price = excluded.offered_price, comment = excluded.comment, updated_at = excluded.updated_at
		RETURNING `+bidColumns,
		b.ID, b.Domain, b.RequestID, b.Provider.UserID, b.Provider.ExternalID, b.OfferedPrice, b.Comment,
		b.CreatedAt.UTC(), b.UpdatedAt.UTC(),
	))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return stored, nil
}

func (db *DB) GetBid(ctx context.Context, domain, id string) (*lifecycle.Bid, error) {
	b, err := scanBid(db.conn.QueryRowContext(ctx,
		`SELECT `+bidColumns+` FROM bids WHERE id = ? AND domain = ?`, id, domain))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("offer not found")
	}
	return b, err
}

func (db *DB) ListBids(ctx context.Context, domain, requestID string, status lifecycle.BidStatus) ([]lifecycle.Bid, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+bidColumns+` FROM bids
		WHERE domain = ? AND request_id = ? AND (? = '' OR status = ?)
		ORDER BY updated_at DESC`, domain, requestID, string(status), string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []lifecycle.Bid
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (db *DB) AcceptBid(ctx context.Context, domain, bidID string, resourceID *string) (*lifecycle.Request, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	bid, err := scanBid(tx.QueryRowContext(ctx, `SELECT `+bidColumns+` FROM bids WHERE id = ? AND domain = ?`, bidID, domain))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("offer not found")
	}
	if err != nil {
		return nil, err
	}
	if bid.Status != lifecycle.BidPending {
		return nil, apperr.Conflict("offer is no longer pending")
	}

	now := db.stamp()
	assigned, err := scanRequest(tx.QueryRowContext(ctx, `
		UPDATE requests
		SET status = 'ASSIGNED', final_price = ?, provider_id = ?, provider_tg_id = ?, resource_id = ?, updated_at = ?
		WHERE id = ? AND status = 'NEW'
		RETURNING `+requestColumns,
		bid.OfferedPrice, bid.Provider.UserID, bid.Provider.ExternalID, resourceID, now, bid.RequestID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Conflict("request is no longer open")
	}
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE bids SET status = 'ACCEPTED', updated_at = ? WHERE id = ?`, now, bidID); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE bids SET status = 'REJECTED', updated_at = ?
		WHERE request_id = ? AND id <> ? AND status = 'PENDING'`, now, bid.RequestID, bidID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return assigned, nil
}

func (db *DB) ClaimFixed(ctx context.Context, domain, requestID string, provider lifecycle.Party, resourceID *string) (*lifecycle.Request, error) {
	assigned, err := scanRequest(db.conn.QueryRowContext(ctx, `
		UPDATE requests
		SET status = 'ASSIGNED', final_price = client_price, provider_id = ?, provider_tg_id = ?, resource_id = ?, updated_at = ?
		WHERE id = ? AND domain = ? AND status = 'NEW' AND price_mode = 'FIXED' AND client_price > 0
		RETURNING `+requestColumns,
		provider.UserID, provider.ExternalID, resourceID, db.stamp(), requestID, domain,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, whyNot(ctx, db.conn, domain, requestID)
	}
	return assigned, err
}

func (db *DB) UpdateStatus(ctx context.Context, domain, requestID string, from, to lifecycle.Status) (*lifecycle.Request, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := db.stamp()
	updated, err := scanRequest(tx.QueryRowContext(ctx, `
		UPDATE requests SET status = ?, updated_at = ?
		WHERE id = ? AND domain = ? AND status = ?
		RETURNING `+requestColumns,
		string(to), now, requestID, domain, string(from),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, whyNot(ctx, tx, domain, requestID)
	}
	if err != nil {
		return nil, err
	}

	if to == lifecycle.StatusCancelled {
		if _, err := tx.ExecContext(ctx, `
			UPDATE bids SET status = 'REJECTED', updated_at = ?
			WHERE request_id = ? AND status = 'PENDING'`, now, requestID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return updated, nil
}

func (db *DB) CountByStatus(ctx context.Context) (map[string]map[lifecycle.Status]int, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT domain, status, COUNT(*) FROM requests GROUP BY domain, status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]map[lifecycle.Status]int)
	for rows.Next() {
		var domain, status string
		var n int
		if err := rows.Scan(&domain, &status, &n); err != nil {
			return nil, err
		}
		if out[domain] == nil {
			out[domain] = make(map[lifecycle.Status]int)
		}
		out[domain][lifecycle.Status(status)] = n
	}
	return out, rows.Err()
}

// whyNot explains a conditional write that matched no row.
func whyNot(ctx context.Context, q querier, domain, requestID string) error {
	r, err := getRequest(ctx, q, domain, requestID)
	if err != nil {
		return err
	}
	if r.Status != lifecycle.StatusNew {
		return apperr.Conflict("request status changed to %s", r.Status)
	}
	return apperr.Validation("request has no fixed price")
}
