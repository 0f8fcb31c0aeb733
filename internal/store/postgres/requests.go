package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/sudo-init-do/errandhub/internal/apperr"
	"github.com/sudo-init-do/errandhub/internal/lifecycle"
)

const requestColumns = `id::text, domain, requester_id::text, requester_tg_id, origin, destination, title, details, comment,
    price_mode, client_price, final_price, status, provider_id::text, provider_tg_id, resource_id::text, created_at, updated_at`

const bidColumns = `id::text, domain, request_id::text, provider_id::text, provider_tg_id, offered_price, comment, status, created_at, updated_at`

func scanRequest(row pgx.Row) (*lifecycle.Request, error) {
	var (
		r          lifecycle.Request
		mode       string
		status     string
		providerID *string
		providerTg *int64
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
	if providerID != nil {
		r.Provider = &lifecycle.Party{UserID: *providerID}
		if providerTg != nil {
			r.Provider.ExternalID = *providerTg
		}
	}
	return &r, nil
}

func scanBid(row pgx.Row) (*lifecycle.Bid, error) {
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

func (s *Store) CreateRequest(ctx context.Context, r *lifecycle.Request) error {
	_, err := s.pool.Exec(ctx, `
        INSERT INTO requests (id, domain, requester_id, requester_tg_id, origin, destination, title, details, comment,
                              price_mode, client_price, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		r.ID, r.Domain, r.Requester.UserID, r.Requester.ExternalID, r.Origin, r.Destination, r.Title, r.Details, r.Comment,
		string(r.PriceMode), r.ClientPrice, string(r.Status), r.CreatedAt, r.UpdatedAt,
	)
	if isUniqueViolation(err, activeRequestIndex) {
		return apperr.Conflict("you already have an active request")
	}
	return err
}

func (s *Store) GetRequest(ctx context.Context, domain, id string) (*lifecycle.Request, error) {
	r, err := scanRequest(s.pool.QueryRow(ctx,
		`SELECT `+requestColumns+` FROM requests WHERE id::text = $1 AND domain = $2`, id, domain))
	if noRows(err) {
		return nil, apperr.NotFound("request not found")
	}
	return r, err
}

func (s *Store) ListRequests(ctx context.Context, domain string, f lifecycle.Filter) ([]lifecycle.Request, error) {
	where := []string{"domain = $1"}
	args := []any{domain}
	if f.RequesterID != "" {
		args = append(args, f.RequesterID)
		where = append(where, fmt.Sprintf("requester_id::text = $%d", len(args)))
	}
	if f.ProviderID != "" {
		args = append(args, f.ProviderID)
		where = append(where, fmt.Sprintf("provider_id::text = $%d", len(args)))
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		args = append(args, statuses)
		where = append(where, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	query := `SELECT ` + requestColumns + ` FROM requests WHERE ` + strings.Join(where, " AND ") + ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
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

func (s *Store) UpsertBid(ctx context.Context, b *lifecycle.Bid) (*lifecycle.Bid, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// share lock: a concurrent accept waits for this bid, or this bid sees
	// the accepted request
	var status string
	err = tx.QueryRow(ctx,
		`SELECT status FROM requests WHERE id::text = $1 AND domain = $2 FOR SHARE`, b.RequestID, b.Domain,
	).Scan(&status)
	if noRows(err) {
		return nil, apperr.NotFound("request not found")
	}
	if err != nil {
		return nil, err
	}
	if lifecycle.Status(status) != lifecycle.StatusNew {
		return nil, apperr.Conflict("request is no longer open")
	}

	stored, err := scanBid(tx.QueryRow(ctx, `
        INSERT INTO bids (id, domain, request_id, provider_id, provider_tg_id, offered_price, comment, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, 'PENDING', $8, $8)
        ON CONFLICT (request_id, provider_id) WHERE status = 'PENDING'
        DO UPDATE SET offered_price = EXCLUDED.offered_price, comment = EXCLUDED.comment, updated_at = EXCLUDED.updated_at
        RETURNING `+bidColumns,
		b.ID, b.Domain, b.RequestID, b.Provider.UserID, b.Provider.ExternalID, b.OfferedPrice, b.Comment, b.CreatedAt,
	))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return stored, nil
}

func (s *Store) GetBid(ctx context.Context, domain, id string) (*lifecycle.Bid, error) {
	b, err := scanBid(s.pool.QueryRow(ctx,
		`SELECT `+bidColumns+` FROM bids WHERE id::text = $1 AND domain = $2`, id, domain))
	if noRows(err) {
		return nil, apperr.NotFound("offer not found")
	}
	return b, err
}

func (s *Store) ListBids(ctx context.Context, domain, requestID string, status lifecycle.BidStatus) ([]lifecycle.Bid, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT `+bidColumns+` FROM bids
        WHERE domain = $1 AND request_id::text = $2 AND ($3 = '' OR status = $3)
        ORDER BY updated_at DESC`, domain, requestID, string(status))
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

func (s *Store) AcceptBid(ctx context.Context, domain, bidID string, resourceID *string) (*lifecycle.Request, error) {
	var requestID string
	err := s.pool.QueryRow(ctx,
		`SELECT request_id::text FROM bids WHERE id::text = $1 AND domain = $2`, bidID, domain,
	).Scan(&requestID)
	if noRows(err) {
		return nil, apperr.NotFound("offer not found")
	}
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// lock order is request then bid, same as UpsertBid
	var status string
	if err := tx.QueryRow(ctx, `SELECT status FROM requests WHERE id::text = $1 FOR UPDATE`, requestID).Scan(&status); err != nil {
		return nil, err
	}
	if lifecycle.Status(status) != lifecycle.StatusNew {
		return nil, apperr.Conflict("request is no longer open")
	}

	bid, err := scanBid(tx.QueryRow(ctx, `SELECT `+bidColumns+` FROM bids WHERE id::text = $1 FOR UPDATE`, bidID))
	if err != nil {
		return nil, err
	}
	if bid.Status != lifecycle.BidPending {
		return nil, apperr.Conflict("offer is no longer pending")
	}

	assigned, err := scanRequest(tx.QueryRow(ctx, `
        UPDATE requests
        SET status = 'ASSIGNED', final_price = $1, provider_id = $2, provider_tg_id = $3, resource_id = $4, updated_at = NOW()
        WHERE id::text = $5 AND status = 'NEW'
        RETURNING `+requestColumns,
		bid.OfferedPrice, bid.Provider.UserID, bid.Provider.ExternalID, resourceID, requestID,
	))
	if noRows(err) {
		return nil, apperr.Conflict("request is no longer open")
	}
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `UPDATE bids SET status = 'ACCEPTED', updated_at = NOW() WHERE id::text = $1`, bidID); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `
        UPDATE bids SET status = 'REJECTED', updated_at = NOW()
        WHERE request_id::text = $1 AND id::text <> $2 AND status = 'PENDING'`, requestID, bidID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return assigned, nil
}

func (s *Store) ClaimFixed(ctx context.Context, domain, requestID string, provider lifecycle.Party, resourceID *string) (*lifecycle.Request, error) {
	assigned, err := scanRequest(s.pool.QueryRow(ctx, `
        UPDATE requests
        SET status = 'ASSIGNED', final_price = client_price, provider_id = $1, provider_tg_id = $2, resource_id = $3, updated_at = NOW()
        WHERE id::text = $4 AND domain = $5 AND status = 'NEW' AND price_mode = 'FIXED' AND client_price > 0
        RETURNING `+requestColumns,
		provider.UserID, provider.ExternalID, resourceID, requestID, domain,
	))
	if noRows(err) {
		return nil, s.whyNot(ctx, domain, requestID)
	}
	return assigned, err
}

func (s *Store) UpdateStatus(ctx context.Context, domain, requestID string, from, to lifecycle.Status) (*lifecycle.Request, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	updated, err := scanRequest(tx.QueryRow(ctx, `
        UPDATE requests SET status = $1, updated_at = NOW()
        WHERE id::text = $2 AND domain = $3 AND status = $4
        RETURNING `+requestColumns,
		string(to), requestID, domain, string(from),
	))
	if noRows(err) {
		return nil, s.whyNot(ctx, domain, requestID)
	}
	if err != nil {
		return nil, err
	}

	if to == lifecycle.StatusCancelled {
		if _, err := tx.Exec(ctx, `
            UPDATE bids SET status = 'REJECTED', updated_at = NOW()
            WHERE request_id::text = $1 AND status = 'PENDING'`, requestID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Store) CountByStatus(ctx context.Context) (map[string]map[lifecycle.Status]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT domain, status, COUNT(*) FROM requests GROUP BY domain, status`)
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
func (s *Store) whyNot(ctx context.Context, domain, requestID string) error {
	r, err := s.GetRequest(ctx, domain, requestID)
	if err != nil {
		return err
	}
	if r.Status != lifecycle.StatusNew {
		return apperr.Conflict("request status changed to %s", r.Status)
	}
	return apperr.Validation("request has no fixed price")
}
