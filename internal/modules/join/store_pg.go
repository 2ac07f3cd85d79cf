// README: Postgres join request store.
package join

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oxymore-tech/liane-sub002/internal/types"
)

const dbTimeout = 3 * time.Second

type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) Insert(ctx context.Context, r *Request) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	doc, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal join request: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO join_requests (id, trip_id, requester, doc, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		string(r.ID), string(r.TripID), string(r.Requester), doc, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert join request: %w", err)
	}
	return nil
}

func (s *PGStore) Get(ctx context.Context, id types.ID) (*Request, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var doc []byte
	err := s.pool.QueryRow(ctx, `SELECT doc FROM join_requests WHERE id = $1`, string(id)).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get join request: %w", err)
	}
	var r Request
	if err := json.Unmarshal(doc, &r); err != nil {
		return nil, fmt.Errorf("decode join request: %w", err)
	}
	return &r, nil
}

func (s *PGStore) Delete(ctx context.Context, id types.ID) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `DELETE FROM join_requests WHERE id = $1`, string(id))
	if err != nil {
		return fmt.Errorf("delete join request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) ListByTrip(ctx context.Context, tripID types.ID) ([]*Request, error) {
	return s.list(ctx, `SELECT doc FROM join_requests WHERE trip_id = $1 ORDER BY created_at`, string(tripID))
}

func (s *PGStore) ListByRequester(ctx context.Context, userID types.ID) ([]*Request, error) {
	return s.list(ctx, `SELECT doc FROM join_requests WHERE requester = $1 ORDER BY created_at`, string(userID))
}

func (s *PGStore) list(ctx context.Context, query string, arg any) ([]*Request, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list join requests: %w", err)
	}
	defer rows.Close()

	var out []*Request
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan join request: %w", err)
		}
		var r Request
		if err := json.Unmarshal(doc, &r); err != nil {
			return nil, fmt.Errorf("decode join request: %w", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}
