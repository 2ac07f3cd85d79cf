// README: Trip store backed by PostgreSQL; the trip body is a JSONB document.
package trip

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oxymore-tech/liane-sub002/internal/types"
)

const dbTimeout = 3 * time.Second

type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Insert(ctx context.Context, t *Trip) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	doc, err := json.Marshal(t)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
        INSERT INTO trips (id, state, version, departure_time, created_by, doc, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		string(t.ID), string(t.State), t.Version, t.DepartureTime, string(t.CreatedBy), doc, t.CreatedAt,
	)
	return err
}

func (s *PGStore) Get(ctx context.Context, id types.ID) (*Trip, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var doc []byte
	err := s.db.QueryRow(ctx, `SELECT doc FROM trips WHERE id = $1`, string(id)).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var t Trip
	if err := json.Unmarshal(doc, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdateIf is the MongoDB filter-on-write idiom generalized to SQL: the
// precondition (state, version) lives in the WHERE clause of the same
// statement that writes the document.
func (s *PGStore) UpdateIf(ctx context.Context, id types.ID, expectState State, expectVersion int, next *Trip) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	doc, err := json.Marshal(next)
	if err != nil {
		return false, err
	}
	tag, err := s.db.Exec(ctx, `
        UPDATE trips
        SET state = $1, version = $2, departure_time = $3, doc = $4
        WHERE id = $5 AND state = $6 AND version = $7`,
		string(next.State), next.Version, next.DepartureTime, doc,
		string(id), string(expectState), expectVersion,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGStore) ListNotStartedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*Trip, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.db.Query(ctx, `
        SELECT doc FROM trips
        WHERE state = $1 AND departure_time < $2
        ORDER BY departure_time
        LIMIT $3`,
		string(StateNotStarted), cutoff, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Trip
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var t Trip
		if err := json.Unmarshal(doc, &t); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (s *PGStore) AppendChange(ctx context.Context, rec *ChangeRecord) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var actor *string
	if rec.ActorID != nil {
		v := string(*rec.ActorID)
		actor = &v
	}
	_, err := s.db.Exec(ctx, `
        INSERT INTO trip_events (trip_id, from_state, to_state, actor_type, actor_id, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)`,
		string(rec.TripID), string(rec.FromState), string(rec.ToState), rec.ActorType, actor, rec.CreatedAt,
	)
	return err
}
