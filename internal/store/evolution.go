package store

import (
	"context"

	"github.com/Harshitk-cp/vigil/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type EvolutionLogStore struct {
	db *pgxpool.Pool
}

func NewEvolutionLogStore(db *pgxpool.Pool) *EvolutionLogStore {
	return &EvolutionLogStore{db: db}
}

func (s *EvolutionLogStore) Append(ctx context.Context, r *domain.PolicyEvolutionRecord) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return s.db.QueryRow(ctx,
		`INSERT INTO policy_evolutions (id, from_policy_id, from_version, to_policy_id, to_version, reason, changes, replays_seen)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING created_at`,
		r.ID, r.FromPolicyID, r.FromVersion, r.ToPolicyID, r.ToVersion, r.Reason, r.Changes, r.ReplaysSeen,
	).Scan(&r.CreatedAt)
}

// List returns the newest records first. A non-positive limit returns all.
func (s *EvolutionLogStore) List(ctx context.Context, limit int) ([]domain.PolicyEvolutionRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(ctx,
		`SELECT id, from_policy_id, from_version, to_policy_id, to_version, reason, changes, replays_seen, created_at
		 FROM policy_evolutions
		 ORDER BY created_at DESC
		 LIMIT NULLIF($1, -1)`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.PolicyEvolutionRecord
	for rows.Next() {
		var r domain.PolicyEvolutionRecord
		if err := rows.Scan(&r.ID, &r.FromPolicyID, &r.FromVersion, &r.ToPolicyID, &r.ToVersion,
			&r.Reason, &r.Changes, &r.ReplaysSeen, &r.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
