package store

import (
	"context"
	"errors"

	"github.com/Harshitk-cp/vigil/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ReplayStore persists counterfactual replays. The seq column preserves
// insertion order.
type ReplayStore struct {
	db *pgxpool.Pool
}

func NewReplayStore(db *pgxpool.Pool) *ReplayStore {
	return &ReplayStore{db: db}
}

const replayColumns = `id, signal_id, policy_version, chosen_hypothesis_id, chosen_hypothesis_description,
	chosen_framework, chosen_action, alternative_hypothesis_id, alternative_hypothesis_description,
	alternative_framework, alternative_action, actual_outcome,
	predicted_alternative_outcome, production_delta, time_delta_minutes, risk_delta, cost_delta,
	insight, should_update_policy, update_recommendation, created_at`

func scanReplay(row pgx.Row) (*domain.CounterfactualReplay, error) {
	r := &domain.CounterfactualReplay{}
	err := row.Scan(&r.ID, &r.SignalID, &r.PolicyVersion, &r.ChosenHypothesisID, &r.ChosenHypothesisDescription,
		&r.ChosenFramework, &r.ChosenAction, &r.AlternativeHypothesisID, &r.AlternativeHypothesisDescription,
		&r.AlternativeFramework, &r.AlternativeAction, &r.ActualOutcome,
		&r.PredictedAlternativeOutcome, &r.ProductionDelta, &r.TimeDeltaMinutes, &r.RiskDelta, &r.CostDelta,
		&r.Insight, &r.ShouldUpdatePolicy, &r.UpdateRecommendation, &r.CreatedAt)
	return r, err
}

func (s *ReplayStore) Append(ctx context.Context, r *domain.CounterfactualReplay) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return s.db.QueryRow(ctx,
		`INSERT INTO counterfactual_replays (id, signal_id, policy_version, chosen_hypothesis_id, chosen_hypothesis_description,
		                                     chosen_framework, chosen_action, alternative_hypothesis_id, alternative_hypothesis_description,
		                                     alternative_framework, alternative_action, actual_outcome,
		                                     predicted_alternative_outcome, production_delta, time_delta_minutes, risk_delta, cost_delta,
		                                     insight, should_update_policy, update_recommendation)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		 RETURNING created_at`,
		r.ID, r.SignalID, r.PolicyVersion, r.ChosenHypothesisID, r.ChosenHypothesisDescription,
		r.ChosenFramework, r.ChosenAction, r.AlternativeHypothesisID, r.AlternativeHypothesisDescription,
		r.AlternativeFramework, r.AlternativeAction, r.ActualOutcome,
		r.PredictedAlternativeOutcome, r.ProductionDelta, r.TimeDeltaMinutes, r.RiskDelta, r.CostDelta,
		r.Insight, r.ShouldUpdatePolicy, r.UpdateRecommendation,
	).Scan(&r.CreatedAt)
}

func (s *ReplayStore) List(ctx context.Context) ([]domain.CounterfactualReplay, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+replayColumns+` FROM counterfactual_replays ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var replays []domain.CounterfactualReplay
	for rows.Next() {
		r, err := scanReplay(rows)
		if err != nil {
			return nil, err
		}
		replays = append(replays, *r)
	}
	return replays, rows.Err()
}

func (s *ReplayStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM counterfactual_replays`).Scan(&n)
	return n, err
}

func (s *ReplayStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.CounterfactualReplay, error) {
	r, err := scanReplay(s.db.QueryRow(ctx,
		`SELECT `+replayColumns+` FROM counterfactual_replays WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return r, nil
}

// TrimOldest deletes all but the newest keep replays.
func (s *ReplayStore) TrimOldest(ctx context.Context, keep int) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM counterfactual_replays
		 WHERE seq < (
		     SELECT COALESCE(MIN(seq), 0) FROM (
		         SELECT seq FROM counterfactual_replays ORDER BY seq DESC LIMIT $1
		     ) newest
		 )`,
		keep,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
