package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Harshitk-cp/vigil/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PolicyStore keeps every policy version as an immutable row and tracks the
// active one through a single-row pointer table.
type PolicyStore struct {
	db *pgxpool.Pool
}

func NewPolicyStore(db *pgxpool.Pool) *PolicyStore {
	return &PolicyStore{db: db}
}

const policyColumns = `p.id, p.version, p.act_threshold, p.escalate_threshold, p.framework_weights,
	p.reasoning_artifacts, p.policy_insights, p.incidents_evaluated, p.accuracy_rate,
	p.evolved_from, p.evolution_reason, p.created_at`

func scanPolicy(row pgx.Row) (*domain.DecisionPolicy, error) {
	p := &domain.DecisionPolicy{}
	var weights, artifacts, insights []byte
	if err := row.Scan(&p.ID, &p.Version, &p.ConfidenceThresholdAct, &p.ConfidenceThresholdEscalate, &weights,
		&artifacts, &insights, &p.IncidentsEvaluated, &p.AccuracyRate,
		&p.EvolvedFrom, &p.EvolutionReason, &p.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(weights, &p.FrameworkWeights); err != nil {
		return nil, fmt.Errorf("decode framework weights: %w", err)
	}
	if err := json.Unmarshal(artifacts, &p.ReasoningArtifacts); err != nil {
		return nil, fmt.Errorf("decode reasoning artifacts: %w", err)
	}
	if err := json.Unmarshal(insights, &p.PolicyInsights); err != nil {
		return nil, fmt.Errorf("decode policy insights: %w", err)
	}
	return p, nil
}

func (s *PolicyStore) GetCurrent(ctx context.Context) (*domain.DecisionPolicy, error) {
	p, err := scanPolicy(s.db.QueryRow(ctx,
		`SELECT `+policyColumns+`
		 FROM active_policy a
		 JOIN decision_policies p ON p.id = a.policy_id`))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

// Update stores p as a new version and makes it active in one transaction.
// Storing a version number twice returns ErrConflict.
func (s *PolicyStore) Update(ctx context.Context, p *domain.DecisionPolicy) error {
	weights, err := json.Marshal(p.FrameworkWeights)
	if err != nil {
		return fmt.Errorf("encode framework weights: %w", err)
	}
	artifacts, err := json.Marshal(p.ReasoningArtifacts)
	if err != nil {
		return fmt.Errorf("encode reasoning artifacts: %w", err)
	}
	insights, err := json.Marshal(p.PolicyInsights)
	if err != nil {
		return fmt.Errorf("encode policy insights: %w", err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx,
		`INSERT INTO decision_policies (id, version, act_threshold, escalate_threshold, framework_weights,
		                                reasoning_artifacts, policy_insights, incidents_evaluated, accuracy_rate,
		                                evolved_from, evolution_reason)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING created_at`,
		p.ID, p.Version, p.ConfidenceThresholdAct, p.ConfidenceThresholdEscalate, weights,
		artifacts, insights, p.IncidentsEvaluated, p.AccuracyRate,
		p.EvolvedFrom, p.EvolutionReason,
	).Scan(&p.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("policy version %d: %w", p.Version, ErrConflict)
		}
		return err
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO active_policy (singleton, policy_id, activated_at)
		 VALUES (TRUE, $1, NOW())
		 ON CONFLICT (singleton)
		 DO UPDATE SET policy_id = EXCLUDED.policy_id, activated_at = NOW()`,
		p.ID,
	); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *PolicyStore) ListVersions(ctx context.Context) ([]domain.DecisionPolicy, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+policyColumns+`
		 FROM decision_policies p
		 ORDER BY p.version`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var policies []domain.DecisionPolicy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		policies = append(policies, *p)
	}
	return policies, rows.Err()
}

func (s *PolicyStore) GetByVersion(ctx context.Context, version int) (*domain.DecisionPolicy, error) {
	p, err := scanPolicy(s.db.QueryRow(ctx,
		`SELECT `+policyColumns+`
		 FROM decision_policies p WHERE p.version = $1`,
		version,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}
