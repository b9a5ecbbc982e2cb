package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/Harshitk-cp/vigil/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultProbeConcurrency = 4

// EvidenceGatherer runs every evidence tool against every hypothesis.
type EvidenceGatherer struct {
	tools       []domain.EvidenceTool
	concurrency int
	logger      *zap.Logger
}

func NewEvidenceGatherer(tools []domain.EvidenceTool, logger *zap.Logger) *EvidenceGatherer {
	return &EvidenceGatherer{tools: tools, concurrency: defaultProbeConcurrency, logger: logger}
}

func (g *EvidenceGatherer) SetConcurrency(n int) {
	if n > 0 {
		g.concurrency = n
	}
}

// Gather probes hypotheses concurrently. A failing tool is logged and
// skipped, including one that hit its own timeout; only cancellation of ctx
// aborts the gather. Evidence for unknown hypotheses, or with an ID already seen, is
// dropped. Results are ordered by hypothesis then tool.
func (g *EvidenceGatherer) Gather(ctx context.Context, sig domain.Signal, knowledge string, hypotheses []*domain.Hypothesis, seen func(id string) bool) ([]domain.Evidence, error) {
	type slot struct {
		evidence []domain.Evidence
	}
	results := make([]slot, len(hypotheses)*len(g.tools))

	var mu sync.Mutex
	var failures []error

	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(g.concurrency)
	for hi, h := range hypotheses {
		for ti, tool := range g.tools {
			idx := hi*len(g.tools) + ti
			h, tool := h, tool
			grp.Go(func() error {
				ev, err := tool.Probe(gctx, sig, knowledge, h)
				if err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					mu.Lock()
					failures = append(failures, fmt.Errorf("%s on %s: %w: %v", tool.Name(), h.ID, domain.ErrEvidenceToolFailure, err))
					mu.Unlock()
					return nil
				}
				results[idx].evidence = ev
				return nil
			})
		}
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}

	for _, err := range failures {
		g.logger.Warn("evidence tool failed", zap.String("signal_id", sig.ID), zap.Error(err))
	}

	known := make(map[string]bool, len(hypotheses))
	for _, h := range hypotheses {
		known[h.ID] = true
	}
	fresh := make(map[string]bool)
	var out []domain.Evidence
	for _, r := range results {
		for _, ev := range r.evidence {
			if !known[ev.HypothesisID] || ev.ID == "" || fresh[ev.ID] || (seen != nil && seen(ev.ID)) {
				continue
			}
			fresh[ev.ID] = true
			out = append(out, ev)
		}
	}
	return out, nil
}
