package probe

import (
	"context"
	"fmt"
	"strings"

	"github.com/Harshitk-cp/vigil/internal/domain"
)

const (
	KnowledgeSource = "knowledge_base"

	corroborationStrength   = 0.3
	corroborationConfidence = 0.6
)

var frameworkTerms = map[domain.Framework][]string{
	domain.FrameworkHACCP:          {"haccp", "critical control point", "ccp", "quarantine", "hold"},
	domain.FrameworkFMEA:           {"failure mode", "rpn", "maintenance", "bearing", "lubrication"},
	domain.FrameworkTOC:            {"constraint", "bottleneck", "throughput", "buffer"},
	domain.FrameworkRCA:            {"root cause", "5 whys", "corrective action", "capa"},
	domain.FrameworkCounterfactual: {"shutdown", "contingency", "reroute", "what if"},
}

// KnowledgeProbe looks for corroboration of a hypothesis in the knowledge
// context retrieved for the signal.
type KnowledgeProbe struct{}

func NewKnowledgeProbe() *KnowledgeProbe {
	return &KnowledgeProbe{}
}

func (p *KnowledgeProbe) Name() string { return "knowledge_probe" }

func (p *KnowledgeProbe) Probe(ctx context.Context, sig domain.Signal, knowledge string, h *domain.Hypothesis) ([]domain.Evidence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text := strings.ToLower(knowledge)
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	var hits []string
	for _, term := range frameworkTerms[h.Framework()] {
		if strings.Contains(text, term) {
			hits = append(hits, term)
		}
	}
	if a := strings.ReplaceAll(h.RecommendedAction, "_", " "); a != "" && strings.Contains(text, a) {
		hits = append(hits, a)
	}
	if len(hits) == 0 {
		return nil, nil
	}

	strength := corroborationStrength * float64(min(len(hits), 3))
	return []domain.Evidence{domain.NewEvidence(
		fmt.Sprintf("ev_%s_%s", p.Name(), h.ID),
		h.ID, KnowledgeSource, p.Name(),
		true, strength, corroborationConfidence,
		map[string]any{"matched_terms": hits},
	)}, nil
}
