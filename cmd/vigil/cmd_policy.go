package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/Harshitk-cp/vigil/internal/domain"
	"github.com/Harshitk-cp/vigil/internal/service"
	"github.com/Harshitk-cp/vigil/internal/store"
	"github.com/spf13/cobra"
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Inspect the decision policy stored in Postgres",
}

var policyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the active decision policy",
	RunE:  runPolicyShow,
}

var policyHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List every stored policy version",
	RunE:  runPolicyHistory,
}

func init() {
	policyCmd.AddCommand(policyShowCmd)
	policyCmd.AddCommand(policyHistoryCmd)
}

func runPolicyShow(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	pool, err := openPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	logger := newLogger()
	defer func() { _ = logger.Sync() }()

	policy, err := service.NewPolicyService(store.NewPolicyStore(pool), nil, logger).Load(ctx)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(policy)
}

func runPolicyHistory(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	pool, err := openPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	versions, err := store.NewPolicyStore(pool).ListVersions(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(versions) == 0 {
		fmt.Fprintln(out, "No policy versions stored yet.")
		return nil
	}
	for _, p := range versions {
		fmt.Fprintf(out, "v%-4d act=%.2f escalate=%.2f accuracy=%.2f incidents=%d %s\n",
			p.Version, p.ConfidenceThresholdAct, p.ConfidenceThresholdEscalate,
			p.AccuracyRate, p.IncidentsEvaluated, formatWeights(p.FrameworkWeights))
		if p.EvolutionReason != "" {
			fmt.Fprintf(out, "      %s\n", p.EvolutionReason)
		}
	}
	return nil
}

func formatWeights(w map[domain.Framework]float64) string {
	keys := make([]string, 0, len(w))
	for f := range w {
		keys = append(keys, string(f))
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%.2f", k, w[domain.Framework(k)])
	}
	return strings.Join(parts, " ")
}
