package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Harshitk-cp/vigil/internal/api"
	"github.com/Harshitk-cp/vigil/internal/domain"
	"github.com/Harshitk-cp/vigil/internal/oracle"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var investigateFlags struct {
	file         string
	knowledgeDir string
	mock         bool
	asJSON       bool
}

var investigateCmd = &cobra.Command{
	Use:   "investigate",
	Short: "Run one signal through a local in-memory investigation",
	RunE:  runInvestigate,
}

func init() {
	f := investigateCmd.Flags()
	f.StringVarP(&investigateFlags.file, "file", "f", "", "Signal YAML file (required)")
	f.StringVar(&investigateFlags.knowledgeDir, "knowledge-dir", "", "Directory of YAML knowledge documents")
	f.BoolVar(&investigateFlags.mock, "mock", false, "Use the offline mock oracle")
	f.BoolVar(&investigateFlags.asJSON, "json", false, "Print the full run state as JSON")

	_ = investigateCmd.MarkFlagRequired("file")
}

func loadSignal(path string) (domain.Signal, error) {
	var sig domain.Signal
	data, err := os.ReadFile(path)
	if err != nil {
		return sig, err
	}
	if err := yaml.Unmarshal(data, &sig); err != nil {
		return sig, fmt.Errorf("parse signal: %w", err)
	}
	if sig.ID == "" || sig.Type == "" {
		return sig, errors.New("signal needs id and type")
	}
	return sig, nil
}

func runInvestigate(cmd *cobra.Command, _ []string) error {
	sig, err := loadSignal(investigateFlags.file)
	if err != nil {
		return err
	}

	logger := newLogger()
	defer func() { _ = logger.Sync() }()

	opts := api.Options{KnowledgeDir: investigateFlags.knowledgeDir}
	if investigateFlags.mock {
		opts.Oracle = oracle.NewMockClient()
	}
	app, err := api.NewApp(opts, logger)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	ctx := cmd.Context()
	if _, err := app.Policies.Load(ctx); err != nil {
		return fmt.Errorf("load policy: %w", err)
	}

	st, err := app.Investigator.Investigate(ctx, sig)
	if err != nil {
		var invErr *domain.InvestigationError
		if errors.As(err, &invErr) && invErr.State != nil {
			_ = printRun(cmd.OutOrStdout(), invErr.State, investigateFlags.asJSON)
		}
		return err
	}
	return printRun(cmd.OutOrStdout(), st, investigateFlags.asJSON)
}

func printRun(out io.Writer, st *domain.RunState, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}

	fmt.Fprintf(out, "Signal:     %s (%s)\n", st.SignalID, st.Signal.Type)
	fmt.Fprintf(out, "Outcome:    %s\n", st.Outcome)
	fmt.Fprintf(out, "Frameworks: %s\n", joinFrameworks(st.Frameworks))
	fmt.Fprintf(out, "Evidence:   %d item(s) over %d pass(es)\n", len(st.Evidence), len(st.EvidenceHistory))
	if st.Belief != nil {
		fmt.Fprintf(out, "Hypotheses:\n")
		for _, h := range st.Belief.Ranked() {
			fmt.Fprintf(out, "  %-6.3f %-14s %s\n", st.Belief.Posteriors[h.ID], h.Framework(), h.Description)
		}
	}
	if st.SelectedAction != "" {
		fmt.Fprintf(out, "Action:     %s\n", st.SelectedAction)
	}
	if st.NeedsHuman {
		fmt.Fprintf(out, "Escalated:  %s\n", st.ActionRationale)
	}
	if st.Counterfactual != nil {
		fmt.Fprintf(out, "Replay:     score %.3f, optimal=%t\n", st.Counterfactual.Score(), st.Counterfactual.WasOptimalChoice())
	}
	if st.DriftAlert != nil {
		fmt.Fprintf(out, "Drift:      %s %s\n", st.DriftAlert.Kind, st.DriftAlert.Framework)
	}
	if st.EvolvedPolicyVersion > 0 {
		fmt.Fprintf(out, "Policy:     evolved to v%d\n", st.EvolvedPolicyVersion)
	}
	if st.Error != "" {
		fmt.Fprintf(out, "Error:      %s\n", st.Error)
	}
	return nil
}

func joinFrameworks(fs []domain.Framework) string {
	names := make([]string, len(fs))
	for i, f := range fs {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}
