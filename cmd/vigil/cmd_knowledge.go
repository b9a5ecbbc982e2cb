package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/Harshitk-cp/vigil/internal/config"
	"github.com/Harshitk-cp/vigil/internal/embedding"
	"github.com/Harshitk-cp/vigil/internal/knowledge"
	"github.com/Harshitk-cp/vigil/internal/store"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

var knowledgeFlags struct {
	dir string
}

var knowledgeCmd = &cobra.Command{
	Use:   "knowledge",
	Short: "Manage reference knowledge documents",
}

var knowledgeSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load YAML knowledge documents into Postgres, embedding them when configured",
	RunE:  runKnowledgeSeed,
}

func init() {
	f := knowledgeSeedCmd.Flags()
	f.StringVar(&knowledgeFlags.dir, "dir", "", "Directory of YAML knowledge documents (required)")
	_ = knowledgeSeedCmd.MarkFlagRequired("dir")

	knowledgeCmd.AddCommand(knowledgeSeedCmd)
}

func openPool(ctx context.Context) (*pgxpool.Pool, error) {
	dbURL := config.DatabaseURL()
	if dbURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

func runKnowledgeSeed(cmd *cobra.Command, _ []string) error {
	docs, err := knowledge.LoadDir(knowledgeFlags.dir)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	pool, err := openPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	embedder, err := embedding.NewClient(config.EmbeddingProvider(), config.EmbeddingAPIKey())
	if err != nil {
		return err
	}

	logger := newLogger()
	defer func() { _ = logger.Sync() }()

	ks := store.NewKnowledgeStore(pool, embedder, logger)
	for i := range docs {
		if err := ks.Upsert(ctx, &docs[i]); err != nil {
			return fmt.Errorf("upsert %q: %w", docs[i].ID, err)
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d document(s) from %s\n", len(docs), knowledgeFlags.dir)
	return nil
}
