package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/Harshitk-cp/vigil/internal/domain"
	"github.com/Harshitk-cp/vigil/internal/knowledge"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	"go.uber.org/zap"
)

const (
	knowledgeCandidateLimit  = 50
	knowledgeSimilarityFloor = 0.3
)

// KnowledgeStore serves reference documents from Postgres. Candidates are
// matched on category and keywords, ranked in process, and topped up by
// vector similarity when an embedding client is configured.
type KnowledgeStore struct {
	db       *pgxpool.Pool
	embedder domain.EmbeddingClient
	logger   *zap.Logger
}

func NewKnowledgeStore(db *pgxpool.Pool, embedder domain.EmbeddingClient, logger *zap.Logger) *KnowledgeStore {
	return &KnowledgeStore{db: db, embedder: embedder, logger: logger}
}

// Upsert inserts or replaces a document by ID, embedding its content when
// an embedding client is configured.
func (s *KnowledgeStore) Upsert(ctx context.Context, d *domain.KnowledgeDocument) error {
	if s.embedder != nil && len(d.Embedding) == 0 {
		emb, err := s.embedder.Embed(ctx, d.Title+"\n"+d.Content)
		if err != nil {
			return fmt.Errorf("embed document %s: %w", d.ID, err)
		}
		d.Embedding = emb
	}

	var embedding *pgvector.Vector
	if len(d.Embedding) > 0 {
		v := pgvector.NewVector(d.Embedding)
		embedding = &v
	}

	_, err := s.db.Exec(ctx,
		`INSERT INTO knowledge_documents (id, title, category, keywords, content, embedding)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE
		 SET title = EXCLUDED.title, category = EXCLUDED.category, keywords = EXCLUDED.keywords,
		     content = EXCLUDED.content, embedding = EXCLUDED.embedding, updated_at = NOW()`,
		d.ID, d.Title, d.Category, d.Keywords, d.Content, embedding,
	)
	return err
}

func (s *KnowledgeStore) GetContextForSignal(ctx context.Context, signalType string, keywords []string) (string, error) {
	patterns := make([]string, 0, len(keywords)+1)
	patterns = append(patterns, "%"+strings.ReplaceAll(signalType, "_", " ")+"%")
	for _, k := range keywords {
		if k = strings.TrimSpace(k); k != "" {
			patterns = append(patterns, "%"+k+"%")
		}
	}

	rows, err := s.db.Query(ctx,
		`SELECT id, title, category, keywords, content
		 FROM knowledge_documents
		 WHERE category = $1
		    OR title ILIKE ANY($2)
		    OR content ILIKE ANY($2)
		 ORDER BY id
		 LIMIT $3`,
		signalType, patterns, knowledgeCandidateLimit,
	)
	if err != nil {
		return "", err
	}
	var docs []domain.KnowledgeDocument
	for rows.Next() {
		var d domain.KnowledgeDocument
		if err := rows.Scan(&d.ID, &d.Title, &d.Category, &d.Keywords, &d.Content); err != nil {
			rows.Close()
			return "", err
		}
		docs = append(docs, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return "", err
	}

	ranked := knowledge.Rank(docs, signalType, keywords, knowledge.MaxDocuments)
	if len(ranked) < knowledge.MaxDocuments && s.embedder != nil {
		similar, err := s.similar(ctx, signalType, keywords, ranked, knowledge.MaxDocuments-len(ranked))
		if err != nil {
			s.logger.Warn("knowledge similarity search failed", zap.String("signal_type", signalType), zap.Error(err))
		} else {
			ranked = append(ranked, similar...)
		}
	}
	return knowledge.Render(ranked), nil
}

func (s *KnowledgeStore) similar(ctx context.Context, signalType string, keywords []string, exclude []domain.KnowledgeDocument, limit int) ([]domain.KnowledgeDocument, error) {
	emb, err := s.embedder.Embed(ctx, signalType+" "+strings.Join(keywords, " "))
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(exclude))
	for i, d := range exclude {
		ids[i] = d.ID
	}

	rows, err := s.db.Query(ctx,
		`SELECT id, title, category, keywords, content
		 FROM knowledge_documents
		 WHERE embedding IS NOT NULL
		   AND NOT (id = ANY($2))
		   AND 1 - (embedding <=> $1) >= $3
		 ORDER BY embedding <=> $1
		 LIMIT $4`,
		pgvector.NewVector(emb), ids, knowledgeSimilarityFloor, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []domain.KnowledgeDocument
	for rows.Next() {
		var d domain.KnowledgeDocument
		if err := rows.Scan(&d.ID, &d.Title, &d.Category, &d.Keywords, &d.Content); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}
