package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/Harshitk-cp/vigil/internal/domain"
)

const (
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"
	ProviderNone   = "none"
)

var (
	ErrUnknownProvider   = errors.New("unknown embedding provider")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// NewClient returns the embedder for provider. ProviderNone yields a nil
// client, which turns knowledge similarity search off.
func NewClient(provider, apiKey string) (domain.EmbeddingClient, error) {
	switch provider {
	case ProviderOpenAI:
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for the openai embedding provider")
		}
		return sized{next: NewOpenAIClient(apiKey), dims: Dimensions}, nil
	case ProviderMock:
		return NewMockClient(), nil
	case ProviderNone, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("%w %q (valid: openai, mock, none)", ErrUnknownProvider, provider)
	}
}

// sized rejects vectors that would not fit the knowledge_documents column.
type sized struct {
	next domain.EmbeddingClient
	dims int
}

func (s sized) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := s.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vec) != s.dims {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), s.dims)
	}
	return vec, nil
}
