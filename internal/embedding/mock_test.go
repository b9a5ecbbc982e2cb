package embedding

import (
	"context"
	"errors"
	"testing"
)

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func TestMockClient_SimilarTextsAreCloser(t *testing.T) {
	c := NewMockClient()
	ctx := context.Background()

	a, _ := c.Embed(ctx, "cold chain temperature excursion")
	b, _ := c.Embed(ctx, "temperature excursion in cold storage")
	z, _ := c.Embed(ctx, "conveyor jam at capper")

	if len(a) != Dimensions {
		t.Fatalf("expected %d dims, got %d", Dimensions, len(a))
	}
	if dot(a, b) <= dot(a, z) {
		t.Errorf("expected related texts to score higher: related=%v unrelated=%v", dot(a, b), dot(a, z))
	}
}

func TestMockClient_Deterministic(t *testing.T) {
	c := NewMockClient()
	a, _ := c.Embed(context.Background(), "bearing vibration")
	b, _ := c.Embed(context.Background(), "bearing vibration")
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("expected identical vectors for identical text")
		}
	}
}

func TestNewClient_None(t *testing.T) {
	c, err := NewClient(ProviderNone, "")
	if err != nil || c != nil {
		t.Fatalf("expected nil client without error, got %v %v", c, err)
	}
}

func TestNewClient_UnknownProvider(t *testing.T) {
	if _, err := NewClient("cohere", "k"); !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
	if _, err := NewClient(ProviderOpenAI, ""); err == nil {
		t.Fatal("expected an error without an API key")
	}
}

func TestSized_RejectsWrongDimensions(t *testing.T) {
	c := sized{next: &MockClient{Dims: 8}, dims: Dimensions}
	if _, err := c.Embed(context.Background(), "filler vibration"); !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}

	ok := sized{next: NewMockClient(), dims: Dimensions}
	vec, err := ok.Embed(context.Background(), "filler vibration")
	if err != nil || len(vec) != Dimensions {
		t.Fatalf("expected %d dims, got %d (%v)", Dimensions, len(vec), err)
	}
}
