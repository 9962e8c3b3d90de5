package llm

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/jeiths2202/ims-crawler/internal/interfaces"
	"github.com/jeiths2202/ims-crawler/internal/models"
)

// MockService is a deterministic in-memory provider for tests and offline
// development. Completions echo a canned reply or a caller-set response;
// embeddings are stable hashes of the input text.
type MockService struct {
	Response   string
	Err        error
	dimensions int

	// Calls records every completion request for assertions.
	Calls [][]models.Message
}

// NewMockService creates a mock provider with the given vector width.
func NewMockService(dimensions int) *MockService {
	if dimensions <= 0 {
		dimensions = 8
	}
	return &MockService{dimensions: dimensions}
}

// Name identifies the provider for logging.
func (s *MockService) Name() string { return "mock" }

func (s *MockService) Generate(_ context.Context, messages []models.Message) (string, error) {
	s.Calls = append(s.Calls, messages)
	if s.Err != nil {
		return "", s.Err
	}
	if s.Response != "" {
		return s.Response, nil
	}
	return "mock response", nil
}

func (s *MockService) GenerateStream(ctx context.Context, messages []models.Message, fn interfaces.StreamFunc) (string, error) {
	out, err := s.Generate(ctx, messages)
	if err != nil {
		return "", err
	}
	if fn != nil {
		// Deliver in two chunks to exercise stream assembly.
		half := len(out) / 2
		for _, chunk := range []string{out[:half], out[half:]} {
			if chunk == "" {
				continue
			}
			if err := fn(chunk); err != nil {
				return out, err
			}
		}
	}
	return out, nil
}

func (s *MockService) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (s *MockService) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = hashVector(text, s.dimensions)
	}
	return vectors, nil
}

func (s *MockService) Dimensions() int { return s.dimensions }

// hashVector derives a stable unit-length-ish vector from text.
func hashVector(text string, dims int) []float32 {
	vec := make([]float32, dims)
	for i := 0; i < dims; i++ {
		h := fnv.New32a()
		fmt.Fprintf(h, "%d:%s", i, text)
		vec[i] = float32(h.Sum32()%1000)/1000.0 - 0.5
	}
	return vec
}
