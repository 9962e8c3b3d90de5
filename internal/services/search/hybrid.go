package search

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/ternarybob/arbor"

	"github.com/jeiths2202/ims-crawler/internal/common"
	"github.com/jeiths2202/ims-crawler/internal/interfaces"
	"github.com/jeiths2202/ims-crawler/internal/models"
)

const bm25Epsilon = 1e-9

// Service implements SearchService. Candidates come from the store's recent
// issues for the user; ranking combines normalized BM25 with cosine
// similarity against stored embeddings.
type Service struct {
	storage  interfaces.IssueStorage
	embedder interfaces.EmbeddingService
	config   *common.SearchConfig
	logger   arbor.ILogger
}

// NewService creates a new hybrid search service
func NewService(storage interfaces.IssueStorage, embedder interfaces.EmbeddingService, config *common.SearchConfig, logger arbor.ILogger) *Service {
	return &Service{
		storage:  storage,
		embedder: embedder,
		config:   config,
		logger:   logger,
	}
}

// Hybrid ranks the user's stored issues against the query. The hybrid score
// lands in each issue's score side channel under "hybrid_score".
func (s *Service) Hybrid(ctx context.Context, userID, query string, limit int) ([]*models.Issue, error) {
	if limit <= 0 {
		limit = s.config.DefaultLimit
	}
	candidateLimit := s.config.CandidateLimit
	if candidateLimit < limit {
		candidateLimit = limit
	}

	candidates, err := s.storage.FindByUserID(ctx, userID, candidateLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load candidates: %w", err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	queryTokens := Tokenize(query)
	docs := make([][]string, len(candidates))
	ids := make([]int64, len(candidates))
	for i, issue := range candidates {
		docs[i] = Tokenize(issue.Title + " " + issue.Description)
		ids[i] = issue.ID
	}
	idx := newBM25Index(docs)

	bm25Scores := make([]float64, len(candidates))
	maxBM25 := 0.0
	for i := range candidates {
		bm25Scores[i] = idx.score(i, queryTokens)
		if bm25Scores[i] > maxBM25 {
			maxBM25 = bm25Scores[i]
		}
	}

	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	embeddings, err := s.storage.GetEmbeddings(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load embeddings: %w", err)
	}

	type scored struct {
		issue *models.Issue
		score float64
	}
	results := make([]scored, 0, len(candidates))
	for i, issue := range candidates {
		bm25Norm := bm25Scores[i] / (maxBM25 + bm25Epsilon)

		cosine := 0.0
		if vec, ok := embeddings[issue.ID]; ok {
			cosine = cosineSimilarity(queryVec, vec)
		}

		hybrid := s.config.LexicalWeight*bm25Norm + s.config.VectorWeight*cosine
		if hybrid < s.config.ScoreThreshold {
			continue
		}
		issue.SetScore("hybrid_score", hybrid)
		results = append(results, scored{issue: issue, score: hybrid})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].score > results[j].score
	})
	if len(results) > limit {
		results = results[:limit]
	}

	ranked := make([]*models.Issue, len(results))
	for i, r := range results {
		ranked[i] = r.issue
	}

	s.logger.Debug().
		Str("user_id", userID).
		Int("candidates", len(candidates)).
		Int("returned", len(ranked)).
		Msg("Hybrid search completed")

	return ranked, nil
}

// cosineSimilarity computes cosine similarity of two vectors. Mismatched
// lengths or zero vectors score 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
