package search

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/jeiths2202/ims-crawler/internal/common"
	"github.com/jeiths2202/ims-crawler/internal/models"
)

// fakeStorage implements the candidate-loading slice of IssueStorage.
type fakeStorage struct {
	issues     []*models.Issue
	embeddings map[int64][]float32
}

func (f *fakeStorage) Save(ctx context.Context, issue *models.Issue) (int64, error) { return 0, nil }
func (f *fakeStorage) SaveEmbedding(ctx context.Context, issueID int64, embedding []float32, text string) error {
	return nil
}
func (f *fakeStorage) SaveRelation(ctx context.Context, sourceID, targetID int64, kind models.RelationKind) error {
	return nil
}
func (f *fakeStorage) FindByID(ctx context.Context, id int64) (*models.Issue, error) {
	return nil, nil
}
func (f *fakeStorage) FindByIDs(ctx context.Context, ids []int64) ([]*models.Issue, error) {
	return nil, nil
}
func (f *fakeStorage) FindByIMSID(ctx context.Context, userID, imsID string) (*models.Issue, error) {
	return nil, nil
}
func (f *fakeStorage) FindByUserID(ctx context.Context, userID string, limit int) ([]*models.Issue, error) {
	return f.issues, nil
}
func (f *fakeStorage) SearchByVector(ctx context.Context, userID string, vector []float32, limit int) ([]*models.Issue, error) {
	return nil, nil
}
func (f *fakeStorage) GetEmbeddings(ctx context.Context, ids []int64) (map[int64][]float32, error) {
	return f.embeddings, nil
}
func (f *fakeStorage) GetEmbeddedIMSIDs(ctx context.Context, userID string, imsIDs []string) (map[string]bool, error) {
	return nil, nil
}
func (f *fakeStorage) CountByUser(ctx context.Context, userID string) (int, error) {
	return len(f.issues), nil
}

// fixedEmbedder returns a constant query vector.
type fixedEmbedder struct {
	vector []float32
}

func (f *fixedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vector, nil
}
func (f *fixedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vector
	}
	return out, nil
}
func (f *fixedEmbedder) Dimensions() int { return len(f.vector) }

func testConfig() *common.SearchConfig {
	return &common.SearchConfig{
		LexicalWeight:  0.3,
		VectorWeight:   0.7,
		ScoreThreshold: 0.05,
		DefaultLimit:   20,
		CandidateLimit: 500,
	}
}

func testIssue(id int64, title, description string) *models.Issue {
	return &models.Issue{
		ID:          id,
		UserID:      "user-1",
		IMSID:       "900000",
		Title:       title,
		Description: description,
		CrawledAt:   time.Now(),
	}
}

func TestHybridRanking(t *testing.T) {
	storage := &fakeStorage{
		issues: []*models.Issue{
			testIssue(1, "jeus deploy failure", "null pointer during deployment"),
			testIssue(2, "tibero backup", "nightly backup report"),
			testIssue(3, "jeus session", "session replication delay"),
		},
		embeddings: map[int64][]float32{
			1: {1, 0, 0},
			2: {0, 1, 0},
			3: {0.9, 0.1, 0},
		},
	}
	embedder := &fixedEmbedder{vector: []float32{1, 0, 0}}

	svc := NewService(storage, embedder, testConfig(), arbor.NewLogger())

	results, err := svc.Hybrid(context.Background(), "user-1", "jeus deploy", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	// Issue 1 matches both lexically and in vector space.
	assert.Equal(t, int64(1), results[0].ID)

	score, ok := results[0].Score("hybrid_score")
	require.True(t, ok)
	assert.Greater(t, score, 0.5)

	// Scores are attached in descending order.
	for i := 1; i < len(results); i++ {
		prev, _ := results[i-1].Score("hybrid_score")
		cur, _ := results[i].Score("hybrid_score")
		assert.GreaterOrEqual(t, prev, cur)
	}
}

func TestHybridThresholdFiltersNoise(t *testing.T) {
	storage := &fakeStorage{
		issues: []*models.Issue{
			testIssue(1, "completely unrelated", "nothing in common"),
		},
		embeddings: map[int64][]float32{
			1: {0, 1, 0},
		},
	}
	embedder := &fixedEmbedder{vector: []float32{1, 0, 0}}

	svc := NewService(storage, embedder, testConfig(), arbor.NewLogger())

	results, err := svc.Hybrid(context.Background(), "user-1", "jeus deadlock", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestHybridMissingEmbeddingScoresLexicalOnly(t *testing.T) {
	storage := &fakeStorage{
		issues: []*models.Issue{
			testIssue(1, "jeus deadlock on startup", "thread dump attached"),
		},
		embeddings: map[int64][]float32{},
	}
	embedder := &fixedEmbedder{vector: []float32{1, 0, 0}}

	svc := NewService(storage, embedder, testConfig(), arbor.NewLogger())

	results, err := svc.Hybrid(context.Background(), "user-1", "jeus deadlock", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)

	score, ok := results[0].Score("hybrid_score")
	require.True(t, ok)
	// Only the lexical component contributes; max-normalized BM25 gives the
	// sole matching doc the full lexical weight.
	assert.InDelta(t, 0.3, score, 0.01)
}

func TestHybridLimit(t *testing.T) {
	storage := &fakeStorage{embeddings: map[int64][]float32{}}
	for i := int64(1); i <= 10; i++ {
		storage.issues = append(storage.issues, testIssue(i, "jeus error", "common text"))
		storage.embeddings[i] = []float32{1, 0, 0}
	}
	embedder := &fixedEmbedder{vector: []float32{1, 0, 0}}

	svc := NewService(storage, embedder, testConfig(), arbor.NewLogger())

	results, err := svc.Hybrid(context.Background(), "user-1", "jeus", 3)
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestHybridNoCandidates(t *testing.T) {
	svc := NewService(&fakeStorage{}, &fixedEmbedder{vector: []float32{1}}, testConfig(), arbor.NewLogger())

	results, err := svc.Hybrid(context.Background(), "user-1", "anything", 10)
	require.NoError(t, err)
	assert.Nil(t, results)
}
