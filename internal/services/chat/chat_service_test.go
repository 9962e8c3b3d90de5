package chat

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/jeiths2202/ims-crawler/internal/common"
	"github.com/jeiths2202/ims-crawler/internal/models"
	"github.com/jeiths2202/ims-crawler/internal/services/llm"
)

// chatStorage serves a fixed issue set through FindByIDs.
type chatStorage struct {
	issues map[int64]*models.Issue
}

func (f *chatStorage) Save(ctx context.Context, issue *models.Issue) (int64, error) { return 0, nil }
func (f *chatStorage) SaveEmbedding(ctx context.Context, issueID int64, embedding []float32, text string) error {
	return nil
}
func (f *chatStorage) SaveRelation(ctx context.Context, sourceID, targetID int64, kind models.RelationKind) error {
	return nil
}
func (f *chatStorage) FindByID(ctx context.Context, id int64) (*models.Issue, error) {
	return f.issues[id], nil
}
func (f *chatStorage) FindByIDs(ctx context.Context, ids []int64) ([]*models.Issue, error) {
	var out []*models.Issue
	for _, id := range ids {
		if issue, ok := f.issues[id]; ok {
			out = append(out, issue)
		}
	}
	return out, nil
}
func (f *chatStorage) FindByIMSID(ctx context.Context, userID, imsID string) (*models.Issue, error) {
	return nil, nil
}
func (f *chatStorage) FindByUserID(ctx context.Context, userID string, limit int) ([]*models.Issue, error) {
	return nil, nil
}
func (f *chatStorage) SearchByVector(ctx context.Context, userID string, vector []float32, limit int) ([]*models.Issue, error) {
	return nil, nil
}
func (f *chatStorage) GetEmbeddings(ctx context.Context, ids []int64) (map[int64][]float32, error) {
	return nil, nil
}
func (f *chatStorage) GetEmbeddedIMSIDs(ctx context.Context, userID string, imsIDs []string) (map[string]bool, error) {
	return nil, nil
}
func (f *chatStorage) CountByUser(ctx context.Context, userID string) (int, error) { return 0, nil }

func intPtr(n int) *int { return &n }

func chatConfig() *common.ChatConfig {
	return &common.ChatConfig{
		MaxContextIssues:   10,
		MaxHistoryMessages: 10,
		MaxPromptChars:     48000,
	}
}

func newChatFixture(response string) (*Service, *llm.MockService, *chatStorage) {
	mock := llm.NewMockService(8)
	mock.Response = response
	storage := &chatStorage{issues: map[int64]*models.Issue{
		1: {ID: 1, UserID: "user-1", IMSID: "900001", Title: "JEUS deploy NPE", Description: "stack trace attached"},
		2: {ID: 2, UserID: "user-1", IMSID: "900002", Title: "Tibero lock wait", Description: "deadlock on update"},
		3: {ID: 3, UserID: "someone-else", IMSID: "900003", Title: "Foreign issue", Description: "not yours"},
	}}
	return NewService(storage, mock, chatConfig(), arbor.NewLogger()), mock, storage
}

func TestAskValidation(t *testing.T) {
	svc, _, _ := newChatFixture("answer")

	tests := []struct {
		name string
		req  *models.ChatRequest
	}{
		{"missing user", &models.ChatRequest{Question: "q", IssueIDs: []int64{1}}},
		{"missing question", &models.ChatRequest{UserID: "u", IssueIDs: []int64{1}}},
		{"empty issue ids", &models.ChatRequest{UserID: "u", Question: "q", IssueIDs: nil}},
		{"bad language", &models.ChatRequest{UserID: "u", Question: "q", IssueIDs: []int64{1}, Language: "fr"}},
		{"max context over cap", &models.ChatRequest{UserID: "u", Question: "q", IssueIDs: []int64{1}, MaxContextIssues: intPtr(51)}},
		{"max context negative", &models.ChatRequest{UserID: "u", Question: "q", IssueIDs: []int64{1}, MaxContextIssues: intPtr(-1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Ask(context.Background(), tt.req)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid chat request")
		})
	}
}

func TestAskScopesIssuesToUser(t *testing.T) {
	svc, mock, _ := newChatFixture("Issue 900001 explains the NPE.")

	resp, err := svc.Ask(context.Background(), &models.ChatRequest{
		UserID:   "user-1",
		Question: "what causes the NPE?",
		IssueIDs: []int64{1, 3},
	})
	require.NoError(t, err)

	// The foreign issue never enters the prompt.
	require.Len(t, mock.Calls, 1)
	system := mock.Calls[0][0]
	assert.Equal(t, "system", system.Role)
	assert.Contains(t, system.Content, "900001")
	assert.NotContains(t, system.Content, "900003")

	assert.Equal(t, []string{"900001"}, resp.ReferencedIssues)
	assert.NotEmpty(t, resp.ConversationID)
	assert.NotEmpty(t, resp.MessageID)
	assert.Greater(t, resp.Usage.EstimatedTokens, 0)
}

func TestAskReferencedIssuesNeverNil(t *testing.T) {
	svc, _, _ := newChatFixture("no ids mentioned here")

	resp, err := svc.Ask(context.Background(), &models.ChatRequest{
		UserID:   "user-1",
		Question: "summary please",
		IssueIDs: []int64{1},
	})
	require.NoError(t, err)
	assert.NotNil(t, resp.ReferencedIssues)
	assert.Empty(t, resp.ReferencedIssues)
}

func TestAskHistoryRetained(t *testing.T) {
	svc, mock, _ := newChatFixture("first answer")

	resp, err := svc.Ask(context.Background(), &models.ChatRequest{
		UserID:   "user-1",
		Question: "first question",
		IssueIDs: []int64{1},
	})
	require.NoError(t, err)

	mock.Response = "second answer"
	_, err = svc.Ask(context.Background(), &models.ChatRequest{
		UserID:         "user-1",
		Question:       "second question",
		IssueIDs:       []int64{1},
		ConversationID: resp.ConversationID,
	})
	require.NoError(t, err)

	// The second prompt carries the first exchange.
	second := mock.Calls[1]
	var roles []string
	for _, m := range second {
		roles = append(roles, m.Role)
	}
	assert.Equal(t, []string{"system", "user", "assistant", "user"}, roles)
	assert.Equal(t, "first question", second[1].Content)
	assert.Equal(t, "first answer", second[2].Content)

	history, err := svc.History(context.Background(), resp.ConversationID)
	require.NoError(t, err)
	assert.Len(t, history, 4)
}

func TestAskStreamEventOrder(t *testing.T) {
	svc, _, _ := newChatFixture("Answer citing 900002 here.")

	var events []models.ChatStreamEvent
	err := svc.AskStream(context.Background(), &models.ChatRequest{
		UserID:   "user-1",
		Question: "which issue has the deadlock?",
		IssueIDs: []int64{1, 2},
		Stream:   true,
	}, func(e models.ChatStreamEvent) error {
		events = append(events, e)
		return nil
	})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(events), 4)

	assert.Equal(t, models.ChatEventStart, events[0].Event)
	assert.Equal(t, 2, events[0].IssueCount)

	var content string
	for _, e := range events[1 : len(events)-2] {
		require.Equal(t, models.ChatEventToken, e.Event)
		content += e.Content
	}
	assert.Equal(t, "Answer citing 900002 here.", content)

	sources := events[len(events)-2]
	require.Equal(t, models.ChatEventSources, sources.Event)
	require.Len(t, sources.Sources, 2)
	assert.Equal(t, "900001", sources.Sources[0].IMSID)

	done := events[len(events)-1]
	assert.Equal(t, models.ChatEventDone, done.Event)
	assert.Equal(t, []string{"900002"}, done.ReferencedIssues)
}

func TestAskStreamValidationEmitsError(t *testing.T) {
	svc, _, _ := newChatFixture("answer")

	var events []models.ChatStreamEvent
	err := svc.AskStream(context.Background(), &models.ChatRequest{
		UserID:   "user-1",
		Question: "q",
	}, func(e models.ChatStreamEvent) error {
		events = append(events, e)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.ChatEventError, events[0].Event)
	assert.Contains(t, events[0].Error, "invalid chat request")
}

func TestAskStreamLLMFailure(t *testing.T) {
	svc, mock, _ := newChatFixture("")
	mock.Err = fmt.Errorf("provider down")

	var events []models.ChatStreamEvent
	err := svc.AskStream(context.Background(), &models.ChatRequest{
		UserID:   "user-1",
		Question: "q",
		IssueIDs: []int64{1},
	}, func(e models.ChatStreamEvent) error {
		events = append(events, e)
		return nil
	})
	require.Error(t, err)

	last := events[len(events)-1]
	assert.Equal(t, models.ChatEventError, last.Event)
	assert.Contains(t, last.Error, "provider down")
}

func TestZeroContextIssuesDeclines(t *testing.T) {
	svc, mock, _ := newChatFixture("I cannot answer without context.")

	// An explicit 0 is not "absent": no issues enter the prompt and the
	// model is instructed to decline.
	resp, err := svc.Ask(context.Background(), &models.ChatRequest{
		UserID:           "user-1",
		Question:         "anything?",
		IssueIDs:         []int64{1},
		MaxContextIssues: intPtr(0),
	})
	require.NoError(t, err)
	assert.Empty(t, resp.ReferencedIssues)

	system := mock.Calls[0][0].Content
	assert.Contains(t, system, "No issues are in scope")
	assert.NotContains(t, system, "900001")
}
