package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/jeiths2202/ims-crawler/internal/common"
	"github.com/jeiths2202/ims-crawler/internal/interfaces"
	"github.com/jeiths2202/ims-crawler/internal/models"
)

// Service implements ChatService. Answers are bounded to the caller's issue
// id list; conversation history lives in an in-process map.
type Service struct {
	storage  interfaces.IssueStorage
	llm      interfaces.LLMService
	config   *common.ChatConfig
	validate *validator.Validate
	logger   arbor.ILogger

	mu            sync.Mutex
	conversations map[string][]models.Message
}

// NewService creates a new chat service
func NewService(storage interfaces.IssueStorage, llmService interfaces.LLMService, config *common.ChatConfig, logger arbor.ILogger) *Service {
	return &Service{
		storage:       storage,
		llm:           llmService,
		config:        config,
		validate:      validator.New(),
		conversations: make(map[string][]models.Message),
		logger:        logger,
	}
}

// Ask produces a complete answer in one call.
func (s *Service) Ask(ctx context.Context, req *models.ChatRequest) (*models.ChatResponse, error) {
	prep, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	content, err := s.llm.Generate(ctx, prep.messages)
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}

	return s.finish(prep, req, content), nil
}

// AskStream produces the answer as a stream of events: start, tokens, a
// sources enumeration, then done. Any failure emits error and ends the
// stream.
func (s *Service) AskStream(ctx context.Context, req *models.ChatRequest, emit func(models.ChatStreamEvent) error) error {
	prep, err := s.prepare(ctx, req)
	if err != nil {
		return emit(models.ChatStreamEvent{
			Event: models.ChatEventError,
			Error: err.Error(),
		})
	}

	if err := emit(models.ChatStreamEvent{
		Event:          models.ChatEventStart,
		ConversationID: prep.conversationID,
		MessageID:      prep.messageID,
		IssueCount:     len(prep.issues),
	}); err != nil {
		return err
	}

	content, err := s.llm.GenerateStream(ctx, prep.messages, func(chunk string) error {
		return emit(models.ChatStreamEvent{
			Event:   models.ChatEventToken,
			Content: chunk,
		})
	})
	if err != nil {
		emitErr := emit(models.ChatStreamEvent{
			Event: models.ChatEventError,
			Error: err.Error(),
		})
		if emitErr != nil {
			return emitErr
		}
		return err
	}

	sources := make([]models.ChatSource, 0, len(prep.issues))
	for _, issue := range prep.issues {
		sources = append(sources, models.ChatSource{
			IssueID: issue.ID,
			IMSID:   issue.IMSID,
			Title:   issue.Title,
		})
	}
	if err := emit(models.ChatStreamEvent{
		Event:   models.ChatEventSources,
		Sources: sources,
	}); err != nil {
		return err
	}

	resp := s.finish(prep, req, content)
	return emit(models.ChatStreamEvent{
		Event:            models.ChatEventDone,
		ConversationID:   resp.ConversationID,
		MessageID:        resp.MessageID,
		ReferencedIssues: resp.ReferencedIssues,
	})
}

// History returns the retained messages of a conversation, oldest first.
func (s *Service) History(_ context.Context, conversationID string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.conversations[conversationID]
	out := make([]models.Message, len(history))
	copy(out, history)
	return out, nil
}

type prepared struct {
	conversationID string
	messageID      string
	issues         []*models.Issue
	messages       []models.Message
}

// prepare validates the request, loads the in-scope issues, and assembles
// the prompt with bounded history.
func (s *Service) prepare(ctx context.Context, req *models.ChatRequest) (*prepared, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid chat request: %w", err)
	}

	maxIssues := s.config.MaxContextIssues
	if req.MaxContextIssues != nil {
		maxIssues = *req.MaxContextIssues
	}

	ids := req.IssueIDs
	if len(ids) > maxIssues {
		ids = ids[:maxIssues]
	}

	var issues []*models.Issue
	if maxIssues > 0 {
		loaded, err := s.storage.FindByIDs(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("failed to load context issues: %w", err)
		}
		// Scope check: only the caller's own issues enter the prompt.
		for _, issue := range loaded {
			if issue.UserID == req.UserID {
				issues = append(issues, issue)
			}
		}
	}

	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = common.NewConversationID()
	}

	s.mu.Lock()
	history := s.conversations[conversationID]
	if len(history) > s.config.MaxHistoryMessages {
		history = history[len(history)-s.config.MaxHistoryMessages:]
	}
	historyCopy := make([]models.Message, len(history))
	copy(historyCopy, history)
	s.mu.Unlock()

	messages := make([]models.Message, 0, len(historyCopy)+2)
	messages = append(messages, models.Message{
		Role:    "system",
		Content: s.systemPrompt(issues, req.Language),
	})
	messages = append(messages, historyCopy...)
	messages = append(messages, models.Message{Role: "user", Content: req.Question})

	return &prepared{
		conversationID: conversationID,
		messageID:      common.NewMessageID(),
		issues:         issues,
		messages:       messages,
	}, nil
}

// finish records the exchange in history and builds the response.
func (s *Service) finish(prep *prepared, req *models.ChatRequest, content string) *models.ChatResponse {
	s.mu.Lock()
	history := append(s.conversations[prep.conversationID],
		models.Message{Role: "user", Content: req.Question},
		models.Message{Role: "assistant", Content: content},
	)
	if len(history) > s.config.MaxHistoryMessages*2 {
		history = history[len(history)-s.config.MaxHistoryMessages*2:]
	}
	s.conversations[prep.conversationID] = history
	s.mu.Unlock()

	promptChars := 0
	for _, msg := range prep.messages {
		promptChars += len(msg.Content)
	}

	return &models.ChatResponse{
		ConversationID:   prep.conversationID,
		MessageID:        prep.messageID,
		Content:          content,
		ReferencedIssues: harvestReferences(content, prep.issues),
		Usage: models.ChatUsage{
			PromptChars:     promptChars,
			CompletionChars: len(content),
			EstimatedTokens: (promptChars + len(content)) / 4,
		},
		CreatedAt: time.Now().UTC(),
	}
}

// systemPrompt enumerates the in-scope issues and instructs the model to
// answer only from them. With no issues in scope it instructs the model to
// decline.
func (s *Service) systemPrompt(issues []*models.Issue, language string) string {
	var b strings.Builder
	b.WriteString("You are an assistant answering questions about IMS issues. ")
	b.WriteString("Answer ONLY from the issues enumerated below. ")
	b.WriteString("If the answer is not in them, say you do not know. ")
	b.WriteString("When citing an issue, mention its IMS ID.\n")

	switch language {
	case "ko":
		b.WriteString("Answer in Korean.\n")
	case "ja":
		b.WriteString("Answer in Japanese.\n")
	case "en":
		b.WriteString("Answer in English.\n")
	default:
		b.WriteString("Answer in the language of the question.\n")
	}

	if len(issues) == 0 {
		b.WriteString("\nNo issues are in scope. Politely decline to answer.\n")
		return b.String()
	}

	budget := s.config.MaxPromptChars
	for i, issue := range issues {
		section := formatIssue(i+1, issue)
		if budget > 0 && b.Len()+len(section) > budget {
			break
		}
		b.WriteString(section)
	}
	return b.String()
}

func formatIssue(n int, issue *models.Issue) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n--- Issue %d (IMS %s) ---\n", n, issue.IMSID)
	fmt.Fprintf(&b, "Title: %s\n", issue.Title)
	fmt.Fprintf(&b, "Status: %s | Priority: %s\n", issue.RawStatus, issue.RawPriority)
	fmt.Fprintf(&b, "Product: %s | Version: %s | Module: %s\n", issue.Product, issue.Version, issue.Module)
	fmt.Fprintf(&b, "Customer: %s | Reporter: %s | Created: %s\n", issue.Customer, issue.Reporter, issue.IssuedDate)
	if issue.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", issue.Description)
	}
	if issue.IssueDetails != "" {
		fmt.Fprintf(&b, "Details: %s\n", issue.IssueDetails)
	}
	if issue.ActionLog != "" {
		fmt.Fprintf(&b, "Action log: %s\n", issue.ActionLog)
	}
	return b.String()
}

// harvestReferences collects the in-scope ims ids that appear verbatim in
// the model output. Only ids from the input scope can be referenced.
func harvestReferences(content string, issues []*models.Issue) []string {
	var refs []string
	for _, issue := range issues {
		if strings.Contains(content, issue.IMSID) {
			refs = append(refs, issue.IMSID)
		}
	}
	if refs == nil {
		refs = []string{}
	}
	return refs
}
