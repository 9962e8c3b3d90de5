package intent

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/jeiths2202/ims-crawler/internal/interfaces"
	"github.com/jeiths2202/ims-crawler/internal/models"
	"github.com/jeiths2202/ims-crawler/internal/services/llm"
)

// fallbackConfidence is assigned when the LLM parse fails and the query
// degrades to whitespace-split keywords.
const fallbackConfidence = 0.5

const systemPrompt = `You classify issue-tracker search queries. Respond with ONLY a JSON object, no prose:
{
  "intent": "keyword|status|priority|date|assignee|project|complex|semantic|list_all",
  "keywords": ["..."],
  "statuses": ["open|in_progress|resolved|closed|pending|rejected"],
  "priorities": ["critical|high|medium|low|trivial"],
  "assignee": "",
  "project": "",
  "date_from": "YYYY-MM-DD or empty",
  "date_to": "YYYY-MM-DD or empty",
  "semantic_query": "",
  "confidence": 0.0
}
Queries may be Korean, Japanese or English. Omit fields that do not apply.`

// Service implements IntentService on top of the LLM port.
type Service struct {
	llm    interfaces.LLMService
	logger arbor.ILogger
}

// NewService creates a new intent service
func NewService(llmService interfaces.LLMService, logger arbor.ILogger) *Service {
	return &Service{
		llm:    llmService,
		logger: logger,
	}
}

// llmIntent is the wire shape the model is asked to produce. Dates arrive
// as strings and are parsed leniently.
type llmIntent struct {
	Intent        string   `json:"intent"`
	Keywords      []string `json:"keywords"`
	Statuses      []string `json:"statuses"`
	Priorities    []string `json:"priorities"`
	Assignee      string   `json:"assignee"`
	Project       string   `json:"project"`
	DateFrom      string   `json:"date_from"`
	DateTo        string   `json:"date_to"`
	SemanticQuery string   `json:"semantic_query"`
	Confidence    float64  `json:"confidence"`
}

// Parse classifies the query. LLM failure or unparseable output degrades to
// a keyword intent rather than failing the caller.
func (s *Service) Parse(ctx context.Context, query string) (*models.SearchIntent, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return &models.SearchIntent{Kind: models.IntentListAll, Confidence: 1}, nil
	}

	messages := []models.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: query},
	}

	response, err := s.llm.Generate(ctx, messages)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Msg("Intent LLM call failed, falling back to keyword intent")
		return keywordFallback(query), nil
	}

	jsonText, err := llm.ExtractJSON(response)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Msg("Intent response had no JSON, falling back to keyword intent")
		return keywordFallback(query), nil
	}

	var raw llmIntent
	if err := json.Unmarshal([]byte(jsonText), &raw); err != nil {
		s.logger.Warn().
			Err(err).
			Msg("Intent JSON did not parse, falling back to keyword intent")
		return keywordFallback(query), nil
	}

	intent := &models.SearchIntent{
		Kind:          models.IntentKind(raw.Intent),
		Keywords:      raw.Keywords,
		Statuses:      raw.Statuses,
		Priorities:    raw.Priorities,
		Assignee:      raw.Assignee,
		Project:       raw.Project,
		SemanticQuery: raw.SemanticQuery,
		Confidence:    raw.Confidence,
	}
	if !validIntentKind(intent.Kind) {
		return keywordFallback(query), nil
	}
	intent.DateFrom = parseDate(raw.DateFrom)
	intent.DateTo = parseDate(raw.DateTo)

	return intent, nil
}

// ToIMSSyntax renders the intent as an IMS search string: space is OR,
// +word is AND, 'phrase' is exact.
func (s *Service) ToIMSSyntax(intent *models.SearchIntent) string {
	var parts []string

	switch intent.Kind {
	case models.IntentSemantic:
		if intent.SemanticQuery != "" {
			parts = append(parts, strings.Fields(intent.SemanticQuery)...)
		}
	default:
		for i, kw := range intent.Keywords {
			kw = strings.TrimSpace(kw)
			if kw == "" {
				continue
			}
			if strings.Contains(kw, " ") {
				kw = "'" + kw + "'"
			} else if i > 0 {
				kw = "+" + kw
			}
			parts = append(parts, kw)
		}
	}

	if intent.Assignee != "" {
		parts = append(parts, "+"+intent.Assignee)
	}
	if intent.Project != "" {
		parts = append(parts, "+"+intent.Project)
	}

	return strings.Join(parts, " ")
}

func keywordFallback(query string) *models.SearchIntent {
	return &models.SearchIntent{
		Kind:       models.IntentKeyword,
		Keywords:   strings.Fields(query),
		Confidence: fallbackConfidence,
	}
}

func validIntentKind(kind models.IntentKind) bool {
	switch kind {
	case models.IntentKeyword, models.IntentStatus, models.IntentPriority,
		models.IntentDate, models.IntentAssignee, models.IntentProject,
		models.IntentComplex, models.IntentSemantic, models.IntentListAll:
		return true
	}
	return false
}

func parseDate(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return &t
		}
	}
	return nil
}
