package models

import "time"

// IntentKind classifies a natural-language query.
type IntentKind string

const (
	IntentKeyword  IntentKind = "keyword"
	IntentStatus   IntentKind = "status"
	IntentPriority IntentKind = "priority"
	IntentDate     IntentKind = "date"
	IntentAssignee IntentKind = "assignee"
	IntentProject  IntentKind = "project"
	IntentComplex  IntentKind = "complex"
	IntentSemantic IntentKind = "semantic"
	IntentListAll  IntentKind = "list_all"
)

// SearchIntent is the immutable structured form of a user query. Produced by
// the NL parser, consumed by the retrieval path, never persisted.
type SearchIntent struct {
	Kind          IntentKind `json:"intent"`
	Keywords      []string   `json:"keywords,omitempty"`
	Statuses      []string   `json:"statuses,omitempty"`
	Priorities    []string   `json:"priorities,omitempty"`
	Assignee      string     `json:"assignee,omitempty"`
	Project       string     `json:"project,omitempty"`
	DateFrom      *time.Time `json:"date_from,omitempty"`
	DateTo        *time.Time `json:"date_to,omitempty"`
	SemanticQuery string     `json:"semantic_query,omitempty"`
	Confidence    float64    `json:"confidence"`
}
