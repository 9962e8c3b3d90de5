package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ternarybob/arbor"

	"github.com/jeiths2202/ims-crawler/internal/models"
)

// IssueStorage persists issues, embeddings, and relations.
type IssueStorage struct {
	pool   *pgxpool.Pool
	logger arbor.ILogger
}

const issueColumns = `id, user_id, ims_id, title, description, status, priority,
	raw_status, raw_priority, category, product, version, module, customer,
	issued_date, reporter, assignee, project_key, issue_type, labels,
	comment_count, attachment_count, issue_details, action_log, source_url,
	custom_fields, crawled_at`

// Save upserts an issue keyed on (user_id, ims_id) and returns its id.
func (s *IssueStorage) Save(ctx context.Context, issue *models.Issue) (int64, error) {
	customFields, err := marshalCustomFields(issue.CustomFields)
	if err != nil {
		return 0, err
	}

	labels := issue.Labels
	if labels == nil {
		labels = []string{}
	}

	var id int64
	err = s.pool.QueryRow(ctx, `
		INSERT INTO ims_issues (
			user_id, ims_id, title, description, status, priority,
			raw_status, raw_priority, category, product, version, module,
			customer, issued_date, reporter, assignee, project_key,
			issue_type, labels, comment_count, attachment_count,
			issue_details, action_log, source_url, custom_fields, crawled_at
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,
			$18,$19,$20,$21,$22,$23,$24,$25,$26
		)
		ON CONFLICT (user_id, ims_id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			status = EXCLUDED.status,
			priority = EXCLUDED.priority,
			raw_status = EXCLUDED.raw_status,
			raw_priority = EXCLUDED.raw_priority,
			category = EXCLUDED.category,
			product = EXCLUDED.product,
			version = EXCLUDED.version,
			module = EXCLUDED.module,
			customer = EXCLUDED.customer,
			issued_date = EXCLUDED.issued_date,
			reporter = EXCLUDED.reporter,
			assignee = EXCLUDED.assignee,
			project_key = EXCLUDED.project_key,
			issue_type = EXCLUDED.issue_type,
			labels = EXCLUDED.labels,
			comment_count = EXCLUDED.comment_count,
			attachment_count = EXCLUDED.attachment_count,
			issue_details = EXCLUDED.issue_details,
			action_log = EXCLUDED.action_log,
			source_url = EXCLUDED.source_url,
			custom_fields = EXCLUDED.custom_fields,
			crawled_at = EXCLUDED.crawled_at
		RETURNING id`,
		issue.UserID, issue.IMSID, issue.Title, issue.Description,
		string(issue.Status), string(issue.Priority),
		issue.RawStatus, issue.RawPriority, issue.Category, issue.Product,
		issue.Version, issue.Module, issue.Customer, issue.IssuedDate,
		issue.Reporter, issue.Assignee, issue.ProjectKey, issue.IssueType,
		labels, issue.CommentCount, issue.AttachmentCount,
		issue.IssueDetails, issue.ActionLog, issue.SourceURL,
		customFields, issue.CrawledAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to save issue %s: %w", issue.IMSID, err)
	}

	issue.ID = id
	return id, nil
}

// SaveEmbedding upserts the embedding and its source text for an issue.
func (s *IssueStorage) SaveEmbedding(ctx context.Context, issueID int64, embedding []float32, text string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ims_issue_embeddings (issue_id, embedding, embedded_text)
		VALUES ($1, $2::vector, $3)
		ON CONFLICT (issue_id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			embedded_text = EXCLUDED.embedded_text,
			created_at = now()`,
		issueID, formatVector(embedding), text,
	)
	if err != nil {
		return fmt.Errorf("failed to save embedding for issue %d: %w", issueID, err)
	}
	return nil
}

// SaveRelation records a relation edge. Duplicate edges are ignored.
func (s *IssueStorage) SaveRelation(ctx context.Context, sourceID, targetID int64, kind models.RelationKind) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ims_issue_relations (source_id, target_id, relation_type)
		VALUES ($1, $2, $3)
		ON CONFLICT (source_id, target_id, relation_type) DO NOTHING`,
		sourceID, targetID, string(kind),
	)
	if err != nil {
		return fmt.Errorf("failed to save relation %d->%d: %w", sourceID, targetID, err)
	}
	return nil
}

// FindByID returns one issue, or nil when absent.
func (s *IssueStorage) FindByID(ctx context.Context, id int64) (*models.Issue, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+issueColumns+` FROM ims_issues WHERE id = $1`, id)
	issue, err := scanIssue(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return issue, err
}

// FindByIDs returns the issues with the given ids, in descending ims_id
// order. Missing ids are skipped.
func (s *IssueStorage) FindByIDs(ctx context.Context, ids []int64) ([]*models.Issue, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+issueColumns+` FROM ims_issues
		 WHERE id = ANY($1)
		 ORDER BY ims_id::bigint DESC`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIssues(rows)
}

// FindByIMSID returns the user's issue with the given ims id, or nil.
func (s *IssueStorage) FindByIMSID(ctx context.Context, userID, imsID string) (*models.Issue, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+issueColumns+` FROM ims_issues WHERE user_id = $1 AND ims_id = $2`,
		userID, imsID)
	issue, err := scanIssue(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return issue, err
}

// FindByUserID returns the user's issues, most recently crawled first.
// A non-positive limit returns all of them.
func (s *IssueStorage) FindByUserID(ctx context.Context, userID string, limit int) ([]*models.Issue, error) {
	query := `SELECT ` + issueColumns + ` FROM ims_issues
		 WHERE user_id = $1
		 ORDER BY crawled_at DESC`
	args := []interface{}{userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIssues(rows)
}

// SearchByVector returns the user's nearest issues by cosine distance, with
// similarity_score attached via the score side channel.
func (s *IssueStorage) SearchByVector(ctx context.Context, userID string, vector []float32, limit int) ([]*models.Issue, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+prefixColumns("i")+`, e.embedding <=> $2::vector AS distance
		FROM ims_issues i
		JOIN ims_issue_embeddings e ON e.issue_id = i.id
		WHERE i.user_id = $1
		ORDER BY distance ASC
		LIMIT $3`,
		userID, formatVector(vector), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var issues []*models.Issue
	for rows.Next() {
		issue, distance, err := scanIssueWithDistance(rows)
		if err != nil {
			return nil, err
		}
		issue.SetScore("similarity_score", 1-distance)
		issues = append(issues, issue)
	}
	return issues, rows.Err()
}

// GetEmbeddings returns stored vectors for the given issue ids.
func (s *IssueStorage) GetEmbeddings(ctx context.Context, ids []int64) (map[int64][]float32, error) {
	if len(ids) == 0 {
		return map[int64][]float32{}, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT issue_id, embedding::text FROM ims_issue_embeddings WHERE issue_id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64][]float32, len(ids))
	for rows.Next() {
		var id int64
		var literal string
		if err := rows.Scan(&id, &literal); err != nil {
			return nil, err
		}
		vec, err := parseVector(literal)
		if err != nil {
			return nil, fmt.Errorf("corrupt embedding for issue %d: %w", id, err)
		}
		out[id] = vec
	}
	return out, rows.Err()
}

// GetEmbeddedIMSIDs reports which ims ids already carry an embedding for
// the user. A nil id list checks all of the user's issues.
func (s *IssueStorage) GetEmbeddedIMSIDs(ctx context.Context, userID string, imsIDs []string) (map[string]bool, error) {
	query := `
		SELECT i.ims_id
		FROM ims_issues i
		JOIN ims_issue_embeddings e ON e.issue_id = i.id
		WHERE i.user_id = $1`
	args := []interface{}{userID}
	if imsIDs != nil {
		query += ` AND i.ims_id = ANY($2)`
		args = append(args, imsIDs)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var imsID string
		if err := rows.Scan(&imsID); err != nil {
			return nil, err
		}
		out[imsID] = true
	}
	return out, rows.Err()
}

// CountByUser returns how many issues the user has stored.
func (s *IssueStorage) CountByUser(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM ims_issues WHERE user_id = $1`, userID).Scan(&count)
	return count, err
}

func marshalCustomFields(fields map[string]interface{}) ([]byte, error) {
	if fields == nil {
		return nil, nil
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal custom fields: %w", err)
	}
	return data, nil
}

func prefixColumns(alias string) string {
	return alias + ".id, " + alias + ".user_id, " + alias + ".ims_id, " +
		alias + ".title, " + alias + ".description, " + alias + ".status, " +
		alias + ".priority, " + alias + ".raw_status, " + alias + ".raw_priority, " +
		alias + ".category, " + alias + ".product, " + alias + ".version, " +
		alias + ".module, " + alias + ".customer, " + alias + ".issued_date, " +
		alias + ".reporter, " + alias + ".assignee, " + alias + ".project_key, " +
		alias + ".issue_type, " + alias + ".labels, " + alias + ".comment_count, " +
		alias + ".attachment_count, " + alias + ".issue_details, " + alias + ".action_log, " +
		alias + ".source_url, " + alias + ".custom_fields, " + alias + ".crawled_at"
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanIssue(row rowScanner) (*models.Issue, error) {
	issue := &models.Issue{}
	var status, priority string
	var customFields []byte
	err := row.Scan(
		&issue.ID, &issue.UserID, &issue.IMSID, &issue.Title, &issue.Description,
		&status, &priority, &issue.RawStatus, &issue.RawPriority,
		&issue.Category, &issue.Product, &issue.Version, &issue.Module,
		&issue.Customer, &issue.IssuedDate, &issue.Reporter, &issue.Assignee,
		&issue.ProjectKey, &issue.IssueType, &issue.Labels,
		&issue.CommentCount, &issue.AttachmentCount, &issue.IssueDetails,
		&issue.ActionLog, &issue.SourceURL, &customFields, &issue.CrawledAt,
	)
	if err != nil {
		return nil, err
	}
	issue.Status = models.IssueStatus(status)
	issue.Priority = models.IssuePriority(priority)
	if len(customFields) > 0 {
		if err := json.Unmarshal(customFields, &issue.CustomFields); err != nil {
			return nil, fmt.Errorf("corrupt custom fields for issue %d: %w", issue.ID, err)
		}
	}
	return issue, nil
}

func scanIssueWithDistance(row rowScanner) (*models.Issue, float64, error) {
	issue := &models.Issue{}
	var status, priority string
	var customFields []byte
	var distance float64
	err := row.Scan(
		&issue.ID, &issue.UserID, &issue.IMSID, &issue.Title, &issue.Description,
		&status, &priority, &issue.RawStatus, &issue.RawPriority,
		&issue.Category, &issue.Product, &issue.Version, &issue.Module,
		&issue.Customer, &issue.IssuedDate, &issue.Reporter, &issue.Assignee,
		&issue.ProjectKey, &issue.IssueType, &issue.Labels,
		&issue.CommentCount, &issue.AttachmentCount, &issue.IssueDetails,
		&issue.ActionLog, &issue.SourceURL, &customFields, &issue.CrawledAt,
		&distance,
	)
	if err != nil {
		return nil, 0, err
	}
	issue.Status = models.IssueStatus(status)
	issue.Priority = models.IssuePriority(priority)
	if len(customFields) > 0 {
		if err := json.Unmarshal(customFields, &issue.CustomFields); err != nil {
			return nil, 0, fmt.Errorf("corrupt custom fields for issue %d: %w", issue.ID, err)
		}
	}
	return issue, distance, nil
}

func scanIssues(rows pgx.Rows) ([]*models.Issue, error) {
	var issues []*models.Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		issues = append(issues, issue)
	}
	return issues, rows.Err()
}
