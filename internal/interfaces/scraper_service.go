package interfaces

import (
	"context"

	"github.com/jeiths2202/ims-crawler/internal/models"
)

// SearchRow is one row of an IMS search result listing, extracted by fixed
// cell position. Detail fields are filled in later by the per-issue crawl.
type SearchRow struct {
	IMSID      string
	Category   string
	Product    string
	Version    string
	Module     string
	Subject    string
	Customer   string
	Project    string
	Reporter   string
	IssuedDate string
}

// SearchOutcome is the result of paging through an IMS search.
type SearchOutcome struct {
	Rows      []SearchRow
	Total     int
	Truncated bool
}

// CrawlOutcome is the result of crawling details for a set of rows.
type CrawlOutcome struct {
	Issues []*models.Issue
	Failed []string // ims ids whose detail fetch failed; row data was kept
}

// ScraperService drives an authenticated IMS browsing session for one user.
// Implementations hold session state; Crawl methods require a prior Login.
type ScraperService interface {
	// Login authenticates against IMS with the given credentials, reusing an
	// existing valid session when one is alive.
	Login(ctx context.Context, creds models.IMSCredentials) error
	// InvalidateSession drops any cached session so the next Login
	// re-authenticates from scratch.
	InvalidateSession()

	// Search pages through the IMS issue list for the query, reporting
	// per-page progress.
	Search(ctx context.Context, query string, productCodes []string, maxIssues int, progress models.ProgressFunc) (*SearchOutcome, error)

	// CrawlDetails fetches detail pages for the rows in parallel batches,
	// newest first, falling back to row-only issues on per-issue failure.
	CrawlDetails(ctx context.Context, userID string, rows []SearchRow, includeRelated bool, progress models.ProgressFunc) (*CrawlOutcome, error)

	// CrawlIssue fetches one issue's detail page by ims id.
	CrawlIssue(ctx context.Context, userID, imsID string) (*models.Issue, error)

	// FetchFile downloads a file through the authenticated session.
	FetchFile(ctx context.Context, fileURL string) ([]byte, error)
}
