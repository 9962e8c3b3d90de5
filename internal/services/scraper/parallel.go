package scraper

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jeiths2202/ims-crawler/internal/interfaces"
	"github.com/jeiths2202/ims-crawler/internal/models"
)

// CrawlDetails fetches detail pages for the rows in parallel batches of the
// configured size, newest issues first. A per-issue failure substitutes a
// fallback record built from the search row, so the result length always
// equals the input length.
func (s *Service) CrawlDetails(ctx context.Context, userID string, rows []interfaces.SearchRow, includeRelated bool, progress models.ProgressFunc) (*interfaces.CrawlOutcome, error) {
	batchSize := s.config.DetailConcurrency
	if batchSize <= 0 {
		batchSize = 10
	}

	sorted := make([]interfaces.SearchRow, len(rows))
	copy(sorted, rows)
	sort.Slice(sorted, func(i, j int) bool {
		a, _ := strconv.ParseInt(sorted[i].IMSID, 10, 64)
		b, _ := strconv.ParseInt(sorted[j].IMSID, 10, 64)
		return a > b
	})

	totalBatches := (len(sorted) + batchSize - 1) / batchSize
	outcome := &interfaces.CrawlOutcome{
		Issues: make([]*models.Issue, len(sorted)),
	}

	emit(progress, models.ProgressEvent{
		Type:         models.EventCrawlStart,
		Total:        len(sorted),
		TotalBatches: totalBatches,
	})

	var mu sync.Mutex

	for batch := 0; batch < totalBatches; batch++ {
		start := batch * batchSize
		end := start + batchSize
		if end > len(sorted) {
			end = len(sorted)
		}

		emit(progress, models.ProgressEvent{
			Type:         models.EventCrawlBatchStart,
			Batch:        batch + 1,
			TotalBatches: totalBatches,
		})

		success := 0
		fail := 0

		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			i := i
			row := sorted[i]
			g.Go(func() error {
				issue, err := s.CrawlIssue(gctx, userID, row.IMSID)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					s.logger.Warn().
						Str("ims_id", row.IMSID).
						Err(err).
						Msg("Detail fetch failed, using search row fallback")
					outcome.Issues[i] = fallbackIssue(userID, row)
					outcome.Failed = append(outcome.Failed, row.IMSID)
					fail++
					return nil
				}
				if !includeRelated {
					issue.RelatedIMSIDs = nil
				}
				enrichFromRow(issue, row)
				outcome.Issues[i] = issue
				success++
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		emit(progress, models.ProgressEvent{
			Type:         models.EventCrawlBatchComplete,
			Batch:        batch + 1,
			TotalBatches: totalBatches,
			BatchSuccess: success,
			BatchFail:    fail,
			Processed:    end,
		})
	}

	emit(progress, models.ProgressEvent{
		Type:         models.EventCrawlComplete,
		FetchedCount: len(outcome.Issues),
	})
	emit(progress, models.ProgressEvent{
		Type:         models.EventCrawlFetchDone,
		FetchedCount: len(outcome.Issues),
	})

	return outcome, nil
}

// fallbackIssue builds a row-only record when the detail fetch fails.
func fallbackIssue(userID string, row interfaces.SearchRow) *models.Issue {
	issue := &models.Issue{
		UserID:     userID,
		IMSID:      row.IMSID,
		Title:      row.Subject,
		Status:     models.NormalizeStatus(""),
		Priority:   models.NormalizePriority(""),
		Category:   row.Category,
		Product:    row.Product,
		Version:    row.Version,
		Module:     row.Module,
		Customer:   row.Customer,
		Reporter:   row.Reporter,
		ProjectKey: row.Project,
		IssuedDate: row.IssuedDate,
		CrawledAt:  time.Now().UTC(),
	}
	issue.EnsureTitle()
	return issue
}

// enrichFromRow fills detail fields the view page left empty from the
// search listing.
func enrichFromRow(issue *models.Issue, row interfaces.SearchRow) {
	if issue.Title == "" || issue.Title == "Issue "+issue.IMSID {
		if row.Subject != "" {
			issue.Title = row.Subject
		}
	}
	if issue.Category == "" {
		issue.Category = row.Category
	}
	if issue.Product == "" {
		issue.Product = row.Product
	}
	if issue.Version == "" {
		issue.Version = row.Version
	}
	if issue.Module == "" {
		issue.Module = row.Module
	}
	if issue.Customer == "" {
		issue.Customer = row.Customer
	}
	if issue.Reporter == "" {
		issue.Reporter = row.Reporter
	}
	if issue.ProjectKey == "" {
		issue.ProjectKey = row.Project
	}
	if issue.IssuedDate == "" {
		issue.IssuedDate = row.IssuedDate
	}
}
