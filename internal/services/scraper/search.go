package scraper

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/jeiths2202/ims-crawler/internal/interfaces"
	"github.com/jeiths2202/ims-crawler/internal/models"
)

// searchPageSize is fixed by the IMS server, which ignores page-size hints.
const searchPageSize = 10

var (
	reBracketTotal = regexp.MustCompile(`\[\s*Total\s*[:]?\s*([\d,]+)\s*\]`)
	reHiddenTotal  = regexp.MustCompile(`(?i)<input[^>]+name=["']totalCount["'][^>]+value=["']([\d,]+)["']`)
	reJSTotal      = regexp.MustCompile(`(?i)totalCount\s*=\s*["']?([\d,]+)`)
	reLooseTotal   = regexp.MustCompile(`(?i)Total\s*[:=]?\s*([\d,]+)`)
)

// Search pages through the IMS issue list for the query. The server always
// returns fixed pages of 10, so the total is discovered from the first page
// and page indices are walked until the accumulated rows meet the total, an
// empty page appears, or the page ceiling is hit.
func (s *Service) Search(ctx context.Context, query string, productCodes []string, maxIssues int, progress models.ProgressFunc) (*interfaces.SearchOutcome, error) {
	query = strings.TrimSpace(query)

	maxPages := s.config.MaxSearchPages
	if maxPages <= 0 {
		maxPages = 100
	}

	emit(progress, models.ProgressEvent{Type: models.EventSearchStart, Message: query})

	outcome := &interfaces.SearchOutcome{}
	seen := make(map[string]bool)
	total := -1
	totalPages := 0

	for page := 1; page <= maxPages; page++ {
		body, err := s.fetchSearchPage(ctx, query, productCodes, page)
		if err != nil {
			return nil, fmt.Errorf("search page %d failed: %w", page, err)
		}

		if total < 0 {
			total = extractTotalCount(string(body))
			totalPages = (total + searchPageSize - 1) / searchPageSize
			emit(progress, models.ProgressEvent{
				Type:       models.EventSearchCount,
				Total:      total,
				TotalPages: totalPages,
			})
			if total == 0 {
				break
			}
		}

		rows, err := parseSearchRows(body)
		if err != nil {
			return nil, fmt.Errorf("failed to parse search page %d: %w", page, err)
		}
		if len(rows) == 0 {
			break
		}

		for _, row := range rows {
			if seen[row.IMSID] {
				continue
			}
			seen[row.IMSID] = true
			outcome.Rows = append(outcome.Rows, row)
		}

		emit(progress, models.ProgressEvent{
			Type:        models.EventSearchPage,
			CurrentPage: page,
			TotalPages:  totalPages,
		})

		if len(outcome.Rows) >= total {
			break
		}
		if page == maxPages {
			outcome.Truncated = true
			s.logger.Warn().
				Int("max_pages", maxPages).
				Int("fetched", len(outcome.Rows)).
				Int("total", total).
				Msg("Search page ceiling reached, accepting partial results")
		}
	}

	if total < 0 {
		total = 0
	}
	outcome.Total = total

	if maxIssues > 0 && len(outcome.Rows) > maxIssues {
		outcome.Rows = outcome.Rows[:maxIssues]
		outcome.Truncated = true
	}

	emit(progress, models.ProgressEvent{
		Type:         models.EventSearchComplete,
		FetchedCount: len(outcome.Rows),
		Total:        total,
		Truncated:    outcome.Truncated,
	})
	emit(progress, models.ProgressEvent{
		Type:         models.EventSearchCompleted,
		FetchedCount: len(outcome.Rows),
		Total:        total,
		Truncated:    outcome.Truncated,
	})

	s.logger.Info().
		Str("query", query).
		Int("total", total).
		Int("fetched", len(outcome.Rows)).
		Msg("IMS search finished")

	return outcome, nil
}

// fetchSearchPage requests one page of the issue listing. reSearchYN=Y is
// required; without it IMS returns an empty result set.
func (s *Service) fetchSearchPage(ctx context.Context, query string, productCodes []string, page int) ([]byte, error) {
	s.mu.Lock()
	username := s.username
	s.mu.Unlock()

	params := url.Values{}
	params.Set("searchText", query)
	params.Set("reSearchYN", "Y")
	params.Set("pageIndex", strconv.Itoa(page))
	params.Set("pageSize", strconv.Itoa(searchPageSize))
	params.Set("userId", username)
	params.Set("userName", username)
	params.Set("userGrade", "")
	for _, code := range productCodes {
		params.Add("productCodes", code)
	}

	searchURL := s.absoluteURL("/tody/ims/issue/issueSearchList.do") + "?" + params.Encode()
	return s.fetch(ctx, searchURL, s.config.NavigationTimeout)
}

// extractTotalCount discovers the result total from a listing page, trying
// the bracketed form, the hidden input, the inline JS assignment, then a
// loose textual pattern. Returns 0 when none match.
func extractTotalCount(html string) int {
	for _, re := range []*regexp.Regexp{reBracketTotal, reHiddenTotal, reJSTotal, reLooseTotal} {
		if m := re.FindStringSubmatch(html); m != nil {
			digits := strings.ReplaceAll(m[1], ",", "")
			if n, err := strconv.Atoi(digits); err == nil {
				return n
			}
		}
	}
	return 0
}

func emit(progress models.ProgressFunc, event models.ProgressEvent) {
	if progress != nil {
		progress(event)
	}
}
