package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeiths2202/ims-crawler/internal/interfaces"
	"github.com/jeiths2202/ims-crawler/internal/models"
)

func detailPage(imsID string) string {
	return fmt.Sprintf(`<html><body>
		<table><tr><td class="tableHeaderTitle">Subject</td><td>Detail %s</td></tr></table>
		<div id="contents">body of %s</div>
	</body></html>`, imsID, imsID)
}

func TestCrawlDetailsBatches(t *testing.T) {
	var mu sync.Mutex
	var fetched []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tody/ims/issue/issueView.do":
			require.NoError(t, r.ParseForm())
			id := r.PostForm.Get("issueId")
			require.Equal(t, "ims", r.PostForm.Get("menuCode"))
			mu.Lock()
			fetched = append(fetched, id)
			mu.Unlock()
			if id == "900007" {
				http.Error(w, "boom", http.StatusInternalServerError)
				return
			}
			fmt.Fprint(w, detailPage(id))
		case "/tody/ims/issue/findRelationIssues.do":
			fmt.Fprint(w, "[]")
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	s := newTestService(t, srv)
	s.config.DetailConcurrency = 4

	var rows []interfaces.SearchRow
	for i := 1; i <= 9; i++ {
		rows = append(rows, interfaces.SearchRow{
			IMSID:   fmt.Sprintf("90000%d", i),
			Subject: fmt.Sprintf("row subject %d", i),
			Product: "JEUS",
		})
	}

	var events []models.ProgressEvent
	outcome, err := s.CrawlDetails(context.Background(), "user-1", rows, false, func(e models.ProgressEvent) {
		events = append(events, e)
	})
	require.NoError(t, err)
	require.Len(t, outcome.Issues, 9)

	// Newest ims id first.
	for i := 0; i < len(outcome.Issues)-1; i++ {
		a, _ := strconv.Atoi(outcome.Issues[i].IMSID)
		b, _ := strconv.Atoi(outcome.Issues[i+1].IMSID)
		assert.Greater(t, a, b)
	}

	// The failed fetch fell back to the search row.
	assert.Equal(t, []string{"900007"}, outcome.Failed)
	for _, issue := range outcome.Issues {
		if issue.IMSID == "900007" {
			assert.Equal(t, "row subject 7", issue.Title)
			assert.Equal(t, "JEUS", issue.Product)
		} else {
			assert.Equal(t, "Detail "+issue.IMSID, issue.Title)
		}
	}

	// 9 rows at concurrency 4 run in 3 batches.
	var batchCompletes int
	for _, e := range events {
		if e.Type == models.EventCrawlBatchComplete {
			batchCompletes++
		}
	}
	assert.Equal(t, 3, batchCompletes)
	assert.Equal(t, models.EventCrawlStart, events[0].Type)
	assert.Equal(t, models.EventCrawlFetchDone, events[len(events)-1].Type)

	mu.Lock()
	assert.Len(t, fetched, 9)
	mu.Unlock()
}

func TestCrawlDetailsExcludesRelatedWhenDisabled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tody/ims/issue/issueView.do":
			fmt.Fprint(w, detailPage("900001"))
		case "/tody/ims/issue/findRelationIssues.do":
			fmt.Fprint(w, `[{"issueId":900001,"relationIssueId":900500}]`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	s := newTestService(t, srv)
	rows := []interfaces.SearchRow{{IMSID: "900001", Subject: "s"}}

	outcome, err := s.CrawlDetails(context.Background(), "user-1", rows, false, nil)
	require.NoError(t, err)
	require.Len(t, outcome.Issues, 1)
	assert.Nil(t, outcome.Issues[0].RelatedIMSIDs)

	outcome, err = s.CrawlDetails(context.Background(), "user-1", rows, true, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"900500"}, outcome.Issues[0].RelatedIMSIDs)
}
