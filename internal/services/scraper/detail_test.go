package scraper

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/jeiths2202/ims-crawler/internal/common"
	"github.com/jeiths2202/ims-crawler/internal/models"
)

const detailFixture = `
<html><body>
<table>
  <tr><td class="tableHeaderTitle">Subject</td><td>JEUS deploy fails with NPE</td></tr>
  <tr><td class="tableHeaderTitle">Status</td><td>진행중</td></tr>
  <tr><td class="tableHeaderTitle">Priority</td><td>Urgent</td></tr>
  <tr><td class="tableHeaderTitle">Category</td><td>Defect</td></tr>
  <tr><td class="tableHeaderTitle">Product</td><td>JEUS</td></tr>
  <tr><td class="tableHeaderTitle">Version</td><td>8.5</td></tr>
  <tr><td class="tableHeaderTitle">Customer</td><td>ACME</td></tr>
  <tr><td class="tableHeaderTitle">Assignee</td><td>park</td></tr>
  <tr><td class="tableHeaderTitle">Issued Date</td><td>2025-07-01</td></tr>
</table>
<div id="IssueDescriptionDiv"><p>Deployment throws <b>NullPointerException</b> on startup.</p></div>
<div class="commDescTR">2025-07-01 kim: reproduced on 8.5</div>
<div class="commDescTR">2025-07-02 park: fix in review</div>
<a href="/tody/common/fileDown.do?fileId=77">logs.zip</a>
</body></html>`

func newDetailTestService() *Service {
	return NewService(&common.ScraperConfig{RequestsPerSecond: 1000}, arbor.NewLogger())
}

func TestParseDetail(t *testing.T) {
	s := newDetailTestService()
	s.baseURL = "http://ims.local"

	issue, err := s.parseDetail("user-1", "900123", []byte(detailFixture))
	require.NoError(t, err)

	assert.Equal(t, "user-1", issue.UserID)
	assert.Equal(t, "900123", issue.IMSID)
	assert.Equal(t, "JEUS deploy fails with NPE", issue.Title)
	assert.Equal(t, models.IssueStatusInProgress, issue.Status)
	assert.Equal(t, "진행중", issue.RawStatus)
	assert.Equal(t, models.IssuePriorityCritical, issue.Priority)
	assert.Equal(t, "Urgent", issue.RawPriority)
	assert.Equal(t, "Defect", issue.Category)
	assert.Equal(t, "JEUS", issue.Product)
	assert.Equal(t, "8.5", issue.Version)
	assert.Equal(t, "ACME", issue.Customer)
	assert.Equal(t, "park", issue.Assignee)
	assert.Equal(t, "2025-07-01", issue.IssuedDate)

	assert.Equal(t, "Deployment throws NullPointerException on startup.", issue.Description)
	assert.Contains(t, issue.IssueDetails, "**NullPointerException**")

	assert.Equal(t, "2025-07-01 kim: reproduced on 8.5 | 2025-07-02 park: fix in review", issue.ActionLog)

	require.Len(t, issue.AttachmentURLs, 1)
	assert.Equal(t, "http://ims.local/tody/common/fileDown.do?fileId=77", issue.AttachmentURLs[0])
	assert.Equal(t, 1, issue.AttachmentCount)
	assert.Equal(t, "http://ims.local/tody/ims/issue/issueView.do?issueId=900123", issue.SourceURL)
}

func TestParseDetailFallbacks(t *testing.T) {
	s := newDetailTestService()

	html := `<html><body>
		<div id="subject">Fallback subject</div>
		<div id="contents">Fallback body text</div>
	</body></html>`

	issue, err := s.parseDetail("user-1", "900124", []byte(html))
	require.NoError(t, err)
	assert.Equal(t, "Fallback subject", issue.Title)
	assert.Equal(t, "Fallback body text", issue.Description)
	// Unknown status and priority normalize to their defaults.
	assert.Equal(t, models.IssueStatusOpen, issue.Status)
	assert.Equal(t, models.IssuePriorityMedium, issue.Priority)
}

func TestParseDetailBarePage(t *testing.T) {
	s := newDetailTestService()

	issue, err := s.parseDetail("user-1", "900125", []byte("<html><body>nothing here</body></html>"))
	require.NoError(t, err)
	assert.Equal(t, "Issue 900125", issue.Title)
	assert.Empty(t, issue.Description)
	assert.Empty(t, issue.AttachmentURLs)
}

func TestExtractActionLogCap(t *testing.T) {
	s := newDetailTestService()

	var blocks strings.Builder
	blocks.WriteString("<html><body>")
	for i := 0; i < 200; i++ {
		fmt.Fprintf(&blocks, `<div class="commDescTR">%s</div>`, strings.Repeat("로그", 50))
	}
	blocks.WriteString("</body></html>")

	issue, err := s.parseDetail("user-1", "900126", []byte(blocks.String()))
	require.NoError(t, err)
	assert.LessOrEqual(t, len(issue.ActionLog), models.ActionLogMaxBytes)
}
