package scraper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"

	"github.com/jeiths2202/ims-crawler/internal/models"
)

// detailLabels are the table labels read off the issue view page.
// Matching is case-insensitive against normalized cell text.
const (
	labelSubject    = "subject"
	labelStatus     = "status"
	labelPriority   = "priority"
	labelCategory   = "category"
	labelProduct    = "product"
	labelVersion    = "version"
	labelModule     = "module"
	labelCustomer   = "customer"
	labelReporter   = "reporter"
	labelAssignee   = "assignee"
	labelIssuedDate = "issued date"
	labelProject    = "project"
	labelIssueType  = "issue type"
)

// CrawlIssue fetches one issue's detail page and builds the full record.
func (s *Service) CrawlIssue(ctx context.Context, userID, imsID string) (*models.Issue, error) {
	body, err := s.fetchDetail(ctx, imsID)
	if err != nil {
		return nil, err
	}

	issue, err := s.parseDetail(userID, imsID, body)
	if err != nil {
		return nil, err
	}

	related, err := s.findRelatedIDs(ctx, imsID, body)
	if err != nil {
		// Related discovery is best-effort; the issue itself is intact.
		s.logger.Warn().
			Str("ims_id", imsID).
			Err(err).
			Msg("Related-issue discovery failed")
	} else {
		issue.RelatedIMSIDs = related
	}

	return issue, nil
}

// fetchDetail posts the issueView form and returns the page HTML.
func (s *Service) fetchDetail(ctx context.Context, imsID string) ([]byte, error) {
	form := url.Values{}
	form.Set("issueId", imsID)
	form.Set("menuCode", "ims")

	resp, err := s.postForm(ctx, s.absoluteURL("/tody/ims/issue/issueView.do"), form, s.config.NavigationTimeout)
	if err != nil {
		return nil, fmt.Errorf("detail fetch for %s failed: %w", imsID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("detail fetch for %s returned status %d", imsID, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// parseDetail extracts issue fields from the detail page. Missing fields
// default to empty; a page without any recognizable structure still yields
// an issue carrying the ims id.
func (s *Service) parseDetail(userID, imsID string, html []byte) (*models.Issue, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse detail page for %s: %w", imsID, err)
	}

	labels := extractLabeledFields(doc)

	subject := labels[labelSubject]
	if subject == "" {
		subject = normalizeSpace(doc.Find("#subject").Text())
	}

	description := normalizeSpace(doc.Find("#contents").Text())
	if description == "" {
		description = normalizeSpace(doc.Find("#IssueDescriptionDiv").Text())
	}

	rawStatus := labels[labelStatus]
	rawPriority := labels[labelPriority]

	issue := &models.Issue{
		UserID:      userID,
		IMSID:       imsID,
		Title:       subject,
		Description: description,
		Status:      models.NormalizeStatus(rawStatus),
		Priority:    models.NormalizePriority(rawPriority),
		RawStatus:   rawStatus,
		RawPriority: rawPriority,
		Category:    labels[labelCategory],
		Product:     labels[labelProduct],
		Version:     labels[labelVersion],
		Module:      labels[labelModule],
		Customer:    labels[labelCustomer],
		Reporter:    labels[labelReporter],
		Assignee:    labels[labelAssignee],
		IssuedDate:  labels[labelIssuedDate],
		ProjectKey:  labels[labelProject],
		IssueType:   labels[labelIssueType],
		ActionLog:   extractActionLog(doc),
		SourceURL:   s.absoluteURL("/tody/ims/issue/issueView.do?issueId=" + imsID),
		CrawledAt:   time.Now().UTC(),
	}
	issue.EnsureTitle()

	issue.IssueDetails = s.detailMarkdown(doc)

	doc.Find("a[href*='fileDown']").Each(func(_ int, a *goquery.Selection) {
		if href, ok := a.Attr("href"); ok && href != "" {
			issue.AttachmentURLs = append(issue.AttachmentURLs, s.absoluteURL(href))
		}
	})
	issue.AttachmentCount = len(issue.AttachmentURLs)

	return issue, nil
}

// FetchFile downloads a file (attachment) through the authenticated session.
func (s *Service) FetchFile(ctx context.Context, fileURL string) ([]byte, error) {
	return s.fetch(ctx, fileURL, s.config.NavigationTimeout)
}

// extractLabeledFields walks the header cells and pairs each label with its
// adjacent value cell.
func extractLabeledFields(doc *goquery.Document) map[string]string {
	fields := make(map[string]string)
	doc.Find("td.tableHeaderTitle").Each(func(_ int, td *goquery.Selection) {
		label := strings.ToLower(normalizeSpace(td.Text()))
		if label == "" {
			return
		}
		value := normalizeSpace(td.Next().Text())
		if _, exists := fields[label]; !exists {
			fields[label] = value
		}
	})
	return fields
}

// extractActionLog joins all commDescTR blocks, oldest first, capped at the
// storage limit.
func extractActionLog(doc *goquery.Document) string {
	var parts []string
	doc.Find("div.commDescTR").Each(func(_ int, div *goquery.Selection) {
		text := normalizeSpace(div.Text())
		if text != "" {
			parts = append(parts, text)
		}
	})
	return models.TruncateActionLog(strings.Join(parts, " | "))
}

// detailMarkdown converts the issue body HTML into markdown for storage.
// Conversion failure falls back to the stripped text.
func (s *Service) detailMarkdown(doc *goquery.Document) string {
	body := doc.Find("#IssueDescriptionDiv")
	if body.Length() == 0 {
		body = doc.Find("#contents")
	}
	if body.Length() == 0 {
		return ""
	}

	html, err := body.Html()
	if err != nil {
		return normalizeSpace(body.Text())
	}

	converter := md.NewConverter("", true, nil)
	markdown, err := converter.ConvertString(html)
	if err != nil {
		return normalizeSpace(body.Text())
	}
	return strings.TrimSpace(markdown)
}
