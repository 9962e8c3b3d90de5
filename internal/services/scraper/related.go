package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"

	"github.com/PuerkitoBio/goquery"
)

var (
	rePopupPatchList = regexp.MustCompile(`popupPatchList\(\s*'([^']*)'\s*,\s*'([^']*)'\s*,\s*'([^']*)'\s*,\s*'([^']*)'\s*,\s*'([^']*)'\s*\)`)
	reHrefIssueID    = regexp.MustCompile(`issueId=(\d+)`)
	reShortNumeric   = regexp.MustCompile(`^\d{5,6}$`)
)

// relationItem is one element of the findRelationIssues response.
type relationItem struct {
	IssueID         int64 `json:"issueId"`
	RelationIssueID int64 `json:"relationIssueId"`
}

// findRelatedIDs discovers related issue ids from both the relation endpoint
// and, when the detail page links a patch list, the patch listing. The
// source issue is excluded and first-seen order is preserved.
func (s *Service) findRelatedIDs(ctx context.Context, imsID string, detailHTML []byte) ([]string, error) {
	var ids []string

	relationIDs, err := s.fetchRelationIssues(ctx, imsID)
	if err != nil {
		return nil, err
	}
	ids = append(ids, relationIDs...)

	if m := rePopupPatchList.FindSubmatch(detailHTML); m != nil {
		patchIDs, err := s.fetchPatchListIDs(ctx, string(m[1]), string(m[2]), string(m[3]), string(m[4]), string(m[5]))
		if err != nil {
			s.logger.Warn().
				Str("ims_id", imsID).
				Err(err).
				Msg("Patch list fetch failed")
		} else {
			ids = append(ids, patchIDs...)
		}
	}

	seen := map[string]bool{imsID: true}
	var deduped []string
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		deduped = append(deduped, id)
	}
	return deduped, nil
}

// fetchRelationIssues queries the relation endpoint. Items whose
// relationIssueId is 0 represent the queried issue itself and are skipped.
func (s *Service) fetchRelationIssues(ctx context.Context, imsID string) ([]string, error) {
	relURL := s.absoluteURL("/tody/ims/issue/findRelationIssues.do") + "?issueId=" + url.QueryEscape(imsID)
	body, err := s.fetch(ctx, relURL, s.config.NavigationTimeout)
	if err != nil {
		return nil, fmt.Errorf("relation fetch for %s failed: %w", imsID, err)
	}

	var items []relationItem
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("relation response for %s is not valid JSON: %w", imsID, err)
	}

	var ids []string
	for _, item := range items {
		if item.RelationIssueID == 0 {
			continue
		}
		ids = append(ids, strconv.FormatInt(item.RelationIssueID, 10))
	}
	return ids, nil
}

// fetchPatchListIDs scrapes issue ids from the patch listing page, first
// from issueId hrefs, then from short numeric cell text as a fallback.
func (s *Service) fetchPatchListIDs(ctx context.Context, projectCode, siteCode, productCode, projectName, siteName string) ([]string, error) {
	params := url.Values{}
	params.Set("projectCode", projectCode)
	params.Set("siteCode", siteCode)
	params.Set("productCode", productCode)
	params.Set("projectName", projectName)
	params.Set("siteName", siteName)

	patchURL := s.absoluteURL("/tody/ims/patch/patchList.do") + "?" + params.Encode()
	body, err := s.fetch(ctx, patchURL, s.config.NavigationTimeout)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var ids []string
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if m := reHrefIssueID.FindStringSubmatch(href); m != nil {
			ids = append(ids, m[1])
		}
	})
	if len(ids) > 0 {
		return ids, nil
	}

	doc.Find("td").Each(func(_ int, td *goquery.Selection) {
		text := normalizeSpace(td.Text())
		if reShortNumeric.MatchString(text) {
			ids = append(ids, text)
		}
	})
	return ids, nil
}
