package scraper

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jeiths2202/ims-crawler/internal/interfaces"
)

var (
	rePopBlank   = regexp.MustCompile(`popBlankIssueView\(\s*['"]?(\d+)`)
	reWhitespace = regexp.MustCompile(`\s+`)
)

// parseSearchRows extracts result rows from a listing page. Rows are
// identified by their popBlankIssueView onclick handler; field values come
// from fixed cell positions.
func parseSearchRows(html []byte) ([]interfaces.SearchRow, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, err
	}

	var rows []interfaces.SearchRow
	seen := make(map[string]bool)

	doc.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		onclick, ok := tr.Attr("onclick")
		if !ok {
			return
		}
		m := rePopBlank.FindStringSubmatch(onclick)
		if m == nil {
			return
		}
		imsID := m[1]
		if seen[imsID] {
			return
		}
		seen[imsID] = true

		cells := tr.Find("td")
		row := interfaces.SearchRow{
			IMSID:      imsID,
			Category:   cellText(cells, 2),
			Product:    cellText(cells, 3),
			Version:    cellText(cells, 4),
			Module:     cellText(cells, 5),
			Subject:    cellText(cells, 6),
			Customer:   cellText(cells, 7),
			Project:    cellText(cells, 8),
			Reporter:   cellText(cells, 9),
			IssuedDate: cellText(cells, 10),
		}
		rows = append(rows, row)
	})

	return rows, nil
}

// cellText reads the normalized text of the cell at index, or "" when the
// row is shorter than expected.
func cellText(cells *goquery.Selection, index int) string {
	if index >= cells.Length() {
		return ""
	}
	return normalizeSpace(cells.Eq(index).Text())
}

// normalizeSpace collapses whitespace runs to single spaces and trims.
func normalizeSpace(text string) string {
	return strings.TrimSpace(reWhitespace.ReplaceAllString(text, " "))
}
