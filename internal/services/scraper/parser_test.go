package scraper

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// searchRowHTML renders one listing row in the IMS layout: checkbox and row
// number first, then the nine field cells.
func searchRowHTML(imsID string, fields ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<tr onclick="popBlankIssueView('%s')">`, imsID)
	b.WriteString("<td><input type='checkbox'></td><td>1</td>")
	for _, f := range fields {
		fmt.Fprintf(&b, "<td>%s</td>", f)
	}
	b.WriteString("</tr>")
	return b.String()
}

func searchPageHTML(rows ...string) []byte {
	return []byte("<html><body><table>" + strings.Join(rows, "") + "</table></body></html>")
}

func TestParseSearchRows(t *testing.T) {
	html := searchPageHTML(
		searchRowHTML("900001", "Defect", "JEUS", "8.5", "Web", "NPE on deploy", "ACME", "PRJ-1", "kim", "2025-07-01"),
		searchRowHTML("900002", "Request", "Tibero", "7", "Core", "Slow  query   plan", "BetaCorp", "PRJ-2", "lee", "2025-07-02"),
	)

	rows, err := parseSearchRows(html)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	first := rows[0]
	assert.Equal(t, "900001", first.IMSID)
	assert.Equal(t, "Defect", first.Category)
	assert.Equal(t, "JEUS", first.Product)
	assert.Equal(t, "8.5", first.Version)
	assert.Equal(t, "Web", first.Module)
	assert.Equal(t, "NPE on deploy", first.Subject)
	assert.Equal(t, "ACME", first.Customer)
	assert.Equal(t, "PRJ-1", first.Project)
	assert.Equal(t, "kim", first.Reporter)
	assert.Equal(t, "2025-07-01", first.IssuedDate)

	// Whitespace runs in cell text collapse to single spaces.
	assert.Equal(t, "Slow query plan", rows[1].Subject)
}

func TestParseSearchRowsSkipsNonResultRows(t *testing.T) {
	html := searchPageHTML(
		`<tr><td>header</td></tr>`,
		`<tr onclick="sortColumn('subject')"><td>sortable</td></tr>`,
		searchRowHTML("900001", "Defect", "JEUS", "8.5", "Web", "A", "B", "C", "D", "E"),
		searchRowHTML("900001", "Defect", "JEUS", "8.5", "Web", "A", "B", "C", "D", "E"),
	)

	rows, err := parseSearchRows(html)
	require.NoError(t, err)
	// Duplicates within a page collapse to one row.
	require.Len(t, rows, 1)
	assert.Equal(t, "900001", rows[0].IMSID)
}

func TestParseSearchRowsShortRow(t *testing.T) {
	// A malformed row with fewer cells than expected yields empty fields,
	// never a panic.
	html := searchPageHTML(`<tr onclick="popBlankIssueView('900009')"><td></td><td>1</td><td>Defect</td></tr>`)

	rows, err := parseSearchRows(html)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Defect", rows[0].Category)
	assert.Equal(t, "", rows[0].Subject)
	assert.Equal(t, "", rows[0].IssuedDate)
}

func TestNormalizeSpace(t *testing.T) {
	assert.Equal(t, "a b c", normalizeSpace("  a\n\tb   c  "))
	assert.Equal(t, "", normalizeSpace("   \n\t "))
}
