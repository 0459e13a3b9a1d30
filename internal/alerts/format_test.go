package alerts

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitescan/internal/opportunity"
)

func ptr(v float64) *float64 { return &v }

func TestFormatCurrency(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   *float64
		want string
	}{
		{nil, "N/A"},
		{ptr(0), "N/A"},
		{ptr(950), "$950"},
		{ptr(500_000), "$500K"},
		{ptr(1_234_567), "$1.2M"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, FormatCurrency(tt.in))
	}
}

func TestEmailSubject(t *testing.T) {
	t.Parallel()

	require.Equal(t, "SiteScan: 1 new construction opportunity", EmailSubject(1))
	require.Equal(t, "SiteScan: 3 new construction opportunities", EmailSubject(3))
}

func items(n int) []Item {
	out := make([]Item, n)
	for i := range out {
		out[i] = Item{
			Record: opportunity.Record{Candidate: opportunity.Candidate{
				Title:     fmt.Sprintf("Project %02d", i),
				Location:  "Charleston",
				Status:    "Open",
				SourceURL: "https://example.com/p",
			}},
			Match: 75,
		}
	}
	return out
}

func TestEmailBodyCapsRows(t *testing.T) {
	t.Parallel()

	body, err := EmailBody(items(12))
	require.NoError(t, err)
	require.Contains(t, body, "12 new high-match opportunities found")
	require.Contains(t, body, "Project 09")
	require.NotContains(t, body, "Project 10")
}

func TestEmailBodyEscapesText(t *testing.T) {
	t.Parallel()

	it := items(1)
	it[0].Record.Title = `<script>alert(1)</script>`
	body, err := EmailBody(it)
	require.NoError(t, err)
	require.NotContains(t, body, "<script>")
}

func TestSMSBody(t *testing.T) {
	t.Parallel()

	it := items(5)
	it[0].Record.Title = strings.Repeat("x", 80)
	it[0].Record.Value = ptr(2_500_000)
	body := SMSBody(it)
	lines := strings.Split(body, "\n")
	require.Len(t, lines, 5)
	require.Equal(t, "SiteScan: 5 new opportunities", lines[0])
	require.Equal(t, "• "+strings.Repeat("x", 60)+" (75% match, $2.5M)", lines[1])
	require.Equal(t, "+ 2 more, check SiteScan", lines[4])
}

func TestSMSBodyClipsTitleByRunes(t *testing.T) {
	t.Parallel()

	it := items(1)
	it[0].Record.Title = strings.Repeat("é", 70)
	body := SMSBody(it)
	lines := strings.Split(body, "\n")
	require.Len(t, lines, 2)
	require.True(t, strings.HasPrefix(lines[1], "• "+strings.Repeat("é", 60)+" ("), lines[1])
	require.True(t, utf8.ValidString(body))
}
