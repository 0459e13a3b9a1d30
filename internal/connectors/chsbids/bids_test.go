package chsbids

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitescan/internal/connectors"
	collyfetcher "github.com/JakeFAU/sitescan/internal/fetcher/colly"
)

const page = `<html><head><script>var x = "26-B001 not a bid in a script tag";</script></head><body>
<nav>Home</nav>
<div class="bidItems">
  <a href="bids.aspx?bidID=1">26-B014 Dock Street Theatre Facade Masonry Repairs</a>
  <span>Bid Opens: 3/12/2026 11:00 AM Eastern</span>
  <div>Repoint and clean historic brick on the Church Street elevation.</div>
  <a href="bids.aspx?bidID=2">26-C102A Gaillard Center Waterproofing Services</a>
  <span>Closes: 4/02/2026 2:00 PM</span>
</div>
</body></html>`

func TestFetchParsesBids(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(page))
	}))
	defer srv.Close()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	c := New(Config{URL: srv.URL}, collyfetcher.New(collyfetcher.Config{}), nil)
	got, err := c.Fetch(context.Background(), connectors.Params{Now: now})
	require.NoError(t, err)
	require.Len(t, got, 2)

	first := got[0]
	require.Equal(t, "chs-bid-26-B014", first.ExternalID)
	require.Equal(t, "26-B014 - Dock Street Theatre Facade Masonry Repairs", first.Title)
	require.Contains(t, first.Description, "Repoint and clean historic brick")
	require.Equal(t, "Charleston, SC", first.Location)
	require.Equal(t, now, *first.PostedDate)
	require.Equal(t, "26-B014", first.Solicitation)

	require.Equal(t, "chs-bid-26-C102A", got[1].ExternalID)
	require.Equal(t, "Closes: 4/02/2026 2:00 PM", got[1].Description)
}

func TestParseLinesKeepsRawBidNumber(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	lines := []string{
		"26-B014 Dock Street Theatre Facade Masonry Repairs",
		"Bid Opens: 3/12/2026 11:00 AM Eastern",
	}

	got, err := parseLines(lines, "https://example.com/bids", now)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.JSONEq(t, `{"bid_number":"26-B014"}`, string(got[0].Raw))
	require.Equal(t, "https://example.com/bids", got[0].SourceURL)
}

func TestParseLinesWithoutBids(t *testing.T) {
	t.Parallel()
	got, err := parseLines([]string{"Nothing open for bidding this month"}, "", time.Now())
	require.NoError(t, err)
	require.Empty(t, got)
}
