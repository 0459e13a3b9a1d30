package samgov

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitescan/internal/connectors"
	collyfetcher "github.com/JakeFAU/sitescan/internal/fetcher/colly"
)

const fixture = `{
  "totalRecords": 2,
  "opportunitiesData": [
    {
      "noticeId": "abc123",
      "title": "Masonry Restoration &amp; Repointing, Fort Moultrie",
      "description": {"body": "<p>Repoint historic brick walls.</p>"},
      "active": "Yes",
      "postedDate": "2026-04-01",
      "responseDeadLine": "2026-05-01T17:00:00-04:00",
      "fullParentPathName": "INTERIOR, DEPARTMENT OF THE.NATIONAL PARK SERVICE",
      "solicitationNumber": "140P5326R0001",
      "award": {"amount": "750000"}
    },
    {
      "noticeId": "def456",
      "title": "Roof replacement",
      "description": "https://api.sam.gov/prod/opportunities/v1/noticedesc?noticeid=def456",
      "active": "No",
      "postedDate": "2026-04-02"
    },
    {"title": "missing id"}
  ]
}`

func newServer(t *testing.T, status int, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		q := r.URL.Query()
		if q.Get("api_key") != "secret" || q.Get("ncode") == "" || q.Get("state") != "SC" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if q.Get("postedTo") != "04/15/2026" || q.Get("postedFrom") != "03/16/2026" {
			http.Error(w, "bad dates", http.StatusBadRequest)
			return
		}
		if status != http.StatusOK {
			http.Error(w, "unavailable", status)
			return
		}
		_, _ = w.Write([]byte(fixture))
	}))
	t.Cleanup(srv.Close)
	return srv
}

var params = connectors.Params{
	State: "SC",
	Now:   time.Date(2026, 4, 15, 10, 0, 0, 0, time.UTC),
}

func TestFetchParsesNotices(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	srv := newServer(t, http.StatusOK, &hits)

	c := New(Config{APIKey: "secret", BaseURL: srv.URL, NAICS: []string{"236220"}}, collyfetcher.New(collyfetcher.Config{}), nil)
	got, err := c.Fetch(context.Background(), params)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.EqualValues(t, 1, hits.Load())

	first := got[0]
	require.Equal(t, SourceID, first.SourceID)
	require.Equal(t, "abc123", first.ExternalID)
	require.Equal(t, "Masonry Restoration & Repointing, Fort Moultrie", first.Title)
	require.Equal(t, "Repoint historic brick walls.", first.Description)
	require.Equal(t, "Open", first.Status)
	require.Equal(t, "SC", first.Location)
	require.NotNil(t, first.Value)
	require.InDelta(t, 750000, *first.Value, 0.001)
	require.NotNil(t, first.Deadline)
	require.Equal(t, []string{"236220"}, first.NAICSCodes)
	require.Equal(t, "https://sam.gov/opp/abc123/view", first.SourceURL)
	require.Contains(t, string(first.Raw), `"solicitationNumber"`)

	second := got[1]
	require.Equal(t, "Closed", second.Status)
	require.Contains(t, second.Description, "noticedesc")
	require.Nil(t, second.Value)
}

func TestFetchQueriesEveryNAICS(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	srv := newServer(t, http.StatusOK, &hits)

	c := New(Config{APIKey: "secret", BaseURL: srv.URL}, collyfetcher.New(collyfetcher.Config{}), nil)
	got, err := c.Fetch(context.Background(), params)
	require.NoError(t, err)
	require.EqualValues(t, len(DefaultNAICS), hits.Load())
	require.Len(t, got, 2*len(DefaultNAICS))
}

func TestFetchFailsWhenEveryQueryFails(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	srv := newServer(t, http.StatusServiceUnavailable, &hits)

	c := New(Config{APIKey: "secret", BaseURL: srv.URL, NAICS: []string{"236220", "238140"}}, collyfetcher.New(collyfetcher.Config{}), nil)
	_, err := c.Fetch(context.Background(), params)
	require.Error(t, err)
	require.Contains(t, err.Error(), "naics 238140")
}

func TestFetchRequiresAPIKey(t *testing.T) {
	t.Parallel()
	c := New(Config{}, collyfetcher.New(collyfetcher.Config{}), nil)
	_, err := c.Fetch(context.Background(), params)
	require.ErrorIs(t, err, ErrMissingAPIKey)

	src := c.Source()
	require.True(t, src.NeedsAPIKey)
	require.False(t, src.HasAPIKey)
	require.True(t, src.DailyCache)
}
