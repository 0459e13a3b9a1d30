package fetcher

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFullURLMergesQuery(t *testing.T) {
	t.Parallel()

	req := Request{
		URL:   "https://api.example.com/search?api_key=k",
		Query: url.Values{"limit": {"100"}, "ncode": {"236220"}},
	}
	got, err := req.FullURL()
	require.NoError(t, err)
	require.Equal(t, "https://api.example.com/search?api_key=k&limit=100&ncode=236220", got)
}

func TestFullURLWithoutQuery(t *testing.T) {
	t.Parallel()

	got, err := Request{URL: "https://example.com/bids"}.FullURL()
	require.NoError(t, err)
	require.Equal(t, "https://example.com/bids", got)

	_, err = Request{URL: "://bad"}.FullURL()
	require.Error(t, err)
}
