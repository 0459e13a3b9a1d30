package sms

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitescan/internal/delivery"
	"github.com/JakeFAU/sitescan/internal/opportunity"
)

func TestNewRequiresCredentials(t *testing.T) {
	t.Parallel()

	_, err := New(Config{AccountSID: "AC1"}, nil)
	require.ErrorIs(t, err, delivery.ErrNotConfigured)
}

func TestSendPostsForm(t *testing.T) {
	t.Parallel()

	var (
		mu       sync.Mutex
		path     string
		user     string
		to, body string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		mu.Lock()
		path = r.URL.Path
		user, _, _ = r.BasicAuth()
		to = r.PostForm.Get("To")
		body = r.PostForm.Get("Body")
		mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	s, err := New(Config{AccountSID: "AC123", AuthToken: "tok", From: "+15550000", BaseURL: srv.URL}, srv.Client())
	require.NoError(t, err)
	err = s.Send(context.Background(), delivery.Message{
		Channel:   opportunity.ChannelSMS,
		Recipient: "+18435551234",
		Body:      "SiteScan: 1 new opportunities",
	})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, "/Accounts/AC123/Messages.json", path)
	require.Equal(t, "AC123", user)
	require.Equal(t, "+18435551234", to)
	require.Equal(t, "SiteScan: 1 new opportunities", body)
}

func TestSendSurfacesErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"message":"invalid To"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	s, err := New(Config{AccountSID: "AC1", AuthToken: "t", BaseURL: srv.URL}, srv.Client())
	require.NoError(t, err)
	err = s.Send(context.Background(), delivery.Message{Channel: opportunity.ChannelSMS, Recipient: "x"})
	require.ErrorContains(t, err, "twilio status 400")
}
