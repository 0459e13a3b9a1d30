package retry

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitescan/internal/fetcher"
)

type timeoutErr struct{}

func (timeoutErr) Error() string { return "i/o timeout" }

func (timeoutErr) Timeout() bool { return true }

func (timeoutErr) Temporary() bool { return true }

// refusedDial returns the error from dialing a listener that has been closed.
func refusedDial(t *testing.T) error {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get("http://" + addr + "/")
	if resp != nil {
		_ = resp.Body.Close()
	}
	require.Error(t, err)
	return err
}

func TestShouldRetry(t *testing.T) {
	t.Parallel()
	p := DefaultPolicy()
	refused := refusedDial(t)

	tests := []struct {
		name    string
		err     error
		attempt int
		want    bool
	}{
		{name: "nil", err: nil, attempt: 1, want: false},
		{name: "server error", err: &fetcher.StatusError{Code: http.StatusBadGateway}, attempt: 1, want: true},
		{name: "throttled", err: &fetcher.StatusError{Code: http.StatusTooManyRequests}, attempt: 2, want: true},
		{name: "client error", err: &fetcher.StatusError{Code: http.StatusNotFound}, attempt: 1, want: false},
		{name: "exhausted", err: &fetcher.StatusError{Code: http.StatusBadGateway}, attempt: 3, want: false},
		{name: "canceled", err: context.Canceled, attempt: 1, want: false},
		{name: "timeout", err: timeoutErr{}, attempt: 1, want: true},
		{name: "transport", err: errors.New("connection reset"), attempt: 1, want: true},
		{name: "connection refused", err: refused, attempt: 1, want: true},
		{name: "deadline", err: context.DeadlineExceeded, attempt: 1, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, p.ShouldRetry(tt.err, tt.attempt))
		})
	}
}

func TestBackoffBounded(t *testing.T) {
	t.Parallel()
	p := Policy{MaxAttempts: 5, BaseDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond}
	for attempt := 1; attempt <= 5; attempt++ {
		d := p.Backoff(attempt)
		require.GreaterOrEqual(t, d, time.Duration(0))
		require.LessOrEqual(t, d, p.MaxDelay)
	}
}

type scripted struct {
	errs  []error
	calls int
}

func (s *scripted) Fetch(context.Context, fetcher.Request) (fetcher.Response, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return fetcher.Response{}, s.errs[i]
	}
	return fetcher.Response{StatusCode: http.StatusOK}, nil
}

func fastPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestFetchRecoversFromTransientFailure(t *testing.T) {
	t.Parallel()
	next := &scripted{errs: []error{&fetcher.StatusError{Code: http.StatusServiceUnavailable}}}

	resp, err := Wrap(next, fastPolicy(), nil).Fetch(context.Background(), fetcher.Request{URL: "https://example.com"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 2, next.calls)
}

func TestFetchGivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()
	fail := &fetcher.StatusError{Code: http.StatusBadGateway}
	next := &scripted{errs: []error{fail, fail, fail, fail}}

	_, err := Wrap(next, fastPolicy(), nil).Fetch(context.Background(), fetcher.Request{})
	require.ErrorIs(t, err, fail)
	require.Equal(t, 3, next.calls)
}

type dialing struct {
	addr  string
	calls int
}

func (d *dialing) Fetch(ctx context.Context, _ fetcher.Request) (fetcher.Response, error) {
	d.calls++
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+d.addr+"/", nil)
	if err != nil {
		return fetcher.Response{}, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fetcher.Response{}, err
	}
	defer resp.Body.Close()
	return fetcher.Response{StatusCode: resp.StatusCode}, nil
}

func TestFetchRetriesRefusedConnections(t *testing.T) {
	t.Parallel()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	next := &dialing{addr: ln.Addr().String()}
	require.NoError(t, ln.Close())

	_, err = Wrap(next, fastPolicy(), nil).Fetch(context.Background(), fetcher.Request{})
	require.Error(t, err)
	var netErr net.Error
	require.ErrorAs(t, err, &netErr)
	require.False(t, netErr.Timeout())
	require.Equal(t, 3, next.calls)
}

func TestFetchDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()
	next := &scripted{errs: []error{&fetcher.StatusError{Code: http.StatusForbidden}}}

	_, err := Wrap(next, fastPolicy(), nil).Fetch(context.Background(), fetcher.Request{})
	require.Error(t, err)
	require.Equal(t, 1, next.calls)
}

func TestFetchStopsOnCancel(t *testing.T) {
	t.Parallel()
	fail := errors.New("connection reset")
	next := &scripted{errs: []error{fail, fail, fail}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := Policy{MaxAttempts: 3, BaseDelay: time.Hour, MaxDelay: time.Hour}
	_, err := Wrap(next, p, nil).Fetch(ctx, fetcher.Request{})
	require.ErrorIs(t, err, fail)
	require.Equal(t, 1, next.calls)
}
