package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitescan/internal/alerts"
	"github.com/JakeFAU/sitescan/internal/config"
	"github.com/JakeFAU/sitescan/internal/scan"
	"github.com/JakeFAU/sitescan/internal/scheduler"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type fakeScanner struct {
	got scan.Request
}

func (f *fakeScanner) RunFullScan(_ context.Context, req scan.Request) (scan.Result, error) {
	f.got = req
	return scan.Result{Found: 3, New: 2}, nil
}

type fakeAlerts struct {
	calls int
}

func (f *fakeAlerts) ProcessAlerts(context.Context) (alerts.Summary, error) {
	f.calls++
	return alerts.Summary{Delivered: 1}, nil
}

type fakeApp struct {
	runner *scheduler.Runner
	closed bool
	served bool
}

func (a *fakeApp) Serve(context.Context) error {
	a.served = true
	return nil
}

func (a *fakeApp) Runner() *scheduler.Runner { return a.runner }

func (a *fakeApp) Close(context.Context) { a.closed = true }

func (a *fakeApp) CycleRequest() scheduler.CycleRequest {
	return scheduler.CycleRequest{Scan: scan.Request{Keywords: "masonry", State: "SC"}}
}

func withFakeApp(t *testing.T) (*fakeApp, *fakeScanner, *fakeAlerts) {
	t.Helper()
	sc := &fakeScanner{}
	al := &fakeAlerts{}
	app := &fakeApp{runner: scheduler.NewRunner(sc, al, nil, fixedClock{t: time.Now()}, zap.NewNop())}
	prev := newApp
	newApp = func(context.Context, config.Config, *zap.Logger) (App, error) { return app, nil }
	t.Cleanup(func() { newApp = prev })
	return app, sc, al
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestScanCommand(t *testing.T) {
	app, sc, al := withFakeApp(t)

	out, err := run(t, "scan", "--sources", "sam-gov,scbo", "--skip-alerts")
	require.NoError(t, err)

	assert.Equal(t, []string{"sam-gov", "scbo"}, sc.got.Sources)
	assert.Equal(t, "masonry", sc.got.Keywords)
	assert.Equal(t, "SC", sc.got.State)
	assert.Zero(t, al.calls)
	assert.True(t, app.closed)

	var res scheduler.CycleResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, 3, res.Found)
	assert.Equal(t, 2, res.New)
}

func TestAlertsCommand(t *testing.T) {
	_, _, al := withFakeApp(t)

	out, err := run(t, "alerts")
	require.NoError(t, err)
	assert.Equal(t, 1, al.calls)
	assert.Contains(t, out, `"delivered": 1`)
}

func TestServeCommand(t *testing.T) {
	app, _, _ := withFakeApp(t)

	_, err := run(t, "serve")
	require.NoError(t, err)
	assert.True(t, app.served)
}

func TestClassifyCommandSkipsApp(t *testing.T) {
	prev := newApp
	newApp = func(context.Context, config.Config, *zap.Logger) (App, error) {
		t.Fatal("classify must not build the application")
		return nil, nil
	}
	t.Cleanup(func() { newApp = prev })

	out, err := run(t, "classify", "--title", "Brick masonry repair and tuckpointing")
	require.NoError(t, err)

	var got classification
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.NotEmpty(t, got.Category)
	assert.Positive(t, got.BaselineScore)
}

func TestClassifyRequiresText(t *testing.T) {
	_, err := run(t, "classify")
	require.ErrorContains(t, err, "--title or --description")
}
