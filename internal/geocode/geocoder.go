// Package geocode resolves free-text locations to coordinates. A static table of
// South Carolina places answers most lookups; the rest go to a Nominatim-style
// search API behind a cache, a per-key singleflight and a call-spacing limiter.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/sitescan/internal/fetcher"
	"github.com/JakeFAU/sitescan/internal/metrics"
)

// Point is a latitude/longitude pair.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Result is a cached lookup outcome. Found is false for locations the remote
// service could not resolve.
type Result struct {
	Point Point `json:"point"`
	Found bool  `json:"found"`
}

// SecondTier is an optional shared cache consulted before the remote service.
type SecondTier interface {
	Get(ctx context.Context, key string) (Result, bool, error)
	Set(ctx context.Context, key string, res Result) error
}

// Config controls the remote fallback.
type Config struct {
	BaseURL     string
	UserAgent   string
	Country     string
	MinInterval time.Duration
}

// Geocoder owns the process cache, the limiter and the in-flight lookups.
type Geocoder struct {
	cfg     Config
	fetch   fetcher.Fetcher
	tier    SecondTier
	limiter *rate.Limiter
	group   singleflight.Group
	logger  *zap.Logger

	mu    sync.RWMutex
	cache map[string]Result
}

// Option customizes a Geocoder.
type Option func(*Geocoder)

// WithSecondTier adds a shared cache behind the process cache.
func WithSecondTier(tier SecondTier) Option {
	return func(g *Geocoder) { g.tier = tier }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(g *Geocoder) {
		if logger != nil {
			g.logger = logger.Named("geocode")
		}
	}
}

// New builds a Geocoder. A nil fetcher disables the remote fallback.
func New(cfg Config, f fetcher.Fetcher, opts ...Option) *Geocoder {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://nominatim.openstreetmap.org/search"
	}
	if cfg.Country == "" {
		cfg.Country = "us"
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = 1100 * time.Millisecond
	}
	g := &Geocoder{
		cfg:     cfg,
		fetch:   f,
		limiter: rate.NewLimiter(rate.Every(cfg.MinInterval), 1),
		logger:  zap.NewNop(),
		cache:   make(map[string]Result),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Lookup returns the coordinates of location. ok is false when the location is
// empty or unknown. Errors are returned only for failed remote calls, which are
// not cached.
func (g *Geocoder) Lookup(ctx context.Context, location string) (Point, bool, error) {
	if strings.TrimSpace(location) == "" {
		return Point{}, false, nil
	}
	if p, ok := staticLookup(location); ok {
		metrics.ObserveGeocode("static")
		return p, true, nil
	}
	key := cacheKey(location, g.cfg.Country)
	if res, ok := g.cached(key); ok {
		metrics.ObserveGeocode("cache")
		return res.Point, res.Found, nil
	}
	if g.fetch == nil {
		return Point{}, false, nil
	}

	v, err, _ := g.group.Do(key, func() (any, error) {
		return g.resolve(ctx, key, location)
	})
	if err != nil {
		metrics.ObserveGeocode("error")
		return Point{}, false, err
	}
	res := v.(Result)
	return res.Point, res.Found, nil
}

func (g *Geocoder) resolve(ctx context.Context, key, location string) (Result, error) {
	if res, ok := g.cached(key); ok {
		return res, nil
	}
	if g.tier != nil {
		res, ok, err := g.tier.Get(ctx, key)
		if err != nil {
			g.logger.Warn("second tier cache read failed", zap.String("key", key), zap.Error(err))
		} else if ok {
			g.store(key, res)
			metrics.ObserveGeocode("tier")
			return res, nil
		}
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return Result{}, fmt.Errorf("geocode %q: %w", location, err)
	}
	res, err := g.remote(ctx, location)
	if err != nil {
		g.logger.Warn("remote geocode failed", zap.String("location", location), zap.Error(err))
		return Result{}, err
	}
	if res.Found {
		metrics.ObserveGeocode("remote")
		g.logger.Info("geocoded location",
			zap.String("location", location),
			zap.Float64("lat", res.Point.Lat),
			zap.Float64("lon", res.Point.Lon),
		)
	} else {
		metrics.ObserveGeocode("miss")
	}
	g.store(key, res)
	if g.tier != nil {
		if err := g.tier.Set(ctx, key, res); err != nil {
			g.logger.Warn("second tier cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return res, nil
}

type searchHit struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

func (g *Geocoder) remote(ctx context.Context, location string) (Result, error) {
	resp, err := g.fetch.Fetch(ctx, fetcher.Request{
		URL: g.cfg.BaseURL,
		Query: url.Values{
			"q":            {location},
			"format":       {"json"},
			"limit":        {"1"},
			"countrycodes": {g.cfg.Country},
		},
		Headers: userAgentHeader(g.cfg.UserAgent),
	})
	if err != nil {
		return Result{}, fmt.Errorf("geocode %q: %w", location, err)
	}
	var hits []searchHit
	if err := json.Unmarshal(resp.Body, &hits); err != nil {
		return Result{}, fmt.Errorf("decode geocode response: %w", err)
	}
	if len(hits) == 0 {
		return Result{}, nil
	}
	lat, err := strconv.ParseFloat(hits[0].Lat, 64)
	if err != nil {
		return Result{}, fmt.Errorf("parse latitude %q: %w", hits[0].Lat, err)
	}
	lon, err := strconv.ParseFloat(hits[0].Lon, 64)
	if err != nil {
		return Result{}, fmt.Errorf("parse longitude %q: %w", hits[0].Lon, err)
	}
	return Result{Point: Point{Lat: lat, Lon: lon}, Found: true}, nil
}

func (g *Geocoder) cached(key string) (Result, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	res, ok := g.cache[key]
	return res, ok
}

func (g *Geocoder) store(key string, res Result) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cache[key] = res
}

func cacheKey(location, country string) string {
	return strings.ToLower(strings.TrimSpace(location)) + "|" + country
}

func userAgentHeader(ua string) http.Header {
	if ua == "" {
		return nil
	}
	return http.Header{"User-Agent": {ua}}
}
