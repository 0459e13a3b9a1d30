// Package connectors holds the source registry and the helpers shared by the
// per-site connector implementations in its subpackages.
package connectors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitescan/internal/geocode"
	"github.com/JakeFAU/sitescan/internal/opportunity"
	"github.com/JakeFAU/sitescan/internal/scoring"
)

// ErrUnknownSource is returned for source ids that are not registered.
var ErrUnknownSource = errors.New("unknown source")

// Params are the per-run inputs handed to every connector.
type Params struct {
	// Keywords is a whitespace-delimited list used for query narrowing and scoring.
	Keywords string
	// State is a two-letter state code used by sources that filter by state.
	State string
	// Now is the observation time of the run.
	Now time.Time
}

// Connector fetches normalized candidates from one external source.
type Connector interface {
	Fetch(ctx context.Context, params Params) ([]opportunity.Candidate, error)
}

// ConnectorFunc adapts a function to Connector.
type ConnectorFunc func(ctx context.Context, params Params) ([]opportunity.Candidate, error)

// Fetch calls f.
func (f ConnectorFunc) Fetch(ctx context.Context, params Params) ([]opportunity.Candidate, error) {
	return f(ctx, params)
}

// Source is one registry entry.
type Source struct {
	ID          string
	Name        string
	NeedsAPIKey bool
	HasAPIKey   bool
	// DailyCache marks quota-limited sources whose records are replayed from the
	// store when the source was already seen today.
	DailyCache bool
	Connector  Connector
}

// Geocoder resolves free-text locations.
type Geocoder interface {
	Lookup(ctx context.Context, location string) (geocode.Point, bool, error)
}

// Registry maps source ids to connectors in a fixed order.
type Registry struct {
	sources  []Source
	index    map[string]int
	geocoder Geocoder
	logger   *zap.Logger
}

// NewRegistry builds a registry. geocoder may be nil.
func NewRegistry(geocoder Geocoder, logger *zap.Logger, sources ...Source) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		index:    make(map[string]int, len(sources)),
		geocoder: geocoder,
		logger:   logger.Named("connectors"),
	}
	for _, src := range sources {
		if src.ID == "" || src.Connector == nil {
			return nil, fmt.Errorf("register source %q: id and connector required", src.ID)
		}
		if _, dup := r.index[src.ID]; dup {
			return nil, fmt.Errorf("register source %q: duplicate id", src.ID)
		}
		r.index[src.ID] = len(r.sources)
		r.sources = append(r.sources, src)
	}
	return r, nil
}

// IDs returns every registered source id in registration order.
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.sources))
	for i, src := range r.sources {
		ids[i] = src.ID
	}
	return ids
}

// Sources returns the registry entries in registration order.
func (r *Registry) Sources() []Source {
	return append([]Source(nil), r.sources...)
}

// Lookup returns the entry for id.
func (r *Registry) Lookup(id string) (Source, bool) {
	i, ok := r.index[id]
	if !ok {
		return Source{}, false
	}
	return r.sources[i], true
}

// Fetch invokes the connector for id and enriches its output: candidates are
// tagged with the source, deduplicated by external id (last wins), classified,
// scored and geocoded where those fields are missing.
func (r *Registry) Fetch(ctx context.Context, id string, params Params) ([]opportunity.Candidate, error) {
	src, ok := r.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("fetch %q: %w", id, ErrUnknownSource)
	}
	raw, err := src.Connector.Fetch(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", id, err)
	}

	out := make([]opportunity.Candidate, 0, len(raw))
	pos := make(map[string]int, len(raw))
	for _, c := range raw {
		if c.SourceID == "" {
			c.SourceID = id
		}
		c = r.enrich(ctx, c, params)
		if i, seen := pos[c.ExternalID]; seen {
			out[i] = c
			continue
		}
		pos[c.ExternalID] = len(out)
		out = append(out, c)
	}
	r.logger.Info("source fetched",
		zap.String("source", id),
		zap.Int("raw", len(raw)),
		zap.Int("unique", len(out)),
	)
	return out, nil
}

func (r *Registry) enrich(ctx context.Context, c opportunity.Candidate, params Params) opportunity.Candidate {
	c.Title = strings.TrimSpace(c.Title)
	if c.Status == "" {
		c.Status = opportunity.DefaultStatus
	}
	if c.Category == "" {
		c.Category = scoring.Classify(c.Title, c.Description)
	}
	if c.BaselineScore == 0 {
		c.BaselineScore = scoring.WithValueBoost(scoring.Baseline(c.Title, c.Description, params.Keywords), c.Value)
	}
	if r.geocoder != nil && (c.Latitude == nil || c.Longitude == nil) && c.Location != "" {
		p, ok, err := r.geocoder.Lookup(ctx, c.Location)
		switch {
		case err != nil:
			r.logger.Warn("geocode failed",
				zap.String("source", c.SourceID),
				zap.String("location", c.Location),
				zap.Error(err),
			)
		case ok:
			lat, lon := p.Lat, p.Lon
			c.Latitude, c.Longitude = &lat, &lon
		}
	}
	return c
}
