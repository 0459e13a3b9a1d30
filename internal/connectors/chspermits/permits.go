// Package chspermits reads issued building permits from the City of Charleston
// ArcGIS feature service.
package chspermits

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitescan/internal/connectors"
	"github.com/JakeFAU/sitescan/internal/fetcher"
	"github.com/JakeFAU/sitescan/internal/opportunity"
)

// SourceID is the registry id of this connector.
const SourceID = "charleston-permits"

const permitsPage = "https://gis.charleston-sc.gov/interactive/permits/"

// Config controls the ArcGIS query.
type Config struct {
	URL         string
	RecordCount int
}

// Connector queries the permit layer.
type Connector struct {
	cfg    Config
	fetch  fetcher.Fetcher
	logger *zap.Logger
}

// New builds a Connector.
func New(cfg Config, f fetcher.Fetcher, logger *zap.Logger) *Connector {
	if cfg.URL == "" {
		cfg.URL = "https://gis.charleston-sc.gov/arcgis2/rest/services/External/Applications/MapServer/20/query"
	}
	if cfg.RecordCount <= 0 {
		cfg.RecordCount = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Connector{cfg: cfg, fetch: f, logger: logger.Named(SourceID)}
}

// Source returns the registry entry for this connector.
func (c *Connector) Source() connectors.Source {
	return connectors.Source{ID: SourceID, Name: "Charleston Building Permits", Connector: c}
}

type queryResponse struct {
	Features []feature `json:"features"`
	Error    *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type feature struct {
	Attributes map[string]any `json:"attributes"`
	Geometry   *struct {
		X *float64 `json:"x"`
		Y *float64 `json:"y"`
	} `json:"geometry"`
}

// Fetch returns the most recently issued permits.
func (c *Connector) Fetch(ctx context.Context, _ connectors.Params) ([]opportunity.Candidate, error) {
	resp, err := c.fetch.Fetch(ctx, fetcher.Request{
		URL: c.cfg.URL,
		Query: url.Values{
			"where":             {"1=1"},
			"outFields":         {"*"},
			"orderByFields":     {"ISSUE_DATE DESC"},
			"resultRecordCount": {strconv.Itoa(c.cfg.RecordCount)},
			"f":                 {"json"},
		},
	})
	if err != nil {
		return nil, err
	}
	var body queryResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, fmt.Errorf("decode arcgis response: %w", err)
	}
	// ArcGIS reports query errors with a 200 status.
	if body.Error != nil {
		return nil, fmt.Errorf("arcgis error %d: %s", body.Error.Code, body.Error.Message)
	}
	c.logger.Info("arcgis features returned", zap.Int("features", len(body.Features)))

	out := make([]opportunity.Candidate, 0, len(body.Features))
	for _, f := range body.Features {
		cand, ok := toCandidate(f)
		if !ok {
			continue
		}
		out = append(out, cand)
	}
	return out, nil
}

func toCandidate(f feature) (opportunity.Candidate, bool) {
	a := f.Attributes
	extID := firstString(a, "OBJECTID", "PERMIT_NUMBER")
	if extID == "" {
		return opportunity.Candidate{}, false
	}

	permitType := firstString(a, "PERMIT_TYPE", "PERMITTYPE")
	if permitType == "" {
		permitType = "Permit"
	}
	address := firstString(a, "ADDRESS")
	contractor := connectors.CleanText(firstString(a, "CONTRACTOR"), 255)
	description := connectors.CleanText(firstString(a, "DESCRIPTION"), 2000)
	workClass := firstString(a, "WORK_CLASS")

	title := permitType
	location := "Charleston, SC"
	if address != "" {
		title = permitType + " - " + address
		location = address + ", Charleston, SC"
	}
	status := firstString(a, "PERMIT_STATUS")
	if status == "" {
		status = "Active"
	}

	lat := firstFloat(a, "LATITUDE")
	lon := firstFloat(a, "LONGITUDE")
	if f.Geometry != nil {
		if lat == nil {
			lat = f.Geometry.Y
		}
		if lon == nil {
			lon = f.Geometry.X
		}
	}

	raw, err := json.Marshal(a)
	if err != nil {
		raw = nil
	}
	return opportunity.Candidate{
		SourceID:     SourceID,
		ExternalID:   "chs-" + extID,
		Title:        title,
		Description:  strings.TrimSpace(strings.Join([]string{description, workClass, contractor}, " ")),
		Location:     location,
		Address:      address,
		Latitude:     lat,
		Longitude:    lon,
		Value:        firstFloat(a, "VALUATION", "JOBVALUE"),
		Status:       status,
		PostedDate:   issueDate(a),
		Solicitation: firstString(a, "PERMIT_NUMBER"),
		Contractor:   contractor,
		SourceURL:    permitsPage,
		Raw:          raw,
	}, true
}

func firstString(a map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := a[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

func firstFloat(a map[string]any, keys ...string) *float64 {
	for _, k := range keys {
		switch v := a[k].(type) {
		case float64:
			if v != 0 {
				return &v
			}
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && f != 0 {
				return &f
			}
		}
	}
	return nil
}

// issueDate accepts epoch milliseconds, which ArcGIS uses for date fields, or a
// formatted date string.
func issueDate(a map[string]any) *time.Time {
	for _, k := range []string{"ISSUE_DATE", "ISSUEDATE"} {
		switch v := a[k].(type) {
		case float64:
			if v > 1e10 {
				t := time.UnixMilli(int64(v)).UTC()
				return &t
			}
		case string:
			if t := connectors.ParseDate(v); t != nil {
				return t
			}
		}
	}
	return nil
}
