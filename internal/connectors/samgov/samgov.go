// Package samgov fetches federal contract notices from the SAM.gov opportunities API.
package samgov

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitescan/internal/connectors"
	"github.com/JakeFAU/sitescan/internal/fetcher"
	"github.com/JakeFAU/sitescan/internal/opportunity"
)

// SourceID is the registry id of this connector.
const SourceID = "sam-gov"

// ErrMissingAPIKey is returned when the connector runs without an API key.
var ErrMissingAPIKey = errors.New("sam.gov api key not configured")

// DefaultNAICS are the construction NAICS codes queried by default.
var DefaultNAICS = []string{"236220", "236210", "238140", "238110", "238190"}

// Config controls the SAM.gov queries.
type Config struct {
	APIKey   string
	BaseURL  string
	NAICS    []string
	DaysBack int
	Limit    int
}

// Connector queries SAM.gov once per NAICS code.
type Connector struct {
	cfg    Config
	fetch  fetcher.Fetcher
	logger *zap.Logger
}

// New builds a Connector.
func New(cfg Config, f fetcher.Fetcher, logger *zap.Logger) *Connector {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.sam.gov/prod/opportunities/v2/search"
	}
	if len(cfg.NAICS) == 0 {
		cfg.NAICS = DefaultNAICS
	}
	if cfg.DaysBack <= 0 {
		cfg.DaysBack = 30
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 50
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Connector{cfg: cfg, fetch: f, logger: logger.Named(SourceID)}
}

// Source returns the registry entry for this connector.
func (c *Connector) Source() connectors.Source {
	return connectors.Source{
		ID:          SourceID,
		Name:        "SAM.gov Federal Opportunities",
		NeedsAPIKey: true,
		HasAPIKey:   c.cfg.APIKey != "",
		DailyCache:  true,
		Connector:   c,
	}
}

type searchResponse struct {
	OpportunitiesData []json.RawMessage `json:"opportunitiesData"`
}

type notice struct {
	NoticeID           string          `json:"noticeId"`
	Title              string          `json:"title"`
	Description        json.RawMessage `json:"description"`
	Active             string          `json:"active"`
	PostedDate         string          `json:"postedDate"`
	ResponseDeadLine   string          `json:"responseDeadLine"`
	FullParentPathName string          `json:"fullParentPathName"`
	SolicitationNumber string          `json:"solicitationNumber"`
	Award              *struct {
		Amount json.Number `json:"amount"`
	} `json:"award"`
}

// Fetch queries every configured NAICS code. Failures of individual codes are
// logged and skipped; an error is returned only when every query failed.
func (c *Connector) Fetch(ctx context.Context, params connectors.Params) ([]opportunity.Candidate, error) {
	if c.cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	now := params.Now
	if now.IsZero() {
		now = time.Now()
	}

	var (
		out  []opportunity.Candidate
		errs []error
	)
	for _, naics := range c.cfg.NAICS {
		cands, err := c.fetchNAICS(ctx, naics, now, params)
		if err != nil {
			c.logger.Error("naics query failed", zap.String("naics", naics), zap.Error(err))
			errs = append(errs, fmt.Errorf("naics %s: %w", naics, err))
			continue
		}
		out = append(out, cands...)
	}
	if len(errs) == len(c.cfg.NAICS) {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

func (c *Connector) fetchNAICS(
	ctx context.Context,
	naics string,
	now time.Time,
	params connectors.Params,
) ([]opportunity.Candidate, error) {
	q := url.Values{
		"api_key":    {c.cfg.APIKey},
		"limit":      {strconv.Itoa(c.cfg.Limit)},
		"postedFrom": {now.AddDate(0, 0, -c.cfg.DaysBack).Format("01/02/2006")},
		"postedTo":   {now.Format("01/02/2006")},
		"ptype":      {"o,p,k"},
		"ncode":      {naics},
	}
	if params.State != "" {
		q.Set("state", params.State)
	}
	if params.Keywords != "" {
		q.Set("title", params.Keywords)
	}
	resp, err := c.fetch.Fetch(ctx, fetcher.Request{
		URL:     c.cfg.BaseURL,
		Query:   q,
		Headers: http.Header{"Accept": {"application/json"}},
	})
	if err != nil {
		return nil, err
	}
	var body searchResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	out := make([]opportunity.Candidate, 0, len(body.OpportunitiesData))
	for _, raw := range body.OpportunitiesData {
		var n notice
		if err := json.Unmarshal(raw, &n); err != nil {
			c.logger.Warn("skipping malformed notice", zap.String("naics", naics), zap.Error(err))
			continue
		}
		if n.NoticeID == "" {
			continue
		}
		status := "Closed"
		if n.Active == "Yes" {
			status = "Open"
		}
		out = append(out, opportunity.Candidate{
			SourceID:     SourceID,
			ExternalID:   n.NoticeID,
			Title:        connectors.CleanText(n.Title, 500),
			Description:  connectors.CleanText(description(n.Description), 2000),
			Location:     params.State,
			Value:        awardAmount(n),
			Status:       status,
			PostedDate:   connectors.ParseDate(n.PostedDate),
			Deadline:     connectors.ParseDate(n.ResponseDeadLine),
			Agency:       connectors.CleanText(n.FullParentPathName, 255),
			Solicitation: n.SolicitationNumber,
			NAICSCodes:   []string{naics},
			SourceURL:    "https://sam.gov/opp/" + url.PathEscape(n.NoticeID) + "/view",
			Raw:          append(json.RawMessage(nil), raw...),
		})
	}
	return out, nil
}

// description handles both shapes the API returns: a plain string (often a
// link to the full text) or an object with a body field.
func description(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Body string `json:"body"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Body
	}
	return ""
}

func awardAmount(n notice) *float64 {
	if n.Award == nil || n.Award.Amount == "" {
		return nil
	}
	v, err := n.Award.Amount.Float64()
	if err != nil || v <= 0 {
		return nil
	}
	return &v
}
