// Package scbo scrapes the construction category of the South Carolina Business
// Opportunities daily online edition.
package scbo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitescan/internal/connectors"
	"github.com/JakeFAU/sitescan/internal/fetcher"
	"github.com/JakeFAU/sitescan/internal/hash/sha256"
	"github.com/JakeFAU/sitescan/internal/opportunity"
)

// SourceID is the registry id of this connector.
const SourceID = "scbo"

const (
	projectMarker = "<b>Project Name:</b>"
	valueSelector = `div[style*="margin-right:0.5%"]`
)

var dollarPattern = regexp.MustCompile(`\$([\d,]+)`)

// hasher derives ids for projects published without a project number.
var hasher = sha256.New()

// Config controls which editions are read.
type Config struct {
	BaseURL  string
	DaysBack int
}

// Connector reads one edition per day.
type Connector struct {
	cfg    Config
	fetch  fetcher.Fetcher
	logger *zap.Logger
}

// New builds a Connector.
func New(cfg Config, f fetcher.Fetcher, logger *zap.Logger) *Connector {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://scbo.sc.gov/online-edition"
	}
	if cfg.DaysBack <= 0 {
		cfg.DaysBack = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Connector{cfg: cfg, fetch: f, logger: logger.Named(SourceID)}
}

// Source returns the registry entry for this connector.
func (c *Connector) Source() connectors.Source {
	return connectors.Source{ID: SourceID, Name: "SC Business Opportunities", Connector: c}
}

// Fetch reads the last DaysBack editions. Failed days are logged and skipped;
// an error is returned only when every day failed.
func (c *Connector) Fetch(ctx context.Context, params connectors.Params) ([]opportunity.Candidate, error) {
	now := params.Now
	if now.IsZero() {
		now = time.Now()
	}
	var (
		out  []opportunity.Candidate
		errs []error
	)
	for daysAgo := range c.cfg.DaysBack {
		day := now.AddDate(0, 0, -daysAgo)
		cands, err := c.fetchDay(ctx, day)
		if err != nil {
			c.logger.Error("edition fetch failed", zap.String("date", day.Format(time.DateOnly)), zap.Error(err))
			errs = append(errs, fmt.Errorf("edition %s: %w", day.Format(time.DateOnly), err))
			continue
		}
		out = append(out, cands...)
	}
	if len(errs) == c.cfg.DaysBack {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

func (c *Connector) fetchDay(ctx context.Context, day time.Time) ([]opportunity.Candidate, error) {
	date := day.Format(time.DateOnly)
	req := fetcher.Request{URL: c.cfg.BaseURL, Query: url.Values{"c": {"3-" + date}}}
	pageURL, err := req.FullURL()
	if err != nil {
		return nil, err
	}
	resp, err := c.fetch.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	return parseEdition(string(resp.Body), date, pageURL)
}

// parseEdition splits the page at each project heading and reads the labelled
// values that follow it.
func parseEdition(page, date, pageURL string) ([]opportunity.Candidate, error) {
	chunks := strings.Split(page, projectMarker)
	out := make([]opportunity.Candidate, 0, len(chunks))
	for i, chunk := range chunks[1:] {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(projectMarker + chunk))
		if err != nil {
			return nil, fmt.Errorf("parse project %d: %w", i+1, err)
		}
		fields := labelledValues(doc)
		name := fields["Project Name:"]
		if len([]rune(name)) < 3 {
			continue
		}
		number := fields["Project Number:"]
		costRange := fields["Construction Cost Range:"]
		desc := connectors.CleanText(doc.Find("p").First().Text(), 0)

		location := fields["Project Location:"]
		if location == "" {
			location = "South Carolina"
		}
		extID := number
		if extID == "" {
			extID = hasher.ID("scbo-", date, name, location)
		}
		raw, err := json.Marshal(map[string]string{"project_number": number, "cost_range": costRange})
		if err != nil {
			return nil, fmt.Errorf("encode raw project: %w", err)
		}
		out = append(out, opportunity.Candidate{
			SourceID:     SourceID,
			ExternalID:   extID,
			Title:        connectors.CleanText(name, 500),
			Description:  connectors.CleanText(fmt.Sprintf("%s. %s. Cost: %s", name, desc, costRange), 1000),
			Location:     location,
			Value:        costValue(costRange),
			Status:       "Accepting Bids",
			PostedDate:   connectors.ParseDate(date),
			Agency:       connectors.CleanText(fields["Agency/Owner:"], 255),
			Solicitation: number,
			SourceURL:    pageURL,
			Raw:          raw,
		})
	}
	return out, nil
}

// labelledValues pairs each bold label with the first value cell after it in
// document order.
func labelledValues(doc *goquery.Document) map[string]string {
	fields := make(map[string]string)
	pending := ""
	doc.Find("b, " + valueSelector).Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) == "b" {
			pending = strings.TrimSpace(s.Text())
			return
		}
		if pending == "" {
			return
		}
		if _, seen := fields[pending]; !seen {
			fields[pending] = connectors.CleanText(s.Text(), 0)
		}
		pending = ""
	})
	return fields
}

// costValue returns the upper bound of a cost range such as "$500,000 - $1,000,000".
func costValue(costRange string) *float64 {
	matches := dollarPattern.FindAllStringSubmatch(costRange, -1)
	if len(matches) == 0 {
		return nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(matches[len(matches)-1][1], ",", ""), 64)
	if err != nil {
		return nil
	}
	return &v
}
