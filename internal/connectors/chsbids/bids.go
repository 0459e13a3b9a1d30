// Package chsbids reads the City of Charleston construction bid listing page.
package chsbids

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/JakeFAU/sitescan/internal/connectors"
	"github.com/JakeFAU/sitescan/internal/fetcher"
	"github.com/JakeFAU/sitescan/internal/opportunity"
)

// SourceID is the registry id of this connector.
const SourceID = "charleston-city-bids"

// minLineLen drops navigation crumbs and other short text nodes.
const minLineLen = 20

var bidLine = regexp.MustCompile(`^(\d{2}-[A-Z]\d{3}[A-Z]?)\s+(.*)`)

// Config controls the page read.
type Config struct {
	URL string
}

// Connector reads the bid page.
type Connector struct {
	cfg    Config
	fetch  fetcher.Fetcher
	logger *zap.Logger
}

// New builds a Connector.
func New(cfg Config, f fetcher.Fetcher, logger *zap.Logger) *Connector {
	if cfg.URL == "" {
		cfg.URL = "https://www.charleston-sc.gov/Bids.aspx?CatID=17"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Connector{cfg: cfg, fetch: f, logger: logger.Named(SourceID)}
}

// Source returns the registry entry for this connector.
func (c *Connector) Source() connectors.Source {
	return connectors.Source{ID: SourceID, Name: "Charleston City Bids", Connector: c}
}

// Fetch returns one candidate per bid number found on the page.
func (c *Connector) Fetch(ctx context.Context, params connectors.Params) ([]opportunity.Candidate, error) {
	resp, err := c.fetch.Fetch(ctx, fetcher.Request{URL: c.cfg.URL})
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("parse bid page: %w", err)
	}
	now := params.Now
	if now.IsZero() {
		now = time.Now()
	}
	out, err := parseLines(textLines(doc), c.cfg.URL, now)
	if err != nil {
		return nil, err
	}
	c.logger.Info("bids parsed", zap.Int("bids", len(out)))
	return out, nil
}

// textLines returns the page's text nodes in document order, trimmed, keeping
// only lines long enough to carry a bid title or summary.
func textLines(doc *goquery.Document) []string {
	var lines []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			for _, line := range strings.Split(n.Data, "\n") {
				if line = strings.TrimSpace(line); len(line) > minLineLen {
					lines = append(lines, line)
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	for _, n := range doc.Nodes {
		walk(n)
	}
	return lines
}

func parseLines(lines []string, pageURL string, now time.Time) ([]opportunity.Candidate, error) {
	var out []opportunity.Candidate
	for i, line := range lines {
		m := bidLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		bidNo, title := m[1], strings.TrimSpace(m[2])
		end := min(i+4, len(lines))
		desc := strings.Join(lines[i+1:end], " ")
		raw, err := json.Marshal(map[string]string{"bid_number": bidNo})
		if err != nil {
			return nil, fmt.Errorf("encode raw bid %s: %w", bidNo, err)
		}
		posted := now
		out = append(out, opportunity.Candidate{
			SourceID:     SourceID,
			ExternalID:   "chs-bid-" + bidNo,
			Title:        bidNo + " - " + connectors.CleanText(title, 300),
			Description:  connectors.CleanText(desc, 1000),
			Location:     "Charleston, SC",
			Status:       "Accepting Bids",
			PostedDate:   &posted,
			Solicitation: bidNo,
			SourceURL:    pageURL,
			Raw:          raw,
		})
	}
	return out, nil
}
