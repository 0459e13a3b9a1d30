// Package catalog serves read paths over stored records, scored on the fly
// against the caller's subscriber profile.
package catalog

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/JakeFAU/sitescan/internal/opportunity"
	"github.com/JakeFAU/sitescan/internal/scoring"
)

// HighMatchScore is the profile score counted as a high match in Stats.
const HighMatchScore = 80

// Sort keys accepted by List.
const (
	SortMatchScore = "match_score"
	SortValue      = "value"
	SortPostedDate = "posted_date"
	SortFirstSeen  = "first_seen"
)

// DefaultLimit is the page size when none is given.
const DefaultLimit = 50

// MaxLimit caps the page size.
const MaxLimit = 200

// Reader is the store surface the catalog reads from.
type Reader interface {
	ListRecords(ctx context.Context, filter opportunity.RecordFilter) ([]opportunity.Record, error)
	GetRecord(ctx context.Context, id string) (opportunity.Record, error)
	LastSuccessfulScan(ctx context.Context) (*time.Time, error)
}

// Item is a record with its profile score.
type Item struct {
	opportunity.Record
	MatchScore int `json:"match_score"`
}

// Query selects and orders a page of records.
type Query struct {
	Filter   opportunity.RecordFilter
	MinMatch int
	Sort     string
	Asc      bool
	Offset   int
	Limit    int
}

// Page is one page of results.
type Page struct {
	Total int    `json:"total"`
	Items []Item `json:"items"`
}

// Stats summarizes the active catalog for one profile.
type Stats struct {
	Total            int            `json:"total"`
	PipelineValue    float64        `json:"pipeline_value"`
	AverageMatch     float64        `json:"average_match"`
	HighMatch        int            `json:"high_match"`
	BySource         map[string]int `json:"by_source"`
	ByCategory       map[string]int `json:"by_category"`
	LastSuccessfulAt *time.Time     `json:"last_successful_scan,omitempty"`
}

// Catalog answers listing, detail and stats reads.
type Catalog struct {
	store Reader
}

// New constructs a Catalog.
func New(store Reader) *Catalog {
	return &Catalog{store: store}
}

// List returns a page of records scored against criteria.
func (c *Catalog) List(ctx context.Context, criteria opportunity.Criteria, q Query) (Page, error) {
	recs, err := c.store.ListRecords(ctx, q.Filter)
	if err != nil {
		return Page{}, fmt.Errorf("list records: %w", err)
	}
	items := make([]Item, 0, len(recs))
	for _, rec := range recs {
		score := scoring.Profile(rec, criteria)
		if score < q.MinMatch {
			continue
		}
		items = append(items, Item{Record: rec, MatchScore: score})
	}
	sortItems(items, q.Sort, q.Asc)

	page := Page{Total: len(items)}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)
	start := min(max(q.Offset, 0), len(items))
	end := min(start+limit, len(items))
	page.Items = items[start:end]
	return page, nil
}

// Get returns one record scored against criteria.
func (c *Catalog) Get(ctx context.Context, criteria opportunity.Criteria, id string) (Item, error) {
	rec, err := c.store.GetRecord(ctx, id)
	if err != nil {
		return Item{}, err
	}
	return Item{Record: rec, MatchScore: scoring.Profile(rec, criteria)}, nil
}

// Stats summarizes active records for criteria.
func (c *Catalog) Stats(ctx context.Context, criteria opportunity.Criteria) (Stats, error) {
	recs, err := c.store.ListRecords(ctx, opportunity.RecordFilter{ActiveOnly: true})
	if err != nil {
		return Stats{}, fmt.Errorf("list records: %w", err)
	}
	st := Stats{
		Total:      len(recs),
		BySource:   make(map[string]int),
		ByCategory: make(map[string]int),
	}
	sum := 0
	for _, rec := range recs {
		score := scoring.Profile(rec, criteria)
		sum += score
		if score >= HighMatchScore {
			st.HighMatch++
		}
		if rec.Value != nil {
			st.PipelineValue += *rec.Value
		}
		st.BySource[rec.SourceID]++
		st.ByCategory[rec.Category]++
	}
	if len(recs) > 0 {
		st.AverageMatch = math.Round(float64(sum)/float64(len(recs))*10) / 10
	}
	st.LastSuccessfulAt, err = c.store.LastSuccessfulScan(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("last successful scan: %w", err)
	}
	return st, nil
}

// ValidSort reports whether key is an accepted sort key. Empty is valid.
func ValidSort(key string) bool {
	switch strings.ToLower(key) {
	case "", SortMatchScore, SortValue, SortPostedDate, SortFirstSeen:
		return true
	}
	return false
}

func sortItems(items []Item, key string, asc bool) {
	dir := -1
	if asc {
		dir = 1
	}
	var primary func(a, b Item) int
	switch strings.ToLower(key) {
	case SortValue:
		primary = func(a, b Item) int { return comparePtr(a.Value, b.Value, dir) }
	case SortPostedDate:
		primary = func(a, b Item) int {
			return comparePtrFunc(a.PostedDate, b.PostedDate, dir, func(x, y time.Time) int { return x.Compare(y) })
		}
	case SortFirstSeen:
		primary = func(a, b Item) int { return dir * a.FirstSeen.Compare(b.FirstSeen) }
	default:
		primary = func(a, b Item) int {
			if c := dir * cmp.Compare(a.MatchScore, b.MatchScore); c != 0 {
				return c
			}
			return -cmp.Compare(a.BaselineScore, b.BaselineScore)
		}
	}
	slices.SortStableFunc(items, primary)
}

// comparePtr orders present values by dir and puts nil last regardless of dir.
func comparePtr[T cmp.Ordered](a, b *T, dir int) int {
	return comparePtrFunc(a, b, dir, cmp.Compare[T])
}

func comparePtrFunc[T any](a, b *T, dir int, compare func(x, y T) int) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	default:
		return dir * compare(*a, *b)
	}
}
