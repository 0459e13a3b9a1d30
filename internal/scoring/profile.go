package scoring

import (
	"math"
	"slices"

	"github.com/JakeFAU/sitescan/internal/opportunity"
)

// NeutralScore is returned when a subscriber has configured no criteria.
const NeutralScore = 50

// Profile scores a record 0-100 against the subscriber's configured criteria.
// Each configured criterion is worth an equal share; unconfigured criteria are
// left out of both the numerator and the denominator.
func Profile(rec opportunity.Record, criteria opportunity.Criteria) int {
	total, met := 0, 0
	check := func(configured, ok bool) {
		if !configured {
			return
		}
		total++
		if ok {
			met++
		}
	}

	if criteria.MinValue != nil {
		check(true, rec.Value != nil && *rec.Value >= *criteria.MinValue)
	}
	check(len(criteria.Categories) > 0, slices.Contains(criteria.Categories, rec.Category))
	check(len(criteria.Statuses) > 0, slices.Contains(criteria.Statuses, rec.Status))
	check(len(criteria.Sources) > 0, slices.Contains(criteria.Sources, rec.SourceID))

	if total == 0 {
		return NeutralScore
	}
	return int(math.Round(float64(met) / float64(total) * 100))
}
