package scoring

import (
	"regexp"
	"strings"
)

const (
	baselineStart   = 35
	negativePenalty = 10
	keywordBonus    = 3
	minScore        = 1
	maxScore        = 99
)

type weightedGroup struct {
	name    string
	weight  int
	pattern *regexp.Regexp
}

var baselineGroups = []weightedGroup{
	{"historic", 18, regexp.MustCompile(`(?i)historic|restoration|preservation|heritage|landmark|` +
		`adaptive\s*reuse|national\s*register`)},
	{"masonry", 14, regexp.MustCompile(`(?i)masonry|brick|mortar|stone|stucco|repoint|tuckpoint|` +
		`parapet|chimney|\bcmu\b|veneer`)},
	{"structural", 12, regexp.MustCompile(`(?i)structur|foundation|reinforc|shoring|underpin|` +
		`retaining\s*wall|load[\s-]*bear|steel\s*beam`)},
	{"envelope", 10, regexp.MustCompile(`(?i)waterproof|facade|façade|building\s*envelope|sealant|` +
		`caulk|roofing|cornice|lintel`)},
	{"location", 8, regexp.MustCompile(`(?i)north\s+charleston|charleston|mount\s+pleasant|mt\.?\s*pleasant|` +
		`summerville|james\s+island|johns\s+island|daniel\s+island|west\s+ashley|goose\s+creek|` +
		`folly\s+beach|isle\s+of\s+palms|sullivan'?s\s+island|kiawah|berkeley\s+county|dorchester\s+county`)},
	{"code", 6, regexp.MustCompile(`(?i)\bada\b|code\s+compliance|fire\s+code|abatement|asbestos|` +
		`lead[\s-]+paint|hurricane|flood|seismic`)},
	{"renovation", 4, regexp.MustCompile(`(?i)renovat|rehabilitat|repair|remodel|improvement|upgrade|modernization`)},
	{"general", 2, regexp.MustCompile(`(?i)construct|building|contractor|\bbids?\b|\brfp\b|\brfq\b|` +
		`solicitation|design[\s-]+build`)},
}

var negativePattern = regexp.MustCompile(`(?i)janitorial|custodial|landscap|lawn\s+care|mowing|software|` +
	`\bit\s+services|catering|food\s+service|pest\s+control|staffing|office\s+supplies|uniforms|` +
	`vehicle\s+(?:lease|purchase)|medical\s+supplies`)

// Baseline computes the subscriber-independent relevance score of a listing in
// [1, 99]. keywords is a whitespace-delimited list; each keyword present in the
// text adds a flat bonus.
func Baseline(title, description, keywords string) int {
	text := title + " " + description
	score := baselineStart
	for _, g := range baselineGroups {
		n := len(g.pattern.FindAllStringIndex(text, -1))
		if n == 0 {
			continue
		}
		score += g.weight + min(n-1, 3)*(g.weight/4)
	}

	lower := strings.ToLower(text)
	for _, kw := range strings.Fields(strings.ToLower(keywords)) {
		if strings.Contains(lower, kw) {
			score += keywordBonus
		}
	}

	score -= negativePenalty * len(negativePattern.FindAllStringIndex(text, -1))
	return clamp(score, minScore, maxScore)
}

// WithValueBoost adds the value tier bonus to a baseline score.
func WithValueBoost(score int, value *float64) int {
	if value == nil {
		return score
	}
	switch {
	case *value >= 500_000:
		score += 4
	case *value >= 100_000:
		score += 2
	}
	return min(score, maxScore)
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
