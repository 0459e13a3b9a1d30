// Package scoring classifies listings and computes their baseline and
// per-subscriber relevance scores. Everything here is pure.
package scoring

import (
	"regexp"

	"github.com/JakeFAU/sitescan/internal/opportunity"
)

type categoryGroup struct {
	category string
	pattern  *regexp.Regexp
}

// categoryGroups is evaluated in this order. Order only matters for readability:
// a tie between groups resolves to the default category.
var categoryGroups = []categoryGroup{
	{"historic-restoration", regexp.MustCompile(`(?i)historic|heritage|preservation|landmark|antebellum|restoration|` +
		`national\s*register|adaptive\s*reuse|period|century|colonial|victorian|greek\s*revival|art\s*deco`)},
	{"masonry", regexp.MustCompile(`(?i)masonry|mortar|brick|stone|concrete\s*block|stucco|repoint|` +
		`tuckpoint|grout|cmu|veneer|parapet|chimney|lime\s*mortar`)},
	{"structural", regexp.MustCompile(`(?i)structur|foundation|reinforc|load[\s-]*bear|steel\s*beam|` +
		`shoring|underpin|seismic|retaining\s*wall|pile|micropile|helical|shotcrete|carbon\s*fiber`)},
	{"government", regexp.MustCompile(`(?i)government|municipal|federal|state\s*of|county\s*of|city\s*of|` +
		`public\s*works|department\s*of|u\.?s\.?\s*army|corps\s*of\s*engineer|gsa|va\s*hospital|courthouse|post\s*office`)},
	{"commercial", regexp.MustCompile(`(?i)commercial|office|retail|mixed[\s-]*use|warehouse|industrial|` +
		`hotel|hospital|school|university|church|tenant\s*improvement`)},
}

// Categories returns the category labels the classifier can produce, default last.
func Categories() []string {
	out := make([]string, 0, len(categoryGroups)+1)
	for _, g := range categoryGroups {
		out = append(out, g.category)
	}
	return append(out, opportunity.DefaultCategory)
}

// Classify assigns one category to a listing from its text. The group with the
// strictly highest match count wins; ties and zero matches yield "residential".
func Classify(title, description string) string {
	text := title + " " + description
	best, bestCount, tied := "", 0, false
	for _, g := range categoryGroups {
		n := len(g.pattern.FindAllStringIndex(text, -1))
		switch {
		case n > bestCount:
			best, bestCount, tied = g.category, n, false
		case n == bestCount && n > 0:
			tied = true
		}
	}
	if bestCount == 0 || tied {
		return opportunity.DefaultCategory
	}
	return best
}
