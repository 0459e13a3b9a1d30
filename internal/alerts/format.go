package alerts

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/JakeFAU/sitescan/internal/connectors"
	"github.com/JakeFAU/sitescan/internal/opportunity"
)

const (
	maxEmailItems = 10
	maxSMSItems   = 3
	smsTitleRunes = 60
)

// Item is one record in an alert with its profile match for the subscriber.
type Item struct {
	Record opportunity.Record
	Match  int
}

// FormatCurrency renders a value as $1.2M, $500K, $950 or N/A.
func FormatCurrency(v *float64) string {
	if v == nil || *v == 0 {
		return "N/A"
	}
	switch {
	case *v >= 1_000_000:
		return fmt.Sprintf("$%.1fM", *v/1_000_000)
	case *v >= 1_000:
		return fmt.Sprintf("$%.0fK", *v/1_000)
	default:
		return fmt.Sprintf("$%.0f", *v)
	}
}

func plural(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}

// EmailSubject returns the subject line for n items.
func EmailSubject(n int) string {
	return fmt.Sprintf("SiteScan: %d new construction opportunit%s", n, plural(n))
}

var emailTmpl = template.Must(template.New("email").Funcs(template.FuncMap{
	"currency": FormatCurrency,
}).Parse(`<div style="font-family: -apple-system, 'Segoe UI', sans-serif; max-width: 700px; margin: 0 auto; background: #08080a; color: #e8e6e1; padding: 32px;">
<h1 style="font-size: 24px; margin: 0 0 4px 0;">SiteScan Alert</h1>
<p style="color: #666; margin: 0; font-size: 14px;">{{.Count}} new high-match opportunit{{.Plural}} found</p>
<table style="width: 100%; border-collapse: collapse; background: #0c0c0e;">
<thead><tr><th align="left">Project</th><th>Match</th><th align="right">Value</th><th>Status</th><th>Link</th></tr></thead>
<tbody>
{{- range .Items}}
<tr style="border-bottom: 1px solid #1a1a1f;">
<td style="padding: 16px 12px;"><div style="font-weight: 700;">{{.Record.Title}}</div><div style="font-size: 13px; color: #888;">{{.Record.Location}}</div>{{if .Record.Agency}}<div style="font-size: 13px; color: #888;">{{.Record.Agency}}</div>{{end}}</td>
<td style="padding: 16px 12px; text-align: center;">{{.Match}}%</td>
<td style="padding: 16px 12px; text-align: right;">{{currency .Record.Value}}</td>
<td style="padding: 16px 12px; text-align: center;">{{.Record.Status}}</td>
<td style="padding: 16px 12px; text-align: center;">{{if .Record.SourceURL}}<a href="{{.Record.SourceURL}}">View</a>{{end}}</td>
</tr>
{{- end}}
</tbody>
</table>
<p style="color: #444; font-size: 12px; margin-top: 24px; text-align: center;">Adjust alert settings in your SiteScan profile.</p>
</div>
`))

// EmailBody renders the HTML table of at most ten items.
func EmailBody(items []Item) (string, error) {
	shown := items
	if len(shown) > maxEmailItems {
		shown = shown[:maxEmailItems]
	}
	var b bytes.Buffer
	err := emailTmpl.Execute(&b, struct {
		Count  int
		Plural string
		Items  []Item
	}{Count: len(items), Plural: plural(len(items)), Items: shown})
	if err != nil {
		return "", fmt.Errorf("render email: %w", err)
	}
	return b.String(), nil
}

// SMSBody renders a header line, at most three items and a remainder line.
func SMSBody(items []Item) string {
	lines := []string{fmt.Sprintf("SiteScan: %d new opportunities", len(items))}
	for i, it := range items {
		if i == maxSMSItems {
			break
		}
		lines = append(lines, fmt.Sprintf("• %s (%d%% match, %s)",
			connectors.Truncate(it.Record.Title, smsTitleRunes), it.Match, FormatCurrency(it.Record.Value)))
	}
	if len(items) > maxSMSItems {
		lines = append(lines, fmt.Sprintf("+ %d more, check SiteScan", len(items)-maxSMSItems))
	}
	return strings.Join(lines, "\n")
}
