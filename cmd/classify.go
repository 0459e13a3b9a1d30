package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/sitescan/internal/scoring"
)

type classification struct {
	Category      string `json:"category"`
	BaselineScore int    `json:"baseline_score"`
}

// newClassifyCmd scores a listing offline. It needs no services, so it
// replaces the root hooks that build the application.
func newClassifyCmd() *cobra.Command {
	var (
		title       string
		description string
		keywords    string
		value       float64
	)
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Prints the category and baseline score of a listing",
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if title == "" && description == "" {
				return errors.New("--title or --description is required")
			}
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {},
		RunE: func(cmd *cobra.Command, _ []string) error {
			score := scoring.Baseline(title, description, keywords)
			if cmd.Flags().Changed("value") {
				score = scoring.WithValueBoost(score, &value)
			}
			return printJSON(cmd.OutOrStdout(), classification{
				Category:      scoring.Classify(title, description),
				BaselineScore: score,
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "listing title")
	cmd.Flags().StringVar(&description, "description", "", "listing description")
	cmd.Flags().StringVar(&keywords, "keywords", "", "extra scoring keywords")
	cmd.Flags().Float64Var(&value, "value", 0, "estimated value in dollars")
	return cmd
}
