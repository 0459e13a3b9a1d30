package cmd

import (
	"github.com/spf13/cobra"
)

func newScanCmd() *cobra.Command {
	var (
		sources    []string
		keywords   string
		skipAlerts bool
	)
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Runs one scan cycle and prints the result",
		Long: `Scans the configured sources once, reconciles liveness and, unless
--skip-alerts is set, runs an alert pass. The cycle result is printed as JSON.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			req := appInstance.CycleRequest()
			req.Scan.Sources = sources
			if keywords != "" {
				req.Scan.Keywords = keywords
			}
			req.SkipAlerts = skipAlerts

			res, err := appInstance.Runner().RunCycle(cmd.Context(), req)
			if perr := printJSON(cmd.OutOrStdout(), res); perr != nil {
				return perr
			}
			return err
		},
	}
	cmd.Flags().StringSliceVar(&sources, "sources", nil, "source ids to scan (default all)")
	cmd.Flags().StringVar(&keywords, "keywords", "", "override the configured scoring keywords")
	cmd.Flags().BoolVar(&skipAlerts, "skip-alerts", false, "do not run the alert pass after scanning")
	return cmd
}
