package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"churn-ops-dashboard/internal/dashboard"
)

var statsRange string

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print the dashboard KPIs and churn trend",
	Long: `Fetches the dashboard statistics and the churn-over-time series and prints
them for the chosen range (7d, 30d or 90d).`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

func init() {
	statsCmd.Flags().StringVar(&statsRange, "range", string(dashboard.Range90d), "Trend window: 7d, 30d or 90d")
}

func runStats(cmd *cobra.Command, args []string) error {
	client, err := backendClient()
	if err != nil {
		return err
	}
	defer client.Close()

	rng := dashboard.ParseRange(statsRange)
	var (
		stats  dashboard.Stats
		series []dashboard.ChurnPoint
	)
	ctx, cancel := commandContext(cmd)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		stats, err = client.DashboardStats(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		series, err = client.ChurnOverTime(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to load dashboard: %w", err)
	}

	overview := dashboard.NewOverview(stats, series, rng)
	if asJSON {
		return writeJSON(cmd.OutOrStdout(), overview)
	}
	printOverview(cmd.OutOrStdout(), overview)
	return nil
}

func printOverview(w io.Writer, o dashboard.Overview) {
	s := o.Stats
	churn := fmt.Sprintf("%.1f%%", s.ChurnPercentage)
	if o.HighChurn {
		churn += "  (high)"
	}
	response := fmt.Sprintf("%.1f%%", s.ResponseRate)
	if o.LowResponse {
		response += "  (low)"
	}

	fmt.Fprintf(w, "%-26s %s\n", "Total customers", humanize.Comma(int64(s.TotalCustomers)))
	fmt.Fprintf(w, "%-26s %s\n", "Churn rate", churn)
	fmt.Fprintf(w, "%-26s %s\n", "Churned", humanize.Comma(int64(s.ChurnCount)))
	fmt.Fprintf(w, "%-26s %s\n", "At risk", humanize.Comma(int64(s.AtRiskCount)))
	fmt.Fprintf(w, "%-26s %s\n", "Notified", humanize.Comma(int64(s.NotifiedCount)))
	fmt.Fprintf(w, "%-26s %s\n", "Response rate", response)
	fmt.Fprintf(w, "%-26s %s\n", "Customers with predictions", humanize.Comma(int64(s.CustomersWithPredictions)))

	fmt.Fprintf(w, "\nChurn over the last %d days (%d points)\n", o.Range.Days(), len(o.Series))
	if len(o.Series) == 0 {
		fmt.Fprintln(w, "  no data")
		return
	}
	peak := 0.0
	for _, p := range o.Series {
		peak = max(peak, p.Churn)
	}
	for _, p := range o.Series {
		bar := 0
		if peak > 0 {
			bar = int(p.Churn / peak * 30)
		}
		fmt.Fprintf(w, "  %s  %-30s %g\n", p.Day, strings.Repeat("#", bar), p.Churn)
	}
}
