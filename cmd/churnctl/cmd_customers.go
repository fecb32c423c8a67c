package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"churn-ops-dashboard/internal/customer"
	"churn-ops-dashboard/internal/detail"
	"churn-ops-dashboard/internal/table"
)

var (
	listSort     string
	listFilters  []string
	listPage     int
	listPageSize int
	listView     string
)

var customersCmd = &cobra.Command{
	Use:     "customers",
	Aliases: []string{"c"},
	Short:   "List and inspect customers",
}

var customersListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print one page of the customer table",
	Long: `Loads every customer from the configured source and prints one page of the
table after sorting and filtering.

Examples:
  churnctl customers list --sort=-churn_probability --page-size 20
  churnctl customers list --filter status=not_notified --filter name=ada
  churnctl customers list --view "At risk, not notified"`,
	Args: cobra.NoArgs,
	RunE: runCustomersList,
}

var customersShowCmd = &cobra.Command{
	Use:   "show [customer-id]",
	Short: "Print the detail view of one customer",
	Args:  cobra.ExactArgs(1),
	RunE:  runCustomersShow,
}

func init() {
	customersListCmd.Flags().StringVar(&listSort, "sort", "", `Sort order, e.g. "-churn_probability,name"`)
	customersListCmd.Flags().StringArrayVar(&listFilters, "filter", nil, "Column filter as column=value (repeatable)")
	customersListCmd.Flags().IntVar(&listPage, "page", 1, "1-based page number")
	customersListCmd.Flags().IntVar(&listPageSize, "page-size", 0, "Rows per page (default APP_DEFAULT_PAGE_SIZE)")
	customersListCmd.Flags().StringVar(&listView, "view", "", "Start from a saved view by name")

	customersCmd.AddCommand(customersListCmd)
	customersCmd.AddCommand(customersShowCmd)
}

// listState merges a saved view (if any) with the command line flags. Flags
// given explicitly replace the matching part of the view.
func listState(cmd *cobra.Command) (table.State, error) {
	var st table.State
	if listView != "" {
		views, closeViews, err := openViews()
		if err != nil {
			return st, err
		}
		defer closeViews()
		ctx, cancel := commandContext(cmd)
		defer cancel()
		v, err := views.GetByName(ctx, listView)
		if err != nil {
			return st, err
		}
		st = v.State
	}

	if listSort != "" {
		st.Sort = table.ParseSort(listSort)
	}
	filters, err := parseFilters(listFilters)
	if err != nil {
		return st, err
	}
	for col, v := range filters {
		if st.Filters == nil {
			st.Filters = map[table.ColumnID]string{}
		}
		st.Filters[col] = v
	}
	if listPageSize > 0 {
		st.PageSize = listPageSize
	}
	if st.PageSize <= 0 {
		st.PageSize = cfg.DefaultPage
	}
	if cmd.Flags().Changed("page") || listView == "" {
		if listPage < 1 {
			return st, fmt.Errorf("page must be a positive integer")
		}
		st.PageIndex = listPage - 1
	}
	return st, st.Validate()
}

func parseFilters(raw []string) (map[table.ColumnID]string, error) {
	out := map[table.ColumnID]string{}
	for _, f := range raw {
		col, value, ok := strings.Cut(f, "=")
		if !ok || strings.TrimSpace(col) == "" {
			return nil, fmt.Errorf("filter %q: expected column=value", f)
		}
		out[table.ColumnID(strings.TrimSpace(col))] = strings.TrimSpace(value)
	}
	return out, nil
}

func runCustomersList(cmd *cobra.Command, args []string) error {
	st, err := listState(cmd)
	if err != nil {
		return err
	}

	loader, release, err := customerLoader()
	if err != nil {
		return err
	}
	defer release()

	ctx, cancel := commandContext(cmd)
	defer cancel()
	records, err := loader.LoadCollection(ctx)
	if err != nil {
		return loadError(err)
	}
	logger.Debug("customers loaded", zap.Int("count", len(records)))

	store, err := table.NewStore(records, st.PageSize)
	if err != nil {
		return err
	}
	if err := store.ApplyState(st); err != nil {
		return err
	}
	page := store.Page()

	if asJSON {
		return writeJSON(cmd.OutOrStdout(), map[string]any{
			"page":      page.PageIndex + 1,
			"page_size": page.PageSize,
			"pages":     page.PageCount,
			"total":     page.Total,
			"filtered":  page.Filtered,
			"customers": page.Rows,
		})
	}

	out := cmd.OutOrStdout()
	tw := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCONTRACT\tMONTHLY\tCHURN\tSTATUS")
	for _, r := range page.Rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.CustomerID,
			r.FullName(),
			dash(r.Contract),
			detail.Money(r.MonthlyCharges),
			detail.NewIndicator(r.ChurnProbability).Label,
			r.Status().Label())
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(page.Rows) == 0 {
		fmt.Fprintln(out, "No customers match the current filters.")
	}
	fmt.Fprintf(out, "\nPage %d of %d · %s of %s customers\n",
		page.PageIndex+1, max(page.PageCount, 1),
		humanize.Comma(int64(page.Filtered)), humanize.Comma(int64(page.Total)))
	return nil
}

func runCustomersShow(cmd *cobra.Command, args []string) error {
	id, ok := customer.IDFromValue(args[0])
	if !ok {
		return fmt.Errorf("invalid customer id %q", args[0])
	}

	loader, release, err := customerLoader()
	if err != nil {
		return err
	}
	defer release()

	ctx, cancel := commandContext(cmd)
	defer cancel()
	rec, err := loader.LoadOne(ctx, id)
	if err != nil {
		return loadError(err)
	}
	view := detail.Build(rec)
	if asJSON {
		return writeJSON(cmd.OutOrStdout(), view)
	}
	printDetail(cmd.OutOrStdout(), view)
	return nil
}

func printDetail(w io.Writer, v detail.View) {
	fmt.Fprintf(w, "%s (#%s)  churn %s\n", v.Name, v.CustomerID, v.Probability.Label)
	for _, s := range v.Sections {
		fmt.Fprintf(w, "\n%s\n", s.Title)
		for _, f := range s.Fields {
			value := f.Value
			if f.Note != "" {
				value += " (" + f.Note + ")"
			}
			fmt.Fprintf(w, "  %-20s %s\n", f.Label, value)
		}
	}
}

func loadError(err error) error {
	if customer.IsShapeError(err) {
		return fmt.Errorf("unexpected data format: %w", err)
	}
	return fmt.Errorf("failed to load customers: %w", err)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func dash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
