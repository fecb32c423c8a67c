package main

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"churn-ops-dashboard/internal/connectors/viewstore"
	"churn-ops-dashboard/internal/table"
)

var (
	viewSort        string
	viewFilters     []string
	viewHidden      []string
	viewPageSize    int
	viewDescription string
)

var viewsCmd = &cobra.Command{
	Use:   "views",
	Short: "Manage saved customer table views",
	Long: `Saved views persist a sort, filters, hidden columns and page size under a
name in the SQLite file given by --views-db or APP_VIEWS_SQLITE_PATH. The web
dashboard reads the same file.`,
}

var viewsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved views",
	Args:  cobra.NoArgs,
	RunE:  runViewsList,
}

var viewsSaveCmd = &cobra.Command{
	Use:   "save [name]",
	Short: "Create or replace a saved view",
	Long: `Stores a table state under name, replacing any view with the same name.

Example:
  churnctl views save "At risk" --sort=-churn_probability --filter status=not_notified`,
	Args: cobra.ExactArgs(1),
	RunE: runViewsSave,
}

var viewsDeleteCmd = &cobra.Command{
	Use:   "delete [id|name]",
	Short: "Delete a saved view",
	Args:  cobra.ExactArgs(1),
	RunE:  runViewsDelete,
}

var viewsSeedCmd = &cobra.Command{
	Use:   "seed [presets.yaml]",
	Short: "Load view presets from a YAML file (default APP_VIEW_PRESETS_FILE)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runViewsSeed,
}

func init() {
	viewsSaveCmd.Flags().StringVar(&viewSort, "sort", "", `Sort order, e.g. "-churn_probability,name"`)
	viewsSaveCmd.Flags().StringArrayVar(&viewFilters, "filter", nil, "Column filter as column=value (repeatable)")
	viewsSaveCmd.Flags().StringSliceVar(&viewHidden, "hide", nil, "Columns to hide")
	viewsSaveCmd.Flags().IntVar(&viewPageSize, "page-size", 0, "Rows per page")
	viewsSaveCmd.Flags().StringVar(&viewDescription, "description", "", "Free text shown next to the view")

	viewsCmd.AddCommand(viewsListCmd)
	viewsCmd.AddCommand(viewsSaveCmd)
	viewsCmd.AddCommand(viewsDeleteCmd)
	viewsCmd.AddCommand(viewsSeedCmd)
}

func openViews() (*viewstore.Store, func(), error) {
	if strings.TrimSpace(cfg.ViewsSQLitePath) == "" {
		return nil, nil, errors.New("saved views not configured (set APP_VIEWS_SQLITE_PATH or --views-db)")
	}
	store, err := viewstore.NewSQLiteStore(cfg.ViewsSQLitePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open views store: %w", err)
	}
	return store, func() { _ = store.Close() }, nil
}

func runViewsList(cmd *cobra.Command, args []string) error {
	store, release, err := openViews()
	if err != nil {
		return err
	}
	defer release()

	ctx, cancel := commandContext(cmd)
	defer cancel()
	views, err := store.List(ctx, 0)
	if err != nil {
		return err
	}
	if asJSON {
		return writeJSON(cmd.OutOrStdout(), views)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSORT\tFILTERS\tUPDATED")
	for _, v := range views {
		updated := "-"
		if v.UpdatedAt != nil {
			updated = humanize.Time(*v.UpdatedAt)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", v.ID, v.Name, sortSpec(v.State.Sort), filterSpec(v.State.Filters), updated)
	}
	return tw.Flush()
}

func runViewsSave(cmd *cobra.Command, args []string) error {
	filters, err := parseFilters(viewFilters)
	if err != nil {
		return err
	}
	st := table.State{
		Sort:     table.ParseSort(viewSort),
		PageSize: viewPageSize,
	}
	if len(filters) > 0 {
		st.Filters = filters
	}
	for _, col := range viewHidden {
		st.Hidden = append(st.Hidden, table.ColumnID(strings.TrimSpace(col)))
	}

	store, release, err := openViews()
	if err != nil {
		return err
	}
	defer release()

	ctx, cancel := commandContext(cmd)
	defer cancel()
	id, err := store.Upsert(ctx, args[0], viewDescription, st)
	if err != nil {
		return err
	}
	logger.Info("view saved", zap.Int64("id", id), zap.String("name", args[0]))
	fmt.Fprintf(cmd.OutOrStdout(), "Saved view %q (id %d)\n", strings.TrimSpace(args[0]), id)
	return nil
}

func runViewsDelete(cmd *cobra.Command, args []string) error {
	store, release, err := openViews()
	if err != nil {
		return err
	}
	defer release()

	ctx, cancel := commandContext(cmd)
	defer cancel()
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		v, lookupErr := store.GetByName(ctx, args[0])
		if lookupErr != nil {
			return lookupErr
		}
		id = v.ID
	}
	n, err := store.Delete(ctx, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: id %d", viewstore.ErrNotFound, id)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted view %d\n", id)
	return nil
}

func runViewsSeed(cmd *cobra.Command, args []string) error {
	path := cfg.ViewPresetsFile
	if len(args) == 1 {
		path = args[0]
	}
	if strings.TrimSpace(path) == "" {
		return errors.New("no presets file given (pass one or set APP_VIEW_PRESETS_FILE)")
	}

	store, release, err := openViews()
	if err != nil {
		return err
	}
	defer release()

	ctx, cancel := commandContext(cmd)
	defer cancel()
	n, err := store.SeedPresets(ctx, path)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d view(s) from %s\n", n, path)
	return nil
}

func sortSpec(keys []table.SortKey) string {
	if len(keys) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		if k.Desc {
			parts = append(parts, "-"+string(k.Column))
		} else {
			parts = append(parts, string(k.Column))
		}
	}
	return strings.Join(parts, ",")
}

func filterSpec(filters map[table.ColumnID]string) string {
	if len(filters) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(filters))
	for col, v := range filters {
		parts = append(parts, string(col)+"="+v)
	}
	slices.Sort(parts)
	return strings.Join(parts, " ")
}
