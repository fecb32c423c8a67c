package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"churn-ops-dashboard/internal/config"
	"churn-ops-dashboard/internal/connectors/churnapi"
	"churn-ops-dashboard/internal/connectors/warehouse"
	"churn-ops-dashboard/internal/customer"
	"churn-ops-dashboard/internal/logging"
)

var version = "dev"

var (
	verbose bool
	apiURL  string
	timeout time.Duration
	source  string
	viewsDB string
	asJSON  bool

	cfg    config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "churnctl",
	Short: "Operator console for the churn prediction backend",
	Long: `churnctl talks to the churn prediction backend the dashboard fronts.

It lists and inspects customers, sends retention notifications, requests
fresh churn predictions, uploads customer CSVs, and manages saved table views.

Settings come from APP_* environment variables or ./churn-dashboard.env; flags win.
Run "churnctl browse" for the interactive customer table.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.FromEnv()
		applyFlagOverrides(cmd)

		level := cfg.LogLevel
		if verbose {
			level = "debug"
		}
		var err error
		logger, err = logging.New(level, cfg.LogDev)
		if err != nil {
			return err
		}
		logger.Debug("configuration loaded",
			zap.String("api_base_url", cfg.APIBaseURL),
			zap.String("customer_source", cfg.CustomerSource),
			zap.Duration("timeout", cfg.APITimeout))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "Backend base URL (overrides APP_API_BASE_URL)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "Backend request timeout (overrides APP_API_TIMEOUT_SEC)")
	rootCmd.PersistentFlags().StringVar(&source, "source", "", "Customer source: api or warehouse (overrides APP_CUSTOMER_SOURCE)")
	rootCmd.PersistentFlags().StringVar(&viewsDB, "views-db", "", "Saved views SQLite file (overrides APP_VIEWS_SQLITE_PATH)")
	rootCmd.PersistentFlags().BoolVar(&asJSON, "json", false, "Print JSON instead of text")

	rootCmd.AddCommand(customersCmd)
	rootCmd.AddCommand(notifyCmd)
	rootCmd.AddCommand(predictCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(viewsCmd)
	rootCmd.AddCommand(browseCmd)
}

func applyFlagOverrides(cmd *cobra.Command) {
	flags := cmd.Root().PersistentFlags()
	if flags.Changed("api-url") {
		cfg.APIBaseURL = apiURL
	}
	if flags.Changed("timeout") && timeout > 0 {
		cfg.APITimeout = timeout
	}
	if flags.Changed("source") {
		cfg.CustomerSource = source
	}
	if flags.Changed("views-db") {
		cfg.ViewsSQLitePath = viewsDB
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// commandContext bounds one command by the backend timeout.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, cfg.APITimeout)
}

func backendClient() (*churnapi.Client, error) {
	client := churnapi.NewClient(cfg.APIBaseURL, cfg.APITimeout)
	if !client.Enabled() {
		return nil, fmt.Errorf("backend not configured (set APP_API_BASE_URL or --api-url)")
	}
	return client, nil
}

// customerLoader picks the configured customer source. The returned func
// releases whatever the source holds open.
func customerLoader() (*customer.Loader, func(), error) {
	if cfg.CustomerSource == config.SourceWarehouse {
		store, err := warehouse.NewStore(cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("open warehouse: %w", err)
		}
		return customer.NewLoader(store), func() { _ = store.Close() }, nil
	}
	client, err := backendClient()
	if err != nil {
		return nil, nil, err
	}
	return customer.NewLoader(client), client.Close, nil
}
