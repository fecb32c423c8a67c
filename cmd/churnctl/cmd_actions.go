package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"churn-ops-dashboard/internal/actions"
	"churn-ops-dashboard/internal/customer"
)

var notifyCmd = &cobra.Command{
	Use:   "notify [customer-id...]",
	Short: "Send retention notifications to customers",
	Long: `Sends a retention notification to every listed customer. Ids may be given as
separate arguments or comma separated. Notification needs integer ids.

Example:
  churnctl notify 3 7,12`,
	RunE: runAction(actions.KindNotify),
}

var predictCmd = &cobra.Command{
	Use:   "predict [customer-id...]",
	Short: "Request fresh churn predictions",
	Long: `Asks the backend to rescore the listed customers. Customers the backend could
not score are reported back by id.`,
	RunE: runAction(actions.KindPredict),
}

var uploadCmd = &cobra.Command{
	Use:   "upload [file.csv]",
	Short: "Upload a customer CSV to the backend",
	Args:  cobra.ExactArgs(1),
	RunE:  runUpload,
}

var askCmd = &cobra.Command{
	Use:   "ask [question...]",
	Short: "Ask the backend assistant a question about the customer base",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func runAction(kind actions.Kind) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		client, err := backendClient()
		if err != nil {
			return err
		}
		defer client.Close()

		ids := customer.ParseIDs(args)
		ctx, cancel := commandContext(cmd)
		defer cancel()

		outcome, err := actions.NewDispatcher(client).Dispatch(ctx, kind, ids)
		if err != nil {
			var verr *actions.ValidationError
			if !errors.As(err, &verr) {
				logger.Error("action failed", zap.String("kind", string(kind)), zap.Int("ids", len(ids)), zap.Error(err))
			}
			return err
		}
		logger.Info("action completed",
			zap.String("kind", string(kind)),
			zap.Int("requested", outcome.Requested),
			zap.Int("succeeded", outcome.Succeeded),
			zap.Int("failed", len(outcome.Failed)))

		if asJSON {
			return writeJSON(cmd.OutOrStdout(), outcome)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, outcome.Message)
		if len(outcome.Failed) > 0 {
			failed := make([]string, 0, len(outcome.Failed))
			for _, id := range outcome.Failed {
				failed = append(failed, id.String())
			}
			fmt.Fprintf(out, "Failed: %s\n", strings.Join(failed, ", "))
		}
		return nil
	}
}

func runUpload(cmd *cobra.Command, args []string) error {
	path := args[0]
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Size() > cfg.MaxUploadBytes {
		return fmt.Errorf("%s is larger than the %d MB upload limit", path, cfg.MaxUploadBytes>>20)
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}

	client, err := backendClient()
	if err != nil {
		_ = f.Close()
		return err
	}
	defer client.Close()

	ctx, cancel := commandContext(cmd)
	defer cancel()
	res, err := actions.NewUploader(client).Upload(ctx, filepath.Base(path), f)
	if err != nil {
		return err
	}
	logger.Info("csv uploaded", zap.String("file", path), zap.Int("processed", res.Processed), zap.Int("errors", res.Errors))

	if asJSON {
		return writeJSON(cmd.OutOrStdout(), res)
	}
	fmt.Fprintln(cmd.OutOrStdout(), res.Message())
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	client, err := backendClient()
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := commandContext(cmd)
	defer cancel()
	answer, err := actions.NewAssistant(client).Ask(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	if asJSON {
		return writeJSON(cmd.OutOrStdout(), map[string]string{"answer": answer})
	}
	fmt.Fprintln(cmd.OutOrStdout(), answer)
	return nil
}
