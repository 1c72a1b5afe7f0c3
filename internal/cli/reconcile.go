package cli

import (
	"context"

	"github.com/spf13/cobra"

	"quiz-commit-service/internal/config"
	"quiz-commit-service/internal/logger"
)

// NewReconcileCmd resends the backend leg for commitments that reached the
// chain but never reached the backend.
func NewReconcileCmd(configPath *string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Retry backend submission for committed but unstored answers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(cmd.Context(), *configPath, limit)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum ledger entries to process")
	return cmd
}

func runReconcile(ctx context.Context, configPath string, limit int) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	if cfg.Ledger.Driver == "" || cfg.Ledger.Driver == config.LedgerMemory {
		log.Warn("memory ledger lives in the server process, which reconciles it in the background")
		return nil
	}

	d, err := openDeps(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer d.Close()

	landed, err := d.commit.Reconcile(ctx, limit)
	if err != nil {
		return err
	}
	log.WithField("landed", landed).Info("reconcile finished")
	return nil
}
