package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dropDatabas3/grantd/internal/config"
	"github.com/dropDatabas3/grantd/internal/oauth"
	"github.com/dropDatabas3/grantd/internal/observability/logger"
)

// purge runs one bounded expired-token reclamation pass and exits. It is
// meant for a scheduler, never for a request path.
func newPurgeCmd(loadConfig func() (*config.Config, error)) *cobra.Command {
	var (
		count     int64
		batchSize int64
	)
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete expired access tokens and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if count > 0 {
				cfg.Purge.Count = count
			}
			if batchSize > 0 {
				cfg.Purge.BatchSize = batchSize
			}

			ctx := cmd.Context()
			st, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.Ping(ctx); err != nil {
				return fmt.Errorf("store ping: %w", err)
			}

			svc := oauth.NewService(st, nil, nil, nil, oauth.Options{})
			deleted, err := svc.Purge(ctx, oauth.PurgeParams{
				Count:           cfg.Purge.Count,
				Delay:           cfg.Purge.Delay.Std(),
				BatchSize:       cfg.Purge.BatchSize,
				IgnoreClientIDs: cfg.Purge.IgnoreClientIDs,
			})
			if err != nil {
				return err
			}
			logger.Named("purge").Info("run complete", zap.Int64("deleted", deleted))
			return nil
		},
	}
	cmd.Flags().Int64Var(&count, "count", 0, "max tokens to delete this run (default from config)")
	cmd.Flags().Int64Var(&batchSize, "batch-size", 0, "rows per delete batch (default from config)")
	return cmd
}
