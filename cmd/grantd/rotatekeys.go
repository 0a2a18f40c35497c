package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dropDatabas3/grantd/internal/config"
	"github.com/dropDatabas3/grantd/internal/observability/logger"
)

// rotate-keys retires the active signing key into the previous slot and
// generates a fresh one. Relying parties keep verifying recent id_tokens
// through the JWKS grace window.
func newRotateKeysCmd(loadConfig func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "rotate-keys",
		Short: "Rotate the id_token signing key",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ks, err := openKeystore(cfg)
			if err != nil {
				return err
			}
			if err := ks.Rotate(); err != nil {
				return err
			}
			kid, _, _ := ks.Active()
			logger.Named("rotate-keys").Info("signing key rotated", zap.String("kid", kid))
			return nil
		},
	}
}
