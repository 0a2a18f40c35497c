package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/grantd/internal/config"
	"github.com/dropDatabas3/grantd/internal/observability/logger"
)

var version = "dev"

func main() {
	// .env is optional; real deployments use the environment directly.
	_ = godotenv.Load()

	var configPath string

	root := &cobra.Command{
		Use:           "grantd",
		Short:         "OAuth2 authorization server",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", os.Getenv("GRANTD_CONFIG"), "path to the YAML config file")

	loadConfig := func() (*config.Config, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		logger.Init(logger.Config{
			Env:         cfg.App.Env,
			Level:       os.Getenv("LOG_LEVEL"),
			ServiceName: "grantd",
			Version:     version,
		})
		return cfg, nil
	}

	root.AddCommand(newServeCmd(loadConfig))
	root.AddCommand(newPurgeCmd(loadConfig))
	root.AddCommand(newRotateKeysCmd(loadConfig))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		_ = logger.Sync()
		os.Exit(1)
	}
	_ = logger.Sync()
}
