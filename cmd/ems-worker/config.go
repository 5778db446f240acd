package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/crim-ca/weaver-ems/internal/config"
	"github.com/crim-ca/weaver-ems/internal/logger"
)

// cfg and log are populated by loadAppConfig in the root command's
// PersistentPreRunE, mirroring the teacher CLI's package-level cfg/v
// pair (cmd/cli/config.go) but loading the server Config instead of a
// thin CLI-only struct.
var (
	cfg *config.Config
	log *zap.Logger
	v   *viper.Viper
)

func bindRootFlags(cmd *cobra.Command) error {
	v = config.NewViperInstance()
	if err := v.BindPFlag("config", cmd.PersistentFlags().Lookup("config")); err != nil {
		return err
	}
	return nil
}

// loadAppConfig resolves the configuration file (flag, EMS_CONFIG env var,
// then standard locations per config.FindConfigFile), unmarshals it into a
// config.Config, validates it, and initializes the process-wide logger.
func loadAppConfig(cmd *cobra.Command) error {
	if v == nil {
		return fmt.Errorf("viper not initialized")
	}
	if err := config.BindEnvironmentVariables(v); err != nil {
		return fmt.Errorf("bind environment variables: %w", err)
	}

	configFlag := v.GetString("config")
	configFile, err := config.FindConfigFile(configFlag)
	if err != nil {
		return err
	}
	if configFile != "" {
		if err := config.LoadConfigFile(v, configFile); err != nil {
			return err
		}
	}

	loaded, err := config.LoadFromViper(v)
	if err != nil {
		return err
	}
	cfg = loaded

	l, err := logger.New(cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	log = l

	return nil
}
