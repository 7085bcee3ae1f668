// Package cmd wires the boltbridge command-line interface.
package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"boltbridge/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "boltbridge",
	Short: "Orchestration bridge for the bolt.diy implementation backend",
	Long: `Boltbridge accepts implementation tasks over HTTP, submits them to a
bolt.diy code-generation backend, polls each task to a terminal state,
and fans backend stream events out to per-task SSE subscribers.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is ./boltbridge.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("boltbridge")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.config/boltbridge")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("BOLTBRIDGE")
	// Replace dots with underscores for nested keys in env vars
	// e.g., BOLTBRIDGE_BACKEND_URL for backend.url
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}

// loadConfig unmarshals and validates the effective configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, config.ValidationErrors(errs)
	}
	return cfg, nil
}
