package main

import (
	"errors"
	"io/fs"

	"github.com/MrEthical07/authcore/internal/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configPath string
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:   "authctl",
	Short: "Run and operate the authcore authentication service",
	Long: `authctl serves the authcore HTTP API and carries the operational tooling
around it: signing key generation, password hashing, database migrations and
a load generator.

Configuration comes from an optional YAML file (--config) overlaid with
AUTHCORE_* environment variables. A .env file is loaded first when present.`,
	SilenceUsage: true,
	Version:      version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	rootCmd.AddCommand(serveCmd, keysCmd, hashCmd, migrateCmd, loadtestCmd)
}

// loadConfig applies the dotenv file, then the YAML file and the environment.
func loadConfig() (*config.Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return config.Load(configPath)
}
