// Package cmd contains all CLI commands for paperstream
package cmd

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"paperstream/internal/config"
	"paperstream/internal/database"
	"paperstream/internal/secrets"
)

var (
	cfgFile  string
	dbPath   string
	dataPath string
	cfg      config.Config
	logger   *log.Logger
	version  = "dev"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "paperstream",
	Short: "Academic journal feed aggregation and summarization pipeline",
	Long: `paperstream fetches academic journal RSS feeds on a schedule,
deduplicates and stores paper metadata, resolves open-access full text,
and generates structured LLM summaries, tag digests and trend reports.

Example usage:
  paperstream serve                   # Run the daily fetch scheduler
  paperstream fetch                   # Fetch every active journal once
  paperstream fetch --journal 3       # Fetch one journal by id
  paperstream journals list           # Show configured journals
  paperstream summarize paper 42      # Summarize one paper
  paperstream fulltext --retry        # Re-run failed full-text lookups`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string for the CLI
func SetVersion(v string) {
	version = v
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $PAPERSTREAM_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database file (default data/paperstream.db)")
	rootCmd.PersistentFlags().StringVar(&dataPath, "data", "", "data directory (default data)")
}

// initConfig loads the YAML/env configuration and applies flag overrides.
func initConfig() error {
	logger = log.New(os.Stdout, "paperstream: ", log.LstdFlags|log.Lshortfile)

	cfg = config.Load(cfgFile)
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if dataPath != "" {
		cfg.DataPath = dataPath
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// openDB creates parent directories and opens the sqlite database.
func openDB() (*database.DB, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := database.NewDB(cfg.DBPath, database.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return db, nil
}

// openSecrets opens the encrypted API key store.
func openSecrets() (*secrets.Store, error) {
	store, err := secrets.Open(cfg.SecretsPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open secret store: %w", err)
	}
	return store, nil
}
