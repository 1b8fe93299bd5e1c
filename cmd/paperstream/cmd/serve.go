package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"paperstream/internal/database"
	"paperstream/internal/fetch"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the daily fetch scheduler",
	Long: `Open the database, seed configured journals, start the daily fetch
scheduler and run an initial fetch of every active journal. Blocks until
interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Bool("skip-initial-fetch", false, "do not fetch on startup, wait for the schedule")
}

func runServe(cmd *cobra.Command, args []string) error {
	skipInitial, _ := cmd.Flags().GetBool("skip-initial-fetch")

	logger.Printf("Starting paperstream v%s", version)
	logger.Printf("Database: %s", cfg.DBPath)
	logger.Printf("Data directory: %s", cfg.DataPath)

	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	seedJournals(cmd.Context(), db)

	service := fetch.NewService(db, logger, fetch.Options{
		Delay:   time.Duration(cfg.Fetch.DelaySeconds) * time.Second,
		Timeout: time.Duration(cfg.Fetch.TimeoutSeconds) * time.Second,
	}, cfg.Fetch.Hour, cfg.Fetch.Minute)
	service.Start()
	defer service.Stop()

	if !skipInitial {
		if _, err := service.Orchestrator().RunAll(cmd.Context()); err != nil {
			logger.Printf("Initial fetch run failed: %v", err)
		}
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logger.Printf("Shutting down")
	return nil
}

// seedJournals ensures every config-declared journal exists. Seeding
// failures are logged and skipped so one bad entry cannot block startup.
func seedJournals(ctx context.Context, db *database.DB) {
	for _, seed := range cfg.Journals {
		journal, created, err := db.EnsureJournal(ctx, 0, seed.Name, seed.RSSURL)
		if err != nil {
			logger.Printf("Error seeding journal %q: %v", seed.Name, err)
			continue
		}
		if created {
			logger.Printf("Seeded journal %q (id %d)", journal.Name, journal.ID)
		}
	}
}
