package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"paperstream/internal/fetch"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch journal feeds now",
	Long: `Run one fetch pass immediately, outside the daily schedule.

Examples:
  paperstream fetch               # All active journals
  paperstream fetch --journal 3   # One journal by id`,
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().Int64("journal", 0, "fetch only this journal id")
}

func runFetch(cmd *cobra.Command, args []string) error {
	journalID, _ := cmd.Flags().GetInt64("journal")

	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	orchestrator := fetch.NewOrchestrator(db, logger, fetch.Options{
		Delay:   time.Duration(cfg.Fetch.DelaySeconds) * time.Second,
		Timeout: time.Duration(cfg.Fetch.TimeoutSeconds) * time.Second,
	})

	if journalID > 0 {
		result, err := orchestrator.RunOne(cmd.Context(), journalID)
		if err != nil {
			return err
		}
		printResult(result)
		return nil
	}

	results, err := orchestrator.RunAll(cmd.Context())
	if errors.Is(err, fetch.ErrAlreadyRunning) {
		fmt.Println("A fetch run is already in progress")
		return nil
	}
	if err != nil {
		return err
	}

	for _, result := range results {
		printResult(result)
	}
	fmt.Printf("Fetched %d journals\n", len(results))
	return nil
}

func printResult(r fetch.Result) {
	if r.Err != nil {
		fmt.Printf("[%s] %s (id %d): %v (%dms)\n",
			r.Status, r.JournalName, r.JournalID, r.Err, r.Elapsed.Milliseconds())
		return
	}
	fmt.Printf("[%s] %s (id %d): %d papers, %d new (%dms)\n",
		r.Status, r.JournalName, r.JournalID, r.PapersFetched, r.NewPapers, r.Elapsed.Milliseconds())
}
