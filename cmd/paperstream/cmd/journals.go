package cmd

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"paperstream/internal/database"
	"paperstream/internal/fetch"
)

var journalsCmd = &cobra.Command{
	Use:   "journals",
	Short: "Manage journals",
}

var journalsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all journals",
	RunE:  runJournalsList,
}

var journalsAddCmd = &cobra.Command{
	Use:   "add <name> <rss-url>",
	Short: "Add an RSS journal",
	Long: `Add a journal polled from an RSS/Atom feed. The feed is fetched and
parsed before the journal is created so broken URLs are rejected up front.`,
	Args: cobra.ExactArgs(2),
	RunE: runJournalsAdd,
}

var journalsDeactivateCmd = &cobra.Command{
	Use:   "deactivate <id>",
	Short: "Stop polling a journal without deleting its papers",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalsDeactivate,
}

var journalsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a journal and all its papers",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalsDelete,
}

func init() {
	rootCmd.AddCommand(journalsCmd)
	journalsCmd.AddCommand(journalsListCmd)
	journalsCmd.AddCommand(journalsAddCmd)
	journalsCmd.AddCommand(journalsDeactivateCmd)
	journalsCmd.AddCommand(journalsDeleteCmd)

	journalsAddCmd.Flags().Bool("skip-validation", false, "create the journal without checking the feed")
}

func runJournalsList(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	journals, err := db.ListJournals(cmd.Context())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTYPE\tACTIVE\tLAST FETCHED\tURL")
	for _, j := range journals {
		lastFetched := "never"
		if j.LastFetchedAt.Valid {
			lastFetched = j.LastFetchedAt.Time.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%v\t%s\t%s\n",
			j.ID, j.Name, j.SourceType, j.IsActive, lastFetched, j.RSSURL.String)
	}
	return w.Flush()
}

func runJournalsAdd(cmd *cobra.Command, args []string) error {
	name, rssURL := args[0], args[1]
	skipValidation, _ := cmd.Flags().GetBool("skip-validation")

	if !skipValidation {
		feedInfo, err := fetch.ValidateFeedURL(rssURL)
		if err != nil {
			return fmt.Errorf("feed validation failed: %w", err)
		}
		fmt.Printf("Feed OK: %q (%s, %d items)\n", feedInfo.Title, feedInfo.FeedType, feedInfo.ItemCount)
	}

	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	journal, err := db.CreateJournal(cmd.Context(), database.JournalInput{
		Name:       name,
		RSSURL:     rssURL,
		SourceType: database.SourceRSS,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Created journal %q (id %d)\n", journal.Name, journal.ID)
	return nil
}

func runJournalsDeactivate(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid journal id %q", args[0])
	}

	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.DeactivateJournal(cmd.Context(), id); err != nil {
		return err
	}
	fmt.Printf("Deactivated journal %d\n", id)
	return nil
}

func runJournalsDelete(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid journal id %q", args[0])
	}

	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.DeleteJournal(cmd.Context(), id); err != nil {
		return err
	}
	fmt.Printf("Deleted journal %d and its papers\n", id)
	return nil
}
