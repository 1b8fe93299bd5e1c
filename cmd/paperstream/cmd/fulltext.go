package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"paperstream/internal/fulltext"
)

var fulltextCmd = &cobra.Command{
	Use:   "fulltext",
	Short: "Resolve open-access full text for stored papers",
	Long: `Sweep papers that have not been through full-text resolution yet.
Each paper gets one attempt: DOI lookup via Unpaywall, download, then
PDF or HTML text extraction. Attempts are recorded so the default sweep
never revisits a paper; use --retry to re-run previously failed ones.`,
	RunE: runFulltext,
}

func init() {
	rootCmd.AddCommand(fulltextCmd)

	fulltextCmd.Flags().Bool("retry", false, "include papers whose previous attempt failed")
}

func runFulltext(cmd *cobra.Command, args []string) error {
	retry, _ := cmd.Flags().GetBool("retry")

	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	resolver, err := fulltext.NewResolver(db, logger, fulltext.Options{
		UnpaywallURL:     cfg.FullText.UnpaywallURL,
		Email:            cfg.FullText.Email,
		Timeout:          time.Duration(cfg.FullText.TimeoutSeconds) * time.Second,
		MaxDownloadBytes: cfg.FullText.MaxDownloadBytes,
		MaxTextChars:     cfg.FullText.MaxTextChars,
		PDFDir:           cfg.PDFDir(),
	})
	if err != nil {
		return err
	}

	result, err := resolver.ResolveBatch(cmd.Context(), retry)
	if err != nil {
		return err
	}

	fmt.Printf("Full text: %d attempted, %d resolved, %d failed\n",
		result.Attempted, result.Succeeded, result.Failed)
	return nil
}
