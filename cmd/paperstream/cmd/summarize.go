package cmd

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"paperstream/internal/database"
	"paperstream/internal/summary"
)

var summarizeCmd = &cobra.Command{
	Use:   "summarize",
	Short: "Generate LLM summaries",
}

var summarizePaperCmd = &cobra.Command{
	Use:   "paper <id>",
	Short: "Summarize one paper",
	Args:  cobra.ExactArgs(1),
	RunE:  runSummarizePaper,
}

var summarizeTagCmd = &cobra.Command{
	Use:   "tag <name>",
	Short: "Generate a digest across papers carrying a tag",
	Args:  cobra.ExactArgs(1),
	RunE:  runSummarizeTag,
}

var summarizeTrendCmd = &cobra.Command{
	Use:   "trend <days>",
	Short: "Generate a trend report over the last N days",
	Args:  cobra.ExactArgs(1),
	RunE:  runSummarizeTrend,
}

// aggregateLimit bounds how many papers feed one digest.
const aggregateLimit = 200

func init() {
	rootCmd.AddCommand(summarizeCmd)
	summarizeCmd.AddCommand(summarizePaperCmd)
	summarizeCmd.AddCommand(summarizeTagCmd)
	summarizeCmd.AddCommand(summarizeTrendCmd)

	summarizeCmd.PersistentFlags().String("provider", "", "LLM provider (openai or anthropic)")
	summarizeCmd.PersistentFlags().String("model", "", "model name, defaults per provider")
	summarizeTrendCmd.Flags().String("tag", "", "restrict the trend to one tag")
}

func newEngine(db *database.DB) (*summary.Engine, error) {
	keys, err := openSecrets()
	if err != nil {
		return nil, err
	}

	return summary.NewEngine(db, logger, keys, summary.Config{
		DefaultProvider: cfg.Summary.Provider,
		Timeout:         time.Duration(cfg.Summary.TimeoutSeconds) * time.Second,
		OpenAI: summary.Endpoint{
			BaseURL: cfg.Summary.OpenAI.BaseURL,
			Model:   cfg.Summary.OpenAI.Model,
		},
		Anthropic: summary.Endpoint{
			BaseURL: cfg.Summary.Anthropic.BaseURL,
			Model:   cfg.Summary.Anthropic.Model,
		},
	}), nil
}

func summarizeOptions(cmd *cobra.Command) summary.Options {
	provider, _ := cmd.Flags().GetString("provider")
	model, _ := cmd.Flags().GetString("model")
	return summary.Options{Provider: provider, Model: model}
}

func runSummarizePaper(cmd *cobra.Command, args []string) error {
	paperID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid paper id %q", args[0])
	}

	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	paper, err := db.GetPaper(cmd.Context(), paperID)
	if err != nil {
		return err
	}
	journal, err := db.GetJournal(cmd.Context(), paper.JournalID)
	if err != nil {
		return err
	}

	engine, err := newEngine(db)
	if err != nil {
		return err
	}

	result, err := engine.SummarizePaper(cmd.Context(), paper, journal.Name, summarizeOptions(cmd))
	if err != nil {
		return err
	}

	fmt.Printf("Summary %d (%s/%s, %dms)\n\n", result.ID, result.Provider, result.Model, result.GenerationTimeMs)
	printStructured(result.SummaryText, result.Purpose, result.Methodology, result.Findings, result.Implications)
	return nil
}

func runSummarizeTag(cmd *cobra.Command, args []string) error {
	tagName := args[0]

	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	tag, err := db.GetTagByName(cmd.Context(), tagName)
	if err != nil {
		return err
	}

	papers, err := db.PapersForTag(cmd.Context(), tag.ID, aggregateLimit)
	if err != nil {
		return err
	}

	engine, err := newEngine(db)
	if err != nil {
		return err
	}

	result, err := engine.SummarizeTag(cmd.Context(), tag, papers, summarizeOptions(cmd))
	if err != nil {
		return err
	}

	fmt.Printf("Tag digest %d for %q over %d papers (%s/%s, %dms)\n\n",
		result.ID, tag.Name, result.PaperCount, result.Provider, result.Model, result.GenerationTimeMs)
	printStructured(result.SummaryText, result.Purpose, result.Methodology, result.Findings, result.Implications)
	return nil
}

func runSummarizeTrend(cmd *cobra.Command, args []string) error {
	days, err := strconv.Atoi(args[0])
	if err != nil || days <= 0 {
		return fmt.Errorf("invalid day count %q", args[0])
	}
	tagName, _ := cmd.Flags().GetString("tag")

	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	end := time.Now().UTC()
	start := end.AddDate(0, 0, -days)
	periodStart := start.Format(time.DateOnly)
	periodEnd := end.Format(time.DateOnly)

	var tagID *int64
	if tagName != "" {
		tag, err := db.GetTagByName(cmd.Context(), tagName)
		if err != nil {
			return err
		}
		tagID = &tag.ID
	}

	papers, err := db.PapersInPeriod(cmd.Context(), periodStart, periodEnd, tagID, aggregateLimit)
	if err != nil {
		return err
	}

	engine, err := newEngine(db)
	if err != nil {
		return err
	}

	result, err := engine.SummarizeTrend(cmd.Context(), periodStart, periodEnd, tagID, papers, summarizeOptions(cmd))
	if err != nil {
		return err
	}

	fmt.Printf("Trend report %d for %s..%s over %d papers (%s/%s, %dms)\n\n",
		result.ID, periodStart, periodEnd, result.PaperCount, result.Provider, result.Model, result.GenerationTimeMs)
	printStructured(result.SummaryText, result.Purpose, result.Methodology, result.Findings, result.Implications)
	return nil
}

func printStructured(text string, purpose, methodology, findings, implications sql.NullString) {
	fmt.Println(text)
	sections := []struct {
		label string
		value sql.NullString
	}{
		{"Purpose", purpose},
		{"Methodology", methodology},
		{"Findings", findings},
		{"Implications", implications},
	}
	for _, s := range sections {
		if s.value.Valid && s.value.String != "" {
			fmt.Printf("\n%s: %s\n", s.label, s.value.String)
		}
	}
}
