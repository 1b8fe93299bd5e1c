package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var secretsCmd = &cobra.Command{
	Use:   "secrets",
	Short: "Manage provider API keys",
	Long: `Store LLM provider API keys encrypted at rest. Keys are sealed with
the master key from PAPERSTREAM_SECRET_KEY (64 hex characters). Without
a stored key, the conventional environment variables (OPENAI_API_KEY,
ANTHROPIC_API_KEY) are consulted at summary time.`,
}

var secretsSetCmd = &cobra.Command{
	Use:   "set <provider>",
	Short: "Store an API key, read from stdin",
	Args:  cobra.ExactArgs(1),
	RunE:  runSecretsSet,
}

var secretsDeleteCmd = &cobra.Command{
	Use:   "delete <provider>",
	Short: "Remove a stored API key",
	Args:  cobra.ExactArgs(1),
	RunE:  runSecretsDelete,
}

func init() {
	rootCmd.AddCommand(secretsCmd)
	secretsCmd.AddCommand(secretsSetCmd)
	secretsCmd.AddCommand(secretsDeleteCmd)

	secretsCmd.PersistentFlags().Int64("user", 0, "user the key belongs to (0 is the system account)")
}

func runSecretsSet(cmd *cobra.Command, args []string) error {
	provider := args[0]
	userID, _ := cmd.Flags().GetInt64("user")

	store, err := openSecrets()
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "API key for %s: ", provider)
	reader := bufio.NewReader(cmd.InOrStdin())
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("failed to read key from stdin: %w", err)
	}

	key := strings.TrimSpace(line)
	if key == "" {
		return fmt.Errorf("empty API key")
	}

	if err := store.Set(userID, provider, key); err != nil {
		return err
	}
	fmt.Printf("Stored key for %s\n", provider)
	return nil
}

func runSecretsDelete(cmd *cobra.Command, args []string) error {
	provider := args[0]
	userID, _ := cmd.Flags().GetInt64("user")

	store, err := openSecrets()
	if err != nil {
		return err
	}

	if err := store.Delete(userID, provider); err != nil {
		return err
	}
	fmt.Printf("Deleted key for %s\n", provider)
	return nil
}
