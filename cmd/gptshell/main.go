// gptshell CLI: workspace indexing, semantic search, and conversation
// memory for LLM-assisted shell sessions.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"gptshell/internal/logging"
)

var workspace string

var rootCmd = &cobra.Command{
	Use:   "gptshell",
	Short: "Context bridge between an LLM chat session and your workspace",
	Long: `gptshell maintains a local semantic index of your workspace and a
persistent conversation memory, and serves both back as token-bounded
context for LLM sessions. All state lives under .gptshell/ in the
workspace root.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if workspace == "" {
			cwd, err := os.Getwd()
			if err != nil {
				return err
			}
			workspace = cwd
		}
		abs, err := filepath.Abs(workspace)
		if err != nil {
			return fmt.Errorf("invalid workspace path %q: %w", workspace, err)
		}
		workspace = abs

		if err := logging.Initialize(workspace); err != nil {
			// Logging must never block the CLI
			fmt.Fprintf(os.Stderr, "warning: logging disabled: %v\n", err)
		}
		if err := logging.InitAudit(workspace); err != nil {
			fmt.Fprintf(os.Stderr, "warning: audit log disabled: %v\n", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.SyncAudit()
		logging.CloseAll()
	},
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "",
		"workspace root (defaults to the current directory)")

	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(memoryCmd)
	rootCmd.AddCommand(summarizeCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(embeddingCmd)
	rootCmd.AddCommand(usageCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
