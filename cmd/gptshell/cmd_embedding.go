package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"gptshell/internal/bridge"
	"gptshell/internal/config"
)

var embeddingCmd = &cobra.Command{
	Use:   "embedding",
	Short: "Embedding engine configuration",
}

var embeddingSetCmd = &cobra.Command{
	Use:   "set <ollama|genai> [api-key]",
	Short: "Set the embedding provider (and optional API key)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath := config.DefaultConfigPath(workspace)
		cfg, err := config.LoadUserConfig(cfgPath)
		if err != nil || cfg == nil {
			cfg = config.DefaultUserConfig()
		}
		if cfg.Embedding == nil {
			cfg.Embedding = &config.EmbeddingConfig{}
		}

		provider := args[0]
		cfg.Embedding.Provider = provider
		switch provider {
		case "ollama":
			if cfg.Embedding.OllamaEndpoint == "" {
				cfg.Embedding.OllamaEndpoint = "http://localhost:11434"
			}
			if cfg.Embedding.OllamaModel == "" {
				cfg.Embedding.OllamaModel = "embeddinggemma"
			}
		case "genai":
			if len(args) >= 2 {
				cfg.Embedding.GenAIAPIKey = args[1]
			}
			if cfg.Embedding.GenAIModel == "" {
				cfg.Embedding.GenAIModel = "gemini-embedding-001"
			}
			if cfg.Embedding.TaskType == "" {
				cfg.Embedding.TaskType = "SEMANTIC_SIMILARITY"
			}
		default:
			return fmt.Errorf("unsupported provider %q (use ollama or genai)", provider)
		}

		if err := cfg.Save(cfgPath); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		fmt.Printf("Embedding provider set to %s.\n", provider)
		fmt.Println("Note: switching providers changes vector dimensions; run 'gptshell index build' to re-embed.")
		return nil
	},
}

var embeddingImportCmd = &cobra.Command{
	Use:   "import <config.yaml>",
	Short: "Merge a YAML configuration fragment into config.json",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fragment, err := config.LoadYAML(args[0])
		if err != nil {
			return err
		}

		cfgPath := config.DefaultConfigPath(workspace)
		cfg, err := config.LoadUserConfig(cfgPath)
		if err != nil || cfg == nil {
			cfg = config.DefaultUserConfig()
		}
		cfg.Merge(fragment)

		if err := cfg.Save(cfgPath); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		fmt.Printf("Merged %s into %s.\n", args[0], cfgPath)
		return nil
	},
}

var embeddingStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the configured embedding engine and index coverage",
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := bridge.New(workspace, bridge.Options{})
		if err != nil {
			return err
		}
		defer b.Close()

		ec := b.Config().GetEmbeddingConfig()
		fmt.Printf("Provider:  %s\n", ec.Provider)
		switch ec.Provider {
		case "ollama":
			fmt.Printf("Model:     %s (%s)\n", ec.OllamaModel, ec.OllamaEndpoint)
		case "genai":
			fmt.Printf("Model:     %s (task %s)\n", ec.GenAIModel, ec.TaskType)
		}

		st, err := b.IndexStats()
		if err != nil {
			return err
		}
		fmt.Printf("Vectors:   %d chunks over %d files\n", st.Chunks, st.Files)
		return nil
	},
}

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show lifetime token and cost totals",
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := bridge.New(workspace, bridge.Options{})
		if err != nil {
			return err
		}
		defer b.Close()

		fmt.Println(bridge.FormatUsage(b.UsageTotals()))
		return nil
	},
}

func init() {
	embeddingCmd.AddCommand(embeddingSetCmd)
	embeddingCmd.AddCommand(embeddingStatsCmd)
	embeddingCmd.AddCommand(embeddingImportCmd)
}
