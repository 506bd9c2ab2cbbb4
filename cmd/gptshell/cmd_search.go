package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"gptshell/internal/bridge"
	"gptshell/internal/index"
)

var (
	searchTopK int
	searchRaw  bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Semantic search over the workspace index",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")

		b, err := bridge.New(workspace, bridge.Options{})
		if err != nil {
			return err
		}
		defer b.Close()

		results, err := b.Retrieve(cmd.Context(), query, searchTopK)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Println("No results. Run 'gptshell index build' first?")
			return nil
		}

		if searchRaw {
			for _, r := range results {
				fmt.Printf("%.4f  %s [%d:%d]\n", r.Score, r.Path, r.Start, r.End)
			}
			return nil
		}
		fmt.Print(index.FormatResults(results))
		return nil
	},
}

func init() {
	searchCmd.Flags().IntVarP(&searchTopK, "top-k", "k", 0, "number of results (0 = configured default)")
	searchCmd.Flags().BoolVar(&searchRaw, "scores", false, "print scores and locations only")
}
