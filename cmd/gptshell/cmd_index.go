package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"gptshell/internal/bridge"
	"gptshell/internal/index"
)

var (
	indexWatch    bool
	indexDebounce time.Duration
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build and inspect the workspace semantic index",
}

var indexBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Bring the index up to date (incremental)",
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := bridge.New(workspace, bridge.Options{})
		if err != nil {
			return err
		}
		defer b.Close()

		result, err := b.BuildIndex(cmd.Context())
		if err != nil {
			return err
		}
		printBuildResult(result)

		if !indexWatch {
			return nil
		}
		fmt.Println("Watching for changes (Ctrl-C to stop)...")
		return b.WatchIndex(cmd.Context(), indexDebounce, func(r *index.BuildResult, err error) {
			if err != nil {
				fmt.Printf("rebuild failed: %v\n", err)
				return
			}
			printBuildResult(r)
		})
	},
}

var indexStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := bridge.New(workspace, bridge.Options{})
		if err != nil {
			return err
		}
		defer b.Close()

		st, err := b.IndexStats()
		if err != nil {
			return err
		}
		fmt.Printf("Indexed files: %d\n", st.Files)
		fmt.Printf("Chunks:        %d\n", st.Chunks)
		fmt.Printf("Total bytes:   %d\n", st.TotalBytes)
		if st.LastBuild != "" {
			fmt.Printf("Last build:    %s\n", st.LastBuild)
		} else {
			fmt.Println("Last build:    never")
		}
		return nil
	},
}

func printBuildResult(r *index.BuildResult) {
	fmt.Printf("scanned=%d indexed=%d skipped=%d failed=%d pruned=%d chunks=%d in %v\n",
		r.Scanned, r.Indexed, r.Skipped, r.Failed, r.Pruned, r.Chunks, r.Duration.Round(time.Millisecond))
}

func init() {
	indexBuildCmd.Flags().BoolVar(&indexWatch, "watch", false, "keep rebuilding on filesystem changes")
	indexBuildCmd.Flags().DurationVar(&indexDebounce, "debounce", 2*time.Second, "settle time before a watch rebuild")
	indexCmd.AddCommand(indexBuildCmd)
	indexCmd.AddCommand(indexStatsCmd)
}
