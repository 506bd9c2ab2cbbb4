package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"gptshell/internal/bridge"
)

var summarizeCmd = &cobra.Command{
	Use:   "summarize [last_hour|last_day|last_week]",
	Short: "Compact recent conversation history into a stored summary",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		period := "last_day"
		if len(args) == 1 {
			period = args[0]
		}

		b, err := bridge.New(workspace, bridge.Options{})
		if err != nil {
			return err
		}
		defer b.Close()

		sum, err := b.Summarize(period)
		if err != nil {
			return err
		}

		fmt.Println(sum.Summary)
		if len(sum.KeyTopics) > 0 {
			fmt.Printf("Topics: %s\n", strings.Join(sum.KeyTopics, ", "))
		}
		if len(sum.CreatedFiles) > 0 {
			fmt.Printf("Created files: %s\n", strings.Join(sum.CreatedFiles, ", "))
		}
		fmt.Printf("Tokens saved: %d\n", sum.TokensSaved)
		return nil
	},
}

var cleanupDays int

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Archive and delete conversation turns past the retention window",
	Long: `Deletes raw turns older than the retention window. Every affected
project gets an archived summary before anything is removed, so history
is compacted rather than lost.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := bridge.New(workspace, bridge.Options{})
		if err != nil {
			return err
		}
		defer b.Close()

		deleted, err := b.Cleanup(cleanupDays)
		if err != nil {
			return err
		}
		fmt.Printf("Deleted %d archived turns.\n", deleted)
		return nil
	},
}

func init() {
	cleanupCmd.Flags().IntVar(&cleanupDays, "days", 0, "retention in days (0 = configured default)")
}
