package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"gptshell/internal/bridge"
	"gptshell/internal/memory"
	"gptshell/internal/usage"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage conversation sessions",
}

var sessionStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a session and print its ID",
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := bridge.New(workspace, bridge.Options{})
		if err != nil {
			return err
		}
		defer b.Close()

		id, err := b.StartSession()
		if err != nil {
			return err
		}
		fmt.Println(id)
		return nil
	},
}

var sessionEndCmd = &cobra.Command{
	Use:   "end <session-id>",
	Short: "End a session and roll up its totals",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := bridge.New(workspace, bridge.Options{})
		if err != nil {
			return err
		}
		defer b.Close()
		return b.EndSession(args[0])
	},
}

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Inspect and record conversation memory",
}

var (
	recordSession   string
	recordTokens    int
	recordCost      float64
	recordToolCalls string
)

var memoryRecordCmd = &cobra.Command{
	Use:   "record <user-message> <assistant-message>",
	Short: "Record one conversation turn",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if recordSession == "" {
			return fmt.Errorf("--session is required (create one with 'gptshell session start')")
		}

		var toolCalls []memory.ToolCall
		if recordToolCalls != "" {
			if err := json.Unmarshal([]byte(recordToolCalls), &toolCalls); err != nil {
				return fmt.Errorf("invalid --tool-calls JSON: %w", err)
			}
		}

		b, err := bridge.New(workspace, bridge.Options{})
		if err != nil {
			return err
		}
		defer b.Close()

		acc := usage.Accumulator{CompletionTokens: recordTokens, Cost: recordCost}
		return b.RecordTurn(recordSession, args[0], args[1], toolCalls, acc)
	},
}

var contextMaxTokens int

var memoryContextCmd = &cobra.Command{
	Use:   "context",
	Short: "Print recent conversation context within the token budget",
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := bridge.New(workspace, bridge.Options{})
		if err != nil {
			return err
		}
		defer b.Close()

		msgs, err := b.RecentContext(contextMaxTokens)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(msgs)
	},
}

var memoryStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show conversation history statistics for this workspace",
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := bridge.New(workspace, bridge.Options{})
		if err != nil {
			return err
		}
		defer b.Close()

		st, err := b.ProjectStats()
		if err != nil {
			return err
		}
		fmt.Printf("Project:   %s\n", st.ProjectPath)
		fmt.Printf("Turns:     %d\n", st.Turns)
		fmt.Printf("Sessions:  %d\n", st.Sessions)
		fmt.Printf("Summaries: %d\n", st.Summaries)
		fmt.Printf("Tokens:    %d\n", st.TotalTokens)
		fmt.Printf("Cost:      $%.4f\n", st.TotalCost)
		if st.FirstTurn != nil && st.LastTurn != nil {
			fmt.Printf("Span:      %s .. %s\n",
				st.FirstTurn.Local().Format("2006-01-02 15:04"),
				st.LastTurn.Local().Format("2006-01-02 15:04"))
		}
		return nil
	},
}

func init() {
	sessionCmd.AddCommand(sessionStartCmd)
	sessionCmd.AddCommand(sessionEndCmd)

	memoryRecordCmd.Flags().StringVar(&recordSession, "session", "", "session id for this turn")
	memoryRecordCmd.Flags().IntVar(&recordTokens, "tokens", 0, "tokens used by this exchange")
	memoryRecordCmd.Flags().Float64Var(&recordCost, "cost", 0, "cost of this exchange in USD")
	memoryRecordCmd.Flags().StringVar(&recordToolCalls, "tool-calls", "", "tool calls as a JSON array")
	memoryContextCmd.Flags().IntVar(&contextMaxTokens, "max-tokens", 0, "token budget (0 = configured default)")

	memoryCmd.AddCommand(memoryRecordCmd)
	memoryCmd.AddCommand(memoryContextCmd)
	memoryCmd.AddCommand(memoryStatsCmd)
}
