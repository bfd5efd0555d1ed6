package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/datamill/askdb/internal/schema"
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a natural-language question about the data",
	Long: `Ask a natural-language question about the data.

Examples:
  askdb ask "how many purchase orders were created in 2014"
  askdb ask --conversation budget "which department spent the most"
  askdb ask --show-pipeline "top 5 suppliers by total price"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")
		conversation, _ := cmd.Flags().GetString("conversation")
		maxResults, _ := cmd.Flags().GetInt("max-results")
		model, _ := cmd.Flags().GetString("model")
		showPipeline, _ := cmd.Flags().GetBool("show-pipeline")
		showResults, _ := cmd.Flags().GetBool("show-results")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/api/ai/query", map[string]any{
			"question":        question,
			"conversation_id": conversation,
			"max_results":     maxResults,
			"model":           model,
		})
		if err != nil {
			return err
		}

		var result struct {
			Success          bool            `json:"success"`
			Answer           string          `json:"answer"`
			Pipeline         json.RawMessage `json:"pipeline"`
			Results          json.RawMessage `json:"results"`
			ResultCount      int             `json:"result_count"`
			ReasoningSummary string          `json:"reasoning_summary"`
			Error            string          `json:"error"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if !result.Success {
			printError("%s", result.Error)
			return fmt.Errorf("query failed")
		}

		fmt.Println(result.Answer)

		if result.ReasoningSummary != "" {
			fmt.Fprintf(os.Stderr, "\n%s %s\n", colorize(colorBold, "Reasoning:"), result.ReasoningSummary)
		}
		if showPipeline && len(result.Pipeline) > 0 {
			fmt.Fprintf(os.Stderr, "\n%s\n", colorize(colorBold, "Pipeline:"))
			printIndented(result.Pipeline)
		}
		if showResults && len(result.Results) > 0 {
			fmt.Fprintf(os.Stderr, "\n%s (%d)\n", colorize(colorBold, "Results:"), result.ResultCount)
			printIndented(result.Results)
		}
		return nil
	},
}

func printIndented(raw json.RawMessage) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		fmt.Fprintln(os.Stderr, string(raw))
		return
	}
	fmt.Fprintln(os.Stderr, buf.String())
}

func init() {
	askCmd.Flags().String("conversation", "", "conversation id for follow-up questions")
	askCmd.Flags().Int("max-results", 0, "maximum result rows (0 uses the server default)")
	askCmd.Flags().String("model", "", "override the generation model for this question")
	askCmd.Flags().Bool("show-pipeline", false, "print the generated aggregation pipeline")
	askCmd.Flags().Bool("show-results", false, "print the raw result rows")
}

var resetCmd = &cobra.Command{
	Use:   "reset [conversation-id]",
	Short: "Reset conversation state",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		body := map[string]any{}
		if len(args) == 1 {
			body["conversation_id"] = args[0]
		}

		resp, err := client.post(cmd.Context(), "/api/ai/reset", body)
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if len(args) == 1 {
			printSuccess("Conversation %s reset", args[0])
		} else {
			printSuccess("All conversations reset")
		}
		return nil
	},
}

// sortedGroupNames keeps the examples listing in a stable order.
func sortedGroupNames(groups map[string]schema.ExampleGroup) []string {
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var examplesCmd = &cobra.Command{
	Use:   "examples",
	Short: "Show example questions",
	RunE: func(cmd *cobra.Command, args []string) error {
		groups := schema.Examples()
		for _, name := range sortedGroupNames(groups) {
			group := groups[name]
			fmt.Printf("\n%s: %s\n", colorize(colorBold, name), group.Description)
			for _, q := range group.Examples {
				fmt.Printf("  • %s\n", q)
			}
		}
		return nil
	},
}
