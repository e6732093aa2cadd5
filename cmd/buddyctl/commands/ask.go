package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask the search service a question",
	Long: `Ask the search service a question and print the summarized answer
followed by the supporting resources.

Examples:
  buddyctl ask "what is a binary heap"
  buddyctl ask --json what is a heap`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.TrimSpace(strings.Join(args, " "))
		if question == "" {
			return fmt.Errorf("question must not be empty")
		}

		client, err := newSearchClient()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		answer, err := client.Search(ctx, question)
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}

		if jsonOutput {
			return printJSON(answer)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, answer.Summary)
		if len(answer.Results) == 0 {
			fmt.Fprintln(out, "\nNo results found.")
			return nil
		}
		fmt.Fprintln(out, "\nResources:")
		for i, r := range answer.Results {
			fmt.Fprintf(out, "%2d. [%s] %s\n", i+1, r.MediaType, r.Title)
			if r.Course != "" {
				fmt.Fprintf(out, "    course: %s\n", r.Course)
			}
			if r.MediaLink != "" {
				fmt.Fprintf(out, "    %s\n", r.MediaLink)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
}
