package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	searchTopK int
	searchJSON bool
)

var searchCmd = &cobra.Command{
	Use:   "search [question]",
	Short: "Retrieve the most similar chunks",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question with citations",
	Args:  cobra.ExactArgs(1),
	RunE:  runAsk,
}

func init() {
	for _, c := range []*cobra.Command{searchCmd, askCmd} {
		c.Flags().IntVarP(&searchTopK, "top-k", "k", 0, "number of chunks to retrieve (0 uses retrieval.top_k)")
		c.Flags().BoolVar(&searchJSON, "json", false, "output as JSON")
		rootCmd.AddCommand(c)
	}
}

func runSearch(cmd *cobra.Command, args []string) error {
	if err := requireUser(); err != nil {
		return err
	}
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}

	snippets, err := a.qa.Search(ctx, userID, args[0], searchTopK)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	if searchJSON {
		return printJSON(cmd, snippets)
	}
	if len(snippets) == 0 {
		cmd.Println("No results found.")
		return nil
	}
	for i, s := range snippets {
		cmd.Printf("  [%d] %s p.%d (%.4f)\n", i+1, s.DocumentName, s.Page, s.Score)
		cmd.Printf("      %s\n", s.Text)
	}
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	if err := requireUser(); err != nil {
		return err
	}
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}

	answer, err := a.qa.Ask(ctx, userID, args[0], searchTopK)
	if err != nil {
		return fmt.Errorf("ask failed: %w", err)
	}
	if searchJSON {
		return printJSON(cmd, answer)
	}
	cmd.Println(answer.Answer)
	cmd.Println()
	cmd.Println("Sources:")
	for _, s := range answer.Sources {
		cmd.Printf("  - %s p.%d (%.4f): %s\n", s.DocumentName, s.Page, s.Score, s.Preview)
	}
	return nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
