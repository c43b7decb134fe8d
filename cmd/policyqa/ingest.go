package main

import (
	"fmt"
	"os"
	"path/filepath"

	"policyqa-go/internal/pipeline"

	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file.pdf...]",
	Short: "Ingest PDFs into a user's namespace",
	Long: `Extracts every page, splits it into overlapping word windows, embeds them
and appends them to the user's index. The snapshot is saved once at the end.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if err := requireUser(); err != nil {
		return err
	}

	docs := make([]pipeline.Document, 0, len(args))
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		docs = append(docs, pipeline.Document{Name: filepath.Base(path), Data: data})
	}

	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	res, err := a.documents.IngestNow(ctx, userID, docs)
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	for _, d := range res.Documents {
		if d.Error != "" {
			cmd.Printf("  %s: skipped (%s)\n", d.Name, d.Error)
			continue
		}
		cmd.Printf("  %s: %d pages, %d chunks\n", d.Name, d.Pages, d.Chunks)
	}
	cmd.Printf("Ingested %d chunks for %s (%d total).\n", res.Chunks, userID, res.Total)
	return nil
}
