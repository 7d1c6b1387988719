package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"liveworkshop/backend/internal/ingest"
)

var (
	ingestSkipIndex bool
	ingestJSON      bool
)

type ingestSummary struct {
	SessionID      string               `json:"sessionId"`
	ProcessedFiles int                  `json:"processedFiles"`
	Chunks         int                  `json:"chunks"`
	IndexedVectors int                  `json:"indexedVectors"`
	Skipped        []ingest.FileFailure `json:"skipped"`
}

var ingestCmd = &cobra.Command{
	Use:   "ingest [session]",
	Short: "Process and index a session's uploads",
	Long: `Parses and chunks every file in the session's upload directory,
then embeds the chunks and upserts them into the session namespace.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestSkipIndex, "no-index", false, "only write manifests")
	ingestCmd.Flags().BoolVar(&ingestJSON, "json", false, "output the summary as JSON")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	sessionID := args[0]

	engine, err := newEngine(ctx)
	if err != nil {
		return err
	}

	res, err := engine.Orchestrator.ProcessSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("process session: %w", err)
	}
	summary := ingestSummary{
		SessionID:      sessionID,
		ProcessedFiles: len(res.Documents),
		Chunks:         res.ChunkCount(),
		Skipped:        res.Failures,
	}
	if summary.Skipped == nil {
		summary.Skipped = []ingest.FileFailure{}
	}

	if !ingestSkipIndex && len(res.Documents) > 0 {
		report, err := engine.Indexer.IndexDocuments(ctx, sessionID, res.Documents)
		if err != nil {
			return fmt.Errorf("index session: %w", err)
		}
		summary.IndexedVectors = report.Vectors
	}

	if ingestJSON {
		data, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal summary: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Session %s: %d files, %d chunks, %d vectors indexed\n",
		sessionID, summary.ProcessedFiles, summary.Chunks, summary.IndexedVectors)
	for _, f := range summary.Skipped {
		fmt.Fprintf(cmd.OutOrStdout(), "  skipped %s: %s\n", f.FileName, f.Error)
	}
	return nil
}
