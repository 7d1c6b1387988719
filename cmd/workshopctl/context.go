package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	contextLimit int
	contextJSON  bool
)

var contextCmd = &cobra.Command{
	Use:   "context [session] [topic]",
	Short: "Print the session context relevant to a topic",
	Long: `Retrieves the session's chunks most similar to the topic, formatted
the way they are handed to the generation model.

With --memory the session's stored manifests are indexed in-process first.`,
	Args: cobra.ExactArgs(2),
	RunE: runContext,
}

func init() {
	contextCmd.Flags().IntVarP(&contextLimit, "limit", "n", 3, "maximum number of contexts")
	contextCmd.Flags().BoolVar(&contextJSON, "json", false, "output contexts as JSON")
	rootCmd.AddCommand(contextCmd)
}

func runContext(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	sessionID, topic := args[0], args[1]

	engine, err := newEngine(ctx)
	if err != nil {
		return err
	}

	if useMemory {
		docs, err := engine.Manifests.List(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("load manifests: %w", err)
		}
		if len(docs) > 0 {
			if _, err := engine.Indexer.IndexDocuments(ctx, sessionID, docs); err != nil {
				return fmt.Errorf("index session: %w", err)
			}
		}
	}

	contexts := engine.Retrieval.GetRelevantContext(ctx, topic, sessionID, contextLimit)
	if contextJSON {
		if contexts == nil {
			contexts = []string{}
		}
		data, err := json.MarshalIndent(contexts, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal contexts: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	if len(contexts) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No relevant context found.")
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), strings.Join(contexts, "\n\n---\n\n"))
	return nil
}
