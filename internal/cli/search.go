package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"rag-chat-be/internal/config"
	"rag-chat-be/internal/pkg/logger"
	"rag-chat-be/pkg/llm/factory"
	"rag-chat-be/pkg/rag/search"
	"rag-chat-be/pkg/rag/vectorindex"
	"rag-chat-be/pkg/utils"
)

const previewRunes = 160

func preview(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) > previewRunes {
		return string(runes[:previewRunes]) + "..."
	}
	return text
}

func printResults(w io.Writer, query string, records []vectorindex.ChunkRecord) {
	color.New(color.FgCyan, color.Bold).Fprintf(w, "Query: %s\n", query)
	if len(records) == 0 {
		color.New(color.FgYellow).Fprintln(w, "No matching chunks")
		return
	}
	source := color.New(color.FgGreen)
	for i, r := range records {
		source.Fprintf(w, "%2d. %s\n", i+1, r.Metadata.SourceFilename)
		fmt.Fprintf(w, "    %s\n", preview(r.Content))
	}
}

func newSearchCmd() *cobra.Command {
	var topK int

	cmd := &cobra.Command{
		Use:   "search <session-id> <query>",
		Short: "Run a similarity search against a session's persisted index",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionId := args[0]
			query := strings.TrimSpace(strings.Join(args[1:], " "))
			if query == "" {
				return fmt.Errorf("query is required")
			}

			cfg := config.Load()
			ctx := cmd.Context()

			embedder, err := factory.NewEmbeddingProvider(factory.EmbeddingConfig{
				Provider: cfg.Ai.EmbeddingProvider,
				Model:    cfg.Ai.EmbeddingModel,
				BaseURL:  cfg.Ai.EmbeddingBaseURL,
				ApiKey:   cfg.Ai.EmbeddingApiKey,
			})
			if err != nil {
				return err
			}
			splitter, err := utils.NewTextSplitter(cfg.Rag.ChunkSize, cfg.Rag.ChunkOverlap)
			if err != nil {
				return err
			}

			persister, closeStore, err := openPersister(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			store := vectorindex.NewStore(embedder, splitter, persister, logger.NewNopLogger())
			found, err := store.Load(ctx, sessionId)
			if err != nil {
				return err
			}
			if !found {
				color.New(color.FgYellow).Fprintf(cmd.OutOrStdout(), "No persisted index for session %s\n", sessionId)
				return nil
			}

			records, err := search.NewRetriever(store, topK).Retrieve(ctx, sessionId, query)
			if err != nil {
				return err
			}
			printResults(cmd.OutOrStdout(), query, records)
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", search.DefaultTopK, "number of chunks to return")
	return cmd
}
