package cli

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"rag-chat-be/internal/config"
	"rag-chat-be/pkg/rag/ragerr"
	"rag-chat-be/pkg/rag/vectorindex"
)

type fileCount struct {
	Filename string
	Chunks   int
}

type indexReport struct {
	SessionId string
	Dimension int
	Vectors   int
	Records   int
	Files     []fileCount
}

// summarize counts a snapshot's chunks per source file, largest first.
func summarize(sessionId string, snap *vectorindex.Snapshot) indexReport {
	byFile := make(map[string]int)
	for _, r := range snap.Records {
		byFile[r.Metadata.SourceFilename]++
	}

	files := make([]fileCount, 0, len(byFile))
	for name, n := range byFile {
		files = append(files, fileCount{Filename: name, Chunks: n})
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i].Chunks != files[j].Chunks {
			return files[i].Chunks > files[j].Chunks
		}
		return files[i].Filename < files[j].Filename
	})

	return indexReport{
		SessionId: sessionId,
		Dimension: snap.Dimension,
		Vectors:   len(snap.Vectors),
		Records:   len(snap.Records),
		Files:     files,
	}
}

func printReport(w io.Writer, r indexReport) {
	heading := color.New(color.FgCyan, color.Bold)
	heading.Fprintf(w, "Session %s\n", r.SessionId)
	fmt.Fprintf(w, "  dimension: %d\n", r.Dimension)
	fmt.Fprintf(w, "  vectors:   %d\n", r.Vectors)
	fmt.Fprintf(w, "  records:   %d\n", r.Records)

	heading.Fprintln(w, "Files")
	for _, f := range r.Files {
		name := f.Filename
		if name == "" {
			name = "(unknown)"
		}
		fmt.Fprintf(w, "  %-40s %d\n", name, f.Chunks)
	}
}

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <session-id>",
		Short: "Show the persisted index of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			ctx := cmd.Context()

			persister, closeStore, err := openPersister(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			snap, err := persister.Load(ctx, args[0])
			switch {
			case errors.Is(err, ragerr.ErrNotFound):
				color.New(color.FgYellow).Fprintf(cmd.OutOrStdout(), "No persisted index for session %s\n", args[0])
				return nil
			case errors.Is(err, ragerr.ErrCorruptState):
				color.New(color.FgRed).Fprintf(cmd.OutOrStdout(), "Index for session %s is corrupt: %v\n", args[0], err)
				return err
			case err != nil:
				return err
			}

			printReport(cmd.OutOrStdout(), summarize(args[0], snap))
			return nil
		},
	}
}
