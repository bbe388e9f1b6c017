package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"rag-chat-be/internal/config"
	"rag-chat-be/internal/pkg/logger"
	"rag-chat-be/pkg/events"
	pktNats "rag-chat-be/pkg/nats"
)

func printEvent(w io.Writer, event events.Event) error {
	data, err := json.Marshal(event.Payload())
	if err != nil {
		return err
	}
	color.New(color.FgMagenta).Fprintf(w, "%s ", event.Timestamp().Local().Format("15:04:05"))
	color.New(color.FgCyan, color.Bold).Fprintf(w, "%-22s ", event.EventType())
	fmt.Fprintln(w, string(data))
	return nil
}

func newEventsCmd() *cobra.Command {
	var (
		subject string
		durable string
	)

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Tail chat domain events from NATS",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if cfg.App.NatsURL == "" {
				return fmt.Errorf("NATS_URL is not set")
			}

			sub, err := pktNats.NewSubscriber(cfg.App.NatsURL, logger.NewNopLogger())
			if err != nil {
				return err
			}
			defer sub.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			color.New(color.FgGreen).Fprintf(out, "Listening on %s (Ctrl+C to stop)\n", subject)
			return sub.Subscribe(ctx, subject, durable, func(_ context.Context, event events.Event) error {
				return printEvent(out, event)
			})
		},
	}

	cmd.Flags().StringVar(&subject, "subject", pktNats.SubjectPrefix+".>", "subject filter")
	cmd.Flags().StringVar(&durable, "durable", "", "durable consumer name; empty tails new events only")
	return cmd
}
