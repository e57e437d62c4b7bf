package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"gomodmail/internal/dbmysql"
	"gomodmail/internal/wire"
)

var transcriptCmd = &cobra.Command{
	Use:   "transcript <thread-id>",
	Short: "Print the transcript of a thread",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		format, _ := cmd.Flags().GetString("format")

		store, err := wire.InitializeStore()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		thread, err := store.Threads.ByID(ctx, args[0])
		if err != nil {
			return err
		}
		messages, err := store.Messages.ListByThread(ctx, thread.ID, limit, 0)
		if err != nil {
			return err
		}
		return writeTranscript(cmd.OutOrStdout(), format, thread, messages)
	},
}

func init() {
	transcriptCmd.Flags().Int("limit", 1000, "maximum number of rows")
	transcriptCmd.Flags().String("format", "text", "output format (text, json)")
}

func writeTranscript(w io.Writer, format string, thread *dbmysql.Thread, messages []*dbmysql.ThreadMessage) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Thread   *dbmysql.Thread          `json:"thread"`
			Messages []*dbmysql.ThreadMessage `json:"messages"`
		}{thread, messages})
	case "text":
		fmt.Fprintf(w, "# Thread %s with %s (%s), %s\n", thread.ID, thread.UserName, thread.UserID, thread.Status)
		for _, m := range messages {
			fmt.Fprintln(w, transcriptLine(m))
		}
		return nil
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func transcriptLine(m *dbmysql.ThreadMessage) string {
	name := m.UserName
	if name == "" {
		name = "System"
	}
	if m.IsAnonymous {
		name += " (anonymous)"
	}
	body := strings.ReplaceAll(m.Body, "\n", "\n    ")
	return fmt.Sprintf("[%s] [%s] %s: %s",
		m.CreatedAt.UTC().Format("2006-01-02 15:04:05"), strings.ToUpper(string(m.MessageType)), name, body)
}
