// Command ema-voice is a terminal voice client for a streaming chat
// assistant. It listens through the microphone, sends the transcript to the
// assistant and speaks the reply.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/koscakluka/ema-voice/core/chatchannel"
	"github.com/koscakluka/ema-voice/core/conversations"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configFile string
	v := viper.New()

	load := func(cmd *cobra.Command) (config, error) {
		return loadConfig(v, cmd.Flags(), configFile)
	}

	root := &cobra.Command{
		Use:   "ema-voice",
		Short: "Talk to the assistant from the terminal",
		Long: `ema-voice holds a spoken conversation with the assistant.

Settings are read from flags, EMA_* environment variables (for example
EMA_SERVER, EMA_CREDENTIAL, EMA_DEEPGRAM_API_KEY) and an optional
ema-voice.yaml in the working directory or $HOME/.config/ema-voice.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			if err := cfg.validate(); err != nil {
				return err
			}

			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			return runTUI(cmd.Context(), a.orchestrator)
		},
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "config file (default ./ema-voice.yaml or $HOME/.config/ema-voice/ema-voice.yaml)")
	registerFlags(root.PersistentFlags())

	root.AddCommand(newSchemaCommand(), newConversationsCommand(load))
	return root
}

func newSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema of the chat websocket frames",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return writeJSON(cmd.OutOrStdout(), chatchannel.ProtocolSchema())
		},
	}
}

func newConversationsCommand(load func(*cobra.Command) (config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "conversations",
		Short: "List stored conversations, most recently active first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			store, err := newStore(cfg)
			if err != nil {
				return err
			}

			summaries, err := store.ListConversations(cmd.Context())
			if err != nil {
				return err
			}
			printConversations(cmd.OutOrStdout(), summaries)
			return nil
		},
	}
}

func printConversations(w io.Writer, summaries []conversations.Summary) {
	conversations.SortByRecentActivity(summaries)
	if len(summaries) == 0 {
		fmt.Fprintln(w, "no conversations")
		return
	}
	for _, summary := range summaries {
		activity := "-"
		if recent := summary.RecentActivity(); !recent.IsZero() {
			activity = recent.Local().Format(time.DateTime)
		}
		fmt.Fprintf(w, "%s\t%s\n", summary.ID, activity)
	}
}

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
