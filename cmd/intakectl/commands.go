package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/spf13/cobra"

	"github.com/wolfman30/clinic-intake/internal/intake"
	"github.com/wolfman30/clinic-intake/internal/intakeclient"
)

type options struct {
	server  string
	timeout time.Duration
}

func defaultServer() string {
	if v := os.Getenv("INTAKE_SERVER_URL"); v != "" {
		return v
	}
	return "http://localhost:8080"
}

// newRootCmd creates the root command
func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "intakectl",
		Short:         "Book a clinic appointment from the terminal",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVar(&opts.server, "server", defaultServer(), "Intake API base URL (env INTAKE_SERVER_URL)")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 5*time.Minute, "Per-request timeout")

	rootCmd.AddCommand(newStartCmd(opts))
	rootCmd.AddCommand(newChatCmd(opts))
	rootCmd.AddCommand(newTranscriptCmd(opts))
	return rootCmd
}

func newStartCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Open a conversation and print its id",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := intakeclient.New(opts.server, opts.timeout)
			start, err := client.Start(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderStart(start))
			return nil
		},
	}
}

func newChatCmd(opts *options) *cobra.Command {
	var conversationID string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Run an interactive conversation",
		Long: `Run an interactive conversation until the appointment is booked or the
conversation ends. Pass --conversation-id to resume an existing one.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runChat(ctx, cmd, intakeclient.New(opts.server, opts.timeout), ask, conversationID)
		},
	}
	cmd.Flags().StringVar(&conversationID, "conversation-id", "", "Resume an existing conversation")
	return cmd
}

func newTranscriptCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "transcript [CONVERSATION_ID]",
		Short: "Print a conversation's chat history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := intakeclient.New(opts.server, opts.timeout)
			view, err := client.Transcript(cmd.Context(), args[0])
			if errors.Is(err, intakeclient.ErrNotFound) {
				return fmt.Errorf("conversation %s not found", args[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTranscript(view))
			return nil
		},
	}
}

// dialogue is the part of the API client the chat loop needs.
type dialogue interface {
	Start(ctx context.Context) (intake.StartResponse, error)
	Send(ctx context.Context, conversationID, input string) (intake.Reply, error)
	Conversation(ctx context.Context, conversationID string) (intake.SessionView, error)
}

func runChat(ctx context.Context, cmd *cobra.Command, client dialogue, ask func(intake.Reply) (string, error), conversationID string) error {
	out := cmd.OutOrStdout()

	var current intake.Reply
	if conversationID == "" {
		start, err := client.Start(ctx)
		if err != nil {
			return err
		}
		conversationID = start.ConversationID
		fmt.Fprintln(out, renderStart(start))
		current = intake.Reply{Message: start.Message, State: start.State}
	} else {
		view, err := client.Conversation(ctx, conversationID)
		if err != nil {
			return err
		}
		for _, entry := range view.ChatHistory {
			fmt.Fprintln(out, renderEntry(entry))
		}
		current = intake.Reply{State: view.State, ConversationEnded: view.ConversationEnded}
	}

	for !current.ConversationEnded && current.State != intake.StateEnd {
		input, err := ask(current)
		if errors.Is(err, terminal.InterruptErr) {
			fmt.Fprintln(out, mutedStyle.Render("Paused. Resume with --conversation-id "+conversationID))
			return nil
		}
		if err != nil {
			return err
		}
		reply, err := client.Send(ctx, conversationID, input)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, renderReply(reply))
		current = reply
	}
	fmt.Fprintln(out, mutedStyle.Render("Conversation ended."))
	return nil
}
