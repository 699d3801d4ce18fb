package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pario-ai/chatrelay/pkg/client"
	"github.com/pario-ai/chatrelay/pkg/models"
)

func newChatCmd() *cobra.Command {
	var (
		addr    string
		system  string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Chat with a running relay; without a message, start an interactive session",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(addr, timeout)

			var history []models.ConversationTurn
			if system != "" {
				history = append(history, models.ConversationTurn{Role: models.RoleSystem, Content: system})
			}

			if len(args) > 0 {
				_, err := send(cmd.Context(), c, cmd.OutOrStdout(), history, strings.Join(args, " "))
				return err
			}
			return interactive(cmd.Context(), c, cmd.InOrStdin(), cmd.OutOrStdout(), history)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "http://localhost:3000", "relay base URL")
	cmd.Flags().StringVar(&system, "system", "", "system prompt to start the conversation with")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "per-request timeout")
	return cmd
}

// interactive reads one user turn per line and keeps the whole conversation
// client side, as a browser front end would.
func interactive(ctx context.Context, c *client.Client, in io.Reader, out io.Writer, history []models.ConversationTurn) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprint(out, "> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			fmt.Fprint(out, "> ")
			continue
		}
		if line == "/quit" || line == "/exit" {
			return nil
		}

		next, err := send(ctx, c, out, history, line)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		} else {
			history = next
		}
		fmt.Fprint(out, "> ")
	}
	return scanner.Err()
}

// send appends message to history, posts it and prints the reply. It returns
// the extended history on success.
func send(ctx context.Context, c *client.Client, out io.Writer, history []models.ConversationTurn, message string) ([]models.ConversationTurn, error) {
	turns := append(history[:len(history):len(history)], models.ConversationTurn{Role: models.RoleUser, Content: message})

	reply, err := c.Chat(ctx, turns)
	if err != nil {
		return nil, err
	}

	source := "upstream"
	if reply.CacheHit {
		source = "cache"
	}
	fmt.Fprintf(out, "%s\n\n[%s, %s] %s\n", reply.Reply, reply.Model, source, reply.Disclaimer)
	return append(turns, models.ConversationTurn{Role: models.RoleAssistant, Content: reply.Reply}), nil
}
