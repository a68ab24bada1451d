// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/sigil-dev/cloak/internal/server"
	cloakerr "github.com/sigil-dev/cloak/pkg/errors"
	"github.com/sigil-dev/cloak/pkg/types"
)

func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Chat through the gateway",
		Long: "Send a message to the gateway's chat endpoint and print the assistant's reply. " +
			"Reads one message per line from stdin if no message is provided.",
		Args: cobra.MaximumNArgs(1),
		RunE: runChat,
	}

	cmd.Flags().String("address", defaultGatewayAddr, "gateway address")
	cmd.Flags().StringP("user", "u", "cli", "caller user ID")
	cmd.Flags().String("org", "", "caller organization ID")
	cmd.Flags().StringSlice("roles", []string{"agent"}, "caller roles")
	cmd.Flags().StringP("session", "s", "", "session ID")
	cmd.Flags().Duration("timeout", 3*time.Minute, "request timeout")

	return cmd
}

type chatSession struct {
	client  *gatewayClient
	context types.AgentContext
	history []types.Message
}

func runChat(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("address")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	user, _ := cmd.Flags().GetString("user")
	org, _ := cmd.Flags().GetString("org")
	roles, _ := cmd.Flags().GetStringSlice("roles")
	session, _ := cmd.Flags().GetString("session")

	s := &chatSession{
		client: newGatewayClient(addr).withTimeout(timeout),
		context: types.AgentContext{
			UserID:    user,
			OrgID:     org,
			Roles:     roles,
			SessionID: session,
		},
	}
	out := cmd.OutOrStdout()

	if len(args) > 0 {
		reply, err := s.send(args[0])
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, reply)
		return err
	}

	return s.interactive(cmd.InOrStdin(), out)
}

// interactive sends each non-empty input line and prints the reply. The
// conversation carries over between lines.
func (s *chatSession) interactive(in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for {
		_, _ = fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			_, _ = fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		}

		reply, err := s.send(line)
		if err != nil {
			if cloakerr.HasCode(err, cloakerr.CodeCLIGatewayNotRunning) {
				return err
			}
			_, _ = fmt.Fprintf(out, "error: %s\n", err)
			continue
		}
		_, _ = fmt.Fprintln(out, reply)
	}
}

// send appends text as a user message, posts the conversation and adopts
// the returned history and session.
func (s *chatSession) send(text string) (string, error) {
	req := server.ChatRequestBody{
		Messages: append(s.history, types.Message{Role: types.RoleUser, Content: text}),
		Context:  &s.context,
	}
	var resp server.ChatResponseBody
	if err := s.client.postJSON("/v1/agent/chat", req, &resp); err != nil {
		return "", err
	}

	s.history = resp.Messages
	s.context.SessionID = resp.SessionID
	return lastAssistantReply(resp.Messages), nil
}

func lastAssistantReply(msgs []types.Message) string {
	m, _, ok := lo.FindLastIndexOf(msgs, func(m types.Message) bool {
		return m.Role == types.RoleAssistant && m.Content != ""
	})
	if !ok {
		return "(no reply)"
	}
	return m.Content
}
