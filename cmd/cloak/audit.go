// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sigil-dev/cloak/internal/server"
)

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show recent audit events",
		Long:  "Fetch audit events from the gateway's admin endpoint, newest first.",
		Args:  cobra.NoArgs,
		RunE:  runAudit,
	}

	cmd.Flags().String("address", defaultGatewayAddr, "gateway address")
	cmd.Flags().IntP("limit", "n", 20, "maximum events to show")
	cmd.Flags().String("request-id", "", "only events of this request")
	cmd.Flags().String("type", "", "only events of this type (e.g. TOOL_EXECUTION)")
	cmd.Flags().String("status", "", "only events with this status (SUCCESS, ERROR, INFO)")
	cmd.Flags().Bool("json", false, "print raw JSON")

	return cmd
}

func runAudit(cmd *cobra.Command, _ []string) error {
	addr, _ := cmd.Flags().GetString("address")
	limit, _ := cmd.Flags().GetInt("limit")
	requestID, _ := cmd.Flags().GetString("request-id")
	kind, _ := cmd.Flags().GetString("type")
	status, _ := cmd.Flags().GetString("status")
	asJSON, _ := cmd.Flags().GetBool("json")

	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if requestID != "" {
		q.Set("requestId", requestID)
	}
	if kind != "" {
		q.Set("type", kind)
	}
	if status != "" {
		q.Set("status", status)
	}

	var logs []server.AuditLogEntry
	if err := newGatewayClient(addr).getJSON("/v1/admin/logs?"+q.Encode(), &logs); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(logs)
	}

	if len(logs) == 0 {
		_, err := fmt.Fprintln(out, "No audit events.")
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "TIME\tREQUEST\tTYPE\tSTATUS\tDURATION\tMESSAGE")
	for _, l := range logs {
		dur := "-"
		if l.Duration != nil {
			dur = (time.Duration(*l.Duration) * time.Millisecond).String()
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			l.Timestamp.Local().Format(time.DateTime), l.RequestID, l.Type, l.Status, dur, l.Message)
	}
	return tw.Flush()
}
