// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/pillowplayer/pillowauth/internal/licensing"
)

func RunBlacklistCommand(o *adminOptions) *cobra.Command {
	command := &cobra.Command{
		Use:   "blacklist",
		Short: "Manage banned hardware ids",
	}
	o.bind(command)

	list := &cobra.Command{
		Use:   "list",
		Short: "List banned hardware ids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, func(ctx context.Context, ops licensing.Operations, p *printer) error {
				entries, err := ops.Blacklist(ctx)
				if err != nil {
					return err
				}
				return p.print(entries, func(w io.Writer) {
					fmt.Fprintln(w, "HWID\tREASON\tBANNED AT")
					for _, e := range entries {
						fmt.Fprintf(w, "%s\t%s\t%s\n", e.HWID, e.Reason, formatTime(&e.CreatedAt))
					}
				})
			})
		},
	}

	var reason string
	add := &cobra.Command{
		Use:   "add <hwid>",
		Short: "Ban a hardware id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, func(ctx context.Context, ops licensing.Operations, p *printer) error {
				result, err := ops.BlacklistAdd(ctx, args[0], reason)
				if err != nil {
					return err
				}
				return p.print(result, blacklistMessage(result))
			})
		},
	}
	add.Flags().StringVar(&reason, "reason", "", "reason recorded with the ban")

	remove := &cobra.Command{
		Use:   "remove <hwid>",
		Short: "Lift the ban on a hardware id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, func(ctx context.Context, ops licensing.Operations, p *printer) error {
				result, err := ops.BlacklistRemove(ctx, args[0])
				if err != nil {
					return err
				}
				return p.print(result, blacklistMessage(result))
			})
		},
	}

	command.AddCommand(list, add, remove)
	return command
}

func blacklistMessage(result *licensing.BlacklistResult) func(w io.Writer) {
	return func(w io.Writer) {
		fmt.Fprintln(w, result.Message)
	}
}
