// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/pillowplayer/pillowauth/internal/licensing"
)

func RunCreditsCommand(o *adminOptions) *cobra.Command {
	command := &cobra.Command{
		Use:   "credits",
		Short: "Manage PCredit balances",
	}
	o.bind(command)

	balance := &cobra.Command{
		Use:   "balance <account-id>",
		Short: "Show the balance of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, func(ctx context.Context, ops licensing.Operations, p *printer) error {
				result, err := ops.Balance(ctx, args[0])
				if err != nil {
					return err
				}
				return p.print(result, creditTable(result))
			})
		},
	}

	var cost int
	redeem := &cobra.Command{
		Use:   "redeem <account-id>",
		Short: "Spend credits on a new unbound lifetime key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, func(ctx context.Context, ops licensing.Operations, p *printer) error {
				result, err := ops.Redeem(ctx, args[0], cost)
				if err != nil {
					return err
				}
				return p.print(result, func(w io.Writer) {
					fmt.Fprintf(w, "Key:\t%s\n", result.KeyCode)
					fmt.Fprintf(w, "Account:\t%s\n", result.AccountID)
					fmt.Fprintf(w, "Cost:\t%d\n", result.Cost)
					fmt.Fprintf(w, "Balance:\t%d\n", result.Balance)
					fmt.Fprintf(w, "Receipt:\t%s\n", result.ReceiptID)
				})
			})
		},
	}
	redeem.Flags().IntVar(&cost, "cost", 0, "price in credits (0 uses the configured redeemCost)")

	command.AddCommand(
		balance,
		creditAdjustCommand(o, licensing.CreditAdd, "Add credits to an account"),
		creditAdjustCommand(o, licensing.CreditRemove, "Remove credits from an account, stopping at zero"),
		creditAdjustCommand(o, licensing.CreditSet, "Set the balance of an account"),
		redeem,
	)
	return command
}

func creditAdjustCommand(o *adminOptions, action licensing.CreditAction, short string) *cobra.Command {
	return &cobra.Command{
		Use:   string(action) + " <account-id> <amount>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", args[1], err)
			}
			return o.run(cmd, func(ctx context.Context, ops licensing.Operations, p *printer) error {
				result, err := ops.Adjust(ctx, args[0], action, amount)
				if err != nil {
					return err
				}
				return p.print(result, creditTable(result))
			})
		},
	}
}

func creditTable(result *licensing.CreditResult) func(w io.Writer) {
	return func(w io.Writer) {
		fmt.Fprintf(w, "Account:\t%s\n", result.AccountID)
		fmt.Fprintf(w, "Balance:\t%d\n", result.Balance)
	}
}

func RunStatsCommand(o *adminOptions) *cobra.Command {
	command := &cobra.Command{
		Use:   "stats",
		Short: "Show key counts and recent activity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, func(ctx context.Context, ops licensing.Operations, p *printer) error {
				stats, err := ops.Stats(ctx)
				if err != nil {
					return err
				}
				return p.print(stats, func(w io.Writer) {
					fmt.Fprintf(w, "Total:\t%d\n", stats.Total)
					fmt.Fprintf(w, "Unused:\t%d\n", stats.Unused)
					fmt.Fprintf(w, "Used:\t%d\n", stats.Used)
					fmt.Fprintf(w, "Banned:\t%d\n", stats.Banned)
					fmt.Fprintf(w, "Active:\t%d\n", stats.Active)
					fmt.Fprintf(w, "Expired:\t%d\n", stats.Expired)
					fmt.Fprintf(w, "Lifetime:\t%d\n", stats.Lifetime)
					fmt.Fprintf(w, "Limited:\t%d\n", stats.Limited)
					fmt.Fprintf(w, "Created (24h):\t%d\n", stats.Created24h)

					if len(stats.RecentKeys) > 0 {
						fmt.Fprintln(w, "\nRecent keys:")
						for _, k := range stats.RecentKeys {
							fmt.Fprintf(w, "  %s\t%s\t%s\n", k.KeyCode, k.Status, formatTime(&k.CreatedAt))
						}
					}
					if len(stats.RecentlyRedeemed) > 0 {
						fmt.Fprintln(w, "\nRecently redeemed:")
						for _, k := range stats.RecentlyRedeemed {
							fmt.Fprintf(w, "  %s\t%s\t%s\n", k.KeyCode, orDash(k.DeviceName), formatTime(k.RedeemedAt))
						}
					}
				})
			})
		},
	}
	o.bind(command)

	return command
}
