// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/pillowplayer/pillowauth/internal/licensing"
	"github.com/pillowplayer/pillowauth/internal/models"
)

func RunKeysCommand(o *adminOptions) *cobra.Command {
	command := &cobra.Command{
		Use:   "keys",
		Short: "Manage license keys",
	}
	o.bind(command)

	command.AddCommand(
		keysGenerateCommand(o),
		keysClaimCommand(o),
		keysVerifyCommand(o),
		keysInfoCommand(o),
		keysListCommand(o),
		keysSearchCommand(o),
		keysBatchCommand(o, "reset", "Unbind keys from their device so they can be activated again",
			func(ctx context.Context, ops licensing.Operations, keys []string, _ string) (*licensing.BatchResult, error) {
				return ops.Reset(ctx, keys)
			}),
		keysBatchCommand(o, "recover", "Lift key bans, restoring used or unused by binding",
			func(ctx context.Context, ops licensing.Operations, keys []string, _ string) (*licensing.BatchResult, error) {
				return ops.Recover(ctx, keys)
			}),
		keysBatchCommand(o, "delete", "Delete keys permanently",
			func(ctx context.Context, ops licensing.Operations, keys []string, _ string) (*licensing.BatchResult, error) {
				return ops.Delete(ctx, keys)
			}),
		keysBatchCommand(o, "ban", "Ban keys, recording the reason in their note",
			func(ctx context.Context, ops licensing.Operations, keys []string, reason string) (*licensing.BatchResult, error) {
				return ops.Ban(ctx, keys, reason)
			}),
	)

	return command
}

func keysGenerateCommand(o *adminOptions) *cobra.Command {
	var req licensing.GenerateRequest

	command := &cobra.Command{
		Use:   "generate",
		Short: "Generate new license keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, func(ctx context.Context, ops licensing.Operations, p *printer) error {
				result, err := ops.Generate(ctx, req)
				if err != nil {
					return err
				}
				return p.print(result, func(w io.Writer) {
					for _, key := range result.Keys {
						fmt.Fprintln(w, key)
					}
				})
			})
		},
	}

	command.Flags().IntVarP(&req.Count, "count", "n", 1, "number of keys to generate")
	command.Flags().IntVar(&req.DurationHours, "hours", 0, "validity after activation in hours (0 is lifetime)")
	command.Flags().StringVar(&req.Note, "note", "", "note stored with each key")
	command.Flags().StringVar(&req.OwnerAccount, "owner", "", "account to pre-claim the keys for")

	return command
}

func keysClaimCommand(o *adminOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "claim <key> <account-id>",
		Short: "Bind a key to an account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, func(ctx context.Context, ops licensing.Operations, p *printer) error {
				result, err := ops.Claim(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return p.print(result, func(w io.Writer) {
					fmt.Fprintln(w, result.Message)
				})
			})
		},
	}
}

func keysVerifyCommand(o *adminOptions) *cobra.Command {
	var req licensing.VerifyRequest

	command := &cobra.Command{
		Use:   "verify <key> <hwid>",
		Short: "Verify a key for a device, activating it on first use",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.KeyCode, req.HWID = args[0], args[1]
			return o.run(cmd, func(ctx context.Context, ops licensing.Operations, p *printer) error {
				result, err := ops.Verify(ctx, req)
				if err != nil {
					return err
				}
				if err := p.print(result, func(w io.Writer) {
					fmt.Fprintf(w, "Result:\t%s\n", result.Result)
					fmt.Fprintf(w, "Message:\t%s\n", result.Message)
					if result.Reason != "" {
						fmt.Fprintf(w, "Reason:\t%s\n", result.Reason)
					}
					if result.AccountID != "" {
						fmt.Fprintf(w, "Account:\t%s\n", result.AccountID)
					}
					fmt.Fprintf(w, "Expires:\t%s\n", formatTime(result.ExpiresAt))
				}); err != nil {
					return err
				}
				if !result.Valid {
					return licensing.NewError(result.Reason, "%s", result.Message)
				}
				return nil
			})
		},
	}

	command.Flags().StringVar(&req.DeviceName, "device", "", "device name recorded on activation")
	command.Flags().StringVar(&req.IPAddress, "ip", "", "client address recorded with the attempt")

	return command
}

func keysInfoCommand(o *adminOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "info <key>",
		Short: "Show one key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, func(ctx context.Context, ops licensing.Operations, p *printer) error {
				license, err := ops.Info(ctx, args[0])
				if err != nil {
					return err
				}
				return p.print(license, func(w io.Writer) {
					fmt.Fprintf(w, "Key:\t%s\n", license.KeyCode)
					fmt.Fprintf(w, "Status:\t%s\n", license.Status)
					fmt.Fprintf(w, "Duration:\t%s\n", formatDuration(license.DurationHours))
					fmt.Fprintf(w, "Account:\t%s\n", orDash(license.DiscordID))
					fmt.Fprintf(w, "HWID:\t%s\n", orDash(license.HWID))
					fmt.Fprintf(w, "HWID banned:\t%t\n", license.IsBanned)
					fmt.Fprintf(w, "Device:\t%s\n", orDash(license.DeviceName))
					fmt.Fprintf(w, "IP address:\t%s\n", orDash(license.IPAddress))
					fmt.Fprintf(w, "Created:\t%s\n", formatTime(&license.CreatedAt))
					fmt.Fprintf(w, "Redeemed:\t%s\n", formatTime(license.RedeemedAt))
					fmt.Fprintf(w, "Expires:\t%s\n", formatTime(license.ExpiresAt))
					fmt.Fprintf(w, "Last seen:\t%s\n", formatTime(license.LastSeen))
					fmt.Fprintf(w, "Runs:\t%d\n", license.RunCount)
					if license.Note != "" {
						fmt.Fprintf(w, "Note:\t%s\n", license.Note)
					}
				})
			})
		},
	}
}

func keysListCommand(o *adminOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all keys, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, func(ctx context.Context, ops licensing.Operations, p *printer) error {
				licenses, err := ops.List(ctx)
				if err != nil {
					return err
				}
				return p.print(licenses, licenseTable(licenses))
			})
		},
	}
}

func keysSearchCommand(o *adminOptions) *cobra.Command {
	var limit int

	command := &cobra.Command{
		Use:   "search <query>",
		Short: "Search keys by code, device name or note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, func(ctx context.Context, ops licensing.Operations, p *printer) error {
				result, err := ops.Search(ctx, args[0], limit)
				if err != nil {
					return err
				}
				return p.print(result, licenseTable(result.Matches))
			})
		},
	}

	command.Flags().IntVar(&limit, "limit", 0, "maximum number of matches (0 uses the server default)")

	return command
}

type batchFunc func(ctx context.Context, ops licensing.Operations, keys []string, reason string) (*licensing.BatchResult, error)

func keysBatchCommand(o *adminOptions, name, short string, fn batchFunc) *cobra.Command {
	var reason string

	command := &cobra.Command{
		Use:   name + " <key>...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, func(ctx context.Context, ops licensing.Operations, p *printer) error {
				result, err := fn(ctx, ops, args, reason)
				if err != nil {
					return err
				}
				return p.print(result, func(w io.Writer) {
					fmt.Fprintln(w, result.Message)
				})
			})
		},
	}

	if name == "ban" {
		command.Flags().StringVar(&reason, "reason", "", "reason appended to each key note")
	}

	return command
}

func RunAccountsCommand(o *adminOptions) *cobra.Command {
	command := &cobra.Command{
		Use:   "accounts",
		Short: "Inspect and ban accounts",
	}
	o.bind(command)

	var reason string
	ban := &cobra.Command{
		Use:   "ban <account-id>",
		Short: "Ban every key of an account and blacklist its devices",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, func(ctx context.Context, ops licensing.Operations, p *printer) error {
				result, err := ops.BanAccount(ctx, args[0], reason)
				if err != nil {
					return err
				}
				return p.print(result, func(w io.Writer) {
					fmt.Fprintf(w, "Account:\t%s\n", result.AccountID)
					fmt.Fprintf(w, "Keys revoked:\t%d\n", result.KeysRevoked)
					fmt.Fprintf(w, "HWIDs banned:\t%d\n", result.HWIDsBanned)
				})
			})
		},
	}
	ban.Flags().StringVar(&reason, "reason", "", "blacklist reason recorded for the account's devices")

	keys := &cobra.Command{
		Use:   "keys <account-id>",
		Short: "List the keys bound to an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, func(ctx context.Context, ops licensing.Operations, p *printer) error {
				licenses, err := ops.ListByAccount(ctx, args[0])
				if err != nil {
					return err
				}
				return p.print(licenses, licenseTable(licenses))
			})
		},
	}

	command.AddCommand(keys, ban)
	return command
}

func licenseTable(licenses []*models.License) func(w io.Writer) {
	return func(w io.Writer) {
		fmt.Fprintln(w, "KEY\tSTATUS\tDURATION\tACCOUNT\tDEVICE\tEXPIRES\tLAST SEEN")
		for _, l := range licenses {
			status := l.Status
			if l.IsBanned && status != models.LicenseStatusBanned {
				status += " (hwid banned)"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				l.KeyCode,
				status,
				formatDuration(l.DurationHours),
				orDash(l.DiscordID),
				orDash(l.DeviceName),
				formatTime(l.ExpiresAt),
				formatTime(l.LastSeen))
		}
	}
}
