// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pillowplayer/pillowauth/internal/auth"
	"github.com/pillowplayer/pillowauth/internal/client"
	"github.com/pillowplayer/pillowauth/internal/config"
	"github.com/pillowplayer/pillowauth/internal/database"
	"github.com/pillowplayer/pillowauth/internal/licensing"
)

const maxGatewayBackoff = 10 * time.Minute

// adminOptions holds the flags shared by every admin command group.
type adminOptions struct {
	configDir string
	dataDir   string
	secret    string
	gateway   string
	output    string
}

func (o *adminOptions) bind(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringVar(&o.configDir, "config-dir", "", "config directory or file path (defaults to OS-specific location)")
	flags.StringVar(&o.dataDir, "data-dir", "", "data directory holding the local database (default is next to config file)")
	flags.StringVar(&o.secret, "secret", "", "admin secret (defaults to adminSecret from config, or prompts)")
	flags.StringVar(&o.gateway, "gateway", "", "gateway URL (defaults to client.gatewayUrl from config)")
	flags.StringVarP(&o.output, "output", "o", "table", "output format: table, json or yaml")
}

// run executes fn against the gateway, falling back to the local database
// when the gateway cannot be reached.
func (o *adminOptions) run(cmd *cobra.Command, fn func(ctx context.Context, ops licensing.Operations, p *printer) error) error {
	p, err := newPrinter(cmd.OutOrStdout(), o.output)
	if err != nil {
		return err
	}

	cfg, err := config.New(o.configDir)
	if err != nil {
		return fmt.Errorf("failed to initialize configuration: %w", err)
	}
	defer cfg.Close()

	if o.dataDir != "" {
		cfg.SetDataDir(o.dataDir)
	}

	secret, err := o.resolveSecret(cfg)
	if err != nil {
		return err
	}

	gateway := o.gateway
	if gateway == "" {
		gateway = cfg.Config.Client.GatewayURL
	}

	timeout := time.Duration(cfg.Config.Client.FallbackTimeout) * time.Millisecond
	remote := client.NewHTTP(gateway, secret, timeout)

	ops := client.NewFallback(remote, localOpener(cfg, secret),
		client.WithBackoff(time.Duration(cfg.Config.Client.RetryBackoff)*time.Second, maxGatewayBackoff))
	defer func() {
		if err := ops.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close local database")
		}
	}()

	if err := fn(cmd.Context(), ops, p); err != nil {
		return commandError(err)
	}
	return nil
}

// resolveSecret prefers the flag, then a plain adminSecret from config, then
// an interactive prompt. A hashed adminSecret cannot be presented.
func (o *adminOptions) resolveSecret(cfg *config.AppConfig) (string, error) {
	if o.secret != "" {
		return o.secret, nil
	}
	if configured := strings.TrimSpace(cfg.Config.AdminSecret); configured != "" && !auth.IsHash(configured) {
		return configured, nil
	}
	return readPassword("Enter admin secret: ")
}

// localOpener opens the database named by cfg and guards it with the
// configured admin secret.
func localOpener(cfg *config.AppConfig, presented string) client.Opener {
	return func() (licensing.Operations, func() error, error) {
		dbPath := cfg.GetDatabasePath()
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("database not found at %s", dbPath)
		}

		verifier, err := auth.NewService(cfg.Config.AdminSecret)
		if err != nil {
			return nil, nil, licensing.NewError(licensing.CodeUnauthorized, "adminSecret is not configured for local access")
		}

		db, err := database.New(dbPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open database: %w", err)
		}

		log.Debug().Str("path", dbPath).Msg("Opened local database")

		service := licensing.NewService(db, serviceOptions(cfg.Config)...)
		return client.NewLocal(verifier, presented, service), db.Close, nil
	}
}

func commandError(err error) error {
	e := licensing.AsError(err)
	return fmt.Errorf("%s: %s", e.Code, e.Error())
}

type outputFormat string

const (
	formatTable outputFormat = "table"
	formatJSON  outputFormat = "json"
	formatYAML  outputFormat = "yaml"
)

type printer struct {
	out    io.Writer
	format outputFormat
}

func newPrinter(out io.Writer, format string) (*printer, error) {
	switch f := outputFormat(strings.ToLower(format)); f {
	case formatTable, formatJSON, formatYAML:
		return &printer{out: out, format: f}, nil
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}

// print renders v as JSON or YAML, or hands a tab writer to table.
func (p *printer) print(v any, table func(w io.Writer)) error {
	switch p.format {
	case formatJSON:
		enc := json.NewEncoder(p.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(p.out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}

	tw := tabwriter.NewWriter(p.out, 0, 0, 2, ' ', 0)
	table(tw)
	return tw.Flush()
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

func formatDuration(hours int) string {
	if hours <= 0 {
		return "lifetime"
	}
	if hours%24 == 0 {
		return fmt.Sprintf("%dd", hours/24)
	}
	return fmt.Sprintf("%dh", hours)
}
