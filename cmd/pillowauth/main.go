// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/pillowplayer/pillowauth/internal/auth"
	"github.com/pillowplayer/pillowauth/internal/config"
)

var Version = "dev"

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func NewRootCommand() *cobra.Command {
	var rootCmd = &cobra.Command{
		Use:   "pillowauth",
		Short: "License key issuance and verification service",
		Long: `pillowauth - issues license keys, binds them to one device and one
account, and verifies them for the client software.

Admin commands talk to the running gateway and fall back to the local
database file when the gateway cannot be reached.`,
		SilenceUsage: true,
	}

	rootCmd.Version = Version

	rootCmd.AddCommand(RunServeCommand())
	rootCmd.AddCommand(RunVersionCommand(Version))
	rootCmd.AddCommand(RunGenerateConfigCommand())
	rootCmd.AddCommand(RunHashSecretCommand())

	admin := &adminOptions{}
	rootCmd.AddCommand(RunKeysCommand(admin))
	rootCmd.AddCommand(RunAccountsCommand(admin))
	rootCmd.AddCommand(RunBlacklistCommand(admin))
	rootCmd.AddCommand(RunCreditsCommand(admin))
	rootCmd.AddCommand(RunStatsCommand(admin))

	return rootCmd
}

func RunServeCommand() *cobra.Command {
	var (
		configDir string
		dataDir   string
		logPath   string
	)

	var command = &cobra.Command{
		Use:   "serve",
		Short: "Start the server",
	}

	command.Flags().StringVar(&configDir, "config-dir", "", "config directory path (default is OS-specific: ~/.config/pillowauth/ or %APPDATA%\\pillowauth\\). Can also be a direct path to a .toml file")
	command.Flags().StringVar(&dataDir, "data-dir", "", "data directory for the database (default is next to config file)")
	command.Flags().StringVar(&logPath, "log-path", "", "log file path (default is stderr)")

	command.RunE = func(cmd *cobra.Command, args []string) error {
		app := NewApplication(Version, configDir, dataDir, logPath)
		return app.runServer()
	}

	return command
}

func RunVersionCommand(version string) *cobra.Command {
	var command = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of pillowauth",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(version)
		},
	}

	return command
}

func RunGenerateConfigCommand() *cobra.Command {
	var configDir string

	command := &cobra.Command{
		Use:   "generate-config",
		Short: "Generate a default configuration file",
		Long: `Generate a default configuration file with a random admin secret
without starting the server.

If no --config-dir is specified, uses the OS-specific default location:
- Linux/macOS: ~/.config/pillowauth/config.toml
- Windows: %APPDATA%\pillowauth\config.toml

You can specify either a directory path or a direct file path:
- Directory: pillowauth generate-config --config-dir /path/to/config/
- File: pillowauth generate-config --config-dir /path/to/myconfig.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := resolveConfigFile(configDir)

			if _, err := os.Stat(configPath); err == nil {
				cmd.Printf("Configuration file already exists at: %s\n", configPath)
				cmd.Println("Skipping generation to avoid overwriting existing configuration.")
				return nil
			}

			if err := config.WriteDefaultConfig(configPath); err != nil {
				return fmt.Errorf("failed to create configuration file: %w", err)
			}

			cmd.Printf("Configuration file created successfully at: %s\n", configPath)
			return nil
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "",
		"config directory or file path (defaults to OS-specific location)")

	return command
}

func resolveConfigFile(configDir string) string {
	if configDir == "" {
		return filepath.Join(config.GetDefaultConfigDir(), "config.toml")
	}
	if strings.HasSuffix(strings.ToLower(configDir), ".toml") {
		return configDir
	}
	if info, err := os.Stat(configDir); err == nil && !info.IsDir() {
		return configDir
	}
	return filepath.Join(configDir, "config.toml")
}

func RunHashSecretCommand() *cobra.Command {
	var secret string

	command := &cobra.Command{
		Use:   "hash-secret",
		Short: "Hash an admin secret for the config file",
		Long: `Hash an admin secret with argon2id.

Put the printed value in adminSecret to avoid storing the secret itself in
config.toml. Callers keep sending the plain secret in X-Admin-Secret.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				var err error
				secret, err = readPassword("Enter admin secret: ")
				if err != nil {
					return err
				}
			}

			if len(secret) < 16 {
				return fmt.Errorf("admin secret must be at least 16 characters long")
			}

			hashed, err := auth.HashSecret(secret)
			if err != nil {
				return fmt.Errorf("failed to hash secret: %w", err)
			}

			cmd.Println(hashed)
			return nil
		},
	}

	command.Flags().StringVar(&secret, "secret", "", "secret to hash (will prompt if not provided)")

	return command
}

func readPassword(prompt string) (string, error) {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprint(os.Stderr, prompt)
		password, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read secret: %w", err)
		}
		return string(password), nil
	}

	fmt.Fprint(os.Stderr, prompt)
	var password string
	if _, err := fmt.Scanln(&password); err != nil {
		return "", fmt.Errorf("failed to read secret from stdin: %w", err)
	}
	return password, nil
}
