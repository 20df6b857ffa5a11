// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pillowplayer/pillowauth/internal/auth"
	"github.com/pillowplayer/pillowauth/internal/config"
)

func TestRunGenerateConfigCommand(t *testing.T) {
	tests := []struct {
		name               string
		args               []string
		setupExistingFile  bool
		validateOutput     func(t *testing.T, output string)
		validateConfigFile func(t *testing.T, configPath string)
	}{
		{
			name: "generate_config_default_location",
			args: []string{},
			validateOutput: func(t *testing.T, output string) {
				assert.Contains(t, output, "Configuration file created")
				assert.Contains(t, output, filepath.Join("pillowauth", "config.toml"))
			},
		},
		{
			name: "generate_config_custom_directory",
			args: []string{"--config-dir", "custom/path"},
			validateOutput: func(t *testing.T, output string) {
				assert.Contains(t, output, "Configuration file created")
				assert.Contains(t, output, "custom/path/config.toml")
			},
			validateConfigFile: func(t *testing.T, configPath string) {
				content, err := os.ReadFile(configPath)
				require.NoError(t, err)
				assert.Contains(t, string(content), "# config.toml")
				assert.Contains(t, string(content), "[client]")
			},
		},
		{
			name: "generate_config_custom_file",
			args: []string{"--config-dir", "custom/myconfig.toml"},
			validateOutput: func(t *testing.T, output string) {
				assert.Contains(t, output, "Configuration file created")
				assert.Contains(t, output, "custom/myconfig.toml")
			},
			validateConfigFile: func(t *testing.T, configPath string) {
				assert.Equal(t, "myconfig.toml", filepath.Base(configPath))
				_, err := os.Stat(configPath)
				require.NoError(t, err)
			},
		},
		{
			name:              "skip_existing_config",
			args:              []string{"--config-dir", "existing/path"},
			setupExistingFile: true,
			validateOutput: func(t *testing.T, output string) {
				assert.Contains(t, output, "Configuration file already exists")
				assert.Contains(t, output, "existing/path/config.toml")
			},
			validateConfigFile: func(t *testing.T, configPath string) {
				content, err := os.ReadFile(configPath)
				require.NoError(t, err)
				assert.Equal(t, "# Existing config content", string(content))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			t.Chdir(tmpDir)
			t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, "xdg"))

			if tt.setupExistingFile {
				existingPath := filepath.Join(tmpDir, "existing", "path", "config.toml")
				require.NoError(t, os.MkdirAll(filepath.Dir(existingPath), 0755))
				require.NoError(t, os.WriteFile(existingPath, []byte("# Existing config content"), 0644))
			}

			cmd := RunGenerateConfigCommand()
			var output bytes.Buffer
			cmd.SetOut(&output)
			cmd.SetErr(&output)
			cmd.SetArgs(tt.args)

			require.NoError(t, cmd.Execute())

			if tt.validateOutput != nil {
				tt.validateOutput(t, output.String())
			}

			if tt.validateConfigFile != nil {
				configPath := filepath.Join(tmpDir, tt.args[1])
				if !strings.HasSuffix(tt.args[1], ".toml") {
					configPath = filepath.Join(configPath, "config.toml")
				}
				tt.validateConfigFile(t, configPath)
			}
		})
	}
}

func TestGenerateConfigLoadsWithSecret(t *testing.T) {
	dir := t.TempDir()

	cmd := RunGenerateConfigCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config-dir", dir})
	require.NoError(t, cmd.Execute())

	cfg, err := config.New(dir)
	require.NoError(t, err)
	defer cfg.Close()

	assert.Len(t, cfg.Config.AdminSecret, 64)
	_, err = auth.NewService(cfg.Config.AdminSecret)
	assert.NoError(t, err)
}

func TestGenerateConfigCommandHelp(t *testing.T) {
	cmd := RunGenerateConfigCommand()
	var output bytes.Buffer
	cmd.SetOut(&output)
	cmd.SetArgs([]string{"--help"})

	require.NoError(t, cmd.Execute())

	helpOutput := output.String()
	assert.Contains(t, helpOutput, "Generate a default configuration file")
	assert.Contains(t, helpOutput, "--config-dir")
	assert.Contains(t, helpOutput, "OS-specific default location")
}

func TestGenerateConfigCommandValidation(t *testing.T) {
	cmd := RunGenerateConfigCommand()
	var output bytes.Buffer
	cmd.SetOut(&output)
	cmd.SetErr(&output)
	cmd.SetArgs([]string{"--config-dir"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flag needs an argument")
}

func TestRunHashSecretCommand(t *testing.T) {
	tests := []struct {
		name          string
		secret        string
		expectedError string
	}{
		{name: "hashes_secret", secret: "a-long-enough-admin-secret"},
		{name: "rejects_short_secret", secret: "short", expectedError: "at least 16 characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := RunHashSecretCommand()
			var output bytes.Buffer
			cmd.SetOut(&output)
			cmd.SetErr(&output)
			cmd.SetArgs([]string{"--secret", tt.secret})

			err := cmd.Execute()
			if tt.expectedError != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectedError)
				return
			}
			require.NoError(t, err)

			hashed := strings.TrimSpace(output.String())
			require.True(t, auth.IsHash(hashed), "output should be an argon2id hash: %s", hashed)

			verifier, err := auth.NewService(hashed)
			require.NoError(t, err)
			assert.NoError(t, verifier.Verify(tt.secret))
		})
	}
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := NewRootCommand()

	for _, name := range []string{"serve", "version", "generate-config", "hash-secret", "keys", "accounts", "blacklist", "credits", "stats"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
}
