// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"text/template"
	"unicode"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/pillowplayer/pillowauth/internal/domain"
)

const (
	envPrefix        = "PILLOWAUTH__"
	appName          = "pillowauth"
	configFileName   = "config.toml"
	databaseFileName = "pillowauth.db"
)

// configKeys lists every key that can be overridden from the environment.
var configKeys = []string{
	"host",
	"port",
	"baseUrl",
	"adminSecret",
	"logLevel",
	"logPath",
	"dataDir",
	"metricsEnabled",
	"keyPrefix",
	"redeemCost",
	"webhookUrl",
	"discordBotToken",
	"httpTimeouts.readTimeout",
	"httpTimeouts.writeTimeout",
	"httpTimeouts.idleTimeout",
	"client.gatewayUrl",
	"client.fallbackTimeout",
	"client.retryBackoff",
}

type AppConfig struct {
	Config *domain.Config

	viper      *viper.Viper
	configPath string
	dataDir    string

	mu        sync.RWMutex
	logFile   *os.File
	listeners []func(*domain.Config)
}

// New loads configuration from configDirOrPath, which may be a directory
// holding config.toml or a direct path to a .toml file. An empty value uses
// the OS-specific default directory. A missing file is not an error; the
// defaults and environment still apply.
func New(configDirOrPath string) (*AppConfig, error) {
	c := &AppConfig{
		viper:  viper.New(),
		Config: &domain.Config{},
	}

	if configDirOrPath == "" {
		configDirOrPath = GetDefaultConfigDir()
	}
	c.configPath = c.resolveConfigPath(configDirOrPath)

	c.defaults()
	if err := c.bindEnv(); err != nil {
		return nil, err
	}

	c.viper.SetConfigFile(c.configPath)
	c.viper.SetConfigType("toml")

	if _, err := os.Stat(c.configPath); err == nil {
		if err := c.viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", c.configPath, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config %s: %w", c.configPath, err)
	}

	if err := c.viper.Unmarshal(c.Config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := c.validate(); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *AppConfig) defaults() {
	c.viper.SetDefault("host", "localhost")
	c.viper.SetDefault("port", 5000)
	c.viper.SetDefault("baseUrl", "")
	c.viper.SetDefault("adminSecret", "")
	c.viper.SetDefault("logLevel", "INFO")
	c.viper.SetDefault("logPath", "")
	c.viper.SetDefault("dataDir", "")
	c.viper.SetDefault("metricsEnabled", false)
	c.viper.SetDefault("keyPrefix", "PILLOW-PLAYER")
	c.viper.SetDefault("redeemCost", 20)
	c.viper.SetDefault("webhookUrl", "")
	c.viper.SetDefault("discordBotToken", "")
	c.viper.SetDefault("httpTimeouts.readTimeout", 60)
	c.viper.SetDefault("httpTimeouts.writeTimeout", 120)
	c.viper.SetDefault("httpTimeouts.idleTimeout", 180)
	c.viper.SetDefault("client.gatewayUrl", "http://localhost:5000")
	c.viper.SetDefault("client.fallbackTimeout", 2000)
	c.viper.SetDefault("client.retryBackoff", 30)
}

func (c *AppConfig) bindEnv() error {
	for _, key := range configKeys {
		if err := c.viper.BindEnv(key, envPrefix+envKey(key)); err != nil {
			return fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}
	return nil
}

// envKey converts "client.gatewayUrl" to "CLIENT__GATEWAY_URL".
func envKey(key string) string {
	parts := strings.Split(key, ".")
	for i, part := range parts {
		var b strings.Builder
		for j, r := range part {
			if unicode.IsUpper(r) && j > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToUpper(r))
		}
		parts[i] = b.String()
	}
	return strings.Join(parts, "__")
}

func (c *AppConfig) validate() error {
	cfg := c.Config

	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("invalid port %d", cfg.Port)
	}
	if cfg.RedeemCost < 0 {
		return fmt.Errorf("redeemCost must not be negative")
	}
	if cfg.Client.FallbackTimeout < 0 || cfg.Client.RetryBackoff < 0 {
		return fmt.Errorf("client timeouts must not be negative")
	}
	if _, err := parseLogLevel(cfg.LogLevel); err != nil {
		return err
	}
	return nil
}

// resolveConfigPath accepts either a .toml path, an existing file, or a directory.
func (c *AppConfig) resolveConfigPath(configDirOrPath string) string {
	if strings.HasSuffix(strings.ToLower(configDirOrPath), ".toml") {
		return configDirOrPath
	}
	if info, err := os.Stat(configDirOrPath); err == nil && !info.IsDir() {
		return configDirOrPath
	}
	return filepath.Join(configDirOrPath, configFileName)
}

// ConfigPath returns the resolved config file path, whether or not it exists.
func (c *AppConfig) ConfigPath() string {
	return c.configPath
}

// SetDataDir overrides the data directory for this process.
func (c *AppConfig) SetDataDir(dir string) {
	c.dataDir = dir
}

// GetDatabasePath returns the SQLite file path. The database lives in the
// data directory when one is set, otherwise next to the config file.
func (c *AppConfig) GetDatabasePath() string {
	dir := c.dataDir
	if dir == "" {
		dir = c.Config.DataDir
	}
	if dir == "" {
		dir = filepath.Dir(c.configPath)
	}
	return filepath.Join(dir, databaseFileName)
}

// OnChange registers fn to run with the new config after the file is reloaded.
func (c *AppConfig) OnChange(fn func(*domain.Config)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Watch reloads the config file on change. Only the log level and the
// listeners registered through OnChange see the new values; the listen
// address and database location need a restart.
func (c *AppConfig) Watch() {
	if _, err := os.Stat(c.configPath); err != nil {
		log.Debug().Str("path", c.configPath).Msg("Config file missing, not watching for changes")
		return
	}

	c.viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}

		next := &domain.Config{}
		if err := c.viper.Unmarshal(next); err != nil {
			log.Error().Err(err).Msg("Failed to reload config")
			return
		}

		level, err := parseLogLevel(next.LogLevel)
		if err != nil {
			log.Error().Err(err).Msg("Ignoring invalid log level in reloaded config")
		} else {
			zerolog.SetGlobalLevel(level)
		}

		c.mu.Lock()
		c.Config.LogLevel = next.LogLevel
		listeners := append([]func(*domain.Config){}, c.listeners...)
		c.mu.Unlock()

		for _, fn := range listeners {
			fn(next)
		}

		log.Info().Str("file", e.Name).Str("logLevel", next.LogLevel).Msg("Config reloaded")
	})
	c.viper.WatchConfig()
}

func parseLogLevel(level string) (zerolog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "TRACE":
		return zerolog.TraceLevel, nil
	case "DEBUG":
		return zerolog.DebugLevel, nil
	case "", "INFO":
		return zerolog.InfoLevel, nil
	case "WARN", "WARNING":
		return zerolog.WarnLevel, nil
	case "ERROR":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q", level)
	}
}

// ApplyLogConfig sets the global log level and, when logPath is set, tees
// log output into that file.
func (c *AppConfig) ApplyLogConfig() {
	level, err := parseLogLevel(c.Config.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var writer io.Writer = zerolog.ConsoleWriter{Out: os.Stderr}

	if c.Config.LogPath != "" {
		if err := os.MkdirAll(filepath.Dir(c.Config.LogPath), 0755); err != nil {
			log.Error().Err(err).Str("path", c.Config.LogPath).Msg("Failed to create log directory")
		} else if file, err := os.OpenFile(c.Config.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644); err != nil {
			log.Error().Err(err).Str("path", c.Config.LogPath).Msg("Failed to open log file")
		} else {
			if c.logFile != nil {
				c.logFile.Close()
			}
			c.logFile = file
			writer = zerolog.MultiLevelWriter(writer, file)
		}
	}

	log.Logger = log.Output(writer)
}

// Close releases the log file, if any.
func (c *AppConfig) Close() error {
	if c.logFile == nil {
		return nil
	}
	err := c.logFile.Close()
	c.logFile = nil
	return err
}

// GetDefaultConfigDir returns the OS-specific config directory.
func GetDefaultConfigDir() string {
	// Container images mount their config volume here.
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg == "/config" {
		return "/config"
	}

	switch runtime.GOOS {
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, appName)
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "AppData", "Roaming", appName)
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, appName)
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", appName)
	}
}

func generateSecureToken(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

const configTemplate = `# config.toml - pillowauth configuration

# Hostname / IP
# Default: "localhost"
host = "{{ .Host }}"

# Port
# Default: 5000
port = {{ .Port }}

# Base URL
# Set custom baseUrl eg /pillowauth/ to serve under a subpath
#baseUrl = "/pillowauth/"

# Shared admin secret required in the X-Admin-Secret header.
# May be the secret itself or an argon2id hash from "pillowauth hash-secret".
adminSecret = "{{ .AdminSecret }}"

# Log level
# Default: "INFO"
# Options: "ERROR", "WARN", "INFO", "DEBUG", "TRACE"
logLevel = "INFO"

# Log file path
# If not defined, logs to stderr
#logPath = "log/pillowauth.log"

# Data directory holding pillowauth.db
# Default: next to this config file
#dataDir = "/var/lib/pillowauth"

# Expose Prometheus metrics at /metrics
#metricsEnabled = false

# Prefix of generated keys
#keyPrefix = "PILLOW-PLAYER"

# Default PCredit price of a redeemed key
#redeemCost = 20

# Discord webhook receiving verification audit messages
#webhookUrl = ""

# Bot token used to resolve Discord display names for audit messages
#discordBotToken = ""

[httpTimeouts]
# Seconds
readTimeout = 60
writeTimeout = 120
idleTimeout = 180

[client]
# Gateway used by the admin commands
gatewayUrl = "http://localhost:5000"
# Milliseconds before an unreachable gateway falls back to the local database
fallbackTimeout = 2000
# Seconds to skip the gateway after it was found unreachable
retryBackoff = 30
`

// WriteDefaultConfig writes a commented default config with a fresh admin
// secret. An existing file is left untouched.
func WriteDefaultConfig(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	secret, err := generateSecureToken(32)
	if err != nil {
		return err
	}

	host := "localhost"
	if os.Getenv("XDG_CONFIG_HOME") == "/config" {
		host = "0.0.0.0"
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse config template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, domain.Config{Host: host, Port: 5000, AdminSecret: secret}); err != nil {
		return fmt.Errorf("failed to render config: %w", err)
	}

	if err := os.WriteFile(configPath, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	log.Info().Str("path", configPath).Msg("Created default configuration")
	return nil
}
