// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

// Config represents the application configuration
type Config struct {
	Host            string       `toml:"host" mapstructure:"host"`
	Port            int          `toml:"port" mapstructure:"port"`
	BaseURL         string       `toml:"baseUrl" mapstructure:"baseUrl"`
	AdminSecret     string       `toml:"adminSecret" mapstructure:"adminSecret"`
	LogLevel        string       `toml:"logLevel" mapstructure:"logLevel"`
	LogPath         string       `toml:"logPath" mapstructure:"logPath"`
	DataDir         string       `toml:"dataDir" mapstructure:"dataDir"`
	MetricsEnabled  bool         `toml:"metricsEnabled" mapstructure:"metricsEnabled"`
	KeyPrefix       string       `toml:"keyPrefix" mapstructure:"keyPrefix"`
	RedeemCost      int          `toml:"redeemCost" mapstructure:"redeemCost"`
	WebhookURL      string       `toml:"webhookUrl" mapstructure:"webhookUrl"`
	DiscordBotToken string       `toml:"discordBotToken" mapstructure:"discordBotToken"`
	HTTPTimeouts    HTTPTimeouts `toml:"httpTimeouts" mapstructure:"httpTimeouts"`
	Client          ClientConfig `toml:"client" mapstructure:"client"`
}

// HTTPTimeouts represents HTTP server timeout configuration
type HTTPTimeouts struct {
	ReadTimeout  int `toml:"readTimeout" mapstructure:"readTimeout"`   // seconds
	WriteTimeout int `toml:"writeTimeout" mapstructure:"writeTimeout"` // seconds
	IdleTimeout  int `toml:"idleTimeout" mapstructure:"idleTimeout"`   // seconds
}

// ClientConfig controls how admin commands reach the gateway and when they
// fall back to the local database.
type ClientConfig struct {
	GatewayURL      string `toml:"gatewayUrl" mapstructure:"gatewayUrl"`
	FallbackTimeout int    `toml:"fallbackTimeout" mapstructure:"fallbackTimeout"` // milliseconds
	RetryBackoff    int    `toml:"retryBackoff" mapstructure:"retryBackoff"`       // seconds
}
