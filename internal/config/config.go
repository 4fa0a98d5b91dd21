package config

import "time"

// ClientConfig is the root configuration for the chat client.
type ClientConfig struct {
	API       APIConfig       `yaml:"api"`
	Stream    StreamConfig    `yaml:"stream"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	History   HistoryConfig   `yaml:"history"`
}

// APIConfig holds chat server endpoints and REST client settings.
type APIConfig struct {
	RestURL    string        `yaml:"rest_url"`
	WSURL      string        `yaml:"ws_url"`
	Token      string        `yaml:"token"` // Bearer token; usually ${CHAT_TOKEN}
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// StreamConfig holds WebSocket transport settings.
type StreamConfig struct {
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	PingTimeout      time.Duration `yaml:"ping_timeout"`
	BufferSize       int           `yaml:"buffer_size"`
}

// ReconnectConfig bounds automatic reconnection after unintentional closes.
type ReconnectConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Delay       time.Duration `yaml:"delay"`
}

// HistoryConfig holds history pagination settings.
type HistoryConfig struct {
	PerPage int `yaml:"per_page"`
}
