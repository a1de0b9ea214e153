// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the relay.
package server

import (
	"net"
	"strconv"
	"time"
)

// RateLimitConfig defines the parameters for per-connection record rate limiting.
type RateLimitConfig struct {
	Burst          int           `mapstructure:"burst"`
	RefillInterval time.Duration `mapstructure:"refill_interval"`
}

// Config holds the relay configuration. Zero values are replaced by defaults
// when the configuration is sanitized.
type Config struct {
	Host             string          `mapstructure:"host"`
	Port             int             `mapstructure:"port"`
	HTTPAddr         string          `mapstructure:"http_addr"`
	AllowedOrigins   []string        `mapstructure:"allowed_origins"`
	ReceivedFilesDir string          `mapstructure:"received_files_dir"`
	HandshakeTimeout time.Duration   `mapstructure:"handshake_timeout"`
	WriteTimeout     time.Duration   `mapstructure:"write_timeout"`
	MaxNameSize      int             `mapstructure:"max_name_size"`
	MaxHandshakeSize int             `mapstructure:"max_handshake_size"`
	MaxRecordSize    int             `mapstructure:"max_record_size"`
	MaxChunks        int             `mapstructure:"max_chunks"`
	TransferTTL      time.Duration   `mapstructure:"transfer_ttl"`
	SendBuffer       int             `mapstructure:"send_buffer"`
	RateLimit        RateLimitConfig `mapstructure:"rate_limit"`
}

const (
	defaultHost             = "localhost"
	defaultPort             = 14999
	defaultReceivedFilesDir = "received_files"
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 10 * time.Second
	defaultMaxNameSize      = 1024
	defaultMaxHandshakeSize = 1 << 20
	defaultMaxRecordSize    = 4 << 20
	defaultMaxChunks        = 1 << 16
	defaultTransferTTL      = 10 * time.Minute
	defaultSendBuffer       = 256
	defaultRateBurst        = 20
	defaultRateInterval     = time.Second
)

func defaultConfig() Config {
	return Config{
		Host:             defaultHost,
		Port:             defaultPort,
		AllowedOrigins:   []string{"http://localhost:8080"},
		ReceivedFilesDir: defaultReceivedFilesDir,
		HandshakeTimeout: defaultHandshakeTimeout,
		WriteTimeout:     defaultWriteTimeout,
		MaxNameSize:      defaultMaxNameSize,
		MaxHandshakeSize: defaultMaxHandshakeSize,
		MaxRecordSize:    defaultMaxRecordSize,
		MaxChunks:        defaultMaxChunks,
		TransferTTL:      defaultTransferTTL,
		SendBuffer:       defaultSendBuffer,
		RateLimit: RateLimitConfig{
			Burst:          defaultRateBurst,
			RefillInterval: defaultRateInterval,
		},
	}
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// Sanitize returns a copy of cfg with every unset or invalid field replaced
// by its default. An empty Host is kept so the relay can listen on all
// interfaces, and Port 0 asks the kernel for a free port.
func (cfg Config) Sanitize() Config {
	if cfg.Port < 0 || cfg.Port > 65535 {
		cfg.Port = defaultPort
	}
	if cfg.ReceivedFilesDir == "" {
		cfg.ReceivedFilesDir = defaultReceivedFilesDir
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.MaxNameSize <= 0 {
		cfg.MaxNameSize = defaultMaxNameSize
	}
	if cfg.MaxHandshakeSize <= 0 {
		cfg.MaxHandshakeSize = defaultMaxHandshakeSize
	}
	if cfg.MaxHandshakeSize < cfg.MaxNameSize {
		cfg.MaxHandshakeSize = cfg.MaxNameSize
	}
	if cfg.MaxRecordSize <= 0 {
		cfg.MaxRecordSize = defaultMaxRecordSize
	}
	if cfg.MaxChunks <= 0 {
		cfg.MaxChunks = defaultMaxChunks
	}
	if cfg.TransferTTL <= 0 {
		cfg.TransferTTL = defaultTransferTTL
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaultSendBuffer
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = defaultRateBurst
	}
	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = defaultRateInterval
	}
	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// ListenAddr is the host:port of the TCP relay endpoint.
func (cfg Config) ListenAddr() string {
	return net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
}
