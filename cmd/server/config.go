package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Jazzystic/robust-comm-system/internal/server"
)

const (
	envPrefix  = "RELAY"
	configType = "toml"

	keyConfigFile      = "config"
	keyLogLevel        = "log_level"
	keyLogFormat       = "log_format"
	keyShutdownTimeout = "shutdown_timeout"

	defaultShutdownTimeout = 10 * time.Second
)

// flagKeys maps command-line flags to configuration keys. Every key can also
// be set from a RELAY_-prefixed environment variable or the TOML file.
var flagKeys = map[string]string{
	"config":             keyConfigFile,
	"log-level":          keyLogLevel,
	"log-format":         keyLogFormat,
	"shutdown-timeout":   keyShutdownTimeout,
	"host":               "host",
	"port":               "port",
	"http-addr":          "http_addr",
	"allowed-origins":    "allowed_origins",
	"received-files-dir": "received_files_dir",
	"handshake-timeout":  "handshake_timeout",
	"write-timeout":      "write_timeout",
	"max-name-size":      "max_name_size",
	"max-handshake-size": "max_handshake_size",
	"max-record-size":    "max_record_size",
	"max-chunks":         "max_chunks",
	"transfer-ttl":       "transfer_ttl",
	"send-buffer":        "send_buffer",
	"rate-burst":         "rate_limit.burst",
	"rate-interval":      "rate_limit.refill_interval",
}

func registerFlags(cmd *cobra.Command, v *viper.Viper) {
	d := server.NewConfig()
	flags := cmd.PersistentFlags()

	flags.String("config", "", "path to a TOML configuration file")
	flags.String("log-level", "info", "log level: debug, info, warn or error")
	flags.String("log-format", "text", "log format: text or json")
	flags.Duration("shutdown-timeout", defaultShutdownTimeout, "how long to wait for connections to close on shutdown")

	flags.String("host", d.Host, "relay listen host")
	flags.Int("port", d.Port, "relay listen port")
	flags.String("http-addr", d.HTTPAddr, "WebSocket gateway address, empty to disable")
	flags.StringSlice("allowed-origins", d.AllowedOrigins, "origins allowed to open WebSocket sessions (* for any)")
	flags.String("received-files-dir", d.ReceivedFilesDir, "directory for reassembled files")
	flags.Duration("handshake-timeout", d.HandshakeTimeout, "time allowed for each handshake step")
	flags.Duration("write-timeout", d.WriteTimeout, "time allowed for one outbound write")
	flags.Int("max-name-size", d.MaxNameSize, "maximum display name size in bytes")
	flags.Int("max-handshake-size", d.MaxHandshakeSize, "maximum profile image size in bytes")
	flags.Int("max-record-size", d.MaxRecordSize, "maximum record size in bytes")
	flags.Int("max-chunks", d.MaxChunks, "maximum chunks per file transfer")
	flags.Duration("transfer-ttl", d.TransferTTL, "idle time after which an incomplete transfer is discarded")
	flags.Int("send-buffer", d.SendBuffer, "outbound records queued per client before it is dropped")
	flags.Int("rate-burst", d.RateLimit.Burst, "chat records allowed per burst")
	flags.Duration("rate-interval", d.RateLimit.RefillInterval, "interval over which the burst refills")

	for flag, key := range flagKeys {
		_ = v.BindPFlag(key, flags.Lookup(flag))
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// loadConfig resolves the relay configuration from defaults, the optional
// config file, RELAY_* environment variables and flags, in rising order of
// precedence.
func loadConfig(v *viper.Viper) (server.Config, error) {
	if file := v.GetString(keyConfigFile); file != "" {
		v.SetConfigFile(file)
		v.SetConfigType(configType)
		if err := v.ReadInConfig(); err != nil {
			return server.Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg server.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return server.Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg.Sanitize(), nil
}

type rateLimitFile struct {
	Burst          int    `toml:"burst"`
	RefillInterval string `toml:"refill_interval"`
}

// configFile is the TOML layout of server.Config. Durations are written in
// time.ParseDuration form so the output can be fed back through --config.
type configFile struct {
	Host             string        `toml:"host"`
	Port             int           `toml:"port"`
	HTTPAddr         string        `toml:"http_addr"`
	AllowedOrigins   []string      `toml:"allowed_origins"`
	ReceivedFilesDir string        `toml:"received_files_dir"`
	HandshakeTimeout string        `toml:"handshake_timeout"`
	WriteTimeout     string        `toml:"write_timeout"`
	MaxNameSize      int           `toml:"max_name_size"`
	MaxHandshakeSize int           `toml:"max_handshake_size"`
	MaxRecordSize    int           `toml:"max_record_size"`
	MaxChunks        int           `toml:"max_chunks"`
	TransferTTL      string        `toml:"transfer_ttl"`
	SendBuffer       int           `toml:"send_buffer"`
	RateLimit        rateLimitFile `toml:"rate_limit"`
}

func toConfigFile(cfg server.Config) configFile {
	return configFile{
		Host:             cfg.Host,
		Port:             cfg.Port,
		HTTPAddr:         cfg.HTTPAddr,
		AllowedOrigins:   cfg.AllowedOrigins,
		ReceivedFilesDir: cfg.ReceivedFilesDir,
		HandshakeTimeout: cfg.HandshakeTimeout.String(),
		WriteTimeout:     cfg.WriteTimeout.String(),
		MaxNameSize:      cfg.MaxNameSize,
		MaxHandshakeSize: cfg.MaxHandshakeSize,
		MaxRecordSize:    cfg.MaxRecordSize,
		MaxChunks:        cfg.MaxChunks,
		TransferTTL:      cfg.TransferTTL.String(),
		SendBuffer:       cfg.SendBuffer,
		RateLimit: rateLimitFile{
			Burst:          cfg.RateLimit.Burst,
			RefillInterval: cfg.RateLimit.RefillInterval.String(),
		},
	}
}

func newConfigCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as TOML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			data, err := toml.Marshal(toConfigFile(cfg))
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
