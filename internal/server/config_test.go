package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()
	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 14999, cfg.Port)
	assert.Equal(t, "localhost:14999", cfg.ListenAddr())
	assert.Equal(t, "received_files", cfg.ReceivedFilesDir)
	assert.Equal(t, 1024, cfg.MaxNameSize)
	assert.Equal(t, 1<<20, cfg.MaxHandshakeSize)
	assert.Empty(t, cfg.HTTPAddr)
	assert.Equal(t, *cfg, cfg.Sanitize())
}

func TestConfigSanitize(t *testing.T) {
	t.Parallel()

	origins := []string{"http://a.example"}
	cfg := Config{
		Host:             "",
		Port:             70000,
		AllowedOrigins:   origins,
		HandshakeTimeout: -time.Second,
		MaxNameSize:      4096,
		MaxHandshakeSize: 100,
		RateLimit:        RateLimitConfig{Burst: -1},
	}.Sanitize()

	assert.Empty(t, cfg.Host, "empty host listens on all interfaces")
	assert.Equal(t, defaultPort, cfg.Port)
	assert.Equal(t, defaultHandshakeTimeout, cfg.HandshakeTimeout)
	assert.Equal(t, 4096, cfg.MaxHandshakeSize, "image limit never below name limit")
	assert.Equal(t, defaultRateBurst, cfg.RateLimit.Burst)
	assert.Equal(t, defaultRateInterval, cfg.RateLimit.RefillInterval)
	assert.Equal(t, defaultSendBuffer, cfg.SendBuffer)
	assert.Equal(t, ":14999", cfg.ListenAddr())

	cfg.AllowedOrigins[0] = "changed"
	assert.Equal(t, "http://a.example", origins[0], "sanitize copies the origin list")
}

func TestConfigSanitizeKeepsEphemeralPort(t *testing.T) {
	t.Parallel()

	cfg := Config{Host: "127.0.0.1", Port: 0}.Sanitize()
	assert.Equal(t, 0, cfg.Port)
	assert.Equal(t, "127.0.0.1:0", cfg.ListenAddr())
}
