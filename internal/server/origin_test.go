package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
)

func TestOriginPolicy(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{name: "no origin header", allowed: nil, origin: "", want: true},
		{name: "exact match", allowed: []string{"http://localhost:8080"}, origin: "http://localhost:8080", want: true},
		{name: "case insensitive", allowed: []string{"HTTP://LocalHost:8080"}, origin: "http://localhost:8080", want: true},
		{name: "path ignored", allowed: []string{"https://chat.example/app"}, origin: "https://chat.example", want: true},
		{name: "other port", allowed: []string{"http://localhost:8080"}, origin: "http://localhost:9090", want: false},
		{name: "wildcard", allowed: []string{"*"}, origin: "https://anything.example", want: true},
		{name: "garbage origin", allowed: []string{"http://localhost:8080"}, origin: "::not a url", want: false},
		{name: "invalid config entry skipped", allowed: []string{"localhost", " "}, origin: "http://localhost", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			policy := newOriginPolicy(tt.allowed, logger)
			r := httptest.NewRequest("GET", "/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, policy.allows(r))
		})
	}
}

func TestIsExpectedCloseError(t *testing.T) {
	t.Parallel()

	assert.True(t, isExpectedCloseError(nil))
	assert.True(t, isExpectedCloseError(io.EOF))
	assert.True(t, isExpectedCloseError(fmt.Errorf("read: %w", net.ErrClosed)))
	assert.True(t, isExpectedCloseError(websocket.ErrCloseSent))
	assert.True(t, isExpectedCloseError(errors.New("write tcp: broken pipe")))
	assert.True(t, isExpectedCloseError(errors.New("read tcp: connection reset by peer")))
	assert.False(t, isExpectedCloseError(errors.New("i/o timeout")))
}
