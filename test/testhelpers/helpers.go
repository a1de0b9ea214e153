// Package testhelpers provides common utilities and helper functions for testing the relay.
//
// This package contains reusable test utilities that are shared across unit and integration tests.
// It provides functions for starting a relay on ephemeral ports, driving line-framed TCP clients
// and WebSocket clients through the handshake, and asserting on the records they receive.
package testhelpers

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Jazzystic/robust-comm-system/internal/server"
)

// TestOriginURL is the origin allowed by relays started with StartRelay.
const TestOriginURL = "http://localhost:8080"

// DefaultTimeout bounds every blocking read in the helpers.
const DefaultTimeout = 2 * time.Second

// Record is a decoded server record.
type Record map[string]any

// Type returns the record's "type" field.
func (r Record) Type() string {
	s, _ := r["type"].(string)
	return s
}

// String returns a string field, or "" if absent.
func (r Record) String(field string) string {
	s, _ := r[field].(string)
	return s
}

// Strings returns a list-of-strings field.
func (r Record) Strings(field string) []string {
	raw, _ := r[field].([]any)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Usernames returns the names in a user_list record.
func (r Record) Usernames() []string {
	raw, _ := r["users"].([]any)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if u, ok := v.(map[string]any); ok {
			name, _ := u["username"].(string)
			out = append(out, name)
		}
	}
	return out
}

// QuietLogger discards everything.
func QuietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestConfig returns a configuration bound to loopback ephemeral ports that
// stores received files under a per-test directory.
func TestConfig(t *testing.T) server.Config {
	t.Helper()
	cfg := *server.NewConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	cfg.ReceivedFilesDir = t.TempDir()
	cfg.HandshakeTimeout = 500 * time.Millisecond
	cfg.AllowedOrigins = []string{TestOriginURL}
	return cfg
}

// StartRelay starts a relay with cfg and shuts it down when the test ends.
func StartRelay(t *testing.T, cfg server.Config) *server.Server {
	t.Helper()

	srv, err := server.New(cfg, QuietLogger())
	if err != nil {
		t.Fatalf("Failed to create relay: %v", err)
	}
	if err := srv.Listen(); err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}

	served := make(chan error, 1)
	go func() {
		served <- srv.Serve()
	}()

	t.Cleanup(func() {
		_ = srv.Shutdown(2 * time.Second)
		select {
		case err := <-served:
			if err != nil {
				t.Errorf("Serve returned error: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("Serve did not return after shutdown")
		}
	})
	return srv
}

// Client is a line-framed TCP relay client.
type Client struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

// Dial opens a TCP connection to the relay without performing the handshake.
func Dial(t *testing.T, addr net.Addr) *Client {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr.String(), DefaultTimeout)
	if err != nil {
		t.Fatalf("Failed to dial relay: %v", err)
	}
	c := &Client{t: t, conn: conn, r: bufio.NewReader(conn)}
	t.Cleanup(func() { _ = conn.Close() })
	return c
}

// Connect dials and completes the handshake as name with an empty profile
// image, then waits until the relay lists name as online. The group list
// sent to every newcomer is consumed too, so later reads only see changes.
func Connect(t *testing.T, addr net.Addr, name string) *Client {
	t.Helper()
	c := Dial(t, addr)
	c.Handshake(name, "")
	c.ReadUntil(func(r Record) bool {
		return r.Type() == "user_list" && slices.Contains(r.Usernames(), name)
	})
	c.ReadType("group_list")
	return c
}

// Handshake sends the display name and profile image lines.
func (c *Client) Handshake(name, image string) {
	c.t.Helper()
	c.WriteLine(name + "\n" + image)
}

// WriteLine sends raw text followed by a newline.
func (c *Client) WriteLine(line string) {
	c.t.Helper()
	if err := c.conn.SetWriteDeadline(time.Now().Add(DefaultTimeout)); err != nil {
		c.t.Fatalf("Failed to set write deadline: %v", err)
	}
	if _, err := io.WriteString(c.conn, line+"\n"); err != nil {
		c.t.Fatalf("Failed to write: %v", err)
	}
}

// Send encodes v as one JSON record.
func (c *Client) Send(v any) {
	c.t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		c.t.Fatalf("Failed to encode record: %v", err)
	}
	c.WriteLine(string(data))
}

// Read returns the next record, failing the test if none arrives in time.
func (c *Client) Read() Record {
	c.t.Helper()
	rec, err := c.TryRead(DefaultTimeout)
	if err != nil {
		c.t.Fatalf("Failed to read record: %v", err)
	}
	return rec
}

// TryRead returns the next record or the read error.
func (c *Client) TryRead(timeout time.Duration) (Record, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	line, err := c.r.ReadBytes('\n')
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(line, &rec); err != nil {
		return nil, fmt.Errorf("decode %q: %w", line, err)
	}
	return rec, nil
}

// ReadUntil skips records until match returns true.
func (c *Client) ReadUntil(match func(Record) bool) Record {
	c.t.Helper()
	deadline := time.Now().Add(DefaultTimeout)
	for time.Now().Before(deadline) {
		rec, err := c.TryRead(time.Until(deadline))
		if err != nil {
			c.t.Fatalf("Expected record never arrived: %v", err)
		}
		if match(rec) {
			return rec
		}
	}
	c.t.Fatal("Expected record never arrived")
	return nil
}

// ReadType skips records until one of the given type arrives.
func (c *Client) ReadType(kind string) Record {
	c.t.Helper()
	return c.ReadUntil(func(r Record) bool { return r.Type() == kind })
}

// ExpectNone fails if a record matching match arrives within wait.
func (c *Client) ExpectNone(wait time.Duration, match func(Record) bool) {
	c.t.Helper()
	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		rec, err := c.TryRead(time.Until(deadline))
		if err != nil {
			return
		}
		if match(rec) {
			c.t.Fatalf("Unexpected record: %v", rec)
		}
	}
}

// ExpectClosed fails unless the relay closes the connection within the
// default timeout. Records still in flight are skipped.
func (c *Client) ExpectClosed() {
	c.t.Helper()
	deadline := time.Now().Add(DefaultTimeout)
	for time.Now().Before(deadline) {
		_, err := c.TryRead(time.Until(deadline))
		if err == nil {
			continue
		}
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			break
		}
		return
	}
	c.t.Fatal("Connection was not closed by the relay")
}

// Close closes the client's connection.
func (c *Client) Close() {
	_ = c.conn.Close()
}

// ConnectWebSocket creates a WebSocket connection to the specified URL.
// It returns the connection or an error if connection fails.
func ConnectWebSocket(url, origin string) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, resp, err
}

// ReadWebSocketRecord reads one text message and decodes it.
func ReadWebSocketRecord(conn *websocket.Conn) (Record, error) {
	if err := conn.SetReadDeadline(time.Now().Add(DefaultTimeout)); err != nil {
		return nil, err
	}
	var rec Record
	err := conn.ReadJSON(&rec)
	return rec, err
}

// MakeRequest creates and executes an HTTP request, returning the response.
// It includes a 5-second timeout and fails the test if the request cannot be
// created or executed successfully.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	req, err := http.NewRequest(method, url, http.NoBody)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}

	return resp
}

// AssertStatusCode checks if the HTTP response has the expected status code.
// It fails the test with a descriptive error message if the status codes don't match.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// AssertContentType checks if the HTTP response has the expected Content-Type header.
// It fails the test with a descriptive error message if the content types don't match.
func AssertContentType(t *testing.T, resp *http.Response, expected string) {
	t.Helper()
	contentType := resp.Header.Get("Content-Type")
	if contentType != expected {
		t.Errorf("Expected content type %s, got %s", expected, contentType)
	}
}
