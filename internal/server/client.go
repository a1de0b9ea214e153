// Package server manages individual relay clients, handling the handshake,
// read/write pumps, rate limiting, and teardown for each connection.
package server

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/Jazzystic/robust-comm-system/internal/protocol"
	"github.com/Jazzystic/robust-comm-system/internal/registry"
	"github.com/Jazzystic/robust-comm-system/internal/transport"
)

var errEmptyName = errors.New("empty display name")

// Client is one accepted connection. It moves through the handshake, becomes
// a registered session, and is torn down exactly once.
type Client struct {
	id          string
	conn        transport.Conn
	hub         *Hub
	logger      *slog.Logger
	send        chan []byte
	done        chan struct{}
	rateLimiter *rateLimiter
	closeOnce   sync.Once

	// name and session are written under hub.dirMu during registration and
	// never change afterwards.
	name    string
	session *registry.Session
}

var _ registry.Endpoint = (*Client)(nil)

func newClient(conn transport.Conn, hub *Hub) *Client {
	id := uuid.NewString()
	return &Client{
		id:          id,
		conn:        conn,
		hub:         hub,
		logger:      hub.logger.With("conn_id", id, "remote", conn.RemoteAddr()),
		send:        make(chan []byte, hub.cfg.SendBuffer),
		done:        make(chan struct{}),
		rateLimiter: newRateLimiter(hub.cfg.RateLimit),
	}
}

// Send queues record for the write pump. A client whose queue is full is
// scheduled for teardown and the record is dropped.
func (c *Client) Send(record []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- record:
		return true
	default:
		c.logger.Warn("send buffer full; disconnecting", "buffer", cap(c.send))
		go c.teardown()
		return false
	}
}

func (c *Client) run() {
	defer c.teardown()

	name, image, err := c.handshake()
	if err != nil {
		c.logger.Info("handshake failed", "error", err)
		return
	}

	if err := c.hub.register(c, name, image); err != nil {
		c.logger.Warn("registration rejected", "user", name, "error", err)
		c.reject(err)
		return
	}
	c.logger.Info("session registered")

	go c.writePump()
	c.readPump()
}

// handshake reads the display name and the base64 profile image, each within
// the handshake timeout. A profile image that never arrives is treated as
// empty.
func (c *Client) handshake() (string, string, error) {
	cfg := c.hub.cfg

	if err := c.conn.SetReadDeadline(time.Now().Add(cfg.HandshakeTimeout)); err != nil {
		return "", "", fmt.Errorf("set handshake deadline: %w", err)
	}
	rawName, err := c.conn.ReadHandshake(cfg.MaxNameSize)
	if err != nil {
		return "", "", fmt.Errorf("read name: %w", err)
	}
	name := strings.TrimSpace(string(rawName))
	if name == "" {
		return "", "", errEmptyName
	}

	if err := c.conn.SetReadDeadline(time.Now().Add(cfg.HandshakeTimeout)); err != nil {
		return "", "", fmt.Errorf("set handshake deadline: %w", err)
	}
	var image string
	rawImage, err := c.conn.ReadHandshake(cfg.MaxHandshakeSize)
	switch {
	case err == nil:
		image = strings.TrimSpace(string(rawImage))
	case transport.IsTimeout(err):
		c.logger.Debug("no profile image received", "user", name)
	default:
		return "", "", fmt.Errorf("read profile image: %w", err)
	}
	if image != "" && !isBase64(image) {
		c.logger.Warn("ignoring invalid profile image", "user", name)
		image = ""
	}

	if err := c.conn.SetReadDeadline(time.Time{}); err != nil {
		return "", "", fmt.Errorf("clear handshake deadline: %w", err)
	}
	return name, image, nil
}

// reject tells an unregistered peer why it was turned away. The write pump is
// not running yet, so the record is written directly.
func (c *Client) reject(err error) {
	code := "invalid_name"
	if errors.Is(err, registry.ErrNameTaken) {
		code = "name_taken"
	}
	record, encErr := protocol.Encode(protocol.NewError(code, err.Error()))
	if encErr != nil {
		return
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteTimeout)); err != nil {
		return
	}
	if err := c.conn.WriteRecord(record); err != nil {
		c.logger.Debug("writing rejection failed", "error", err)
	}
}

// notify sends an error record to this client only.
func (c *Client) notify(code string, err error) {
	if record, encErr := protocol.Encode(protocol.NewError(code, err.Error())); encErr == nil {
		c.Send(record)
	}
}

func (c *Client) readPump() {
	for {
		raw, err := c.conn.ReadRecord()
		if err != nil {
			c.logReadError(err)
			return
		}
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}

		rec, err := protocol.Decode(raw)
		if err != nil {
			c.logger.Warn("dropping record", "error", err)
			continue
		}
		if rec.Kind() != protocol.KindFileChunk && !c.rateLimiter.allow() {
			c.logger.Warn("rate limit exceeded; discarding record",
				"type", rec.Kind(), "burst", c.hub.cfg.RateLimit.Burst, "interval", c.hub.cfg.RateLimit.RefillInterval)
			continue
		}

		c.logger.Debug("record received", "type", rec.Kind())
		c.hub.dispatch(c, rec)
	}
}

func (c *Client) logReadError(err error) {
	switch {
	case isExpectedCloseError(err):
		c.logger.Info("client disconnected")
	case errors.Is(err, transport.ErrRecordTooLarge):
		c.logger.Warn("record exceeded maximum size", "max", c.hub.cfg.MaxRecordSize)
	default:
		c.logger.Error("read failed", "error", err)
	}
}

func (c *Client) writePump() {
	for {
		select {
		case <-c.done:
			return
		case record := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteTimeout)); err != nil {
				c.logger.Error("setting write deadline failed", "error", err)
				c.teardown()
				return
			}
			if err := c.conn.WriteRecord(record); err != nil {
				if !isExpectedCloseError(err) {
					c.logger.Error("write failed", "error", err)
				}
				c.teardown()
				return
			}
		}
	}
}

// teardown deregisters the session, closes the connection and broadcasts
// the updated directory. Only the first call has any effect.
func (c *Client) teardown() {
	c.closeOnce.Do(func() {
		c.hub.deregister(c)
	})
}

func isBase64(s string) bool {
	_, err := base64.StdEncoding.DecodeString(s)
	return err == nil
}

func validName(name string) bool {
	return utf8.ValidString(name) && !strings.ContainsAny(name, "\r\n")
}
