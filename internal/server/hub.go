// Package server coordinates session registration, directory broadcasts, and
// connection cleanup for the relay via the Hub type.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Jazzystic/robust-comm-system/internal/registry"
	"github.com/Jazzystic/robust-comm-system/internal/transfer"
	"github.com/Jazzystic/robust-comm-system/internal/transport"
)

var errConnectionClosed = errors.New("connection closed before registration")

// Hub owns the session and group registries and the transfer reassembler,
// and routes every record received from a registered client.
//
// Directory changes (register, deregister, profile image, group creation) are
// serialized by dirMu together with the snapshot broadcast they trigger, so
// every broadcast reflects exactly the mutations ordered before it. Message
// routing and chunk ingestion only take the registries' own locks.
type Hub struct {
	cfg       Config
	logger    *slog.Logger
	sessions  *registry.Sessions
	groups    *registry.Groups
	transfers *transfer.Reassembler

	dirMu sync.Mutex

	mu      sync.Mutex
	clients map[*Client]struct{}
	closing bool
	wg      sync.WaitGroup

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

// Stats is a point-in-time count of the hub's state.
type Stats struct {
	Connections      int `json:"connections"`
	Sessions         int `json:"sessions"`
	Groups           int `json:"groups"`
	PendingTransfers int `json:"pending_transfers"`
}

// NewHub creates a Hub that persists completed transfers to store. The
// configuration is sanitized; a nil logger uses slog.Default.
func NewHub(cfg Config, store transfer.Store, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.Sanitize()
	sessions := registry.NewSessions()
	ctx, cancel := context.WithCancel(context.Background())

	return &Hub{
		cfg:       cfg,
		logger:    logger,
		sessions:  sessions,
		groups:    registry.NewGroups(sessions),
		transfers: transfer.NewReassembler(store, cfg.MaxChunks),
		clients:   make(map[*Client]struct{}),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// Run sweeps abandoned transfers until the hub is shut down. It should be
// started in its own goroutine before connections are served.
func (h *Hub) Run() {
	h.running.Store(true)
	defer close(h.done)

	ticker := time.NewTicker(sweepInterval(h.cfg.TransferTTL))
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			if n := h.transfers.Sweep(h.cfg.TransferTTL); n > 0 {
				h.logger.Info("discarded idle transfers", "count", n, "ttl", h.cfg.TransferTTL)
			}
		}
	}
}

func sweepInterval(ttl time.Duration) time.Duration {
	return max(ttl/4, time.Second)
}

// ServeConn runs the full lifecycle of one connection and returns once it
// has been torn down. Callers run it on its own goroutine.
func (h *Hub) ServeConn(conn transport.Conn) {
	c := newClient(conn, h)
	if !h.track(c) {
		c.logger.Info("rejecting connection during shutdown")
		_ = conn.Close()
		return
	}
	defer h.untrack(c)

	c.logger.Info("connection accepted")
	c.run()
}

func (h *Hub) track(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return false
	}
	h.clients[c] = struct{}{}
	h.wg.Add(1)
	return true
}

func (h *Hub) untrack(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	h.wg.Done()
}

// register makes c reachable under name and broadcasts the new user list.
// The newcomer also receives the current group list.
func (h *Hub) register(c *Client, name, image string) error {
	if !validName(name) {
		return fmt.Errorf("%w: %q", registry.ErrInvalidName, name)
	}

	h.dirMu.Lock()
	defer h.dirMu.Unlock()

	select {
	case <-c.done:
		return errConnectionClosed
	default:
	}

	c.name = name
	c.logger = c.logger.With("user", name)
	session, err := h.sessions.Register(name, c, image)
	if err != nil {
		return err
	}
	c.session = session

	h.broadcastUserList()
	h.sendGroupList(c)
	return nil
}

// deregister removes c from both registries and broadcasts both directories
// under one exclusion scope, then closes the connection.
func (h *Hub) deregister(c *Client) {
	h.dirMu.Lock()
	registered := c.session != nil
	if registered {
		if _, err := h.sessions.Remove(c.name); err != nil {
			c.logger.Error("session missing at teardown", "error", err)
		}
		if h.groups.RemoveMember(c.name) {
			c.logger.Debug("removed from groups")
		}
	}
	close(c.done)
	if registered {
		h.broadcastUserList()
		h.broadcastGroupList()
	}
	h.dirMu.Unlock()

	// A WebSocket close waits on its close frame; it must not stall the
	// directory.
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.logger.Debug("closing connection", "error", err)
	}
	if registered {
		c.logger.Info("session removed")
	}
}

// Stats reports current counts.
func (h *Hub) Stats() Stats {
	h.mu.Lock()
	conns := len(h.clients)
	h.mu.Unlock()

	return Stats{
		Connections:      conns,
		Sessions:         h.sessions.Len(),
		Groups:           h.groups.Len(),
		PendingTransfers: h.transfers.Pending(),
	}
}

// Shutdown stops the sweeper, tears down every connection and waits for the
// workers to finish, or until the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.logger.Info("initiating hub shutdown")

	h.cancel()
	if h.running.Load() {
		<-h.done
	}

	h.mu.Lock()
	h.closing = true
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.teardown()
	}
	h.logger.Info("closed client connections", "count", len(clients))

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.logger.Warn("hub shutdown timeout reached, some workers may still be running")
		return context.DeadlineExceeded
	}
}
