package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/Jazzystic/robust-comm-system/internal/transfer"
	"github.com/Jazzystic/robust-comm-system/internal/transport"
)

const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

// Server accepts TCP connections for the hub and, when configured, serves
// the WebSocket gateway and health endpoint over HTTP.
type Server struct {
	cfg    Config
	logger *slog.Logger
	hub    *Hub
	store  *transfer.DirStore

	mu       sync.Mutex
	listener net.Listener
	httpLn   net.Listener
	httpSrv  *http.Server
}

// New prepares a Server and creates the received-files directory.
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.Sanitize()

	store, err := transfer.NewDirStore(cfg.ReceivedFilesDir)
	if err != nil {
		return nil, fmt.Errorf("preparing received files directory: %w", err)
	}

	return &Server{
		cfg:    cfg,
		logger: logger,
		hub:    NewHub(cfg, store, logger),
		store:  store,
	}, nil
}

// Hub exposes the server's hub.
func (s *Server) Hub() *Hub { return s.hub }

// Listen binds the relay listener and, if HTTPAddr is set, the HTTP listener.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ln, err := net.Listen("tcp", s.cfg.ListenAddr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.ListenAddr(), err)
	}
	s.listener = ln

	if s.cfg.HTTPAddr != "" {
		httpLn, err := net.Listen("tcp", s.cfg.HTTPAddr)
		if err != nil {
			_ = ln.Close()
			s.listener = nil
			return fmt.Errorf("listen on %s: %w", s.cfg.HTTPAddr, err)
		}
		s.httpLn = httpLn
		s.httpSrv = CreateServer(s.cfg.HTTPAddr, SetupRoutes(s.hub, s.cfg, s.logger))
	}
	return nil
}

// Addr is the bound relay address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// HTTPAddr is the bound gateway address, or nil when the gateway is disabled.
func (s *Server) HTTPAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.httpLn == nil {
		return nil
	}
	return s.httpLn.Addr()
}

// Serve runs the hub and accepts connections until the listener is closed by
// Shutdown, in which case it returns nil.
func (s *Server) Serve() error {
	s.mu.Lock()
	ln, httpLn, httpSrv := s.listener, s.httpLn, s.httpSrv
	s.mu.Unlock()
	if ln == nil {
		return errors.New("server is not listening")
	}

	go s.hub.Run()

	if httpSrv != nil {
		go func() {
			s.logger.Info("websocket gateway listening", "addr", httpLn.Addr().String())
			if err := httpSrv.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error("websocket gateway stopped", "error", err)
			}
		}()
	}

	s.logger.Info("relay listening", "addr", ln.Addr().String(), "received_files", s.store.Dir())

	backoff := minAcceptBackoff
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Error("accept failed", "error", err, "retry_in", backoff)
			time.Sleep(backoff)
			backoff = min(backoff*2, maxAcceptBackoff)
			continue
		}
		backoff = minAcceptBackoff

		go s.hub.ServeConn(transport.NewLineConn(conn, s.cfg.MaxRecordSize))
	}
}

// ListenAndServe binds the listeners and serves until Shutdown.
func (s *Server) ListenAndServe() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Shutdown stops accepting connections, stops the gateway and tears down
// every session, waiting at most timeout for connection workers to exit.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.mu.Lock()
	ln, httpSrv := s.listener, s.httpSrv
	s.mu.Unlock()

	var errs []error
	if ln != nil {
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, fmt.Errorf("closing relay listener: %w", err))
		}
	}
	if httpSrv != nil {
		// Hijacked WebSocket connections are not tracked by http.Server; the
		// hub closes them below.
		if err := httpSrv.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing gateway: %w", err))
		}
	}
	if err := s.hub.Shutdown(timeout); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
