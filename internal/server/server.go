package server

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Brownie44l1/staticd/internal/resource"
)

var ErrServerClosed = errors.New("server closed")

// Server accepts connections and hands each one to a bounded pool of
// workers. A worker owns its connection until the handler returns.
type Server struct {
	Logger Logger

	cfg      Config
	resolver *resource.Resolver
	metrics  *Metrics
	now      func() time.Time

	workers errgroup.Group
	closed  atomic.Bool

	mu         sync.Mutex
	listener   net.Listener
	acceptDone chan struct{}
	conns      map[*connHandler]struct{}
}

func New(cfg Config, resolver *resource.Resolver) *Server {
	cfg = cfg.withDefaults()
	s := &Server{
		Logger:   &NullLogger{},
		cfg:      cfg,
		resolver: resolver,
		metrics:  NewMetrics(),
		now:      time.Now,
		conns:    make(map[*connHandler]struct{}),
	}
	s.workers.SetLimit(cfg.MaxWorkers)
	return s
}

func (s *Server) Config() Config {
	return s.cfg
}

// ListenAndServe listens on Config.Addr and serves until Close or Shutdown.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln. When every worker is busy the accept
// loop waits for one to free up. It returns ErrServerClosed after Close
// or Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	done := make(chan struct{})
	defer close(done)

	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		ln.Close()
		return ErrServerClosed
	}
	s.listener = ln
	s.acceptDone = done
	s.mu.Unlock()

	s.Logger.Info("server listening",
		Field{"addr", ln.Addr().String()},
		Field{"workers", s.cfg.MaxWorkers},
	)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.closed.Load() {
				return ErrServerClosed
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			s.Logger.Error("accept failed", Field{"error", err})
			continue
		}

		h := s.track(conn)
		s.workers.Go(func() error {
			s.serveConn(h)
			return nil
		})
	}
}

// serveConn runs a tracked handler to completion on the calling goroutine.
func (s *Server) serveConn(h *connHandler) {
	defer s.untrack(h)
	h.serve()
}

func (s *Server) track(conn net.Conn) *connHandler {
	h := newConnHandler(s, conn)

	s.mu.Lock()
	s.conns[h] = struct{}{}
	s.mu.Unlock()

	s.metrics.ConnectionOpened()
	s.Logger.Info("connection accepted", Field{"remote", h.remote})
	return h
}

func (s *Server) untrack(h *connHandler) {
	h.close()

	s.mu.Lock()
	delete(s.conns, h)
	s.mu.Unlock()

	s.metrics.ConnectionClosed()
	s.Logger.Debug("connection closed", Field{"remote", h.remote})
}

// closeListener stops the accept loop. The returned channel is closed
// once Serve has returned.
func (s *Server) closeListener() (<-chan struct{}, error) {
	s.closed.Store(true)

	s.mu.Lock()
	ln, done := s.listener, s.acceptDone
	s.mu.Unlock()

	if ln == nil {
		done := make(chan struct{})
		close(done)
		return done, nil
	}
	err := ln.Close()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	return done, err
}

func (s *Server) closeConns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for h := range s.conns {
		h.close()
	}
}

// Close stops accepting and closes every open connection immediately.
func (s *Server) Close() error {
	done, err := s.closeListener()
	s.closeConns()
	<-done
	// a connection accepted while the listener was closing
	s.closeConns()
	s.workers.Wait()
	return err
}

// Shutdown stops accepting and waits for open connections to finish on
// their own (they end at their next idle timeout). If ctx expires first,
// the remaining connections are closed and ctx's error is returned.
func (s *Server) Shutdown(ctx context.Context) error {
	done, err := s.closeListener()
	if err != nil {
		return err
	}

	idle := make(chan struct{})
	go func() {
		<-done
		s.workers.Wait()
		close(idle)
	}()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		s.closeConns()
		<-idle
		return ctx.Err()
	}
}

// Stats returns a snapshot of the server counters
func (s *Server) Stats() MetricsSnapshot {
	return s.metrics.Snapshot()
}
