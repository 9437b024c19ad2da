package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"gorged/interceptor"
	"gorged/logger"
	"gorged/pipeline"
)

// Rewriter is the part of *pipeline.Pipeline the worker needs.
type Rewriter interface {
	Rewrite(ctx context.Context, rc *interceptor.RequestContext, body string) (string, bool)
}

// Server answers rewrite requests from proxies. Each connection is served by
// its own goroutine, one request at a time.
type Server struct {
	rewriter    Rewriter
	maxFrame    int64
	idleTimeout time.Duration

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

type ServerOption func(*Server)

func WithServerMaxFrameBytes(n int64) ServerOption {
	return func(s *Server) { s.maxFrame = n }
}

// WithIdleTimeout closes connections that stay silent for d. Zero disables it.
func WithIdleTimeout(d time.Duration) ServerOption {
	return func(s *Server) { s.idleTimeout = d }
}

func NewServer(rw Rewriter, opts ...ServerOption) *Server {
	s := &Server{
		rewriter: rw,
		maxFrame: DefaultMaxFrameBytes,
		conns:    make(map[net.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListenAndServe listens on addr (see ParseAddress) and serves until ctx is
// cancelled. A stale unix socket file is removed first.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	network, address := ParseAddress(addr)
	if network == "unix" {
		if err := os.Remove(address); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("removing stale socket %s: %w", address, err)
		}
	}
	ln, err := net.Listen(network, address)
	if err != nil {
		return fmt.Errorf("listening on %s %s: %w", network, address, err)
	}
	if network == "unix" {
		defer os.Remove(address)
	}
	logger.Info("Worker listening on %s %s", network, address)
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled or Accept fails,
// then closes the listener and every open connection and waits for their
// handlers.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		ln.Close()
		s.mu.Lock()
		for conn := range s.conns {
			conn.Close()
		}
		s.mu.Unlock()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			close(done)
			s.wg.Wait()
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		s.track(conn, true)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.track(conn, false)
			s.handleConn(ctx, conn)
		}()
	}
}

func (s *Server) track(conn net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
		return
	}
	delete(s.conns, conn)
	conn.Close()
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	br := bufio.NewReader(conn)
	for {
		if s.idleTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
		}
		payload, err := ReadFrame(br, s.maxFrame)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				logger.Warn("Worker: dropping connection from %s: %v", conn.RemoteAddr(), err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Time{})

		msg, err := DecodeMessage(payload)
		if err != nil {
			logger.Warn("Worker: %v", err)
			return
		}
		if err := WriteFrame(conn, []byte(s.process(ctx, msg))); err != nil {
			logger.Warn("Worker: writing reply to %s: %v", conn.RemoteAddr(), err)
			return
		}
	}
}

// process returns the rewritten document, or the original html when nothing
// applies or the URL cannot be parsed.
func (s *Server) process(ctx context.Context, msg Message) string {
	rc, err := interceptor.NewRequestContext("GET", msg.URL, 200, nil)
	if err != nil {
		logger.Warn("Worker: %v", err)
		return msg.HTML
	}
	rc.CSPNonce = msg.CSPNonce

	out, ok := s.rewriter.Rewrite(pipeline.WithResponseID(ctx, uuid.NewString()), rc, msg.HTML)
	if !ok {
		return msg.HTML
	}
	return out
}
