package jdwp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sasha-s/go-deadlock"
)

// Server accepts debugger connections on TCP and serves one session at
// a time. Connections arriving while a session is attached are closed.
type Server struct {
	bridge      *Bridge
	heapReports time.Duration

	mu      deadlock.Mutex
	ln      net.Listener
	current *Session
	wg      sync.WaitGroup
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithHeapReports makes sessions push heap info after collections,
// polling at interval.
func WithHeapReports(interval time.Duration) ServerOption {
	return func(s *Server) { s.heapReports = interval }
}

// NewServer creates a server for b.
func NewServer(b *Bridge, opts ...ServerOption) *Server {
	s := &Server{bridge: b}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Listen binds addr, "host:port" or ":port".
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("jdwp listen %s: %w", addr, err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	log.Infof("debugger listening on %s", ln.Addr())
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Session returns the attached session, or nil.
func (s *Server) Session() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// ListenAndServe binds addr and serves until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	if err := s.Listen(addr); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Serve accepts connections until ctx is canceled, then closes the
// listener and the attached session and waits for it to finish.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return errors.New("jdwp: Serve called before Listen")
	}
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()
	defer s.wg.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("jdwp accept: %w", err)
		}
		sess := NewSession(conn, s.bridge)
		sess.heapReports = s.heapReports

		s.mu.Lock()
		if s.current != nil {
			s.mu.Unlock()
			log.Warningf("rejecting debugger from %s: %s already attached", sess.Remote, s.current)
			conn.Close()
			continue
		}
		s.current = sess
		s.mu.Unlock()

		log.Infof("debugger attached from %s (%s)", sess.Remote, sess.ID)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := sess.Serve(ctx); err != nil {
				log.Warningf("%s", err)
			}
			s.mu.Lock()
			s.current = nil
			s.mu.Unlock()
		}()
	}
}
