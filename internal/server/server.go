// Package server owns the two voice transports and every live session.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"golos/server/internal/control"
	"golos/server/internal/core"
	"golos/server/internal/media"
	"golos/server/internal/metrics"
)

// Default listen addresses.
const (
	DefaultControlAddr = ":8888"
	DefaultMediaAddr   = ":8889"
)

// Config holds the listen addresses for the two transports.
type Config struct {
	ControlAddr string // TCP
	MediaAddr   string // UDP
}

func (c Config) withDefaults() Config {
	if c.ControlAddr == "" {
		c.ControlAddr = DefaultControlAddr
	}
	if c.MediaAddr == "" {
		c.MediaAddr = DefaultMediaAddr
	}
	return c
}

// Server binds the control listener and the media socket, runs the accept
// and forward loops, and tracks live sessions for shutdown. Servers are
// self-contained: tests can run several in one process.
type Server struct {
	cfg      Config
	reg      *core.Registry
	counters *metrics.Counters
	log      *slog.Logger

	ln        net.Listener
	mediaConn *net.UDPConn

	mu       sync.Mutex
	sessions map[string]*control.Session
	closing  bool

	wg sync.WaitGroup
}

// New creates an unstarted server.
func New(cfg Config, reg *core.Registry, counters *metrics.Counters, log *slog.Logger) *Server {
	return &Server{
		cfg:      cfg.withDefaults(),
		reg:      reg,
		counters: counters,
		log:      log,
		sessions: make(map[string]*control.Session),
	}
}

// Start binds both transports and launches the accept and forward loops.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.ControlAddr)
	if err != nil {
		return fmt.Errorf("listen control: %w", err)
	}
	udpAddr, err := net.ResolveUDPAddr("udp", s.cfg.MediaAddr)
	if err != nil {
		ln.Close()
		return fmt.Errorf("resolve media addr: %w", err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		ln.Close()
		return fmt.Errorf("listen media: %w", err)
	}

	s.ln = ln
	s.mediaConn = conn
	forwarder := media.NewForwarder(conn, s.reg, s.counters, s.log)

	s.log.Info("listening", "control", ln.Addr(), "media", conn.LocalAddr())

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.acceptLoop()
	}()
	go func() {
		defer s.wg.Done()
		forwarder.Run()
	}()
	return nil
}

// Run starts the server and blocks until ctx is canceled, then stops it.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return nil
}

// Stop closes the acceptor, then every control connection, then the media
// socket, and waits for all loops to drain. Safe to call more than once.
func (s *Server) Stop() {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return
	}
	s.closing = true
	open := make([]*control.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		open = append(open, sess)
	}
	s.mu.Unlock()

	if s.ln != nil {
		_ = s.ln.Close()
	}
	for _, sess := range open {
		_ = sess.Close()
	}
	if s.mediaConn != nil {
		_ = s.mediaConn.Close()
	}
	s.wg.Wait()
	s.log.Info("transports closed, sessions drained")
}

// ControlAddr returns the bound control listener address.
func (s *Server) ControlAddr() net.Addr { return s.ln.Addr() }

// MediaAddr returns the bound media socket address.
func (s *Server) MediaAddr() net.Addr { return s.mediaConn.LocalAddr() }

func (s *Server) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Debug("accept failed", "err", err)
			continue
		}

		sess := control.NewSession(conn, s.reg, s.counters, s.log)

		s.mu.Lock()
		if s.closing {
			s.mu.Unlock()
			conn.Close()
			continue
		}
		s.sessions[sess.ID()] = sess
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			sess.Serve()
			s.mu.Lock()
			delete(s.sessions, sess.ID())
			s.mu.Unlock()
		}()
	}
}
