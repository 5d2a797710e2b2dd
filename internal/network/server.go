package network

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Kingmotro/pexel-platform/internal/config"
)

type Options struct {
	ListenAddr       string
	Secret           string
	DrainInterval    time.Duration
	WriteTimeout     time.Duration
	HandshakeTimeout time.Duration
	MaxFrameSize     int
	// TLS secures every accepted connection. Nil serves plain TCP, which
	// only tests use.
	TLS *tls.Config
}

// OptionsFromConfig maps the network section of cfg; TLS is left to the caller.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ListenAddr:       cfg.Network.ListenAddr,
		Secret:           cfg.Network.Secret,
		DrainInterval:    cfg.Network.DrainInterval,
		WriteTimeout:     cfg.Network.WriteTimeout,
		HandshakeTimeout: cfg.Network.HandshakeTimeout,
		MaxFrameSize:     cfg.Network.MaxFrameSize,
	}
}

// Server is the master side of the link: it accepts slaves, authenticates
// them and owns one mailbox per registered slave.
type Server struct {
	opts       Options
	log        *zap.Logger
	registry   *Registry
	dispatcher *Dispatcher

	mu       sync.Mutex
	listener net.Listener
	conns    map[*Conn]struct{}
	running  bool
	ctx      context.Context
	cancel   context.CancelFunc

	stop      chan struct{}
	drainDone chan struct{}
	wg        sync.WaitGroup
}

func NewServer(log *zap.Logger, opts Options, handler Handler) *Server {
	log = log.Named("master")
	registry := NewRegistry(log)
	return &Server{
		opts:       opts,
		log:        log,
		registry:   registry,
		dispatcher: NewDispatcher(log, registry, handler, opts.Secret),
		conns:      make(map[*Conn]struct{}),
	}
}

func (s *Server) Name() string { return "master-transport" }

// Start begins listening and returns immediately.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("server already started")
	}

	var (
		listener net.Listener
		err      error
	)
	listener, err = net.Listen("tcp", s.opts.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.ListenAddr, err)
	}
	if s.opts.TLS != nil {
		listener = tls.NewListener(listener, s.opts.TLS)
	}

	s.listener = listener
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.stop = make(chan struct{})
	s.drainDone = make(chan struct{})
	s.running = true

	s.log.Info("master listening", zap.Stringer("addr", listener.Addr()), zap.Bool("tls", s.opts.TLS != nil))

	s.wg.Add(1)
	go s.acceptLoop(listener)
	go func() {
		defer close(s.drainDone)
		drainLoop(s.opts.DrainInterval, s.stop, s.drain)
	}()
	return nil
}

// Stop flushes what is queued, then closes every connection and waits for
// all background goroutines.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	listener := s.listener
	s.mu.Unlock()

	err := listener.Close()
	close(s.stop)
	<-s.drainDone

	for _, b := range s.registry.closeAll() {
		s.dispatcher.peerLeft(b.Info)
	}

	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	s.log.Info("master stopped")
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// Addr is the bound listen address, nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) Registry() *Registry { return s.registry }

// Send queues payload for peerName at DefaultPriority.
func (s *Server) Send(peerName string, payload []byte) error {
	return s.SendPriority(peerName, payload, DefaultPriority)
}

func (s *Server) SendPriority(peerName string, payload []byte, priority int) error {
	m, err := s.registry.mailbox(peerName)
	if err != nil {
		return err
	}
	return m.Enqueue(payload, priority)
}

// CloseConnection tears down peerName, discarding and logging whatever is
// still queued for it.
func (s *Server) CloseConnection(peerName string) {
	s.log.Info("closing connection", zap.String("peer", peerName))
	if b := s.registry.Unregister(peerName); b != nil {
		s.dispatcher.peerLeft(b.Info)
	}
}

func (s *Server) acceptLoop(listener net.Listener) {
	defer s.wg.Done()
	var backoff time.Duration
	for {
		raw, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			backoff = min(max(2*backoff, 5*time.Millisecond), time.Second)
			s.log.Warn("failed to accept connection", zap.Error(err), zap.Duration("retry_in", backoff))
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		conn := newConn(raw, s.opts.WriteTimeout, s.opts.MaxFrameSize)
		if !s.track(conn) {
			conn.Close()
			return
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) track(conn *Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn *Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

func (s *Server) handleConn(conn *Conn) {
	defer s.wg.Done()
	defer s.untrack(conn)
	defer conn.Close()

	log := s.log.With(zap.String("conn", conn.ID()), zap.Stringer("remote", conn.RemoteAddr()))
	log.Debug("new connection")

	if err := secure(s.ctx, conn.raw, s.opts.HandshakeTimeout); err != nil {
		log.Warn("closing connection", zap.Error(err))
		return
	}
	if s.opts.HandshakeTimeout > 0 {
		conn.raw.SetReadDeadline(time.Now().Add(s.opts.HandshakeTimeout))
	}

	defer s.dispatcher.connClosed(conn)
	for {
		frame, err := conn.readFrame()
		if err != nil {
			s.logReadError(log, conn, err)
			return
		}

		wasRegistered := conn.registered()
		if err := s.dispatcher.Dispatch(conn, frame); err != nil {
			log.Warn("closing connection", zap.Error(err))
			return
		}
		if !wasRegistered && conn.registered() {
			conn.raw.SetReadDeadline(time.Time{})
		}
	}
}

func (s *Server) logReadError(log *zap.Logger, conn *Conn, err error) {
	select {
	case <-conn.Done():
		log.Debug("connection closed locally")
		return
	default:
	}
	switch {
	case errors.Is(err, io.EOF):
		log.Debug("connection closed by peer")
	case errors.Is(err, ErrDecode):
		log.Warn("malformed frame, closing connection", zap.Error(err))
	default:
		log.Warn("read failed, closing connection", zap.Error(err))
	}
}

// drain flushes every non-empty mailbox once.
func (s *Server) drain() {
	for _, ref := range s.registry.mailboxes() {
		if ref.mailbox.Len() == 0 {
			continue
		}
		written, discarded, err := ref.mailbox.flush()
		if err == nil {
			continue
		}
		s.log.Warn("delivery failed, closing connection",
			zap.String("peer", ref.name),
			zap.String("conn", ref.conn.ID()),
			zap.Int("written", written),
			zap.Int("discarded", discarded),
			zap.Error(err))
		s.dispatcher.connClosed(ref.conn)
	}
}
