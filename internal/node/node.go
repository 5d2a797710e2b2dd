package node

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"
)

type Service interface {
	Start(ctx context.Context) error
	Stop() error
	Name() string
}

// Node runs a set of services for one master or slave process.
type Node struct {
	name   string
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	services []Service
	started  []Service
	stopOnce sync.Once
}

func New(name string, log *zap.Logger) *Node {
	ctx, cancel := context.WithCancel(context.Background())
	return &Node{
		name:   name,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (n *Node) RegisterService(s Service) {
	n.mu.Lock()
	n.services = append(n.services, s)
	n.mu.Unlock()
}

// Start starts services in registration order. If one fails, the ones
// already running are stopped again.
func (n *Node) Start() error {
	n.log.Info("Starting node", zap.String("name", n.name))

	n.mu.Lock()
	services := append([]Service(nil), n.services...)
	n.mu.Unlock()

	for _, s := range services {
		if err := s.Start(n.ctx); err != nil {
			n.Stop()
			return fmt.Errorf("failed to start service %s: %w", s.Name(), err)
		}
		n.mu.Lock()
		n.started = append(n.started, s)
		n.mu.Unlock()
		n.log.Info("Started service", zap.String("name", s.Name()))
	}

	go n.handleInterrupt()
	return nil
}

func (n *Node) handleInterrupt() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	select {
	case <-sigCh:
		n.log.Info("Shutting down node...")
		n.Stop()
	case <-n.ctx.Done():
	}
}

// Stop stops started services in reverse order. Safe to call more than once.
func (n *Node) Stop() {
	n.stopOnce.Do(func() {
		n.mu.Lock()
		started := n.started
		n.started = nil
		n.mu.Unlock()

		for i := len(started) - 1; i >= 0; i-- {
			s := started[i]
			n.log.Info("Stopping service", zap.String("name", s.Name()))
			if err := s.Stop(); err != nil {
				n.log.Warn("Error stopping service", zap.String("name", s.Name()), zap.Error(err))
			}
		}
		n.cancel()

		n.log.Info("Node shutdown complete")
	})
}

func (n *Node) Context() context.Context {
	return n.ctx
}
