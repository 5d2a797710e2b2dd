package network

import (
	"bytes"
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
	"github.com/Kingmotro/pexel-platform/internal/utils"
)

type ClientOptions struct {
	MasterAddr       string
	Name             string
	Secret           string
	DrainInterval    time.Duration
	WriteTimeout     time.Duration
	HandshakeTimeout time.Duration
	MaxFrameSize     int
	// TLS is used to dial the master. Nil dials plain TCP.
	TLS *tls.Config
}

func ClientOptionsFromConfig(cfg *config.Config) ClientOptions {
	return ClientOptions{
		MasterAddr:       cfg.Network.MasterAddr,
		Name:             cfg.Node.Name,
		Secret:           cfg.Network.Secret,
		DrainInterval:    cfg.Network.DrainInterval,
		WriteTimeout:     cfg.Network.WriteTimeout,
		HandshakeTimeout: cfg.Network.HandshakeTimeout,
		MaxFrameSize:     cfg.Network.MaxFrameSize,
	}
}

// Client is a slave's link to the master. Messages sent before Start are
// held in the mailbox and flushed once the link is registered.
type Client struct {
	opts    ClientOptions
	log     *zap.Logger
	handler Handler
	master  *PeerInfo
	mailbox *Mailbox

	mu      sync.Mutex
	conn    *Conn
	started bool
	stopped bool

	stop      chan struct{}
	drainDone chan struct{}
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewClient builds a link; handler may be nil when the slave ignores
// inbound payloads.
func NewClient(log *zap.Logger, opts ClientOptions, handler Handler) *Client {
	if handler == nil {
		handler = HandlerFunc(func(*PeerInfo, []byte) {})
	}
	return &Client{
		opts:      opts,
		log:       log.Named("slave").With(zap.String("peer", opts.Name)),
		handler:   handler,
		master:    NewPeerInfo("master", RoleMaster),
		mailbox:   newMailbox(nil),
		stop:      make(chan struct{}),
		drainDone: make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (c *Client) Name() string { return "slave-link" }

// Start dials the master, registers and waits for the acknowledgement.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started || c.stopped {
		return fmt.Errorf("slave link already used")
	}

	conn, err := c.connect(ctx)
	if err != nil {
		return err
	}
	c.master.SetAttr("ip", utils.RemoteHost(conn.RemoteAddr()))
	c.conn = conn
	c.mailbox.conn = conn
	c.started = true

	c.log.Info("registered with master", zap.String("master", c.opts.MasterAddr), zap.String("conn", conn.ID()))

	c.wg.Add(1)
	go c.readLoop(conn)
	go func() {
		defer close(c.drainDone)
		drainLoop(c.opts.DrainInterval, c.stop, c.drain)
	}()
	return nil
}

func (c *Client) connect(ctx context.Context) (*Conn, error) {
	if c.opts.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.HandshakeTimeout)
		defer cancel()
	}

	var (
		raw net.Conn
		err error
	)
	if c.opts.TLS != nil {
		d := &tls.Dialer{Config: c.opts.TLS}
		raw, err = d.DialContext(ctx, "tcp", c.opts.MasterAddr)
	} else {
		var d net.Dialer
		raw, err = d.DialContext(ctx, "tcp", c.opts.MasterAddr)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrTransport, c.opts.MasterAddr, err)
	}

	conn := newConn(raw, c.opts.WriteTimeout, c.opts.MaxFrameSize)
	if err := c.register(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func (c *Client) register(ctx context.Context, conn *Conn) error {
	if err := secure(ctx, conn.raw, 0); err != nil {
		return err
	}
	if err := conn.WriteFrame(PacketRegister, RegistrationPayload(c.opts.Secret, c.opts.Name)); err != nil {
		return err
	}

	if deadline, ok := ctx.Deadline(); ok {
		conn.raw.SetReadDeadline(deadline)
		defer conn.raw.SetReadDeadline(time.Time{})
	}
	frame, err := conn.readFrame()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: master closed the connection", ErrHandshake)
		}
		return fmt.Errorf("%w: awaiting acknowledgement: %w", ErrHandshake, err)
	}
	if frame.Type != PacketRegistered || !bytes.Equal(frame.Payload, []byte(c.opts.Name)) {
		return fmt.Errorf("%w: unexpected reply %s", ErrHandshake, frame.Type)
	}
	conn.markRegistered()
	return nil
}

// Done is closed when the link to the master is lost or stopped.
func (c *Client) Done() <-chan struct{} { return c.done }

// Send queues payload for the master at DefaultPriority.
func (c *Client) Send(payload []byte) error {
	return c.SendPriority(payload, DefaultPriority)
}

func (c *Client) SendPriority(payload []byte, priority int) error {
	return c.mailbox.Enqueue(payload, priority)
}

func (c *Client) readLoop(conn *Conn) {
	defer c.wg.Done()
	defer close(c.done)
	defer conn.Close()

	for {
		frame, err := conn.readFrame()
		if err != nil {
			select {
			case <-conn.Done():
			default:
				if errors.Is(err, io.EOF) {
					c.log.Warn("master closed the connection")
				} else {
					c.log.Warn("read from master failed", zap.Error(err))
				}
			}
			return
		}
		if frame.Type != PacketPayload {
			c.log.Warn("unexpected frame from master, closing", zap.Stringer("type", frame.Type))
			return
		}
		c.handler.OnReceive(c.master, frame.Payload)
	}
}

func (c *Client) drain() {
	if c.mailbox.Len() == 0 {
		return
	}
	written, discarded, err := c.mailbox.flush()
	if err != nil {
		c.log.Warn("delivery to master failed, closing link",
			zap.Int("written", written),
			zap.Int("discarded", discarded),
			zap.Error(err))
		c.conn.Close()
	}
}

// Stop flushes the mailbox and closes the link.
func (c *Client) Stop() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	started := c.started
	c.mu.Unlock()

	if started {
		close(c.stop)
		<-c.drainDone
		c.conn.Close()
		c.wg.Wait()
	} else {
		close(c.done)
	}
	if n := c.mailbox.discard(); n > 0 {
		c.log.Warn("discarding queued messages", zap.Int("discarded", n))
	}
	c.log.Info("slave link stopped")
	return nil
}
