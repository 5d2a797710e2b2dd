package network

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Kingmotro/pexel-platform/internal/utils"
)

type connState int32

const (
	stateUnauthenticated connState = iota
	stateRegistered
	stateEvicted
	stateClosed
)

// Conn is a live, secured, framed stream with one peer. Reads happen on a
// single goroutine; writes are serialized and each frame goes out in one
// Write call so a concurrent Close never leaves half a frame on the wire.
type Conn struct {
	id           string
	raw          net.Conn
	writeTimeout time.Duration
	maxFrameSize int

	writeMu sync.Mutex
	writes  bool // false once closed, guarded by writeMu

	state     atomic.Int32
	acked     atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

func newConn(raw net.Conn, writeTimeout time.Duration, maxFrameSize int) *Conn {
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &Conn{
		id:           utils.ShortID(),
		raw:          raw,
		writeTimeout: writeTimeout,
		maxFrameSize: maxFrameSize,
		writes:       true,
		done:         make(chan struct{}),
	}
}

func (c *Conn) ID() string { return c.id }

func (c *Conn) RemoteAddr() net.Addr { return c.raw.RemoteAddr() }

// Done is closed once the connection is closed.
func (c *Conn) Done() <-chan struct{} { return c.done }

func (c *Conn) registered() bool { return connState(c.state.Load()) == stateRegistered }

func (c *Conn) markRegistered() bool {
	return c.state.CompareAndSwap(int32(stateUnauthenticated), int32(stateRegistered))
}

func (c *Conn) markEvicted() {
	c.state.CompareAndSwap(int32(stateRegistered), int32(stateEvicted))
}

func (c *Conn) evicted() bool { return connState(c.state.Load()) == stateEvicted }

// markAcked records that the registration ack is on the wire. Queued
// payloads are not drained before that.
func (c *Conn) markAcked() { c.acked.Store(true) }

func (c *Conn) ackSent() bool { return c.acked.Load() }

// WriteFrame writes one frame, bounded by the write timeout.
func (c *Conn) WriteFrame(t PacketType, payload []byte) error {
	frame := EncodeFrame(t, payload)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if !c.writes {
		return ErrClosed
	}

	if c.writeTimeout > 0 {
		if err := c.raw.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return fmt.Errorf("%w: set deadline: %w", ErrDelivery, err)
		}
	}
	if _, err := c.raw.Write(frame); err != nil {
		return fmt.Errorf("%w: %w", ErrDelivery, err)
	}
	return nil
}

func (c *Conn) readFrame() (Frame, error) {
	return ReadFrame(c.raw, c.maxFrameSize)
}

// Close waits for an in-flight write to finish, then closes the stream.
// Safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.state.Store(int32(stateClosed))
		c.writeMu.Lock()
		c.writes = false
		err = c.raw.Close()
		c.writeMu.Unlock()
		close(c.done)
	})
	return err
}
