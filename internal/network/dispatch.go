package network

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Kingmotro/pexel-platform/internal/utils"
)

// Handler receives every payload from a registered peer. It is called on
// the peer's read goroutine and must not block on network I/O; replies go
// through the mailbox.
type Handler interface {
	OnReceive(peer *PeerInfo, payload []byte)
}

type HandlerFunc func(peer *PeerInfo, payload []byte)

func (f HandlerFunc) OnReceive(peer *PeerInfo, payload []byte) { f(peer, payload) }

// PeerObserver is implemented by handlers that track peers joining and
// leaving the registry.
type PeerObserver interface {
	OnPeerJoined(peer *PeerInfo)
	OnPeerLeft(peer *PeerInfo)
}

// Dispatcher routes inbound frames: registered connections go straight to
// the handler, anything else must be a valid registration.
type Dispatcher struct {
	log      *zap.Logger
	registry *Registry
	handler  Handler
	secret   string
}

func NewDispatcher(log *zap.Logger, registry *Registry, handler Handler, secret string) *Dispatcher {
	return &Dispatcher{
		log:      log.Named("dispatch"),
		registry: registry,
		handler:  handler,
		secret:   secret,
	}
}

// Dispatch handles one frame. A non-nil error means the connection must be
// closed.
func (d *Dispatcher) Dispatch(conn *Conn, frame Frame) error {
	if conn.registered() {
		info, ok := d.registry.InfoFor(conn)
		if !ok {
			return ErrEvicted
		}
		d.log.Debug("frame received",
			zap.String("peer", info.Name()),
			zap.Stringer("type", frame.Type),
			zap.Int("size", len(frame.Payload)))
		d.handler.OnReceive(info, frame.Payload)
		return nil
	}
	if conn.evicted() {
		return ErrEvicted
	}
	return d.handshake(conn, frame)
}

func (d *Dispatcher) handshake(conn *Conn, frame Frame) error {
	if frame.Type != PacketRegister {
		return fmt.Errorf("%w: first frame is %s", ErrHandshake, frame.Type)
	}
	reg, err := decodeRegistration(frame.Payload)
	if err != nil {
		return err
	}
	if !secretMatches(reg, d.secret) {
		return fmt.Errorf("%w: bad secret from %q", ErrHandshake, reg.Name)
	}

	info := NewPeerInfo(reg.Name, RoleSlave)
	info.SetAttr("ip", utils.RemoteHost(conn.RemoteAddr()))

	evicted, err := d.registry.Register(reg.Name, conn, info)
	if err != nil {
		return err
	}
	if evicted != nil {
		d.peerLeft(evicted.Info)
	}

	if err := conn.WriteFrame(PacketRegistered, []byte(reg.Name)); err != nil {
		d.registry.unregisterConn(conn)
		d.peerLeft(info)
		return err
	}
	conn.markAcked()

	d.log.Info("registered new slave",
		zap.String("peer", reg.Name),
		zap.String("conn", conn.ID()),
		zap.Stringer("remote", conn.RemoteAddr()))
	if o, ok := d.handler.(PeerObserver); ok {
		o.OnPeerJoined(info)
	}
	return nil
}

// connClosed is called once the read loop of conn ends.
func (d *Dispatcher) connClosed(conn *Conn) {
	if b := d.registry.unregisterConn(conn); b != nil {
		d.log.Info("slave disconnected", zap.String("peer", b.Info.Name()), zap.String("conn", conn.ID()))
		d.peerLeft(b.Info)
	}
}

func (d *Dispatcher) peerLeft(info *PeerInfo) {
	if o, ok := d.handler.(PeerObserver); ok {
		o.OnPeerLeft(info)
	}
}
