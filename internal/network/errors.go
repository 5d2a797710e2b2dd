package network

import "errors"

// Failure classes. Every per-connection failure closes that connection only.
var (
	ErrHandshake   = errors.New("handshake failure")
	ErrTransport   = errors.New("transport failure")
	ErrDelivery    = errors.New("delivery failure")
	ErrDecode      = errors.New("protocol decode error")
	ErrUnknownPeer = errors.New("unknown peer")
	ErrEvicted     = errors.New("connection evicted by newer registration")
	ErrClosed      = errors.New("connection closed")
)
