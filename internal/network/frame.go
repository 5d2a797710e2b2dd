package network

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

type PacketType uint32

const (
	// PacketRegister carries a protocol.Registration; only valid as the
	// first frame of a connection.
	PacketRegister PacketType = iota
	// PacketRegistered is the master's reply to a successful handshake.
	PacketRegistered
	// PacketPayload carries an opaque application payload.
	PacketPayload
)

func (t PacketType) String() string {
	switch t {
	case PacketRegister:
		return "register"
	case PacketRegistered:
		return "registered"
	case PacketPayload:
		return "payload"
	default:
		return fmt.Sprintf("packet(%d)", uint32(t))
	}
}

const (
	headerSize = 4
	typeSize   = 4

	DefaultMaxFrameSize = 1 << 20
)

type Frame struct {
	Type    PacketType
	Payload []byte
}

// EncodeFrame lays out [4-byte length][4-byte type][payload], length
// covering everything after itself.
func EncodeFrame(t PacketType, payload []byte) []byte {
	fullMsg := make([]byte, headerSize+typeSize+len(payload))
	binary.BigEndian.PutUint32(fullMsg[0:4], uint32(typeSize+len(payload)))
	binary.BigEndian.PutUint32(fullMsg[4:8], uint32(t))
	copy(fullMsg[8:], payload)
	return fullMsg
}

// ReadFrame reads one frame. Zero length frames are skipped. io.EOF is
// returned untouched on a clean close between frames; anything malformed
// wraps ErrDecode.
func ReadFrame(r io.Reader, maxSize int) (Frame, error) {
	for {
		var header [headerSize]byte
		if _, err := io.ReadFull(r, header[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return Frame{}, io.EOF
			}
			return Frame{}, fmt.Errorf("%w: reading length: %w", ErrTransport, err)
		}

		msgLen := binary.BigEndian.Uint32(header[:])
		if msgLen == 0 {
			continue
		}
		if msgLen < typeSize {
			return Frame{}, fmt.Errorf("%w: frame of %d bytes has no type", ErrDecode, msgLen)
		}
		if maxSize > 0 && msgLen > uint32(maxSize) {
			return Frame{}, fmt.Errorf("%w: frame of %d bytes exceeds limit %d", ErrDecode, msgLen, maxSize)
		}

		msgData := make([]byte, msgLen)
		if _, err := io.ReadFull(r, msgData); err != nil {
			return Frame{}, fmt.Errorf("%w: truncated frame: %w", ErrDecode, err)
		}

		packetType := PacketType(binary.BigEndian.Uint32(msgData[:typeSize]))
		if packetType > PacketPayload {
			return Frame{}, fmt.Errorf("%w: unknown packet type %d", ErrDecode, uint32(packetType))
		}
		return Frame{Type: packetType, Payload: msgData[typeSize:]}, nil
	}
}
