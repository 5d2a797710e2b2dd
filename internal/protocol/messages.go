// Package protocol holds the closed message vocabulary exchanged between the
// master and its slaves. Messages are encoded as protobuf wire format without
// generated code: field 1 carries the Kind, the rest are message specific.
package protocol

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrMalformed   = errors.New("malformed message")
	ErrUnknownKind = errors.New("unknown message kind")
)

type Kind uint8

const (
	KindRegistration Kind = iota + 1
	KindRegisterGame
	KindGameStateChanged
)

func (k Kind) String() string {
	switch k {
	case KindRegistration:
		return "registration"
	case KindRegisterGame:
		return "register_game"
	case KindGameStateChanged:
		return "game_state_changed"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// GameState is the lifecycle state of an arena as seen on the wire.
type GameState uint8

const (
	StateWaiting GameState = iota
	StateCountdown
	StateRunning
	StateEnding
)

func (s GameState) String() string {
	switch s {
	case StateWaiting:
		return "WAITING"
	case StateCountdown:
		return "COUNTDOWN"
	case StateRunning:
		return "RUNNING"
	case StateEnding:
		return "ENDING"
	default:
		return fmt.Sprintf("STATE(%d)", uint8(s))
	}
}

type Message interface {
	Kind() Kind
	appendFields(b []byte) []byte
}

// Registration is the first frame a slave sends on a fresh connection.
type Registration struct {
	Secret []byte
	Name   string
}

// RegisterGame announces a new arena to the master's matchmaking index.
type RegisterGame struct {
	GameUUID uuid.UUID
	Minigame string
	Tag      string
}

// GameStateChanged mirrors an arena transition to the master.
type GameStateChanged struct {
	GameUUID uuid.UUID
	State    GameState
}

func (*Registration) Kind() Kind     { return KindRegistration }
func (*RegisterGame) Kind() Kind     { return KindRegisterGame }
func (*GameStateChanged) Kind() Kind { return KindGameStateChanged }
