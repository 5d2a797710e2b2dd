package game

import (
	"time"

	"github.com/google/uuid"

	"github.com/Kingmotro/pexel-platform/internal/protocol"
)

// Game is the master's view of one arena hosted by a slave.
type Game struct {
	UUID         uuid.UUID          `json:"uuid"`
	Slave        string             `json:"slave"`
	Minigame     string             `json:"minigame"`
	Tag          string             `json:"tag,omitempty"`
	State        protocol.GameState `json:"-"`
	StateName    string             `json:"state"`
	RegisteredAt time.Time          `json:"registered_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

func (g Game) joinable() bool {
	return g.State == protocol.StateWaiting || g.State == protocol.StateCountdown
}
