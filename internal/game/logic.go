package game

import (
	"go.uber.org/zap"

	"github.com/Kingmotro/pexel-platform/internal/network"
	"github.com/Kingmotro/pexel-platform/internal/protocol"
)

// Master is the master's application handler: it feeds protocol messages
// from slaves into the Index.
type Master struct {
	log   *zap.Logger
	index *Index
}

func NewMaster(log *zap.Logger, index *Index) *Master {
	return &Master{log: log.Named("matchmaking"), index: index}
}

func (m *Master) Index() *Index { return m.index }

func (m *Master) OnReceive(peer *network.PeerInfo, payload []byte) {
	msg, err := protocol.Unmarshal(payload)
	if err != nil {
		m.log.Warn("dropping undecodable message", zap.String("peer", peer.Name()), zap.Error(err))
		return
	}

	switch msg := msg.(type) {
	case *protocol.RegisterGame:
		m.index.Register(peer.Name(), msg.GameUUID, msg.Minigame, msg.Tag)
		m.log.Info("game registered",
			zap.String("peer", peer.Name()),
			zap.Stringer("game", msg.GameUUID),
			zap.String("minigame", msg.Minigame))

	case *protocol.GameStateChanged:
		if !m.index.UpdateState(peer.Name(), msg.GameUUID, msg.State) {
			m.log.Warn("state change for unknown game",
				zap.String("peer", peer.Name()),
				zap.Stringer("game", msg.GameUUID),
				zap.Stringer("state", msg.State))
			return
		}
		m.log.Debug("game state changed",
			zap.String("peer", peer.Name()),
			zap.Stringer("game", msg.GameUUID),
			zap.Stringer("state", msg.State))

	default:
		m.log.Warn("unexpected message from slave", zap.String("peer", peer.Name()), zap.Stringer("kind", msg.Kind()))
	}
}

func (m *Master) OnPeerJoined(peer *network.PeerInfo) {
	ip, _ := peer.Attr("ip")
	m.log.Info("slave joined", zap.String("peer", peer.Name()), zap.String("ip", ip))
}

func (m *Master) OnPeerLeft(peer *network.PeerInfo) {
	n := m.index.RemoveSlave(peer.Name())
	m.log.Info("slave left", zap.String("peer", peer.Name()), zap.Int("games_removed", n))
}
