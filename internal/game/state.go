package game

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Kingmotro/pexel-platform/internal/protocol"
)

// Index holds every game registered by connected slaves.
type Index struct {
	mu      sync.RWMutex
	games   map[uuid.UUID]*Game
	bySlave map[string]map[uuid.UUID]struct{}
	now     func() time.Time
}

func NewIndex() *Index {
	return &Index{
		games:   make(map[uuid.UUID]*Game),
		bySlave: make(map[string]map[uuid.UUID]struct{}),
		now:     time.Now,
	}
}

// Register adds a game in WAITING. A repeated registration of the same
// uuid replaces the previous entry.
func (x *Index) Register(slave string, id uuid.UUID, minigame, tag string) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if old, ok := x.games[id]; ok {
		x.unlinkLocked(old.Slave, id)
	}
	now := x.now()
	x.games[id] = &Game{
		UUID:         id,
		Slave:        slave,
		Minigame:     minigame,
		Tag:          tag,
		State:        protocol.StateWaiting,
		StateName:    protocol.StateWaiting.String(),
		RegisteredAt: now,
		UpdatedAt:    now,
	}
	if x.bySlave[slave] == nil {
		x.bySlave[slave] = make(map[uuid.UUID]struct{})
	}
	x.bySlave[slave][id] = struct{}{}
}

// UpdateState records a transition. It reports false for unknown games
// and for games owned by another slave.
func (x *Index) UpdateState(slave string, id uuid.UUID, state protocol.GameState) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	g, ok := x.games[id]
	if !ok || g.Slave != slave {
		return false
	}
	g.State = state
	g.StateName = state.String()
	g.UpdatedAt = x.now()
	return true
}

// RemoveSlave drops every game of slave and returns how many there were.
func (x *Index) RemoveSlave(slave string) int {
	x.mu.Lock()
	defer x.mu.Unlock()
	ids := x.bySlave[slave]
	for id := range ids {
		delete(x.games, id)
	}
	delete(x.bySlave, slave)
	return len(ids)
}

func (x *Index) unlinkLocked(slave string, id uuid.UUID) {
	if ids, ok := x.bySlave[slave]; ok {
		delete(ids, id)
		if len(ids) == 0 {
			delete(x.bySlave, slave)
		}
	}
}

func (x *Index) Get(id uuid.UUID) (Game, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	g, ok := x.games[id]
	if !ok {
		return Game{}, false
	}
	return *g, true
}

// Games returns a snapshot ordered by registration time.
func (x *Index) Games() []Game {
	x.mu.RLock()
	out := make([]Game, 0, len(x.games))
	for _, g := range x.games {
		out = append(out, *g)
	}
	x.mu.RUnlock()
	sortGames(out)
	return out
}

// Joinable lists games of minigame that still accept players.
func (x *Index) Joinable(minigame string) []Game {
	x.mu.RLock()
	var out []Game
	for _, g := range x.games {
		if g.Minigame == minigame && g.joinable() {
			out = append(out, *g)
		}
	}
	x.mu.RUnlock()
	sortGames(out)
	return out
}

func sortGames(gs []Game) {
	sort.Slice(gs, func(i, j int) bool {
		if !gs[i].RegisteredAt.Equal(gs[j].RegisteredAt) {
			return gs[i].RegisteredAt.Before(gs[j].RegisteredAt)
		}
		return gs[i].UUID.String() < gs[j].UUID.String()
	})
}
