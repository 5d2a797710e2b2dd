// Package arena models a hosted game instance and mirrors its lifecycle to
// the master.
package arena

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Kingmotro/pexel-platform/internal/protocol"
)

var (
	ErrRetired          = errors.New("arena is retired")
	ErrNotCountingDown  = errors.New("arena is not counting down")
	ErrCountdownBlocked = errors.New("countdown can only start while waiting")
	ErrNeedsCountdown   = errors.New("COUNTDOWN is entered through StartCountdown")
)

// Link delivers payloads to the master. network.Client satisfies it.
type Link interface {
	Send(payload []byte) error
}

const DefaultTickInterval = time.Second

// Arena is one game instance. Every transition is sent to the master while
// the arena lock is held and before the new state is stored, so no reader
// sees a state the master has not been told about, and notifications for
// one arena leave in transition order.
type Arena struct {
	log       *zap.Logger
	link      Link
	scheduler Scheduler
	interval  time.Duration
	onTick    func(remaining int)

	id       uuid.UUID
	region   CuboidRegion
	minigame string

	mu        sync.RWMutex
	tag       string
	state     protocol.GameState
	countdown int
	task      Task
	gen       uint64
}

type Option func(*Arena)

func WithScheduler(s Scheduler) Option { return func(a *Arena) { a.scheduler = s } }

func WithTickInterval(d time.Duration) Option { return func(a *Arena) { a.interval = d } }

func WithTag(tag string) Option { return func(a *Arena) { a.tag = tag } }

func WithLogger(log *zap.Logger) Option { return func(a *Arena) { a.log = log } }

// WithOnTick installs a hook run on every countdown tick with the seconds
// left. It runs with the arena locked and must not call back into it.
func WithOnTick(fn func(remaining int)) Option { return func(a *Arena) { a.onTick = fn } }

// New creates an arena in WAITING and registers it with the master's
// matchmaking index before returning.
func New(link Link, region CuboidRegion, minigame string, opts ...Option) (*Arena, error) {
	a := &Arena{
		log:       zap.NewNop(),
		link:      link,
		scheduler: TimeScheduler{},
		interval:  DefaultTickInterval,
		id:        uuid.New(),
		region:    region,
		minigame:  minigame,
		state:     protocol.StateWaiting,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.log = a.log.With(zap.Stringer("game", a.id), zap.String("minigame", minigame))

	reg := &protocol.RegisterGame{GameUUID: a.id, Minigame: minigame, Tag: a.tag}
	if err := link.Send(protocol.Marshal(reg)); err != nil {
		return nil, fmt.Errorf("failed to register game with master: %w", err)
	}
	a.log.Info("arena registered")
	return a, nil
}

func (a *Arena) GameUUID() uuid.UUID { return a.id }

func (a *Arena) Minigame() string { return a.minigame }

func (a *Arena) Region() CuboidRegion { return a.region }

func (a *Arena) Tag() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.tag
}

func (a *Arena) SetTag(tag string) {
	a.mu.Lock()
	a.tag = tag
	a.mu.Unlock()
}

func (a *Arena) State() protocol.GameState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// Countdown is the number of ticks left; meaningful only in COUNTDOWN.
func (a *Arena) Countdown() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.countdown
}

// SetState moves the arena to state. Setting the current state is a no-op.
// Leaving COUNTDOWN cancels the countdown; ENDING is terminal. COUNTDOWN
// itself needs a tick count and is only reachable through StartCountdown.
func (a *Arena) SetState(state protocol.GameState) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if state == protocol.StateCountdown && a.state != protocol.StateCountdown {
		if a.state == protocol.StateEnding {
			return ErrRetired
		}
		return ErrNeedsCountdown
	}
	return a.setStateLocked(state)
}

func (a *Arena) setStateLocked(state protocol.GameState) error {
	if a.state == protocol.StateEnding {
		return ErrRetired
	}
	if state == a.state {
		return nil
	}

	msg := &protocol.GameStateChanged{GameUUID: a.id, State: state}
	if err := a.link.Send(protocol.Marshal(msg)); err != nil {
		return fmt.Errorf("failed to notify master of %s: %w", state, err)
	}

	prev := a.state
	if prev == protocol.StateCountdown {
		a.cancelCountdownLocked()
	}
	a.state = state
	a.log.Debug("state changed", zap.Stringer("from", prev), zap.Stringer("state", state))
	return nil
}

// StartCountdown enters COUNTDOWN from WAITING and ticks once per interval;
// after ticks ticks the arena moves to RUNNING.
func (a *Arena) StartCountdown(ticks int) error {
	if ticks <= 0 {
		return fmt.Errorf("countdown must be positive, got %d", ticks)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	switch a.state {
	case protocol.StateWaiting:
	case protocol.StateEnding:
		return ErrRetired
	default:
		return fmt.Errorf("%w: arena is %s", ErrCountdownBlocked, a.state)
	}

	if err := a.setStateLocked(protocol.StateCountdown); err != nil {
		return err
	}
	a.countdown = ticks
	a.gen++
	gen := a.gen
	a.task = a.scheduler.Every(a.interval, func() { a.tick(gen) })
	return nil
}

// StopCountdown cancels a running countdown and returns to WAITING. Once it
// returns no further tick of that countdown has any effect.
func (a *Arena) StopCountdown() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != protocol.StateCountdown {
		return ErrNotCountingDown
	}
	return a.setStateLocked(protocol.StateWaiting)
}

// Retire moves the arena to ENDING.
func (a *Arena) Retire() error {
	return a.SetState(protocol.StateEnding)
}

func (a *Arena) cancelCountdownLocked() {
	if a.task != nil {
		a.task.Cancel()
		a.task = nil
	}
	a.gen++
}

func (a *Arena) tick(gen uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	// a tick that raced a cancellation belongs to an old countdown
	if gen != a.gen || a.state != protocol.StateCountdown {
		return
	}

	if a.countdown > 0 {
		a.countdown--
		if a.onTick != nil {
			a.onTick(a.countdown)
		}
	}
	if a.countdown > 0 {
		return
	}
	if err := a.setStateLocked(protocol.StateRunning); err != nil {
		// stays at zero and retries on the next tick
		a.log.Error("countdown finished but game could not start", zap.Error(err))
	}
}
