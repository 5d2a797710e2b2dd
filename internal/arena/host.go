package arena

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Spec describes one arena a slave hosts.
type Spec struct {
	Minigame string
	Tag      string
	Region   CuboidRegion
}

// Host owns the arenas of one slave. It registers them with the master on
// Start and retires them on Stop, so it has to be stopped before the link.
type Host struct {
	log       *zap.Logger
	link      Link
	specs     []Spec
	countdown int
	opts      []Option

	mu     sync.Mutex
	arenas []*Arena
}

// NewHost builds a host for specs. A positive countdown starts every arena
// counting down right after registration.
func NewHost(log *zap.Logger, link Link, specs []Spec, countdown int, opts ...Option) *Host {
	return &Host{
		log:       log.Named("arenas"),
		link:      link,
		specs:     specs,
		countdown: countdown,
		opts:      opts,
	}
}

func (h *Host) Name() string { return "arena-host" }

func (h *Host) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, spec := range h.specs {
		if err := ctx.Err(); err != nil {
			return err
		}
		opts := append([]Option{WithLogger(h.log), WithTag(spec.Tag)}, h.opts...)
		a, err := New(h.link, spec.Region, spec.Minigame, opts...)
		if err != nil {
			return fmt.Errorf("arena %s: %w", spec.Minigame, err)
		}
		h.arenas = append(h.arenas, a)

		if h.countdown > 0 {
			if err := a.StartCountdown(h.countdown); err != nil {
				return fmt.Errorf("arena %s: %w", spec.Minigame, err)
			}
		}
	}
	h.log.Info("arenas started", zap.Int("count", len(h.arenas)))
	return nil
}

func (h *Host) Arenas() []*Arena {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*Arena(nil), h.arenas...)
}

// Stop retires every arena that is not already ENDING.
func (h *Host) Stop() error {
	h.mu.Lock()
	arenas := h.arenas
	h.arenas = nil
	h.mu.Unlock()

	var errs []error
	for _, a := range arenas {
		if err := a.Retire(); err != nil && !errors.Is(err, ErrRetired) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
