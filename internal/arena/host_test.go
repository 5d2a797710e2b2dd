package arena

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/Kingmotro/pexel-platform/internal/protocol"
)

func TestHostLifecycle(t *testing.T) {
	link := &recordingLink{}
	sched := NewManualScheduler()
	specs := []Spec{
		{Minigame: "spleef", Tag: "ranked", Region: testRegion},
		{Minigame: "tnt-run", Region: testRegion},
	}
	h := NewHost(zaptest.NewLogger(t), link, specs, 3, WithScheduler(sched))

	if err := h.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	arenas := h.Arenas()
	if len(arenas) != 2 {
		t.Fatalf("got %d arenas, want 2", len(arenas))
	}
	if arenas[0].Tag() != "ranked" {
		t.Errorf("tag = %q", arenas[0].Tag())
	}
	for _, a := range arenas {
		if a.State() != protocol.StateCountdown {
			t.Errorf("%s state = %s, want COUNTDOWN", a.Minigame(), a.State())
		}
	}

	sched.Advance(3)
	for _, a := range arenas {
		if a.State() != protocol.StateRunning {
			t.Errorf("%s state = %s, want RUNNING", a.Minigame(), a.State())
		}
	}

	// already ENDING is not an error
	if err := arenas[1].Retire(); err != nil {
		t.Fatal(err)
	}
	if err := h.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	for _, a := range arenas {
		if a.State() != protocol.StateEnding {
			t.Errorf("%s state = %s after Stop", a.Minigame(), a.State())
		}
	}

	var registered int
	for _, m := range link.messages() {
		if _, ok := m.(*protocol.RegisterGame); ok {
			registered++
		}
	}
	if registered != 2 {
		t.Errorf("sent %d registrations, want 2", registered)
	}
}

func TestHostStartFailsWhenLinkDown(t *testing.T) {
	link := &recordingLink{fail: errors.New("link down")}
	h := NewHost(zaptest.NewLogger(t), link, []Spec{{Minigame: "spleef", Region: testRegion}}, 0)
	if err := h.Start(context.Background()); err == nil {
		t.Fatal("Start() succeeded with a failing link")
	}
	if len(h.Arenas()) != 0 {
		t.Error("arena kept after failed registration")
	}
}
