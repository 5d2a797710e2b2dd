package arena

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Kingmotro/pexel-platform/internal/protocol"
)

// recordingLink decodes and keeps everything the arena sends.
type recordingLink struct {
	mu   sync.Mutex
	msgs []protocol.Message
	fail error
}

func (l *recordingLink) Send(payload []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fail != nil {
		return l.fail
	}
	msg, err := protocol.Unmarshal(payload)
	if err != nil {
		return err
	}
	l.msgs = append(l.msgs, msg)
	return nil
}

func (l *recordingLink) messages() []protocol.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]protocol.Message(nil), l.msgs...)
}

func (l *recordingLink) states() []protocol.GameState {
	var out []protocol.GameState
	for _, m := range l.messages() {
		if sc, ok := m.(*protocol.GameStateChanged); ok {
			out = append(out, sc.State)
		}
	}
	return out
}

func (l *recordingLink) notified(state protocol.GameState) bool {
	for _, s := range l.states() {
		if s == state {
			return true
		}
	}
	return false
}

var testRegion = NewCuboidRegion("world", Vec3{10, 64, 10}, Vec3{-10, 80, -10})

func newTestArena(t *testing.T, link Link, opts ...Option) *Arena {
	t.Helper()
	a, err := New(link, testRegion, "tnt-run", opts...)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return a
}

func TestNewSendsOneRegistration(t *testing.T) {
	link := &recordingLink{}
	a := newTestArena(t, link, WithTag("vip"))
	b := newTestArena(t, link)

	msgs := link.messages()
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	seen := map[uuid.UUID]bool{}
	for i, want := range []*Arena{a, b} {
		reg, ok := msgs[i].(*protocol.RegisterGame)
		if !ok {
			t.Fatalf("message %d is %T", i, msgs[i])
		}
		if reg.GameUUID != want.GameUUID() || reg.Minigame != "tnt-run" {
			t.Errorf("message %d = %+v", i, reg)
		}
		seen[reg.GameUUID] = true
	}
	if len(seen) != 2 {
		t.Errorf("arenas share a game uuid")
	}
	if msgs[0].(*protocol.RegisterGame).Tag != "vip" {
		t.Errorf("tag not sent with registration")
	}
	if a.State() != protocol.StateWaiting {
		t.Errorf("new arena state = %s", a.State())
	}
}

func TestNewFailsWhenMasterUnreachable(t *testing.T) {
	link := &recordingLink{fail: errors.New("link down")}
	if _, err := New(link, testRegion, "spleef"); err == nil {
		t.Fatal("New() succeeded with a failing link")
	}
}

func TestCountdownRunsToCompletion(t *testing.T) {
	sched := NewManualScheduler()
	link := &recordingLink{}
	var ticks []int
	a := newTestArena(t, link, WithScheduler(sched), WithOnTick(func(r int) { ticks = append(ticks, r) }))

	if err := a.StartCountdown(5); err != nil {
		t.Fatalf("StartCountdown() failed: %v", err)
	}
	if a.State() != protocol.StateCountdown {
		t.Fatalf("state = %s", a.State())
	}

	sched.Advance(4)
	if a.State() != protocol.StateCountdown || a.Countdown() != 1 {
		t.Fatalf("after 4 ticks: state %s countdown %d", a.State(), a.Countdown())
	}
	sched.Advance(1)
	if a.State() != protocol.StateRunning {
		t.Fatalf("after 5 ticks: state %s", a.State())
	}
	if sched.Active() != 0 {
		t.Errorf("countdown task still active")
	}

	sched.Advance(3)
	want := []int{4, 3, 2, 1, 0}
	if len(ticks) != len(want) {
		t.Fatalf("ticks = %v, want %v", ticks, want)
	}
	for i := range want {
		if ticks[i] != want[i] {
			t.Fatalf("ticks = %v, want %v", ticks, want)
		}
	}

	got := link.states()
	if len(got) != 2 || got[0] != protocol.StateCountdown || got[1] != protocol.StateRunning {
		t.Errorf("notifications = %v", got)
	}
}

func TestStopCountdown(t *testing.T) {
	sched := NewManualScheduler()
	link := &recordingLink{}
	ticks := 0
	a := newTestArena(t, link, WithScheduler(sched), WithOnTick(func(int) { ticks++ }))

	if err := a.StartCountdown(5); err != nil {
		t.Fatal(err)
	}
	sched.Advance(2)
	if a.Countdown() != 3 {
		t.Fatalf("countdown = %d, want 3", a.Countdown())
	}

	if err := a.StopCountdown(); err != nil {
		t.Fatalf("StopCountdown() failed: %v", err)
	}
	before := ticks
	sched.Advance(10)
	if ticks != before {
		t.Errorf("%d ticks fired after cancel", ticks-before)
	}
	if a.State() != protocol.StateWaiting {
		t.Errorf("state = %s, want WAITING", a.State())
	}
	if err := a.StopCountdown(); !errors.Is(err, ErrNotCountingDown) {
		t.Errorf("second StopCountdown() = %v", err)
	}
}

func TestStaleTickIgnoredAfterRestart(t *testing.T) {
	sched := NewManualScheduler()
	a := newTestArena(t, &recordingLink{}, WithScheduler(sched))

	if err := a.StartCountdown(3); err != nil {
		t.Fatal(err)
	}
	first := a.gen
	if err := a.StopCountdown(); err != nil {
		t.Fatal(err)
	}
	if err := a.StartCountdown(3); err != nil {
		t.Fatal(err)
	}

	a.tick(first)
	if a.Countdown() != 3 {
		t.Errorf("tick from cancelled countdown changed counter to %d", a.Countdown())
	}
}

func TestTransitionRules(t *testing.T) {
	link := &recordingLink{}
	a := newTestArena(t, link, WithScheduler(NewManualScheduler()))

	if err := a.SetState(protocol.StateWaiting); err != nil {
		t.Fatalf("same state: %v", err)
	}
	if n := len(link.states()); n != 0 {
		t.Errorf("no-op transition sent %d notifications", n)
	}

	if err := a.SetState(protocol.StateRunning); err != nil {
		t.Fatal(err)
	}
	if err := a.StartCountdown(3); !errors.Is(err, ErrCountdownBlocked) {
		t.Errorf("StartCountdown() while running = %v", err)
	}
	if err := a.Retire(); err != nil {
		t.Fatal(err)
	}
	if err := a.SetState(protocol.StateWaiting); !errors.Is(err, ErrRetired) {
		t.Errorf("SetState() after retire = %v", err)
	}
	if err := a.StartCountdown(3); !errors.Is(err, ErrRetired) {
		t.Errorf("StartCountdown() after retire = %v", err)
	}

	got := link.states()
	if len(got) != 2 || got[0] != protocol.StateRunning || got[1] != protocol.StateEnding {
		t.Errorf("notifications = %v", got)
	}
}

func TestFailedNotificationKeepsState(t *testing.T) {
	link := &recordingLink{}
	a := newTestArena(t, link)

	link.mu.Lock()
	link.fail = errors.New("mailbox closed")
	link.mu.Unlock()

	if err := a.SetState(protocol.StateRunning); err == nil {
		t.Fatal("SetState() succeeded with a failing link")
	}
	if a.State() != protocol.StateWaiting {
		t.Errorf("state committed without notification: %s", a.State())
	}
}

func TestSetStateCannotEnterCountdown(t *testing.T) {
	sched := NewManualScheduler()
	link := &recordingLink{}
	a := newTestArena(t, link, WithScheduler(sched))

	if err := a.SetState(protocol.StateCountdown); !errors.Is(err, ErrNeedsCountdown) {
		t.Fatalf("SetState(COUNTDOWN) = %v, want ErrNeedsCountdown", err)
	}
	if a.State() != protocol.StateWaiting || len(link.states()) != 0 {
		t.Fatalf("state = %s, notifications = %v", a.State(), link.states())
	}

	if err := a.StartCountdown(2); err != nil {
		t.Fatal(err)
	}
	// already counting down: same state, nothing changes
	if err := a.SetState(protocol.StateCountdown); err != nil {
		t.Errorf("SetState(COUNTDOWN) while counting down = %v", err)
	}
	sched.Advance(2)
	if a.State() != protocol.StateRunning {
		t.Errorf("state = %s, want RUNNING", a.State())
	}

	if err := a.Retire(); err != nil {
		t.Fatal(err)
	}
	if err := a.SetState(protocol.StateCountdown); !errors.Is(err, ErrRetired) {
		t.Errorf("SetState(COUNTDOWN) after retire = %v", err)
	}
}

func TestFailedCountdownStartLeavesCounter(t *testing.T) {
	sched := NewManualScheduler()
	link := &recordingLink{}
	a := newTestArena(t, link, WithScheduler(sched))

	link.mu.Lock()
	link.fail = errors.New("mailbox closed")
	link.mu.Unlock()

	if err := a.StartCountdown(5); err == nil {
		t.Fatal("StartCountdown() succeeded with a failing link")
	}
	if a.State() != protocol.StateWaiting || a.Countdown() != 0 {
		t.Errorf("state = %s countdown = %d, want WAITING 0", a.State(), a.Countdown())
	}
	if sched.Active() != 0 {
		t.Errorf("%d tasks scheduled after failed start", sched.Active())
	}
}

func TestReadersNeverSeeUnannouncedState(t *testing.T) {
	link := &recordingLink{}
	a := newTestArena(t, link, WithScheduler(NewManualScheduler()))

	stop := make(chan struct{})
	violations := make(chan protocol.GameState, 1)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				s := a.State()
				if s != protocol.StateWaiting && !link.notified(s) {
					select {
					case violations <- s:
					default:
					}
				}
			}
		}()
	}

	if err := a.StartCountdown(3); err != nil {
		t.Fatal(err)
	}
	for _, s := range []protocol.GameState{protocol.StateRunning, protocol.StateEnding} {
		if err := a.SetState(s); err != nil {
			t.Fatal(err)
		}
	}
	close(stop)
	wg.Wait()

	select {
	case s := <-violations:
		t.Fatalf("reader saw %s before the master was notified", s)
	default:
	}
}

func TestTimeSchedulerCountdown(t *testing.T) {
	link := &recordingLink{}
	a := newTestArena(t, link, WithTickInterval(5*time.Millisecond))

	if err := a.StartCountdown(3); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for a.State() != protocol.StateRunning {
		if time.Now().After(deadline) {
			t.Fatalf("countdown never finished, state %s countdown %d", a.State(), a.Countdown())
		}
		time.Sleep(time.Millisecond)
	}
	if a.Countdown() != 0 {
		t.Errorf("countdown = %d", a.Countdown())
	}
}

func TestCuboidRegion(t *testing.T) {
	if !testRegion.Contains("world", Vec3{0, 70, 0}) {
		t.Error("center not contained")
	}
	if testRegion.Contains("world", Vec3{0, 81, 0}) {
		t.Error("point above region contained")
	}
	if testRegion.Contains("nether", Vec3{0, 70, 0}) {
		t.Error("other world contained")
	}
	if v := testRegion.Volume(); v != 21*17*21 {
		t.Errorf("Volume() = %d", v)
	}
}
