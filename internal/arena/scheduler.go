package arena

import (
	"sync"
	"sync/atomic"
	"time"
)

// Task is a repeating job. Cancel stops future runs and may be called from
// inside the job itself.
type Task interface {
	Cancel()
}

type Scheduler interface {
	Every(interval time.Duration, fn func()) Task
}

// TimeScheduler runs each task on its own goroutine driven by a time.Ticker.
type TimeScheduler struct{}

func (TimeScheduler) Every(interval time.Duration, fn func()) Task {
	t := &tickerTask{stop: make(chan struct{})}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-t.stop:
				return
			case <-ticker.C:
				select {
				case <-t.stop:
					return
				default:
				}
				fn()
			}
		}
	}()
	return t
}

type tickerTask struct {
	once sync.Once
	stop chan struct{}
}

func (t *tickerTask) Cancel() { t.once.Do(func() { close(t.stop) }) }

// ManualScheduler fires ticks only when Advance is called.
type ManualScheduler struct {
	mu    sync.Mutex
	tasks []*manualTask
}

type manualTask struct {
	fn        func()
	cancelled atomic.Bool
}

func (t *manualTask) Cancel() { t.cancelled.Store(true) }

func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

func (s *ManualScheduler) Every(_ time.Duration, fn func()) Task {
	t := &manualTask{fn: fn}
	s.mu.Lock()
	s.tasks = append(s.tasks, t)
	s.mu.Unlock()
	return t
}

// Advance fires n ticks on every task that is still active.
func (s *ManualScheduler) Advance(n int) {
	for i := 0; i < n; i++ {
		for _, t := range s.active() {
			if !t.cancelled.Load() {
				t.fn()
			}
		}
	}
}

// Active reports how many tasks have not been cancelled.
func (s *ManualScheduler) Active() int {
	return len(s.active())
}

func (s *ManualScheduler) active() []*manualTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	live := s.tasks[:0]
	for _, t := range s.tasks {
		if !t.cancelled.Load() {
			live = append(live, t)
		}
	}
	s.tasks = live
	return append([]*manualTask(nil), live...)
}
