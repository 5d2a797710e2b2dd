package network

import (
	"errors"
	"fmt"
	"net"
	"os"
	"testing"
	"time"
)

func TestMailboxPriorityOrder(t *testing.T) {
	conn, remote := pipeConn(t)
	m := newMailbox(conn)

	sends := []struct {
		payload  string
		priority int
	}{
		{"low-1", 5},
		{"default-1", DefaultPriority},
		{"urgent", -3},
		{"low-2", 5},
		{"default-2", DefaultPriority},
	}
	for _, s := range sends {
		if err := m.Enqueue([]byte(s.payload), s.priority); err != nil {
			t.Fatal(err)
		}
	}
	if m.Len() != len(sends) {
		t.Fatalf("Len() = %d", m.Len())
	}

	got := readFrames(remote, len(sends))
	written, discarded, err := m.flush()
	if err != nil || written != len(sends) || discarded != 0 {
		t.Fatalf("flush() = %d, %d, %v", written, discarded, err)
	}

	want := []string{"urgent", "default-1", "default-2", "low-1", "low-2"}
	frames := <-got
	if len(frames) != len(want) {
		t.Fatalf("received %d frames, want %d", len(frames), len(want))
	}
	for i, f := range frames {
		if f.Type != PacketPayload || string(f.Payload) != want[i] {
			t.Errorf("frame %d = %s %q, want %q", i, f.Type, f.Payload, want[i])
		}
	}
	if m.Len() != 0 {
		t.Errorf("Len() after flush = %d", m.Len())
	}
}

func TestMailboxFIFOWithinPriority(t *testing.T) {
	conn, remote := pipeConn(t)
	m := newMailbox(conn)

	const n = 50
	for i := 0; i < n; i++ {
		m.Enqueue([]byte(fmt.Sprint(i)), DefaultPriority)
	}
	got := readFrames(remote, n)
	if _, _, err := m.flush(); err != nil {
		t.Fatal(err)
	}
	for i, f := range <-got {
		if string(f.Payload) != fmt.Sprint(i) {
			t.Fatalf("frame %d = %q", i, f.Payload)
		}
	}
}

func TestMailboxWriteFailureDiscards(t *testing.T) {
	conn, remote := pipeConn(t)
	m := newMailbox(conn)
	for i := 0; i < 3; i++ {
		m.Enqueue([]byte("msg"), DefaultPriority)
	}
	remote.Close()

	written, discarded, err := m.flush()
	if !errors.Is(err, ErrDelivery) {
		t.Fatalf("flush() error = %v, want ErrDelivery", err)
	}
	if written != 0 || discarded != 3 {
		t.Errorf("flush() = %d written, %d discarded", written, discarded)
	}
	if err := m.Enqueue([]byte("late"), DefaultPriority); !errors.Is(err, ErrClosed) {
		t.Errorf("Enqueue after failure = %v, want ErrClosed", err)
	}
}

func TestMailboxDiscard(t *testing.T) {
	m := newMailbox(nil)
	m.Enqueue([]byte("a"), 1)
	m.Enqueue([]byte("b"), 2)
	if n := m.discard(); n != 2 {
		t.Errorf("discard() = %d, want 2", n)
	}
	if n := m.discard(); n != 0 {
		t.Errorf("second discard() = %d", n)
	}
	if written, _, err := m.flush(); written != 0 || err != nil {
		t.Errorf("flush() of discarded mailbox = %d, %v", written, err)
	}
}

func TestMailboxWriteTimeout(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()
	conn := newConn(local, 100*time.Millisecond, DefaultMaxFrameSize)
	defer conn.Close()

	m := newMailbox(conn)
	for i := 0; i < 5; i++ {
		m.Enqueue([]byte("stuck"), DefaultPriority)
	}

	// nobody reads remote, so the first write can only end by its deadline
	start := time.Now()
	written, discarded, err := m.flush()
	took := time.Since(start)

	if !errors.Is(err, ErrDelivery) || !errors.Is(err, os.ErrDeadlineExceeded) {
		t.Fatalf("flush() error = %v, want a delivery timeout", err)
	}
	if written != 0 || discarded != 5 {
		t.Errorf("flush() = %d written, %d discarded", written, discarded)
	}
	if took > 2*time.Second {
		t.Errorf("flush() took %s with a 100ms write timeout", took)
	}
}
