package network

import (
	"net"
	"testing"
	"time"
)

// pipeConn returns a Conn over one end of an in-memory pipe and the raw
// other end.
func pipeConn(t *testing.T) (*Conn, net.Conn) {
	t.Helper()
	local, remote := net.Pipe()
	conn := newConn(local, time.Second, DefaultMaxFrameSize)
	t.Cleanup(func() {
		conn.Close()
		remote.Close()
	})
	return conn, remote
}

// readFrames reads n frames from r in the background.
func readFrames(r net.Conn, n int) <-chan []Frame {
	out := make(chan []Frame, 1)
	go func() {
		frames := make([]Frame, 0, n)
		for len(frames) < n {
			f, err := ReadFrame(r, DefaultMaxFrameSize)
			if err != nil {
				break
			}
			frames = append(frames, f)
		}
		out <- frames
	}()
	return out
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
