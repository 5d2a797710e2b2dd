package network

import (
	"container/heap"
	"sync"
	"time"
)

// DefaultPriority is used by Send without an explicit priority. Lower values
// are written first.
const DefaultPriority = 0

const defaultDrainInterval = 10 * time.Millisecond

type OutboundMessage struct {
	Payload  []byte
	Priority int

	kind PacketType
	seq  uint64
}

// messageQueue orders by ascending priority, then by submission order.
type messageQueue []*OutboundMessage

func (q messageQueue) Len() int { return len(q) }

func (q messageQueue) Less(i, j int) bool {
	if q[i].Priority != q[j].Priority {
		return q[i].Priority < q[j].Priority
	}
	return q[i].seq < q[j].seq
}

func (q messageQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *messageQueue) Push(x any) { *q = append(*q, x.(*OutboundMessage)) }

func (q *messageQueue) Pop() any {
	old := *q
	n := len(old)
	msg := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return msg
}

// Mailbox is the outbound queue of one connection.
type Mailbox struct {
	conn *Conn

	mu     sync.Mutex
	queue  messageQueue
	seq    uint64
	closed bool

	// flushMu keeps two flushes of the same mailbox from interleaving writes.
	flushMu sync.Mutex
}

func newMailbox(conn *Conn) *Mailbox {
	return &Mailbox{conn: conn}
}

func (m *Mailbox) Enqueue(payload []byte, priority int) error {
	return m.enqueue(PacketPayload, payload, priority)
}

func (m *Mailbox) enqueue(kind PacketType, payload []byte, priority int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.seq++
	heap.Push(&m.queue, &OutboundMessage{Payload: payload, Priority: priority, kind: kind, seq: m.seq})
	return nil
}

func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// take removes everything currently queued, in delivery order.
func (m *Mailbox) take() []*OutboundMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		return nil
	}
	out := make([]*OutboundMessage, 0, len(m.queue))
	for len(m.queue) > 0 {
		out = append(out, heap.Pop(&m.queue).(*OutboundMessage))
	}
	return out
}

// discard closes the mailbox and drops whatever is still queued.
func (m *Mailbox) discard() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.queue)
	m.queue = nil
	m.closed = true
	return n
}

// flush writes every message queued at call time. On a write error the
// failed message and everything behind it are discarded and the mailbox is
// closed; discarded reports how many messages were lost.
func (m *Mailbox) flush() (written, discarded int, err error) {
	m.flushMu.Lock()
	defer m.flushMu.Unlock()

	msgs := m.take()
	for i, msg := range msgs {
		if err := m.conn.WriteFrame(msg.kind, msg.Payload); err != nil {
			return i, len(msgs) - i + m.discard(), err
		}
	}
	return len(msgs), 0, nil
}

// drainLoop calls drain every interval until stop is closed, then once
// more so messages queued before shutdown still go out.
func drainLoop(interval time.Duration, stop <-chan struct{}, drain func()) {
	if interval <= 0 {
		interval = defaultDrainInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			drain()
		case <-stop:
			drain()
			return
		}
	}
}
