package network

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Binding is one name/connection/mailbox association that was removed from
// the registry, returned so callers can notify observers.
type Binding struct {
	Conn      *Conn
	Info      *PeerInfo
	Discarded int
}

type entry struct {
	conn    *Conn
	info    *PeerInfo
	mailbox *Mailbox
}

type mailboxRef struct {
	name    string
	conn    *Conn
	mailbox *Mailbox
}

// Registry maps peer names to their live connection, metadata and mailbox.
// A name maps to at most one connection and a connection to at most one
// name. Registering a name that is already bound evicts the old binding:
// its connection is closed and its queued messages are discarded.
type Registry struct {
	log *zap.Logger

	mu     sync.RWMutex
	byName map[string]*entry
	byConn map[*Conn]*entry
}

func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{
		log:    log.Named("registry"),
		byName: make(map[string]*entry),
		byConn: make(map[*Conn]*entry),
	}
}

// Register binds name to conn. When name was already bound, the previous
// binding is torn down and returned.
func (r *Registry) Register(name string, conn *Conn, info *PeerInfo) (*Binding, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty peer name", ErrHandshake)
	}

	r.mu.Lock()
	if _, ok := r.byConn[conn]; ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: connection %s already registered", ErrHandshake, conn.ID())
	}
	if !conn.markRegistered() {
		r.mu.Unlock()
		return nil, ErrClosed
	}

	var evicted *Binding
	if old, ok := r.byName[name]; ok {
		evicted = r.removeLocked(name, old)
		old.conn.markEvicted()
	}
	e := &entry{conn: conn, info: info}
	r.byName[name] = e
	r.byConn[conn] = e
	r.mu.Unlock()

	if evicted != nil {
		r.log.Warn("peer re-registered, evicting previous connection",
			zap.String("peer", name),
			zap.String("old_conn", evicted.Conn.ID()),
			zap.String("conn", conn.ID()),
			zap.Int("discarded", evicted.Discarded))
		evicted.Conn.Close()
	}
	return evicted, nil
}

func (r *Registry) removeLocked(name string, e *entry) *Binding {
	delete(r.byName, name)
	delete(r.byConn, e.conn)
	b := &Binding{Conn: e.conn, Info: e.info}
	if e.mailbox != nil {
		b.Discarded = e.mailbox.discard()
	}
	return b
}

func (r *Registry) Lookup(name string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	return e.conn, true
}

func (r *Registry) InfoFor(conn *Conn) (*PeerInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byConn[conn]
	if !ok {
		return nil, false
	}
	return e.info, true
}

// Unregister removes name, discards its mailbox and closes its connection.
// Calling it for an unknown name is a no-op returning nil.
func (r *Registry) Unregister(name string) *Binding {
	r.mu.Lock()
	e, ok := r.byName[name]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	b := r.removeLocked(name, e)
	r.mu.Unlock()

	r.teardown(name, b)
	return b
}

// unregisterConn removes conn only if it is still the live binding of its
// peer, so an evicted connection cannot tear down its successor.
func (r *Registry) unregisterConn(conn *Conn) *Binding {
	r.mu.Lock()
	e, ok := r.byConn[conn]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	name := e.info.Name()
	b := r.removeLocked(name, e)
	r.mu.Unlock()

	r.teardown(name, b)
	return b
}

func (r *Registry) teardown(name string, b *Binding) {
	if b.Discarded > 0 {
		r.log.Warn("discarding queued messages",
			zap.String("peer", name),
			zap.String("conn", b.Conn.ID()),
			zap.Int("discarded", b.Discarded))
	}
	b.Conn.Close()
}

// mailbox returns the mailbox of name, creating it on first use.
func (r *Registry) mailbox(name string) (*Mailbox, error) {
	r.mu.RLock()
	e, ok := r.byName[name]
	if ok && e.mailbox != nil {
		m := e.mailbox
		r.mu.RUnlock()
		return m, nil
	}
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPeer, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok = r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPeer, name)
	}
	if e.mailbox == nil {
		e.mailbox = newMailbox(e.conn)
	}
	return e.mailbox, nil
}

// mailboxes snapshots every peer that has a mailbox and whose registration
// ack has been written.
func (r *Registry) mailboxes() []mailboxRef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	refs := make([]mailboxRef, 0, len(r.byName))
	for name, e := range r.byName {
		if e.mailbox != nil && e.conn.ackSent() {
			refs = append(refs, mailboxRef{name: name, conn: e.conn, mailbox: e.mailbox})
		}
	}
	return refs
}

// Peers returns the metadata of every registered peer.
func (r *Registry) Peers() []*PeerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*PeerInfo, 0, len(r.byName))
	for _, e := range r.byName {
		out = append(out, e.info)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}

// closeAll unregisters every peer.
func (r *Registry) closeAll() []*Binding {
	r.mu.RLock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	r.mu.RUnlock()

	var out []*Binding
	for _, name := range names {
		if b := r.Unregister(name); b != nil {
			out = append(out, b)
		}
	}
	return out
}
