package network

import "sync"

type Role int

const (
	RoleSlave Role = iota
	RoleMaster
)

func (r Role) String() string {
	if r == RoleMaster {
		return "master"
	}
	return "slave"
}

// PeerInfo identifies one remote party. Name and Role never change after
// registration. The attribute map is written by the registry when the peer
// registers and by application code afterwards; every access goes through
// the methods below, which share one lock.
type PeerInfo struct {
	name string
	role Role

	mu    sync.RWMutex
	attrs map[string]string
}

func NewPeerInfo(name string, role Role) *PeerInfo {
	return &PeerInfo{name: name, role: role, attrs: make(map[string]string)}
}

func (p *PeerInfo) Name() string { return p.name }

func (p *PeerInfo) Role() Role { return p.role }

func (p *PeerInfo) SetAttr(key, value string) {
	p.mu.Lock()
	p.attrs[key] = value
	p.mu.Unlock()
}

func (p *PeerInfo) Attr(key string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.attrs[key]
	return v, ok
}

// Attrs returns a copy of the attribute map.
func (p *PeerInfo) Attrs() map[string]string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]string, len(p.attrs))
	for k, v := range p.attrs {
		out[k] = v
	}
	return out
}
