package registry

import (
	"fmt"
	"sync"

	"github.com/gmp-go/core/internal/errs"
	"github.com/gmp-go/core/internal/wire"
)

// Registry is the authoritative PlayerId<->ConnectionHandle table (§4.3).
// AddPlayer is the only operation that mints a PlayerId; by convention it
// is called only from the tick thread and is not re-entrant. All other
// operations are safe to call from any goroutine: a single RWMutex guards
// both internal maps together so the two directions never drift apart
// mid-read.
type Registry struct {
	mu sync.RWMutex

	byID   map[wire.PlayerId]*Player
	byConn map[wire.ConnectionHandle]wire.PlayerId

	nextID wire.PlayerId
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		byID:   make(map[wire.PlayerId]*Player),
		byConn: make(map[wire.ConnectionHandle]wire.PlayerId),
		nextID: 1, // 0 is reserved as "none" (§3)
	}
}

// AddPlayer mints a fresh PlayerId for conn and inserts a new Player
// record with is_ingame=false and default appearance (§3 Lifecycle).
// Not safe to call concurrently with itself; the tick thread is the sole
// caller.
func (r *Registry) AddPlayer(conn wire.ConnectionHandle) *Player {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID
	r.nextID++

	p := &Player{
		ID:         id,
		Connection: conn,
		IsIngame:   false,
	}
	r.byID[id] = p
	r.byConn[conn] = id
	return p
}

// Remove deletes the player identified by conn, if any, returning it.
func (r *Registry) Remove(conn wire.ConnectionHandle) (*Player, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byConn[conn]
	if !ok {
		return nil, false
	}
	p := r.byID[id]
	delete(r.byConn, conn)
	delete(r.byID, id)
	return p, true
}

// RemoveByID deletes the player identified by id, if any.
func (r *Registry) RemoveByID(id wire.PlayerId) (*Player, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	delete(r.byConn, p.Connection)
	delete(r.byID, id)
	return p, true
}

// ByConnection resolves a ConnectionHandle to its Player, if registered.
func (r *Registry) ByConnection(conn wire.ConnectionHandle) (*Player, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byConn[conn]
	if !ok {
		return nil, false
	}
	p, ok := r.byID[id]
	return p, ok
}

// ByID resolves a PlayerId to its Player, if registered.
func (r *Registry) ByID(id wire.PlayerId) (*Player, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.byID[id]
	return p, ok
}

// ConnectionOf returns the ConnectionHandle bound to id.
func (r *Registry) ConnectionOf(id wire.PlayerId) (wire.ConnectionHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.byID[id]
	if !ok {
		return 0, false
	}
	return p.Connection, true
}

// Count returns the number of registered players.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// ForEach snapshots the current key set and invokes fn for every
// registered player, including those not yet in-game. Removal during
// iteration is safe because the key set is captured up front (§4.3).
func (r *Registry) ForEach(fn func(*Player)) {
	for _, p := range r.snapshot(false) {
		fn(p)
	}
}

// ForEachIngame is ForEach restricted to players with IsIngame set.
func (r *Registry) ForEachIngame(fn func(*Player)) {
	for _, p := range r.snapshot(true) {
		fn(p)
	}
}

func (r *Registry) snapshot(ingameOnly bool) []*Player {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Player, 0, len(r.byID))
	for _, p := range r.byID {
		if ingameOnly && !p.IsIngame {
			continue
		}
		out = append(out, p)
	}
	return out
}

// SetIngame marks a registered player in-game (the transition that follows
// a valid JoinGame packet per §3 Lifecycle).
func (r *Registry) SetIngame(id wire.PlayerId, v bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("%w: player %s", errs.ErrPeerNotFound, id)
	}
	p.IsIngame = v
	return nil
}
