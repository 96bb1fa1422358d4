// Package discord implements the replication half of the rich-presence
// bridge (§6.1 opcode 157): a small cache that dedups repeat updates from
// scripts and a Replicator seam the server wires to an actual broadcast.
// The Discord SDK itself is an external collaborator outside this module
// (§1) — this package only owns the presence string cache and the
// replication hook scripts and the server drive it through.
package discord

import "sync"

// Presence mirrors wire.DiscordActivityPacket's six string fields.
type Presence struct {
	State          string
	Details        string
	LargeImageKey  string
	LargeImageText string
	SmallImageKey  string
	SmallImageText string
}

// Replicator sends a Presence to in-game peers as a DiscordActivity
// packet. Implemented by the server entrypoint over transport+registry.
type Replicator interface {
	BroadcastDiscordActivity(p Presence) error
}

// Cache holds the last replicated Presence so identical back-to-back
// updates from a script (e.g. a per-tick status refresh) don't spam the
// wire with redundant broadcasts.
type Cache struct {
	mu   sync.Mutex
	last Presence
	set  bool
}

// NewCache creates an empty Cache.
func NewCache() *Cache {
	return &Cache{}
}

// Current returns the last replicated Presence, if any.
func (c *Cache) Current() (Presence, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last, c.set
}

// Update replicates p via r unless it's identical to the last update.
// A nil r only updates the cache, useful for tests.
func (c *Cache) Update(p Presence, r Replicator) error {
	c.mu.Lock()
	if c.set && c.last == p {
		c.mu.Unlock()
		return nil
	}
	c.last = p
	c.set = true
	c.mu.Unlock()

	if r == nil {
		return nil
	}
	return r.BroadcastDiscordActivity(p)
}
