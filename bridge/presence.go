package bridge

import (
	"sync"
	"time"

	"github.com/jiconf/focus/jid"
	"github.com/jiconf/focus/stanza"
)

// Brewery tracks the set of bridges currently present in the well-known
// "brewery" MUC, per spec.md §4.4. It is driven by occupant join/
// presence-change/leave events the MUC layer (an external collaborator,
// spec.md §1) decodes from raw presence stanzas into stanza.BridgeStats
// values before calling in here.
//
// Many readers, occasional writer: Snapshot and Get take the read lock;
// mutations publish a new Bridge value under the write lock, per the
// reader-writer discipline spec.md §5 calls for.
type Brewery struct {
	mu       sync.RWMutex
	bridges  map[string]Bridge
}

// NewBrewery constructs an empty Brewery.
func NewBrewery() *Brewery {
	return &Brewery{bridges: make(map[string]Bridge)}
}

// OnJoin registers a newly-joined bridge, constructing its initial record
// from the presence it published on joining.
func (b *Brewery) OnJoin(occupant jid.JID, stats stanza.BridgeStats) {
	br := fromStats(occupant, stats)
	b.mu.Lock()
	b.bridges[br.ID()] = br
	b.mu.Unlock()
}

// OnPresenceChange replaces a known bridge's fields atomically from a
// follow-up presence update.
func (b *Brewery) OnPresenceChange(occupant jid.JID, stats stanza.BridgeStats) {
	br := fromStats(occupant, stats)
	b.mu.Lock()
	if existing, ok := b.bridges[br.ID()]; ok {
		br.LastFailureInstant = existing.LastFailureInstant
		br.LastRestartRequestInstant = existing.LastRestartRequestInstant
		br.recentlyAdded = existing.recentlyAdded
	}
	b.bridges[br.ID()] = br
	b.mu.Unlock()
}

// OnLeave removes a bridge that has left the brewery MUC.
func (b *Brewery) OnLeave(occupant jid.JID) {
	b.mu.Lock()
	delete(b.bridges, occupant.String())
	b.mu.Unlock()
}

// MarkFailed records a selection/colibri failure against a bridge, starting
// its cooldown window (spec.md §4.5).
func (b *Brewery) MarkFailed(id string, at time.Time) {
	b.mu.Lock()
	if br, ok := b.bridges[id]; ok {
		br.LastFailureInstant = at
		b.bridges[id] = br
	}
	b.mu.Unlock()
}

// RecordEndpointAdded updates the rampup bookkeeping used by CorrectedStress.
func (b *Brewery) RecordEndpointAdded(id string, at time.Time, rampupInterval time.Duration) {
	b.mu.Lock()
	if br, ok := b.bridges[id]; ok {
		b.bridges[id] = br.RecordEndpointAdded(at, rampupInterval)
	}
	b.mu.Unlock()
}

// Get returns the bridge record for id, if present.
func (b *Brewery) Get(id string) (Bridge, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	br, ok := b.bridges[id]
	return br, ok
}

// Snapshot returns a copy of every known bridge, safe to iterate without
// holding the lock.
func (b *Brewery) Snapshot() []Bridge {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Bridge, 0, len(b.bridges))
	for _, br := range b.bridges {
		out = append(out, br)
	}
	return out
}

func fromStats(occupant jid.JID, stats stanza.BridgeStats) Bridge {
	return Bridge{
		JID:                occupant,
		Version:            stats.Version,
		Region:             stats.Region,
		RelayID:            stats.RelayID,
		Stress:             stats.Stress,
		Operational:        stats.Operational,
		Drain:              stats.Drain,
		ShutdownInProgress: stats.GracefulShutdown,
	}
}
