// Package jibri implements the recorder/live-streamer/SIP-gateway
// dispatcher of spec.md §3/§4.9: a pool of workers advertised via MUC
// presence (JibriDetector), and the per-request session lifecycle with
// retries, pending timeout, and failure cooldown (JibriSession).
package jibri

import (
	"sync"
	"time"

	"github.com/jiconf/focus/jid"
)

// SELECT_TIMEOUT and FAILURE_TIMEOUT from spec.md §4.9.
const (
	SelectTimeout  = 200 * time.Millisecond
	FailureTimeout = 60 * time.Second
)

// Instance is one JibriInstance record (spec.md §3), maintained by a
// MUC-presence Brewery exactly as bridges are (spec.md §4.9: "same pattern
// as bridges").
type Instance struct {
	JID              jid.JID
	ReportsAvailable bool
	LastFailed       time.Time
	LastSelected     time.Time
}

// ID returns the instance's stable identity for map keys.
func (i Instance) ID() string { return i.JID.String() }

// Brewery tracks Jibri instances present in their brewery MUC, mirroring
// bridge.Brewery's occupant-driven registry shape.
type Brewery struct {
	mu        sync.RWMutex
	instances map[string]Instance
}

// NewBrewery constructs an empty Brewery.
func NewBrewery() *Brewery {
	return &Brewery{instances: make(map[string]Instance)}
}

// OnJoin registers a newly-joined Jibri instance.
func (b *Brewery) OnJoin(occupant jid.JID, available bool) {
	b.mu.Lock()
	b.instances[occupant.String()] = Instance{JID: occupant, ReportsAvailable: available}
	b.mu.Unlock()
}

// OnPresenceChange updates an instance's advertised availability.
func (b *Brewery) OnPresenceChange(occupant jid.JID, available bool) {
	b.mu.Lock()
	if existing, ok := b.instances[occupant.String()]; ok {
		existing.ReportsAvailable = available
		b.instances[occupant.String()] = existing
	}
	b.mu.Unlock()
}

// OnLeave removes an instance that has left the brewery MUC.
func (b *Brewery) OnLeave(occupant jid.JID) {
	b.mu.Lock()
	delete(b.instances, occupant.String())
	b.mu.Unlock()
}

// MarkSelected records a successful selection, resetting LastSelected.
func (b *Brewery) MarkSelected(id string, at time.Time) {
	b.mu.Lock()
	if i, ok := b.instances[id]; ok {
		i.LastSelected = at
		b.instances[id] = i
	}
	b.mu.Unlock()
}

// MarkFailed records a failure, starting the instance's FAILURE_TIMEOUT
// cooldown.
func (b *Brewery) MarkFailed(id string, at time.Time) {
	b.mu.Lock()
	if i, ok := b.instances[id]; ok {
		i.LastFailed = at
		b.instances[id] = i
	}
	b.mu.Unlock()
}

// Snapshot returns a copy of every known instance.
func (b *Brewery) Snapshot() []Instance {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Instance, 0, len(b.instances))
	for _, i := range b.instances {
		out = append(out, i)
	}
	return out
}
