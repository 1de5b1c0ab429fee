// Package bridge models one media-forwarding server (spec.md §3/§4.4): its
// advertised stress/region/version/health, and the corrected-stress
// adjustment that prevents thundering-herd allocation onto a newly-empty
// bridge.
package bridge

import (
	"time"

	"github.com/jiconf/focus/jid"
)

// Bridge is one bridge record, updated wholesale on every presence change
// from its brewery MUC occupancy (see Brewery in presence.go). Bridge
// values are treated as immutable snapshots; Brewery replaces the whole
// record atomically rather than mutating fields in place.
type Bridge struct {
	JID     jid.JID
	Version string
	Region  string
	RelayID string
	Stress  float64

	Operational        bool
	Drain              bool
	ShutdownInProgress bool

	LastFailureInstant        time.Time
	LastRestartRequestInstant time.Time

	recentlyAdded []addedEndpoint
}

type addedEndpoint struct {
	at time.Time
}

// Usable reports whether the bridge can accept new allocations right now:
// operational, not draining, not shutting down, and not within its failure
// cooldown.
func (b Bridge) Usable(now time.Time, failureCooldown time.Duration) bool {
	if !b.Operational || b.Drain || b.ShutdownInProgress {
		return false
	}
	if !b.LastFailureInstant.IsZero() && now.Sub(b.LastFailureInstant) < failureCooldown {
		return false
	}
	return true
}

// RecordEndpointAdded notes that an endpoint was just allocated to this
// bridge, for CorrectedStress's rampup adjustment. Returns an updated copy;
// Bridge values are not mutated in place.
func (b Bridge) RecordEndpointAdded(now time.Time, rampupInterval time.Duration) Bridge {
	out := b
	out.recentlyAdded = append(pruneOld(b.recentlyAdded, now, rampupInterval), addedEndpoint{at: now})
	return out
}

func pruneOld(added []addedEndpoint, now time.Time, window time.Duration) []addedEndpoint {
	var kept []addedEndpoint
	for _, a := range added {
		if now.Sub(a.at) < window {
			kept = append(kept, a)
		}
	}
	return kept
}

// CorrectedStress is advertised Stress plus alpha times the number of
// endpoints recently added to this bridge within rampupInterval, per
// spec.md §4.4. This discourages a burst of allocations to a freshly-joined
// or freshly-emptied bridge before its own stress report catches up.
func (b Bridge) CorrectedStress(now time.Time, rampupInterval time.Duration, alpha float64) float64 {
	recent := pruneOld(b.recentlyAdded, now, rampupInterval)
	return b.Stress + alpha*float64(len(recent))
}

// ID returns the bridge's stable identity for map keys and tie-breaking:
// its JID string form.
func (b Bridge) ID() string { return b.JID.String() }
