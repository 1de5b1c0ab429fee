// Package selector implements BridgeSelector (spec.md §4.5): the pluggable
// policy choosing a bridge for a new participant under region, version,
// stress, and failure-history constraints.
package selector

import (
	"sort"
	"time"

	"github.com/jiconf/focus/bridge"
)

// Params bundles the per-call context a Strategy needs.
type Params struct {
	// All is every bridge known to the brewery.
	All []bridge.Bridge
	// InConference maps bridge id to the number of endpoints the
	// conference already has on it.
	InConference map[string]int
	// ParticipantRegion is the joining participant's preferred region, if
	// known.
	ParticipantRegion string
	// VersionPin, if non-empty, restricts selection to bridges advertising
	// that exact version.
	VersionPin string

	Now             time.Time
	FailureCooldown time.Duration
	RampupInterval  time.Duration
	RampupAlpha     float64
}

// Strategy picks a bridge given Params, or returns ok=false if none is
// usable (spec.md §4.5: the conference is then failed with
// resource-constraint).
type Strategy interface {
	Select(p Params) (bridge.Bridge, bool)
}

func usable(b bridge.Bridge, p Params) bool {
	if !b.Operational || b.Drain || b.ShutdownInProgress {
		return false
	}
	if p.VersionPin != "" && b.Version != p.VersionPin {
		return false
	}
	cs := b.CorrectedStress(p.Now, p.RampupInterval, p.RampupAlpha)
	if cs >= 1 {
		return false
	}
	if !b.LastFailureInstant.IsZero() && p.Now.Sub(b.LastFailureInstant) < p.FailureCooldown {
		return false
	}
	return true
}

func usableBridges(p Params) []bridge.Bridge {
	var out []bridge.Bridge
	for _, b := range p.All {
		if usable(b, p) {
			out = append(out, b)
		}
	}
	return out
}

// leastLoaded returns the usable bridge with the lowest CorrectedStress,
// ties broken by lower CorrectedStress then lexical id (both already
// equal at a true tie, so a stable sort by id suffices).
func leastLoaded(candidates []bridge.Bridge, p Params) (bridge.Bridge, bool) {
	if len(candidates) == 0 {
		return bridge.Bridge{}, false
	}
	sorted := append([]bridge.Bridge{}, candidates...)
	sort.Slice(sorted, func(i, j int) bool {
		si := sorted[i].CorrectedStress(p.Now, p.RampupInterval, p.RampupAlpha)
		sj := sorted[j].CorrectedStress(p.Now, p.RampupInterval, p.RampupAlpha)
		if si != sj {
			return si < sj
		}
		return sorted[i].ID() < sorted[j].ID()
	})
	return sorted[0], true
}

func inRegion(candidates []bridge.Bridge, region string) []bridge.Bridge {
	if region == "" {
		return nil
	}
	var out []bridge.Bridge
	for _, b := range candidates {
		if b.Region == region {
			out = append(out, b)
		}
	}
	return out
}
