package selector

import "github.com/jiconf/focus/bridge"

// SingleBridge keeps a conference on its existing single bridge as long as
// it remains usable; otherwise picks least-loaded in the participant's
// region, falling back to least-loaded overall.
type SingleBridge struct{}

func (SingleBridge) Select(p Params) (bridge.Bridge, bool) {
	if len(p.InConference) == 1 {
		var onlyID string
		for id := range p.InConference {
			onlyID = id
		}
		for _, b := range p.All {
			if b.ID() == onlyID && usable(b, p) {
				return b, true
			}
		}
	}

	candidates := usableBridges(p)
	if regional := inRegion(candidates, p.ParticipantRegion); len(regional) > 0 {
		return leastLoaded(regional, p)
	}
	return leastLoaded(candidates, p)
}

// SplitBridge always prefers a bridge not already in the conference; used
// for testing per spec.md §4.5.
type SplitBridge struct{}

func (SplitBridge) Select(p Params) (bridge.Bridge, bool) {
	candidates := usableBridges(p)
	var notInConf []bridge.Bridge
	for _, b := range candidates {
		if _, ok := p.InConference[b.ID()]; !ok {
			notInConf = append(notInConf, b)
		}
	}
	if len(notInConf) > 0 {
		return leastLoaded(notInConf, p)
	}
	return leastLoaded(candidates, p)
}

// RegionBased prefers a conference-bridge already in the participant's
// region; otherwise the least-stressed usable bridge in that region;
// otherwise the least-stressed bridge globally.
type RegionBased struct{}

func (RegionBased) Select(p Params) (bridge.Bridge, bool) {
	candidates := usableBridges(p)

	var inConfAndRegion []bridge.Bridge
	for _, b := range candidates {
		if b.Region != p.ParticipantRegion {
			continue
		}
		if _, ok := p.InConference[b.ID()]; ok {
			inConfAndRegion = append(inConfAndRegion, b)
		}
	}
	if len(inConfAndRegion) > 0 {
		return leastLoaded(inConfAndRegion, p)
	}

	if regional := inRegion(candidates, p.ParticipantRegion); len(regional) > 0 {
		return leastLoaded(regional, p)
	}
	return leastLoaded(candidates, p)
}

// RegionBasedWithCascade behaves like RegionBased, but may add a new
// bridge — in a new region — to the conference when no existing bridge is
// in the participant's region. ShouldCascade reports whether this call
// would grow the cascade, for callers (colibri.SessionManager) that need
// to provision a relay link when it does.
type RegionBasedWithCascade struct{}

func (RegionBasedWithCascade) Select(p Params) (bridge.Bridge, bool) {
	return RegionBased{}.Select(p)
}

// ShouldCascade reports whether selecting chosen for this conference would
// add a bridge not already present in it.
func (RegionBasedWithCascade) ShouldCascade(p Params, chosen bridge.Bridge) bool {
	_, already := p.InConference[chosen.ID()]
	return !already
}
