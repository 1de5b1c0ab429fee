package source

// ConferenceSourceMap is the conference-wide mapping from endpoint id to
// that endpoint's EndpointSourceSet, per spec.md §3. Keys are the endpoint
// id's canonical string form (a jid.JID is not comparable across
// resource-casing, so callers pass the canonical string, not the JID
// itself).
type ConferenceSourceMap map[string]EndpointSourceSet

// Clone returns a shallow copy; EndpointSourceSet values are themselves
// immutable so no alias hazard exists.
func (m ConferenceSourceMap) Clone() ConferenceSourceMap {
	out := make(ConferenceSourceMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// UsedSsrcs returns the set of ssrcs in use by every endpoint other than
// exclude, for validator admission checks.
func (m ConferenceSourceMap) UsedSsrcs(exclude string) map[uint32]bool {
	used := make(map[uint32]bool)
	for id, set := range m {
		if id == exclude {
			continue
		}
		for _, src := range set.Sources() {
			used[src.SSRC] = true
		}
	}
	return used
}

// FilterByMediaType applies EndpointSourceSet.FilterByMediaType to every
// endpoint's set.
func (m ConferenceSourceMap) FilterByMediaType(media MediaType) ConferenceSourceMap {
	out := make(ConferenceSourceMap, len(m))
	for k, v := range m {
		out[k] = v.FilterByMediaType(media)
	}
	return out
}
