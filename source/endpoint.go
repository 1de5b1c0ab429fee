package source

// EndpointSourceSet is the immutable set of sources and ssrc-groups
// belonging to one endpoint. All operations return a new value; the
// receiver is never mutated (spec.md §3: "Immutable. Algebraic").
type EndpointSourceSet struct {
	sources    []Source
	ssrcGroups []SsrcGroup
}

// NewEndpointSourceSet builds a set from the given sources and groups,
// de-duplicating exact repeats.
func NewEndpointSourceSet(sources []Source, groups []SsrcGroup) EndpointSourceSet {
	var s EndpointSourceSet
	for _, src := range sources {
		s = s.withSource(src)
	}
	for _, g := range groups {
		s = s.withGroup(g)
	}
	return s
}

// Empty reports whether the set has no sources and no groups.
func (s EndpointSourceSet) Empty() bool {
	return len(s.sources) == 0 && len(s.ssrcGroups) == 0
}

// Sources returns a copy of the set's sources.
func (s EndpointSourceSet) Sources() []Source {
	cp := make([]Source, len(s.sources))
	copy(cp, s.sources)
	return cp
}

// SsrcGroups returns a copy of the set's ssrc-groups.
func (s EndpointSourceSet) SsrcGroups() []SsrcGroup {
	cp := make([]SsrcGroup, len(s.ssrcGroups))
	copy(cp, s.ssrcGroups)
	return cp
}

func (s EndpointSourceSet) hasSource(target Source) bool {
	for _, existing := range s.sources {
		if existing == target {
			return true
		}
	}
	return false
}

func (s EndpointSourceSet) hasSsrc(ssrc uint32) bool {
	for _, existing := range s.sources {
		if existing.SSRC == ssrc {
			return true
		}
	}
	return false
}

func (s EndpointSourceSet) hasGroup(target SsrcGroup) bool {
	for _, existing := range s.ssrcGroups {
		if existing.equal(target) {
			return true
		}
	}
	return false
}

func (s EndpointSourceSet) withSource(src Source) EndpointSourceSet {
	if s.hasSource(src) {
		return s
	}
	out := s
	out.sources = append(append([]Source{}, s.sources...), src)
	return out
}

func (s EndpointSourceSet) withGroup(g SsrcGroup) EndpointSourceSet {
	if s.hasGroup(g) {
		return s
	}
	out := s
	out.ssrcGroups = append(append([]SsrcGroup{}, s.ssrcGroups...), g)
	return out
}

// Union returns the set containing every source and group in s or o.
func (s EndpointSourceSet) Union(o EndpointSourceSet) EndpointSourceSet {
	out := s
	for _, src := range o.sources {
		out = out.withSource(src)
	}
	for _, g := range o.ssrcGroups {
		out = out.withGroup(g)
	}
	return out
}

// Diff returns the set of sources and groups in s that are not in o.
func (s EndpointSourceSet) Diff(o EndpointSourceSet) EndpointSourceSet {
	var out EndpointSourceSet
	for _, src := range s.sources {
		if !o.hasSource(src) {
			out = out.withSource(src)
		}
	}
	for _, g := range s.ssrcGroups {
		if !o.hasGroup(g) {
			out = out.withGroup(g)
		}
	}
	return out
}

// Equal reports whether s and o contain the same sources and groups,
// independent of insertion order.
func (s EndpointSourceSet) Equal(o EndpointSourceSet) bool {
	if len(s.sources) != len(o.sources) || len(s.ssrcGroups) != len(o.ssrcGroups) {
		return false
	}
	return s.Diff(o).Empty() && o.Diff(s).Empty()
}

// FilterByMediaType returns the subset of sources and groups with the given
// media type.
func (s EndpointSourceSet) FilterByMediaType(media MediaType) EndpointSourceSet {
	var out EndpointSourceSet
	for _, src := range s.sources {
		if src.Media == media {
			out = out.withSource(src)
		}
	}
	for _, g := range s.ssrcGroups {
		if g.Media == media {
			out = out.withGroup(g)
		}
	}
	return out
}

// FilterMultiStream implements spec.md §4.1's filterMultiStream: if any
// video source is Desktop, every other video source of this endpoint is
// dropped, and any ssrc-group whose intersection with the retained ssrcs is
// empty is dropped too (per the §9 open-question resolution, groups are
// re-filtered against the retained ssrc set rather than kept partially
// invalid).
func (s EndpointSourceSet) FilterMultiStream() EndpointSourceSet {
	hasDesktop := false
	for _, src := range s.sources {
		if src.Media == Video && src.VideoType == Desktop {
			hasDesktop = true
			break
		}
	}
	if !hasDesktop {
		return s
	}

	var out EndpointSourceSet
	for _, src := range s.sources {
		if src.Media == Video && src.VideoType != Desktop {
			continue
		}
		out = out.withSource(src)
	}
	for _, g := range s.ssrcGroups {
		kept := false
		for _, ssrc := range g.Ssrcs {
			if out.hasSsrc(ssrc) {
				kept = true
				break
			}
		}
		if kept {
			out = out.withGroup(g)
		}
	}
	return out
}

// StripSimulcast collapses each SIM group to its primary (first) ssrc and
// drops the secondary ssrcs of any FID groups associated with those
// simulcast layers, per spec.md §4.1.
func (s EndpointSourceSet) StripSimulcast() EndpointSourceSet {
	drop := make(map[uint32]bool)
	for _, g := range s.ssrcGroups {
		if g.Semantics != SIM {
			continue
		}
		for _, ssrc := range g.Ssrcs[1:] {
			drop[ssrc] = true
		}
	}

	var out EndpointSourceSet
	for _, src := range s.sources {
		if drop[src.SSRC] {
			continue
		}
		out = out.withSource(src)
	}
	for _, g := range s.ssrcGroups {
		if g.Semantics == SIM {
			continue
		}
		var kept []uint32
		for _, ssrc := range g.Ssrcs {
			if !drop[ssrc] {
				kept = append(kept, ssrc)
			}
		}
		if len(kept) >= 2 {
			out = out.withGroup(NewSsrcGroup(g.Semantics, kept, g.Media))
		}
	}
	return out
}
