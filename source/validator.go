package source

import "fmt"

// ValidationKind enumerates the rejection reasons spec.md §4.1 names for
// tryAdd. Implementations may wrap the zero value's Kind in a ValidationError
// to report it; ExceedsPerUserLimit is not an error (it truncates silently).
type ValidationKind int

const (
	IllegalSsrcValue ValidationKind = iota
	DuplicateSsrc
	GroupReferencesMissingSsrc
	GroupedSsrcMissingMsid
	GroupMsidMismatch
	DuplicateMsid
)

func (k ValidationKind) String() string {
	switch k {
	case IllegalSsrcValue:
		return "illegal-ssrc-value"
	case DuplicateSsrc:
		return "duplicate-ssrc"
	case GroupReferencesMissingSsrc:
		return "group-references-missing-ssrc"
	case GroupedSsrcMissingMsid:
		return "grouped-ssrc-missing-msid"
	case GroupMsidMismatch:
		return "group-msid-mismatch"
	case DuplicateMsid:
		return "duplicate-msid"
	default:
		return "unknown"
	}
}

// ValidationError is returned by Validator.TryAdd when candidate sources
// cannot be admitted at all (as opposed to the truncate-silently
// ExceedsPerUserLimit policy, which is not an error).
type ValidationError struct {
	Kind ValidationKind
	Msg  string
}

func (e *ValidationError) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Validator enforces the invariants of spec.md §3/§4.1 when admitting new
// sources for one endpoint into an existing conference-wide source map.
type Validator struct {
	// MaxSsrcsPerUser bounds the number of sources (across all media)
	// accepted per endpoint; candidates beyond the limit are dropped, not
	// rejected.
	MaxSsrcsPerUser int
}

// TryAdd validates candidate against existing (this endpoint's current set)
// and the conference-wide set of ssrcs already in use by other endpoints
// (usedElsewhere), and returns the accepted subset of candidate. Per
// spec.md §4.1, ExceedsPerUserLimit truncates rather than fails; all other
// violations fail the whole call.
func (v Validator) TryAdd(existing, candidate EndpointSourceSet, usedElsewhere map[uint32]bool) (EndpointSourceSet, error) {
	for _, src := range candidate.sources {
		if src.SSRC == 0 || src.SSRC > 0xFFFFFFFF {
			return EndpointSourceSet{}, &ValidationError{Kind: IllegalSsrcValue, Msg: fmt.Sprintf("ssrc %d", src.SSRC)}
		}
		if existing.hasSsrc(src.SSRC) || usedElsewhere[src.SSRC] {
			return EndpointSourceSet{}, &ValidationError{Kind: DuplicateSsrc, Msg: fmt.Sprintf("ssrc %d", src.SSRC)}
		}
	}

	// Strip parameter extensions other than cname/msid is a concern of the
	// wire decoder, not this in-memory algebra; Source carries only Msid.

	groups, err := dropEmptyAndDuplicateGroups(candidate.ssrcGroups)
	if err != nil {
		return EndpointSourceSet{}, err
	}

	merged := candidate
	merged.ssrcGroups = groups
	if err := validateGroups(merged); err != nil {
		return EndpointSourceSet{}, err
	}
	if err := validateMsidUniqueness(merged); err != nil {
		return EndpointSourceSet{}, err
	}

	accepted := merged
	if v.MaxSsrcsPerUser > 0 {
		total := len(existing.sources) + len(accepted.sources)
		if total > v.MaxSsrcsPerUser {
			keep := v.MaxSsrcsPerUser - len(existing.sources)
			if keep < 0 {
				keep = 0
			}
			accepted = truncate(accepted, keep)
		}
	}
	return accepted, nil
}

func dropEmptyAndDuplicateGroups(groups []SsrcGroup) ([]SsrcGroup, error) {
	var out []SsrcGroup
	for _, g := range groups {
		if len(g.Ssrcs) == 0 {
			continue
		}
		dup := false
		for _, existing := range out {
			if existing.equal(g) {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		out = append(out, g)
	}
	return out, nil
}

func validateGroups(set EndpointSourceSet) error {
	bySsrc := make(map[uint32]Source, len(set.sources))
	for _, s := range set.sources {
		bySsrc[s.SSRC] = s
	}
	for _, g := range set.ssrcGroups {
		var msid string
		for i, ssrc := range g.Ssrcs {
			src, ok := bySsrc[ssrc]
			if !ok {
				return &ValidationError{Kind: GroupReferencesMissingSsrc, Msg: fmt.Sprintf("ssrc %d", ssrc)}
			}
			if src.Msid == "" {
				return &ValidationError{Kind: GroupedSsrcMissingMsid, Msg: fmt.Sprintf("ssrc %d", ssrc)}
			}
			if i == 0 {
				msid = src.Msid
			} else if src.Msid != msid {
				return &ValidationError{Kind: GroupMsidMismatch, Msg: fmt.Sprintf("ssrc %d", ssrc)}
			}
		}
	}
	return nil
}

func validateMsidUniqueness(set EndpointSourceSet) error {
	grouped := make(map[uint32]bool)
	for _, g := range set.ssrcGroups {
		for _, ssrc := range g.Ssrcs {
			grouped[ssrc] = true
		}
	}
	seen := make(map[string]MediaType)
	for _, src := range set.sources {
		if grouped[src.SSRC] || src.Msid == "" {
			continue
		}
		if media, ok := seen[src.Msid]; ok && media == src.Media {
			return &ValidationError{Kind: DuplicateMsid, Msg: src.Msid}
		}
		seen[src.Msid] = src.Media
	}
	return nil
}

func truncate(set EndpointSourceSet, keep int) EndpointSourceSet {
	if keep < 0 {
		keep = 0
	}
	if keep >= len(set.sources) {
		return set
	}
	var out EndpointSourceSet
	kept := make(map[uint32]bool, keep)
	for i := 0; i < keep; i++ {
		out = out.withSource(set.sources[i])
		kept[set.sources[i].SSRC] = true
	}
	for _, g := range set.ssrcGroups {
		allKept := true
		for _, ssrc := range g.Ssrcs {
			if !kept[ssrc] {
				allKept = false
				break
			}
		}
		if allKept {
			out = out.withGroup(g)
		}
	}
	return out
}
