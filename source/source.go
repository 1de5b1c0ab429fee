// Package source implements the SourceSet algebra of spec.md §3/§4.1: an
// immutable model of media SSRCs and ssrc-groups, their union/diff/filter
// operations, and the validator that gates admission of new sources into a
// conference's source map.
package source

// MediaType distinguishes audio from video sources.
type MediaType int

const (
	Audio MediaType = iota
	Video
)

func (m MediaType) String() string {
	if m == Audio {
		return "audio"
	}
	return "video"
}

// VideoType distinguishes a camera feed from a screen-share feed. Zero value
// means "not applicable" (e.g. for audio sources).
type VideoType int

const (
	NoVideoType VideoType = iota
	Camera
	Desktop
)

// Source is one advertised media SSRC. Immutable; always passed and stored
// by value.
type Source struct {
	SSRC      uint32
	Media     MediaType
	Name      string
	Msid      string
	VideoType VideoType
	Injected  bool
}

// Semantics names an ssrc-group's grouping semantics, per RFC 5576 / Jingle
// source conventions.
type Semantics string

const (
	SIM    Semantics = "SIM"
	FID    Semantics = "FID"
	FECFR  Semantics = "FEC-FR"
)

// SsrcGroup is an ordered, immutable grouping of SSRCs sharing semantics and
// a media type. Constructing one with fewer than two ssrcs is a caller bug;
// NewSsrcGroup panics, matching the teacher's "programmer error" stance on
// similarly-shaped constructors.
type SsrcGroup struct {
	Semantics Semantics
	Ssrcs     []uint32
	Media     MediaType
}

// NewSsrcGroup validates the size≥2 invariant from spec.md §3 and returns a
// defensive copy of ssrcs.
func NewSsrcGroup(sem Semantics, ssrcs []uint32, media MediaType) SsrcGroup {
	if len(ssrcs) < 2 {
		panic("source: ssrc-group must contain at least two ssrcs")
	}
	cp := make([]uint32, len(ssrcs))
	copy(cp, ssrcs)
	return SsrcGroup{Semantics: sem, Ssrcs: cp, Media: media}
}

// Contains reports whether ssrc appears in the group.
func (g SsrcGroup) Contains(ssrc uint32) bool {
	for _, s := range g.Ssrcs {
		if s == ssrc {
			return true
		}
	}
	return false
}

func (g SsrcGroup) equal(o SsrcGroup) bool {
	if g.Semantics != o.Semantics || g.Media != o.Media || len(g.Ssrcs) != len(o.Ssrcs) {
		return false
	}
	for i, s := range g.Ssrcs {
		if o.Ssrcs[i] != s {
			return false
		}
	}
	return true
}
