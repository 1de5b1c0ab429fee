// Package signaling implements the per-participant outbox of spec.md §4.2:
// SourceSignaling tracks what a peer has already been told about the
// conference's sources and computes the add/remove diff to flush next, and
// AddRemoveQueue merges consecutive same-kind operations before they
// are sent.
package signaling

import "github.com/jiconf/focus/source"

// PeerCapabilities describes what a participant's Jingle peer can receive,
// gating SourceSignaling's per-peer filter.
type PeerCapabilities struct {
	ReceivesAudio             bool
	ReceivesVideo             bool
	ReceivesSimulcast         bool
	ReceivesMultipleStreams   bool
}

// Op is one source-add or source-remove operation produced by a flush.
type Op struct {
	Add   bool // true = source-add, false = source-remove
	Delta source.ConferenceSourceMap
}

// SourceSignaling holds the last-signaled and pending source maps for one
// participant's peer, per spec.md §4.2.
type SourceSignaling struct {
	caps     PeerCapabilities
	signaled source.ConferenceSourceMap
	updated  source.ConferenceSourceMap
}

// New constructs a SourceSignaling for a peer with the given capabilities.
func New(caps PeerCapabilities) *SourceSignaling {
	return &SourceSignaling{
		caps:     caps,
		signaled: source.ConferenceSourceMap{},
		updated:  source.ConferenceSourceMap{},
	}
}

// AddSources merges delta into the pending (updated) map for endpoint id.
func (s *SourceSignaling) AddSources(id string, delta source.EndpointSourceSet) {
	s.updated = s.updated.Clone()
	s.updated[id] = s.updated[id].Union(delta)
}

// RemoveSources removes delta from the pending map for endpoint id.
func (s *SourceSignaling) RemoveSources(id string, delta source.EndpointSourceSet) {
	s.updated = s.updated.Clone()
	remaining := s.updated[id].Diff(delta)
	if remaining.Empty() {
		delete(s.updated, id)
	} else {
		s.updated[id] = remaining
	}
}

// ReplaceAll sets the pending map wholesale, e.g. when (re-)initiating with
// the conference's full current source map.
func (s *SourceSignaling) ReplaceAll(m source.ConferenceSourceMap) {
	s.updated = m.Clone()
}

// Flush computes toAdd and toRemove per spec.md §4.2 and advances
// signaled := updated. Returns an ordered slice with the add Op (if
// non-empty) before the remove Op (if non-empty); an empty slice means
// nothing changed since the last flush.
func (s *SourceSignaling) Flush() []Op {
	filteredSignaled := s.filter(s.signaled)
	filteredUpdated := s.filter(s.updated)

	toAdd := diffMap(filteredUpdated, filteredSignaled)
	toRemove := diffMap(filteredSignaled, filteredUpdated)

	s.signaled = s.updated.Clone()

	var ops []Op
	if len(toAdd) > 0 {
		ops = append(ops, Op{Add: true, Delta: toAdd})
	}
	if len(toRemove) > 0 {
		ops = append(ops, Op{Add: false, Delta: toRemove})
	}
	return ops
}

func diffMap(a, b source.ConferenceSourceMap) source.ConferenceSourceMap {
	out := source.ConferenceSourceMap{}
	for id, set := range a {
		d := set.Diff(b[id])
		if !d.Empty() {
			out[id] = d
		}
	}
	return out
}

// filter applies the peer's capability mask: media-type, simulcast
// collapse, and multi-stream filtering, per spec.md §4.2.
func (s *SourceSignaling) filter(m source.ConferenceSourceMap) source.ConferenceSourceMap {
	out := source.ConferenceSourceMap{}
	for id, set := range m {
		filtered := set
		switch {
		case !s.caps.ReceivesAudio && !s.caps.ReceivesVideo:
			filtered = source.EndpointSourceSet{}
		case !s.caps.ReceivesAudio:
			filtered = filtered.FilterByMediaType(source.Video)
		case !s.caps.ReceivesVideo:
			filtered = filtered.FilterByMediaType(source.Audio)
		}
		if !s.caps.ReceivesSimulcast {
			filtered = filtered.StripSimulcast()
		}
		if !s.caps.ReceivesMultipleStreams {
			filtered = filtered.FilterMultiStream()
		}
		if !filtered.Empty() {
			out[id] = filtered
		}
	}
	return out
}
