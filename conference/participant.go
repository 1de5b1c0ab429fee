// Package conference implements ParticipantManager and its supporting
// Conference/Registry/LoadRedistributor types (spec.md §4.8/§4.10): the
// per-conference serial task queue that drives join/invite/re-invite/
// source-propagation/leave, and the process-wide conference registry and
// bridge-drain API built on top of it.
package conference

import (
	"github.com/jiconf/focus/jingle"
	"github.com/jiconf/focus/signaling"
	"github.com/jiconf/focus/stanza"
)

// Role is a participant's privilege level within a conference (spec.md §3).
type Role int

const (
	Visitor Role = iota
	ParticipantRole
	Moderator
	Owner
)

func (r Role) String() string {
	switch r {
	case Visitor:
		return "visitor"
	case Moderator:
		return "moderator"
	case Owner:
		return "owner"
	default:
		return "participant"
	}
}

// IsModerator reports whether r may start/stop Jibri sessions and trigger
// admin-level moves (spec.md §8 invariant 9).
func (r Role) IsModerator() bool { return r == Moderator || r == Owner }

// Features is the capability set a participant advertised on join,
// consulted by SourceSignaling's per-peer filter (spec.md §4.2).
type Features struct {
	SourceName              bool
	JSONEncodedSources      bool
	ReceivesMultipleStreams bool
	ReceivesAudio           bool
	ReceivesVideo           bool
	Simulcast               bool
}

// FeaturesFromPresence derives a participant's capability set from its MUC
// join presence, the way mellium.im/xmpp/muc decodes a join presence's `<x/>`
// extension into occupant state rather than requiring it pre-populated.
func FeaturesFromPresence(p stanza.ParticipantPresence) Features {
	return Features{
		SourceName:              p.SourceNameSupport,
		JSONEncodedSources:      p.JSONEncodedSources,
		ReceivesMultipleStreams: p.ReceivesMultipleStreams,
		ReceivesAudio:           !p.AudioMuted,
		ReceivesVideo:           !p.VideoMuted,
		Simulcast:               p.Simulcast,
	}
}

func (f Features) toCaps() signaling.PeerCapabilities {
	return signaling.PeerCapabilities{
		ReceivesAudio:           f.ReceivesAudio,
		ReceivesVideo:           f.ReceivesVideo,
		ReceivesSimulcast:       f.Simulcast,
		ReceivesMultipleStreams: f.ReceivesMultipleStreams,
	}
}

// Participant is one occupant of the conference MUC (spec.md §3). It is
// mutated only on its owning Conference's serial task queue.
type Participant struct {
	ID                string
	JID               string
	Features          Features
	Role              Role
	SupportedCodecs   []string
	Region            string
	MachineUID        string
	SessionID         string

	JingleSession   *jingle.Session
	SourceSignaling *signaling.SourceSignaling

	colibriAllocated bool
	bridgeID         string
}

func newParticipant(id, jidStr string, features Features, role Role, region string) *Participant {
	return &Participant{
		ID:              id,
		JID:             jidStr,
		Features:        features,
		Role:            role,
		Region:          region,
		SourceSignaling: signaling.New(features.toCaps()),
	}
}

// jibriRequesterOK reports whether p may issue Jibri start/stop requests.
func (p *Participant) jibriRequesterOK() bool { return p.Role.IsModerator() }
