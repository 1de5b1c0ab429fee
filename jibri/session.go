package jibri

import (
	"time"

	"github.com/jiconf/focus/jid"
)

// Role distinguishes the three JibriSession subclasses of spec.md §4.9.
type Role int

const (
	Recording Role = iota
	LiveStreaming
	SIP
)

// SessionState mirrors stanza.JibriStatus for in-memory lifecycle tracking.
type SessionState int

const (
	Pending SessionState = iota
	On
	Off
)

func (s SessionState) String() string {
	switch s {
	case Pending:
		return "pending"
	case On:
		return "on"
	default:
		return "off"
	}
}

// Session is one JibriSession (spec.md §3): at most one active
// Recording/LiveStreaming session per conference, but any number of
// concurrent SIP sessions (one per SIP address).
type Session struct {
	Role             Role
	State            SessionState
	JibriJID         *jid.JID
	SessionID        string
	StartInstant     time.Time
	RetriesRemaining int

	StreamID    string
	SIPAddress  string
	FailureReason string
}
