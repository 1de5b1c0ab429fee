// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package ns provides namespace constants used throughout the focus and its
// supporting stanza/mux/muc packages.
package ns // import "github.com/jiconf/focus/internal/ns"

// Core XMPP namespaces.
const (
	Client = "jabber:client"
	Server = "jabber:server"
	Stanza = "urn:ietf:params:xml:ns:xmpp-stanzas"
	XML    = "http://www.w3.org/XML/1998/namespace"
)

// MUC namespaces, as used by the conference room and the bridge/Jibri
// breweries.
const (
	MUC      = "http://jabber.org/protocol/muc"
	MUCUser  = "http://jabber.org/protocol/muc#user"
	MUCAdmin = "http://jabber.org/protocol/muc#admin"
	MUCOwner = "http://jabber.org/protocol/muc#owner"
)

// Focus-domain namespaces for payloads carried over Jingle, colibri,
// ConferenceIq, and JibriIq.
const (
	Jingle         = "urn:xmpp:jingle:1"
	JingleGroup    = "urn:xmpp:jingle:apps:grouping:0"
	JingleRtp      = "urn:xmpp:jingle:apps:rtp:1"
	JingleIce      = "urn:xmpp:jingle:transports:ice-udp:1"
	JingleDtls     = "urn:xmpp:jingle:apps:dtls:0"
	JSONMessage    = "urn:xmpp:jitsi:jingle-json-message:0"
	Colibri        = "jitsi:colibri2"
	ConferenceIQ   = "http://jitsi.org/protocol/focus"
	SessionInvalid = "urn:xmpp:sasl:session-invalid"
	Jibri          = "http://jitsi.org/protocol/jibri"
	JibriHealth    = "http://jitsi.org/protocol/jibri#health"
	BridgePresence = "http://jitsi.org/protocol/colibri"
	HealthCheck    = "http://jitsi.org/protocol/healthcheck"
)
