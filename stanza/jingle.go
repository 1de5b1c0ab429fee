// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stanza

import (
	"encoding/xml"

	"github.com/pion/sdp/v3"

	"github.com/jiconf/focus/jid"
)

// JingleAction identifies the semantics of a JingleIQ payload.
type JingleAction string

// The Jingle actions the focus sends or handles, per XEP-0166 and the
// Jitsi source-signaling extensions.
const (
	SessionInitiate  JingleAction = "session-initiate"
	SessionAccept    JingleAction = "session-accept"
	SessionInfo      JingleAction = "session-info"
	SessionTerminate JingleAction = "session-terminate"
	TransportAccept  JingleAction = "transport-accept"
	TransportInfo    JingleAction = "transport-info"
	TransportReject  JingleAction = "transport-reject"
	TransportReplace JingleAction = "transport-replace"
	SourceAdd        JingleAction = "source-add"
	SourceRemove     JingleAction = "source-remove"
	AddSource        JingleAction = "addsource"    // legacy alias for SourceAdd
	RemoveSource     JingleAction = "removesource" // legacy alias for SourceRemove
)

// Canonical folds the legacy addsource/removesource aliases into
// SourceAdd/SourceRemove so dispatch code only has to switch on one name.
func (a JingleAction) Canonical() JingleAction {
	switch a {
	case AddSource:
		return SourceAdd
	case RemoveSource:
		return SourceRemove
	default:
		return a
	}
}

// JingleIQ is an IQ stanza carrying a Jingle payload, following the
// composition pattern documented in this package's doc.go (embed IQ, add the
// payload as a tagged field).
type JingleIQ struct {
	IQ
	Jingle Jingle `xml:"urn:xmpp:jingle:1 jingle"`
}

// Jingle is the <jingle/> payload of a JingleIQ.
type Jingle struct {
	XMLName   xml.Name      `xml:"jingle"`
	Action    JingleAction  `xml:"action,attr"`
	SID       string        `xml:"sid,attr"`
	Initiator *jid.JID      `xml:"initiator,attr,omitempty"`
	Responder *jid.JID      `xml:"responder,attr,omitempty"`
	Reason    *JingleReason `xml:"reason,omitempty"`

	Contents []Content    `xml:"content"`
	Group    *Group       `xml:"urn:xmpp:jingle:apps:grouping:0 group,omitempty"`
	JSON     *JSONSources `xml:"jitsi-json-message,omitempty"`
}

// JingleReason carries the human/machine reason attached to a
// session-terminate.
type JingleReason struct {
	Condition string `xml:",innerxml"`
	Text      string `xml:"text,omitempty"`
}

// Content is one Jingle <content/> element: one media description plus its
// transport.
type Content struct {
	Name      string           `xml:"name,attr"`
	Creator   string           `xml:"creator,attr,omitempty"`
	Senders   string           `xml:"senders,attr,omitempty"`
	RTP       *RtpDescription  `xml:"urn:xmpp:jingle:apps:rtp:1 description,omitempty"`
	Transport *IceUdpTransport `xml:"urn:xmpp:jingle:transports:ice-udp:1 transport,omitempty"`
}

// RtpDescription is the RTP media description for a Jingle content,
// including the enabled codec list. Codec parameters reuse pion/sdp's
// Codec shape rather than inventing a parallel representation.
type RtpDescription struct {
	Media  string      `xml:"media,attr"`
	Codecs []sdp.Codec `xml:"-"`

	// PayloadTypes is the wire-level encoding of Codecs (XML <payload-type/>
	// children); it is populated from Codecs immediately before marshaling
	// and parsed back into Codecs immediately after unmarshaling.
	PayloadTypes []PayloadType `xml:"payload-type"`
}

// PayloadType is one <payload-type/> child of an RtpDescription.
type PayloadType struct {
	ID        uint8  `xml:"id,attr"`
	Name      string `xml:"name,attr"`
	ClockRate uint32 `xml:"clockrate,attr,omitempty"`
	Channels  uint8  `xml:"channels,attr,omitempty"`
}

// ToPayloadTypes projects Codecs onto the wire PayloadType list. Call before
// marshaling an RtpDescription built up via Codecs.
func (d *RtpDescription) ToPayloadTypes() {
	d.PayloadTypes = d.PayloadTypes[:0]
	for _, c := range d.Codecs {
		d.PayloadTypes = append(d.PayloadTypes, PayloadType{
			ID:        c.PayloadType,
			Name:      c.Name,
			ClockRate: c.ClockRate,
			Channels:  uint8(c.Channels),
		})
	}
}

// IceUdpTransport carries ICE-UDP candidate/credential information plus an
// optional DTLS fingerprint. The focus passes these as opaque blobs supplied
// by the bridge; it never negotiates ICE/DTLS itself.
type IceUdpTransport struct {
	Pwd        string            `xml:"pwd,attr,omitempty"`
	Ufrag      string            `xml:"ufrag,attr,omitempty"`
	Fingerprint *DtlsFingerprint `xml:"urn:xmpp:jingle:apps:dtls:0 fingerprint,omitempty"`
}

// DtlsFingerprint is an opaque DTLS fingerprint blob.
type DtlsFingerprint struct {
	Hash   string `xml:"hash,attr"`
	Setup  string `xml:"setup,attr,omitempty"`
	Value  string `xml:",chardata"`
}

// Group bundles a set of named contents (RFC 5888 "BUNDLE").
type Group struct {
	Semantics string   `xml:"semantics,attr"`
	Contents  []string `xml:"content"`
}

// JSONSources is the compact-JSON alternative to inline Jingle source
// elements, gated by peer capability per spec §6. The wire format is
// {"sources": <compact>}; Payload holds the already-encoded compact JSON
// document so that this package does not need to know the source package's
// types.
type JSONSources struct {
	Payload []byte `xml:",cdata"`
}
