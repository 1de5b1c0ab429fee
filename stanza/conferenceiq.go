// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stanza

import "encoding/xml"

// ConferenceIQ is the admission-path stanza described in spec §6: a client
// asks the focus to create or join a conference, optionally presenting a
// previously issued session id.
type ConferenceIQ struct {
	IQ
	Conference ConferenceRequest `xml:"http://jitsi.org/protocol/focus conference"`
}

// ConferenceRequest is the <conference/> payload of a ConferenceIQ.
type ConferenceRequest struct {
	XMLName    xml.Name `xml:"conference"`
	Room       string   `xml:"room,attr"`
	MachineUID string   `xml:"machine-uid,attr,omitempty"`
	SessionID  string   `xml:"session-id,attr,omitempty"`
	Identity   string   `xml:"identity,attr,omitempty"`

	// Ready is set in the result IQ: true once the room exists and has a
	// focus occupant.
	Ready bool `xml:"ready,attr,omitempty"`

	// FocusJID is returned in the result IQ.
	FocusJID string `xml:"focusjid,attr,omitempty"`
}
