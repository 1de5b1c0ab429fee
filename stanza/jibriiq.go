// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stanza

import "encoding/xml"

// JibriAction is the action attribute of a JibriIQ.
type JibriAction string

// Jibri actions.
const (
	JibriActionStart JibriAction = "start"
	JibriActionStop  JibriAction = "stop"
)

// JibriRecordingMode selects what a recording Jibri session produces.
type JibriRecordingMode string

// Recording modes.
const (
	JibriModeFile   JibriRecordingMode = "file"
	JibriModeStream JibriRecordingMode = "stream"
)

// JibriStatus is the status attribute of a JibriIQ response and of the
// presence extension republished on the conference MUC.
type JibriStatus string

// Jibri session statuses, mirroring jibri.SessionState.
const (
	JibriStatusPending JibriStatus = "pending"
	JibriStatusOn      JibriStatus = "on"
	JibriStatusOff     JibriStatus = "off"
)

// JibriIQ requests that a Jibri instance start or stop recording,
// live-streaming, or SIP-gateway duty for a conference.
type JibriIQ struct {
	IQ
	Jibri JibriRequest `xml:"http://jitsi.org/protocol/jibri jibri"`
}

// JibriRequest is the <jibri/> payload of a JibriIQ.
type JibriRequest struct {
	XMLName       xml.Name           `xml:"jibri"`
	Action        JibriAction        `xml:"action,attr"`
	Status        JibriStatus        `xml:"status,attr,omitempty"`
	StreamID      string             `xml:"streamid,attr,omitempty"`
	RecordingMode JibriRecordingMode `xml:"recording_mode,attr,omitempty"`
	SIPAddress    string             `xml:"sipaddress,attr,omitempty"`
	DisplayName   string             `xml:"displayname,attr,omitempty"`
	YoutubeBroadcastID string        `xml:"youtubebroadcastid,attr,omitempty"`
	SessionID     string             `xml:"session_id,attr,omitempty"`
	AppData       string             `xml:"app_data,attr,omitempty"`
	FailureReason string             `xml:"failure_reason,attr,omitempty"`
}

// JibriPresence is the presence extension published on the conference MUC
// reporting recording/live-streaming status to all occupants.
type JibriPresence struct {
	XMLName xml.Name    `xml:"http://jitsi.org/protocol/jibri jibri-recording-status"`
	Status  JibriStatus `xml:"status,attr"`
	Initiator string    `xml:"initiator,attr,omitempty"`
}

// SIPCallPresence is the presence extension published on the conference MUC
// reporting SIP-gateway call status.
type SIPCallPresence struct {
	XMLName xml.Name    `xml:"http://jitsi.org/protocol/jibri sip-call-state"`
	Status  JibriStatus `xml:"state,attr"`
}
