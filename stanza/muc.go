// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stanza

import "encoding/xml"

// ParticipantPresence is the presence extension a conference participant
// publishes on join, carrying the receive-capability flags
// conference.FeaturesFromPresence maps onto conference.Features.
type ParticipantPresence struct {
	XMLName                 xml.Name `xml:"http://jitsi.org/jitmeet stats-id"`
	Region                  string   `xml:"region,attr,omitempty"`
	SourceNameSupport       bool     `xml:"source-name-support,attr,omitempty"`
	JSONEncodedSources      bool     `xml:"json-encoded-sources,attr,omitempty"`
	ReceivesMultipleStreams bool     `xml:"multi-stream,attr,omitempty"`
	AudioMuted              bool     `xml:"audiomuted,attr,omitempty"`
	VideoMuted              bool     `xml:"videomuted,attr,omitempty"`
	Simulcast               bool     `xml:"simulcast,attr,omitempty"`
}
