// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stanza

import "encoding/xml"

// ColibriConferenceIQ is the opaque colibri control-protocol payload the
// focus exchanges with a bridge to allocate or modify channels for a
// conference. The focus never interprets the media-layer fields beyond
// those it must fill in or read back (ids, endpoint bindings, relay
// wiring); transport/RTP payloads are passed through as opaque blobs.
type ColibriConferenceIQ struct {
	IQ
	Conference ColibriConference `xml:"jitsi:colibri2 conference"`
}

// ColibriConference is the <conference/> payload of a ColibriConferenceIQ.
type ColibriConference struct {
	XMLName  xml.Name          `xml:"conference"`
	ID       string            `xml:"id,attr"`
	Name     string            `xml:"name,attr,omitempty"`
	Endpoints []ColibriEndpoint `xml:"endpoint"`
	Relays    []ColibriRelay    `xml:"relay"`
}

// ColibriEndpoint describes one participant's channels on this bridge.
type ColibriEndpoint struct {
	ID        string          `xml:"id,attr"`
	Create    bool            `xml:"create,attr,omitempty"`
	Expire    bool            `xml:"expire,attr,omitempty"`
	Transport IceUdpTransport `xml:"transport"`
	Media     []Content       `xml:"media"`
	Sources   []ColibriSource `xml:"source,omitempty"`
}

// ColibriSource is one advertised SSRC pushed to a bridge as part of a
// source-map delta (spec.md §4.7's "push source-map delta to the hosting
// bridge"); the wire form of source.Source.
type ColibriSource struct {
	SSRC  uint32 `xml:"ssrc,attr"`
	Media string `xml:"media,attr"`
	Name  string `xml:"name,attr,omitempty"`
	Msid  string `xml:"msid,attr,omitempty"`
}

// ColibriRelay describes one inter-bridge octo/relay channel connecting
// this bridge to a cascade peer.
type ColibriRelay struct {
	ID        string          `xml:"id,attr"`
	Create    bool            `xml:"create,attr,omitempty"`
	Expire    bool            `xml:"expire,attr,omitempty"`
	Transport IceUdpTransport `xml:"transport"`
}
