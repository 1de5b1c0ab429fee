// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stanza

import "encoding/xml"

// BridgeStats is the presence extension a bridge publishes in its brewery
// MUC, carrying the fields selector.Strategy filters and ranks on.
type BridgeStats struct {
	XMLName            xml.Name `xml:"http://jitsi.org/protocol/colibri stats"`
	Stress             float64  `xml:"stress,attr"`
	Region             string   `xml:"region,attr,omitempty"`
	RelayID            string   `xml:"relay_id,attr,omitempty"`
	Version            string   `xml:"version,attr,omitempty"`
	Operational        bool     `xml:"operational,attr"`
	Drain              bool     `xml:"drain,attr,omitempty"`
	GracefulShutdown   bool     `xml:"graceful_shutdown,attr,omitempty"`
}

// JibriStats is the presence extension a Jibri instance publishes in its
// brewery MUC.
type JibriStats struct {
	XMLName xml.Name `xml:"http://jitsi.org/protocol/jibri health"`
	Health  string   `xml:"health,attr"`
	Busy    string   `xml:"busy,attr"`
}
