// Copyright 2020 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package mux contains a simple multiplexer for dispatching IQ stanzas by
// type and payload XML name. It is the dispatch mechanism behind
// focusiq.Handler (ConferenceIq), jingle.Registry (JingleIq), and
// jibri.Dispatcher (JibriIq).
package mux // import "github.com/jiconf/focus/mux"

import (
	"encoding/xml"

	"mellium.im/xmlstream"

	"github.com/jiconf/focus/internal/marshal"
	"github.com/jiconf/focus/internal/ns"
	"github.com/jiconf/focus/jid"
	"github.com/jiconf/focus/stanza"
)

// IQHandler responds to an IQ stanza.
type IQHandler interface {
	HandleIQ(iq stanza.IQ, t xmlstream.TokenReadEncoder, start *xml.StartElement) error
}

// IQHandlerFunc is an adapter to allow the use of ordinary functions as IQ
// handlers. If f is a function with the appropriate signature,
// IQHandlerFunc(f) is an IQHandler that calls f.
type IQHandlerFunc func(iq stanza.IQ, t xmlstream.TokenReadEncoder, start *xml.StartElement) error

// HandleIQ calls f(iq, t, start).
func (f IQHandlerFunc) HandleIQ(iq stanza.IQ, t xmlstream.TokenReadEncoder, start *xml.StartElement) error {
	return f(iq, t, start)
}

type patternKey struct {
	xml.Name
	Type stanza.IQType
}

// IQMux is a multiplexer for handling IQ payloads.
//
// IQs are matched by type and the XML name of their first child element (if
// any). If either the namespace or the localname is left off, any namespace
// or localname will be matched. Full XML names take precedence, followed by
// wildcard localnames, followed by wildcard namespaces.
type IQMux struct {
	patterns map[patternKey]IQHandler
}

// NewIQMux allocates and returns a new IQMux.
func NewIQMux(opt ...IQOption) *IQMux {
	m := &IQMux{}
	for _, o := range opt {
		o(m)
	}
	return m
}

// Handler returns the handler to use for an IQ payload with the given name
// and type. If no handler exists, a default handler is returned (h is
// always non-nil).
func (m *IQMux) Handler(iqType stanza.IQType, name xml.Name) (h IQHandler, ok bool) {
	pattern := patternKey{Name: name, Type: iqType}
	if h = m.patterns[pattern]; h != nil {
		return h, true
	}

	n := name
	n.Space = ""
	pattern.Name = n
	if h = m.patterns[pattern]; h != nil {
		return h, true
	}

	n = name
	n.Local = ""
	pattern.Name = n
	if h = m.patterns[pattern]; h != nil {
		return h, true
	}

	pattern.Name = xml.Name{}
	if h = m.patterns[pattern]; h != nil {
		return h, true
	}

	return IQHandlerFunc(iqFallback), false
}

func getPayload(t xmlstream.TokenReadEncoder, start *xml.StartElement) (stanza.IQ, *xml.StartElement, error) {
	iq, err := newIQFromStart(start)
	if err != nil {
		return iq, nil, err
	}

	tok, err := t.Token()
	if err != nil {
		return iq, nil, err
	}
	// Result (or malformed) IQs may have no payload, so start may end up nil.
	payloadStart, ok := tok.(xml.StartElement)
	start = &payloadStart
	if !ok {
		start = nil
	}
	return iq, start, nil
}

// HandleXMPP dispatches the IQ to the handler whose pattern most closely
// matches start.Name.
func (m *IQMux) HandleXMPP(t xmlstream.TokenReadEncoder, start *xml.StartElement) error {
	iq, start, err := getPayload(t, start)
	if err != nil {
		return err
	}

	var name xml.Name
	if start != nil {
		name = start.Name
	}
	h, _ := m.Handler(iq.Type, name)
	return h.HandleIQ(iq, t, start)
}

// IQOption configures an IQMux.
type IQOption func(m *IQMux)

// HandleIQ returns an option that matches the IQ payload by XML name and IQ
// type. For readability, users may want to use the GetIQ, SetIQ, ErrorIQ,
// and ResultIQ shortcuts instead.
func HandleIQ(iqType stanza.IQType, n xml.Name, h IQHandler) IQOption {
	return func(m *IQMux) {
		if h == nil {
			panic("mux: nil handler")
		}
		pattern := patternKey{Name: n, Type: iqType}
		if _, ok := m.patterns[pattern]; ok {
			panic("mux: multiple registrations for {" + pattern.Space + "}" + pattern.Local)
		}
		if m.patterns == nil {
			m.patterns = make(map[patternKey]IQHandler)
		}
		m.patterns[pattern] = h
	}
}

// GetIQ is a shortcut for HandleIQ with the type set to "get".
func GetIQ(n xml.Name, h IQHandler) IQOption { return HandleIQ(stanza.GetIQ, n, h) }

// SetIQ is a shortcut for HandleIQ with the type set to "set".
func SetIQ(n xml.Name, h IQHandler) IQOption { return HandleIQ(stanza.SetIQ, n, h) }

// ErrorIQ is a shortcut for HandleIQ with the type set to "error" and a
// wildcard XML name.
//
// Error IQs may contain more than one child element and the order is not
// guaranteed, so it is usually wise to register one handler for all error
// IQs rather than matching on a specific payload name.
func ErrorIQ(h IQHandler) IQOption { return HandleIQ(stanza.ErrorIQ, xml.Name{}, h) }

// ResultIQ is a shortcut for HandleIQ with the type set to "result".
//
// Unlike get, set, and error IQs, result IQs may have no payload at all;
// handlers must check whether start is nil.
func ResultIQ(n xml.Name, h IQHandler) IQOption { return HandleIQ(stanza.ResultIQ, n, h) }

func newIQFromStart(start *xml.StartElement) (stanza.IQ, error) {
	iq := stanza.IQ{}
	var err error
	for _, a := range start.Attr {
		if a.Name.Space != "" && a.Name.Space != ns.XML {
			continue
		}
		switch a.Name.Local {
		case "id":
			iq.ID = a.Value
		case "to":
			iq.To, err = jid.Parse(a.Value)
		case "from":
			iq.From, err = jid.Parse(a.Value)
		case "lang":
			iq.Lang = a.Value
		case "type":
			iq.Type = stanza.IQType(a.Value)
		}
		if err != nil {
			return iq, err
		}
	}
	return iq, nil
}

// iqFallback answers any unmatched get/set IQ with service-unavailable, and
// silently drops unmatched result/error IQs.
func iqFallback(iq stanza.IQ, t xmlstream.TokenReadEncoder, start *xml.StartElement) error {
	if iq.Type == stanza.ErrorIQ || iq.Type == stanza.ResultIQ {
		return nil
	}

	resp := stanza.IQ{ID: iq.ID, To: iq.From, From: iq.To, Type: stanza.ErrorIQ}
	payload := stanza.Error{Type: stanza.Cancel, Condition: stanza.ServiceUnavailable}
	return marshal.EncodeXMLElement(t, payload, xml.StartElement{Name: xml.Name{Local: "iq"},
		Attr: iqAttrs(resp)})
}

func iqAttrs(iq stanza.IQ) []xml.Attr {
	attrs := []xml.Attr{{Name: xml.Name{Local: "id"}, Value: iq.ID}, {Name: xml.Name{Local: "type"}, Value: string(iq.Type)}}
	if iq.To != nil {
		attrs = append(attrs, xml.Attr{Name: xml.Name{Local: "to"}, Value: iq.To.String()})
	}
	if iq.From != nil {
		attrs = append(attrs, xml.Attr{Name: xml.Name{Local: "from"}, Value: iq.From.String()})
	}
	return attrs
}
