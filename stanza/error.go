// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

package stanza

import (
	"encoding/xml"
	"strings"

	"github.com/jiconf/focus/internal/ns"
	"github.com/jiconf/focus/jid"
)

// ErrorType classifies how the sender of a stanza error expects the
// recipient to react (retry, abort, wait, …).
type ErrorType int

// Stanza error types, per RFC 6120 §8.3.2.
const (
	// Cancel indicates that the error cannot be remedied and the operation
	// should not be retried.
	Cancel ErrorType = iota
	// Auth indicates that an operation should be retried after providing
	// credentials.
	Auth
	// Continue indicates that the operation can proceed (the condition was
	// only a warning).
	Continue
	// Modify indicates that the operation can be retried after changing the
	// data sent.
	Modify
	// Wait indicates that an error is temporary and may be retried.
	Wait
)

func (t ErrorType) String() string {
	switch t {
	case Auth:
		return "auth"
	case Continue:
		return "continue"
	case Modify:
		return "modify"
	case Wait:
		return "wait"
	default:
		return "cancel"
	}
}

// MarshalXMLAttr satisfies xml.MarshalerAttr.
func (t ErrorType) MarshalXMLAttr(name xml.Name) (xml.Attr, error) {
	return xml.Attr{Name: name, Value: strings.ToLower(t.String())}, nil
}

// UnmarshalXMLAttr satisfies xml.UnmarshalerAttr.
func (t *ErrorType) UnmarshalXMLAttr(attr xml.Attr) error {
	switch attr.Value {
	case "auth":
		*t = Auth
	case "continue":
		*t = Continue
	case "modify":
		*t = Modify
	case "wait":
		*t = Wait
	default:
		*t = Cancel
	}
	return nil
}

// Condition is a stanza error condition that can be encapsulated by an
// <error/> element, per RFC 6120 §8.3.3, extended with the focus-specific
// "session-invalid" application condition used by the authentication store.
type Condition string

// A list of stanza error conditions used by the focus.
const (
	BadRequest            Condition = "bad-request"
	Conflict              Condition = "conflict"
	FeatureNotImplemented Condition = "feature-not-implemented"
	Forbidden             Condition = "forbidden"
	Gone                  Condition = "gone"
	InternalServerError   Condition = "internal-server-error"
	ItemNotFound          Condition = "item-not-found"
	JIDMalformed          Condition = "jid-malformed"
	NotAcceptable         Condition = "not-acceptable"
	NotAllowed            Condition = "not-allowed"
	NotAuthorized         Condition = "not-authorized"
	ResourceConstraint    Condition = "resource-constraint"
	ServiceUnavailable    Condition = "service-unavailable"
	UndefinedCondition    Condition = "undefined-condition"
	UnexpectedRequest     Condition = "unexpected-request"
)

// Error is an implementation of error intended to be marshalable and
// unmarshalable as XML, with an optional application-specific condition
// (AppCondition, such as session-invalid) for conditions outside RFC 6120's
// list.
type Error struct {
	XMLName   xml.Name
	By        *jid.JID
	Type      ErrorType
	Condition Condition
	Text      string

	// AppCondition, if set, is marshaled as an additional child element of
	// the error, qualified by AppNamespace. Used for session-invalid.
	AppCondition string
	AppNamespace string
}

// Error satisfies the error interface.
func (se Error) Error() string {
	if se.Text != "" {
		return se.Text
	}
	return string(se.Condition)
}

// MarshalXML satisfies xml.Marshaler.
func (se Error) MarshalXML(e *xml.Encoder, _ xml.StartElement) error {
	start := xml.StartElement{Name: xml.Name{Local: "error"}}
	typAttr, _ := se.Type.MarshalXMLAttr(xml.Name{Local: "type"})
	start.Attr = append(start.Attr, typAttr)
	if se.By != nil {
		a, _ := se.By.MarshalXMLAttr(xml.Name{Local: "by"})
		start.Attr = append(start.Attr, a)
	}
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	cond := xml.StartElement{Name: xml.Name{Space: ns.Stanza, Local: string(se.Condition)}}
	if err := e.EncodeToken(cond); err != nil {
		return err
	}
	if err := e.EncodeToken(cond.End()); err != nil {
		return err
	}
	if se.AppCondition != "" {
		app := xml.StartElement{Name: xml.Name{Space: se.AppNamespace, Local: se.AppCondition}}
		if err := e.EncodeToken(app); err != nil {
			return err
		}
		if err := e.EncodeToken(app.End()); err != nil {
			return err
		}
	}
	if se.Text != "" {
		text := xml.StartElement{Name: xml.Name{Space: ns.Stanza, Local: "text"}}
		if err := e.EncodeToken(text); err != nil {
			return err
		}
		if err := e.EncodeToken(xml.CharData(se.Text)); err != nil {
			return err
		}
		if err := e.EncodeToken(text.End()); err != nil {
			return err
		}
	}
	return e.EncodeToken(start.End())
}

// UnmarshalXML satisfies xml.Unmarshaler.
func (se *Error) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	decoded := struct {
		Condition struct {
			XMLName xml.Name
		} `xml:",any"`
		Type Condition `xml:"-"`
		By   *jid.JID  `xml:"by,attr"`
		Text string    `xml:"urn:ietf:params:xml:ns:xmpp-stanzas text"`
	}{}
	if err := d.DecodeElement(&decoded, &start); err != nil {
		return err
	}
	for _, a := range start.Attr {
		if a.Name.Local == "type" {
			var t ErrorType
			_ = t.UnmarshalXMLAttr(a)
			se.Type = t
		}
	}
	se.By = decoded.By
	se.Text = decoded.Text
	se.Condition = Condition(decoded.Condition.XMLName.Local)
	return nil
}
