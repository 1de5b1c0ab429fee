// Copyright 2014 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

// Package jid implements the XMPP address format (historically, "Jabber
// ID"). Every participant, bridge, and Jibri instance the focus talks to is
// addressed by a JID; the focus itself treats the value as opaque beyond
// comparison and string conversion.
package jid // import "github.com/jiconf/focus/jid"

import (
	"encoding/xml"
	"errors"
	"fmt"
	"net"
	"strings"
)

// JID is an XMPP address comprising a localpart, domainpart, and
// resourcepart.
type JID struct {
	localpart    string
	domainpart   string
	resourcepart string
}

// Parse constructs a JID from its string representation.
func Parse(s string) (*JID, error) {
	localpart, domainpart, resourcepart, err := splitString(s)
	if err != nil {
		return nil, err
	}
	return FromParts(localpart, domainpart, resourcepart)
}

// MustParse is like Parse but panics on error. Useful in tests and
// initializers for addresses known to be valid at compile time.
func MustParse(s string) *JID {
	j, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return j
}

// FromParts constructs a JID from its localpart, domainpart, and
// resourcepart. Only the domainpart is required.
func FromParts(localpart, domainpart, resourcepart string) (*JID, error) {
	if err := commonChecks(localpart, domainpart, resourcepart); err != nil {
		return nil, err
	}
	return &JID{localpart: localpart, domainpart: domainpart, resourcepart: resourcepart}, nil
}

// Localpart returns the localpart of the JID (e.g. "focus").
func (j *JID) Localpart() string { return j.localpart }

// Domainpart returns the domainpart of the JID (e.g. "conference.example.net").
func (j *JID) Domainpart() string { return j.domainpart }

// Resourcepart returns the resourcepart of the JID (e.g. a MUC nick).
func (j *JID) Resourcepart() string { return j.resourcepart }

// Bare returns a copy of the JID without a resourcepart.
func (j *JID) Bare() *JID {
	return &JID{localpart: j.localpart, domainpart: j.domainpart}
}

// WithResource returns a copy of the JID with the resourcepart replaced.
func (j *JID) WithResource(resource string) (*JID, error) {
	return FromParts(j.localpart, j.domainpart, resource)
}

// Equal performs an octet-for-octet comparison with the given JID. Two nil
// JIDs are equal; a nil JID is never equal to a non-nil one.
func (j *JID) Equal(o *JID) bool {
	if j == nil || o == nil {
		return j == o
	}
	return j.localpart == o.localpart && j.domainpart == o.domainpart && j.resourcepart == o.resourcepart
}

// String converts a JID to its string representation.
func (j *JID) String() string {
	if j == nil {
		return ""
	}
	s := j.domainpart
	if j.localpart != "" {
		s = j.localpart + "@" + s
	}
	if j.resourcepart != "" {
		s = s + "/" + j.resourcepart
	}
	return s
}

// MarshalXMLAttr satisfies xml.MarshalerAttr.
func (j *JID) MarshalXMLAttr(name xml.Name) (xml.Attr, error) {
	if j == nil {
		return xml.Attr{}, nil
	}
	return xml.Attr{Name: name, Value: j.String()}, nil
}

// UnmarshalXMLAttr satisfies xml.UnmarshalerAttr.
func (j *JID) UnmarshalXMLAttr(attr xml.Attr) error {
	parsed, err := Parse(attr.Value)
	if err != nil {
		return err
	}
	*j = *parsed
	return nil
}

func splitString(s string) (localpart, domainpart, resourcepart string, err error) {
	parts := strings.SplitN(s, "/", 2)
	norp := parts[0]
	if len(parts) == 2 {
		if parts[1] == "" {
			return "", "", "", errors.New("jid: resourcepart must be non-empty if present")
		}
		resourcepart = parts[1]
	}

	nolp := strings.SplitN(norp, "@", 2)
	switch len(nolp) {
	case 1:
		domainpart = nolp[0]
	case 2:
		if nolp[0] == "" {
			return "", "", "", errors.New("jid: localpart must be non-empty if present")
		}
		localpart = nolp[0]
		domainpart = nolp[1]
	}
	domainpart = strings.TrimSuffix(domainpart, ".")
	return localpart, domainpart, resourcepart, nil
}

func checkIP6String(domainpart string) error {
	if l := len(domainpart); l > 2 && strings.HasPrefix(domainpart, "[") && strings.HasSuffix(domainpart, "]") {
		if ip := net.ParseIP(domainpart[1 : l-1]); ip == nil || ip.To4() != nil {
			return errors.New("jid: domainpart is not a valid IPv6 literal")
		}
	}
	return nil
}

func commonChecks(localpart, domainpart, resourcepart string) error {
	if len(localpart) > 1023 {
		return errors.New("jid: localpart must be smaller than 1024 bytes")
	}
	if strings.ContainsAny(localpart, "\"&'/:<>@") {
		return fmt.Errorf("jid: localpart %q contains forbidden characters", localpart)
	}
	if len(resourcepart) > 1023 {
		return errors.New("jid: resourcepart must be smaller than 1024 bytes")
	}
	if l := len(domainpart); l < 1 || l > 1023 {
		return errors.New("jid: domainpart must be between 1 and 1023 bytes")
	}
	return checkIP6String(domainpart)
}
