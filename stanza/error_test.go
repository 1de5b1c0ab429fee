// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stanza_test

import (
	"encoding/xml"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jiconf/focus/stanza"
)

func TestErrorMarshalUnmarshal(t *testing.T) {
	se := stanza.Error{
		Type:      stanza.Cancel,
		Condition: stanza.ResourceConstraint,
		Text:      "all Jibris are busy",
	}
	b, err := xml.Marshal(se)
	require.NoError(t, err)

	var out stanza.Error
	require.NoError(t, xml.Unmarshal(b, &out))
	assert.Equal(t, stanza.ResourceConstraint, out.Condition)
	assert.Equal(t, "all Jibris are busy", out.Text)
}

func TestErrorString(t *testing.T) {
	assert.Equal(t, "not-authorized", stanza.Error{Condition: stanza.NotAuthorized}.Error())
	assert.Equal(t, "boom", stanza.Error{Condition: stanza.NotAuthorized, Text: "boom"}.Error())
}
