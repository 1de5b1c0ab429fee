package jingle

import (
	"encoding/json"

	"github.com/jiconf/focus/source"
	"github.com/jiconf/focus/stanza"
)

// compactSource is the wire shape of spec.md §6's compact source JSON:
// {"s":<ssrc>,"n":"<name>","m":"<msid>"}, omitting n/m when empty. Media
// type is never encoded; it is inferred from the enclosing Jingle content
// name by the caller.
type compactSource struct {
	SSRC uint32 `json:"s"`
	Name string `json:"n,omitempty"`
	Msid string `json:"m,omitempty"`
}

type compactDoc struct {
	Sources []compactSource `json:"sources"`
}

// EncodeCompactSources renders sources (of a single media type) as the
// compact JSON payload spec.md §6 and §4.3 describe, for embedding in a
// stanza.JSONSources extension.
func EncodeCompactSources(sources []source.Source) (*stanza.JSONSources, error) {
	doc := compactDoc{Sources: make([]compactSource, 0, len(sources))}
	for _, s := range sources {
		doc.Sources = append(doc.Sources, compactSource{SSRC: s.SSRC, Name: s.Name, Msid: s.Msid})
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return &stanza.JSONSources{Payload: b}, nil
}

// DecodeCompactSources parses a stanza.JSONSources payload back into
// sources of the given media type (inferred from the enclosing content, as
// the wire format itself carries no media-type field).
func DecodeCompactSources(payload *stanza.JSONSources, media source.MediaType) ([]source.Source, error) {
	if payload == nil {
		return nil, nil
	}
	var doc compactDoc
	if err := json.Unmarshal(payload.Payload, &doc); err != nil {
		return nil, err
	}
	out := make([]source.Source, 0, len(doc.Sources))
	for _, cs := range doc.Sources {
		out = append(out, source.Source{SSRC: cs.SSRC, Name: cs.Name, Msid: cs.Msid, Media: media})
	}
	return out, nil
}
