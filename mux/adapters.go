package mux

import (
	"context"
	"encoding/xml"
	"time"

	"mellium.im/xmlstream"

	"github.com/jiconf/focus/focuserr"
	"github.com/jiconf/focus/focusiq"
	"github.com/jiconf/focus/internal/marshal"
	"github.com/jiconf/focus/jibri"
	"github.com/jiconf/focus/jid"
	"github.com/jiconf/focus/jingle"
	"github.com/jiconf/focus/stanza"
)

// decodeInner re-reads start plus the element's remaining tokens from t and
// unmarshals them into v, the way mellium-xmpp/paging/rsm.go decodes a
// payload it has already partially consumed: a fresh xml.Decoder fed a
// MultiReader of the start token followed by the rest of the stream.
func decodeInner(t xmlstream.TokenReadEncoder, start *xml.StartElement, v interface{}) error {
	r := xmlstream.MultiReader(xmlstream.Token(*start), xmlstream.Inner(t))
	return xml.NewTokenDecoder(r).Decode(v)
}

func writeResultIQ(t xmlstream.TokenReadEncoder, reqID string, to, from *jid.JID, payload interface{}) error {
	attrs := []xml.Attr{{Name: xml.Name{Local: "id"}, Value: reqID}, {Name: xml.Name{Local: "type"}, Value: string(stanza.ResultIQ)}}
	if to != nil {
		attrs = append(attrs, xml.Attr{Name: xml.Name{Local: "to"}, Value: to.String()})
	}
	if from != nil {
		attrs = append(attrs, xml.Attr{Name: xml.Name{Local: "from"}, Value: from.String()})
	}
	iqStart := xml.StartElement{Name: xml.Name{Local: "iq"}, Attr: attrs}
	if payload == nil {
		return marshal.EncodeXMLElement(t, struct{}{}, iqStart)
	}
	return marshal.EncodeXMLElement(t, payload, iqStart)
}

func writeErrorIQ(t xmlstream.TokenReadEncoder, reqID string, to, from *jid.JID, err error) error {
	attrs := []xml.Attr{
		{Name: xml.Name{Local: "id"}, Value: reqID},
		{Name: xml.Name{Local: "type"}, Value: string(stanza.ErrorIQ)},
	}
	if to != nil {
		attrs = append(attrs, xml.Attr{Name: xml.Name{Local: "to"}, Value: to.String()})
	}
	if from != nil {
		attrs = append(attrs, xml.Attr{Name: xml.Name{Local: "from"}, Value: from.String()})
	}
	return marshal.EncodeXMLElement(t, focuserr.ToIQError(err), xml.StartElement{Name: xml.Name{Local: "iq"}, Attr: attrs})
}

// ConferenceIQHandler adapts focusiq.Handler to IQHandler, implementing the
// package doc's "dispatch mechanism behind focusiq.Handler (ConferenceIq)".
func ConferenceIQHandler(h *focusiq.Handler) IQHandler {
	return IQHandlerFunc(func(iq stanza.IQ, t xmlstream.TokenReadEncoder, start *xml.StartElement) error {
		var payload stanza.ConferenceRequest
		if start != nil {
			if err := decodeInner(t, start, &payload); err != nil {
				return err
			}
		}
		full := stanza.ConferenceIQ{IQ: iq, Conference: payload}
		resp, err := h.Handle(full, time.Now())
		if err != nil {
			return writeErrorIQ(t, iq.ID, iq.From, iq.To, err)
		}
		return writeResultIQ(t, iq.ID, iq.From, iq.To, resp.Conference)
	})
}

// JingleIQHandler adapts a jingle.Registry's already-bound Sessions to
// IQHandler, implementing the package doc's "dispatch mechanism behind...
// jingle.Registry (JingleIq)": it looks the inbound stanza's session id up
// in the registry and hands the action to that Session's own state
// machine.
func JingleIQHandler(registry *jingle.Registry) IQHandler {
	return IQHandlerFunc(func(iq stanza.IQ, t xmlstream.TokenReadEncoder, start *xml.StartElement) error {
		var payload stanza.Jingle
		if start != nil {
			if err := decodeInner(t, start, &payload); err != nil {
				return err
			}
		}
		sess, ok := registry.Get(payload.SID)
		if !ok {
			return writeErrorIQ(t, iq.ID, iq.From, iq.To, focuserr.New(focuserr.ItemNotFound, "unknown jingle session id"))
		}
		if serr := sess.HandleInbound(payload.Action.Canonical(), payload); serr != nil {
			return writeErrorIQ(t, iq.ID, iq.From, iq.To, focuserr.New(focuserr.UnexpectedRequest, serr.Text))
		}
		return writeResultIQ(t, iq.ID, iq.From, iq.To, nil)
	})
}

// JibriRegistry resolves the per-room collaborators a JibriIQHandler needs:
// the room's own Dispatcher and whether the requester is a moderator.
// conference.Registry implements this.
type JibriRegistry interface {
	JibriDispatcher(room string) (*jibri.Dispatcher, bool)
	IsModerator(room, id string) bool
}

// JibriIQHandler adapts a per-conference jibri.Dispatcher to IQHandler,
// implementing the package doc's "dispatch mechanism behind...
// jibri.Dispatcher (JibriIq)". The room is the IQ's addressee's bare JID,
// mirroring how a Jingle/ConferenceIq's "to" names the focus's occupant JID
// in that room's MUC.
func JibriIQHandler(registry JibriRegistry) IQHandler {
	return IQHandlerFunc(func(iq stanza.IQ, t xmlstream.TokenReadEncoder, start *xml.StartElement) error {
		var payload stanza.JibriRequest
		if start != nil {
			if err := decodeInner(t, start, &payload); err != nil {
				return err
			}
		}
		if iq.To == nil || iq.From == nil {
			return writeErrorIQ(t, iq.ID, iq.From, iq.To, focuserr.New(focuserr.MalformedRequest, "jibri IQ must carry to and from"))
		}
		room := iq.To.Bare().String()
		disp, ok := registry.JibriDispatcher(room)
		if !ok {
			return writeErrorIQ(t, iq.ID, iq.From, iq.To, focuserr.New(focuserr.ItemNotFound, "no such conference"))
		}

		ctx := context.Background()
		isModerator := registry.IsModerator(room, iq.From.String())
		switch payload.Action {
		case stanza.JibriActionStart:
			sess, err := disp.Start(ctx, jibri.StartRequest{
				StreamID:      payload.StreamID,
				FileRecording: payload.RecordingMode == stanza.JibriModeFile,
				SIPAddress:    payload.SIPAddress,
				IsModerator:   isModerator,
			})
			if err != nil {
				return writeErrorIQ(t, iq.ID, iq.From, iq.To, err)
			}
			return writeResultIQ(t, iq.ID, iq.From, iq.To, stanza.JibriRequest{
				Action:    stanza.JibriActionStart,
				SessionID: sess.SessionID,
				Status:    stanza.JibriStatusPending,
			})
		case stanza.JibriActionStop:
			if err := disp.Stop(ctx, payload.SessionID, isModerator); err != nil {
				return writeErrorIQ(t, iq.ID, iq.From, iq.To, err)
			}
			return writeResultIQ(t, iq.ID, iq.From, iq.To, nil)
		default:
			return writeErrorIQ(t, iq.ID, iq.From, iq.To, focuserr.New(focuserr.MalformedRequest, "unknown jibri action"))
		}
	})
}
