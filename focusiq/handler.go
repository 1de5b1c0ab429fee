// Package focusiq implements ConferenceIqHandler (spec.md §4.12): the
// admission path that turns an inbound ConferenceIq into either a joined/
// created conference or an error IQ, after clearing it through the
// authentication authority.
package focusiq

import (
	"time"

	"github.com/jiconf/focus/auth"
	"github.com/jiconf/focus/focuserr"
	"github.com/jiconf/focus/jid"
	"github.com/jiconf/focus/stanza"
)

// Participant is the caller-identity the handler passes to the conference
// store on create/join.
type Participant struct {
	JID        jid.JID
	MachineUID string
	SessionID  string // empty when the join is unauthenticated
	Presence   stanza.ParticipantPresence
}

// Store is the conference registry collaborator: exists/create/join,
// implemented by the conference package's Registry.
type Store interface {
	Exists(room string) bool
	CreateAndJoin(room string, p Participant) (caps Capabilities, err error)
	Join(room string, p Participant) (caps Capabilities, err error)
}

// Capabilities is the set of capability bits a joined conference reports
// back to the client, per spec.md §6.
type Capabilities struct {
	Ready bool
}

// Handler is ConferenceIqHandler.
type Handler struct {
	authority *auth.Authority
	store     Store
	focusJID  jid.JID
}

// New constructs a Handler.
func New(authority *auth.Authority, store Store, focusJID jid.JID) *Handler {
	return &Handler{authority: authority, store: store, focusJID: focusJID}
}

// Handle processes iq and returns the result ConferenceIQ to send back, or
// an error to convert via focuserr.ToIQError into an error IQ.
func (h *Handler) Handle(iq stanza.ConferenceIQ, now time.Time) (stanza.ConferenceIQ, error) {
	if iq.From == nil || iq.Conference.Room == "" {
		return stanza.ConferenceIQ{}, focuserr.New(focuserr.MalformedRequest, "conference IQ must carry from and room")
	}

	sess, err := h.authority.Authenticate(auth.Request{
		Room:       iq.Conference.Room,
		From:       iq.From.String(),
		MachineUID: iq.Conference.MachineUID,
		SessionID:  iq.Conference.SessionID,
	}, now)
	if err != nil {
		return stanza.ConferenceIQ{}, err
	}

	participant := Participant{JID: *iq.From, MachineUID: iq.Conference.MachineUID}
	if sess != nil {
		participant.SessionID = sess.SessionID
	}

	var caps Capabilities
	if !h.store.Exists(iq.Conference.Room) {
		if sess == nil {
			return stanza.ConferenceIQ{}, focuserr.New(focuserr.Forbidden, "only an authenticated caller may create a new conference")
		}
		caps, err = h.store.CreateAndJoin(iq.Conference.Room, participant)
	} else {
		caps, err = h.store.Join(iq.Conference.Room, participant)
	}
	if err != nil {
		return stanza.ConferenceIQ{}, err
	}

	resp := stanza.ConferenceIQ{
		IQ: stanza.IQ{Type: stanza.ResultIQ, ID: iq.ID, To: iq.From, From: &h.focusJID},
		Conference: stanza.ConferenceRequest{
			Room:      iq.Conference.Room,
			SessionID: participant.SessionID,
			FocusJID:  h.focusJID.String(),
			Ready:     caps.Ready,
		},
	}
	return resp, nil
}
