package jingle

import (
	"context"
	"errors"
	"sync"

	"github.com/jiconf/focus/jid"
	"github.com/jiconf/focus/stanza"
)

// Sender is the opaque Jingle IQ request/response and fire-and-forget
// contract spec.md §9 assigns to the XMPP I/O layer.
type Sender interface {
	SendJingleIQ(ctx context.Context, to *jid.JID, iq stanza.JingleIQ) (stanza.JingleIQ, error)
	SendJingleFireAndForget(to *jid.JID, iq stanza.JingleIQ)
}

// ActionHandler processes an inbound Jingle action once dispatched by
// state, returning nil for success or a structured stanza.Error.
type ActionHandler func(action stanza.JingleAction, payload stanza.Jingle) *stanza.Error

// Session is one participant's Jingle session, per spec.md §3/§4.3.
type Session struct {
	SID           string
	Remote        *jid.JID
	SourcesAsJSON bool

	sender  Sender
	handler ActionHandler

	mu    sync.Mutex
	state State
}

// NewSession constructs an Idle session bound to remote, not yet sent.
func NewSession(sid string, remote *jid.JID, sender Sender, handler ActionHandler, sourcesAsJSON bool) *Session {
	return &Session{SID: sid, Remote: remote, sender: sender, handler: handler, SourcesAsJSON: sourcesAsJSON, state: Idle}
}

// State returns the session's current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Initiate sends session-initiate and awaits the result IQ. Success
// transitions Idle -> Inviting -> Active, per spec.md §4.3.
func (s *Session) Initiate(ctx context.Context, contents []stanza.Content, sources *stanza.JSONSources) error {
	s.setState(Inviting)
	jingle := stanza.Jingle{Action: stanza.SessionInitiate, SID: s.SID, Contents: contents, JSON: sources}
	iq := stanza.JingleIQ{Jingle: jingle}
	_, err := s.sender.SendJingleIQ(ctx, s.Remote, iq)
	if err != nil {
		s.setState(Terminated)
		return err
	}
	s.setState(Active)
	return nil
}

// ReplaceTransport sends transport-replace and awaits the result IQ. Per
// spec.md §9's open-question resolution, a nil/timeout response is treated
// as failure (the caller should trigger a move), not success.
func (s *Session) ReplaceTransport(ctx context.Context, contents []stanza.Content, sources *stanza.JSONSources) error {
	s.setState(TransportPending)
	jingle := stanza.Jingle{Action: stanza.TransportReplace, SID: s.SID, Contents: contents, JSON: sources}
	iq := stanza.JingleIQ{Jingle: jingle}
	resp, err := s.sender.SendJingleIQ(ctx, s.Remote, iq)
	if err != nil {
		s.setState(Active)
		return err
	}
	if resp.Type == stanza.ErrorIQ {
		s.setState(Active)
		return errors.New("jingle: transport-replace returned an error IQ")
	}
	s.setState(Active)
	return nil
}

// AddSource fire-and-forget sends a source-add.
func (s *Session) AddSource(sources *stanza.JSONSources, contents []stanza.Content) {
	jingle := stanza.Jingle{Action: stanza.SourceAdd, SID: s.SID, Contents: contents, JSON: sources}
	s.sender.SendJingleFireAndForget(s.Remote, stanza.JingleIQ{Jingle: jingle})
}

// RemoveSource fire-and-forget sends a source-remove.
func (s *Session) RemoveSource(sources *stanza.JSONSources, contents []stanza.Content) {
	jingle := stanza.Jingle{Action: stanza.SourceRemove, SID: s.SID, Contents: contents, JSON: sources}
	s.sender.SendJingleFireAndForget(s.Remote, stanza.JingleIQ{Jingle: jingle})
}

// Terminate moves the session to Terminated, optionally sending
// session-terminate with a reason first.
func (s *Session) Terminate(reason, text string, send bool) {
	if send {
		jingle := stanza.Jingle{
			Action: stanza.SessionTerminate,
			SID:    s.SID,
			Reason: &stanza.JingleReason{Condition: reason, Text: text},
		}
		s.sender.SendJingleFireAndForget(s.Remote, stanza.JingleIQ{Jingle: jingle})
	}
	s.setState(Terminated)
}

// HandleInbound dispatches an inbound action to the session's
// ActionHandler after applying the state-machine's own gating, per
// spec.md §4.3: unexpected actions in non-matching states produce
// feature-not-implemented; a missing action produces bad-request.
func (s *Session) HandleInbound(action stanza.JingleAction, payload stanza.Jingle) *stanza.Error {
	if action == "" {
		return &stanza.Error{Type: stanza.Modify, Condition: stanza.BadRequest, Text: "missing action"}
	}
	action = action.Canonical()

	cur := s.State()
	switch action {
	case stanza.SessionAccept:
		// Initiate moves to Active once the session-initiate result IQ
		// arrives, which may precede the peer's session-accept.
		if cur != Inviting && cur != Active {
			return unexpectedAction(action, cur)
		}
	case stanza.TransportAccept, stanza.TransportInfo, stanza.TransportReject:
		if cur != TransportPending && cur != Active {
			return unexpectedAction(action, cur)
		}
	case stanza.SourceAdd, stanza.SourceRemove:
		if cur != Active {
			return unexpectedAction(action, cur)
		}
	case stanza.SessionInfo:
		// Permitted in any non-terminal state.
		if cur == Terminated {
			return unexpectedAction(action, cur)
		}
	case stanza.SessionTerminate:
		// Always permitted.
	default:
		return &stanza.Error{Type: stanza.Cancel, Condition: stanza.FeatureNotImplemented, Text: string(action)}
	}

	if err := s.handler(action, payload); err != nil {
		return err
	}

	switch action {
	case stanza.SessionAccept:
		s.setState(Active)
	case stanza.SessionTerminate:
		s.setState(Terminated)
	}
	return nil
}

func unexpectedAction(action stanza.JingleAction, cur State) *stanza.Error {
	return &stanza.Error{
		Type:      stanza.Cancel,
		Condition: stanza.FeatureNotImplemented,
		Text:      string(action) + " not valid in state " + cur.String(),
	}
}
