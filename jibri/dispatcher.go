package jibri

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/emiago/sipgo/sip"
	"github.com/google/uuid"

	"github.com/jiconf/focus/focuserr"
	"github.com/jiconf/focus/jid"
	"github.com/jiconf/focus/stanza"
)

// Sender is the opaque Jibri IQ contract spec.md §9 assigns to the XMPP
// I/O layer: send a start/stop request to the chosen instance.
type Sender interface {
	SendJibriIQ(ctx context.Context, to *jid.JID, iq stanza.JibriIQ) (stanza.JibriIQ, error)
}

// PresencePublisher republishes session status as a presence extension on
// the conference MUC, per spec.md §4.9.
type PresencePublisher interface {
	PublishRecordingStatus(status stanza.JibriStatus, initiator string)
	PublishSIPCallStatus(status stanza.JibriStatus)
}

// Config bundles Dispatcher's tunables.
type Config struct {
	PendingTimeout time.Duration
	NumRetries     int
}

// Dispatcher coordinates one conference's Jibri sessions: at most one
// active Recording/LiveStreaming session, and any number of concurrent SIP
// sessions, per spec.md §4.9.
type Dispatcher struct {
	detector  *Detector
	brewery   *Brewery
	sender    Sender
	publisher PresencePublisher
	cfg       Config

	mu          sync.Mutex
	recorder    *Session // Recording or LiveStreaming; at most one active
	sipSessions map[string]*Session
}

// NewDispatcher constructs a Dispatcher for one conference.
func NewDispatcher(detector *Detector, brewery *Brewery, sender Sender, publisher PresencePublisher, cfg Config) *Dispatcher {
	return &Dispatcher{detector: detector, brewery: brewery, sender: sender, publisher: publisher, cfg: cfg, sipSessions: make(map[string]*Session)}
}

// StartRequest carries the fields of a start IQ, per spec.md §4.9/§6.
type StartRequest struct {
	StreamID      string
	FileRecording bool
	SIPAddress    string
	IsModerator   bool
}

// Start validates req, selects an instance, and sends the start IQ,
// returning the new Session. Moderator gating (invariant 9) is enforced
// first: a non-moderator request returns Forbidden without touching any
// session state.
func (d *Dispatcher) Start(ctx context.Context, req StartRequest) (*Session, error) {
	if !req.IsModerator {
		return nil, focuserr.New(focuserr.Forbidden, "only a moderator may start a Jibri session")
	}

	role, err := validateStart(req)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	if role != SIP && d.recorder != nil && d.recorder.State != Off {
		d.mu.Unlock()
		return nil, focuserr.New(focuserr.UnexpectedRequest, "a recording or streaming session is already active")
	}
	if role == SIP {
		if existing, ok := d.sipSessions[req.SIPAddress]; ok && existing.State != Off {
			d.mu.Unlock()
			return nil, focuserr.New(focuserr.UnexpectedRequest, "a SIP session to this address is already active")
		}
	}
	d.mu.Unlock()

	sess := &Session{Role: role, SessionID: uuid.NewString(), RetriesRemaining: d.cfg.NumRetries, StreamID: req.StreamID, SIPAddress: req.SIPAddress}
	if err := d.selectAndSend(ctx, sess, time.Now()); err != nil {
		return nil, err
	}

	d.mu.Lock()
	if role == SIP {
		d.sipSessions[req.SIPAddress] = sess
	} else {
		d.recorder = sess
	}
	d.mu.Unlock()

	d.publish(sess)
	return sess, nil
}

func validateStart(req StartRequest) (Role, error) {
	switch {
	case req.SIPAddress != "":
		if _, err := parseSIPAddress(req.SIPAddress); err != nil {
			return 0, focuserr.Wrap(focuserr.MalformedRequest, "invalid sip-address", err)
		}
		return SIP, nil
	case req.FileRecording:
		if req.StreamID != "" {
			return 0, focuserr.New(focuserr.MalformedRequest, "stream-id must be absent for file recording")
		}
		return Recording, nil
	default:
		if req.StreamID == "" {
			return 0, focuserr.New(focuserr.MalformedRequest, "stream-id is required for live streaming")
		}
		return LiveStreaming, nil
	}
}

func parseSIPAddress(addr string) (sip.Uri, error) {
	var u sip.Uri
	err := sip.ParseUri(addr, &u)
	return u, err
}

// selectAndSend picks an instance via the Detector and sends the start IQ,
// mapping selection/send failure to the taxonomy spec.md §4.9 names.
func (d *Dispatcher) selectAndSend(ctx context.Context, sess *Session, now time.Time) error {
	inst, ok := d.detector.Select(now)
	if !ok {
		if len(d.brewery.Snapshot()) == 0 {
			return focuserr.New(focuserr.ServiceUnavailable, "no Jibris available")
		}
		return focuserr.New(focuserr.ResourceConstraint, "all Jibris are busy")
	}

	iq := stanza.JibriIQ{Jibri: stanza.JibriRequest{Action: stanza.JibriActionStart, SessionID: sess.SessionID, StreamID: sess.StreamID, SIPAddress: sess.SIPAddress}}
	if _, err := d.sender.SendJibriIQ(ctx, &inst.JID, iq); err != nil {
		return focuserr.Wrap(focuserr.InternalServerError, "jibri start failed", err)
	}

	d.brewery.MarkSelected(inst.ID(), now)
	sess.JibriJID = &inst.JID
	sess.State = Pending
	sess.StartInstant = now
	return nil
}

// Stop sends a stop request for sessionID and transitions it Off.
func (d *Dispatcher) Stop(ctx context.Context, sessionID string, isModerator bool) error {
	if !isModerator {
		return focuserr.New(focuserr.Forbidden, "only a moderator may stop a Jibri session")
	}

	sess := d.findSession(sessionID)
	if sess == nil {
		return focuserr.New(focuserr.ItemNotFound, "no active session with that id")
	}

	iq := stanza.JibriIQ{Jibri: stanza.JibriRequest{Action: stanza.JibriActionStop, SessionID: sessionID}}
	if sess.JibriJID != nil {
		_, _ = d.sender.SendJibriIQ(ctx, sess.JibriJID, iq)
	}

	d.mu.Lock()
	sess.State = Off
	d.mu.Unlock()
	d.publish(sess)
	return nil
}

func (d *Dispatcher) findSession(sessionID string) *Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.recorder != nil && d.recorder.SessionID == sessionID {
		return d.recorder
	}
	for _, s := range d.sipSessions {
		if s.SessionID == sessionID {
			return s
		}
	}
	return nil
}

// OnStatusChange transitions sessionID to state (from a status update
// arriving from the Jibri instance) and republishes presence.
func (d *Dispatcher) OnStatusChange(sessionID string, state SessionState) {
	sess := d.findSession(sessionID)
	if sess == nil {
		return
	}
	d.mu.Lock()
	sess.State = state
	d.mu.Unlock()
	d.publish(sess)
}

// CheckPendingTimeout is invoked periodically (by the conference task
// queue) to enforce spec.md §4.9's pendingTimeout: a session still Pending
// after pendingTimeout counts a failure, returns its instance to cooldown,
// and retries with fresh selection up to numRetries times.
func (d *Dispatcher) CheckPendingTimeout(ctx context.Context, now time.Time) {
	for _, sess := range d.allSessions() {
		if sess.State != Pending {
			continue
		}
		if now.Sub(sess.StartInstant) < d.cfg.PendingTimeout {
			continue
		}
		d.handleTimeout(ctx, sess, now)
	}
}

func (d *Dispatcher) allSessions() []*Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*Session
	if d.recorder != nil {
		out = append(out, d.recorder)
	}
	for _, s := range d.sipSessions {
		out = append(out, s)
	}
	return out
}

func (d *Dispatcher) handleTimeout(ctx context.Context, sess *Session, now time.Time) {
	if sess.JibriJID != nil {
		d.brewery.MarkFailed(sess.JibriJID.String(), now)
	}

	if sess.RetriesRemaining <= 0 {
		d.mu.Lock()
		sess.State = Off
		sess.FailureReason = "pending timeout exceeded, no retries remaining"
		d.mu.Unlock()
		d.publish(sess)
		return
	}

	sess.RetriesRemaining--
	if err := d.selectAndSend(ctx, sess, now); err != nil {
		d.mu.Lock()
		sess.State = Off
		sess.FailureReason = fmt.Sprintf("retry failed: %v", err)
		d.mu.Unlock()
	}
	d.publish(sess)
}

func (d *Dispatcher) publish(sess *Session) {
	if d.publisher == nil {
		return
	}
	status := toJibriStatus(sess.State)
	if sess.Role == SIP {
		d.publisher.PublishSIPCallStatus(status)
	} else {
		d.publisher.PublishRecordingStatus(status, "")
	}
}

func toJibriStatus(s SessionState) stanza.JibriStatus {
	switch s {
	case On:
		return stanza.JibriStatusOn
	case Off:
		return stanza.JibriStatusOff
	default:
		return stanza.JibriStatusPending
	}
}
