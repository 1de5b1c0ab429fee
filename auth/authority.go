package auth

import (
	"strings"
	"time"

	"github.com/jiconf/focus/focuserr"
)

// Request carries the authentication-relevant fields of an inbound
// ConferenceIq (spec.md §4.12/§6).
type Request struct {
	Room       string
	From       string // bare or full JID string
	MachineUID string
	SessionID  string
}

// Authority implements the XMPP-domain authentication strategy of spec.md
// §4.11: trust a peer whose JID domain matches the configured trusted
// domain and who supplies a non-empty machineUid; otherwise require an
// already-existing room for unauthenticated join.
type Authority struct {
	store         *Store
	trustedDomain string
	roomExists    func(room string) bool
}

// NewAuthority constructs an Authority. roomExists is consulted only on the
// no-session, untrusted-domain path to decide whether unauthenticated join
// is permitted.
func NewAuthority(store *Store, trustedDomain string, roomExists func(room string) bool) *Authority {
	return &Authority{store: store, trustedDomain: trustedDomain, roomExists: roomExists}
}

// Authenticate resolves req against the session store, returning the
// bound/created Session (nil for a permitted unauthenticated join) or a
// focuserr-tagged error to return as an error IQ.
func (a *Authority) Authenticate(req Request, now time.Time) (*Session, error) {
	if req.SessionID != "" {
		return a.authenticateExisting(req, now)
	}
	return a.authenticateFresh(req, now)
}

func (a *Authority) authenticateExisting(req Request, now time.Time) (*Session, error) {
	sess, ok := a.store.GetSession(req.SessionID, now)
	if !ok {
		return nil, sessionInvalidErr("unknown session-id")
	}
	// invariant 10: a session created with machineUid m is never validated
	// against a request with machineUid != m.
	if sess.MachineUID != req.MachineUID {
		return nil, sessionInvalidErr("machine UID mismatch or empty")
	}
	return &sess, nil
}

func (a *Authority) authenticateFresh(req Request, now time.Time) (*Session, error) {
	if jidDomain(req.From) == a.trustedDomain && req.MachineUID != "" {
		sess := a.store.CreateSession(req.MachineUID, req.From, req.Room, now)
		return &sess, nil
	}
	if a.roomExists(req.Room) {
		return nil, nil
	}
	return nil, focuserr.New(focuserr.NotAuthorized, "peer is not on the trusted domain and the conference does not yet exist")
}

func sessionInvalidErr(text string) error {
	return &focuserr.Error{Kind: focuserr.SessionInvalid, Text: text, AppCondition: "session-invalid"}
}

func jidDomain(jidStr string) string {
	at := strings.IndexByte(jidStr, '@')
	if at < 0 {
		return ""
	}
	domain := jidStr[at+1:]
	if slash := strings.IndexByte(domain, '/'); slash >= 0 {
		domain = domain[:slash]
	}
	return domain
}
