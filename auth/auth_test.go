package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jiconf/focus/auth"
	"github.com/jiconf/focus/focuserr"
)

func noRoomsExist(string) bool { return false }

// TestShibbolethFlowNoSessionRoomAbsent is scenario S1.
func TestShibbolethFlowNoSessionRoomAbsent(t *testing.T) {
	store := auth.NewStore(time.Hour)
	authority := auth.NewAuthority(store, "auth.server.net", noRoomsExist)

	sess, err := authority.Authenticate(auth.Request{Room: "r1", From: "user1@server.net", MachineUID: "u1"}, time.Now())
	assert.Nil(t, sess)
	require.Error(t, err)
	var fe *focuserr.Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, focuserr.NotAuthorized, fe.Kind)
}

// TestXMPPDomainFlowFirstJoin is scenario S2.
func TestXMPPDomainFlowFirstJoin(t *testing.T) {
	store := auth.NewStore(time.Hour)
	authority := auth.NewAuthority(store, "auth.server.net", noRoomsExist)

	sess, err := authority.Authenticate(auth.Request{Room: "r1", From: "user1@auth.server.net", MachineUID: "u1"}, time.Now())
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.NotEmpty(t, sess.SessionID)
	s1ID := sess.SessionID

	// Scenario S3 (stolen session): reuse S1 with a different from/machineUid.
	_, err = authority.Authenticate(auth.Request{Room: "r1", From: "user2@guest.server.net", MachineUID: "u2", SessionID: s1ID}, time.Now())
	require.Error(t, err)
	var fe *focuserr.Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, focuserr.SessionInvalid, fe.Kind)

	// Scenario S4 (same user, new machine): no session-id, new machineUid.
	sess2, err := authority.Authenticate(auth.Request{Room: "r1", From: "user1@auth.server.net", MachineUID: "u3"}, time.Now())
	require.NoError(t, err)
	require.NotNil(t, sess2)
	assert.NotEqual(t, s1ID, sess2.SessionID)
}

func TestUnauthenticatedJoinPermittedWhenRoomExists(t *testing.T) {
	store := auth.NewStore(time.Hour)
	authority := auth.NewAuthority(store, "auth.server.net", func(room string) bool { return room == "r1" })

	sess, err := authority.Authenticate(auth.Request{Room: "r1", From: "user1@server.net", MachineUID: "u1"}, time.Now())
	require.NoError(t, err)
	assert.Nil(t, sess, "an existing room permits unauthenticated join without attaching a session")
}

// TestEviction is invariant 7: getSession returns null once
// now-activityTimestamp exceeds authenticationLifetime.
func TestEviction(t *testing.T) {
	store := auth.NewStore(time.Minute)
	now := time.Now()
	sess := store.CreateSession("u1", "user1@auth.server.net", "r1", now)

	_, ok := store.GetSession(sess.SessionID, now.Add(30*time.Second))
	assert.True(t, ok)

	_, ok = store.GetSession(sess.SessionID, now.Add(2*time.Minute))
	assert.False(t, ok)
}

func TestConferenceEndedRemovesRoomSessions(t *testing.T) {
	store := auth.NewStore(time.Hour)
	now := time.Now()
	s1 := store.CreateSession("u1", "user1@auth.server.net", "r1", now)
	s2 := store.CreateSession("u2", "user2@auth.server.net", "r2", now)

	store.ConferenceEnded("r1")

	_, ok := store.GetSession(s1.SessionID, now)
	assert.False(t, ok)
	_, ok = store.GetSession(s2.SessionID, now)
	assert.True(t, ok)
}

func TestFindByJid(t *testing.T) {
	store := auth.NewStore(time.Hour)
	now := time.Now()
	sess := store.CreateSession("u1", "user1@auth.server.net", "r1", now)

	found, ok := store.FindByJid("user1@auth.server.net")
	require.True(t, ok)
	assert.Equal(t, sess.SessionID, found.SessionID)

	_, ok = store.FindByJid("nobody@auth.server.net")
	assert.False(t, ok)
}
