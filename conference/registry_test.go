package conference_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jiconf/focus/auth"
	"github.com/jiconf/focus/bridge"
	"github.com/jiconf/focus/colibri"
	"github.com/jiconf/focus/conference"
	"github.com/jiconf/focus/focusiq"
	"github.com/jiconf/focus/jibri"
	"github.com/jiconf/focus/jid"
	"github.com/jiconf/focus/selector"
	"github.com/jiconf/focus/source"
	"github.com/jiconf/focus/stanza"
)

func newTestRegistryWithStrategy() *conference.Registry {
	brewery := bridge.NewBrewery()
	bridgeJID, _ := jid.Parse("b1@bridge.example.net")
	brewery.OnJoin(*bridgeJID, stanza.BridgeStats{Operational: true})
	collab := conference.Collaborators{
		BridgeBrewery: brewery,
		JibriBrewery:  jibri.NewBrewery(),
		Strategy:      selector.RegionBased{},
		ColibriSender: fakeColibriSender{},
		JibriSender:   fakeJibriSender{},
		ColibriConfig: colibri.Config{NetworkTimeout: 5 * time.Second},
		Log:           zerolog.Nop(),
	}
	return conference.NewRegistry(collab)
}

func TestCreateAndJoinStartsNewConference(t *testing.T) {
	reg := newTestRegistryWithStrategy()
	assert.False(t, reg.Exists("room1"))

	j, err := jid.Parse("alice@example.net")
	require.NoError(t, err)
	caps, err := reg.CreateAndJoin("room1", focusiq.Participant{JID: *j})
	require.NoError(t, err)
	assert.True(t, caps.Ready)
	assert.True(t, reg.Exists("room1"))
}

func TestJoinFailsForUnknownRoom(t *testing.T) {
	reg := newTestRegistryWithStrategy()
	j, err := jid.Parse("alice@example.net")
	require.NoError(t, err)
	_, err = reg.Join("nope", focusiq.Participant{JID: *j})
	assert.Error(t, err)
}

func TestConferenceEndedRemovesRoom(t *testing.T) {
	reg := newTestRegistryWithStrategy()
	j, err := jid.Parse("alice@example.net")
	require.NoError(t, err)
	_, err = reg.CreateAndJoin("room1", focusiq.Participant{JID: *j})
	require.NoError(t, err)

	reg.ConferenceEnded("room1")
	assert.False(t, reg.Exists("room1"))
}

func TestRoomsReportsAllTracked(t *testing.T) {
	reg := newTestRegistryWithStrategy()
	j1, _ := jid.Parse("alice@example.net")
	j2, _ := jid.Parse("bob@example.net")
	_, err := reg.CreateAndJoin("room1", focusiq.Participant{JID: *j1})
	require.NoError(t, err)
	_, err = reg.CreateAndJoin("room2", focusiq.Participant{JID: *j2})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"room1", "room2"}, reg.Rooms())
}

func TestJibriDispatcherTracksTheRoomsDispatcher(t *testing.T) {
	reg := newTestRegistryWithStrategy()
	j, err := jid.Parse("alice@example.net")
	require.NoError(t, err)
	_, err = reg.CreateAndJoin("room1", focusiq.Participant{JID: *j})
	require.NoError(t, err)

	disp, ok := reg.JibriDispatcher("room1")
	assert.True(t, ok)
	assert.NotNil(t, disp)

	_, ok = reg.JibriDispatcher("no-such-room")
	assert.False(t, ok)
}

func TestRegistryIsModeratorReflectsParticipantRole(t *testing.T) {
	reg := newTestRegistryWithStrategy()
	j, err := jid.Parse("alice@example.net")
	require.NoError(t, err)
	_, err = reg.CreateAndJoin("room1", focusiq.Participant{JID: *j})
	require.NoError(t, err)

	assert.False(t, reg.IsModerator("room1", j.String()))

	c, ok := reg.Get("room1")
	require.True(t, ok)
	require.NoError(t, c.Join(context.Background(), "bob", "bob@example.net", conference.Features{}, conference.Moderator, ""))
	assert.True(t, reg.IsModerator("room1", "bob"))

	assert.False(t, reg.IsModerator("no-such-room", "bob"))
}

func TestConferenceEndedEvictsAuthSessionsForTheRoom(t *testing.T) {
	brewery := bridge.NewBrewery()
	bridgeJID, _ := jid.Parse("b1@bridge.example.net")
	brewery.OnJoin(*bridgeJID, stanza.BridgeStats{Operational: true})
	store := auth.NewStore(time.Hour)
	collab := conference.Collaborators{
		BridgeBrewery: brewery,
		JibriBrewery:  jibri.NewBrewery(),
		Strategy:      selector.RegionBased{},
		ColibriSender: fakeColibriSender{},
		JibriSender:   fakeJibriSender{},
		ColibriConfig: colibri.Config{NetworkTimeout: 5 * time.Second},
		AuthStore:     store,
		Log:           zerolog.Nop(),
	}
	reg := conference.NewRegistry(collab)

	j, err := jid.Parse("alice@example.net")
	require.NoError(t, err)
	_, err = reg.CreateAndJoin("room1", focusiq.Participant{JID: *j})
	require.NoError(t, err)

	sess := store.CreateSession("machine-1", "alice@example.net", "room1", time.Now())
	_, ok := store.GetSession(sess.SessionID, time.Now())
	require.True(t, ok)

	reg.ConferenceEnded("room1")

	_, ok = store.GetSession(sess.SessionID, time.Now())
	assert.False(t, ok, "ConferenceEnded should evict sessions bound to the ended room")
}

func TestConferenceEndedWithoutAuthStoreStillRemovesRoom(t *testing.T) {
	// Collaborators.AuthStore is nil in newTestRegistryWithStrategy; ending a
	// conference must not panic on a nil store.
	reg := newTestRegistryWithStrategy()
	j, err := jid.Parse("alice@example.net")
	require.NoError(t, err)
	_, err = reg.CreateAndJoin("room1", focusiq.Participant{JID: *j})
	require.NoError(t, err)

	assert.NotPanics(t, func() { reg.ConferenceEnded("room1") })
	assert.False(t, reg.Exists("room1"))
}

// TestCheckPendingJibriTimeoutsSweepsEveryRoom models scenario S7 driven
// through Registry.CheckPendingJibriTimeouts rather than calling
// Dispatcher.CheckPendingTimeout directly, proving the periodic sweep this
// repo's process entrypoint schedules actually reaches each room's
// dispatcher through its own Conference task queue.
func TestCheckPendingJibriTimeoutsSweepsEveryRoom(t *testing.T) {
	bridgeBrewery := bridge.NewBrewery()
	bridgeJID, _ := jid.Parse("b1@bridge.example.net")
	bridgeBrewery.OnJoin(*bridgeJID, stanza.BridgeStats{Operational: true})

	jibriBrewery := jibri.NewBrewery()
	jibriJID, _ := jid.Parse("j1@jibri-brewery.example.net")
	jibriBrewery.OnJoin(*jibriJID, true)

	collab := conference.Collaborators{
		BridgeBrewery: bridgeBrewery,
		JibriBrewery:  jibriBrewery,
		Strategy:      selector.RegionBased{},
		ColibriSender: fakeColibriSender{},
		JibriSender:   fakeJibriSender{},
		ColibriConfig: colibri.Config{NetworkTimeout: 5 * time.Second},
		JibriConfig:   jibri.Config{PendingTimeout: 10 * time.Millisecond, NumRetries: 0},
		Log:           zerolog.Nop(),
	}
	reg := conference.NewRegistry(collab)

	j, _ := jid.Parse("alice@example.net")
	_, err := reg.CreateAndJoin("room1", focusiq.Participant{JID: *j})
	require.NoError(t, err)

	disp, ok := reg.JibriDispatcher("room1")
	require.True(t, ok)
	sess, err := disp.Start(context.Background(), jibri.StartRequest{IsModerator: true, StreamID: "abc"})
	require.NoError(t, err)
	require.Equal(t, jibri.Pending, sess.State)

	time.Sleep(20 * time.Millisecond)
	reg.CheckPendingJibriTimeouts(context.Background())

	assert.Equal(t, jibri.Off, sess.State, "the pending session should have timed out once the sweep ran")
}

// flakyUpdateSender lets allocation/relay IQs through but fails the first
// source-update IQ sent to each bridge, modeling a transient colibri failure
// mid-conference.
type flakyUpdateSender struct {
	mu       sync.Mutex
	failedOn map[string]bool
}

func (s *flakyUpdateSender) SendColibriIQ(_ context.Context, bridgeID string, iq stanza.ColibriConferenceIQ) (stanza.ColibriConferenceIQ, error) {
	hasSources := false
	for _, ep := range iq.Conference.Endpoints {
		if len(ep.Sources) > 0 {
			hasSources = true
		}
	}
	if !hasSources {
		return iq, nil
	}
	s.mu.Lock()
	if s.failedOn == nil {
		s.failedOn = make(map[string]bool)
	}
	already := s.failedOn[bridgeID]
	s.failedOn[bridgeID] = true
	s.mu.Unlock()
	if already {
		return iq, nil
	}
	return stanza.ColibriConferenceIQ{}, errors.New("simulated transient colibri failure")
}

// TestRegistryWiresBridgeFailureWithoutDeadlockingTheConferenceQueue exercises
// the real onFailure wiring getOrCreate installs (not a direct call to
// Conference.OnBridgeFailed): a colibri source-update failure must reach
// SessionManager.handleFailure, which calls onFailure synchronously from
// inside UpdateSources's own enqueued task. If that callback re-entered
// enqueue on the same goroutine, the conference's task queue would wedge and
// every later enqueue (here, a second participant's Join) would hang.
func TestRegistryWiresBridgeFailureWithoutDeadlockingTheConferenceQueue(t *testing.T) {
	brewery := bridge.NewBrewery()
	bridgeJID, _ := jid.Parse("b1@bridge.example.net")
	brewery.OnJoin(*bridgeJID, stanza.BridgeStats{Operational: true})
	collab := conference.Collaborators{
		BridgeBrewery: brewery,
		JibriBrewery:  jibri.NewBrewery(),
		Strategy:      selector.SingleBridge{},
		ColibriSender: &flakyUpdateSender{},
		JibriSender:   fakeJibriSender{},
		ColibriConfig: colibri.Config{NetworkTimeout: 5 * time.Second},
		Log:           zerolog.Nop(),
	}
	reg := conference.NewRegistry(collab)

	j1, _ := jid.Parse("alice@example.net")
	_, err := reg.CreateAndJoin("room1", focusiq.Participant{JID: *j1})
	require.NoError(t, err)

	c, ok := reg.Get("room1")
	require.True(t, ok)

	set := source.NewEndpointSourceSet([]source.Source{{SSRC: 1, Media: source.Audio}}, nil)
	validator := &source.Validator{}
	err = c.UpdateSources(context.Background(), j1.String(), set, validator)
	assert.Error(t, err, "the simulated colibri failure should surface synchronously to the caller")

	done := make(chan struct{})
	go func() {
		j2, _ := jid.Parse("bob@example.net")
		_ = c.Join(context.Background(), j2.String(), j2.String(), conference.Features{}, conference.ParticipantRole, "")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("conference task queue deadlocked after a bridge-failure callback")
	}
}
