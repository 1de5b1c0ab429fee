package jibri_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jiconf/focus/jibri"
	"github.com/jiconf/focus/jid"
	"github.com/jiconf/focus/stanza"
)

type fakeSender struct {
	fail map[string]bool
}

func (f *fakeSender) SendJibriIQ(_ context.Context, to *jid.JID, iq stanza.JibriIQ) (stanza.JibriIQ, error) {
	if f.fail[to.String()] {
		return stanza.JibriIQ{}, errors.New("simulated jibri failure")
	}
	return iq, nil
}

type fakePublisher struct {
	recordingStatuses []stanza.JibriStatus
}

func (f *fakePublisher) PublishRecordingStatus(status stanza.JibriStatus, _ string) {
	f.recordingStatuses = append(f.recordingStatuses, status)
}
func (f *fakePublisher) PublishSIPCallStatus(status stanza.JibriStatus) {}

func setupBrewery(t *testing.T, ids ...string) *jibri.Brewery {
	t.Helper()
	b := jibri.NewBrewery()
	for _, id := range ids {
		j, err := jid.Parse(id + "@jibri-brewery.example.net")
		require.NoError(t, err)
		b.OnJoin(*j, true)
	}
	return b
}

func TestSelectExcludesRecentlyFailedInstance(t *testing.T) {
	brewery := setupBrewery(t, "j1", "j2")
	detector := jibri.NewDetector(brewery)

	now := time.Now()
	brewery.MarkFailed("j1@jibri-brewery.example.net", now)

	inst, ok := detector.Select(now.Add(time.Millisecond))
	require.True(t, ok)
	assert.Equal(t, "j2@jibri-brewery.example.net", inst.ID())

	// invariant 6: no instance with now-lastFailed < FAILURE_TIMEOUT is ever
	// selected, even if it is the only candidate.
	solo := jibri.NewBrewery()
	j, err := jid.Parse("only@jibri-brewery.example.net")
	require.NoError(t, err)
	solo.OnJoin(*j, true)
	solo.MarkFailed("only@jibri-brewery.example.net", now)
	_, ok = jibri.NewDetector(solo).Select(now.Add(time.Second))
	assert.False(t, ok)
}

func TestStartValidatesRequestShape(t *testing.T) {
	brewery := setupBrewery(t, "j1")
	d := jibri.NewDispatcher(jibri.NewDetector(brewery), brewery, &fakeSender{}, &fakePublisher{}, jibri.Config{PendingTimeout: time.Second, NumRetries: 1})

	_, err := d.Start(context.Background(), jibri.StartRequest{IsModerator: true})
	assert.Error(t, err, "live streaming without stream-id must fail")

	_, err = d.Start(context.Background(), jibri.StartRequest{IsModerator: true, FileRecording: true, StreamID: "abc"})
	assert.Error(t, err, "stream-id must be absent for file recording")

	_, err = d.Start(context.Background(), jibri.StartRequest{IsModerator: false, StreamID: "abc"})
	assert.Error(t, err, "non-moderator start request must be rejected")
}

func TestStartNoInstancesAvailable(t *testing.T) {
	brewery := jibri.NewBrewery()
	d := jibri.NewDispatcher(jibri.NewDetector(brewery), brewery, &fakeSender{}, &fakePublisher{}, jibri.Config{PendingTimeout: time.Second, NumRetries: 1})

	_, err := d.Start(context.Background(), jibri.StartRequest{IsModerator: true, StreamID: "abc"})
	require.Error(t, err)
}

// TestPendingTimeoutRetriesThenSucceeds models scenario S7: two Jibri
// instances, pendingTimeout=5s, numRetries=1. The first-selected instance
// never transitions to On; after the timeout the session retries against
// the second instance, which does transition On.
func TestPendingTimeoutRetriesThenSucceeds(t *testing.T) {
	brewery := setupBrewery(t, "j1", "j2")
	detector := jibri.NewDetector(brewery)
	publisher := &fakePublisher{}
	d := jibri.NewDispatcher(detector, brewery, &fakeSender{}, publisher, jibri.Config{PendingTimeout: 5 * time.Second, NumRetries: 1})

	now := time.Now()
	// force j2 into a short cooldown so j1 is selected first.
	brewery.MarkSelected("j2@jibri-brewery.example.net", now)

	sess, err := d.Start(context.Background(), jibri.StartRequest{IsModerator: true, StreamID: "abc"})
	require.NoError(t, err)
	require.Equal(t, jibri.Pending, sess.State)
	firstJID := sess.JibriJID.String()

	// advance past pendingTimeout and SELECT_TIMEOUT so both instances are
	// eligible again, except the failed one is in FAILURE_TIMEOUT cooldown.
	later := now.Add(6 * time.Second)
	d.CheckPendingTimeout(context.Background(), later)

	require.Equal(t, jibri.Pending, sess.State, "retry should have re-selected and stayed pending")
	assert.NotEqual(t, firstJID, sess.JibriJID.String(), "retry must pick a different instance since the first is in failure cooldown")
	assert.Equal(t, 0, sess.RetriesRemaining)

	d.OnStatusChange(sess.SessionID, jibri.On)
	assert.Equal(t, jibri.On, sess.State)
	assert.Contains(t, publisher.recordingStatuses, stanza.JibriStatusOn)
}

func TestPendingTimeoutExhaustsRetries(t *testing.T) {
	brewery := setupBrewery(t, "j1")
	d := jibri.NewDispatcher(jibri.NewDetector(brewery), brewery, &fakeSender{}, &fakePublisher{}, jibri.Config{PendingTimeout: time.Second, NumRetries: 0})

	now := time.Now()
	sess, err := d.Start(context.Background(), jibri.StartRequest{IsModerator: true, StreamID: "abc"})
	require.NoError(t, err)

	d.CheckPendingTimeout(context.Background(), now.Add(2*time.Second))
	assert.Equal(t, jibri.Off, sess.State)
	assert.NotEmpty(t, sess.FailureReason)
}

func TestStopRequiresModerator(t *testing.T) {
	brewery := setupBrewery(t, "j1")
	d := jibri.NewDispatcher(jibri.NewDetector(brewery), brewery, &fakeSender{}, &fakePublisher{}, jibri.Config{PendingTimeout: time.Second, NumRetries: 0})

	sess, err := d.Start(context.Background(), jibri.StartRequest{IsModerator: true, StreamID: "abc"})
	require.NoError(t, err)

	err = d.Stop(context.Background(), sess.SessionID, false)
	assert.Error(t, err)

	err = d.Stop(context.Background(), sess.SessionID, true)
	require.NoError(t, err)
	assert.Equal(t, jibri.Off, sess.State)
}

func TestSIPSessionsConcurrentWithRecording(t *testing.T) {
	brewery := setupBrewery(t, "j1", "j2")
	d := jibri.NewDispatcher(jibri.NewDetector(brewery), brewery, &fakeSender{}, &fakePublisher{}, jibri.Config{PendingTimeout: time.Second, NumRetries: 0})

	_, err := d.Start(context.Background(), jibri.StartRequest{IsModerator: true, FileRecording: true})
	require.NoError(t, err)

	_, err = d.Start(context.Background(), jibri.StartRequest{IsModerator: true, SIPAddress: "sip:user@example.com"})
	require.NoError(t, err, "a SIP session must be allowed alongside an active recording session")

	_, err = d.Start(context.Background(), jibri.StartRequest{IsModerator: true, FileRecording: true})
	assert.Error(t, err, "a second recording session must be rejected while one is active")
}
