package colibri_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jiconf/focus/bridge"
	"github.com/jiconf/focus/colibri"
	"github.com/jiconf/focus/jid"
	"github.com/jiconf/focus/selector"
	"github.com/jiconf/focus/source"
	"github.com/jiconf/focus/stanza"
)

type fakeSender struct {
	fail map[string]bool
}

func (f *fakeSender) SendColibriIQ(_ context.Context, bridgeID string, iq stanza.ColibriConferenceIQ) (stanza.ColibriConferenceIQ, error) {
	if f.fail[bridgeID] {
		return stanza.ColibriConferenceIQ{}, errors.New("simulated colibri failure")
	}
	return iq, nil
}

func setupBrewery(ids ...string) *bridge.Brewery {
	b := bridge.NewBrewery()
	for _, id := range ids {
		j, _ := jid.Parse(id + "@bridge.example.net")
		b.OnJoin(*j, stanza.BridgeStats{Operational: true})
	}
	return b
}

// staticStrategy always selects a fixed bridge id, for tests that need a
// deterministic target regardless of load.
type staticStrategy string

func (s staticStrategy) Select(p selector.Params) (bridge.Bridge, bool) {
	for _, b := range p.All {
		if b.ID() == string(s) {
			return b, true
		}
	}
	return bridge.Bridge{}, false
}

func TestAllocateAndExpire(t *testing.T) {
	brewery := setupBrewery("b1")
	sender := &fakeSender{}
	mgr := colibri.New("conf1", sender, brewery, selector.RegionBased{}, nil, colibri.Config{NetworkTimeout: time.Second})

	_, err := mgr.Allocate(context.Background(), "ep1", "")
	require.NoError(t, err)

	id, ok := mgr.BridgeOf("ep1")
	require.True(t, ok)
	assert.Equal(t, "b1@bridge.example.net", id)

	require.NoError(t, mgr.Expire(context.Background(), "ep1"))
	_, ok = mgr.BridgeOf("ep1")
	assert.False(t, ok)
}

func TestAllocateFailureWithNoAllocationsSkipsHandler(t *testing.T) {
	brewery := setupBrewery("b1", "b2")
	sender := &fakeSender{fail: map[string]bool{"b1@bridge.example.net": true}}

	var failedBridge string
	var affected []string
	onFailure := func(bridgeID string, participants []string) {
		failedBridge = bridgeID
		affected = participants
	}

	mgr := colibri.New("conf1", sender, brewery, staticStrategy("b1@bridge.example.net"), onFailure, colibri.Config{NetworkTimeout: time.Second})
	_, err := mgr.Allocate(context.Background(), "ep1", "")
	require.Error(t, err)
	// Allocation itself failed before any participant was recorded, so the
	// per-bridge failure callback (which fires for already-allocated
	// participants) is not invoked here.
	assert.Empty(t, failedBridge)
	assert.Empty(t, affected)
}

func TestNoUsableBridge(t *testing.T) {
	brewery := bridge.NewBrewery()
	mgr := colibri.New("conf1", &fakeSender{}, brewery, selector.RegionBased{}, nil, colibri.Config{NetworkTimeout: time.Second})
	_, err := mgr.Allocate(context.Background(), "ep1", "")
	assert.ErrorIs(t, err, colibri.ErrNoUsableBridge)
}

func TestAllocateGrowsCascadeOnSecondBridge(t *testing.T) {
	brewery := setupBrewery("b1", "b2")
	sender := &fakeSender{}
	mgr := colibri.New("conf1", sender, brewery, selector.SplitBridge{}, nil, colibri.Config{NetworkTimeout: time.Second})

	_, err := mgr.Allocate(context.Background(), "ep1", "")
	require.NoError(t, err)
	_, err = mgr.Allocate(context.Background(), "ep2", "")
	require.NoError(t, err)

	b1, ok := mgr.BridgeOf("ep1")
	require.True(t, ok)
	b2, ok := mgr.BridgeOf("ep2")
	require.True(t, ok)
	assert.NotEqual(t, b1, b2)
}

// capturingSender records the last IQ it was asked to send.
type capturingSender struct {
	last stanza.ColibriConferenceIQ
}

func (s *capturingSender) SendColibriIQ(_ context.Context, _ string, iq stanza.ColibriConferenceIQ) (stanza.ColibriConferenceIQ, error) {
	s.last = iq
	return iq, nil
}

func TestUpdateSourcesPushesSourceMapDelta(t *testing.T) {
	brewery := setupBrewery("b1")
	sender := &capturingSender{}
	mgr := colibri.New("conf1", sender, brewery, selector.RegionBased{}, nil, colibri.Config{NetworkTimeout: time.Second})

	_, err := mgr.Allocate(context.Background(), "ep1", "")
	require.NoError(t, err)

	set := source.NewEndpointSourceSet([]source.Source{
		{SSRC: 111, Media: source.Video, Name: "ep1-v0", Msid: "stream-1 track-1"},
	}, nil)
	delta := source.ConferenceSourceMap{"ep1": set}

	require.NoError(t, mgr.UpdateSources(context.Background(), "ep1", delta))

	require.Len(t, sender.last.Conference.Endpoints, 1)
	ep := sender.last.Conference.Endpoints[0]
	assert.Equal(t, "ep1", ep.ID)
	require.Len(t, ep.Sources, 1)
	assert.Equal(t, stanza.ColibriSource{SSRC: 111, Media: "video", Name: "ep1-v0", Msid: "stream-1 track-1"}, ep.Sources[0])
}

func TestUpdateSourcesFailsForUnallocatedParticipant(t *testing.T) {
	brewery := setupBrewery("b1")
	mgr := colibri.New("conf1", &fakeSender{}, brewery, selector.RegionBased{}, nil, colibri.Config{NetworkTimeout: time.Second})

	err := mgr.UpdateSources(context.Background(), "ghost", source.ConferenceSourceMap{})
	assert.Error(t, err)
}

// relayCountingSender counts how many relay-creating colibri IQs it sees,
// delaying each one briefly so concurrent Allocate calls racing onto the
// same new bridge actually overlap.
type relayCountingSender struct {
	relayIQs atomic.Int32
}

func (s *relayCountingSender) SendColibriIQ(_ context.Context, _ string, iq stanza.ColibriConferenceIQ) (stanza.ColibriConferenceIQ, error) {
	if len(iq.Conference.Relays) > 0 {
		s.relayIQs.Add(1)
		time.Sleep(10 * time.Millisecond)
	}
	return iq, nil
}

func TestConcurrentAllocateOntoNewBridgeEstablishesRelayOnce(t *testing.T) {
	brewery := setupBrewery("b1", "b2")
	sender := &relayCountingSender{}
	mgr := colibri.New("conf1", sender, brewery, selector.SplitBridge{}, nil, colibri.Config{NetworkTimeout: time.Second})

	_, err := mgr.Allocate(context.Background(), "ep1", "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, ep := range []string{"ep2", "ep3"} {
		wg.Add(1)
		go func(ep string) {
			defer wg.Done()
			_, err := mgr.Allocate(context.Background(), ep, "")
			assert.NoError(t, err)
		}(ep)
	}
	wg.Wait()

	// Both ep2 and ep3 race onto b2, the only bridge not yet in the
	// conference; growGroup's singleflight must collapse their relay
	// establishment into a single round trip (2 IQs: one per side) rather
	// than one per racer.
	assert.Equal(t, int32(2), sender.relayIQs.Load())
}

func TestAllocateFailsWhenRelayEstablishmentFails(t *testing.T) {
	brewery := setupBrewery("b1", "b2")
	sender := &fakeSender{fail: map[string]bool{"b2@bridge.example.net": true}}
	mgr := colibri.New("conf1", sender, brewery, selector.SplitBridge{}, nil, colibri.Config{NetworkTimeout: time.Second})

	_, err := mgr.Allocate(context.Background(), "ep1", "")
	require.NoError(t, err)

	_, err = mgr.Allocate(context.Background(), "ep2", "")
	assert.Error(t, err)
}
