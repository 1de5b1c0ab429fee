package selector_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jiconf/focus/bridge"
	"github.com/jiconf/focus/jid"
	"github.com/jiconf/focus/selector"
)

func mkBridge(id string, stress float64, region string, operational bool) bridge.Bridge {
	j, _ := jid.Parse(id + "@bridge.example.net")
	return bridge.Bridge{JID: *j, Stress: stress, Region: region, Operational: operational}
}

func TestRegionBasedPrefersParticipantRegion(t *testing.T) {
	b1 := mkBridge("b1", 0.1, "us", true)
	b2 := mkBridge("b2", 0.05, "eu", true)

	p := selector.Params{All: []bridge.Bridge{b1, b2}, InConference: map[string]int{}, ParticipantRegion: "us", Now: time.Now()}
	chosen, ok := selector.RegionBased{}.Select(p)
	require.True(t, ok)
	assert.Equal(t, "us", chosen.Region)
}

func TestSingleBridgeStaysOnExisting(t *testing.T) {
	b1 := mkBridge("b1", 0.5, "us", true)
	b2 := mkBridge("b2", 0.1, "us", true)
	p := selector.Params{All: []bridge.Bridge{b1, b2}, InConference: map[string]int{b1.ID(): 3}, Now: time.Now()}

	chosen, ok := selector.SingleBridge{}.Select(p)
	require.True(t, ok)
	assert.Equal(t, b1.ID(), chosen.ID())
}

func TestNoUsableBridgeReturnsFalse(t *testing.T) {
	b1 := mkBridge("b1", 0.5, "us", false)
	p := selector.Params{All: []bridge.Bridge{b1}, InConference: map[string]int{}, Now: time.Now()}
	_, ok := selector.RegionBased{}.Select(p)
	assert.False(t, ok)
}

func TestFailureCooldownExcludesBridge(t *testing.T) {
	now := time.Now()
	b1 := mkBridge("b1", 0.1, "us", true)
	b1.LastFailureInstant = now.Add(-1 * time.Second)
	b2 := mkBridge("b2", 0.9, "us", true)

	p := selector.Params{All: []bridge.Bridge{b1, b2}, InConference: map[string]int{}, Now: now, FailureCooldown: 30 * time.Second}
	chosen, ok := selector.RegionBased{}.Select(p)
	require.True(t, ok)
	assert.Equal(t, b2.ID(), chosen.ID())
}
