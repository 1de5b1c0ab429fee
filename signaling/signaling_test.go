package signaling_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jiconf/focus/signaling"
	"github.com/jiconf/focus/source"
)

func fullCaps() signaling.PeerCapabilities {
	return signaling.PeerCapabilities{ReceivesAudio: true, ReceivesVideo: true, ReceivesSimulcast: true, ReceivesMultipleStreams: true}
}

// TestFlushFixedPoint exercises invariant 2 from spec.md §8: after flush,
// signaled == updated, and a second flush returns nothing.
func TestFlushFixedPoint(t *testing.T) {
	s := signaling.New(fullCaps())
	set := source.NewEndpointSourceSet([]source.Source{{SSRC: 1, Media: source.Audio}}, nil)
	s.AddSources("ep1", set)

	ops := s.Flush()
	require.Len(t, ops, 1)
	assert.True(t, ops[0].Add)

	ops = s.Flush()
	assert.Empty(t, ops)
}

// TestFlushOrdersAddBeforeRemove exercises the "add before remove" emission
// order spec.md §4.2 asks tests to expect.
func TestFlushOrdersAddBeforeRemove(t *testing.T) {
	s := signaling.New(fullCaps())
	s.AddSources("ep1", source.NewEndpointSourceSet([]source.Source{{SSRC: 1, Media: source.Audio}}, nil))
	s.Flush()

	s.RemoveSources("ep1", source.NewEndpointSourceSet([]source.Source{{SSRC: 1, Media: source.Audio}}, nil))
	s.AddSources("ep2", source.NewEndpointSourceSet([]source.Source{{SSRC: 2, Media: source.Audio}}, nil))

	ops := s.Flush()
	require.Len(t, ops, 2)
	assert.True(t, ops[0].Add)
	assert.False(t, ops[1].Add)
}

func TestQueueMergesSameKindRuns(t *testing.T) {
	var q signaling.AddRemoveQueue
	add1 := source.ConferenceSourceMap{"ep1": source.NewEndpointSourceSet([]source.Source{{SSRC: 1}}, nil)}
	add2 := source.ConferenceSourceMap{"ep1": source.NewEndpointSourceSet([]source.Source{{SSRC: 2}}, nil)}
	remove1 := source.ConferenceSourceMap{"ep1": source.NewEndpointSourceSet([]source.Source{{SSRC: 1}}, nil)}

	q.Enqueue(signaling.Op{Add: true, Delta: add1})
	q.Enqueue(signaling.Op{Add: true, Delta: add2})
	q.Enqueue(signaling.Op{Add: false, Delta: remove1})

	entries := q.Drain()
	require.Len(t, entries, 2)
	assert.True(t, entries[0].Add)
	assert.Len(t, entries[0].Delta["ep1"].Sources(), 2)
	assert.False(t, entries[1].Add)
}
