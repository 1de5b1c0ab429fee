// Package colibri implements ColibriSessionManager (spec.md §4.7): one per
// conference, it allocates and frees channels on bridges via the colibri
// control protocol, growing and repairing the conference's cascade as
// participants move between bridges.
package colibri

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/jiconf/focus/bridge"
	"github.com/jiconf/focus/cascade"
	"github.com/jiconf/focus/selector"
	"github.com/jiconf/focus/source"
	"github.com/jiconf/focus/stanza"
)

// Sender is the opaque colibri IQ request/response contract spec.md §9
// assigns to the XMPP I/O layer: send a colibri conference IQ and await its
// result, error, or timeout.
type Sender interface {
	SendColibriIQ(ctx context.Context, bridgeID string, iq stanza.ColibriConferenceIQ) (stanza.ColibriConferenceIQ, error)
}

// FailureHandler is invoked when a colibri request to a bridge fails,
// naming the participants that were allocated on it so the caller
// (conference.ParticipantManager) can re-invite them.
type FailureHandler func(bridgeID string, affectedParticipants []string)

// participantAllocation records which bridge hosts a participant and its
// colibri channel id on that bridge.
type participantAllocation struct {
	bridgeID   string
	endpointID string
}

// SessionManager is one conference's colibri allocator, owning the
// conference's cascade and the per-bridge participant bookkeeping.
type SessionManager struct {
	conferenceID string
	sender       Sender
	brewery      *bridge.Brewery
	strategy     selector.Strategy
	onFailure    FailureHandler

	networkTimeout  time.Duration
	failureCooldown time.Duration
	rampupInterval  time.Duration
	rampupAlpha     float64
	versionPin      string

	mu           sync.Mutex
	cascadeGraph *cascade.Cascade
	allocations  map[string]participantAllocation // participant id -> allocation
	bridgeCounts map[string]int                    // bridge id -> participant count in this conference

	// growGroup collapses concurrent first-participant Allocate calls that
	// land on the same newly-selected bridge into a single growCascade +
	// establishRelay: bridgeCounts only increments after the colibri round
	// trip completes, so two participants racing onto an empty bridge
	// would otherwise both see isNewBridge and both try to mesh it in.
	growGroup singleflight.Group
}

// Config bundles SessionManager's tunables.
type Config struct {
	NetworkTimeout  time.Duration
	FailureCooldown time.Duration
	RampupInterval  time.Duration
	RampupAlpha     float64
	VersionPin      string
}

// New constructs a SessionManager for one conference.
func New(conferenceID string, sender Sender, brewery *bridge.Brewery, strategy selector.Strategy, onFailure FailureHandler, cfg Config) *SessionManager {
	return &SessionManager{
		conferenceID:    conferenceID,
		sender:          sender,
		brewery:         brewery,
		strategy:        strategy,
		onFailure:       onFailure,
		networkTimeout:  cfg.NetworkTimeout,
		failureCooldown: cfg.FailureCooldown,
		rampupInterval:  cfg.RampupInterval,
		rampupAlpha:     cfg.RampupAlpha,
		versionPin:      cfg.VersionPin,
		cascadeGraph:    cascade.New(),
		allocations:     make(map[string]participantAllocation),
		bridgeCounts:    make(map[string]int),
	}
}

var ErrNoUsableBridge = errors.New("colibri: no usable bridge")

// Allocate picks a bridge for participantID (growing the cascade if
// needed), requests its channels, and returns the offer contents to embed
// in session-initiate, per spec.md §4.7.
func (m *SessionManager) Allocate(ctx context.Context, participantID, region string) ([]stanza.Content, error) {
	m.mu.Lock()
	b, ok := m.selectLocked(region)
	if !ok {
		m.mu.Unlock()
		return nil, ErrNoUsableBridge
	}

	isNewBridge := m.bridgeCounts[b.ID()] == 0
	m.mu.Unlock()

	if isNewBridge {
		_, err, _ := m.growGroup.Do(b.ID(), func() (interface{}, error) {
			peer, err := m.growCascade(b.ID())
			if err != nil {
				return nil, err
			}
			if peer != "" {
				if err := m.establishRelay(ctx, b.ID(), peer); err != nil {
					return nil, err
				}
			}
			return nil, nil
		})
		if err != nil {
			return nil, err
		}
	}

	iq := stanza.ColibriConferenceIQ{
		Conference: stanza.ColibriConference{
			ID: m.conferenceID,
			Endpoints: []stanza.ColibriEndpoint{
				{ID: participantID, Create: true, Media: []stanza.Content{{Name: "audio"}, {Name: "video"}}},
			},
		},
	}
	resp, err := m.sendWithTimeout(ctx, b.ID(), iq)
	if err != nil {
		m.handleFailure(b.ID())
		return nil, fmt.Errorf("colibri: allocate on %s: %w", b.ID(), err)
	}

	m.mu.Lock()
	m.allocations[participantID] = participantAllocation{bridgeID: b.ID(), endpointID: participantID}
	m.bridgeCounts[b.ID()]++
	m.mu.Unlock()
	m.brewery.RecordEndpointAdded(b.ID(), time.Now(), m.rampupInterval)

	var contents []stanza.Content
	for _, ep := range resp.Conference.Endpoints {
		contents = append(contents, ep.Media...)
	}
	return contents, nil
}

// Expire frees participantID's channels, repairing the cascade if removing
// the last participant on a bridge empties and disconnects it.
func (m *SessionManager) Expire(ctx context.Context, participantID string) error {
	m.mu.Lock()
	alloc, ok := m.allocations[participantID]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	delete(m.allocations, participantID)
	m.bridgeCounts[alloc.bridgeID]--
	empty := m.bridgeCounts[alloc.bridgeID] <= 0
	m.mu.Unlock()

	iq := stanza.ColibriConferenceIQ{
		Conference: stanza.ColibriConference{
			ID:        m.conferenceID,
			Endpoints: []stanza.ColibriEndpoint{{ID: participantID, Expire: true}},
		},
	}
	if _, err := m.sendWithTimeout(ctx, alloc.bridgeID, iq); err != nil {
		m.handleFailure(alloc.bridgeID)
	}

	if empty {
		m.mu.Lock()
		delete(m.bridgeCounts, alloc.bridgeID)
		_ = m.cascadeGraph.RemoveNode(alloc.bridgeID, m.repair)
		m.mu.Unlock()
	}
	return nil
}

// UpdateSources pushes a source-map delta to the hosting bridge so relay
// channels forward correctly, per spec.md §4.7.
func (m *SessionManager) UpdateSources(ctx context.Context, participantID string, delta source.ConferenceSourceMap) error {
	m.mu.Lock()
	alloc, ok := m.allocations[participantID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("colibri: %s has no allocation", participantID)
	}

	endpoints := make([]stanza.ColibriEndpoint, 0, len(delta))
	for epID, set := range delta {
		srcs := set.Sources()
		wire := make([]stanza.ColibriSource, 0, len(srcs))
		for _, s := range srcs {
			wire = append(wire, stanza.ColibriSource{
				SSRC:  s.SSRC,
				Media: s.Media.String(),
				Name:  s.Name,
				Msid:  s.Msid,
			})
		}
		endpoints = append(endpoints, stanza.ColibriEndpoint{ID: epID, Sources: wire})
	}

	iq := stanza.ColibriConferenceIQ{Conference: stanza.ColibriConference{ID: m.conferenceID, Endpoints: endpoints}}
	if _, err := m.sendWithTimeout(ctx, alloc.bridgeID, iq); err != nil {
		m.handleFailure(alloc.bridgeID)
		return err
	}
	return nil
}

// MoveEndpoint expires participantID's current allocation and re-runs
// selection, per spec.md §4.7/§4.10. Callers are responsible for
// re-inviting afterward (ColibriSessionManager does not itself send
// Jingle).
func (m *SessionManager) MoveEndpoint(ctx context.Context, participantID, region string) error {
	if err := m.Expire(ctx, participantID); err != nil {
		return err
	}
	_, err := m.Allocate(ctx, participantID, region)
	return err
}

// BridgeOf returns the bridge id hosting participantID, if allocated.
func (m *SessionManager) BridgeOf(participantID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	alloc, ok := m.allocations[participantID]
	return alloc.bridgeID, ok
}

// ParticipantsOnBridge returns every participant currently allocated on
// bridgeID.
func (m *SessionManager) ParticipantsOnBridge(bridgeID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for id, alloc := range m.allocations {
		if alloc.bridgeID == bridgeID {
			out = append(out, id)
		}
	}
	return out
}

func (m *SessionManager) selectLocked(region string) (bridge.Bridge, bool) {
	params := selector.Params{
		All:               m.brewery.Snapshot(),
		InConference:      m.bridgeCounts,
		ParticipantRegion: region,
		VersionPin:        m.versionPin,
		Now:               time.Now(),
		FailureCooldown:   m.failureCooldown,
		RampupInterval:    m.rampupInterval,
		RampupAlpha:       m.rampupAlpha,
	}
	return m.strategy.Select(params)
}

// growCascade adds bridgeID to the cascade graph, returning the peer bridge
// id it was meshed against (empty if bridgeID became the cascade's first,
// unmeshed node).
func (m *SessionManager) growCascade(bridgeID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cascadeGraph.Size() == 0 {
		return "", m.cascadeGraph.AddNodeToMesh(bridgeID, "mesh-0")
	}
	// A fresh bridge not yet in any mesh joins by forming a new two-node
	// mesh with an arbitrary existing node; a richer mesh-placement policy
	// is a selector concern (RegionBasedWithCascade), not this manager's.
	for existing := range m.bridgeCounts {
		if existing == bridgeID {
			continue
		}
		if err := m.cascadeGraph.AddMesh(existing, bridgeID, bridgeID+"-mesh"); err != nil {
			return "", err
		}
		return existing, nil
	}
	return "", nil
}

// establishRelay requests the octo/relay channel binding bridgeID and peer
// from both sides concurrently, per spec.md §4.6's "create relay channels
// connecting it to the chosen mesh" — an errgroup fan-out since the two
// requests are independent and a failure on either side must abort the
// allocation.
func (m *SessionManager) establishRelay(ctx context.Context, bridgeID, peer string) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, pair := range [][2]string{{bridgeID, peer}, {peer, bridgeID}} {
		target, remote := pair[0], pair[1]
		g.Go(func() error {
			iq := stanza.ColibriConferenceIQ{
				Conference: stanza.ColibriConference{
					ID:     m.conferenceID,
					Relays: []stanza.ColibriRelay{{ID: remote, Create: true}},
				},
			}
			_, err := m.sendWithTimeout(gctx, target, iq)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("colibri: establish relay %s<->%s: %w", bridgeID, peer, err)
	}
	return nil
}

// repair is the cascade repair strategy used on node removal: it links the
// first member of the first non-empty fragment to the first member of every
// other non-empty fragment (a star), each link in a new mesh of its own.
func (m *SessionManager) repair(fragments [][]string) []cascade.RepairLink {
	var links []cascade.RepairLink
	var anchors []string
	for _, frag := range fragments {
		if len(frag) > 0 {
			anchors = append(anchors, frag[0])
		}
	}
	for i := 1; i < len(anchors); i++ {
		links = append(links, cascade.RepairLink{A: anchors[0], B: anchors[i], MeshID: fmt.Sprintf("repair-%s-%s", anchors[0], anchors[i])})
	}
	return links
}

func (m *SessionManager) sendWithTimeout(ctx context.Context, bridgeID string, iq stanza.ColibriConferenceIQ) (stanza.ColibriConferenceIQ, error) {
	ctx, cancel := context.WithTimeout(ctx, m.networkTimeout)
	defer cancel()
	return m.sender.SendColibriIQ(ctx, bridgeID, iq)
}

func (m *SessionManager) handleFailure(bridgeID string) {
	m.brewery.MarkFailed(bridgeID, time.Now())
	affected := m.ParticipantsOnBridge(bridgeID)

	m.mu.Lock()
	for _, id := range affected {
		delete(m.allocations, id)
	}
	delete(m.bridgeCounts, bridgeID)
	_ = m.cascadeGraph.RemoveNode(bridgeID, m.repair)
	m.mu.Unlock()

	if m.onFailure != nil && len(affected) > 0 {
		m.onFailure(bridgeID, affected)
	}
}
