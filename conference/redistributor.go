package conference

import (
	"context"
	"math"
	"sort"

	"github.com/jiconf/focus/bridge"
	"github.com/jiconf/focus/focuserr"
)

// LoadRedistributor implements the bridge-drain admin API of spec.md §4.10:
// move one endpoint, N endpoints, or a fraction of a bridge's endpoints,
// delegating every move to the owning Conference's re-invite path.
type LoadRedistributor struct {
	registry *Registry
	brewery  *bridge.Brewery
}

// NewLoadRedistributor constructs a LoadRedistributor over registry/brewery.
func NewLoadRedistributor(registry *Registry, brewery *bridge.Brewery) *LoadRedistributor {
	return &LoadRedistributor{registry: registry, brewery: brewery}
}

// MoveResult reports how many endpoints moved and across how many
// conferences, per spec.md §6's admin HTTP response shape.
type MoveResult struct {
	MovedEndpoints int
	Conferences    int
}

// MoveEndpoint moves exactly one endpoint. If expectedBridgeID is non-empty
// and the endpoint is not currently on it, the move is reported as
// not-moved rather than attempted.
func (l *LoadRedistributor) MoveEndpoint(ctx context.Context, conferenceID, endpointID, expectedBridgeID string) (MoveResult, error) {
	c, ok := l.registry.Get(conferenceID)
	if !ok {
		return MoveResult{}, focuserr.New(focuserr.ItemNotFound, "no such conference")
	}

	if expectedBridgeID != "" {
		onBridge := false
		for _, id := range c.ParticipantsOnBridge(expectedBridgeID) {
			if id == endpointID {
				onBridge = true
				break
			}
		}
		if !onBridge {
			return MoveResult{}, nil
		}
	}

	if err := c.ReInvite(ctx, endpointID); err != nil {
		return MoveResult{}, focuserr.Wrap(focuserr.InternalServerError, "move failed", err)
	}
	return MoveResult{MovedEndpoints: 1, Conferences: 1}, nil
}

// MoveEndpoints moves N endpoints off bridgeID. If conferenceID is
// non-empty, only that conference's endpoints are considered; otherwise
// conferences are ranked by their current endpoint-count-on-this-bridge
// descending and drained in that order — the most loaded conference gives
// up endpoints first, up to its own count, before the next conference is
// touched at all — until N are moved (spec.md §4.10's greedy rule;
// scenario S8: {C1:4,C2:3,C3:3}, N=5 ⇒ {C1:4,C2:1}, C3 untouched).
func (l *LoadRedistributor) MoveEndpoints(ctx context.Context, bridgeID, conferenceID string, n int) (MoveResult, error) {
	if n <= 0 {
		return MoveResult{}, focuserr.New(focuserr.MalformedRequest, "numEndpoints must be positive")
	}
	if _, ok := l.brewery.Get(bridgeID); !ok {
		return MoveResult{}, focuserr.New(focuserr.ItemNotFound, "no such bridge")
	}

	var rooms []string
	if conferenceID != "" {
		if _, ok := l.registry.Get(conferenceID); !ok {
			return MoveResult{}, focuserr.New(focuserr.ItemNotFound, "no such conference")
		}
		rooms = []string{conferenceID}
	} else {
		rooms = l.registry.Rooms()
	}

	type bucket struct {
		room      string
		endpoints []string
	}
	buckets := make([]bucket, 0, len(rooms))
	for _, room := range rooms {
		c, ok := l.registry.Get(room)
		if !ok {
			continue
		}
		eps := c.ParticipantsOnBridge(bridgeID)
		if len(eps) > 0 {
			buckets = append(buckets, bucket{room: room, endpoints: eps})
		}
	}
	sort.SliceStable(buckets, func(i, j int) bool { return len(buckets[i].endpoints) > len(buckets[j].endpoints) })

	moved := 0
	touched := map[string]bool{}
	for _, b := range buckets {
		if moved >= n {
			break
		}
		c, _ := l.registry.Get(b.room)
		for _, epID := range b.endpoints {
			if moved >= n {
				break
			}
			if err := c.ReInvite(ctx, epID); err == nil {
				moved++
				touched[b.room] = true
			}
		}
	}

	return MoveResult{MovedEndpoints: moved, Conferences: len(touched)}, nil
}

// MoveFraction computes N = round(f * total-endpoints-on-bridge) and
// delegates to MoveEndpoints.
func (l *LoadRedistributor) MoveFraction(ctx context.Context, bridgeID string, f float64) (MoveResult, error) {
	if f < 0 || f > 1 {
		return MoveResult{}, focuserr.New(focuserr.MalformedRequest, "fraction must be in [0,1]")
	}
	if _, ok := l.brewery.Get(bridgeID); !ok {
		return MoveResult{}, focuserr.New(focuserr.ItemNotFound, "no such bridge")
	}

	total := 0
	for _, room := range l.registry.Rooms() {
		c, ok := l.registry.Get(room)
		if !ok {
			continue
		}
		total += len(c.ParticipantsOnBridge(bridgeID))
	}
	n := int(math.Round(f * float64(total)))
	if n <= 0 {
		return MoveResult{}, nil
	}
	return l.MoveEndpoints(ctx, bridgeID, "", n)
}
