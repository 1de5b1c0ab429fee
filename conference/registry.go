package conference

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jiconf/focus/auth"
	"github.com/jiconf/focus/bridge"
	"github.com/jiconf/focus/colibri"
	"github.com/jiconf/focus/focuserr"
	"github.com/jiconf/focus/focusiq"
	"github.com/jiconf/focus/jibri"
	"github.com/jiconf/focus/selector"
)

// Collaborators bundles the process-wide services every new Conference
// needs, shared across all rooms (spec.md §9's "global-ish singletons...
// passed explicitly into components").
type Collaborators struct {
	BridgeBrewery *bridge.Brewery
	JibriBrewery  *jibri.Brewery
	Strategy      selector.Strategy
	ColibriSender colibri.Sender
	JibriSender   jibri.Sender
	JibriConfig   jibri.Config
	ColibriConfig colibri.Config
	// AuthStore is notified when a room's conference ends and evicts every
	// session bound to that room; no auto-login setting gates the eviction.
	// Nil is valid: ConferenceEnded then skips the call.
	AuthStore *auth.Store
	Log       zerolog.Logger
}

// Registry is the process-wide conference table (spec.md §4.12's
// "conference store"), implementing focusiq.Store.
type Registry struct {
	collab Collaborators

	mu           sync.RWMutex
	conferences  map[string]*Conference
	jibriPerRoom map[string]*jibri.Dispatcher
}

// NewRegistry constructs an empty Registry.
func NewRegistry(collab Collaborators) *Registry {
	return &Registry{collab: collab, conferences: make(map[string]*Conference), jibriPerRoom: make(map[string]*jibri.Dispatcher)}
}

// Exists reports whether room already has a running Conference.
func (r *Registry) Exists(room string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conferences[room]
	return ok
}

// Get returns the Conference for room, if any.
func (r *Registry) Get(room string) (*Conference, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conferences[room]
	return c, ok
}

// CreateAndJoin creates room's Conference (if it does not already exist,
// racing safely) and admits p.
func (r *Registry) CreateAndJoin(room string, p focusiq.Participant) (focusiq.Capabilities, error) {
	c := r.getOrCreate(room)
	return r.joinVia(c, p)
}

// Join admits p to an already-existing room's Conference.
func (r *Registry) Join(room string, p focusiq.Participant) (focusiq.Capabilities, error) {
	c, ok := r.Get(room)
	if !ok {
		return focusiq.Capabilities{}, focuserr.New(focuserr.ItemNotFound, "no such conference")
	}
	return r.joinVia(c, p)
}

func (r *Registry) joinVia(c *Conference, p focusiq.Participant) (focusiq.Capabilities, error) {
	features := FeaturesFromPresence(p.Presence)
	id := p.JID.String()
	if err := c.Join(context.Background(), id, id, features, ParticipantRole, ""); err != nil {
		return focusiq.Capabilities{}, err
	}
	return focusiq.Capabilities{Ready: true}, nil
}

func (r *Registry) getOrCreate(room string) *Conference {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.conferences[room]; ok {
		return c
	}

	detector := jibri.NewDetector(r.collab.JibriBrewery)
	disp := jibri.NewDispatcher(detector, r.collab.JibriBrewery, r.collab.JibriSender, nil, r.collab.JibriConfig)

	// c is assigned below, after mgr; the closure only runs later, once a
	// bridge actually fails, by which point c is set. onBridgeFailedAsync
	// (not OnBridgeFailed) is wired here deliberately: handleFailure inside
	// mgr calls this synchronously from whatever task is already running on
	// c's queue, and OnBridgeFailed itself calls ReInvite, which calls
	// enqueue — re-entering that from the same goroutine enqueue blocks on
	// would deadlock it against itself.
	var c *Conference
	mgr := colibri.New(room, r.collab.ColibriSender, r.collab.BridgeBrewery, r.collab.Strategy, func(bridgeID string, affected []string) {
		c.onBridgeFailedAsync(bridgeID, affected)
	}, r.collab.ColibriConfig)

	c = New(Config{Room: room, ColibriMgr: mgr, JibriDisp: disp, Log: r.collab.Log})
	r.conferences[room] = c
	r.jibriPerRoom[room] = disp
	return c
}

// ConferenceEnded removes room's Conference, stopping its task queue, and
// evicts any auth sessions bound to it (spec.md:174).
func (r *Registry) ConferenceEnded(room string) {
	r.mu.Lock()
	c, ok := r.conferences[room]
	if ok {
		c.Close()
		delete(r.conferences, room)
		delete(r.jibriPerRoom, room)
	}
	r.mu.Unlock()

	if ok && r.collab.AuthStore != nil {
		r.collab.AuthStore.ConferenceEnded(room)
	}
}

// CheckPendingJibriTimeouts runs scenario S7's pendingTimeout retry sweep
// (spec.md:140) against every currently tracked room's Jibri dispatcher, on
// that room's own Conference task queue so it serializes with the rest of
// the room's mutations.
func (r *Registry) CheckPendingJibriTimeouts(ctx context.Context) {
	for _, room := range r.Rooms() {
		c, ok := r.Get(room)
		if !ok {
			continue
		}
		disp, ok := r.JibriDispatcher(room)
		if !ok {
			continue
		}
		if err := c.enqueue(func() error {
			disp.CheckPendingTimeout(ctx, time.Now())
			return nil
		}); err != nil {
			r.collab.Log.Warn().Err(err).Str("room", room).Msg("jibri pending-timeout sweep failed")
		}
	}
}

// JibriDispatcher returns room's Jibri dispatcher, if the room is tracked.
func (r *Registry) JibriDispatcher(room string) (*jibri.Dispatcher, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.jibriPerRoom[room]
	return d, ok
}

// IsModerator reports whether id holds a moderator-or-above role in room.
func (r *Registry) IsModerator(room string, id string) bool {
	c, ok := r.Get(room)
	if !ok {
		return false
	}
	return c.IsModerator(id)
}

// Rooms returns every currently tracked room name.
func (r *Registry) Rooms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.conferences))
	for room := range r.conferences {
		out = append(out, room)
	}
	return out
}
