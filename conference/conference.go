package conference

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jiconf/focus/colibri"
	"github.com/jiconf/focus/focuserr"
	"github.com/jiconf/focus/jibri"
	"github.com/jiconf/focus/jingle"
	"github.com/jiconf/focus/signaling"
	"github.com/jiconf/focus/source"
	"github.com/jiconf/focus/stanza"
)

// toJSONSources flattens every endpoint's sources into the single compact
// JSON document a Jingle IQ carries (spec.md §6). The compact wire format
// carries no media-type field (see jingle.EncodeCompactSources); mixing
// audio and video sources from multiple endpoints into one document is the
// same simplification the wire format itself already makes for a single
// endpoint's sources.
func toJSONSources(m source.ConferenceSourceMap) (*stanza.JSONSources, error) {
	var flat []source.Source
	for _, eps := range m {
		flat = append(flat, eps.Sources()...)
	}
	return jingle.EncodeCompactSources(flat)
}

// task is a unit of conference-state mutation run on the serial queue.
type task func()

// Conference is one multi-party conference: a participant registry, its
// ConferenceSourceMap, and the colibri/jibri collaborators that drive it,
// all mutated only on this Conference's own serial task queue (spec.md
// §4.8/§5).
type Conference struct {
	Room string

	colibriMgr *colibri.SessionManager
	jibriDisp  *jibri.Dispatcher
	log        zerolog.Logger

	queue chan task

	mu           sync.Mutex // guards participants/sources snapshot reads from outside the queue
	participants map[string]*Participant
	sources      source.ConferenceSourceMap

	// failures carries bridge-failure events from colibri.FailureHandler
	// (invoked synchronously, from inside a task already running on queue)
	// to their own draining goroutine, so re-invites never re-enter enqueue
	// from the same goroutine that would have to service it. See
	// onBridgeFailedAsync.
	failures chan bridgeFailure

	stop chan struct{}
}

// bridgeFailure is one colibri.FailureHandler invocation queued for
// asynchronous re-invite.
type bridgeFailure struct {
	bridgeID string
	affected []string
}

// Config bundles a Conference's per-room collaborators.
type Config struct {
	Room       string
	ColibriMgr *colibri.SessionManager
	JibriDisp  *jibri.Dispatcher
	Log        zerolog.Logger
	QueueDepth int
}

// New constructs a Conference and starts its task-queue worker goroutine.
func New(cfg Config) *Conference {
	depth := cfg.QueueDepth
	if depth <= 0 {
		depth = 64
	}
	c := &Conference{
		Room:         cfg.Room,
		colibriMgr:   cfg.ColibriMgr,
		jibriDisp:    cfg.JibriDisp,
		log:          cfg.Log,
		queue:        make(chan task, depth),
		participants: make(map[string]*Participant),
		sources:      make(source.ConferenceSourceMap),
		failures:     make(chan bridgeFailure, 8),
		stop:         make(chan struct{}),
	}
	go c.run()
	go c.drainFailures()
	return c
}

// drainFailures runs OnBridgeFailed for every event onBridgeFailedAsync
// hands off, on its own goroutine rather than run()'s. OnBridgeFailed calls
// ReInvite, which calls enqueue: running that from run()'s own goroutine
// would deadlock it against itself, since run() is the only goroutine that
// ever drains the queue enqueue blocks on.
func (c *Conference) drainFailures() {
	for {
		select {
		case ev := <-c.failures:
			c.OnBridgeFailed(context.Background(), ev.bridgeID, ev.affected)
		case <-c.stop:
			return
		}
	}
}

// onBridgeFailedAsync is the colibri.FailureHandler wired in for this
// Conference. handleFailure invokes it synchronously from inside whichever
// task is currently running on the queue (Join/Leave/UpdateSources/ReInvite
// all call into colibri.SessionManager methods that can trigger it), so it
// must never call back into enqueue itself; it only ever hands the event to
// drainFailures.
func (c *Conference) onBridgeFailedAsync(bridgeID string, affected []string) {
	select {
	case c.failures <- bridgeFailure{bridgeID: bridgeID, affected: affected}:
	default:
		c.log.Warn().Str("bridge", bridgeID).Int("affected", len(affected)).Msg("bridge-failure queue full, dropping re-invite event")
	}
}

func (c *Conference) run() {
	for {
		select {
		case t := <-c.queue:
			t()
		case <-c.stop:
			for {
				select {
				case t := <-c.queue:
					t()
				default:
					return
				}
			}
		}
	}
}

// enqueue runs fn on the serial queue and blocks until it completes,
// modeling spec.md §4.8's "external callers enqueue tasks and await
// completion via a future/promise" with a done channel.
func (c *Conference) enqueue(fn func() error) error {
	select {
	case <-c.stop:
		return focuserr.New(focuserr.InternalServerError, "conference is shutting down")
	default:
	}
	done := make(chan error, 1)
	select {
	case c.queue <- func() { done <- fn() }:
	case <-c.stop:
		return focuserr.New(focuserr.InternalServerError, "conference is shutting down")
	}
	return <-done
}

// Close stops the task-queue worker. Pending enqueued tasks that have
// already been accepted still run; new enqueues fail.
func (c *Conference) Close() {
	close(c.stop)
}

// ParticipantCount returns the number of occupants, safe to call without
// going through the task queue.
func (c *Conference) ParticipantCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.participants)
}

// IsModerator reports whether id currently holds a moderator-or-above role
// (spec.md §8 invariant 9's Jibri/admin gating). A not-yet-joined or
// already-left id reports false.
func (c *Conference) IsModerator(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.participants[id]
	return ok && p.Role.IsModerator()
}

// AttachJingleSession binds sess as id's Jingle session, for use once the
// signaling layer has created it (spec.md §4.3). id must already have
// joined; otherwise it returns item-not-found. Attaching sends nothing: the
// session carries later source-add/source-remove updates and re-invites,
// but the session-initiate of Join is not sent over it, since Join invites
// before any session can be attached.
func (c *Conference) AttachJingleSession(id string, sess *jingle.Session) error {
	return c.enqueue(func() error {
		c.mu.Lock()
		p, ok := c.participants[id]
		c.mu.Unlock()
		if !ok {
			return focuserr.New(focuserr.ItemNotFound, "no such participant")
		}
		p.JingleSession = sess
		return nil
	})
}

// Join admits a new participant (spec.md §4.8's Join step: discover
// features, construct Participant, add to registry, schedule invite).
func (c *Conference) Join(ctx context.Context, id, jidStr string, features Features, role Role, region string) error {
	return c.enqueue(func() error {
		p := newParticipant(id, jidStr, features, role, region)

		c.mu.Lock()
		c.participants[id] = p
		c.mu.Unlock()

		return c.inviteLocked(ctx, p)
	})
}

// inviteLocked allocates colibri channels and sends session-initiate,
// filtered per the peer's capabilities (spec.md §4.8 Invite step). Must
// run on the task queue.
func (c *Conference) inviteLocked(ctx context.Context, p *Participant) error {
	contents, err := c.colibriMgr.Allocate(ctx, p.ID, p.Region)
	if err != nil {
		return focuserr.Wrap(focuserr.InternalServerError, "colibri allocation failed", err)
	}
	p.colibriAllocated = true
	if bridgeID, ok := c.colibriMgr.BridgeOf(p.ID); ok {
		p.bridgeID = bridgeID
	}

	delta := source.ConferenceSourceMap{}
	for epID, epSources := range c.sources {
		if epID != p.ID {
			delta[epID] = epSources
		}
	}
	// ReplaceAll sets the full set as pending; the following Flush, against
	// a still-empty signaled map, returns it back out already filtered per
	// the peer's capabilities (spec.md §4.2) as a single add Op — exactly
	// the set the inline session-initiate payload needs.
	p.SourceSignaling.ReplaceAll(delta)
	ops := p.SourceSignaling.Flush()

	if p.JingleSession == nil {
		return nil
	}
	var filtered source.ConferenceSourceMap
	for _, op := range ops {
		if op.Add {
			filtered = op.Delta
		}
	}
	sources, err := toJSONSources(filtered)
	if err != nil {
		return focuserr.Wrap(focuserr.InternalServerError, "source encoding failed", err)
	}
	return p.JingleSession.Initiate(ctx, contents, sources)
}

// Leave removes a participant and propagates source-remove for everything
// it contributed (spec.md §4.8 Leave step).
func (c *Conference) Leave(ctx context.Context, id string) error {
	return c.enqueue(func() error {
		c.mu.Lock()
		p, ok := c.participants[id]
		if !ok {
			c.mu.Unlock()
			return nil
		}
		delete(c.participants, id)
		removed := c.sources[id]
		delete(c.sources, id)
		others := c.otherParticipantsLocked(id)
		c.mu.Unlock()

		if p.colibriAllocated {
			_ = c.colibriMgr.Expire(ctx, id)
		}

		if removed.Empty() {
			return nil
		}
		for _, other := range others {
			other.SourceSignaling.RemoveSources(id, removed)
			c.flushToPeer(other)
		}
		return nil
	})
}

func (c *Conference) otherParticipantsLocked(excludeID string) []*Participant {
	out := make([]*Participant, 0, len(c.participants))
	for pid, p := range c.participants {
		if pid != excludeID {
			out = append(out, p)
		}
	}
	return out
}

// UpdateSources applies a source-set change from participant id (via
// session-accept or source-add/remove) and propagates the diff to every
// other participant, gated by the source Validator (spec.md §4.8 Source
// propagation step, §8 invariant 1).
func (c *Conference) UpdateSources(ctx context.Context, id string, candidate source.EndpointSourceSet, validator *source.Validator) error {
	return c.enqueue(func() error {
		c.mu.Lock()
		used := c.sources.UsedSsrcs(id)
		merged, err := validator.TryAdd(c.sources[id], candidate, used)
		if err != nil {
			c.mu.Unlock()
			return focuserr.Wrap(focuserr.MalformedRequest, "source validation failed", err)
		}
		c.sources[id] = merged
		others := c.otherParticipantsLocked(id)
		c.mu.Unlock()

		if err := c.colibriMgr.UpdateSources(ctx, id, source.ConferenceSourceMap{id: merged}); err != nil {
			return focuserr.Wrap(focuserr.InternalServerError, "colibri source update failed", err)
		}

		for _, other := range others {
			other.SourceSignaling.AddSources(id, merged)
			c.flushToPeer(other)
		}
		return nil
	})
}

// flushToPeer drains p's pending source-signaling ops and fire-and-forgets
// them as Jingle source-add/source-remove IQs. Contents (codec/transport
// descriptions) are nil here: these are source-only updates, not a
// renegotiation of the media description.
func (c *Conference) flushToPeer(p *Participant) {
	if p.JingleSession == nil {
		return
	}
	for _, op := range p.SourceSignaling.Flush() {
		sources, err := toJSONSources(op.Delta)
		if err != nil {
			c.log.Warn().Err(err).Str("participant", p.ID).Msg("source encoding failed, dropping update")
			continue
		}
		if op.Add {
			p.JingleSession.AddSource(sources, nil)
		} else {
			p.JingleSession.RemoveSource(sources, nil)
		}
	}
}

// ReInvite moves participant id to a new bridge via transport-replace,
// falling back to terminate-and-reinvite on failure (spec.md §4.8
// Re-invite step, used both for explicit admin moves and bridge-failure
// recovery).
func (c *Conference) ReInvite(ctx context.Context, id string) error {
	return c.enqueue(func() error {
		c.mu.Lock()
		p, ok := c.participants[id]
		c.mu.Unlock()
		if !ok {
			return focuserr.New(focuserr.ItemNotFound, "no such participant")
		}

		if err := c.colibriMgr.MoveEndpoint(ctx, id, p.Region); err != nil {
			return focuserr.Wrap(focuserr.ResourceConstraint, "no usable bridge for re-invite", err)
		}
		if bridgeID, ok := c.colibriMgr.BridgeOf(id); ok {
			p.bridgeID = bridgeID
		}

		if p.JingleSession == nil {
			return nil
		}
		sources, err := c.fullSourcesFor(p)
		if err != nil {
			return focuserr.Wrap(focuserr.InternalServerError, "source encoding failed", err)
		}

		if err := p.JingleSession.ReplaceTransport(ctx, nil, sources); err != nil {
			p.JingleSession.Terminate("general-error", "re-invite transport-replace failed", true)
			// A fresh session-initiate must resend the full set inline, so
			// the outbox cannot start from what fullSourcesFor just marked
			// as already-signaled.
			p.SourceSignaling = signaling.New(p.Features.toCaps())
			return c.inviteLocked(ctx, p)
		}
		return nil
	})
}

// fullSourcesFor rebuilds p's complete peer-filtered source view (every
// other endpoint's sources, minus p's own) as a compact JSON payload, for a
// full resend on transport-replace.
func (c *Conference) fullSourcesFor(p *Participant) (*stanza.JSONSources, error) {
	c.mu.Lock()
	delta := source.ConferenceSourceMap{}
	for epID, epSources := range c.sources {
		if epID != p.ID {
			delta[epID] = epSources
		}
	}
	c.mu.Unlock()

	// Start from an empty signaled map so Flush returns the whole set, not
	// only what changed since the last flush.
	p.SourceSignaling = signaling.New(p.Features.toCaps())
	p.SourceSignaling.ReplaceAll(delta)
	ops := p.SourceSignaling.Flush()
	var filtered source.ConferenceSourceMap
	for _, op := range ops {
		if op.Add {
			filtered = op.Delta
		}
	}
	return toJSONSources(filtered)
}

// OnBridgeFailed re-invites every participant allocated on bridgeID
// (spec.md §4.7/§4.8's "bridge failed" event).
func (c *Conference) OnBridgeFailed(ctx context.Context, bridgeID string, affected []string) {
	for _, id := range affected {
		if err := c.ReInvite(ctx, id); err != nil {
			c.log.Warn().Err(err).Str("participant", id).Str("bridge", bridgeID).Msg("re-invite after bridge failure failed")
		}
	}
}

// ParticipantsOnBridge returns the ids of participants currently allocated
// on bridgeID, for LoadRedistributor's greedy selection.
func (c *Conference) ParticipantsOnBridge(bridgeID string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for id, p := range c.participants {
		if p.bridgeID == bridgeID {
			out = append(out, id)
		}
	}
	return out
}

// WithTimeout is a convenience for admin-triggered operations that need a
// bounded deadline distinct from the caller's own context.
func WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d)
}
