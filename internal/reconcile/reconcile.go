// Package reconcile keeps a user's own token drags from being overwritten by
// server echoes that were sent before the drag.
package reconcile

import (
	"time"

	"github.com/DoyleJ11/skirmish-client/internal/engine"
)

// DefaultCooldown absorbs the echo of a just-sent move.
const DefaultCooldown = 50 * time.Millisecond

// Override is a local position write waiting for the server to catch up.
type Override struct {
	ID        engine.CharacterID
	Position  engine.Position
	Timestamp int64
}

type serverPosition struct {
	pos engine.Position
	ts  int64
}

type Reconciler struct {
	clock    Clock
	cooldown time.Duration
	now      func() time.Time

	overrides map[engine.CharacterID]Override
	dragging  map[engine.CharacterID]engine.Position
	committed map[engine.CharacterID]engine.Position
	quiet     map[engine.CharacterID]time.Time
	server    map[engine.CharacterID]serverPosition
}

// New returns a Reconciler. A nil clock gets a fresh LamportClock and a nil now
// uses time.Now.
func New(clock Clock, cooldown time.Duration, now func() time.Time) *Reconciler {
	if clock == nil {
		clock = &LamportClock{}
	}
	if now == nil {
		now = time.Now
	}
	return &Reconciler{
		clock:     clock,
		cooldown:  cooldown,
		now:       now,
		overrides: make(map[engine.CharacterID]Override),
		dragging:  make(map[engine.CharacterID]engine.Position),
		committed: make(map[engine.CharacterID]engine.Position),
		quiet:     make(map[engine.CharacterID]time.Time),
		server:    make(map[engine.CharacterID]serverPosition),
	}
}

// BeginLocalMove freezes the entity's visible position until the drag ends.
func (r *Reconciler) BeginLocalMove(id engine.CharacterID) {
	pos, _ := r.Visible(id)
	r.dragging[id] = pos
}

// CancelLocalMove ends a drag without writing anything.
func (r *Reconciler) CancelLocalMove(id engine.CharacterID) {
	delete(r.dragging, id)
}

func (r *Reconciler) Dragging(id engine.CharacterID) bool {
	_, ok := r.dragging[id]
	return ok
}

// CommitLocalMove ends the drag, records the override and starts the cooldown.
// The caller sends the move intent with the returned timestamp.
func (r *Reconciler) CommitLocalMove(id engine.CharacterID, x, y int) Override {
	ov := Override{ID: id, Position: engine.Position{X: x, Y: y}, Timestamp: r.clock.Tick()}
	delete(r.dragging, id)
	r.overrides[id] = ov
	r.committed[id] = ov.Position
	if r.cooldown > 0 {
		r.quiet[id] = r.now().Add(r.cooldown)
	}
	return ov
}

// Observe applies a server position for id stamped with ts. It reports whether
// the visible position changed. Broadcasts older than the pending override or
// older than the last accepted server value are ignored.
func (r *Reconciler) Observe(id engine.CharacterID, pos engine.Position, ts int64) bool {
	r.clock.Observe(ts)
	before, _ := r.Visible(id)

	if prev, ok := r.server[id]; ok && ts < prev.ts {
		return false
	}
	r.server[id] = serverPosition{pos: pos, ts: ts}

	if ov, ok := r.overrides[id]; ok {
		if ts < ov.Timestamp {
			return false
		}
		delete(r.overrides, id)
	}

	after, _ := r.Visible(id)
	return before != after
}

// Visible is the position the view should draw and whether it is on the map.
func (r *Reconciler) Visible(id engine.CharacterID) (engine.Position, bool) {
	pos, ok := r.visible(id)
	return pos, ok && pos.Placed()
}

func (r *Reconciler) visible(id engine.CharacterID) (engine.Position, bool) {
	if pos, ok := r.dragging[id]; ok {
		return pos, true
	}
	if ov, ok := r.overrides[id]; ok {
		return ov.Position, true
	}
	if until, ok := r.quiet[id]; ok {
		if r.now().Before(until) {
			return r.committed[id], true
		}
		delete(r.quiet, id)
	}
	sp, ok := r.server[id]
	if !ok {
		return engine.Unplaced, false
	}
	return sp.pos, true
}

// Positions returns every placed entity's visible position.
func (r *Reconciler) Positions() map[engine.CharacterID]engine.Position {
	ids := make(map[engine.CharacterID]struct{}, len(r.server)+len(r.overrides))
	for id := range r.server {
		ids[id] = struct{}{}
	}
	for id := range r.overrides {
		ids[id] = struct{}{}
	}
	for id := range r.dragging {
		ids[id] = struct{}{}
	}

	out := make(map[engine.CharacterID]engine.Position, len(ids))
	for id := range ids {
		if pos, ok := r.Visible(id); ok {
			out[id] = pos
		}
	}
	return out
}

func (r *Reconciler) Pending(id engine.CharacterID) (Override, bool) {
	ov, ok := r.overrides[id]
	return ov, ok
}

// Forget drops everything known about id, e.g. when the character is deleted.
func (r *Reconciler) Forget(id engine.CharacterID) {
	delete(r.overrides, id)
	delete(r.dragging, id)
	delete(r.committed, id)
	delete(r.quiet, id)
	delete(r.server, id)
}
