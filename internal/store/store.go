// Package store holds the client's mirror of the authoritative battle state.
package store

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/DoyleJ11/skirmish-client/internal/engine"
	"github.com/DoyleJ11/skirmish-client/internal/logging"
)

// Listener receives the live state after every merge. It must not keep the
// pointer past the call if it needs a stable copy; use Clone.
type Listener func(s *engine.BattleState, p engine.Patch)

type subscriber struct {
	id uint64
	fn Listener
}

type Store struct {
	mu        sync.Mutex
	state     *engine.BattleState
	subs      []subscriber
	nextID    uint64
	retention int
	log       *zap.Logger
}

func New(initial engine.BattleState, retention int, logger *zap.Logger) *Store {
	s := initial
	s.Logs = engine.TrimLogs(s.Logs, retention)
	return &Store{
		state:     &s,
		retention: retention,
		log:       logging.OrNop(logger).Named("store"),
	}
}

func (st *Store) Subscribe(fn Listener) func() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.nextID++
	id := st.nextID
	st.subs = append(st.subs, subscriber{id: id, fn: fn})

	return func() {
		st.mu.Lock()
		defer st.mu.Unlock()
		for i, s := range st.subs {
			if s.id == id {
				st.subs = append(st.subs[:i:i], st.subs[i+1:]...)
				return
			}
		}
	}
}

// SetState merges p as one unit and notifies every subscriber, in
// subscription order, before returning. Empty patches notify nobody.
func (st *Store) SetState(p engine.Patch) {
	if p.Empty() {
		return
	}
	st.mu.Lock()
	st.state.Apply(p, st.retention)
	subs := append([]subscriber(nil), st.subs...)
	st.mu.Unlock()

	for _, s := range subs {
		st.notify(s.fn, p)
	}
}

// AppendLog adds one entry and trims to retention.
func (st *Store) AppendLog(entry engine.LogEntry) {
	st.mu.Lock()
	logs := append(append([]engine.LogEntry(nil), st.state.Logs...), entry)
	st.mu.Unlock()
	st.SetState(engine.Patch{Logs: engine.Some(logs)})
}

// GetState returns the live state. Callers on the session goroutine may read
// it freely; anyone else should take a Snapshot.
func (st *Store) GetState() *engine.BattleState {
	return st.state
}

func (st *Store) Snapshot() engine.BattleState {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.state.Clone()
}

func (st *Store) notify(fn Listener, p engine.Patch) {
	defer func() {
		if r := recover(); r != nil {
			st.log.Error("state listener failed", zap.String("panic", fmt.Sprint(r)))
		}
	}()
	fn(st.state, p)
}
