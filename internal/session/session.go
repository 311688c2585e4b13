package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/DoyleJ11/skirmish-client/internal/bus"
	"github.com/DoyleJ11/skirmish-client/internal/engine"
	"github.com/DoyleJ11/skirmish-client/internal/logging"
	"github.com/DoyleJ11/skirmish-client/internal/match"
	"github.com/DoyleJ11/skirmish-client/internal/reconcile"
	"github.com/DoyleJ11/skirmish-client/internal/store"
	"github.com/DoyleJ11/skirmish-client/internal/types"
)

var ErrClosed = errors.New("session closed")

// Transport is everything the session sends to the game server.
type Transport interface {
	match.Transport
	MoveToken(types.MoveToken) error
	NextTurn() error
	Close() error
}

type Config struct {
	Room         string
	User         string
	GameMaster   bool
	Cooldown     time.Duration
	LogRetention int
	Logger       *zap.Logger
	// Now drives the drag cooldown; defaults to time.Now.
	Now func() time.Time
}

// View is what subscribers receive after every change.
type View struct {
	Version   int                                    `json:"version"`
	Room      string                                 `json:"room"`
	State     engine.BattleState                     `json:"state"`
	Positions map[engine.CharacterID]engine.Position `json:"positions"`
	Dragging  []engine.CharacterID                   `json:"dragging,omitempty"`
	Match     match.View                             `json:"match"`
	UpNext    engine.CharacterID                     `json:"upNext,omitempty"`
	Skills    map[engine.CharacterID]SkillLists      `json:"skills,omitempty"`
}

// SkillLists are the pickers a character may choose from, already filtered.
type SkillLists struct {
	Attack     []engine.Skill `json:"attack"`
	WideAttack []engine.Skill `json:"wideAttack"`
	Defend     []engine.Skill `json:"defend"`
}

// Session is one room's client core. All state is owned by the loop
// goroutine; everything else talks to it through Inbox.
type Session struct {
	cfg       Config
	inbox     chan Msg
	transport Transport
	store     *store.Store
	bus       *bus.Bus
	positions *reconcile.Reconciler
	matches   *match.Coordinator
	log       *zap.Logger

	version int
	dirty   bool
	known   map[engine.CharacterID]struct{}
	clients map[string]chan View
	unsubs  []func()

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	errMu sync.Mutex
	err   error
}

func New(parent context.Context, t Transport, cfg Config) *Session {
	ctx, cancel := context.WithCancel(parent)
	log := logging.OrNop(cfg.Logger).Named("session").With(zap.String("room", cfg.Room))

	s := &Session{
		cfg:       cfg,
		inbox:     make(chan Msg, 64),
		transport: t,
		store:     store.New(engine.NewEmptyState(), cfg.LogRetention, log),
		bus:       bus.New(log),
		positions: reconcile.New(&reconcile.LamportClock{}, cfg.Cooldown, cfg.Now),
		log:       log,
		known:     make(map[engine.CharacterID]struct{}),
		clients:   make(map[string]chan View),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	s.matches = match.New(t, s.bus, s.store, match.Options{
		Controls: s.controls,
		Logger:   log,
	})
	s.wire()

	go s.loop()
	return s
}

func (s *Session) wire() {
	s.unsubs = append(s.unsubs,
		s.store.Subscribe(s.onState),
		s.bus.On(bus.TopicMatchChanged, func(any) { s.dirty = true }),
		s.bus.On(bus.TopicPositionChanged, func(any) { s.dirty = true }),
		s.bus.On(bus.TopicLogAppended, func(any) { s.dirty = true }),
	)
}

func (s *Session) controls(id engine.CharacterID) bool {
	if s.cfg.GameMaster {
		return true
	}
	ch, ok := s.store.GetState().FindCharacter(id)
	return ok && ch.Owner == s.cfg.User
}

// onState runs synchronously inside every store merge.
func (s *Session) onState(st *engine.BattleState, p engine.Patch) {
	s.dirty = true
	if p.Characters.Set {
		seen := make(map[engine.CharacterID]struct{}, len(st.Characters))
		for _, ch := range st.Characters {
			seen[ch.ID] = struct{}{}
			if s.positions.Observe(ch.ID, ch.Position, ch.LastMoveTimestamp) {
				s.bus.Emit(bus.TopicPositionChanged, ch.ID)
			}
		}
		for id := range s.known {
			if _, ok := seen[id]; !ok {
				s.positions.Forget(id)
				s.bus.Emit(bus.TopicPositionChanged, id)
			}
		}
		s.known = seen
	}
	if p.ActiveMatch.Set {
		s.matches.Sync(p.ActiveMatch.Val)
	}
}

func (s *Session) loop() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			s.shutdown()
			return

		case m := <-s.inbox:
			if !s.handle(m) {
				s.shutdown()
				return
			}
			if s.dirty {
				s.dirty = false
				s.version++
				s.broadcast(s.view())
			}
		}
	}
}

func (s *Session) shutdown() {
	for _, off := range s.unsubs {
		off()
	}
	s.unsubs = nil
	for id, ch := range s.clients {
		close(ch)
		delete(s.clients, id)
	}
	s.cancel()
}

func (s *Session) broadcast(v View) {
	for id, ch := range s.clients {
		select {
		case ch <- v:
		default:
			// Subscriber is slow/full - drop it.
			close(ch)
			delete(s.clients, id)
		}
	}
}

func (s *Session) view() View {
	st := s.store.Snapshot()
	v := View{
		Version:   s.version,
		Room:      s.cfg.Room,
		State:     st,
		Positions: s.positions.Positions(),
		Match:     s.matches.Snapshot(),
		Skills:    make(map[engine.CharacterID]SkillLists),
	}
	for _, ch := range st.Characters {
		if s.positions.Dragging(ch.ID) {
			v.Dragging = append(v.Dragging, ch.ID)
		}
		if s.controls(ch.ID) {
			v.Skills[ch.ID] = SkillLists{
				Attack:     engine.AttackerSkills(ch),
				WideAttack: engine.WideAttackerSkills(ch),
				Defend:     engine.DefenderSkills(ch),
			}
		}
	}
	if next, ok := engine.UpNext(&st); ok {
		v.UpNext = next
	}
	return v
}

// Inbox accepts messages for the loop.
func (s *Session) Inbox() chan<- Msg { return s.inbox }

// Send delivers m to the loop unless the session or ctx ends first.
func (s *Session) Send(ctx context.Context, m Msg) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	select {
	case s.inbox <- m:
		return nil
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Call sends the message built around a reply channel and waits for the
// loop's answer.
func (s *Session) Call(ctx context.Context, build func(reply chan error) Msg) error {
	reply := make(chan error, 1)
	if err := s.Send(ctx, build(reply)); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// View asks the loop for a fresh view.
func (s *Session) View(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := s.Send(ctx, GetView{Reply: reply}); err != nil {
		return View{}, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-s.done:
		return View{}, ErrClosed
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

// Bus exposes notifications for in-process renderers. Handlers run on the
// session goroutine.
func (s *Session) Bus() *bus.Bus { return s.bus }

func (s *Session) Done() <-chan struct{} { return s.done }

// Err is the fatal error that ended the session, if any.
func (s *Session) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *Session) fail(err error) {
	s.errMu.Lock()
	s.err = err
	s.errMu.Unlock()
}

// Close stops the loop and closes the transport.
func (s *Session) Close() error {
	s.cancel()
	<-s.done
	var closeErr error
	if s.transport != nil {
		closeErr = s.transport.Close()
	}
	return multierr.Combine(s.Err(), closeErr)
}
