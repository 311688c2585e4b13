// Package match runs the attacker/defender declaration protocol for the one
// active match of a room. Every side moves idle → calculating → calculated →
// locked; once every required side is locked the match is executed once.
package match

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/skirmish-client/internal/bus"
	"github.com/DoyleJ11/skirmish-client/internal/engine"
	"github.com/DoyleJ11/skirmish-client/internal/logging"
	"github.com/DoyleJ11/skirmish-client/internal/types"
)

var ErrMatchActive = errors.New("a match is already active")
var ErrNoActiveMatch = errors.New("no active match")
var ErrMatchResolved = errors.New("match already resolved")
var ErrUnknownSide = errors.New("side is not part of the match")
var ErrNotController = errors.New("side is controlled by another user")
var ErrSideDisabled = errors.New("side cannot act this round")
var ErrSideLocked = errors.New("side already locked")
var ErrAwaitingResult = errors.New("calculation in flight")
var ErrNotCalculated = errors.New("side has no calculated result")
var ErrSelfTarget = errors.New("attacker cannot target itself")

// Transport is the outbound half of the server connection used here.
type Transport interface {
	StartMatch(types.StartMatch) error
	DeclareSkill(types.DeclareSkill) error
	ExecuteMatch(types.ExecuteMatch) error
	CancelMatch(types.CancelMatch) error
}

// StateReader exposes the live battle state.
type StateReader interface {
	GetState() *engine.BattleState
}

// Controls reports whether the local user may declare for a character.
type Controls func(engine.CharacterID) bool

type Options struct {
	// Controls defaults to controlling every character (game-master view).
	Controls Controls
	Logger   *zap.Logger
	// NewID generates match instance ids; defaults to uuid.NewString.
	NewID func() string
}

type instance struct {
	id        string
	matchID   string
	kind      engine.MatchType
	mode      engine.WideMode
	sides     []*side
	confirmed bool
	resolved  bool
	seq       uint64
}

func (in *instance) find(ref SideRef) *side {
	for _, s := range in.sides {
		if s.ref == ref {
			return s
		}
	}
	return nil
}

func (in *instance) attacker() *side { return in.sides[0] }

func (in *instance) allLocked() bool {
	for _, s := range in.sides {
		if s.phase != PhaseLocked {
			return false
		}
	}
	return true
}

type Coordinator struct {
	transport Transport
	bus       *bus.Bus
	state     StateReader
	controls  Controls
	newID     func() string
	log       *zap.Logger

	current *instance
	lastErr string
}

func New(t Transport, b *bus.Bus, state StateReader, opts Options) *Coordinator {
	c := &Coordinator{
		transport: t,
		bus:       b,
		state:     state,
		controls:  opts.Controls,
		newID:     opts.NewID,
		log:       logging.OrNop(opts.Logger).Named("match"),
	}
	if c.controls == nil {
		c.controls = func(engine.CharacterID) bool { return true }
	}
	if c.newID == nil {
		c.newID = uuid.NewString
	}
	if c.bus == nil {
		c.bus = bus.New(opts.Logger)
	}
	return c
}

func (c *Coordinator) character(id engine.CharacterID) (engine.Character, error) {
	ch, ok := c.state.GetState().FindCharacter(id)
	if !ok {
		return engine.Character{}, fmt.Errorf("%w: %s", engine.ErrUnknownCharacter, id)
	}
	return *ch, nil
}

// OpenDuel starts a one-on-one match. A defender that cannot act is locked
// with NoGuard right away, so only the attacker has to declare.
func (c *Coordinator) OpenDuel(attackerID, defenderID engine.CharacterID) error {
	return c.open(engine.MatchDuel, attackerID, []engine.CharacterID{defenderID})
}

// OpenWide starts a multi-target match. The mode is fixed by the wide skill
// the attacker calculates.
func (c *Coordinator) OpenWide(attackerID engine.CharacterID, defenderIDs []engine.CharacterID) error {
	return c.open(engine.MatchWide, attackerID, defenderIDs)
}

func (c *Coordinator) open(kind engine.MatchType, attackerID engine.CharacterID, defenderIDs []engine.CharacterID) error {
	if c.current != nil {
		return ErrMatchActive
	}
	if !c.controls(attackerID) {
		return ErrNotController
	}
	if _, err := c.character(attackerID); err != nil {
		return err
	}

	in := &instance{kind: kind}
	in.id = c.newID()
	in.matchID = in.id
	in.sides = append(in.sides, &side{ref: SideRef{Role: RoleAttacker, CharacterID: attackerID}, phase: PhaseIdle})

	seen := map[engine.CharacterID]bool{}
	var disabled []engine.CharacterID
	for _, id := range defenderIDs {
		if id == attackerID {
			return ErrSelfTarget
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		def, err := c.character(id)
		if err != nil {
			return err
		}
		s := &side{ref: SideRef{Role: RoleDefender, CharacterID: id}, phase: PhaseIdle}
		if engine.IsOneSided(def) {
			s.lockDisabled()
			disabled = append(disabled, id)
		}
		in.sides = append(in.sides, s)
	}
	if len(in.sides) < 2 {
		return engine.ErrNoDefenders
	}

	req := types.StartMatch{
		MatchID:     in.matchID,
		MatchType:   kind,
		AttackerID:  attackerID,
		DefenderIDs: in.defenderIDs(),
		IsOneSided:  kind == engine.MatchDuel && len(disabled) == 1,
		Disabled:    disabled,
	}
	if err := c.transport.StartMatch(req); err != nil {
		return fmt.Errorf("start match: %w", err)
	}

	c.current = in
	c.lastErr = ""
	c.log.Info("match opened",
		zap.String("match", in.matchID),
		zap.String("type", string(kind)),
		zap.String("attacker", string(attackerID)),
		zap.Int("defenders", len(in.sides)-1),
	)
	c.changed()
	return nil
}

func (in *instance) defenderIDs() []engine.CharacterID {
	ids := make([]engine.CharacterID, 0, len(in.sides)-1)
	for _, s := range in.sides[1:] {
		ids = append(ids, s.ref.CharacterID)
	}
	return ids
}

// Adopt takes over a match the server opened, e.g. one started by another
// participant. Any local instance is discarded.
func (c *Coordinator) Adopt(m engine.Match) {
	in := &instance{
		id:        c.newID(),
		matchID:   m.ID,
		kind:      m.Type,
		mode:      m.Mode,
		confirmed: true,
	}
	in.sides = append(in.sides, &side{ref: SideRef{Role: RoleAttacker, CharacterID: m.AttackerID}, phase: PhaseIdle})
	for i, id := range m.DefenderIDs {
		s := &side{ref: SideRef{Role: RoleDefender, CharacterID: id}, phase: PhaseIdle}
		disabled := m.Type == engine.MatchDuel && m.IsOneSided
		if i < len(m.Defenders) && m.Defenders[i].Disabled {
			disabled = true
		}
		if def, err := c.character(id); err == nil && engine.IsOneSided(def) {
			disabled = true
		}
		if disabled {
			s.lockDisabled()
		}
		in.sides = append(in.sides, s)
	}

	c.current = in
	c.lastErr = ""
	c.log.Info("match adopted", zap.String("match", m.ID), zap.String("type", string(m.Type)))
	c.mirror(m)
	c.changed()
	c.maybeResolve()
}

// Sync reconciles the local instance with the server's active match.
func (c *Coordinator) Sync(m *engine.Match) {
	in := c.current
	switch {
	case m == nil || !m.IsActive:
		if in != nil && in.confirmed {
			c.Close()
		}
	case in == nil || m.ID != in.matchID:
		c.Adopt(*m)
	default:
		in.confirmed = true
		if m.Mode != "" {
			in.mode = m.Mode
		}
		if c.mirror(*m) {
			c.changed()
		}
		c.maybeResolve()
	}
}

// mirror copies server-side locks onto sides this user does not control.
func (c *Coordinator) mirror(m engine.Match) bool {
	in := c.current
	remote := append([]engine.MatchSide{m.Attacker}, m.Defenders...)
	if remote[0].CharacterID == "" {
		remote[0].CharacterID = m.AttackerID
	}
	changed := false
	for _, rs := range remote {
		if !rs.Locked || rs.CharacterID == "" || c.controls(rs.CharacterID) {
			continue
		}
		for _, s := range in.sides {
			if s.ref.CharacterID != rs.CharacterID || s.phase == PhaseLocked {
				continue
			}
			s.phase = PhaseLocked
			s.tag = ""
			s.result = &Result{Command: rs.Command, MinDamage: rs.MinDamage, MaxDamage: rs.MaxDamage}
			changed = true
		}
	}
	return changed
}

// Calculate asks the server to compute skillID for a side without committing.
func (c *Coordinator) Calculate(ref SideRef, skillID string) error {
	in, s, err := c.editable(ref)
	if err != nil {
		return err
	}
	if s.phase == PhaseCalculating {
		return ErrAwaitingResult
	}

	ch, err := c.character(ref.CharacterID)
	if err != nil {
		return c.sideError(s, err)
	}
	skill, ok := engine.FindSkill(c.eligible(in, ref.Role, ch), skillID)
	if !ok {
		if _, known := engine.FindSkill(engine.ParseSkills(ch.Commands), skillID); !known {
			return c.sideError(s, fmt.Errorf("%w: %s", engine.ErrSkillNotFound, skillID))
		}
		return c.sideError(s, fmt.Errorf("%w: %s", engine.ErrSkillNotEligible, skillID))
	}
	if in.kind == engine.MatchWide && ref.Role == RoleAttacker {
		in.mode = skill.Mode
	}

	in.seq++
	tag := fmt.Sprintf("%s/%s/%d", in.id, ref, in.seq)
	req := types.DeclareSkill{
		MatchID:        in.matchID,
		ActorID:        ref.CharacterID,
		TargetID:       c.target(in, ref),
		SkillID:        skillID,
		CorrelationTag: tag,
	}

	s.phase = PhaseCalculating
	s.tag = tag
	s.skillID = skillID
	s.result = nil
	s.err = ""
	if err := c.transport.DeclareSkill(req); err != nil {
		s.phase = PhaseIdle
		s.tag = ""
		return c.sideError(s, fmt.Errorf("declare skill: %w", err))
	}
	c.changed()
	return nil
}

func (c *Coordinator) eligible(in *instance, role Role, ch engine.Character) []engine.Skill {
	switch {
	case role == RoleAttacker && in.kind == engine.MatchWide:
		return engine.WideAttackerSkills(ch)
	case role == RoleAttacker:
		return engine.AttackerSkills(ch)
	case in.kind == engine.MatchWide:
		return engine.WideDefenderSkills(ch)
	default:
		return engine.DefenderSkills(ch)
	}
}

func (c *Coordinator) target(in *instance, ref SideRef) engine.CharacterID {
	if ref.Role == RoleDefender {
		return in.attacker().ref.CharacterID
	}
	if in.kind == engine.MatchDuel {
		return in.sides[1].ref.CharacterID
	}
	return ""
}

// HandleResult applies a server calculation. Results whose tag does not match
// a side that is still waiting are dropped and false is returned.
func (c *Coordinator) HandleResult(tag string, res types.SkillDeclarationResult) bool {
	in := c.current
	if in == nil || in.resolved {
		c.log.Debug("dropped declaration result", zap.String("tag", tag))
		return false
	}
	var s *side
	for _, cand := range in.sides {
		if cand.tag != "" && cand.tag == tag {
			s = cand
			break
		}
	}
	if s == nil || s.phase != PhaseCalculating {
		c.log.Debug("dropped declaration result", zap.String("tag", tag))
		return false
	}

	s.tag = ""
	if res.Error != "" {
		s.phase = PhaseIdle
		s.result = nil
		s.err = res.Error
		c.bus.Emit(bus.TopicMatchError, SideError{Ref: s.ref, Message: res.Error})
		c.changed()
		return true
	}

	s.phase = PhaseCalculated
	s.err = ""
	s.result = &Result{
		Command:      res.Command,
		MinDamage:    res.MinDamage,
		MaxDamage:    res.MaxDamage,
		SkillDetails: res.SkillDetails,
	}
	c.changed()
	return true
}

// Lock commits the side with exactly the command from its last calculation.
func (c *Coordinator) Lock(ref SideRef) error {
	in, s, err := c.editable(ref)
	if err != nil {
		return err
	}
	if s.phase != PhaseCalculated || s.result == nil {
		return ErrNotCalculated
	}

	in.seq++
	req := types.DeclareSkill{
		MatchID:        in.matchID,
		ActorID:        ref.CharacterID,
		TargetID:       c.target(in, ref),
		SkillID:        s.skillID,
		Commit:         true,
		Command:        s.result.Command,
		CorrelationTag: fmt.Sprintf("%s/%s/%d", in.id, ref, in.seq),
	}
	if err := c.transport.DeclareSkill(req); err != nil {
		return c.sideError(s, fmt.Errorf("lock: %w", err))
	}

	s.phase = PhaseLocked
	s.tag = ""
	s.err = ""
	c.log.Info("side locked",
		zap.String("match", in.matchID),
		zap.String("side", ref.String()),
		zap.String("command", s.result.Command),
	)
	c.changed()
	c.maybeResolve()
	return nil
}

// maybeResolve runs after every lock transition; the resolved flag makes the
// execute request one-shot per instance.
func (c *Coordinator) maybeResolve() {
	in := c.current
	if in == nil || in.resolved || !in.allLocked() {
		return
	}
	if !c.controls(in.attacker().ref.CharacterID) {
		return
	}
	in.resolved = true

	req := types.ExecuteMatch{MatchID: in.matchID, MatchType: in.kind}
	if in.kind == engine.MatchWide {
		req.Mode = in.mode
	}
	for _, s := range in.sides {
		cmd := NoGuard
		if s.result != nil {
			cmd = s.result.Command
		}
		req.Commands = append(req.Commands, types.SideCommand{
			Role:        string(s.ref.Role),
			CharacterID: s.ref.CharacterID,
			Command:     cmd,
		})
	}

	if err := c.transport.ExecuteMatch(req); err != nil {
		c.lastErr = err.Error()
		c.log.Error("execute match", zap.String("match", in.matchID), zap.Error(err))
		c.bus.Emit(bus.TopicMatchError, SideError{Message: err.Error()})
	} else {
		c.log.Info("match executed", zap.String("match", in.matchID), zap.Int("sides", len(req.Commands)))
	}
	c.bus.Emit(bus.TopicMatchResolving, req)
	c.changed()
}

// Cancel abandons the match before every side has locked. Late results for
// it are dropped.
func (c *Coordinator) Cancel() error {
	in := c.current
	if in == nil {
		return ErrNoActiveMatch
	}
	if in.resolved || in.allLocked() {
		return ErrMatchResolved
	}

	err := c.transport.CancelMatch(types.CancelMatch{MatchID: in.matchID})
	if err != nil {
		c.log.Warn("cancel match", zap.String("match", in.matchID), zap.Error(err))
		err = fmt.Errorf("cancel match: %w", err)
	}
	c.teardown("cancelled")
	return err
}

// Close tears the match down after the server confirmed it ended.
func (c *Coordinator) Close() {
	if c.current == nil {
		return
	}
	c.teardown("closed")
}

// HandleMatchError records a server-reported match error. A match the server
// never confirmed is dropped, since it was refused.
func (c *Coordinator) HandleMatchError(msg string) {
	c.lastErr = msg
	c.bus.Emit(bus.TopicMatchError, SideError{Message: msg})
	if in := c.current; in != nil && !in.confirmed && !in.resolved {
		c.teardown("refused")
		return
	}
	c.changed()
}

func (c *Coordinator) teardown(reason string) {
	in := c.current
	c.current = nil
	c.log.Info("match torn down", zap.String("match", in.matchID), zap.String("reason", reason))
	c.bus.Emit(bus.TopicMatchClosed, in.matchID)
	c.changed()
}

func (c *Coordinator) editable(ref SideRef) (*instance, *side, error) {
	in := c.current
	if in == nil {
		return nil, nil, ErrNoActiveMatch
	}
	if in.resolved {
		return nil, nil, ErrMatchResolved
	}
	s := in.find(ref)
	if s == nil {
		return nil, nil, ErrUnknownSide
	}
	if !c.controls(ref.CharacterID) {
		return nil, nil, ErrNotController
	}
	if s.disabled {
		return nil, nil, ErrSideDisabled
	}
	if s.phase == PhaseLocked {
		return nil, nil, ErrSideLocked
	}
	return in, s, nil
}

func (c *Coordinator) sideError(s *side, err error) error {
	s.err = err.Error()
	c.bus.Emit(bus.TopicMatchError, SideError{Ref: s.ref, Message: s.err})
	c.changed()
	return err
}

func (c *Coordinator) changed() {
	c.bus.Emit(bus.TopicMatchChanged, c.Snapshot())
}

// Active reports whether a match instance is live.
func (c *Coordinator) Active() bool { return c.current != nil }
