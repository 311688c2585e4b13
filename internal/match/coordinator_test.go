package match

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/skirmish-client/internal/bus"
	"github.com/DoyleJ11/skirmish-client/internal/engine"
	"github.com/DoyleJ11/skirmish-client/internal/types"
)

const (
	attackerCommands = "Ps-00: Strike\nPs-01: Storm [wide:combined]\nPs-02: Blast [wide:individual]"
	defenderCommands = "Df-00: Guard\nDf-01: Dodge [instant]\nDf-02: Counter Storm [wide]"
)

type fakeTransport struct {
	starts   []types.StartMatch
	declares []types.DeclareSkill
	executes []types.ExecuteMatch
	cancels  []types.CancelMatch
	fail     error
}

func (f *fakeTransport) StartMatch(r types.StartMatch) error {
	f.starts = append(f.starts, r)
	return f.fail
}

func (f *fakeTransport) DeclareSkill(r types.DeclareSkill) error {
	if f.fail != nil {
		return f.fail
	}
	f.declares = append(f.declares, r)
	return nil
}

func (f *fakeTransport) ExecuteMatch(r types.ExecuteMatch) error {
	f.executes = append(f.executes, r)
	return nil
}

func (f *fakeTransport) CancelMatch(r types.CancelMatch) error {
	f.cancels = append(f.cancels, r)
	return nil
}

// lastTag is the correlation tag of the latest non-committing declaration.
func (f *fakeTransport) lastTag(t *testing.T) string {
	t.Helper()
	for i := len(f.declares) - 1; i >= 0; i-- {
		if !f.declares[i].Commit {
			return f.declares[i].CorrelationTag
		}
	}
	t.Fatalf("no calculation was sent")
	return ""
}

type fakeState struct{ s engine.BattleState }

func (f *fakeState) GetState() *engine.BattleState { return &f.s }

func newState(chars ...engine.Character) *fakeState {
	s := engine.NewEmptyState()
	s.Characters = chars
	return &fakeState{s: s}
}

func attacker(id engine.CharacterID) engine.Character {
	return engine.Character{ID: id, Commands: attackerCommands, Position: engine.Position{X: 1, Y: 1}}
}

func defender(id engine.CharacterID) engine.Character {
	return engine.Character{ID: id, Commands: defenderCommands, Position: engine.Position{X: 2, Y: 2}}
}

type harness struct {
	c  *Coordinator
	tr *fakeTransport
	st *fakeState
	b  *bus.Bus
}

func newHarness(opts Options, chars ...engine.Character) *harness {
	h := &harness{tr: &fakeTransport{}, st: newState(chars...), b: bus.New(nil)}
	seq := 0
	if opts.NewID == nil {
		opts.NewID = func() string {
			seq++
			return fmt.Sprintf("m%d", seq)
		}
	}
	h.c = New(h.tr, h.b, h.st, opts)
	return h
}

func atk(id engine.CharacterID) SideRef { return SideRef{Role: RoleAttacker, CharacterID: id} }
func def(id engine.CharacterID) SideRef { return SideRef{Role: RoleDefender, CharacterID: id} }

// calc runs a calculation for ref and answers it with the given command.
func (h *harness) calc(t *testing.T, ref SideRef, skill, command string, lo, hi int) {
	t.Helper()
	require.NoError(t, h.c.Calculate(ref, skill))
	applied := h.c.HandleResult(h.tr.lastTag(t), types.SkillDeclarationResult{
		CorrelationTag: h.tr.lastTag(t),
		Command:        command,
		MinDamage:      lo,
		MaxDamage:      hi,
	})
	require.True(t, applied)
}

func TestDuelResolvesOnceBothSidesLock(t *testing.T) {
	h := newHarness(Options{}, attacker("a"), defender("d"))
	require.NoError(t, h.c.OpenDuel("a", "d"))
	require.Len(t, h.tr.starts, 1)
	assert.False(t, h.tr.starts[0].IsOneSided)

	h.calc(t, atk("a"), "Ps-00", "2d6+3", 5, 15)
	require.NoError(t, h.c.Lock(atk("a")))
	assert.Empty(t, h.tr.executes)

	h.calc(t, def("d"), "Df-00", "2d6", 2, 12)
	assert.Empty(t, h.tr.executes, "defender calculated but not locked")
	assert.Equal(t, []SideRef{def("d")}, h.c.Snapshot().Waiting)

	require.NoError(t, h.c.Lock(def("d")))
	require.Len(t, h.tr.executes, 1)
	assert.Equal(t, []types.SideCommand{
		{Role: "attacker", CharacterID: "a", Command: "2d6+3"},
		{Role: "defender", CharacterID: "d", Command: "2d6"},
	}, h.tr.executes[0].Commands)
	assert.Equal(t, "m1", h.tr.executes[0].MatchID)
}

func TestLockSendsExactComputedCommand(t *testing.T) {
	h := newHarness(Options{}, attacker("a"), defender("d"))
	require.NoError(t, h.c.OpenDuel("a", "d"))
	h.calc(t, atk("a"), "Ps-00", "1d6", 1, 6)
	h.calc(t, atk("a"), "Ps-00", "2d6+3 [crit]", 5, 15)

	require.NoError(t, h.c.Lock(atk("a")))
	commit := h.tr.declares[len(h.tr.declares)-1]
	assert.True(t, commit.Commit)
	assert.Equal(t, "2d6+3 [crit]", commit.Command)
}

func TestOneSidedDuelSkipsDefender(t *testing.T) {
	d := defender("d")
	d.HasActed = true
	h := newHarness(Options{}, attacker("a"), d)
	require.NoError(t, h.c.OpenDuel("a", "d"))
	assert.True(t, h.tr.starts[0].IsOneSided)

	view, ok := h.c.Side(def("d"))
	require.True(t, ok)
	assert.Equal(t, PhaseLocked, view.Phase)
	assert.False(t, view.Required)

	err := h.c.Calculate(def("d"), "Df-00")
	assert.ErrorIs(t, err, ErrSideDisabled)

	h.calc(t, atk("a"), "Ps-00", "2d6+3", 5, 15)
	require.NoError(t, h.c.Lock(atk("a")))

	require.Len(t, h.tr.executes, 1)
	assert.Equal(t, NoGuard, h.tr.executes[0].Commands[1].Command)
	for _, d := range h.tr.declares {
		assert.NotEqual(t, engine.CharacterID("d"), d.ActorID, "defender never calculates")
	}
}

func TestWideUserDefenderIsOneSided(t *testing.T) {
	d := defender("d")
	d.IsWideUser = true
	h := newHarness(Options{}, attacker("a"), d)
	require.NoError(t, h.c.OpenDuel("a", "d"))
	assert.True(t, h.tr.starts[0].IsOneSided)
}

func TestWideCombinedWithOneActedDefender(t *testing.T) {
	d3 := defender("d3")
	d3.HasActed = true
	h := newHarness(Options{}, attacker("a"), defender("d1"), defender("d2"), d3)
	require.NoError(t, h.c.OpenWide("a", []engine.CharacterID{"d1", "d2", "d3"}))
	assert.Equal(t, []engine.CharacterID{"d3"}, h.tr.starts[0].Disabled)

	h.calc(t, atk("a"), "Ps-01", "3d6", 3, 18)
	assert.Equal(t, engine.WideCombined, h.c.Snapshot().Mode)
	require.NoError(t, h.c.Lock(atk("a")))

	h.calc(t, def("d1"), "Df-00", "1d6", 1, 6)
	require.NoError(t, h.c.Lock(def("d1")))
	assert.Empty(t, h.tr.executes)

	h.calc(t, def("d2"), "Df-00", "2d4", 2, 8)
	preview := h.c.Snapshot().Preview
	require.NotNil(t, preview)
	require.NotNil(t, preview.Combined)
	assert.Equal(t, engine.DamageRange{Min: 3, Max: 14}, *preview.Combined)

	require.NoError(t, h.c.Lock(def("d2")))
	require.Len(t, h.tr.executes, 1)
	ex := h.tr.executes[0]
	assert.Equal(t, engine.WideCombined, ex.Mode)
	assert.Equal(t, []string{"3d6", "1d6", "2d4", NoGuard}, commands(ex))
}

func commands(ex types.ExecuteMatch) []string {
	out := make([]string, 0, len(ex.Commands))
	for _, c := range ex.Commands {
		out = append(out, c.Command)
	}
	return out
}

func TestWideIndividualPreview(t *testing.T) {
	h := newHarness(Options{}, attacker("a"), defender("d1"), defender("d2"))
	require.NoError(t, h.c.OpenWide("a", []engine.CharacterID{"d1", "d2"}))
	h.calc(t, atk("a"), "Ps-02", "2d6", 2, 12)
	h.calc(t, def("d1"), "Df-00", "1d4", 1, 4)

	p := h.c.Snapshot().Preview
	require.NotNil(t, p)
	assert.Equal(t, engine.WideIndividual, p.Mode)
	assert.Nil(t, p.Combined)
	assert.Len(t, p.Defenders, 1)
}

func TestResolutionFiresAtMostOnce(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for trial := 0; trial < 50; trial++ {
		ids := []engine.CharacterID{"d1", "d2", "d3"}
		chars := []engine.Character{attacker("a")}
		for _, id := range ids {
			d := defender(id)
			d.HasActed = rng.Intn(3) == 0
			chars = append(chars, d)
		}
		h := newHarness(Options{}, chars...)
		require.NoError(t, h.c.OpenWide("a", ids))

		refs := []SideRef{atk("a")}
		for _, id := range ids {
			if v, _ := h.c.Side(def(id)); !v.Disabled {
				refs = append(refs, def(id))
			}
		}
		rng.Shuffle(len(refs), func(i, j int) { refs[i], refs[j] = refs[j], refs[i] })

		for _, ref := range refs {
			skill := "Df-00"
			if ref.Role == RoleAttacker {
				skill = "Ps-02"
			}
			h.calc(t, ref, skill, "1d6", 1, 6)
			require.NoError(t, h.c.Lock(ref))
			// redundant re-evaluation from server echoes
			h.c.Sync(&engine.Match{ID: "m1", Type: engine.MatchWide, IsActive: true, AttackerID: "a", DefenderIDs: ids})
			h.c.maybeResolve()
		}
		require.Len(t, h.tr.executes, 1, "trial %d", trial)

		err := h.c.Calculate(refs[0], "Ps-02")
		assert.ErrorIs(t, err, ErrMatchResolved)
	}
}

func TestLockedSideIgnoresLateResult(t *testing.T) {
	h := newHarness(Options{}, attacker("a"), defender("d"))
	require.NoError(t, h.c.OpenDuel("a", "d"))
	h.calc(t, atk("a"), "Ps-00", "2d6+3", 5, 15)
	staleTag := h.tr.lastTag(t)
	require.NoError(t, h.c.Lock(atk("a")))

	commitTag := h.tr.declares[len(h.tr.declares)-1].CorrelationTag
	for _, tag := range []string{staleTag, commitTag} {
		applied := h.c.HandleResult(tag, types.SkillDeclarationResult{Command: "9d9", MinDamage: 9, MaxDamage: 81})
		assert.False(t, applied)
	}

	v, _ := h.c.Side(atk("a"))
	assert.Equal(t, PhaseLocked, v.Phase)
	assert.Equal(t, "2d6+3", v.Result.Command)
	assert.Equal(t, 15, v.Result.MaxDamage)
}

func TestCancelledMatchDropsLateResult(t *testing.T) {
	h := newHarness(Options{}, attacker("a"), defender("d"))
	require.NoError(t, h.c.OpenDuel("a", "d"))
	require.NoError(t, h.c.Calculate(atk("a"), "Ps-00"))
	tag := h.tr.lastTag(t)

	require.NoError(t, h.c.Cancel())
	require.Len(t, h.tr.cancels, 1)
	assert.False(t, h.c.Active())

	notified := 0
	h.b.On(bus.TopicMatchChanged, func(any) { notified++ })
	h.b.On(bus.TopicMatchError, func(any) { notified++ })

	assert.False(t, h.c.HandleResult(tag, types.SkillDeclarationResult{Command: "2d6"}))
	assert.Zero(t, notified)
	assert.False(t, h.c.Snapshot().Active)
}

func TestLateResultFromPreviousMatchIsDropped(t *testing.T) {
	h := newHarness(Options{}, attacker("a"), defender("d"))
	require.NoError(t, h.c.OpenDuel("a", "d"))
	require.NoError(t, h.c.Calculate(atk("a"), "Ps-00"))
	oldTag := h.tr.lastTag(t)
	require.NoError(t, h.c.Cancel())

	require.NoError(t, h.c.OpenDuel("a", "d"))
	require.NoError(t, h.c.Calculate(atk("a"), "Ps-00"))

	assert.False(t, h.c.HandleResult(oldTag, types.SkillDeclarationResult{Command: "old"}))
	v, _ := h.c.Side(atk("a"))
	assert.Equal(t, PhaseCalculating, v.Phase)
}

func TestErrorResultReturnsSideToIdle(t *testing.T) {
	h := newHarness(Options{}, attacker("a"), defender("d"))
	require.NoError(t, h.c.OpenDuel("a", "d"))

	var surfaced []SideError
	h.b.On(bus.TopicMatchError, func(p any) { surfaced = append(surfaced, p.(SideError)) })

	require.NoError(t, h.c.Calculate(atk("a"), "Ps-00"))
	assert.True(t, h.c.HandleResult(h.tr.lastTag(t), types.SkillDeclarationResult{Error: "skill unavailable"}))

	v, _ := h.c.Side(atk("a"))
	assert.Equal(t, PhaseIdle, v.Phase)
	assert.Equal(t, "skill unavailable", v.Error)
	assert.Nil(t, v.Result)
	require.Len(t, surfaced, 1)
	assert.Equal(t, atk("a"), surfaced[0].Ref)

	assert.ErrorIs(t, h.c.Lock(atk("a")), ErrNotCalculated)
	calls := len(h.tr.declares)
	h.calc(t, atk("a"), "Ps-00", "2d6", 2, 12)
	assert.Equal(t, calls+1, len(h.tr.declares), "retry is explicit, never automatic")
}

func TestCalculateWhileAwaitingIsRejected(t *testing.T) {
	h := newHarness(Options{}, attacker("a"), defender("d"))
	require.NoError(t, h.c.OpenDuel("a", "d"))
	require.NoError(t, h.c.Calculate(atk("a"), "Ps-00"))
	assert.ErrorIs(t, h.c.Calculate(atk("a"), "Ps-00"), ErrAwaitingResult)
	assert.Len(t, h.tr.declares, 1)
}

func TestSkillEligibilityAtSelection(t *testing.T) {
	cases := []struct {
		name  string
		wide  bool
		ref   SideRef
		skill string
		want  error
	}{
		{name: "duel attacker cannot use wide skill", ref: atk("a"), skill: "Ps-01"},
		{name: "duel defender cannot use instant skill", ref: def("d"), skill: "Df-01"},
		{name: "duel defender cannot use wide skill", ref: def("d"), skill: "Df-02"},
		{name: "wide attacker needs a wide skill", wide: true, ref: atk("a"), skill: "Ps-00"},
		{name: "wide defender cannot counter with wide", wide: true, ref: def("d"), skill: "Df-02"},
		{name: "unknown skill", ref: atk("a"), skill: "nope", want: engine.ErrSkillNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(Options{}, attacker("a"), defender("d"))
			if tc.wide {
				require.NoError(t, h.c.OpenWide("a", []engine.CharacterID{"d"}))
			} else {
				require.NoError(t, h.c.OpenDuel("a", "d"))
			}
			want := tc.want
			if want == nil {
				want = engine.ErrSkillNotEligible
			}
			err := h.c.Calculate(tc.ref, tc.skill)
			assert.ErrorIs(t, err, want)
			assert.Empty(t, h.tr.declares)
			v, _ := h.c.Side(tc.ref)
			assert.NotEmpty(t, v.Error)
		})
	}
}

func TestOpenPreconditions(t *testing.T) {
	h := newHarness(Options{}, attacker("a"), defender("d"))
	assert.ErrorIs(t, h.c.OpenDuel("a", "a"), ErrSelfTarget)
	assert.ErrorIs(t, h.c.OpenDuel("a", "ghost"), engine.ErrUnknownCharacter)
	assert.ErrorIs(t, h.c.OpenWide("a", nil), engine.ErrNoDefenders)
	require.NoError(t, h.c.OpenDuel("a", "d"))
	assert.ErrorIs(t, h.c.OpenDuel("a", "d"), ErrMatchActive)
}

func TestStartFailureLeavesNoMatch(t *testing.T) {
	h := newHarness(Options{}, attacker("a"), defender("d"))
	h.tr.fail = errors.New("socket closed")
	require.Error(t, h.c.OpenDuel("a", "d"))
	assert.False(t, h.c.Active())
}

func TestCannotCancelAfterResolution(t *testing.T) {
	d := defender("d")
	d.HasActed = true
	h := newHarness(Options{}, attacker("a"), d)
	require.NoError(t, h.c.OpenDuel("a", "d"))
	h.calc(t, atk("a"), "Ps-00", "2d6", 2, 12)
	require.NoError(t, h.c.Lock(atk("a")))

	assert.ErrorIs(t, h.c.Cancel(), ErrMatchResolved)
	assert.True(t, h.c.Active(), "torn down only once the server confirms")

	h.c.Sync(&engine.Match{ID: "m1", IsActive: true, Type: engine.MatchDuel, AttackerID: "a", DefenderIDs: []engine.CharacterID{"d"}})
	h.c.Sync(nil)
	assert.False(t, h.c.Active())
	assert.Len(t, h.tr.executes, 1)
}

func TestUnconfirmedMatchSurvivesStaleState(t *testing.T) {
	h := newHarness(Options{}, attacker("a"), defender("d"))
	require.NoError(t, h.c.OpenDuel("a", "d"))
	h.c.Sync(nil)
	assert.True(t, h.c.Active())
}

func TestMatchErrorRefusesUnconfirmedMatch(t *testing.T) {
	h := newHarness(Options{}, attacker("a"), defender("d"))
	require.NoError(t, h.c.OpenDuel("a", "d"))
	h.c.HandleMatchError("invalid target")
	assert.False(t, h.c.Active())
	assert.Equal(t, "invalid target", h.c.Snapshot().Error)
}

func TestRemoteDefenderLockMirroredAndAttackerResolves(t *testing.T) {
	mine := func(id engine.CharacterID) bool { return id == "a" }
	h := newHarness(Options{Controls: mine}, attacker("a"), defender("d"))
	require.NoError(t, h.c.OpenDuel("a", "d"))
	assert.ErrorIs(t, h.c.Calculate(def("d"), "Df-00"), ErrNotController)

	h.calc(t, atk("a"), "Ps-00", "2d6+3", 5, 15)
	require.NoError(t, h.c.Lock(atk("a")))

	server := &engine.Match{
		ID: "m1", Type: engine.MatchDuel, IsActive: true, AttackerID: "a",
		DefenderIDs: []engine.CharacterID{"d"},
		Attacker:    engine.MatchSide{CharacterID: "a", Locked: true, Command: "2d6+3"},
		Defenders:   []engine.MatchSide{{CharacterID: "d", Locked: true, Command: "2d6", MinDamage: 2, MaxDamage: 12}},
	}
	h.c.Sync(server)
	h.c.Sync(server)

	require.Len(t, h.tr.executes, 1)
	assert.Equal(t, []string{"2d6+3", "2d6"}, commands(h.tr.executes[0]))
}

func TestDefenderClientNeverResolves(t *testing.T) {
	mine := func(id engine.CharacterID) bool { return id == "d" }
	h := newHarness(Options{Controls: mine}, attacker("a"), defender("d"))

	h.c.Sync(&engine.Match{ID: "srv-1", Type: engine.MatchDuel, IsActive: true, AttackerID: "a", DefenderIDs: []engine.CharacterID{"d"}})
	require.True(t, h.c.Active())

	h.calc(t, def("d"), "Df-00", "2d6", 2, 12)
	require.NoError(t, h.c.Lock(def("d")))
	assert.Equal(t, "srv-1", h.tr.declares[len(h.tr.declares)-1].MatchID)

	h.c.Sync(&engine.Match{
		ID: "srv-1", Type: engine.MatchDuel, IsActive: true, AttackerID: "a",
		DefenderIDs: []engine.CharacterID{"d"},
		Attacker:    engine.MatchSide{CharacterID: "a", Locked: true, Command: "1d6"},
	})
	assert.Empty(t, h.tr.executes)
	assert.Empty(t, h.c.Snapshot().Waiting)
}
