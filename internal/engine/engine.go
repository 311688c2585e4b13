package engine

import (
	"errors"
	"slices"
)

var ErrUnknownCharacter = errors.New("unknown character")
var ErrUnplaced = errors.New("position is off the map")
var ErrSkillNotFound = errors.New("skill not found")
var ErrSkillNotEligible = errors.New("skill not eligible for this side")
var ErrNoDefenders = errors.New("match needs at least one defender")

type CharacterID string

type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Unplaced is the sentinel position of a character that is not on the map.
var Unplaced = Position{X: -1, Y: -1}

func (p Position) Placed() bool { return p != Unplaced }

type StateValue struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

type SpecialBuff struct {
	Name      string `json:"name"`
	Remaining *int   `json:"remaining,omitempty"`
	Delay     *int   `json:"delay,omitempty"`
}

type Character struct {
	ID                CharacterID   `json:"id"`
	Name              string        `json:"name"`
	Position          Position      `json:"position"`
	HP                int           `json:"hp"`
	MaxHP             int           `json:"maxHp"`
	MP                int           `json:"mp"`
	MaxMP             int           `json:"maxMp"`
	States            []StateValue  `json:"states,omitempty"`
	SpecialBuffs      []SpecialBuff `json:"specialBuffs,omitempty"`
	Owner             string        `json:"owner"`
	HasActed          bool          `json:"hasActed"`
	Commands          string        `json:"commands"`
	IsWideUser        bool          `json:"isWideUser"`
	LastMoveTimestamp int64         `json:"lastMoveTimestamp"`
}

type LogKind string

const (
	LogChat   LogKind = "chat"
	LogDice   LogKind = "dice"
	LogSystem LogKind = "system"
)

type LogEntry struct {
	Kind    LogKind `json:"kind"`
	Author  string  `json:"author,omitempty"`
	Message string  `json:"message"`
}

type MatchType string

const (
	MatchDuel MatchType = "duel"
	MatchWide MatchType = "wide"
)

type WideMode string

const (
	WideIndividual WideMode = "individual"
	WideCombined   WideMode = "combined"
)

// MatchSide is the server's view of one declaring side.
type MatchSide struct {
	CharacterID CharacterID `json:"characterId"`
	Locked      bool        `json:"locked"`
	Command     string      `json:"command,omitempty"`
	MinDamage   int         `json:"minDamage"`
	MaxDamage   int         `json:"maxDamage"`
	Disabled    bool        `json:"disabled,omitempty"`
}

type Match struct {
	ID          string        `json:"id"`
	Type        MatchType     `json:"matchType"`
	Mode        WideMode      `json:"mode,omitempty"`
	AttackerID  CharacterID   `json:"attackerId"`
	DefenderIDs []CharacterID `json:"defenderIds"`
	IsOneSided  bool          `json:"isOneSided"`
	IsActive    bool          `json:"isActive"`
	Attacker    MatchSide     `json:"attacker"`
	Defenders   []MatchSide   `json:"defenders,omitempty"`
}

type BattleState struct {
	Characters      []Character   `json:"characters"`
	Timeline        []CharacterID `json:"timeline"`
	ActiveMatch     *Match        `json:"activeMatch,omitempty"`
	Round           int           `json:"round"`
	TurnCharacterID *CharacterID  `json:"turnCharacterId,omitempty"`
	Logs            []LogEntry    `json:"logs"`
}

// Opt marks a top-level key as present in a partial update. A set Opt with a
// zero value still overwrites.
type Opt[T any] struct {
	Set bool
	Val T
}

func Some[T any](v T) Opt[T] { return Opt[T]{Set: true, Val: v} }

// Patch is a partial BattleState; keys not Set are left untouched.
type Patch struct {
	Characters      Opt[[]Character]
	Timeline        Opt[[]CharacterID]
	ActiveMatch     Opt[*Match]
	Round           Opt[int]
	TurnCharacterID Opt[*CharacterID]
	Logs            Opt[[]LogEntry]
}

func (p Patch) Empty() bool {
	return !p.Characters.Set && !p.Timeline.Set && !p.ActiveMatch.Set &&
		!p.Round.Set && !p.TurnCharacterID.Set && !p.Logs.Set
}

// Apply merges p into s key by key. Round never moves backwards and logs are
// trimmed to the most recent retention entries when retention > 0.
func (s *BattleState) Apply(p Patch, retention int) {
	if p.Characters.Set {
		s.Characters = p.Characters.Val
	}
	if p.Timeline.Set {
		s.Timeline = p.Timeline.Val
	}
	if p.ActiveMatch.Set {
		s.ActiveMatch = p.ActiveMatch.Val
	}
	if p.Round.Set && p.Round.Val >= s.Round {
		s.Round = p.Round.Val
	}
	if p.TurnCharacterID.Set {
		s.TurnCharacterID = p.TurnCharacterID.Val
	}
	if p.Logs.Set {
		s.Logs = p.Logs.Val
	}
	s.Logs = TrimLogs(s.Logs, retention)
}

func TrimLogs(logs []LogEntry, retention int) []LogEntry {
	if retention <= 0 || len(logs) <= retention {
		return logs
	}
	return slices.Clone(logs[len(logs)-retention:])
}

func (s *BattleState) FindCharacter(id CharacterID) (*Character, bool) {
	for i := range s.Characters {
		if s.Characters[i].ID == id {
			return &s.Characters[i], true
		}
	}
	return nil, false
}

// StateValueOf returns the named state value; absent and zero are the same.
func (c Character) StateValueOf(name string) int {
	for _, st := range c.States {
		if st.Name == name {
			return st.Value
		}
	}
	return 0
}

// HasBuff reports whether the buff is present and already active.
func (c Character) HasBuff(name string) bool {
	for _, b := range c.SpecialBuffs {
		if b.Name != name {
			continue
		}
		if b.Delay != nil && *b.Delay > 0 {
			continue
		}
		if b.Remaining != nil && *b.Remaining <= 0 {
			continue
		}
		return true
	}
	return false
}

// BuffReEvasion lets a character that already acted defend again this round.
const BuffReEvasion = "re-evasion"

// IsOneSided reports whether the defender cannot declare a counter skill:
// wide users never defend, and an acted character only defends with re-evasion.
func IsOneSided(defender Character) bool {
	if defender.IsWideUser {
		return true
	}
	return defender.HasActed && !defender.HasBuff(BuffReEvasion)
}
