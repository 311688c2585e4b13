package types

import (
	"encoding/json"
	"fmt"

	"github.com/DoyleJ11/skirmish-client/internal/engine"
)

// Inbound is one decoded server event.
type Inbound interface{ isInbound() }

type StateUpdated struct {
	Patch engine.Patch
}

type CharacterMoved struct {
	CharacterID     engine.CharacterID `json:"charId"`
	X               int                `json:"x"`
	Y               int                `json:"y"`
	ServerTimestamp int64              `json:"timestamp"`
}

type CharacterAdded struct {
	Character engine.Character `json:"character"`
}

type CharacterRemoved struct {
	CharacterID engine.CharacterID `json:"charId"`
}

type SkillDeclarationResult struct {
	CorrelationTag string `json:"prefix"`
	Error          string `json:"error,omitempty"`
	Command        string `json:"command"`
	MinDamage      int    `json:"minDamage"`
	MaxDamage      int    `json:"maxDamage"`
	SkillDetails   string `json:"skillDetails,omitempty"`
}

type MatchError struct {
	Message string `json:"message"`
}

type OpenDeclarationModal struct {
	Match engine.Match `json:"match"`
}

type CloseDeclarationModal struct{}

type MatchModalClosed struct{}

type LogAppended struct {
	Entry engine.LogEntry `json:"entry"`
}

func (StateUpdated) isInbound()           {}
func (CharacterMoved) isInbound()         {}
func (CharacterAdded) isInbound()         {}
func (CharacterRemoved) isInbound()       {}
func (SkillDeclarationResult) isInbound() {}
func (MatchError) isInbound()             {}
func (OpenDeclarationModal) isInbound()   {}
func (CloseDeclarationModal) isInbound()  {}
func (MatchModalClosed) isInbound()       {}
func (LogAppended) isInbound()            {}

// Decode turns one server frame into its tagged event.
func Decode(frame []byte) (Inbound, error) {
	var msg ServerMessage
	if err := json.Unmarshal(frame, &msg); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	switch msg.Event {
	case "stateUpdated":
		p, err := DecodePatch(msg.Data)
		if err != nil {
			return nil, err
		}
		return StateUpdated{Patch: p}, nil
	case "characterMoved":
		return decodeInto[CharacterMoved](msg)
	case "characterAdded":
		return decodeInto[CharacterAdded](msg)
	case "characterRemoved":
		return decodeInto[CharacterRemoved](msg)
	case "skillDeclarationResult":
		return decodeInto[SkillDeclarationResult](msg)
	case "matchError":
		return decodeInto[MatchError](msg)
	case "openDeclarationModal":
		return decodeInto[OpenDeclarationModal](msg)
	case "closeDeclarationModal":
		return CloseDeclarationModal{}, nil
	case "matchModalClosed":
		return MatchModalClosed{}, nil
	case "logAppended":
		return decodeInto[LogAppended](msg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, msg.Event)
	}
}

func decodeInto[T Inbound](msg ServerMessage) (Inbound, error) {
	var v T
	if len(msg.Data) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(msg.Data, &v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", msg.Event, err)
	}
	return v, nil
}

// DecodePatch reads a full or partial state object. Only keys present in the
// object are set; an explicit null clears activeMatch and turnCharacterId.
func DecodePatch(data []byte) (engine.Patch, error) {
	var p engine.Patch
	if len(data) == 0 {
		return p, nil
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return p, fmt.Errorf("decode state: %w", err)
	}

	var err error
	for k, raw := range keys {
		switch k {
		case "characters":
			p.Characters, err = decodeOpt[[]engine.Character](raw)
		case "timeline":
			p.Timeline, err = decodeOpt[[]engine.CharacterID](raw)
		case "activeMatch":
			p.ActiveMatch, err = decodeOpt[*engine.Match](raw)
		case "round":
			p.Round, err = decodeOpt[int](raw)
		case "turnCharacterId":
			p.TurnCharacterID, err = decodeOpt[*engine.CharacterID](raw)
		case "logs":
			p.Logs, err = decodeOpt[[]engine.LogEntry](raw)
		}
		if err != nil {
			return engine.Patch{}, fmt.Errorf("decode state key %s: %w", k, err)
		}
	}
	return p, nil
}

func decodeOpt[T any](raw json.RawMessage) (engine.Opt[T], error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return engine.Opt[T]{}, err
	}
	return engine.Some(v), nil
}
