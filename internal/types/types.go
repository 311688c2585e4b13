package types

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/DoyleJ11/skirmish-client/internal/engine"
)

var ErrUnknownEvent = errors.New("unknown server event")

// ClientMessage is the envelope for every intent sent to the game server.
type ClientMessage struct {
	Type string          `json:"type"`
	Room string          `json:"room"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ServerMessage is the envelope for every event pushed by the game server.
type ServerMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Intent is an outbound request. IntentType names it on the wire.
type Intent interface {
	IntentType() string
}

type MoveToken struct {
	CharacterID engine.CharacterID `json:"charId"`
	X           int                `json:"x"`
	Y           int                `json:"y"`
	Timestamp   int64              `json:"timestamp"`
}

type DeclareSkill struct {
	MatchID        string             `json:"matchId"`
	ActorID        engine.CharacterID `json:"actorId"`
	TargetID       engine.CharacterID `json:"targetId,omitempty"`
	SkillID        string             `json:"skillId"`
	Commit         bool               `json:"commit"`
	Command        string             `json:"command,omitempty"`
	CorrelationTag string             `json:"prefix"`
}

type StartMatch struct {
	MatchID     string               `json:"matchId"`
	MatchType   engine.MatchType     `json:"matchType"`
	AttackerID  engine.CharacterID   `json:"attackerId"`
	DefenderIDs []engine.CharacterID `json:"defenderIds"`
	IsOneSided  bool                 `json:"isOneSided"`
	Disabled    []engine.CharacterID `json:"disabled,omitempty"`
}

// SideCommand is one side's final raw command in an execute request.
type SideCommand struct {
	Role        string             `json:"role"`
	CharacterID engine.CharacterID `json:"characterId"`
	Command     string             `json:"command"`
}

type ExecuteMatch struct {
	MatchID   string           `json:"matchId"`
	MatchType engine.MatchType `json:"matchType"`
	Mode      engine.WideMode  `json:"mode,omitempty"`
	Commands  []SideCommand    `json:"commands"`
}

type CancelMatch struct {
	MatchID string `json:"matchId"`
}

type NextTurn struct{}

func (MoveToken) IntentType() string    { return "moveToken" }
func (DeclareSkill) IntentType() string { return "declareSkill" }
func (StartMatch) IntentType() string   { return "startMatch" }
func (ExecuteMatch) IntentType() string { return "executeMatch" }
func (CancelMatch) IntentType() string  { return "cancelMatch" }
func (NextTurn) IntentType() string     { return "nextTurn" }

// Encode wraps an intent with its room context.
func Encode(room string, in Intent) ([]byte, error) {
	data, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", in.IntentType(), err)
	}
	return json.Marshal(ClientMessage{Type: in.IntentType(), Room: room, Data: data})
}
