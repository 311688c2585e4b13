package types

import "github.com/DoyleJ11/skirmish-client/internal/engine"

// UICommand is what the render layer sends over the local view socket.
type UICommand struct {
	Type        string               `json:"type"`
	CharacterID engine.CharacterID   `json:"charId,omitempty"`
	X           int                  `json:"x,omitempty"`
	Y           int                  `json:"y,omitempty"`
	AttackerID  engine.CharacterID   `json:"attackerId,omitempty"`
	DefenderIDs []engine.CharacterID `json:"defenderIds,omitempty"`
	Role        string               `json:"role,omitempty"`
	SkillID     string               `json:"skillId,omitempty"`
}
