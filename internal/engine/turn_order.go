package engine

import "slices"

// CurrentTurn returns the character whose turn is active, if any.
func CurrentTurn(s *BattleState) (*Character, bool) {
	if s.TurnCharacterID == nil {
		return nil, false
	}
	return s.FindCharacter(*s.TurnCharacterID)
}

// TimelinePosition returns the index of id in the turn order, or -1.
func TimelinePosition(s *BattleState, id CharacterID) int {
	return slices.Index(s.Timeline, id)
}

// UpNext previews the character after the active one in the timeline, wrapping
// to the start. The server decides the real next turn.
func UpNext(s *BattleState) (CharacterID, bool) {
	if len(s.Timeline) == 0 {
		return "", false
	}
	if s.TurnCharacterID == nil {
		return s.Timeline[0], true
	}
	i := TimelinePosition(s, *s.TurnCharacterID)
	return s.Timeline[(i+1)%len(s.Timeline)], true
}
