package engine

func NewEmptyState() BattleState {
	return BattleState{
		Characters: []Character{},
		Timeline:   []CharacterID{},
		Logs:       []LogEntry{},
	}
}

// Clone copies the top-level keys so a reader never shares slices with the
// live state.
func (s *BattleState) Clone() BattleState {
	out := BattleState{
		Characters: append([]Character(nil), s.Characters...),
		Timeline:   append([]CharacterID(nil), s.Timeline...),
		Round:      s.Round,
		Logs:       append([]LogEntry(nil), s.Logs...),
	}
	if s.ActiveMatch != nil {
		m := *s.ActiveMatch
		m.DefenderIDs = append([]CharacterID(nil), m.DefenderIDs...)
		m.Defenders = append([]MatchSide(nil), m.Defenders...)
		out.ActiveMatch = &m
	}
	if s.TurnCharacterID != nil {
		id := *s.TurnCharacterID
		out.TurnCharacterID = &id
	}
	return out
}

func ContainsCharacter(chars []Character, id CharacterID) bool {
	for _, c := range chars {
		if c.ID == id {
			return true
		}
	}
	return false
}
