// Package types holds the wire shapes exchanged with the game server and the
// render layer.
//
// Client -> Server ({"type", "room", "data"}):
//
//	moveToken:    charId, x, y, timestamp
//	declareSkill: matchId, actorId, targetId?, skillId, commit, command?, prefix
//	startMatch:   matchId, matchType ("duel" | "wide"), attackerId, defenderIds,
//	              isOneSided, disabled?
//	executeMatch: matchId, matchType, mode? ("individual" | "combined"),
//	              commands: [{role, characterId, command}]
//	cancelMatch:  matchId
//	nextTurn:     {}
//
// Server -> Client ({"event", "data"}):
//
//	stateUpdated:           partial state; absent keys are untouched, null
//	                        clears activeMatch / turnCharacterId
//	characterMoved:         charId, x, y, timestamp
//	characterAdded:         character
//	characterRemoved:       charId
//	skillDeclarationResult: prefix, error?, command, minDamage, maxDamage,
//	                        skillDetails?
//	matchError:             message
//	openDeclarationModal:   match
//	closeDeclarationModal:  {}
//	matchModalClosed:       {}
//	logAppended:            entry
//
// Render layer -> Client (UICommand):
//
//	beginDrag, cancelDrag, commitMove, openDuel, openWide, calculate, lock,
//	cancelMatch, nextTurn
package types
