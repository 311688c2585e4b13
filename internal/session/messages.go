package session

import (
	"github.com/DoyleJ11/skirmish-client/internal/engine"
	"github.com/DoyleJ11/skirmish-client/internal/match"
	"github.com/DoyleJ11/skirmish-client/internal/types"
)

type Msg interface{ isSessionMsg() }

// FromServer carries one inbound transport event.
type FromServer struct {
	Event types.Inbound
}

type BeginDrag struct {
	CharacterID engine.CharacterID
}

type CancelDrag struct {
	CharacterID engine.CharacterID
}

type CommitMove struct {
	CharacterID engine.CharacterID
	X, Y        int
	Reply       chan error
}

type OpenDuel struct {
	AttackerID engine.CharacterID
	DefenderID engine.CharacterID
	Reply      chan error
}

type OpenWide struct {
	AttackerID  engine.CharacterID
	DefenderIDs []engine.CharacterID
	Reply       chan error
}

type Calculate struct {
	Ref     match.SideRef
	SkillID string
	Reply   chan error
}

type Lock struct {
	Ref   match.SideRef
	Reply chan error
}

type CancelMatch struct {
	Reply chan error
}

type NextTurn struct {
	Reply chan error
}

type Join struct {
	ClientID string
	Outbox   chan View // where this subscriber wants to receive views
}

type Leave struct{ ClientID string }

type GetView struct {
	Reply chan View
}

// ConnectionLost ends the session; a lost connection is fatal.
type ConnectionLost struct{ Err error }

type Shutdown struct{}

func (FromServer) isSessionMsg()     {}
func (BeginDrag) isSessionMsg()      {}
func (CancelDrag) isSessionMsg()     {}
func (CommitMove) isSessionMsg()     {}
func (OpenDuel) isSessionMsg()       {}
func (OpenWide) isSessionMsg()       {}
func (Calculate) isSessionMsg()      {}
func (Lock) isSessionMsg()           {}
func (CancelMatch) isSessionMsg()    {}
func (NextTurn) isSessionMsg()       {}
func (Join) isSessionMsg()           {}
func (Leave) isSessionMsg()          {}
func (GetView) isSessionMsg()        {}
func (ConnectionLost) isSessionMsg() {}
func (Shutdown) isSessionMsg()       {}

func reply(ch chan error, err error) {
	if ch == nil {
		return
	}
	select {
	case ch <- err:
	default:
	}
}
