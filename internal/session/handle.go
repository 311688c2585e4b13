package session

import (
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/DoyleJ11/skirmish-client/internal/bus"
	"github.com/DoyleJ11/skirmish-client/internal/engine"
	"github.com/DoyleJ11/skirmish-client/internal/types"
)

var ErrNotYourCharacter = errors.New("character is controlled by another user")

// handle processes one message. It returns false when the loop should stop.
func (s *Session) handle(m Msg) bool {
	switch msg := m.(type) {
	case FromServer:
		s.apply(msg.Event)

	case BeginDrag:
		if s.controls(msg.CharacterID) {
			s.positions.BeginLocalMove(msg.CharacterID)
			s.dirty = true
		}

	case CancelDrag:
		s.positions.CancelLocalMove(msg.CharacterID)
		s.dirty = true

	case CommitMove:
		reply(msg.Reply, s.commitMove(msg))

	case OpenDuel:
		reply(msg.Reply, s.matches.OpenDuel(msg.AttackerID, msg.DefenderID))

	case OpenWide:
		reply(msg.Reply, s.matches.OpenWide(msg.AttackerID, msg.DefenderIDs))

	case Calculate:
		reply(msg.Reply, s.matches.Calculate(msg.Ref, msg.SkillID))

	case Lock:
		reply(msg.Reply, s.matches.Lock(msg.Ref))

	case CancelMatch:
		reply(msg.Reply, s.matches.Cancel())

	case NextTurn:
		reply(msg.Reply, s.transport.NextTurn())

	case Join:
		// Register subscriber + send current view immediately
		s.clients[msg.ClientID] = msg.Outbox
		msg.Outbox <- s.view()

	case Leave:
		if ch, ok := s.clients[msg.ClientID]; ok {
			close(ch)
			delete(s.clients, msg.ClientID)
		}

	case GetView:
		msg.Reply <- s.view()

	case ConnectionLost:
		s.log.Error("connection lost", zap.Error(msg.Err))
		s.fail(msg.Err)
		s.bus.Emit(bus.TopicSessionError, msg.Err)
		return false

	case Shutdown:
		return false
	}
	return true
}

func (s *Session) commitMove(msg CommitMove) error {
	if !s.controls(msg.CharacterID) {
		s.positions.CancelLocalMove(msg.CharacterID)
		return ErrNotYourCharacter
	}
	if _, ok := s.store.GetState().FindCharacter(msg.CharacterID); !ok {
		s.positions.CancelLocalMove(msg.CharacterID)
		return fmt.Errorf("%w: %s", engine.ErrUnknownCharacter, msg.CharacterID)
	}
	if msg.X < 0 || msg.Y < 0 {
		s.positions.CancelLocalMove(msg.CharacterID)
		return fmt.Errorf("%w: (%d, %d)", engine.ErrUnplaced, msg.X, msg.Y)
	}

	ov := s.positions.CommitLocalMove(msg.CharacterID, msg.X, msg.Y)
	s.dirty = true
	s.bus.Emit(bus.TopicPositionChanged, msg.CharacterID)

	err := s.transport.MoveToken(types.MoveToken{
		CharacterID: msg.CharacterID,
		X:           msg.X,
		Y:           msg.Y,
		Timestamp:   ov.Timestamp,
	})
	if err != nil {
		// The override stays until a newer broadcast for this token arrives.
		s.log.Warn("move intent not sent", zap.String("char", string(msg.CharacterID)), zap.Error(err))
		return fmt.Errorf("move token: %w", err)
	}
	return nil
}

// apply translates one server event into store, bus and coordinator updates.
func (s *Session) apply(ev types.Inbound) {
	switch e := ev.(type) {
	case types.StateUpdated:
		s.store.SetState(e.Patch)

	case types.CharacterMoved:
		s.moveCharacter(e)

	case types.CharacterAdded:
		chars := slices.Clone(s.store.GetState().Characters)
		if i := indexOf(chars, e.Character.ID); i >= 0 {
			chars[i] = e.Character
		} else {
			chars = append(chars, e.Character)
		}
		s.store.SetState(engine.Patch{Characters: engine.Some(chars)})

	case types.CharacterRemoved:
		if !engine.ContainsCharacter(s.store.GetState().Characters, e.CharacterID) {
			return
		}
		chars := slices.DeleteFunc(slices.Clone(s.store.GetState().Characters), func(c engine.Character) bool {
			return c.ID == e.CharacterID
		})
		s.store.SetState(engine.Patch{Characters: engine.Some(chars)})

	case types.SkillDeclarationResult:
		s.matches.HandleResult(e.CorrelationTag, e)

	case types.MatchError:
		s.log.Warn("match error", zap.String("message", e.Message))
		s.matches.HandleMatchError(e.Message)

	case types.OpenDeclarationModal:
		m := e.Match
		m.IsActive = true
		s.matches.Sync(&m)
		s.bus.Emit(bus.TopicDeclarationOpen, m.ID)

	case types.CloseDeclarationModal:
		s.matches.Close()
		s.bus.Emit(bus.TopicDeclarationClose, nil)

	case types.MatchModalClosed:
		s.matches.Close()
		s.bus.Emit(bus.TopicMatchModalClosed, nil)

	case types.LogAppended:
		s.store.AppendLog(e.Entry)
		s.bus.Emit(bus.TopicLogAppended, e.Entry)

	default:
		s.log.Debug("ignored server event", zap.String("type", fmt.Sprintf("%T", ev)))
	}
}

// moveCharacter writes a server move into the mirror unless a newer move
// for the same character is already there.
func (s *Session) moveCharacter(e types.CharacterMoved) {
	chars := s.store.GetState().Characters
	i := indexOf(chars, e.CharacterID)
	if i < 0 {
		return
	}
	if e.ServerTimestamp < chars[i].LastMoveTimestamp {
		return
	}
	chars = slices.Clone(chars)
	chars[i].Position = engine.Position{X: e.X, Y: e.Y}
	chars[i].LastMoveTimestamp = e.ServerTimestamp
	s.store.SetState(engine.Patch{Characters: engine.Some(chars)})
}

func indexOf(chars []engine.Character, id engine.CharacterID) int {
	return slices.IndexFunc(chars, func(c engine.Character) bool { return c.ID == id })
}
