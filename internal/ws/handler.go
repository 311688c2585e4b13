// Package ws streams session views to the render layer and accepts its
// commands over a websocket.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/skirmish-client/internal/hub"
	"github.com/DoyleJ11/skirmish-client/internal/logging"
	"github.com/DoyleJ11/skirmish-client/internal/match"
	"github.com/DoyleJ11/skirmish-client/internal/session"
	"github.com/DoyleJ11/skirmish-client/internal/types"
)

const (
	writeTimeout = 3 * time.Second
	callTimeout  = 5 * time.Second
)

var (
	ErrUnknownCommand = errors.New("unknown type")
	ErrBadCommand     = errors.New("bad command")
)

// ViewMessage is every frame written to the render layer.
type ViewMessage struct {
	Type  string        `json:"type"` // "View" or "Error"
	View  *session.View `json:"view,omitempty"`
	Error string        `json:"error,omitempty"`
}

func Handler(h *hub.Hub, logger *zap.Logger) http.HandlerFunc {
	log := logging.OrNop(logger).Named("ws")
	return func(w http.ResponseWriter, r *http.Request) {
		room := r.URL.Query().Get("room")
		if room == "" {
			http.Error(w, "missing room", http.StatusBadRequest)
			return
		}
		s, ok := h.Lookup(r.Context(), room)
		if !ok {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			// In dev ONLY, you can loosen origin checks:
			// OriginPatterns: []string{"http://localhost:*", "http://127.0.0.1:*"},
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		out := make(chan session.View, 8)
		clientID := uuid.NewString()
		clog := log.With(zap.String("room", room), zap.String("client", clientID))

		if err := s.Send(r.Context(), session.Join{ClientID: clientID, Outbox: out}); err != nil {
			conn.Close(websocket.StatusGoingAway, "session closed")
			return
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = s.Send(ctx, session.Leave{ClientID: clientID})
		}()
		clog.Debug("view client joined")

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for v := range out {
				write(writeCtx, conn, ViewMessage{Type: "View", View: &v})
			}
			// Outbox closed: we were dropped or the session ended.
			conn.Close(websocket.StatusGoingAway, "view stream ended")
		}()

		// Reader loop
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					clog.Debug("view client read ended", zap.Error(err))
				}
				return
			}

			var cmd types.UICommand
			if err := json.Unmarshal(data, &cmd); err != nil {
				write(r.Context(), conn, ViewMessage{Type: "Error", Error: "bad json"})
				continue
			}

			if err := Dispatch(r.Context(), s, cmd); err != nil {
				write(r.Context(), conn, ViewMessage{Type: "Error", Error: err.Error()})
			}
		}
	}
}

func write(ctx context.Context, conn *websocket.Conn, msg ViewMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_ = conn.Write(ctx, websocket.MessageText, payload)
}

// Dispatch forwards cmd to the session, waiting for the outcome of commands
// that have one.
func Dispatch(ctx context.Context, s *session.Session, cmd types.UICommand) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	if msg, ok := toFireAndForget(cmd); ok {
		return s.Send(ctx, msg)
	}
	build, err := toCall(cmd)
	if err != nil {
		return err
	}
	return s.Call(ctx, build)
}

func toFireAndForget(cmd types.UICommand) (session.Msg, bool) {
	switch cmd.Type {
	case "beginDrag":
		return session.BeginDrag{CharacterID: cmd.CharacterID}, true
	case "cancelDrag":
		return session.CancelDrag{CharacterID: cmd.CharacterID}, true
	default:
		return nil, false
	}
}

func toCall(cmd types.UICommand) (func(chan error) session.Msg, error) {
	switch cmd.Type {
	case "commitMove":
		return func(r chan error) session.Msg {
			return session.CommitMove{CharacterID: cmd.CharacterID, X: cmd.X, Y: cmd.Y, Reply: r}
		}, nil
	case "openDuel":
		if len(cmd.DefenderIDs) != 1 {
			return nil, ErrBadCommand
		}
		return func(r chan error) session.Msg {
			return session.OpenDuel{AttackerID: cmd.AttackerID, DefenderID: cmd.DefenderIDs[0], Reply: r}
		}, nil
	case "openWide":
		return func(r chan error) session.Msg {
			return session.OpenWide{AttackerID: cmd.AttackerID, DefenderIDs: cmd.DefenderIDs, Reply: r}
		}, nil
	case "calculate", "lock":
		ref, err := sideRef(cmd)
		if err != nil {
			return nil, err
		}
		if cmd.Type == "lock" {
			return func(r chan error) session.Msg { return session.Lock{Ref: ref, Reply: r} }, nil
		}
		return func(r chan error) session.Msg {
			return session.Calculate{Ref: ref, SkillID: cmd.SkillID, Reply: r}
		}, nil
	case "cancelMatch":
		return func(r chan error) session.Msg { return session.CancelMatch{Reply: r} }, nil
	case "nextTurn":
		return func(r chan error) session.Msg { return session.NextTurn{Reply: r} }, nil
	default:
		return nil, ErrUnknownCommand
	}
}

func sideRef(cmd types.UICommand) (match.SideRef, error) {
	switch match.Role(cmd.Role) {
	case match.RoleAttacker, match.RoleDefender:
		return match.SideRef{Role: match.Role(cmd.Role), CharacterID: cmd.CharacterID}, nil
	default:
		return match.SideRef{}, ErrBadCommand
	}
}
