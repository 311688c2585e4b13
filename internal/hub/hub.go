package hub

import (
	"context"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/DoyleJ11/skirmish-client/internal/logging"
	"github.com/DoyleJ11/skirmish-client/internal/session"
)

type HubMsg interface{ isHubMsg() }

// CreateSession starts a session for Room over Transport. If the room already
// has one, that session is returned and Transport is closed.
type CreateSession struct {
	Room      string
	Transport session.Transport
	Config    session.Config
	Reply     chan *session.Session
}

type GetSession struct {
	Room  string
	Reply chan *session.Session
}

// RemoveSession leaves a room: the session is closed and forgotten.
type RemoveSession struct {
	Room  string
	Reply chan error
}

type ListRooms struct {
	Reply chan []string
}

type ShutdownHub struct {
	Reply chan error
}

// ended is posted by a watcher when a session stops on its own.
type ended struct {
	Room    string
	Session *session.Session
}

type Hub struct {
	inbox    chan HubMsg
	sessions map[string]*session.Session
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

func (CreateSession) isHubMsg() {}
func (GetSession) isHubMsg()    {}
func (RemoveSession) isHubMsg() {}
func (ListRooms) isHubMsg()     {}
func (ShutdownHub) isHubMsg()   {}
func (ended) isHubMsg()         {}

func NewHub(parent context.Context, logger *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:    make(chan HubMsg, 64),
		sessions: make(map[string]*session.Session),
		log:      logging.OrNop(logger).Named("hub"),
		ctx:      ctx,
		cancel:   cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			_ = h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateSession:
				if s := h.sessions[msg.Room]; s != nil {
					if msg.Transport != nil {
						_ = msg.Transport.Close()
					}
					msg.Reply <- s
					break
				}
				cfg := msg.Config
				cfg.Room = msg.Room
				if cfg.Logger == nil {
					cfg.Logger = h.log
				}
				s := session.New(h.ctx, msg.Transport, cfg)
				h.sessions[msg.Room] = s
				go h.watch(msg.Room, s)
				h.log.Info("session created", zap.String("room", msg.Room))
				msg.Reply <- s

			case GetSession:
				msg.Reply <- h.sessions[msg.Room] // May be nil

			case ListRooms:
				rooms := make([]string, 0, len(h.sessions))
				for room := range h.sessions {
					rooms = append(rooms, room)
				}
				msg.Reply <- rooms

			case RemoveSession:
				var err error
				if s := h.sessions[msg.Room]; s != nil {
					delete(h.sessions, msg.Room)
					err = s.Close()
					h.log.Info("session removed", zap.String("room", msg.Room), zap.Error(err))
				}
				if msg.Reply != nil {
					msg.Reply <- err
				}

			case ended:
				// Only forget the session if it has not been replaced already.
				if h.sessions[msg.Room] == msg.Session {
					delete(h.sessions, msg.Room)
					h.log.Warn("session ended", zap.String("room", msg.Room), zap.Error(msg.Session.Err()))
				}

			case ShutdownHub:
				err := h.shutdown()
				h.cancel()
				if msg.Reply != nil {
					msg.Reply <- err
				}
				return
			}
		}
	}
}

func (h *Hub) watch(room string, s *session.Session) {
	select {
	case <-s.Done():
	case <-h.ctx.Done():
		return
	}
	select {
	case h.inbox <- ended{Room: room, Session: s}:
	case <-h.ctx.Done():
	}
}

func (h *Hub) shutdown() error {
	var err error
	for room, s := range h.sessions {
		err = multierr.Append(err, s.Close())
		delete(h.sessions, room)
	}
	return err
}

// Lookup is a blocking GetSession for callers outside the hub goroutine.
func (h *Hub) Lookup(ctx context.Context, room string) (*session.Session, bool) {
	reply := make(chan *session.Session, 1)
	select {
	case h.inbox <- GetSession{Room: room, Reply: reply}:
	case <-ctx.Done():
		return nil, false
	case <-h.ctx.Done():
		return nil, false
	}
	select {
	case s := <-reply:
		return s, s != nil
	case <-ctx.Done():
		return nil, false
	case <-h.ctx.Done():
		return nil, false
	}
}
