package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/DoyleJ11/skirmish-client/internal/engine"
	"github.com/DoyleJ11/skirmish-client/internal/hub"
	"github.com/DoyleJ11/skirmish-client/internal/match"
	"github.com/DoyleJ11/skirmish-client/internal/session"
	"github.com/DoyleJ11/skirmish-client/internal/types"
	"github.com/DoyleJ11/skirmish-client/internal/ws"
)

const requestTimeout = 5 * time.Second

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func ListRooms(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reply := make(chan []string, 1)
		select {
		case h.Inbox() <- hub.ListRooms{Reply: reply}:
		case <-r.Context().Done():
			return
		}
		var rooms []string
		select {
		case rooms = <-reply:
		case <-r.Context().Done():
			return
		}
		sort.Strings(rooms)
		writeJSON(w, http.StatusOK, struct {
			Rooms []string `json:"rooms"`
		}{Rooms: rooms})
	}
}

func GetView(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := lookup(w, r, h)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()
		v, err := s.View(ctx)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

// LeaveRoom closes the room's session.
func LeaveRoom(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		room := chi.URLParam(r, "room")
		if _, ok := h.Lookup(r.Context(), room); !ok {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		reply := make(chan error, 1)
		h.Inbox() <- hub.RemoveSession{Room: room, Reply: reply}
		if err := <-reply; err != nil && !errors.Is(err, session.ErrClosed) {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type matchRequest struct {
	types.UICommand
	MatchType engine.MatchType `json:"matchType"`
}

func OpenMatch(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req matchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		cmd := req.UICommand
		switch req.MatchType {
		case engine.MatchDuel, "":
			cmd.Type = "openDuel"
		case engine.MatchWide:
			cmd.Type = "openWide"
		default:
			http.Error(w, "unknown match type", http.StatusBadRequest)
			return
		}
		dispatch(w, r, h, cmd)
	}
}

// Command decodes the request body as a UI command of the given type and
// forwards it to the room's session.
func Command(h *hub.Hub, typ string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var cmd types.UICommand
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
				http.Error(w, "bad json", http.StatusBadRequest)
				return
			}
		}
		cmd.Type = typ
		dispatch(w, r, h, cmd)
	}
}

func dispatch(w http.ResponseWriter, r *http.Request, h *hub.Hub, cmd types.UICommand) {
	s, ok := lookup(w, r, h)
	if !ok {
		return
	}
	if err := ws.Dispatch(r.Context(), s, cmd); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func lookup(w http.ResponseWriter, r *http.Request, h *hub.Hub) (*session.Session, bool) {
	s, ok := h.Lookup(r.Context(), chi.URLParam(r, "room"))
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
	}
	return s, ok
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), struct {
		Error string `json:"error"`
	}{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNotYourCharacter),
		errors.Is(err, match.ErrNotController):
		return http.StatusForbidden
	case errors.Is(err, engine.ErrUnknownCharacter):
		return http.StatusNotFound
	case errors.Is(err, match.ErrMatchActive),
		errors.Is(err, match.ErrNoActiveMatch),
		errors.Is(err, match.ErrMatchResolved),
		errors.Is(err, match.ErrSideDisabled),
		errors.Is(err, match.ErrSideLocked),
		errors.Is(err, match.ErrAwaitingResult),
		errors.Is(err, match.ErrNotCalculated):
		return http.StatusConflict
	case errors.Is(err, ws.ErrBadCommand),
		errors.Is(err, ws.ErrUnknownCommand),
		errors.Is(err, match.ErrUnknownSide),
		errors.Is(err, match.ErrSelfTarget),
		errors.Is(err, engine.ErrNoDefenders),
		errors.Is(err, engine.ErrUnplaced),
		errors.Is(err, engine.ErrSkillNotFound),
		errors.Is(err, engine.ErrSkillNotEligible):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrClosed):
		return http.StatusGone
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
