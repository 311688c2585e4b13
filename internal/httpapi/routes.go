package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/skirmish-client/internal/hub"
	"github.com/DoyleJ11/skirmish-client/internal/ws"
)

func SetupRoutes(h *hub.Hub, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(h, logger))

	r.Get("/rooms", ListRooms(h))
	r.Route("/rooms/{room}", func(r chi.Router) {
		r.Delete("/", LeaveRoom(h))
		r.Get("/view", GetView(h))
		r.Post("/moves", Command(h, "commitMove"))
		r.Post("/turn/next", Command(h, "nextTurn"))

		r.Post("/matches", OpenMatch(h))
		r.Delete("/matches", Command(h, "cancelMatch"))
		r.Post("/matches/declarations", Command(h, "calculate"))
		r.Post("/matches/lock", Command(h, "lock"))
	})
	return r
}
