package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/DoyleJ11/scouting-backend/internal/ws"
)

func SetupRoutes(d Deps) http.Handler {
	s := NewServer(d)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(s.log))
	r.Use(middleware.Recoverer)
	r.Use(cors(d.AllowedOrigins))
	r.Use(csrf(d.CSRF))

	r.Get("/healthz", s.Healthz)

	r.Get("/strategy/picklist/submit/", s.GetPicklist)
	r.Post("/strategy/picklist/submit/", s.SubmitPicklist)
	r.Post("/strategy/dashboard/", s.Dashboard)
	r.Get("/strategy/rankings/", s.Rankings)

	r.Post("/scanner/", s.Scanner)
	r.Get("/api/get_path_data/{team}/", s.PathData)

	r.Get("/teams/", s.ListTeams)
	r.Get("/teams/events/", s.Events)
	r.Get("/teams/{team}/pit/", s.PitReport)
	r.Post("/teams/{team}/pit/", s.SubmitPitReport)
	r.Get("/teams/{team}/human_player/", s.HumanPlayerNotes)
	r.Post("/teams/{team}/human_player/", s.SubmitHumanPlayerNote)

	r.Get("/ws/picklist/{comp}/", ws.Handler(s.hub, s.load, s.store, s.log))
	return r
}
