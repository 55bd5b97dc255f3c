package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jason-s-yu/examarena/internal/metrics"
	"github.com/jason-s-yu/examarena/internal/middleware"
)

// NewRouter mounts the REST endpoints, /metrics and the /ws socket.
func NewRouter(s *Server, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.LogMiddleware(s.Logger))
	r.Use(chimw.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(chimw.Heartbeat("/ping"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Handle("/metrics", metrics.Handler())

	r.Route("/user", func(r chi.Router) {
		r.Post("/create", s.CreateUserHandler)
		r.Post("/login", s.LoginHandler)
		r.Post("/logout", s.LogoutHandler)
		r.Get("/me", s.MeHandler)
		r.Get("/{id}/stats", s.UserStatsHandler)
	})
	r.Get("/leaderboard", s.LeaderboardHandler)
	r.Get("/match/{id}", s.MatchHandler)
	r.Get("/training/options", s.TrainingOptionsHandler)

	r.Get("/ws", s.WSHandler())
	return r
}
