package router

import (
	"net/http"

	"github.com/antriq/api/internal/config"
	"github.com/antriq/api/internal/database"
	"github.com/antriq/api/internal/events"
	"github.com/antriq/api/internal/handler"
	mw "github.com/antriq/api/internal/middleware"
	"github.com/antriq/api/internal/sales"
	"github.com/antriq/api/internal/service"
	"github.com/antriq/api/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
)

// New builds the HTTP router with all routes and middleware wired.
func New(cfg *config.Config, pool *pgxpool.Pool, hub *ws.Hub, fanout *events.Fanout) http.Handler {
	queries := database.New(pool)

	tokenSvc := service.NewTokenService(pool, queries, func(db database.DBTX) service.TokenStore {
		return database.New(db)
	})
	settleSvc := service.NewSettlementService(pool, queries, func(db database.DBTX) service.SettlementStore {
		return database.New(db)
	}, sales.NewCreator())

	authHandler := handler.NewAuthHandler(queries, cfg.JWTSecret)
	tokenHandler := handler.NewTokenHandler(tokenSvc, fanout)
	settlementHandler := handler.NewSettlementHandler(settleSvc, fanout)

	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Public routes
	authHandler.RegisterRoutes(r)

	// WebSocket board subscriptions authenticate via query param, not header
	r.Get("/ws/shops/{sid}/board", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, cfg.JWTSecret, w, r)
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		r.Route("/shops/{sid}/tokens", func(r chi.Router) {
			r.Use(mw.RequireShop)
			tokenHandler.RegisterRoutes(r)
			settlementHandler.RegisterRoutes(r)
		})
	})

	return r
}
