package router

import (
	"net/http"

	"github.com/comanda-pos/api/internal/config"
	"github.com/comanda-pos/api/internal/database"
	"github.com/comanda-pos/api/internal/handler"
	mw "github.com/comanda-pos/api/internal/middleware"
	"github.com/comanda-pos/api/internal/service"
	"github.com/comanda-pos/api/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
)

// New creates a Chi router with all application routes wired up.
func New(cfg *config.Config, queries *database.Queries, pool *pgxpool.Pool, hub *ws.Hub) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{
			"http://localhost:5173", // floor app dev server
		},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","version":"1.0.0"}`))
	})

	// Auth routes (public)
	authHandler := handler.NewAuthHandler(queries, cfg.JWTSecret)
	authHandler.RegisterRoutes(r)

	// WebSocket routes (handle auth internally via query param)
	r.Get("/ws/tables/{table}", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeTableWS(hub, cfg.JWTSecret, w, r)
	})
	r.Get("/ws/floor", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeFloorWS(hub, cfg.JWTSecret, w, r)
	})

	// One lifecycle service behind every mutation; each call runs in its own
	// transaction
	lifecycle := service.NewLifecycleService(pool, func(db database.DBTX) service.Store {
		return database.New(db)
	})

	// Protected routes (require authentication)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		catalogHandler := handler.NewCatalogHandler(queries)
		catalogHandler.RegisterRoutes(r)

		orderHandler := handler.NewOrderHandler(lifecycle, hub)
		orderHandler.RegisterRoutes(r)

		preBillHandler := handler.NewPreBillHandler(lifecycle, hub)
		preBillHandler.RegisterRoutes(r)

		ticketHandler := handler.NewTicketHandler(queries, lifecycle, hub)
		ticketHandler.RegisterRoutes(r)

		stockHandler := handler.NewStockHandler(queries, lifecycle)
		stockHandler.RegisterRoutes(r)

		venueHandler := handler.NewVenueHandler(queries, lifecycle)
		venueHandler.RegisterRoutes(r)
	})

	return r
}
