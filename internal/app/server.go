package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/paperpilot/paperpilot/internal/api/handlers"
	appMiddleware "github.com/paperpilot/paperpilot/internal/api/middlewares"
	"github.com/paperpilot/paperpilot/internal/config"
	"github.com/paperpilot/paperpilot/internal/core"
	"github.com/paperpilot/paperpilot/internal/core/ingestion"
	"github.com/paperpilot/paperpilot/internal/email"
	"github.com/paperpilot/paperpilot/internal/storage"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

// NewServer builds and wires all routes.
func NewServer(
	cfg *config.Config,
	db core.DbClient,
	store storage.Store,
	ing ingestion.Ingestor,
	queryEmbedder core.Embedder,
	provider core.LLMProvider,
	mailer email.Mailer,
	logger *zap.Logger,
) *Server {
	authHandler := handlers.NewAuthHandler(db, mailer, cfg, logger.Named("auth"))
	docHandler := handlers.NewDocumentHandler(db, store, ing, cfg, logger.Named("documents"))
	chatHandler := handlers.NewChatHandler(db, queryEmbedder, provider, logger.Named("chat"))

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(api chi.Router) {
		// public endpoints
		api.Post("/signup", authHandler.Signup)
		api.Post("/verify-email", authHandler.VerifyEmail)
		api.Post("/login", authHandler.Login)
		api.Post("/forgot-password", authHandler.ForgotPassword)
		api.Post("/reset-password", authHandler.ResetPassword)

		// protected endpoints
		api.Group(func(protected chi.Router) {
			protected.Use(appMiddleware.JWT(cfg.JWTSecret))
			protected.Post("/documents", docHandler.UploadDocument)
			protected.Get("/documents", docHandler.GetDocuments)
			protected.Get("/documents/{id}/status", docHandler.GetDocumentStatus)
			protected.Post("/documents/{id}/retry", docHandler.RetryDocument)
			protected.Delete("/documents/{id}", docHandler.DeleteDocument)
			protected.Post("/chat/query", chatHandler.QueryDocument)
		})
	})

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	return &Server{httpServer: httpSrv, logger: logger}
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
