package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/markdave123-py/Parley/internal/api/handlers"
	appMiddleware "github.com/markdave123-py/Parley/internal/api/middlewares"
	"github.com/markdave123-py/Parley/internal/config"
	"github.com/markdave123-py/Parley/internal/core"
	"github.com/markdave123-py/Parley/internal/core/chatstream"
	"github.com/markdave123-py/Parley/internal/metrics"
	"github.com/markdave123-py/Parley/internal/services"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
	log        *zap.Logger
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, db core.DbClient, gen core.Generator, exporter *metrics.Exporter, log *zap.Logger) *Server {
	users := services.NewUserService(db, log)
	conversations := services.NewConversationService(db, log)
	messages := services.NewMessageService(db, log)
	relay := chatstream.NewRelay(conversations, messages, gen, exporter, log.Named("relay"))

	authHandler := handlers.NewAuthHandler(users, cfg.JWTSecret, cfg.JWTTTL, cfg.BcryptCost, log)
	chatHandler := handlers.NewChatHandler(relay, conversations, messages, exporter, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(appMiddleware.RequestLogger(log.Named("http")))
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if exporter != nil {
		r.Handle("/metrics", exporter.Handler())
	}

	jwtAuth := appMiddleware.JWTMiddleware(cfg.JWTSecret)

	// API routes
	r.Route("/api", func(api chi.Router) {
		// JSON endpoints are bounded; the chat stream is not
		api.Group(func(timed chi.Router) {
			timed.Use(middleware.Timeout(cfg.RequestTimeout))

			timed.Post("/auth/register", authHandler.Register)
			timed.Post("/auth/login", authHandler.Login)

			timed.Group(func(protected chi.Router) {
				protected.Use(jwtAuth)
				protected.Get("/auth/me", authHandler.Me)
				protected.Get("/chat/conversations", chatHandler.ListConversations)
				protected.Post("/chat/conversations", chatHandler.CreateConversation)
				protected.Get("/chat/conversations/{conversationId}/messages", chatHandler.GetConversationMessages)
				protected.Delete("/chat/conversations/{conversationId}", chatHandler.DeleteConversation)
			})
		})

		api.With(jwtAuth).Post("/chat/messages", chatHandler.SendMessage)
	})

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &Server{httpServer: httpSrv, log: log}
}

func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("HTTP server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down HTTP server...")
	return s.httpServer.Shutdown(ctx)
}
