package server

import (
	"chat-bridge/internal/config"
	"chat-bridge/internal/usecase/adapters"
	"chat-bridge/pkg/logg"
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const serverName = "HTTPServer"

type Server struct {
	config *config.ServerConfig
	logger *zap.Logger
	chat   adapters.ChatService
	http   *http.Server
}

type Params struct {
	fx.In

	Config *config.Config
	Logger *zap.Logger
	Chat   adapters.ChatService
}

func NewServer(params Params) *Server {
	s := &Server{
		config: params.Config.ServerConfig,
		logger: params.Logger.With(zap.String(logg.Layer, serverName)),
		chat:   params.Chat,
	}

	s.http = &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.Router(),
		ReadTimeout:       s.config.ReadTimeout,
		ReadHeaderTimeout: s.config.ReadTimeout,
		WriteTimeout:      s.config.WriteTimeout,
	}

	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Post("/chat", s.handleChat)

	r.Route("/chats", func(r chi.Router) {
		r.Get("/", s.handleListChats)
		r.Get("/{chat_id}/messages", s.handleListMessages)
		r.Delete("/{chat_id}", s.handleDeleteChat)
	})

	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		s.logger.Info("HTTP",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// Start binds the listener synchronously so address errors surface at
// startup, then serves in the background.
func (s *Server) Start(context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return err
	}

	s.logger.Info("Server started", zap.String("addr", ln.Addr().String()))

	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Server stopped unexpectedly", zap.Error(err))
		}
	}()

	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down server")

	return s.http.Shutdown(ctx)
}
