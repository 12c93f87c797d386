// Пакет server — HTTP-сервер tmpshare с graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigkaa/goartstore/tmpshare/internal/api/handlers"
	"github.com/bigkaa/goartstore/tmpshare/internal/api/middleware"
	"github.com/bigkaa/goartstore/tmpshare/internal/config"
)

// Handlers — набор доменных обработчиков, монтируемых в роутер.
type Handlers struct {
	Files       *handlers.FilesHandler
	Collections *handlers.CollectionsHandler
	Maintenance *handlers.MaintenanceHandler
	Health      *handlers.HealthHandler
}

// Server — HTTP-сервер tmpshare.
type Server struct {
	httpServer      *http.Server
	logger          *slog.Logger
	addr            string
	shutdownTimeout time.Duration
}

// New создаёт HTTP-сервер с настроенными routes и middleware.
// auth == nil — JWT-проверка отключена (TS_JWKS_URL не задан).
func New(cfg *config.Config, logger *slog.Logger, h Handlers, auth *middleware.JWTAuth) *Server {
	srv := &http.Server{
		Handler:      NewRouter(logger, h, auth),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer:      srv,
		logger:          logger.With(slog.String("component", "server")),
		addr:            cfg.ListenAddr(),
		shutdownTimeout: cfg.ShutdownTimeout,
	}
}

// NewRouter собирает chi-роутер со всеми endpoints.
func NewRouter(logger *slog.Logger, h Handlers, auth *middleware.JWTAuth) http.Handler {
	router := chi.NewRouter()

	// Middleware
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.MetricsMiddleware())

	// Публичные маршруты
	router.Get("/get/{hash}", h.Files.Download)
	router.Get("/collection/{id}", h.Collections.Page)

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/files", h.Files.List)
		r.Get("/files/{hash}", h.Files.GetMetadata)
		r.With(middleware.Protect(auth, middleware.ScopeWrite)).Post("/files", h.Files.Upload)

		r.Get("/collections/{id}", h.Collections.Get)
		r.With(middleware.Protect(auth, middleware.ScopeWrite)).Post("/collections", h.Collections.Create)

		r.With(middleware.Protect(auth, middleware.ScopeMaintenance)).Post("/maintenance/cleanup", h.Maintenance.Cleanup)
	})

	router.Get("/health/live", h.Health.HealthLive)
	router.Get("/health/ready", h.Health.HealthReady)
	router.Handle("/metrics", promhttp.Handler())

	return router
}

// Run слушает адрес из конфигурации и ожидает сигнала завершения
// (SIGINT, SIGTERM) или отмены ctx.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("ошибка открытия порта %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve обслуживает ln до сигнала завершения или отмены ctx,
// затем выполняет graceful shutdown с таймаутом TS_SHUTDOWN_TIMEOUT.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	// Канал для ошибок сервера
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен", slog.String("addr", ln.Addr().String()))

		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case <-ctx.Done():
		s.logger.Info("Контекст сервера отменён")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
