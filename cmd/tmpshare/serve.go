// serve.go — подкоманда serve: сборка компонентов и запуск HTTP-сервера.
package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bigkaa/goartstore/tmpshare/internal/api/handlers"
	"github.com/bigkaa/goartstore/tmpshare/internal/api/middleware"
	"github.com/bigkaa/goartstore/tmpshare/internal/config"
	"github.com/bigkaa/goartstore/tmpshare/internal/server"
	"github.com/bigkaa/goartstore/tmpshare/internal/service"
)

// cmdServe — tmpshare serve [-address A] [-port P].
func cmdServe(env *cliEnv, args []string) error {
	fs := newFlagSet(env, "serve", "[-address A] [-port P]")
	address := fs.String("address", env.cfg.Address, "адрес HTTP-сервера")
	port := fs.Int("port", env.cfg.Port, "порт HTTP-сервера")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 0 {
		fs.Usage()
		return errUsage
	}
	if err := config.ValidatePort(*port); err != nil {
		return fmt.Errorf("-port: %w", err)
	}
	env.cfg.Address = *address
	env.cfg.Port = *port

	return serve(context.Background(), env)
}

// serve собирает компоненты и блокируется до остановки сервера.
func serve(ctx context.Context, env *cliEnv) error {
	cfg := env.cfg

	st, logger, err := env.open(env.stdout)
	if err != nil {
		return err
	}
	logger.Info("tmpshare запускается",
		slog.String("version", config.Version),
		slog.String("data_dir", st.Root()),
		slog.String("addr", cfg.ListenAddr()),
		slog.Int("retention_days", cfg.RetentionDays),
	)

	// --- Инициализация компонентов ---

	// 1. Сервисы
	uploadSvc := service.NewUploadService(st, cfg.MaxFileSize, logger)
	downloadSvc := service.NewDownloadService(st, logger)

	// 2. Фоновая очистка
	retentionSvc := service.NewRetentionService(st, cfg.RetentionDays, cfg.CleanupInterval, logger)
	retentionSvc.Start(ctx)
	defer retentionSvc.Stop()

	// 3. JWT и topologymetrics — только при заданном TS_JWKS_URL
	var (
		jwtAuth *middleware.JWTAuth
		deps    handlers.DependencyHealth
	)
	if cfg.AuthEnabled() {
		jwtAuth, err = middleware.NewJWTAuth(middleware.JWTAuthConfig{
			JWKSURL:         cfg.JWKSUrl,
			ClientTimeout:   cfg.JWKSClientTimeout,
			RefreshInterval: cfg.JWKSRefreshInterval,
			JWTLeeway:       cfg.JWTLeeway,
		}, logger)
		if err != nil {
			return fmt.Errorf("ошибка настройки JWT: %w", err)
		}
		logger.Info("JWT аутентификация настроена", slog.String("jwks_url", cfg.JWKSUrl))

		dephealthSvc, dhErr := service.NewDephealthService(
			cfg.ServiceID,
			cfg.DephealthGroup,
			cfg.JWKSUrl,
			cfg.DephealthCheckInterval,
			logger,
		)
		if dhErr != nil {
			logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
				slog.String("error", dhErr.Error()),
			)
		} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics",
				slog.String("error", startErr.Error()),
			)
		} else {
			defer dephealthSvc.Stop()
			deps = dephealthSvc
			logger.Info("topologymetrics запущен",
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
	} else {
		logger.Warn("TS_JWKS_URL не задан, изменяющие операции доступны без аутентификации")
	}

	// 4. Handlers
	h := server.Handlers{
		Files:       handlers.NewFilesHandler(uploadSvc, downloadSvc, st, logger),
		Collections: handlers.NewCollectionsHandler(st, logger),
		Maintenance: handlers.NewMaintenanceHandler(retentionSvc),
		Health:      handlers.NewHealthHandler(st.Root(), deps),
	}

	// 5. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, h, jwtAuth)
	if err := srv.Run(ctx); err != nil {
		return err
	}

	logger.Info("Остановка фоновых процессов...")
	return nil
}
