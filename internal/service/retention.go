// retention.go — сервис очистки хранилища по возрасту записей.
//
// Один проход удаляет записи Metadata (вместе с файлами) и коллекции,
// созданные раньше now − days суток. Ошибки по отдельным записям не
// прерывают проход: они подсчитываются и возвращаются одной ошибкой.
//
// Может запускаться как горутина с периодическим тикером (TS_CLEANUP_INTERVAL)
// или вручную через RunOnce (CLI, POST /api/v1/maintenance/cleanup).
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/tmpshare/internal/storage/store"
)

// Prometheus метрики очистки
var (
	// retentionRunsTotal — количество проходов очистки.
	retentionRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ts_retention_runs_total",
		Help: "Общее количество проходов очистки",
	})

	// retentionDeletedTotal — количество удалённых объектов по видам.
	retentionDeletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ts_retention_deleted_total",
		Help: "Общее количество объектов, удалённых очисткой",
	}, []string{"kind"})

	// retentionErrorsTotal — количество записей, которые не удалось удалить.
	retentionErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ts_retention_errors_total",
		Help: "Общее количество ошибок при очистке",
	})

	// retentionDurationSeconds — длительность прохода очистки.
	retentionDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ts_retention_duration_seconds",
		Help:    "Длительность прохода очистки в секундах",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})
)

// RetentionResult — результат одного прохода очистки.
type RetentionResult struct {
	store.CleanupResult
	// Days — использованный возраст в сутках
	Days int
	// Duration — длительность выполнения
	Duration time.Duration
}

// RetentionService — сервис очистки хранилища.
type RetentionService struct {
	store    *store.Store
	days     int
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex // защита от параллельного запуска RunOnce
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRetentionService создаёт сервис очистки.
// days — возраст по умолчанию для фонового запуска (TS_RETENTION_DAYS),
// interval — период фонового запуска (TS_CLEANUP_INTERVAL).
func NewRetentionService(
	st *store.Store,
	days int,
	interval time.Duration,
	logger *slog.Logger,
) *RetentionService {
	return &RetentionService{
		store:    st,
		days:     days,
		interval: interval,
		logger:   logger.With(slog.String("component", "retention")),
	}
}

// Days возвращает возраст по умолчанию.
func (rs *RetentionService) Days() int {
	return rs.days
}

// Start запускает фоновую горутину очистки с периодическим тикером.
// При нулевом интервале ничего не делает.
func (rs *RetentionService) Start(ctx context.Context) {
	if rs.interval <= 0 {
		rs.logger.Info("Фоновая очистка отключена")
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	rs.cancel = cancel
	rs.done = make(chan struct{})

	go rs.run(runCtx)

	rs.logger.Info("Фоновая очистка запущена",
		slog.String("interval", rs.interval.String()),
		slog.Int("days", rs.days),
	)
}

// Stop останавливает фоновую очистку и дожидается завершения текущего прохода.
func (rs *RetentionService) Stop() {
	if rs.cancel == nil {
		return
	}
	rs.cancel()
	<-rs.done
	rs.cancel = nil
	rs.logger.Info("Фоновая очистка остановлена")
}

// run — основной цикл фоновой горутины.
func (rs *RetentionService) run(ctx context.Context) {
	defer close(rs.done)

	// Первый запуск — сразу после старта
	_, _ = rs.RunOnce(rs.days)

	ticker := time.NewTicker(rs.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = rs.RunOnce(rs.days)
		}
	}
}

// RunOnce выполняет один проход очистки с возрастом days.
// Потокобезопасен: параллельные вызовы выполняются последовательно.
// Возвращает результат и объединённую ошибку по записям, которые не удалось
// удалить; результат nil только при ошибке всего прохода.
func (rs *RetentionService) RunOnce(days int) (*RetentionResult, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	start := time.Now()
	rs.logger.Debug("Очистка начата", slog.Int("days", days))

	cleanup, err := rs.store.Cleanup(days)
	if cleanup == nil {
		rs.logger.Error("Очистка не выполнена",
			slog.Int("days", days),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	result := &RetentionResult{
		CleanupResult: *cleanup,
		Days:          days,
		Duration:      time.Since(start),
	}

	// Обновляем Prometheus метрики
	retentionRunsTotal.Inc()
	retentionDeletedTotal.WithLabelValues("metadata").Add(float64(result.MetadataDeleted))
	retentionDeletedTotal.WithLabelValues("file").Add(float64(result.FilesDeleted))
	retentionDeletedTotal.WithLabelValues("collection").Add(float64(result.CollectionsDeleted))
	retentionErrorsTotal.Add(float64(result.Failed))
	retentionDurationSeconds.Observe(result.Duration.Seconds())

	level := slog.LevelInfo
	if err != nil {
		level = slog.LevelWarn
	}
	rs.logger.LogAttrs(context.Background(), level, "Очистка завершена",
		slog.Int("days", days),
		slog.Time("threshold", result.Threshold),
		slog.Int("checked", result.Checked),
		slog.Int("metadata_deleted", result.MetadataDeleted),
		slog.Int("files_deleted", result.FilesDeleted),
		slog.Int("collections_deleted", result.CollectionsDeleted),
		slog.Int("skipped", result.Skipped),
		slog.Int("malformed", result.Malformed),
		slog.Int("failed", result.Failed),
		slog.Duration("duration", result.Duration),
	)

	return result, err
}
