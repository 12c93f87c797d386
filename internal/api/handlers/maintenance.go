// maintenance.go — обработчик POST /api/v1/maintenance/cleanup.
// Делегирует очистку в RetentionService.
package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	apierrors "github.com/bigkaa/goartstore/tmpshare/internal/api/errors"
	"github.com/bigkaa/goartstore/tmpshare/internal/domain/model"
	"github.com/bigkaa/goartstore/tmpshare/internal/service"
	"github.com/bigkaa/goartstore/tmpshare/internal/storage/store"
)

// RetentionRunner — интерфейс запуска очистки.
// Позволяет тестировать handler без полного RetentionService.
type RetentionRunner interface {
	// RunOnce выполняет один проход очистки с возрастом days.
	RunOnce(days int) (*service.RetentionResult, error)
	// Days возвращает возраст по умолчанию.
	Days() int
}

// MaintenanceHandler — обработчик endpoints обслуживания.
type MaintenanceHandler struct {
	retention RetentionRunner
}

// NewMaintenanceHandler создаёт обработчик maintenance endpoints.
func NewMaintenanceHandler(retention RetentionRunner) *MaintenanceHandler {
	return &MaintenanceHandler{retention: retention}
}

// cleanupResponse — ответ на запуск очистки.
type cleanupResponse struct {
	Days               int      `json:"days"`
	Threshold          string   `json:"threshold"`
	Checked            int      `json:"checked"`
	MetadataDeleted    int      `json:"metadata_deleted"`
	FilesDeleted       int      `json:"files_deleted"`
	CollectionsDeleted int      `json:"collections_deleted"`
	Skipped            int      `json:"skipped"`
	Malformed          int      `json:"malformed"`
	Failed             int      `json:"failed"`
	DurationMs         int64    `json:"duration_ms"`
	Errors             []string `json:"errors"`
}

// Cleanup обрабатывает POST /api/v1/maintenance/cleanup?days=N.
// Без параметра используется TS_RETENTION_DAYS. Ошибки по отдельным
// записям не прерывают проход и возвращаются в поле errors.
func (h *MaintenanceHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	days := h.retention.Days()
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			apierrors.ValidationError(w, "Параметр days должен быть неотрицательным целым числом")
			return
		}
		days = n
	}

	result, err := h.retention.RunOnce(days)
	if result == nil {
		if errors.Is(err, store.ErrInvalidArgument) {
			apierrors.ValidationError(w, err.Error())
			return
		}
		apierrors.InternalError(w, "Очистка не выполнена")
		return
	}

	resp := cleanupResponse{
		Days:               result.Days,
		Threshold:          model.NewTimestamp(result.Threshold).String(),
		Checked:            result.Checked,
		MetadataDeleted:    result.MetadataDeleted,
		FilesDeleted:       result.FilesDeleted,
		CollectionsDeleted: result.CollectionsDeleted,
		Skipped:            result.Skipped,
		Malformed:          result.Malformed,
		Failed:             result.Failed,
		DurationMs:         result.Duration.Milliseconds(),
		Errors:             []string{},
	}
	if err != nil {
		resp.Errors = strings.Split(err.Error(), "\n")
	}

	writeJSON(w, http.StatusOK, resp)
}
