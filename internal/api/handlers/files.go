// files.go — HTTP handlers файловых операций: скачивание, список,
// метаданные, загрузка.
package handlers

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/goartstore/tmpshare/internal/api/errors"
	"github.com/bigkaa/goartstore/tmpshare/internal/api/middleware"
	"github.com/bigkaa/goartstore/tmpshare/internal/domain/model"
	"github.com/bigkaa/goartstore/tmpshare/internal/service"
	"github.com/bigkaa/goartstore/tmpshare/internal/storage/store"
)

// multipartMemory — объём multipart-формы в памяти, остальное — во временных файлах.
const multipartMemory = 32 << 20

// FilesHandler — обработчик файловых endpoints.
type FilesHandler struct {
	uploadSvc   *service.UploadService
	downloadSvc *service.DownloadService
	store       *store.Store
	logger      *slog.Logger
}

// NewFilesHandler создаёт обработчик файловых endpoints.
func NewFilesHandler(
	uploadSvc *service.UploadService,
	downloadSvc *service.DownloadService,
	st *store.Store,
	logger *slog.Logger,
) *FilesHandler {
	return &FilesHandler{
		uploadSvc:   uploadSvc,
		downloadSvc: downloadSvc,
		store:       st,
		logger:      logger.With(slog.String("component", "files_handler")),
	}
}

// fileListResponse — ответ GET /api/v1/files.
type fileListResponse struct {
	Items   []*model.Metadata `json:"items"`
	Total   int               `json:"total"`
	Skipped int               `json:"skipped"`
}

// Download обрабатывает GET /get/{hash}.
// Поддерживает Range requests (206) и ETag (If-None-Match → 304).
func (h *FilesHandler) Download(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")
	if dlErr := h.downloadSvc.Serve(w, r, hash); dlErr != nil {
		apierrors.WriteError(w, dlErr.StatusCode, dlErr.Code, dlErr.Message)
	}
}

// List обрабатывает GET /api/v1/files.
// Нечитаемые записи не попадают в items, их количество — в skipped.
func (h *FilesHandler) List(w http.ResponseWriter, _ *http.Request) {
	result, err := h.store.Scan()
	if err != nil {
		h.logger.Error("Ошибка перечисления записей", slog.String("error", err.Error()))
		middleware.OperationsTotal.WithLabelValues("list", "error").Inc()
		apierrors.InternalError(w, "Ошибка перечисления записей")
		return
	}
	middleware.OperationsTotal.WithLabelValues("list", "success").Inc()

	items := result.Items
	if items == nil {
		items = []*model.Metadata{}
	}

	writeJSON(w, http.StatusOK, fileListResponse{
		Items:   items,
		Total:   len(items),
		Skipped: result.Skipped,
	})
}

// GetMetadata обрабатывает GET /api/v1/files/{hash}.
// Как и скачивание, обновляет дату последнего доступа.
func (h *FilesHandler) GetMetadata(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")

	meta, err := h.store.GetMetadata(hash)
	if err != nil {
		h.logger.Debug("Запись недоступна",
			slog.String("hash", hash),
			slog.String("error", err.Error()),
		)
		middleware.OperationsTotal.WithLabelValues("get", "not_found").Inc()
		writeStoreError(w, err, fmt.Sprintf("Файл %s не найден", hash))
		return
	}
	middleware.OperationsTotal.WithLabelValues("get", "success").Inc()

	writeJSON(w, http.StatusOK, meta)
}

// Upload обрабатывает POST /api/v1/files.
// Multipart form: file (обязательно). 201 — файл добавлен,
// 200 — файл с тем же именем и содержимым уже был в хранилище.
func (h *FilesHandler) Upload(w http.ResponseWriter, r *http.Request) {
	// Извлекаем subject из JWT контекста
	subject := middleware.SubjectFromContext(r.Context())

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		apierrors.ValidationError(w, fmt.Sprintf("Ошибка парсинга multipart: %s", err.Error()))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		apierrors.ValidationError(w, "Поле 'file' обязательно")
		return
	}
	defer file.Close()

	result, uploadErr := h.uploadSvc.Upload(service.UploadParams{
		Reader:     file,
		FileName:   header.Filename,
		Size:       header.Size,
		UploadedBy: subject,
	})
	if uploadErr != nil {
		apierrors.WriteError(w, uploadErr.StatusCode, uploadErr.Code, uploadErr.Message)
		return
	}

	status := http.StatusCreated
	if !result.Created {
		status = http.StatusOK
	}
	writeJSON(w, status, result.Metadata)
}
