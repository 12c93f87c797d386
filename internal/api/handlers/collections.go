// collections.go — HTTP handlers коллекций: создание, JSON и HTML-страница.
package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/goartstore/tmpshare/internal/api/errors"
	"github.com/bigkaa/goartstore/tmpshare/internal/api/middleware"
	"github.com/bigkaa/goartstore/tmpshare/internal/domain/model"
	"github.com/bigkaa/goartstore/tmpshare/internal/storage/hasher"
	"github.com/bigkaa/goartstore/tmpshare/internal/storage/store"
)

// maxCollectionBody — ограничение тела запроса создания коллекции.
const maxCollectionBody = 1 << 20

// CollectionsHandler — обработчик endpoints коллекций.
type CollectionsHandler struct {
	store  *store.Store
	logger *slog.Logger
}

// NewCollectionsHandler создаёт обработчик endpoints коллекций.
func NewCollectionsHandler(st *store.Store, logger *slog.Logger) *CollectionsHandler {
	return &CollectionsHandler{
		store:  st,
		logger: logger.With(slog.String("component", "collections_handler")),
	}
}

// createCollectionRequest — тело POST /api/v1/collections.
type createCollectionRequest struct {
	Entries []string `json:"entries"`
}

// Create обрабатывает POST /api/v1/collections.
// Каждый отпечаток должен ссылаться на существующую запись; порядок
// и дубликаты сохраняются.
func (h *CollectionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createCollectionRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCollectionBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		apierrors.ValidationError(w, fmt.Sprintf("Некорректный JSON: %s", err.Error()))
		return
	}

	members := make([]*model.Metadata, 0, len(req.Entries))
	for _, hash := range req.Entries {
		if !hasher.IsValid(hash) {
			apierrors.ValidationError(w, fmt.Sprintf("Некорректный отпечаток: %q", hash))
			return
		}
		meta, err := h.store.ReadMetadata(h.store.MetadataPath(hash))
		if err != nil {
			writeStoreError(w, err, fmt.Sprintf("Файл %s не найден", hash))
			return
		}
		members = append(members, meta)
	}

	coll, err := h.store.AddCollection("", members)
	if err != nil {
		h.logger.Error("Ошибка создания коллекции", slog.String("error", err.Error()))
		middleware.OperationsTotal.WithLabelValues("collect", "error").Inc()
		apierrors.InternalError(w, "Ошибка создания коллекции")
		return
	}
	middleware.OperationsTotal.WithLabelValues("collect", "success").Inc()

	h.logger.Info("Коллекция создана",
		slog.String("id", coll.Hash),
		slog.Int("entries", len(coll.Entries)),
		slog.String("created_by", middleware.SubjectFromContext(r.Context())),
	)

	writeJSON(w, http.StatusCreated, coll)
}

// Get обрабатывает GET /api/v1/collections/{id}.
func (h *CollectionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	coll, err := h.store.GetCollection(id)
	if err != nil {
		middleware.OperationsTotal.WithLabelValues("get_collection", "not_found").Inc()
		writeStoreError(w, err, fmt.Sprintf("Коллекция %s не найдена", id))
		return
	}
	middleware.OperationsTotal.WithLabelValues("get_collection", "success").Inc()

	writeJSON(w, http.StatusOK, coll)
}

// Page обрабатывает GET /collection/{id}: HTML-список ссылок на файлы
// коллекции. Удалённые участники показываются без ссылки.
func (h *CollectionsHandler) Page(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	coll, err := h.store.GetCollection(id)
	if err != nil {
		middleware.OperationsTotal.WithLabelValues("get_collection", "not_found").Inc()
		writeStoreError(w, err, fmt.Sprintf("Коллекция %s не найдена", id))
		return
	}
	middleware.OperationsTotal.WithLabelValues("get_collection", "success").Inc()

	entries := make([]pageEntry, 0, len(coll.Entries))
	for _, hash := range coll.Entries {
		entry := pageEntry{Hash: hash}
		if hasher.IsValid(hash) {
			if meta, err := h.store.ReadMetadata(h.store.MetadataPath(hash)); err == nil {
				entry.FileName = meta.FileName
			}
		}
		entries = append(entries, entry)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := collectionPage(coll, entries).Render(r.Context(), w); err != nil {
		h.logger.Warn("Ошибка отрисовки страницы коллекции",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
	}
}
