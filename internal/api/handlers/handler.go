// handler.go — общие функции HTTP handlers tmpshare.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	apierrors "github.com/bigkaa/goartstore/tmpshare/internal/api/errors"
	"github.com/bigkaa/goartstore/tmpshare/internal/storage/store"
)

// writeJSON записывает v в формате JSON с заданным статусом.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeStoreError преобразует ошибку слоя хранения в ответ API.
// Отсутствующая запись и некорректный ключ неразличимы для клиента.
func writeStoreError(w http.ResponseWriter, err error, notFoundMessage string) {
	switch {
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, store.ErrOutsideRoot),
		errors.Is(err, store.ErrInvalidArgument):
		apierrors.NotFound(w, notFoundMessage)
	case errors.Is(err, store.ErrMalformed):
		apierrors.InternalError(w, "Запись повреждена")
	default:
		apierrors.InternalError(w, "Ошибка хранилища")
	}
}
