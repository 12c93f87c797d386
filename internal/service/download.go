// download.go — сервис скачивания файлов по отпечатку.
package service

import (
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"os"

	apierrors "github.com/bigkaa/goartstore/tmpshare/internal/api/errors"
	"github.com/bigkaa/goartstore/tmpshare/internal/api/middleware"
	"github.com/bigkaa/goartstore/tmpshare/internal/domain/model"
	"github.com/bigkaa/goartstore/tmpshare/internal/storage/store"
)

// DownloadService — сервис скачивания файлов.
type DownloadService struct {
	store  *store.Store
	logger *slog.Logger
}

// NewDownloadService создаёт сервис скачивания файлов.
func NewDownloadService(st *store.Store, logger *slog.Logger) *DownloadService {
	return &DownloadService{
		store:  st,
		logger: logger.With(slog.String("component", "download_service")),
	}
}

// DownloadError — ошибка скачивания с HTTP-кодом.
type DownloadError struct {
	StatusCode int
	Code       string
	Message    string
	// Err — исходная ошибка слоя хранения (только для логов)
	Err error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// notAvailable — единый ответ для любой причины недоступности файла:
// клиент не отличает отсутствующую запись от испорченной или удалённого файла.
func notAvailable(hash string, err error) *DownloadError {
	return &DownloadError{
		StatusCode: http.StatusNotFound,
		Code:       apierrors.CodeNotFound,
		Message:    fmt.Sprintf("Файл %s недоступен", hash),
		Err:        err,
	}
}

// Serve отдаёт файл клиенту через http.ServeContent.
// Обновляет дату последнего доступа записи (GetMetadata).
// Поддерживает Range requests (206 Partial Content) и ETag (If-None-Match).
func (s *DownloadService) Serve(w http.ResponseWriter, r *http.Request, hash string) *DownloadError {
	file, meta, dlErr := s.Open(hash)
	if dlErr != nil {
		middleware.OperationsTotal.WithLabelValues("download", "not_found").Inc()
		return dlErr
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		s.logger.Error("Ошибка получения stat файла",
			slog.String("hash", hash),
			slog.String("error", err.Error()),
		)
		middleware.OperationsTotal.WithLabelValues("download", "error").Inc()
		return notAvailable(hash, err)
	}
	if !stat.Mode().IsRegular() {
		middleware.OperationsTotal.WithLabelValues("download", "not_found").Inc()
		return notAvailable(hash, fmt.Errorf("%s не является обычным файлом", meta.FileName))
	}

	w.Header().Set("Content-Disposition", contentDisposition(meta.FileName))
	w.Header().Set("ETag", fmt.Sprintf("%q", meta.Hash))
	w.Header().Set("Accept-Ranges", "bytes")

	// Content-Type определяется по расширению file_name или по содержимому
	http.ServeContent(w, r, meta.FileName, stat.ModTime(), file)

	middleware.OperationsTotal.WithLabelValues("download", "success").Inc()

	s.logger.Debug("Файл скачан",
		slog.String("hash", hash),
		slog.String("file_name", meta.FileName),
		slog.Int64("size", stat.Size()),
	)

	return nil
}

// contentDisposition формирует заголовок attachment по RFC 6266.
// Имена вне ASCII кодируются как filename* (RFC 5987).
func contentDisposition(fileName string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": fileName}); v != "" {
		return v
	}
	return "attachment"
}

// Open загружает запись (с обновлением даты доступа) и открывает её файл.
// Вызывающий код закрывает файл.
func (s *DownloadService) Open(hash string) (*os.File, *model.Metadata, *DownloadError) {
	meta, err := s.store.GetMetadata(hash)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("Запись недоступна",
				slog.String("hash", hash),
				slog.String("error", err.Error()),
			)
		}
		return nil, nil, notAvailable(hash, err)
	}

	path, err := s.store.FilePath(meta)
	if err != nil {
		s.logger.Warn("Некорректное имя файла в записи",
			slog.String("hash", hash),
			slog.String("error", err.Error()),
		)
		return nil, nil, notAvailable(hash, err)
	}

	file, err := os.Open(path)
	if err != nil {
		s.logger.Error("Файл не найден на диске",
			slog.String("hash", hash),
			slog.String("file_name", meta.FileName),
			slog.String("error", err.Error()),
		)
		return nil, nil, notAvailable(hash, err)
	}

	return file, meta, nil
}
