// Пакет service — бизнес-логика tmpshare поверх слоя хранения.
// upload.go — сервис загрузки файлов в корень хранилища.
package service

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	apierrors "github.com/bigkaa/goartstore/tmpshare/internal/api/errors"
	"github.com/bigkaa/goartstore/tmpshare/internal/api/middleware"
	"github.com/bigkaa/goartstore/tmpshare/internal/domain/model"
	"github.com/bigkaa/goartstore/tmpshare/internal/storage/hasher"
	"github.com/bigkaa/goartstore/tmpshare/internal/storage/sidecar"
	"github.com/bigkaa/goartstore/tmpshare/internal/storage/store"
)

// ErrConflict — в корне уже есть файл с тем же именем и другим содержимым.
var ErrConflict = errors.New("файл с таким именем уже существует")

// UploadParams — параметры загрузки файла.
type UploadParams struct {
	// Reader — поток данных файла
	Reader io.Reader
	// FileName — имя файла из multipart part
	FileName string
	// Size — заявленный размер (из Content-Length part), 0 если неизвестен
	Size int64
	// UploadedBy — идентификатор пользователя (sub из JWT), только для логов
	UploadedBy string
}

// UploadResult — результат загрузки файла.
type UploadResult struct {
	Metadata *model.Metadata
	// Created — false, если файл с тем же содержимым уже был в хранилище
	Created bool
}

// UploadError — ошибка загрузки с HTTP-кодом.
type UploadError struct {
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// UploadService — сервис загрузки файлов.
type UploadService struct {
	store       *store.Store
	maxFileSize int64
	logger      *slog.Logger
}

// NewUploadService создаёт сервис загрузки файлов.
func NewUploadService(st *store.Store, maxFileSize int64, logger *slog.Logger) *UploadService {
	return &UploadService{
		store:       st,
		maxFileSize: maxFileSize,
		logger:      logger.With(slog.String("component", "upload_service")),
	}
}

// Upload сохраняет поток в "<root>/<FileName>" и добавляет его в хранилище.
//
// Поток:
//  1. Проверка имени и заявленного размера
//  2. Запись во временный файл в корне (streaming + SHA-256) → fsync
//  3. os.Link во временный файл под целевым именем (не перезаписывает)
//  4. store.Add
//
// Если файл с тем же именем уже есть: одинаковое содержимое — повторная
// регистрация, другое — ErrConflict.
func (s *UploadService) Upload(params UploadParams) (*UploadResult, *UploadError) {
	name, err := validateFileName(params.FileName)
	if err != nil {
		return nil, &UploadError{
			StatusCode: 400,
			Code:       apierrors.CodeValidationError,
			Message:    err.Error(),
			Err:        err,
		}
	}

	if s.maxFileSize > 0 && params.Size > s.maxFileSize {
		return nil, s.tooLarge(params.Size)
	}

	tmpPath, hash, size, uerr := s.spool(params.Reader)
	if uerr != nil {
		return nil, uerr
	}
	defer os.Remove(tmpPath)

	target := filepath.Join(s.store.Root(), name)
	created := true
	if err := os.Link(tmpPath, target); err != nil {
		if !errors.Is(err, os.ErrExist) {
			s.logger.Error("Ошибка сохранения файла",
				slog.String("file_name", name),
				slog.String("error", err.Error()),
			)
			return nil, internalUploadError("Ошибка сохранения файла на диск", err)
		}

		existing, err := hasher.Fingerprint(target)
		if err != nil || existing != hash {
			middleware.OperationsTotal.WithLabelValues("upload", "conflict").Inc()
			return nil, &UploadError{
				StatusCode: 409,
				Code:       apierrors.CodeConflict,
				Message:    fmt.Sprintf("Файл %s уже существует с другим содержимым", name),
				Err:        ErrConflict,
			}
		}
		created = false
	}

	meta, err := s.store.Add(target)
	if err != nil {
		if created {
			_ = os.Remove(target)
		}
		s.logger.Error("Ошибка добавления файла",
			slog.String("file_name", name),
			slog.String("error", err.Error()),
		)
		return nil, internalUploadError("Ошибка записи метаданных", err)
	}

	middleware.OperationsTotal.WithLabelValues("upload", "success").Inc()

	s.logger.Info("Файл загружен",
		slog.String("hash", meta.Hash),
		slog.String("file_name", name),
		slog.Int64("size", size),
		slog.Bool("created", created),
		slog.String("uploaded_by", params.UploadedBy),
	)

	return &UploadResult{Metadata: meta, Created: created}, nil
}

// spool записывает поток во временный файл в корне хранилища и
// вычисляет его отпечаток. Временное имя начинается с точки и не видно
// при сканировании.
func (s *UploadService) spool(r io.Reader) (path, hash string, size int64, uerr *UploadError) {
	f, err := os.CreateTemp(s.store.Root(), ".upload-*.tmp")
	if err != nil {
		s.logger.Error("Ошибка создания временного файла", slog.String("error", err.Error()))
		return "", "", 0, internalUploadError("Ошибка сохранения файла на диск", err)
	}
	path = f.Name()

	fail := func(ue *UploadError) (string, string, int64, *UploadError) {
		f.Close()
		os.Remove(path)
		return "", "", 0, ue
	}

	src := r
	if s.maxFileSize > 0 {
		src = io.LimitReader(r, s.maxFileSize+1)
	}

	hash, size, err = hasher.FingerprintReader(io.TeeReader(src, f))
	if err != nil {
		s.logger.Error("Ошибка записи временного файла", slog.String("error", err.Error()))
		return fail(internalUploadError("Ошибка сохранения файла на диск", err))
	}
	if s.maxFileSize > 0 && size > s.maxFileSize {
		return fail(s.tooLarge(size))
	}

	if err := f.Sync(); err != nil {
		return fail(internalUploadError("Ошибка сохранения файла на диск", err))
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", "", 0, internalUploadError("Ошибка сохранения файла на диск", err)
	}
	if err := os.Chmod(path, 0o640); err != nil {
		os.Remove(path)
		return "", "", 0, internalUploadError("Ошибка сохранения файла на диск", err)
	}

	return path, hash, size, nil
}

// tooLarge — ошибка превышения лимита размера.
func (s *UploadService) tooLarge(size int64) *UploadError {
	middleware.OperationsTotal.WithLabelValues("upload", "too_large").Inc()
	return &UploadError{
		StatusCode: 413,
		Code:       apierrors.CodeFileTooLarge,
		Message:    fmt.Sprintf("Размер файла %d байт превышает максимум %d байт", size, s.maxFileSize),
	}
}

// internalUploadError — 500 с исходной ошибкой для логов.
func internalUploadError(message string, err error) *UploadError {
	return &UploadError{
		StatusCode: 500,
		Code:       apierrors.CodeInternalError,
		Message:    message,
		Err:        err,
	}
}

// validateFileName приводит имя из multipart к последнему сегменту пути
// и отклоняет имена, которые нельзя хранить в корне: скрытые файлы и
// имена, совпадающие с шаблонами sidecar-файлов.
func validateFileName(raw string) (string, error) {
	name := filepath.Base(strings.ReplaceAll(raw, `\`, "/"))
	switch {
	case raw == "" || name == "." || name == "/" || name == "..":
		return "", errors.New("не указано имя файла")
	case strings.HasPrefix(name, "."):
		return "", fmt.Errorf("имя файла %q не может начинаться с точки", name)
	case strings.ContainsRune(name, 0):
		return "", fmt.Errorf("имя файла %q содержит недопустимые символы", name)
	}
	for _, kind := range sidecar.Kinds {
		if sidecar.Is(name, kind) {
			return "", fmt.Errorf("имя файла %q зарезервировано (%s)", name, kind.Suffix)
		}
	}
	return name, nil
}
