// cleanup.go — удаление записей старше заданного возраста.
//
// Очистка работает по снимку Scan(): записи, добавленные во время прохода,
// не рассматриваются. Перед удалением запись перечитывается под мьютексом
// ключа: если её уже удалили или пересоздали позже порога, она пропускается.
// Ошибки по отдельным записям собираются, проход продолжается.
package store

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/bigkaa/goartstore/tmpshare/internal/domain/model"
	"github.com/bigkaa/goartstore/tmpshare/internal/storage/sidecar"
)

// CleanupResult — итог одного прохода очистки.
type CleanupResult struct {
	// Threshold — записи, созданные строго раньше, удаляются
	Threshold time.Time
	// Checked — количество рассмотренных записей (метаданные + коллекции)
	Checked int
	// MetadataDeleted — удалённые записи Metadata
	MetadataDeleted int
	// FilesDeleted — удалённые файлы данных
	FilesDeleted int
	// CollectionsDeleted — удалённые коллекции
	CollectionsDeleted int
	// Skipped — записи, исчезнувшие или обновлённые во время прохода
	Skipped int
	// Malformed — нечитаемые sidecar-файлы (не удаляются)
	Malformed int
	// Failed — записи, удаление которых завершилось ошибкой
	Failed int
}

// Cleanup удаляет записи, созданные раньше now − maxAgeDays суток, вместе
// с файлами, которые они описывают, и коллекции того же возраста.
//
// Возвращает результат и объединённую ошибку (errors.Join) по всем записям,
// которые не удалось удалить. Результат nil только если не удалось прочитать
// корень хранилища.
func (s *Store) Cleanup(maxAgeDays int) (*CleanupResult, error) {
	if maxAgeDays < 0 {
		return nil, fmt.Errorf("%w: возраст не может быть отрицательным: %d", ErrInvalidArgument, maxAgeDays)
	}

	threshold := s.now().Add(-time.Duration(maxAgeDays) * 24 * time.Hour)
	result := &CleanupResult{Threshold: threshold}

	snapshot, err := s.Scan()
	if err != nil {
		return nil, err
	}
	result.Malformed = snapshot.Skipped

	// Файл может описываться несколькими записями (содержимое менялось
	// между вызовами Add). Файл удаляется только если на него не ссылается
	// ни одна остающаяся запись. removed — файлы, уже удалённые в этом
	// проходе: остальные истёкшие записи на них файл не трогают.
	retained := make(map[string]int)
	removed := make(map[string]bool)
	for _, meta := range snapshot.Items {
		if !meta.CreatedBefore(threshold) {
			retained[meta.FileName]++
		}
	}

	var errs []error
	for i, meta := range snapshot.Items {
		if !meta.CreatedBefore(threshold) {
			continue
		}
		result.Checked++

		shared := retained[meta.FileName] > 0 || removed[meta.FileName]
		res, err := s.expireMetadata(snapshot.paths[i], threshold, shared)
		if err != nil {
			errs = append(errs, err)
			s.logger.Error("Ошибка удаления записи",
				slog.String("hash", meta.Hash),
				slog.String("file_name", meta.FileName),
				slog.String("error", err.Error()),
			)
		}
		switch res {
		case outcomeFailed:
			result.Failed++
		case outcomeSkipped:
			result.Skipped++
		case outcomeDeleted:
			result.MetadataDeleted++
		case outcomeDeletedWithFile:
			result.MetadataDeleted++
			result.FilesDeleted++
			removed[meta.FileName] = true
		}
	}

	collections, err := sidecar.Scan[model.Collection](s.root, sidecar.KindCollection)
	if err != nil {
		errs = append(errs, classify(err))
	} else {
		result.Malformed += len(collections.Skipped)
		for i, coll := range collections.Items {
			if !coll.CreatedBefore(threshold) {
				continue
			}
			result.Checked++

			deleted, err := s.expireCollection(collections.Paths[i], threshold)
			switch {
			case err != nil:
				result.Failed++
				errs = append(errs, err)
				s.logger.Error("Ошибка удаления коллекции",
					slog.String("id", coll.Hash),
					slog.String("error", err.Error()),
				)
			case deleted:
				result.CollectionsDeleted++
			default:
				result.Skipped++
			}
		}
	}

	return result, errors.Join(errs...)
}

// outcome — итог обработки одной записи.
type outcome int

const (
	outcomeFailed outcome = iota
	outcomeSkipped
	outcomeDeleted
	outcomeDeletedWithFile
)

// expireMetadata удаляет файл данных и sidecar-файл записи.
// Пропускает запись, если sidecar уже удалён или пересоздан после порога.
// При ошибке удаления файла sidecar сохраняется, чтобы следующий проход
// повторил попытку. Отсутствующий файл данных — тоже ошибка, но запись
// при этом удаляется: ссылаться ей больше не на что.
func (s *Store) expireMetadata(path string, threshold time.Time, fileShared bool) (outcome, error) {
	unlock := s.locks.Lock(lockKey(sidecar.KindMetadata, sidecar.KeyFromPath(path, sidecar.KindMetadata)))
	defer unlock()

	meta, err := s.ReadMetadata(path)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return outcomeSkipped, nil
		}
		return outcomeFailed, err
	}
	if !meta.CreatedBefore(threshold) {
		return outcomeSkipped, nil
	}

	result := outcomeDeleted
	var fileErr error
	if !fileShared {
		filePath, err := s.FilePath(meta)
		if err != nil {
			return outcomeFailed, fmt.Errorf("запись %s: %w", meta.Hash, err)
		}

		switch err := os.Remove(filePath); {
		case err == nil:
			result = outcomeDeletedWithFile
		case isNotExist(err):
			fileErr = fmt.Errorf("%w: файл записи %s: %w", ErrNotFound, meta.Hash, err)
		default:
			return outcomeFailed, fmt.Errorf("%w: удаление файла %s: %w", ErrIOFailure, filePath, err)
		}
	}

	if err := sidecar.Delete(path); err != nil {
		if isNotExist(err) {
			return result, fileErr
		}
		return outcomeFailed, errors.Join(fileErr, classify(err))
	}

	s.logger.Debug("Запись удалена",
		slog.String("hash", meta.Hash),
		slog.String("file_name", meta.FileName),
		slog.Bool("file_deleted", result == outcomeDeletedWithFile),
	)
	return result, fileErr
}

// expireCollection удаляет sidecar-файл коллекции.
func (s *Store) expireCollection(path string, threshold time.Time) (bool, error) {
	unlock := s.locks.Lock(lockKey(sidecar.KindCollection, sidecar.KeyFromPath(path, sidecar.KindCollection)))
	defer unlock()

	coll, err := s.ReadCollection(path)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if !coll.CreatedBefore(threshold) {
		return false, nil
	}

	if err := sidecar.Delete(path); err != nil {
		if isNotExist(err) {
			return false, nil
		}
		return false, classify(err)
	}
	return true, nil
}
