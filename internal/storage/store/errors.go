// errors.go — таксономия ошибок слоя хранения.
package store

import (
	"errors"
	"fmt"
	"os"

	"github.com/bigkaa/goartstore/tmpshare/internal/storage/hasher"
	"github.com/bigkaa/goartstore/tmpshare/internal/storage/sidecar"
)

var (
	// ErrNotFound — файл или sidecar-запись отсутствует.
	ErrNotFound = errors.New("не найдено")
	// ErrMalformed — содержимое sidecar-файла не разбирается как запись.
	ErrMalformed = sidecar.ErrMalformed
	// ErrIOFailure — ошибка чтения, записи или удаления, не связанная с отсутствием.
	ErrIOFailure = errors.New("ошибка ввода-вывода")
	// ErrOutsideRoot — файл находится вне корня хранилища.
	ErrOutsideRoot = errors.New("файл вне корня хранилища")
	// ErrInvalidArgument — некорректный аргумент операции.
	ErrInvalidArgument = errors.New("некорректный аргумент")
)

// classify приводит ошибку нижнего уровня к таксономии пакета.
// ErrMalformed и уже классифицированные ошибки возвращаются без изменений.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrMalformed),
		errors.Is(err, ErrIOFailure), errors.Is(err, ErrOutsideRoot):
		return err
	case errors.Is(err, os.ErrNotExist), errors.Is(err, hasher.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	default:
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
}
