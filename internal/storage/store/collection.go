// collection.go — коллекции: группы записей под случайным идентификатором.
package store

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bigkaa/goartstore/tmpshare/internal/domain/model"
	"github.com/bigkaa/goartstore/tmpshare/internal/storage/sidecar"
)

// maxIDAttempts — число попыток сгенерировать свободный идентификатор.
const maxIDAttempts = 3

// AddCollection создаёт коллекцию из members в заданном порядке и сохраняет
// её рядом с anchorPath в "<id>.collection.json".
//
// anchorPath — файл или директория; для файла используется его директория.
// Директория должна совпадать с корнем хранилища. Идентификатор случайный:
// две коллекции с одинаковым составом — разные записи.
func (s *Store) AddCollection(anchorPath string, members []*model.Metadata) (*model.Collection, error) {
	for i, m := range members {
		if m == nil {
			return nil, fmt.Errorf("%w: участник %d не задан", ErrInvalidArgument, i)
		}
	}

	dir, err := s.anchorDir(anchorPath)
	if err != nil {
		return nil, err
	}
	if dir != s.root {
		return nil, fmt.Errorf("%w: %s (корень %s)", ErrOutsideRoot, dir, s.root)
	}

	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id := s.newID()
		if !isPlainName(id) {
			return nil, fmt.Errorf("%w: сгенерирован некорректный идентификатор %q", ErrInvalidArgument, id)
		}

		coll, created, err := s.createCollection(id, members)
		if err != nil {
			return nil, err
		}
		if created {
			s.logger.Debug("Коллекция создана",
				slog.String("id", coll.Hash),
				slog.Int("entries", len(coll.Entries)),
			)
			return coll, nil
		}
	}

	return nil, fmt.Errorf("%w: не удалось сгенерировать свободный идентификатор коллекции", ErrIOFailure)
}

// createCollection сохраняет коллекцию, если идентификатор свободен.
func (s *Store) createCollection(id string, members []*model.Metadata) (*model.Collection, bool, error) {
	unlock := s.locks.Lock(lockKey(sidecar.KindCollection, id))
	defer unlock()

	path := s.CollectionPath(id)
	if sidecar.Exists(path) {
		return nil, false, nil
	}

	coll := model.NewCollection(id, members, s.now())
	if err := sidecar.Write(path, coll); err != nil {
		return nil, false, classify(err)
	}
	return coll, true, nil
}

// GetCollection загружает коллекцию, обновляет дату последнего доступа,
// сохраняет и возвращает её.
func (s *Store) GetCollection(id string) (*model.Collection, error) {
	if !isPlainName(id) {
		return nil, fmt.Errorf("%w: некорректный ключ %q", ErrNotFound, id)
	}

	unlock := s.locks.Lock(lockKey(sidecar.KindCollection, id))
	defer unlock()

	path := s.CollectionPath(id)
	if !sidecar.Exists(path) {
		return nil, fmt.Errorf("%w: коллекция %s", ErrNotFound, id)
	}

	coll, err := s.ReadCollection(path)
	if err != nil {
		return nil, err
	}

	coll.Touch(s.now())
	if err := sidecar.Write(path, coll); err != nil {
		return nil, classify(err)
	}

	return coll, nil
}

// ReadCollection читает коллекцию из sidecar-файла без побочных эффектов.
func (s *Store) ReadCollection(path string) (*model.Collection, error) {
	coll, err := sidecar.Read[model.Collection](path)
	if err != nil {
		return nil, classify(err)
	}
	return coll, nil
}

// ListCollections перечисляет все коллекции; некорректные пропускаются.
func (s *Store) ListCollections() ([]*model.Collection, error) {
	scanned, err := sidecar.Scan[model.Collection](s.root, sidecar.KindCollection)
	if err != nil {
		return nil, classify(err)
	}
	return scanned.Items, nil
}

// anchorDir возвращает директорию якоря коллекции.
func (s *Store) anchorDir(anchorPath string) (string, error) {
	abs := s.resolve(anchorPath)
	info, err := os.Stat(abs)
	if err != nil {
		return "", classify(err)
	}
	if info.IsDir() {
		return abs, nil
	}
	return filepath.Dir(abs), nil
}
