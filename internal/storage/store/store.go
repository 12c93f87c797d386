// Пакет store — слой хранения tmpshare: метаданные файлов, коллекции
// и очистка по возрасту.
//
// Все записи — sidecar-файлы в корне хранилища (Config.Root):
//   - "<hash>.meta.json" описывает файл "<root>/<file_name>"
//   - "<id>.collection.json" описывает коллекцию
//
// Кэша в памяти нет: каждая операция читает состояние с диска.
// Цикл чтение → изменение → запись одного ключа выполняется под
// мьютексом ключа (keylock), перезапись sidecar-файла атомарна.
package store

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/bigkaa/goartstore/tmpshare/internal/domain/model"
	"github.com/bigkaa/goartstore/tmpshare/internal/storage/hasher"
	"github.com/bigkaa/goartstore/tmpshare/internal/storage/keylock"
	"github.com/bigkaa/goartstore/tmpshare/internal/storage/sidecar"
)

// Config — параметры хранилища.
type Config struct {
	// Root — корневая директория хранилища (обязательный)
	Root string
	// Now — источник текущего времени (по умолчанию time.Now)
	Now func() time.Time
	// NewID — генератор идентификаторов коллекций (по умолчанию UUID v4)
	NewID func() string
	// Logger — логгер (по умолчанию slog.Default())
	Logger *slog.Logger
}

// Store — хранилище записей в одной корневой директории.
// Несколько Store с разными корнями независимы.
type Store struct {
	root   string
	now    func() time.Time
	newID  func() string
	locks  *keylock.Locker
	logger *slog.Logger
}

// New создаёт хранилище. Создаёт корневую директорию, если её нет.
func New(cfg Config) (*Store, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("%w: не задан корень хранилища", ErrInvalidArgument)
	}

	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("не удалось определить путь %s: %w", cfg.Root, err)
	}

	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию хранилища %s: %w", root, err)
	}

	s := &Store{
		root:   root,
		now:    cfg.Now,
		newID:  cfg.NewID,
		locks:  keylock.New(),
		logger: cfg.Logger,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With(slog.String("component", "store"))

	return s, nil
}

// Root возвращает абсолютный путь корня хранилища.
func (s *Store) Root() string {
	return s.root
}

// MetadataPath возвращает путь к sidecar-файлу метаданных.
func (s *Store) MetadataPath(hash string) string {
	return sidecar.Path(s.root, sidecar.KindMetadata, hash)
}

// CollectionPath возвращает путь к sidecar-файлу коллекции.
func (s *Store) CollectionPath(id string) string {
	return sidecar.Path(s.root, sidecar.KindCollection, id)
}

// FilePath возвращает путь к файлу, который описывает запись.
// Возвращает ошибку, если file_name не является простым именем файла
// (например, подменённый sidecar с "../").
func (s *Store) FilePath(meta *model.Metadata) (string, error) {
	if !isPlainName(meta.FileName) {
		return "", fmt.Errorf("%w: недопустимое имя файла %q", ErrMalformed, meta.FileName)
	}
	return filepath.Join(s.root, meta.FileName), nil
}

// Add вычисляет отпечаток файла, создаёт запись Metadata и сохраняет её
// рядом с файлом в "<hash>.meta.json".
//
// Относительный path разрешается от корня хранилища; файл должен лежать
// непосредственно в корне. Повторное добавление того же содержимого
// перезаписывает прежнюю запись (имя и даты берутся из нового вызова).
func (s *Store) Add(path string) (*model.Metadata, error) {
	abs := s.resolve(path)

	hash, err := hasher.Fingerprint(abs)
	if err != nil {
		return nil, classify(err)
	}

	fileName := filepath.Base(abs)
	if !isPlainName(fileName) {
		return nil, fmt.Errorf("%w: у пути %s нет имени файла", ErrNotFound, path)
	}
	if !utf8.ValidString(fileName) {
		return nil, fmt.Errorf("%w: имя файла %q не является корректным UTF-8", ErrNotFound, fileName)
	}
	if filepath.Dir(abs) != s.root {
		return nil, fmt.Errorf("%w: %s (корень %s)", ErrOutsideRoot, abs, s.root)
	}

	unlock := s.locks.Lock(lockKey(sidecar.KindMetadata, hash))
	defer unlock()

	meta := model.NewMetadata(fileName, hash, s.now())
	if err := sidecar.Write(s.MetadataPath(hash), meta); err != nil {
		return nil, classify(err)
	}

	s.logger.Debug("Файл добавлен",
		slog.String("hash", hash),
		slog.String("file_name", fileName),
	)
	return meta, nil
}

// GetMetadata загружает запись по отпечатку, обновляет дату последнего
// доступа, сохраняет запись и возвращает её.
func (s *Store) GetMetadata(hash string) (*model.Metadata, error) {
	if !isPlainName(hash) {
		return nil, fmt.Errorf("%w: некорректный ключ %q", ErrNotFound, hash)
	}

	unlock := s.locks.Lock(lockKey(sidecar.KindMetadata, hash))
	defer unlock()

	path := s.MetadataPath(hash)
	if !sidecar.Exists(path) {
		return nil, fmt.Errorf("%w: запись %s", ErrNotFound, hash)
	}

	meta, err := s.ReadMetadata(path)
	if err != nil {
		return nil, err
	}

	meta.Touch(s.now())
	if err := sidecar.Write(path, meta); err != nil {
		return nil, classify(err)
	}

	return meta, nil
}

// ReadMetadata читает запись из sidecar-файла без побочных эффектов.
// Возвращает ErrMalformed с диагностикой парсера для некорректного содержимого.
func (s *Store) ReadMetadata(path string) (*model.Metadata, error) {
	meta, err := sidecar.Read[model.Metadata](path)
	if err != nil {
		return nil, classify(err)
	}
	return meta, nil
}

// ListResult — результат перечисления записей.
type ListResult struct {
	// Items — корректные записи, порядок — порядок перечисления ФС
	Items []*model.Metadata
	// Skipped — количество нечитаемых sidecar-файлов
	Skipped int

	paths []string
}

// List перечисляет все записи Metadata в корне хранилища.
// Некорректные sidecar-файлы пропускаются без ошибки.
func (s *Store) List() ([]*model.Metadata, error) {
	result, err := s.Scan()
	if err != nil {
		return nil, err
	}
	return result.Items, nil
}

// Scan — как List, но дополнительно сообщает количество пропущенных файлов.
func (s *Store) Scan() (*ListResult, error) {
	scanned, err := sidecar.Scan[model.Metadata](s.root, sidecar.KindMetadata)
	if err != nil {
		return nil, classify(err)
	}

	for _, p := range scanned.Skipped {
		s.logger.Warn("Пропущена некорректная запись", slog.String("path", p))
	}

	return &ListResult{
		Items:   scanned.Items,
		Skipped: len(scanned.Skipped),
		paths:   scanned.Paths,
	}, nil
}

// resolve приводит путь к абсолютному; относительный путь — от корня.
func (s *Store) resolve(path string) string {
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.root, path)
	}
	return filepath.Clean(path)
}

// lockKey — ключ мьютекса записи с учётом вида.
func lockKey(kind sidecar.Kind, key string) string {
	return kind.Name + ":" + key
}

// isPlainName проверяет, что строка — простое имя файла без разделителей.
func isPlainName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`+"\x00")
}

// isNotExist — os.IsNotExist с учётом обёрнутых ошибок.
func isNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
