// Пакет sidecar — чтение и запись sidecar-файлов записей.
// Каждая запись хранится отдельным JSON-файлом "<ключ><суффикс>" рядом
// с данными, которые она описывает. Суффикс определяется видом записи (Kind):
// ".meta.json" для метаданных файлов и ".collection.json" для коллекций.
// Суффиксы разных видов не должны совпадать или быть окончанием друг друга,
// иначе ключ коллекции и отпечаток файла могут попасть в один файл.
// Все операции записи выполняются атомарно: temp → fsync → rename.
package sidecar

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Kind — вид записи, задаёт пространство имён sidecar-файлов.
type Kind struct {
	// Name — имя вида для логов и метрик
	Name string
	// Suffix — суффикс имени файла
	Suffix string
}

var (
	// KindMetadata — sidecar метаданных файла: "<hash>.meta.json".
	KindMetadata = Kind{Name: "metadata", Suffix: ".meta.json"}
	// KindCollection — sidecar коллекции: "<id>.collection.json".
	KindCollection = Kind{Name: "collection", Suffix: ".collection.json"}
)

// Kinds — все зарегистрированные виды записей.
var Kinds = []Kind{KindMetadata, KindCollection}

// maxSidecarSize — максимальный размер читаемого sidecar-файла (1 МБ).
// Коллекции с тысячами участников укладываются с запасом.
const maxSidecarSize = 1 << 20

// ErrMalformed — содержимое sidecar-файла не является корректной записью.
var ErrMalformed = errors.New("некорректная запись")

// Validator — запись, умеющая проверить обязательные поля после разбора.
type Validator interface {
	Validate() error
}

// Path возвращает путь к sidecar-файлу записи key вида kind в директории dir.
// Пример: Path("/data", KindMetadata, "D76A…") → "/data/D76A….meta.json"
func Path(dir string, kind Kind, key string) string {
	return filepath.Join(dir, key+kind.Suffix)
}

// KeyFromPath возвращает ключ записи из пути sidecar-файла.
func KeyFromPath(path string, kind Kind) string {
	return strings.TrimSuffix(filepath.Base(path), kind.Suffix)
}

// Is проверяет, является ли путь sidecar-файлом вида kind.
func Is(path string, kind Kind) bool {
	return strings.HasSuffix(path, kind.Suffix)
}

// Write атомарно записывает запись в sidecar-файл.
// Паттерн: JSON → temp файл в той же директории → fsync → atomic rename.
// Временный файл не совпадает с шаблоном "*<суффикс>" и не виден Scan.
func Write(path string, record any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("ошибка сериализации записи: %w", err)
	}

	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("ошибка создания временного файла в %s: %w", dir, err)
	}
	tmpPath := f.Name()

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка записи: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Chmod(tmpPath, 0o640); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка установки прав: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return nil
}

// Read читает и десериализует запись из sidecar-файла.
// Ошибки открытия возвращаются как есть (os.ErrNotExist и т.д.),
// ошибки разбора оборачиваются в ErrMalformed с диагностикой парсера.
func Read[T any](path string) (*T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения %s: %w", path, err)
	}
	defer f.Close()

	dec := json.NewDecoder(&limitedReader{f: f, n: maxSidecarSize})
	var record T
	if err := dec.Decode(&record); err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrMalformed, path, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w %s: лишние данные после JSON", ErrMalformed, path)
	}
	if v, ok := any(&record).(Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, fmt.Errorf("%w %s: %w", ErrMalformed, path, err)
		}
	}

	return &record, nil
}

// Delete удаляет sidecar-файл.
// Возвращает ошибку, удовлетворяющую os.IsNotExist, если файла уже нет:
// вызывающий код сам решает, считать ли это ошибкой.
func Delete(path string) error {
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("ошибка удаления %s: %w", path, err)
	}
	return nil
}

// Exists проверяет существование sidecar-файла.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// ScanResult — результат сканирования директории.
type ScanResult[T any] struct {
	// Items — успешно прочитанные записи
	Items []*T
	// Paths — пути к sidecar-файлам, в том же порядке, что Items
	Paths []string
	// Skipped — пути к файлам, которые не удалось прочитать
	Skipped []string
}

// Scan сканирует директорию и читает все sidecar-файлы вида kind.
// Не рекурсивный. Нечитаемые и некорректные файлы пропускаются
// и перечисляются в Skipped. Порядок — порядок перечисления ФС.
func Scan[T any](dir string, kind Kind) (*ScanResult[T], error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("ошибка сканирования директории %s: %w", dir, err)
	}

	result := &ScanResult[T]{}
	for _, e := range entries {
		if !e.Type().IsRegular() || !Is(e.Name(), kind) || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		record, err := Read[T](path)
		if err != nil {
			result.Skipped = append(result.Skipped, path)
			continue
		}
		result.Items = append(result.Items, record)
		result.Paths = append(result.Paths, path)
	}

	return result, nil
}

// limitedReader ограничивает объём читаемых данных и сообщает об
// превышении ошибкой, а не обрезанным JSON.
type limitedReader struct {
	f *os.File
	n int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.n <= 0 {
		return 0, fmt.Errorf("размер превышает %d байт", maxSidecarSize)
	}
	if int64(len(p)) > l.n {
		p = p[:l.n]
	}
	n, err := l.f.Read(p)
	l.n -= int64(n)
	return n, err
}
