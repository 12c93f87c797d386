package store

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bigkaa/goartstore/tmpshare/internal/storage/sidecar"
)

const (
	helloHash = "D2A84F4B8B650937EC8F73CD8BE2C74ADD5A911BA64DF27458ED8229DA804A26"
	emptyHash = "E3B0C44298FC1C149AFBF4C8996FB92427AE41E4649B934CA495991B7852B855"
)

// testClock — управляемый источник времени.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 10, 16, 9, 30, 15, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// newTestStore создаёт хранилище во временной директории.
func newTestStore(t *testing.T) (*Store, *testClock) {
	t.Helper()
	clock := newTestClock()
	s, err := New(Config{
		Root:   t.TempDir(),
		Now:    clock.Now,
		Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, clock
}

// writeFile создаёт файл в корне хранилища.
func writeFile(t *testing.T, s *Store, name, content string) string {
	t.Helper()
	path := filepath.Join(s.Root(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

// TestEndToEnd проверяет полный жизненный цикл записи.
func TestEndToEnd(t *testing.T) {
	s, clock := newTestStore(t)
	path := writeFile(t, s, "hello.txt", "Hello World\n")
	t0 := clock.Now()

	meta, err := s.Add(path)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if meta.Hash != helloHash {
		t.Errorf("Hash: ожидалось %s, получено %s", helloHash, meta.Hash)
	}
	if meta.FileName != "hello.txt" {
		t.Errorf("FileName: ожидалось hello.txt, получено %q", meta.FileName)
	}
	if !meta.CreateDate.Equal(t0) || !meta.LastAccessDate.Equal(t0) {
		t.Errorf("даты: ожидалось %v, получено %v / %v", t0, meta.CreateDate, meta.LastAccessDate)
	}

	onDisk, err := s.ReadMetadata(filepath.Join(s.Root(), helloHash+".meta.json"))
	if err != nil {
		t.Fatalf("ReadMetadata: %v", err)
	}
	if onDisk.FileName != meta.FileName || onDisk.Hash != meta.Hash ||
		!onDisk.CreateDate.Equal(t0) || !onDisk.LastAccessDate.Equal(t0) {
		t.Errorf("sidecar: ожидалось %+v, получено %+v", meta, onDisk)
	}

	clock.Advance(time.Minute)
	got, err := s.GetMetadata(helloHash)
	if err != nil {
		t.Fatalf("GetMetadata: %v", err)
	}
	if !got.LastAccessDate.Equal(t0.Add(time.Minute)) {
		t.Errorf("LastAccessDate: ожидалось %v, получено %v", t0.Add(time.Minute), got.LastAccessDate)
	}
	if got.FileName != meta.FileName || got.Hash != meta.Hash || !got.CreateDate.Equal(t0) {
		t.Errorf("остальные поля изменились: %+v", got)
	}

	items, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 1 || items[0].Hash != helloHash {
		t.Fatalf("List: ожидалась одна запись %s, получено %v", helloHash, items)
	}

	clock.Advance(time.Second)
	if _, err := s.Cleanup(9999); err != nil {
		t.Fatalf("Cleanup(9999): %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Cleanup(9999) удалил файл: %v", err)
	}
	if !sidecar.Exists(s.MetadataPath(helloHash)) {
		t.Error("Cleanup(9999) удалил запись")
	}

	result, err := s.Cleanup(0)
	if err != nil {
		t.Fatalf("Cleanup(0): %v", err)
	}
	if result.MetadataDeleted != 1 || result.FilesDeleted != 1 {
		t.Errorf("Cleanup(0): ожидалось 1/1 удалений, получено %+v", result)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("hello.txt должен быть удалён, err=%v", err)
	}
	if sidecar.Exists(s.MetadataPath(helloHash)) {
		t.Error("sidecar должен быть удалён")
	}
	if _, err := s.GetMetadata(helloHash); !errors.Is(err, ErrNotFound) {
		t.Errorf("после удаления ожидался ErrNotFound, получено %v", err)
	}
}

// TestNew_RequiresRoot проверяет обязательность корня.
func TestNew_RequiresRoot(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("ожидался ErrInvalidArgument, получено %v", err)
	}
}

// TestNew_CreatesRoot проверяет создание корневой директории.
func TestNew_CreatesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "a", "b")
	s, err := New(Config{Root: root})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if info, err := os.Stat(s.Root()); err != nil || !info.IsDir() {
		t.Errorf("корень не создан: %v", err)
	}
}

// TestAdd_EmptyFile проверяет добавление пустого файла.
func TestAdd_EmptyFile(t *testing.T) {
	s, _ := newTestStore(t)
	writeFile(t, s, "empty.bin", "")

	meta, err := s.Add("empty.bin")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if meta.Hash != emptyHash {
		t.Errorf("ожидалось %s, получено %s", emptyHash, meta.Hash)
	}

	again, err := s.Add("empty.bin")
	if err != nil {
		t.Fatalf("повторный Add: %v", err)
	}
	if again.Hash != meta.Hash {
		t.Error("отпечаток пустого файла не воспроизводится")
	}
}

// TestAdd_Errors проверяет ошибки добавления.
func TestAdd_Errors(t *testing.T) {
	s, _ := newTestStore(t)

	outside := filepath.Join(t.TempDir(), "outside.txt")
	if err := os.WriteFile(outside, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(s.Root(), "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, s, filepath.Join("sub", "nested.txt"), "x")

	tests := []struct {
		name string
		path string
		want error
	}{
		{"нет файла", "missing.txt", ErrNotFound},
		{"директория", "sub", ErrNotFound},
		{"вне корня", outside, ErrOutsideRoot},
		{"вложенный файл", filepath.Join("sub", "nested.txt"), ErrOutsideRoot},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Add(tt.path); !errors.Is(err, tt.want) {
				t.Errorf("ожидалось %v, получено %v", tt.want, err)
			}
		})
	}

	entries, _ := os.ReadDir(s.Root())
	for _, e := range entries {
		if sidecar.Is(e.Name(), sidecar.KindMetadata) {
			t.Errorf("после ошибок не должно быть записей, найдено %s", e.Name())
		}
	}
}

// TestAdd_SameContentOverwrites проверяет, что повторное добавление того же
// содержимого под другим именем перезаписывает запись.
func TestAdd_SameContentOverwrites(t *testing.T) {
	s, clock := newTestStore(t)
	writeFile(t, s, "a.txt", "Hello World\n")
	writeFile(t, s, "b.txt", "Hello World\n")

	if _, err := s.Add("a.txt"); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Hour)
	if _, err := s.Add("b.txt"); err != nil {
		t.Fatal(err)
	}

	got, err := s.ReadMetadata(s.MetadataPath(helloHash))
	if err != nil {
		t.Fatal(err)
	}
	if got.FileName != "b.txt" {
		t.Errorf("ожидалось b.txt, получено %q", got.FileName)
	}
	if !got.CreateDate.Equal(clock.Now()) {
		t.Errorf("CreateDate должна быть от второго вызова, получено %v", got.CreateDate)
	}
}

// TestGetMetadata_NotFound проверяет неизвестные и некорректные ключи.
func TestGetMetadata_NotFound(t *testing.T) {
	s, _ := newTestStore(t)

	for _, key := range []string{helloHash, "", "../etc", "a/b"} {
		if _, err := s.GetMetadata(key); !errors.Is(err, ErrNotFound) {
			t.Errorf("ключ %q: ожидался ErrNotFound, получено %v", key, err)
		}
	}
}

// TestGetMetadata_Malformed проверяет поведение на испорченном sidecar.
func TestGetMetadata_Malformed(t *testing.T) {
	s, _ := newTestStore(t)
	writeFile(t, s, helloHash+".meta.json", "{not json")

	if _, err := s.GetMetadata(helloHash); !errors.Is(err, ErrMalformed) {
		t.Errorf("ожидался ErrMalformed, получено %v", err)
	}
}

// TestGetMetadata_Concurrent проверяет, что параллельные обращения
// не портят запись.
func TestGetMetadata_Concurrent(t *testing.T) {
	s, clock := newTestStore(t)
	writeFile(t, s, "hello.txt", "Hello World\n")
	if _, err := s.Add("hello.txt"); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.GetMetadata(helloHash); err != nil {
				t.Errorf("GetMetadata: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := s.ReadMetadata(s.MetadataPath(helloHash))
	if err != nil {
		t.Fatalf("запись повреждена: %v", err)
	}
	if !got.LastAccessDate.Equal(clock.Now()) {
		t.Errorf("LastAccessDate: ожидалось %v, получено %v", clock.Now(), got.LastAccessDate)
	}
}

// TestReadMetadata проверяет чтение без побочных эффектов.
func TestReadMetadata(t *testing.T) {
	s, clock := newTestStore(t)
	writeFile(t, s, "hello.txt", "Hello World\n")
	meta, err := s.Add("hello.txt")
	if err != nil {
		t.Fatal(err)
	}

	clock.Advance(time.Hour)
	got, err := s.ReadMetadata(s.MetadataPath(helloHash))
	if err != nil {
		t.Fatal(err)
	}
	if !got.LastAccessDate.Equal(meta.LastAccessDate.Time) {
		t.Error("ReadMetadata не должен менять дату доступа")
	}

	if _, err := s.ReadMetadata(filepath.Join(s.Root(), "nope.meta.json")); !errors.Is(err, ErrNotFound) {
		t.Errorf("ожидался ErrNotFound, получено %v", err)
	}
}

// TestList_SkipsMalformed проверяет пропуск некорректных записей.
func TestList_SkipsMalformed(t *testing.T) {
	s, _ := newTestStore(t)
	writeFile(t, s, "hello.txt", "Hello World\n")
	writeFile(t, s, "other.txt", "other\n")
	if _, err := s.Add("hello.txt"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Add("other.txt"); err != nil {
		t.Fatal(err)
	}
	writeFile(t, s, "BROKEN.meta.json", "{}")
	writeFile(t, s, "GARBAGE.meta.json", "garbage")

	items, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("ожидалось 2 записи, получено %d", len(items))
	}

	scanned, err := s.Scan()
	if err != nil {
		t.Fatal(err)
	}
	if scanned.Skipped != 2 {
		t.Errorf("Skipped: ожидалось 2, получено %d", scanned.Skipped)
	}
}

// TestStores_Independent проверяет изоляцию хранилищ с разными корнями.
func TestStores_Independent(t *testing.T) {
	a, _ := newTestStore(t)
	b, _ := newTestStore(t)
	writeFile(t, a, "hello.txt", "Hello World\n")
	if _, err := a.Add("hello.txt"); err != nil {
		t.Fatal(err)
	}

	if _, err := b.GetMetadata(helloHash); !errors.Is(err, ErrNotFound) {
		t.Errorf("запись одного хранилища видна в другом: %v", err)
	}
}

// TestFilePath_RejectsTraversal проверяет защиту от подменённого file_name.
func TestFilePath_RejectsTraversal(t *testing.T) {
	s, _ := newTestStore(t)
	writeFile(t, s, "hello.txt", "Hello World\n")
	meta, err := s.Add("hello.txt")
	if err != nil {
		t.Fatal(err)
	}

	meta.FileName = "../secret"
	if _, err := s.FilePath(meta); !errors.Is(err, ErrMalformed) {
		t.Errorf("ожидался ErrMalformed, получено %v", err)
	}
}
