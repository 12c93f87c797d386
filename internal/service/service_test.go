package service

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bigkaa/goartstore/tmpshare/internal/storage/store"
)

const helloHash = "D2A84F4B8B650937EC8F73CD8BE2C74ADD5A911BA64DF27458ED8229DA804A26"

// testLogger — логгер для тестов, выводящий только ошибки.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeClock — управляемый источник времени.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// setupStore создаёт хранилище во временной директории с управляемым временем.
func setupStore(t *testing.T) (*store.Store, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)}
	st, err := store.New(store.Config{Root: t.TempDir(), Now: clock.Now, Logger: testLogger()})
	if err != nil {
		t.Fatalf("Ошибка создания хранилища: %v", err)
	}
	return st, clock
}

// addFile создаёт файл в корне и добавляет его в хранилище.
func addFile(t *testing.T, st *store.Store, name, content string) string {
	t.Helper()
	if err := os.WriteFile(filepath.Join(st.Root(), name), []byte(content), 0o640); err != nil {
		t.Fatalf("Ошибка создания тестового файла: %v", err)
	}
	meta, err := st.Add(name)
	if err != nil {
		t.Fatalf("Ошибка добавления %s: %v", name, err)
	}
	return meta.Hash
}
