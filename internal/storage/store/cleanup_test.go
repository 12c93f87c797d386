package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bigkaa/goartstore/tmpshare/internal/domain/model"
	"github.com/bigkaa/goartstore/tmpshare/internal/storage/sidecar"
)

const day = 24 * time.Hour

// TestCleanup_Threshold проверяет границу возраста.
func TestCleanup_Threshold(t *testing.T) {
	s, clock := newTestStore(t)
	writeFile(t, s, "hello.txt", "Hello World\n")
	if _, err := s.Add("hello.txt"); err != nil {
		t.Fatal(err)
	}
	clock.Advance(3 * day)
	writeFile(t, s, "other.txt", "other\n")
	if _, err := s.Add("other.txt"); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Hour)

	result, err := s.Cleanup(2)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if result.Checked != 1 || result.MetadataDeleted != 1 || result.FilesDeleted != 1 {
		t.Errorf("ожидалось удаление одной записи, получено %+v", result)
	}
	if !result.Threshold.Equal(clock.Now().Add(-2 * day)) {
		t.Errorf("Threshold: %v", result.Threshold)
	}

	items, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].FileName != "other.txt" {
		t.Errorf("должна остаться только other.txt, получено %v", items)
	}
}

// TestCleanup_ZeroKeepsCurrentSecond проверяет строгое сравнение:
// запись, созданная в ту же секунду, что и вызов, не удаляется.
func TestCleanup_ZeroKeepsCurrentSecond(t *testing.T) {
	s, _ := newTestStore(t)
	writeFile(t, s, "hello.txt", "Hello World\n")
	if _, err := s.Add("hello.txt"); err != nil {
		t.Fatal(err)
	}

	result, err := s.Cleanup(0)
	if err != nil {
		t.Fatal(err)
	}
	if result.MetadataDeleted != 0 {
		t.Errorf("запись текущей секунды удалена: %+v", result)
	}
}

// TestCleanup_NegativeDays проверяет отказ для отрицательного возраста.
func TestCleanup_NegativeDays(t *testing.T) {
	s, _ := newTestStore(t)
	if _, err := s.Cleanup(-1); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("ожидался ErrInvalidArgument, получено %v", err)
	}
}

// TestCleanup_Collections проверяет удаление старых коллекций.
func TestCleanup_Collections(t *testing.T) {
	s, clock := newTestStore(t)
	members := addTestFiles(t, s)
	old, err := s.AddCollection("", members)
	if err != nil {
		t.Fatal(err)
	}
	clock.Advance(2 * day)
	fresh, err := s.AddCollection("", members[:1])
	if err != nil {
		t.Fatal(err)
	}

	result, err := s.Cleanup(1)
	if err != nil {
		t.Fatal(err)
	}
	if result.CollectionsDeleted != 1 {
		t.Errorf("CollectionsDeleted: ожидалось 1, получено %d", result.CollectionsDeleted)
	}
	if _, err := s.GetCollection(old.Hash); !errors.Is(err, ErrNotFound) {
		t.Errorf("старая коллекция не удалена: %v", err)
	}
	if _, err := s.GetCollection(fresh.Hash); err != nil {
		t.Errorf("новая коллекция удалена: %v", err)
	}
}

// TestCleanup_SharedFileKept проверяет, что файл, на который ссылается
// остающаяся запись, не удаляется.
func TestCleanup_SharedFileKept(t *testing.T) {
	s, clock := newTestStore(t)
	path := writeFile(t, s, "notes.txt", "Hello World\n")
	if _, err := s.Add("notes.txt"); err != nil {
		t.Fatal(err)
	}
	clock.Advance(2 * day)
	writeFile(t, s, "notes.txt", "other\n")
	if _, err := s.Add("notes.txt"); err != nil {
		t.Fatal(err)
	}

	result, err := s.Cleanup(1)
	if err != nil {
		t.Fatal(err)
	}
	if result.MetadataDeleted != 1 || result.FilesDeleted != 0 {
		t.Errorf("ожидалось удаление только записи, получено %+v", result)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("общий файл удалён: %v", err)
	}
	if sidecar.Exists(s.MetadataPath(helloHash)) {
		t.Error("старая запись должна быть удалена")
	}
}

// TestCleanup_SharedFileBothExpired проверяет, что файл двух истёкших
// записей удаляется один раз и без ошибки.
func TestCleanup_SharedFileBothExpired(t *testing.T) {
	s, clock := newTestStore(t)
	path := writeFile(t, s, "notes.txt", "Hello World\n")
	first, err := s.Add("notes.txt")
	if err != nil {
		t.Fatal(err)
	}
	writeFile(t, s, "notes.txt", "other\n")
	second, err := s.Add("notes.txt")
	if err != nil {
		t.Fatal(err)
	}
	clock.Advance(2 * day)

	result, err := s.Cleanup(1)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if result.Checked != 2 || result.MetadataDeleted != 2 || result.FilesDeleted != 1 || result.Failed != 0 {
		t.Errorf("ожидалось удаление двух записей и одного файла, получено %+v", result)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("файл не удалён: %v", err)
	}
	for _, hash := range []string{first.Hash, second.Hash} {
		if sidecar.Exists(s.MetadataPath(hash)) {
			t.Errorf("запись %s не удалена", hash)
		}
	}
}

// TestCleanup_MissingFile проверяет запись, файл которой уже удалён.
func TestCleanup_MissingFile(t *testing.T) {
	s, clock := newTestStore(t)
	path := writeFile(t, s, "hello.txt", "Hello World\n")
	if _, err := s.Add("hello.txt"); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	clock.Advance(2 * day)

	result, err := s.Cleanup(1)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("ожидался ErrNotFound в итоговой ошибке, получено %v", err)
	}
	if result.MetadataDeleted != 1 || result.FilesDeleted != 0 {
		t.Errorf("запись без файла должна быть удалена: %+v", result)
	}
	if sidecar.Exists(s.MetadataPath(helloHash)) {
		t.Error("sidecar должен быть удалён")
	}
}

// TestCleanup_AggregatesErrors проверяет, что ошибка удаления одного файла
// не прерывает проход.
func TestCleanup_AggregatesErrors(t *testing.T) {
	s, clock := newTestStore(t)
	created := clock.Now()

	// Непустая директория вместо файла: os.Remove вернёт ошибку
	for _, name := range []string{"busy-a", "busy-b"} {
		dir := filepath.Join(s.Root(), name)
		if err := os.MkdirAll(filepath.Join(dir, "inner"), 0o755); err != nil {
			t.Fatal(err)
		}
		hash := name + "-HASH"
		if err := sidecar.Write(s.MetadataPath(hash), model.NewMetadata(name, hash, created)); err != nil {
			t.Fatal(err)
		}
	}
	path := writeFile(t, s, "hello.txt", "Hello World\n")
	if _, err := s.Add("hello.txt"); err != nil {
		t.Fatal(err)
	}
	clock.Advance(2 * day)

	result, err := s.Cleanup(1)
	if !errors.Is(err, ErrIOFailure) {
		t.Fatalf("ожидался ErrIOFailure, получено %v", err)
	}
	if result.Failed != 2 || result.MetadataDeleted != 1 {
		t.Errorf("ожидалось 2 ошибки и 1 удаление, получено %+v", result)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("hello.txt должен быть удалён несмотря на ошибки")
	}
	for _, name := range []string{"busy-a", "busy-b"} {
		if !sidecar.Exists(s.MetadataPath(name + "-HASH")) {
			t.Errorf("запись %s должна остаться для повторной попытки", name)
		}
	}
}

// TestCleanup_MalformedLeftAlone проверяет, что некорректные записи
// учитываются, но не удаляются.
func TestCleanup_MalformedLeftAlone(t *testing.T) {
	s, _ := newTestStore(t)
	broken := writeFile(t, s, "BROKEN.meta.json", "garbage")

	result, err := s.Cleanup(0)
	if err != nil {
		t.Fatal(err)
	}
	if result.Malformed != 1 {
		t.Errorf("Malformed: ожидалось 1, получено %d", result.Malformed)
	}
	if _, err := os.Stat(broken); err != nil {
		t.Errorf("некорректный sidecar удалён: %v", err)
	}
}

// TestCleanup_PathTraversal проверяет, что подменённый file_name не
// приводит к удалению файла вне корня.
func TestCleanup_PathTraversal(t *testing.T) {
	s, clock := newTestStore(t)
	victim := filepath.Join(filepath.Dir(s.Root()), "victim.txt")
	if err := os.WriteFile(victim, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	meta := model.NewMetadata("../victim.txt", "EVIL", clock.Now())
	if err := sidecar.Write(s.MetadataPath("EVIL"), meta); err != nil {
		t.Fatal(err)
	}
	clock.Advance(2 * day)

	result, err := s.Cleanup(1)
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("ожидался ErrMalformed, получено %v", err)
	}
	if result.Failed != 1 {
		t.Errorf("Failed: ожидалось 1, получено %d", result.Failed)
	}
	if _, err := os.Stat(victim); err != nil {
		t.Errorf("файл вне корня удалён: %v", err)
	}
}

// TestExpireMetadata_LostRace проверяет пропуск записи, удалённой или
// пересозданной после снимка.
func TestExpireMetadata_LostRace(t *testing.T) {
	s, clock := newTestStore(t)
	threshold := clock.Now()

	res, err := s.expireMetadata(s.MetadataPath(helloHash), threshold, false)
	if err != nil || res != outcomeSkipped {
		t.Errorf("удалённая запись: ожидался пропуск, получено %v, %v", res, err)
	}

	path := writeFile(t, s, "hello.txt", "Hello World\n")
	clock.Advance(time.Hour)
	if _, err := s.Add("hello.txt"); err != nil {
		t.Fatal(err)
	}

	res, err = s.expireMetadata(s.MetadataPath(helloHash), threshold, false)
	if err != nil || res != outcomeSkipped {
		t.Errorf("пересозданная запись: ожидался пропуск, получено %v, %v", res, err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("файл пересозданной записи удалён: %v", err)
	}
}

// TestCleanup_SubSecondClock проверяет сравнение с точным временем вызова:
// запись текущей секунды старше момента вызова с долями секунды.
func TestCleanup_SubSecondClock(t *testing.T) {
	s, clock := newTestStore(t)
	writeFile(t, s, "hello.txt", "Hello World\n")
	if _, err := s.Add("hello.txt"); err != nil {
		t.Fatal(err)
	}
	clock.Advance(900 * time.Millisecond)

	result, err := s.Cleanup(0)
	if err != nil {
		t.Fatal(err)
	}
	if result.MetadataDeleted != 1 || result.FilesDeleted != 1 {
		t.Errorf("запись, созданная до вызова, не удалена: %+v", result)
	}
}
