// Пакет model — доменные модели tmpshare.
// Metadata и Collection одновременно являются in-memory представлением
// и форматом sidecar-файлов (*.meta.json, *.collection.json) на диске.
// Имена JSON-полей — часть формата хранения, менять их нельзя.
package model

import (
	"fmt"
	"time"
)

// TimestampLayout — формат дат в sidecar-файлах: "YYYY-MM-DD HH:MM:SS".
const TimestampLayout = "2006-01-02 15:04:05"

// Timestamp — момент времени с точностью до секунды (UTC).
// Сериализуется строго в формате TimestampLayout, любой другой формат
// при чтении — ошибка.
type Timestamp struct {
	time.Time
}

// NewTimestamp усекает t до секунд и приводит к UTC.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC().Truncate(time.Second)}
}

// String возвращает дату в формате TimestampLayout.
func (ts Timestamp) String() string {
	return ts.UTC().Format(TimestampLayout)
}

// MarshalJSON реализует json.Marshaler.
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(`"` + ts.String() + `"`), nil
}

// UnmarshalJSON реализует json.Unmarshaler.
func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("дата должна быть строкой формата %q, получено %s", TimestampLayout, data)
	}
	t, err := time.ParseInLocation(TimestampLayout, string(data[1:len(data)-1]), time.UTC)
	if err != nil {
		return fmt.Errorf("некорректная дата %s: %w", data, err)
	}
	ts.Time = t
	return nil
}

// Metadata — запись об одном опубликованном файле.
// Ключ записи — Hash (отпечаток содержимого), вычисляется один раз при создании.
type Metadata struct {
	// FileName — имя файла (последний сегмент пути)
	FileName string `json:"file_name"`

	// Hash — SHA-256 содержимого, 64 символа в верхнем регистре
	Hash string `json:"hash"`

	// CreateDate — дата создания записи
	CreateDate Timestamp `json:"create_date"`

	// LastAccessDate — дата последнего успешного получения записи
	LastAccessDate Timestamp `json:"last_access_date"`
}

// NewMetadata создаёт запись с CreateDate = LastAccessDate = now.
func NewMetadata(fileName, hash string, now time.Time) *Metadata {
	ts := NewTimestamp(now)
	return &Metadata{
		FileName:       fileName,
		Hash:           hash,
		CreateDate:     ts,
		LastAccessDate: ts,
	}
}

// Touch обновляет дату последнего доступа.
func (m *Metadata) Touch(now time.Time) {
	m.LastAccessDate = NewTimestamp(now)
}

// CreatedBefore проверяет, создана ли запись строго раньше threshold.
func (m *Metadata) CreatedBefore(threshold time.Time) bool {
	return m.CreateDate.Before(threshold)
}

// String — формат вывода CLI: "<hash>: <file_name>".
func (m *Metadata) String() string {
	return m.Hash + ": " + m.FileName
}

// Collection — именованная упорядоченная группа файлов.
// Hash — случайный идентификатор (UUID), не зависит от состава Entries.
// Entries — слабые ссылки: запись Metadata может быть уже удалена.
type Collection struct {
	Hash           string    `json:"hash"`
	Entries        []string  `json:"entries"`
	CreateDate     Timestamp `json:"create_date"`
	LastAccessDate Timestamp `json:"last_access_date"`
}

// NewCollection создаёт коллекцию из хэшей участников в заданном порядке.
// Дубликаты сохраняются.
func NewCollection(id string, members []*Metadata, now time.Time) *Collection {
	entries := make([]string, 0, len(members))
	for _, m := range members {
		entries = append(entries, m.Hash)
	}
	ts := NewTimestamp(now)
	return &Collection{
		Hash:           id,
		Entries:        entries,
		CreateDate:     ts,
		LastAccessDate: ts,
	}
}

// Touch обновляет дату последнего доступа.
func (c *Collection) Touch(now time.Time) {
	c.LastAccessDate = NewTimestamp(now)
}

// CreatedBefore проверяет, создана ли коллекция строго раньше threshold.
func (c *Collection) CreatedBefore(threshold time.Time) bool {
	return c.CreateDate.Before(threshold)
}

// Validate проверяет наличие обязательных полей после разбора.
func (m *Metadata) Validate() error {
	switch {
	case m.FileName == "":
		return fmt.Errorf("отсутствует поле file_name")
	case m.Hash == "":
		return fmt.Errorf("отсутствует поле hash")
	case m.CreateDate.IsZero():
		return fmt.Errorf("отсутствует поле create_date")
	case m.LastAccessDate.IsZero():
		return fmt.Errorf("отсутствует поле last_access_date")
	}
	return nil
}

// Validate проверяет наличие обязательных полей после разбора.
func (c *Collection) Validate() error {
	switch {
	case c.Hash == "":
		return fmt.Errorf("отсутствует поле hash")
	case c.Entries == nil:
		return fmt.Errorf("отсутствует поле entries")
	case c.CreateDate.IsZero():
		return fmt.Errorf("отсутствует поле create_date")
	case c.LastAccessDate.IsZero():
		return fmt.Errorf("отсутствует поле last_access_date")
	}
	return nil
}
