package model

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

// TestMetadata_ParseLegacyJSON проверяет чтение записи в исходном формате.
func TestMetadata_ParseLegacyJSON(t *testing.T) {
	raw := `{
		"file_name": "TODO.md",
		"hash": "D76A099F5201CBD3C6DADDBDB56C1CF5FF8210198B862AFB92E919D492DC3751",
		"create_date": "2018-04-01 20:40:00",
		"last_access_date": "2018-04-01 20:40:00"
	}`

	var m Metadata
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatalf("ошибка разбора: %v", err)
	}

	if m.FileName != "TODO.md" {
		t.Errorf("FileName: ожидалось TODO.md, получено %q", m.FileName)
	}
	want := time.Date(2018, 4, 1, 20, 40, 0, 0, time.UTC)
	if !m.CreateDate.Equal(want) {
		t.Errorf("CreateDate: ожидалось %v, получено %v", want, m.CreateDate.Time)
	}
}

// TestTimestamp_MarshalFormat проверяет формат и усечение до секунд.
func TestTimestamp_MarshalFormat(t *testing.T) {
	ts := NewTimestamp(time.Date(2024, 2, 29, 23, 59, 58, 999_000_000, time.UTC))

	data, err := json.Marshal(ts)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `"2024-02-29 23:59:58"` {
		t.Errorf("ожидалось \"2024-02-29 23:59:58\", получено %s", data)
	}
}

// TestTimestamp_RejectsOtherFormats проверяет отказ на чужих форматах дат.
func TestTimestamp_RejectsOtherFormats(t *testing.T) {
	cases := []string{
		`"2018-04-01T20:40:00Z"`,
		`"2018-04-01"`,
		`"01.04.2018 20:40:00"`,
		`1522615200`,
		`null`,
	}

	for _, c := range cases {
		var ts Timestamp
		if err := json.Unmarshal([]byte(c), &ts); err == nil {
			t.Errorf("%s: ожидалась ошибка разбора", c)
		}
	}
}

// TestMetadata_RoundTrip проверяет, что запись совпадает после записи и чтения.
func TestMetadata_RoundTrip(t *testing.T) {
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	m := NewMetadata("hello.txt", "ABC", now)
	m.Touch(now.Add(90 * time.Second))

	data, err := json.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	var got Metadata
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}

	if got.FileName != m.FileName || got.Hash != m.Hash {
		t.Errorf("поля не совпадают: %+v != %+v", got, *m)
	}
	if !got.CreateDate.Equal(m.CreateDate.Time) || !got.LastAccessDate.Equal(m.LastAccessDate.Time) {
		t.Errorf("даты не совпадают: %+v != %+v", got, *m)
	}
}

// TestNewCollection_PreservesOrderAndDuplicates проверяет порядок и дубликаты.
func TestNewCollection_PreservesOrderAndDuplicates(t *testing.T) {
	now := time.Now()
	a := NewMetadata("a", "AAA", now)
	b := NewMetadata("b", "BBB", now)

	c := NewCollection("id-1", []*Metadata{b, a, b}, now)

	if got := strings.Join(c.Entries, ","); got != "BBB,AAA,BBB" {
		t.Errorf("Entries: ожидалось BBB,AAA,BBB, получено %s", got)
	}
	if !c.CreateDate.Equal(c.LastAccessDate.Time) {
		t.Error("CreateDate и LastAccessDate должны совпадать при создании")
	}
}

// TestCreatedBefore проверяет строгое сравнение с порогом.
func TestCreatedBefore(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMetadata("a", "AAA", now)

	if m.CreatedBefore(now) {
		t.Error("запись не должна считаться созданной раньше самой себя")
	}
	if !m.CreatedBefore(now.Add(time.Second)) {
		t.Error("запись должна считаться созданной раньше now+1s")
	}
}
