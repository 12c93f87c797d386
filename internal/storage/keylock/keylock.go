// Пакет keylock — взаимное исключение по ключу записи.
// Защищает цикл чтение → изменение → запись одного sidecar-файла
// от потери обновлений при параллельных запросах внутри процесса.
// Мьютексы создаются по требованию и удаляются, когда ключ освобождён.
package keylock

import "sync"

// entry — мьютекс ключа со счётчиком ожидающих.
type entry struct {
	mu   sync.Mutex
	refs int
}

// Locker — набор мьютексов, адресуемых строковым ключом.
// Нулевое значение готово к использованию.
type Locker struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New создаёт пустой Locker.
func New() *Locker {
	return &Locker{entries: make(map[string]*entry)}
}

// Lock захватывает мьютекс ключа и возвращает функцию освобождения.
func (l *Locker) Lock(key string) (unlock func()) {
	l.mu.Lock()
	if l.entries == nil {
		l.entries = make(map[string]*entry)
	}
	e, ok := l.entries[key]
	if !ok {
		e = &entry{}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()

			l.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(l.entries, key)
			}
			l.mu.Unlock()
		})
	}
}

// Len возвращает количество ключей, захваченных или ожидающих захвата.
func (l *Locker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
