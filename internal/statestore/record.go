package statestore

import (
	"bytes"
	"context"
)

// Snapshot — сырое содержимое записи на момент чтения.
type Snapshot struct {
	// Content — байты записи.
	Content []byte

	// Exists — запись существует. Пустой файл и отсутствующий файл различаются.
	Exists bool
}

// Equal сравнивает снимки побайтово, с учётом существования.
func (s Snapshot) Equal(other Snapshot) bool {
	if s.Exists != other.Exists {
		return false
	}
	return bytes.Equal(s.Content, other.Content)
}

// Record — долговременная запись состояния.
//
// CompareAndSwap заменяет содержимое на next, только если текущее содержимое
// совпадает с expected; иначе возвращает ErrStateConflict и ничего не пишет.
// Читатель никогда не должен видеть частично записанное содержимое.
type Record interface {
	// Location возвращает путь или ключ записи (для логов и ошибок).
	Location() string

	// Read читает текущее содержимое. Отсутствие записи — не ошибка.
	Read(ctx context.Context) (Snapshot, error)

	// CompareAndSwap атомарно заменяет содержимое.
	CompareAndSwap(ctx context.Context, expected Snapshot, next []byte) error
}
