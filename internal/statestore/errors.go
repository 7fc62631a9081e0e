package statestore

import (
	"errors"
	"fmt"
)

// Ошибки хранилища состояния.
var (
	// ErrStateConflict — запись изменена другим писателем после последнего чтения.
	ErrStateConflict = errors.New("state record modified concurrently")

	// ErrStateFormat — содержимое записи не является mapping строк.
	ErrStateFormat = errors.New("invalid state record format")
)

// ConflictError — конфликт записи состояния с указанием места.
type ConflictError struct {
	Location string // путь или ключ записи
}

// Error реализует интерфейс error.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("state record %s has been modified", e.Location)
}

// Is позволяет проверять errors.Is(err, ErrStateConflict).
func (e *ConflictError) Is(target error) bool {
	return target == ErrStateConflict
}
