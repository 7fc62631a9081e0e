package repo

import "errors"

// Общие ошибки репозиториев.
var (
	// ErrNotFound — запись не найдена в БД.
	ErrNotFound = errors.New("not found")

	// ErrNotConfigured — база не настроена (STATE_DB_URL пуст).
	ErrNotConfigured = errors.New("database not configured")
)
