package statestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// tempSuffix — суффикс временного файла рядом с записью.
const tempSuffix = ".temp"

// FileRecord — запись состояния в файле.
//
// Запись идёт во временный файл в том же каталоге, затем rename поверх
// целевого пути. Rename атомарен в пределах одной файловой системы, поэтому
// читатель видит либо старое, либо новое содержимое целиком.
type FileRecord struct {
	path string
	perm fs.FileMode
}

// NewFileRecord создаёт FileRecord для пути.
func NewFileRecord(path string) *FileRecord {
	return &FileRecord{path: path, perm: 0o644}
}

// Location возвращает путь к файлу.
func (r *FileRecord) Location() string {
	return r.path
}

// TempPath возвращает путь временного файла.
func (r *FileRecord) TempPath() string {
	return r.path + tempSuffix
}

// Read читает файл. Отсутствующий файл даёт пустой Snapshot.
func (r *FileRecord) Read(_ context.Context) (Snapshot, error) {
	content, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Snapshot{}, nil
		}
		return Snapshot{}, fmt.Errorf("read state file %s: %w", r.path, err)
	}
	return Snapshot{Content: content, Exists: true}, nil
}

// CompareAndSwap перечитывает файл, сравнивает с expected и заменяет его.
func (r *FileRecord) CompareAndSwap(ctx context.Context, expected Snapshot, next []byte) error {
	current, err := r.Read(ctx)
	if err != nil {
		return err
	}
	if !current.Equal(expected) {
		return &ConflictError{Location: r.path}
	}

	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tempPath := r.TempPath()

	// Остаток от прерванной записи удаляем: файл создаётся эксклюзивно.
	if err := os.Remove(tempPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove stale temp file: %w", err)
	}

	if err := writeExclusive(tempPath, next, r.perm); err != nil {
		return err
	}

	if err := os.Rename(tempPath, r.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename %s to %s: %w", tempPath, r.path, err)
	}

	return nil
}

// writeExclusive создаёт новый файл, пишет содержимое и делает fsync.
func writeExclusive(path string, content []byte, perm fs.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	if _, err := f.Write(content); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("write temp file: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("sync temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("close temp file: %w", err)
	}

	return nil
}
