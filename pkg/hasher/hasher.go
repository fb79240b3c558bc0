// Package hasher вычисляет контентные дайджесты файлов для дедупликации.
//
// SHA-256 по полному содержимому, потоково фиксированными чанками —
// память ограничена независимо от размера файла. Один и тот же контент
// даёт один и тот же дайджест вне зависимости от имени, пути и mtime.
package hasher

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
)

// Размер чанка при потоковом чтении.
const chunkSize = 32 * 1024

// IOErrorKind — тип I/O ошибки при хешировании.
type IOErrorKind int

const (
	ErrUnknown IOErrorKind = iota
	ErrNotFound
	ErrPermissionDenied
	ErrReadFailed
)

// String возвращает строковое представление типа ошибки.
func (k IOErrorKind) String() string {
	switch k {
	case ErrNotFound:
		return "file_not_found"
	case ErrPermissionDenied:
		return "permission_denied"
	case ErrReadFailed:
		return "read_failed"
	default:
		return "unknown"
	}
}

// IOError — ошибка чтения файла с классифицированным типом.
// Никогда не возвращаем нулевой/сентинельный дайджест вместо ошибки.
type IOError struct {
	Kind IOErrorKind
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("hash %s: %s: %v", e.Path, e.Kind, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// classify определяет IOErrorKind по ошибке ОС.
func classify(err error) IOErrorKind {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return ErrNotFound
	case errors.Is(err, fs.ErrPermission):
		return ErrPermissionDenied
	default:
		return ErrReadFailed
	}
}

// Digest вычисляет SHA-256 дайджест содержимого файла.
//
// Возвращает hex-строку (64 символа) или *IOError с классифицированным
// типом сбоя (not found / permission / read).
func Digest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", &IOError{Kind: classify(err), Path: path, Err: err}
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, chunkSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", &IOError{Kind: ErrReadFailed, Path: path, Err: err}
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// DigestBytes вычисляет SHA-256 дайджест для данных в памяти.
// Используется кэшем классификации для контента, уже прочитанного с диска.
func DigestBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
