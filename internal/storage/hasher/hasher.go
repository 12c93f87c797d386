// Пакет hasher — вычисление отпечатка содержимого файла.
// Отпечаток — SHA-256, закодированный в 64 шестнадцатеричных символа
// в ВЕРХНЕМ регистре. Имена sidecar-файлов строятся из этой строки,
// поэтому регистр и длина фиксированы.
package hasher

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Size — длина отпечатка в символах.
const Size = sha256.Size * 2

// ErrNotFound — файл не существует на момент вызова.
var ErrNotFound = errors.New("файл не найден")

// Fingerprint вычисляет SHA-256 содержимого файла потоково.
// Существование файла проверяется до чтения.
func Fingerprint(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return "", fmt.Errorf("ошибка получения информации о файле %s: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s является директорией", ErrNotFound, path)
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return "", fmt.Errorf("ошибка открытия файла %s: %w", path, err)
	}
	defer f.Close()

	sum, _, err := FingerprintReader(f)
	if err != nil {
		return "", fmt.Errorf("ошибка вычисления отпечатка %s: %w", path, err)
	}
	return sum, nil
}

// FingerprintReader вычисляет отпечаток произвольного потока.
// Возвращает отпечаток и количество прочитанных байт.
func FingerprintReader(r io.Reader) (string, int64, error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", n, err
	}
	return Encode(h.Sum(nil)), n, nil
}

// Encode кодирует сырой дайджест в формат отпечатка.
func Encode(sum []byte) string {
	return strings.ToUpper(hex.EncodeToString(sum))
}

// IsValid проверяет, что строка имеет формат отпечатка.
func IsValid(s string) bool {
	if len(s) != Size {
		return false
	}
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}
