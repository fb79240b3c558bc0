package mover

import (
	"path/filepath"
	"strconv"
	"strings"
	"unicode"
)

// SanitizeLabel приводит метку классификации к filesystem-safe токену:
// lowercase, любые пробельные символы → underscore.
func SanitizeLabel(label string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(label)) {
		if unicode.IsSpace(r) {
			b.WriteRune('_')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// PlanDestination вычисляет канонический путь назначения:
// rootDir / <sanitized label> / <исходное имя файла>.
//
// Чистая функция от своих аргументов — файловую систему не трогает.
// Что делать если по этому пути уже что-то лежит, решает Mover
// (коллизии — не забота планировщика).
func PlanDestination(label, sourcePath, rootDir string) string {
	return filepath.Join(rootDir, SanitizeLabel(label), filepath.Base(sourcePath))
}

// suffixedCandidate возвращает путь с числовым суффиксом перед расширением:
// /out/watercolor/pic.jpg, 1 → /out/watercolor/pic_1.jpg.
func suffixedCandidate(dest string, n int) string {
	dir := filepath.Dir(dest)
	base := filepath.Base(dest)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return filepath.Join(dir, stem+"_"+strconv.Itoa(n)+ext)
}
