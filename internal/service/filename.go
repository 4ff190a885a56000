package service

import (
	"path/filepath"
	"strings"
)

const defaultStem = "image"

// objectKey builds the storage key "<id>-<stem>.<ext>" from a client supplied file name.
// The stem keeps ASCII letters and digits, maps every other ASCII byte to '_' and drops
// non-ASCII runes. The extension keeps its ASCII letters and digits as written.
func objectKey(id, filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	if base == "." || base == "/" {
		base = ""
	}

	ext := filepath.Ext(base)
	stem := sanitizeStem(strings.TrimSuffix(base, ext))
	ext = sanitizeExt(strings.TrimPrefix(ext, "."))

	if ext == "" {
		return id + "-" + stem
	}
	return id + "-" + stem + "." + ext
}

func sanitizeStem(s string) string {
	var b strings.Builder

	for _, r := range s {
		switch {
		case r > 127:
			continue
		case isASCIIAlnum(r):
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	if b.Len() == 0 {
		return defaultStem
	}
	return strings.ToLower(b.String())
}

func sanitizeExt(s string) string {
	var b strings.Builder

	for _, r := range s {
		if isASCIIAlnum(r) {
			b.WriteRune(r)
		}
	}

	return b.String()
}

func isASCIIAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
