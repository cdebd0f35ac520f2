package util

import (
	"errors"
	"path"
	"strings"
	"unicode"
)

// ErrInvalidFileName is returned for names that cannot be used as an object key segment.
var ErrInvalidFileName = errors.New("invalid file name")

const maxFileNameRunes = 120

// SanitizeFileName turns an uploaded file name into a single key segment.
// Separators become underscores, control characters are dropped and long
// names are shortened with the extension kept.
func SanitizeFileName(name string) (string, error) {
	if strings.Contains(name, "..") {
		return "", ErrInvalidFileName
	}
	s := strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\':
			return '_'
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, strings.TrimSpace(name))
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrInvalidFileName
	}
	runes := []rune(s)
	if len(runes) <= maxFileNameRunes {
		return s, nil
	}
	ext := []rune(path.Ext(s))
	if len(ext) >= maxFileNameRunes {
		ext = nil
	}
	return string(runes[:maxFileNameRunes-len(ext)]) + string(ext), nil
}
