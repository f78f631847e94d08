package utils

import (
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const maxBaseLen = 100

// SanitizeBase lowercases name's base (without extension) and replaces
// every character outside [a-z0-9] with '_'.
func SanitizeBase(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	base := strings.TrimSuffix(name, filepath.Ext(name))
	var b strings.Builder
	for _, r := range strings.ToLower(base) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
		if b.Len() >= maxBaseLen {
			break
		}
	}
	if b.Len() == 0 {
		return "imagen"
	}
	return b.String()
}

// Ext returns the lowercased extension of name including the dot.
func Ext(name string) string { return strings.ToLower(filepath.Ext(name)) }

// StoredName derives a unique stored filename from the client's filename:
// <sanitised-base>-<uuid><ext>.
func StoredName(original string) string {
	return SanitizeBase(original) + "-" + uuid.NewString() + Ext(original)
}
