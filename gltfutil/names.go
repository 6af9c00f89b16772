package gltfutil

import (
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// MaxNameBytes is the longest name (in UTF-8 bytes) hosts are expected to keep.
const MaxNameBytes = 63

// NormalizeName returns the NFC form of name, cut to MaxNameBytes on a rune boundary.
func NormalizeName(name string) string {
	return truncate(norm.NFC.String(name), MaxNameBytes)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}

// UniqueName returns desired, or desired with a ".001", ".002"... suffix, so that the
// result is not in used. The result is added to used.
func UniqueName(used map[string]bool, desired string) string {
	stem := NormalizeName(desired)
	suffix := ""
	for cntr := 1; ; {
		name := stem + suffix
		if len(name) > MaxNameBytes {
			stem = truncate(stem, len(stem)-1)
			continue
		}
		if !used[name] {
			used[name] = true
			return name
		}
		suffix = fmt.Sprintf(".%03d", cntr)
		cntr++
	}
}
