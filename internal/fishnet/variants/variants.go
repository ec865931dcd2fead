// Package variants embeds the list of chess variants the custom Stockfish
// build supports. It carries no move-generation logic of its own — rule
// differences between variants are out of scope here, per spec.md's
// Non-goals — and exists only so the configure wizard can offer a
// UCI_Variant choice prompt without hardcoding the list at every call site.
package variants

import (
	_ "embed"
	"strings"
)

//go:embed variants.txt
var raw string

// List returns every supported variant name, in the embedded file's order.
func List() []string {
	lines := strings.Split(strings.TrimSpace(raw), "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}

// Supported reports whether name is a known variant.
func Supported(name string) bool {
	for _, v := range List() {
		if v == name {
			return true
		}
	}
	return false
}
