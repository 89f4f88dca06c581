// Package symbol interprets raw symbol names: demangling for display and
// grouping of generic instantiations.
package symbol

import (
	"strings"
)

// legacyEscapes are the punctuation escapes of the legacy Rust mangling.
var legacyEscapes = strings.NewReplacer(
	"$SP$", "@",
	"$BP$", "*",
	"$RF$", "&",
	"$LT$", "<",
	"$GT$", ">",
	"$LP$", "(",
	"$RP$", ")",
	"$C$", ",",
	"$u20$", " ",
	"$u27$", "'",
	"$u5b$", "[",
	"$u5d$", "]",
	"$u7b$", "{",
	"$u7d$", "}",
	"$u7e$", "~",
	"..", "::",
)

// Demangle renders a nested-name mangled symbol (_ZN<len><part>...E, as
// emitted by legacy Rust and by Itanium C++ for plain nested names) as a
// path. Rust hash suffixes are dropped. Anything it cannot parse is
// returned unchanged, so it is safe to apply to every name.
func Demangle(name string) string {
	s, ok := strings.CutPrefix(name, "_ZN")
	if !ok {
		// Mach-O style double underscore.
		if s, ok = strings.CutPrefix(name, "__ZN"); !ok {
			return name
		}
	}

	var parts []string
	for len(s) > 0 && s[0] != 'E' {
		digits := 0
		for digits < len(s) && s[digits] >= '0' && s[digits] <= '9' {
			digits++
		}
		if digits == 0 {
			return name
		}

		length := 0
		for i := 0; i < digits; i++ {
			length = length*10 + int(s[i]-'0')
		}
		s = s[digits:]
		if length > len(s) {
			return name
		}

		part := s[:length]
		s = s[length:]
		if isRustHash(part) {
			continue
		}
		if strings.HasPrefix(part, "_$") {
			part = part[1:]
		}
		parts = append(parts, legacyEscapes.Replace(part))
	}

	if len(parts) == 0 || len(s) == 0 {
		return name
	}
	return strings.Join(parts, "::")
}

// isRustHash matches the h<16 hex digits> disambiguator.
func isRustHash(part string) bool {
	if len(part) != 17 || part[0] != 'h' {
		return false
	}
	for i := 1; i < len(part); i++ {
		c := part[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
