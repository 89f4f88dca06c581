package symbol

import "strings"

// GenericOf returns the generic function a monomorphized name instantiates:
// the demangled name with type arguments and the Rust hash suffix removed.
// Qualified-path prefixes such as <T as Trait> are kept, minus their own
// type arguments. Names without type arguments, and names whose angle
// brackets do not balance, return "".
//
//	core::ptr::drop_in_place<alloc::string::String>::h0123456789abcdef
//	  -> core::ptr::drop_in_place
func GenericOf(name string) string {
	s := stripHash(Demangle(name))
	out, stripped, ok := stripArgs(s)
	if !ok || !stripped {
		return ""
	}
	return out
}

func stripHash(s string) string {
	if i := strings.LastIndex(s, "::h"); i >= 0 && isRustHash(s[i+2:]) {
		return s[:i]
	}
	return s
}

// stripArgs drops every <...> group that follows an identifier. Groups
// opening a path segment are kept with their contents stripped.
func stripArgs(s string) (string, bool, bool) {
	var b strings.Builder
	stripped := false
	for i := 0; i < len(s); {
		if s[i] != '<' {
			b.WriteByte(s[i])
			i++
			continue
		}
		end := closing(s, i)
		if end < 0 {
			return "", false, false
		}
		if i == 0 || strings.HasSuffix(s[:i], "::") || s[i-1] == ' ' {
			inner, did, ok := stripArgs(s[i+1 : end])
			if !ok {
				return "", false, false
			}
			b.WriteByte('<')
			b.WriteString(inner)
			b.WriteByte('>')
			stripped = stripped || did
		} else {
			stripped = true
		}
		i = end + 1
	}
	return b.String(), stripped, true
}

// closing returns the index of the '>' matching the '<' at open, or -1.
// The arrow of a function type is not a bracket.
func closing(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '<':
			depth++
		case '>':
			if s[i-1] == '-' {
				continue
			}
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
