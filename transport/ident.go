package transport

import "strings"

// ValidIdent reports whether ident satisfies the FileIdent invariant (spec
// §3 / P2): exactly one path component, non-empty, containing neither "/"
// nor "\", not beginning with "/" or "\", not containing ".." as a
// substring, and not carrying a drive-letter-like prefix (second
// character ":").
//
// Every FileIdent entering the engine from any source — the local scanner,
// an inbound FileEvent, FileContent, FileChunk, or DirectorySnapshot — is
// validated with this function; rejected idents are dropped with a logged
// error rather than propagated.
func ValidIdent(ident string) bool {
	if ident == "" {
		return false
	}

	if strings.ContainsAny(ident, "/\\") {
		return false
	}

	if strings.Contains(ident, "..") {
		return false
	}

	if len(ident) >= 2 && ident[1] == ':' {
		return false
	}

	return true
}
