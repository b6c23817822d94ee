package id

import "github.com/google/uuid"

// New returns a random request identifier.
func New() string {
	return uuid.NewString()
}

// Valid reports whether s looks like an identifier a client may echo back,
// e.g. through X-Request-ID.
func Valid(s string) bool {
	if s == "" || len(s) > 128 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '.':
		default:
			return false
		}
	}
	return true
}
