// Package handle normalizes social-media handles into the canonical form used
// as registry keys and address-derivation seeds.
package handle

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dmitrijs2005/tipbot/internal/common"
)

// MaxLen bounds a handle so it always fits a single 32-byte derivation seed.
const MaxLen = 32

var pattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// Normalize trims whitespace, strips one leading "@" and lowercases the input.
// The result is validated against the handle charset and length.
func Normalize(raw string) (string, error) {
	h := strings.TrimSpace(raw)
	h = strings.TrimPrefix(h, "@")
	h = strings.ToLower(h)

	if h == "" {
		return "", fmt.Errorf("%w: empty handle", common.ErrValidation)
	}
	if len(h) > MaxLen {
		return "", fmt.Errorf("%w: handle longer than %d characters", common.ErrValidation, MaxLen)
	}
	if !pattern.MatchString(h) {
		return "", fmt.Errorf("%w: handle %q has invalid characters", common.ErrValidation, h)
	}
	return h, nil
}

// Equal reports whether two raw handles normalize to the same key.
func Equal(a, b string) bool {
	na, errA := Normalize(a)
	nb, errB := Normalize(b)
	return errA == nil && errB == nil && na == nb
}
