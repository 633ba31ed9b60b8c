package enums

import (
	"fmt"
	"strings"
)

// parse matches raw against values, ignoring surrounding whitespace.
func parse[T ~string](values []T, raw, kind string) (T, error) {
	raw = strings.TrimSpace(raw)
	for _, candidate := range values {
		if string(candidate) == raw {
			return candidate, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", kind, raw)
}
