package enums

import (
	"fmt"
	"slices"
)

// set is the closed list of values a string enum accepts. Order matters where
// callers iterate it.
type set[T ~string] []T

func (s set[T]) has(v T) bool {
	return slices.Contains(s, v)
}

func (s set[T]) parse(kind, raw string) (T, error) {
	v := T(raw)
	if !s.has(v) {
		var zero T
		return zero, fmt.Errorf("invalid %s %q", kind, raw)
	}
	return v, nil
}
