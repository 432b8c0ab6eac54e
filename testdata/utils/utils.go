// Package utils holds small helpers shared by tests.
package utils

// Ptr returns a pointer to v, for building fixtures with optional
// fields inline.
func Ptr[T any](v T) *T {
	return &v
}
