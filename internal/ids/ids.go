// Package ids generates identifiers for image records and stored objects.
package ids

import "github.com/segmentio/ksuid"

// New returns a k-sortable, URL-safe identifier. Identifiers created later sort
// after earlier ones, so they double as a tiebreaker for upload time.
func New() string {
	return ksuid.New().String()
}

// Valid reports whether s has the shape of an identifier produced by New.
func Valid(s string) bool {
	_, err := ksuid.Parse(s)
	return err == nil
}
