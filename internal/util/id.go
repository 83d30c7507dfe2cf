package util

import (
	"crypto/rand"

	"github.com/oklog/ulid/v2"
)

// NewID returns a time-ordered unique id, optionally prefixed.
func NewID(prefix string) string {
	id := ulid.MustNew(ulid.Now(), rand.Reader).String()
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}
