package util

import (
	"strings"
	"testing"
)

func TestNewIDPrefixAndUniqueness(t *testing.T) {
	seen := map[string]struct{}{}
	for i := 0; i < 1000; i++ {
		id := NewID("obs")
		if !strings.HasPrefix(id, "obs_") {
			t.Fatalf("missing prefix: %s", id)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = struct{}{}
	}
	if strings.Contains(NewID(""), "_") {
		t.Fatal("unprefixed id should not contain a separator")
	}
}
