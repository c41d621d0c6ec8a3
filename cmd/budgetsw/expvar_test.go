package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpvarTracker(t *testing.T) {
	ctx := context.Background()
	tr := newExpvarTracker("swcache_test")

	tr.Add(ctx, "swcache_hit", 1, "name", "v1")
	tr.Add(ctx, "swcache_hit", 2, "name", "v1")
	tr.Set(ctx, "swcache_entries", 4, "name", "v1", "kind", "manifest")
	tr.Add(ctx, "swcache_passthrough", 1)

	assert.Equal(t, "3", tr.m.Get(`swcache_hit{name="v1"}`).String())
	assert.Equal(t, "4", tr.m.Get(`swcache_entries{kind="manifest",name="v1"}`).String())
	assert.Equal(t, "1", tr.m.Get("swcache_passthrough").String())

	// Same map is reused.
	assert.Same(t, tr.m, newExpvarTracker("swcache_test").m)
}
