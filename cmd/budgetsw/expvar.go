package main

import (
	"context"
	"expvar"
	"sort"
	"strings"

	"github.com/bool64/stats"
)

// expvarTracker publishes metrics in /debug/vars.
type expvarTracker struct {
	m *expvar.Map
}

var _ stats.Tracker = expvarTracker{}

func newExpvarTracker(name string) expvarTracker {
	if v, ok := expvar.Get(name).(*expvar.Map); ok {
		return expvarTracker{m: v}
	}

	return expvarTracker{m: expvar.NewMap(name)}
}

// key makes metric name with sorted labels, e.g. swcache_hit{name="v1"}.
func key(name string, labelsAndValues []string) string {
	if len(labelsAndValues) < 2 {
		return name
	}

	pairs := make([]string, 0, len(labelsAndValues)/2)

	for i := 0; i+1 < len(labelsAndValues); i += 2 {
		pairs = append(pairs, labelsAndValues[i]+"=\""+labelsAndValues[i+1]+"\"")
	}

	sort.Strings(pairs)

	return name + "{" + strings.Join(pairs, ",") + "}"
}

func (t expvarTracker) Add(_ context.Context, name string, increment float64, labelsAndValues ...string) {
	t.m.AddFloat(key(name, labelsAndValues), increment)
}

func (t expvarTracker) Set(_ context.Context, name string, absolute float64, labelsAndValues ...string) {
	f := new(expvar.Float)
	f.Set(absolute)
	t.m.Set(key(name, labelsAndValues), f)
}
