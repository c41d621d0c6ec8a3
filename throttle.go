package swcache

import (
	"fmt"
	"sync"
	"time"
)

// Throttle limits frequency of expensive on-demand operations, like manifest re-fetch.
type Throttle struct {
	sync.Mutex

	// SkipInterval defines minimal duration between two runs (flood protection), zero disables throttling.
	SkipInterval time.Duration

	lastRun time.Time
}

// Allow registers a run or fails with ErrAlreadyRequested if previous run was too recent.
func (t *Throttle) Allow() error {
	t.Lock()
	defer t.Unlock()

	if t.SkipInterval <= 0 {
		return nil
	}

	if time.Since(t.lastRun) < t.SkipInterval {
		return fmt.Errorf("%w at %s, %s did not pass",
			ErrAlreadyRequested, t.lastRun.String(), t.SkipInterval.String())
	}

	t.lastRun = time.Now()

	return nil
}
