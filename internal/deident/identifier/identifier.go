// Package identifier generates replacement UIDs for the U directive
// (§4.3): deterministic in shape, unique within a process run, and
// rooted under the configured organizational OID arc.
package identifier

import (
	"fmt"
	"sync"
	"time"
)

// Generator issues new UIDs rooted at OrgRoot, in the form
// "<org_root>.<YYYY>.<M>.<D>.<minute>.<second>.<microsecond>" (§4.3,
// §9). Consecutive calls are guaranteed to differ even when invoked
// within the same microsecond, by retrying against the clock until the
// timestamp-derived suffix changes from the last one issued.
type Generator struct {
	orgRoot string

	mu   sync.Mutex
	last string
}

// New creates a Generator rooted at orgRoot, e.g. "1.2.826.0.1.3680043.10.43".
func New(orgRoot string) *Generator {
	return &Generator{orgRoot: orgRoot}
}

// Next returns a new UID, distinct from the previously issued one.
func (g *Generator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	for {
		uid := g.format(time.Now())
		if uid != g.last {
			g.last = uid
			return uid
		}
	}
}

func (g *Generator) format(t time.Time) string {
	return fmt.Sprintf("%s.%d.%d.%d.%d.%d.%d",
		g.orgRoot,
		t.Year(), int(t.Month()), t.Day(),
		t.Minute(), t.Second(), t.Nanosecond()/1000,
	)
}
