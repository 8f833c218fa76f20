package kerrors

import (
	"fmt"
	"strings"
)

// Collector aggregates multiple errors raised across independent subtrees
// (for example, a root manager failure plus every dependent that failed by
// propagation) into a single error without discarding any individual cause
// chain.
type Collector struct {
	errs []*Error
}

// Add appends a non-nil error to the collector.
func (c *Collector) Add(err *Error) {
	if err == nil {
		return
	}
	c.errs = append(c.errs, err)
}

// Empty reports whether the collector has no errors.
func (c *Collector) Empty() bool { return len(c.errs) == 0 }

// Errors returns the individually collected errors in insertion order.
func (c *Collector) Errors() []*Error {
	out := make([]*Error, len(c.errs))
	copy(out, c.errs)
	return out
}

// Err returns nil if the collector is empty, the sole error if exactly one
// was added, or an aggregated *Error listing every cause otherwise.
func (c *Collector) Err() error {
	switch len(c.errs) {
	case 0:
		return nil
	case 1:
		return c.errs[0]
	}

	var b strings.Builder
	maxSeverity := SeverityLow
	for i, e := range c.errs {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(e.Error())
		if e.severity > maxSeverity {
			maxSeverity = e.severity
		}
	}

	agg := New(KindInternal, "manager.supervisor", b.String()).WithSeverity(maxSeverity)
	agg = agg.WithCause(c.errs[0])
	for i, e := range c.errs {
		agg = agg.WithMeta(fmt.Sprintf("%s#%d", e.source, i), e.Error())
	}
	return agg
}
