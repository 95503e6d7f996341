package metrics

import (
	"sync/atomic"
	"time"
)

type Collector struct {
	totalRequests   uint64
	clientErrors    uint64
	errorRequests   uint64
	conflicts       uint64
	totalDurationMs uint64
}

func New() *Collector {
	return &Collector{}
}

func (c *Collector) Record(status int, duration time.Duration) {
	atomic.AddUint64(&c.totalRequests, 1)
	switch {
	case status >= 500:
		atomic.AddUint64(&c.errorRequests, 1)
	case status == 409:
		atomic.AddUint64(&c.conflicts, 1)
		atomic.AddUint64(&c.clientErrors, 1)
	case status >= 400:
		atomic.AddUint64(&c.clientErrors, 1)
	}
	atomic.AddUint64(&c.totalDurationMs, uint64(duration.Milliseconds()))
}

func (c *Collector) Snapshot() map[string]any {
	total := atomic.LoadUint64(&c.totalRequests)
	clientErrs := atomic.LoadUint64(&c.clientErrors)
	errs := atomic.LoadUint64(&c.errorRequests)
	conflicts := atomic.LoadUint64(&c.conflicts)
	totalMs := atomic.LoadUint64(&c.totalDurationMs)
	avg := float64(0)
	if total > 0 {
		avg = float64(totalMs) / float64(total)
	}
	return map[string]any{
		"requestsTotal":     total,
		"clientErrorsTotal": clientErrs,
		"errorsTotal":       errs,
		"conflictsTotal":    conflicts,
		"avgDurationMs":     avg,
		"totalDurationMs":   totalMs,
	}
}
