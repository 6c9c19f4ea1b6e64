package taglog

import "time"

// Metrics observes engine activity. Implementations must be safe for
// concurrent use.
type Metrics interface {
	RecordWritten(namespace string)
	QueryServed(namespace string, returned int, elapsed time.Duration)
	SweepDone(namespace string, removed, failed int)
	Published(namespace string, receivers int)
}

type noopMetrics struct{}

func (noopMetrics) RecordWritten(string)                   {}
func (noopMetrics) QueryServed(string, int, time.Duration) {}
func (noopMetrics) SweepDone(string, int, int)             {}
func (noopMetrics) Published(string, int)                  {}
