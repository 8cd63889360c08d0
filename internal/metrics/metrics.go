// Package metrics records engine and service metrics.
package metrics

// Recorder is what the tracker, scheduler, vacation sources and publisher
// report to.
type Recorder interface {
	// ObserveResolve records one timeline resolution.
	ObserveResolve(seconds float64, periods, defects int)
	// RecordRefresh records a refresh run outcome (success, failure).
	RecordRefresh(result string, seconds float64)
	// RecordVacationFetch records a collaborator fetch by source
	// (api, ics, cache) and result (hit, miss, stale, error).
	RecordVacationFetch(source, result string)
	// RecordNotification counts published transition events by type.
	RecordNotification(eventType string)
	// SetChildrenPresent sets how many children are currently present.
	SetChildrenPresent(count int)
}

// NopMetrics discards everything.
type NopMetrics struct{}

var _ Recorder = (*NopMetrics)(nil)

func NewNop() *NopMetrics { return &NopMetrics{} }

func (n *NopMetrics) ObserveResolve(float64, int, int)   {}
func (n *NopMetrics) RecordRefresh(string, float64)      {}
func (n *NopMetrics) RecordVacationFetch(string, string) {}
func (n *NopMetrics) RecordNotification(string)          {}
func (n *NopMetrics) SetChildrenPresent(int)             {}
