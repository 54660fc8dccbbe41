package provider

import (
	"fmt"
	"sync"
	"time"
)

// ewmaAlpha is the weight given to history when folding a new latency
// sample into the moving average.
const ewmaAlpha = 0.7

// Stats tracks rolling call statistics for one provider. Updated after
// every call, success or failure; never reset except by process restart.
type Stats struct {
	mu         sync.Mutex
	calls      int64
	errors     int64
	avgLatency time.Duration
	lastUsed   time.Time
}

// StatsSnapshot is an immutable view of a provider's statistics, read at
// selection time so routing decisions do not race concurrent updates.
type StatsSnapshot struct {
	Calls      int64         `json:"calls"`
	Errors     int64         `json:"errors"`
	AvgLatency time.Duration `json:"avgLatency"`
	LastUsed   time.Time     `json:"lastUsed"`
}

// ErrorRate is errors/calls, with zero calls treated as a 0% error rate.
func (s StatsSnapshot) ErrorRate() float64 {
	if s.Calls == 0 {
		return 0
	}
	return float64(s.Errors) / float64(s.Calls)
}

// SuccessRate renders the success percentage for status endpoints, "N/A"
// before the first call.
func (s StatsSnapshot) SuccessRate() string {
	if s.Calls == 0 {
		return "N/A"
	}
	return fmt.Sprintf("%.2f%%", float64(s.Calls-s.Errors)/float64(s.Calls)*100)
}

// Record folds one call into the statistics. The first latency sample is
// taken as-is; later samples are smoothed with 70% weight on history.
func (s *Stats) Record(latency time.Duration, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if !success {
		s.errors++
	}
	if s.avgLatency == 0 {
		s.avgLatency = latency
	} else {
		s.avgLatency = time.Duration(ewmaAlpha*float64(s.avgLatency) + (1-ewmaAlpha)*float64(latency))
	}
	s.lastUsed = time.Now()
}

// Snapshot returns a consistent copy of the current statistics.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StatsSnapshot{
		Calls:      s.calls,
		Errors:     s.errors,
		AvgLatency: s.avgLatency,
		LastUsed:   s.lastUsed,
	}
}
