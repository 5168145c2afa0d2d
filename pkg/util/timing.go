package util

import (
	"sync"
	"time"

	"go.uber.org/zap/zapcore"
)

// StageTiming is the accumulated time spent in one named stage.
type StageTiming struct {
	Name  string
	Total time.Duration
	Count int64
}

// Avg is the mean time per item.
func (s StageTiming) Avg() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Count)
}

// TimingStats collects per-stage timings of a pipeline. Safe for concurrent use.
type TimingStats struct {
	mu     sync.Mutex
	stages map[string]*StageTiming
	order  []string // insertion order
}

// NewTimingStats creates an empty collector.
func NewTimingStats() *TimingStats {
	return &TimingStats{stages: make(map[string]*StageTiming)}
}

// RecordStage adds d and count to the named stage.
func (s *TimingStats) RecordStage(name string, d time.Duration, count int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.stages[name]
	if !ok {
		st = &StageTiming{Name: name}
		s.stages[name] = st
		s.order = append(s.order, name)
	}
	st.Total += d
	st.Count += count
}

// Stages returns a snapshot in first-recorded order.
func (s *TimingStats) Stages() []StageTiming {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]StageTiming, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, *s.stages[name])
	}
	return out
}

// Bottleneck returns the stage with the largest total and its share of all
// recorded time.
func (s *TimingStats) Bottleneck() (name string, share float64) {
	var total, most time.Duration
	for _, st := range s.Stages() {
		total += st.Total
		if st.Total > most {
			most, name = st.Total, st.Name
		}
	}
	if total == 0 {
		return "", 0
	}
	return name, float64(most) / float64(total)
}

// MarshalLogObject lets a TimingStats be logged with zap.Object.
func (s *TimingStats) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	for _, st := range s.Stages() {
		err := enc.AddObject(st.Name, zapcore.ObjectMarshalerFunc(func(e zapcore.ObjectEncoder) error {
			e.AddDuration("total", st.Total.Round(time.Millisecond))
			e.AddInt64("count", st.Count)
			e.AddDuration("avg", st.Avg().Round(time.Microsecond))
			return nil
		}))
		if err != nil {
			return err
		}
	}
	return nil
}

// Start returns a timer that records into the named stage when stopped.
//
//	timer := stats.Start("embed").WithCount(n)
//	defer timer.Stop()
func (s *TimingStats) Start(name string) *StatsTimer {
	return &StatsTimer{stats: s, name: name, start: time.Now()}
}

// StatsTimer records to TimingStats when stopped.
type StatsTimer struct {
	stats *TimingStats
	name  string
	start time.Time
	count int64
}

// WithCount sets the number of items the timed operation covers.
func (t *StatsTimer) WithCount(count int64) *StatsTimer {
	t.count = count
	return t
}

// Stop records the elapsed time. A zero count records one item.
func (t *StatsTimer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	t.stats.RecordStage(t.name, elapsed, max(t.count, 1))
	return elapsed
}
