package eval

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// Progress holds the running covered/total counts of a run. It is safe to
// read from a reporter goroutine while the runner updates it.
type Progress struct {
	covered atomic.Int64
	total   atomic.Int64
	mu      sync.Mutex
	project string
}

// Add folds one outcome into the running totals.
func (p *Progress) Add(o EvaluationQueryOutcome) {
	p.covered.Add(int64(o.CoveredResultCount))
	p.total.Add(int64(o.TotalResultCount))
}

// SetProject records the project currently being evaluated.
func (p *Progress) SetProject(repo string) {
	p.mu.Lock()
	p.project = repo
	p.mu.Unlock()
}

// Totals returns the covered and total counts so far.
func (p *Progress) Totals() (covered, total int64) {
	return p.covered.Load(), p.total.Load()
}

func (p *Progress) String() string {
	p.mu.Lock()
	project := p.project
	p.mu.Unlock()

	covered, total := p.Totals()
	return fmt.Sprintf("Running evals. %d/%d covered. Project: %s...", covered, total, project)
}

// Report writes the progress line to w every interval until stop is called.
// The line is overwritten in place like the indexer's progress output.
func (p *Progress) Report(w io.Writer, interval time.Duration) (stop func()) {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				_, _ = fmt.Fprintf(w, "\r%s", p)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			wg.Wait()
		})
	}
}
