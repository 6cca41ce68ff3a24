package worker

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Progress prints a one-line region counter while seeding. A nil output
// disables printing; the counts are kept either way for Summary.
type Progress struct {
	output    io.Writer
	start     time.Time
	mu        sync.Mutex
	total     int
	completed int
	failed    int
}

// NewProgress tracks total regions and writes to output, which may be nil.
func NewProgress(output io.Writer, total int) *Progress {
	return &Progress{output: output, start: time.Now(), total: total}
}

// Callback returns a ProgressFunc for Config.OnProgress.
func (p *Progress) Callback() ProgressFunc {
	return func(completed, total, failed int) {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.completed, p.total, p.failed = completed, total, failed
		if p.output != nil {
			fmt.Fprintf(p.output, "\rseeding regions: %d/%d done, %d failed", completed, total, failed)
		}
	}
}

// Done ends the progress line.
func (p *Progress) Done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.output != nil && p.completed > 0 {
		fmt.Fprintln(p.output)
	}
}

// Summary describes the finished seed run.
func (p *Progress) Summary() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	elapsed := time.Since(p.start).Round(time.Millisecond)
	if p.failed > 0 {
		return fmt.Sprintf("Seeded %d of %d regions in %s, %d failed", p.completed-p.failed, p.total, elapsed, p.failed)
	}
	return fmt.Sprintf("Seeded %d regions in %s", p.completed, elapsed)
}
