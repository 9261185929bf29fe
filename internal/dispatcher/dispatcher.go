// Package dispatcher manages worker fan-out over the record queue.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/contact-harvester/internal/harvest"
	"github.com/JakeFAU/contact-harvester/internal/worker"
)

const progressEvery = 10

// Queue is the hand-off between the dispatcher and its workers.
type Queue interface {
	Enqueue(ctx context.Context, record harvest.BusinessRecord) error
	Close()
}

// Summary counts what one run produced.
type Summary struct {
	Total       int           `json:"total"`
	Processed   int           `json:"processed"`
	Found       int           `json:"found"`
	Checked     int           `json:"checked"`
	Failed      int           `json:"failed"`
	Skipped     int           `json:"skipped"`
	Emails      int           `json:"emails"`
	Social      int           `json:"social"`
	Unpersisted int           `json:"unpersisted"`
	Interrupted bool          `json:"interrupted"`
	Duration    time.Duration `json:"duration"`
}

// HasFailures reports whether any record ended failed.
func (s Summary) HasFailures() bool { return s.Failed > 0 }

func (s *Summary) add(out worker.Outcome) {
	s.Processed++
	switch out.Result.Status {
	case harvest.StatusFound:
		s.Found++
	case harvest.StatusChecked:
		s.Checked++
	case harvest.StatusFailed:
		s.Failed++
	case harvest.StatusSkipped:
		s.Skipped++
	}
	s.Emails += len(out.Result.Emails)
	s.Social += len(out.Result.SocialProfiles)
	if !out.Persisted {
		s.Unpersisted++
	}
}

// Dispatcher fans out records to a pool of workers. A Dispatcher drives a
// single run; its queue is closed when Run returns.
type Dispatcher struct {
	queue   Queue
	workers []*worker.Worker
	logger  *zap.Logger
}

// New creates a Dispatcher. The workers must dequeue from queue.
func New(queue Queue, workers []*worker.Worker, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		queue:   queue,
		workers: workers,
		logger:  logger,
	}
}

// Run dispatches records until they are exhausted or ctx is canceled, then
// waits for in-flight harvests to finish. Cancellation is checked before each
// dispatch and after each result; dispatched work is never interrupted.
func (d *Dispatcher) Run(ctx context.Context, records []harvest.BusinessRecord) Summary {
	start := time.Now()
	summary := Summary{Total: len(records)}
	results := make(chan worker.Outcome, len(d.workers))

	workCtx := context.WithoutCancel(ctx)
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(workCtx, results)
		}(w)
	}

	dispatched := make(chan int, 1)
	go func() {
		dispatched <- d.feed(ctx, records)
		d.queue.Close()
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	announced := false
	for out := range results {
		summary.add(out)
		if summary.Processed%progressEvery == 0 {
			d.logProgress(summary, time.Since(start))
		}
		if ctx.Err() != nil && !announced {
			announced = true
			d.logger.Info("shutdown requested, waiting for in-flight records",
				zap.Int("processed", summary.Processed),
			)
		}
	}

	sent := <-dispatched
	summary.Interrupted = sent < len(records)
	summary.Duration = time.Since(start)
	d.logger.Info("run finished",
		zap.Int("total", summary.Total),
		zap.Int("processed", summary.Processed),
		zap.Int("found", summary.Found),
		zap.Int("checked", summary.Checked),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("emails", summary.Emails),
		zap.Int("social", summary.Social),
		zap.Bool("interrupted", summary.Interrupted),
		zap.Duration("duration", summary.Duration),
	)
	return summary
}

// feed hands records to workers and returns how many were dispatched.
func (d *Dispatcher) feed(ctx context.Context, records []harvest.BusinessRecord) int {
	for i, record := range records {
		if ctx.Err() != nil {
			return i
		}
		if err := d.queue.Enqueue(ctx, record); err != nil {
			d.logger.Debug("dispatch stopped", zap.Error(err))
			return i
		}
	}
	return len(records)
}

func (d *Dispatcher) logProgress(s Summary, elapsed time.Duration) {
	rate := 0.0
	if secs := elapsed.Seconds(); secs > 0 {
		rate = float64(s.Processed) / secs
	}
	d.logger.Info("progress",
		zap.String("processed", fmt.Sprintf("%d/%d", s.Processed, s.Total)),
		zap.Int("found", s.Found),
		zap.Int("checked", s.Checked),
		zap.Int("failed", s.Failed),
		zap.Int("skipped", s.Skipped),
		zap.Float64("per_second", rate),
	)
}
