// Package worker executes one harvest per dequeued record and writes the
// result back to the record store.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/contact-harvester/internal/harvest"
	"github.com/JakeFAU/contact-harvester/internal/metrics"
	"github.com/JakeFAU/contact-harvester/internal/queue/memory"
)

// Queue yields records to work on.
type Queue interface {
	Dequeue(ctx context.Context) (harvest.BusinessRecord, error)
}

// Harvester runs the per-record harvest. *orchestrator.Harvester satisfies it.
type Harvester interface {
	Harvest(ctx context.Context, session harvest.Session, website, businessName string) harvest.Result
}

// Config controls Worker behavior.
type Config struct {
	MaxPersistedEmails int
	Topic              string
	RunID              string
}

// Outcome is what a worker reports for each record it handled.
type Outcome struct {
	Record    harvest.BusinessRecord
	Result    harvest.Result
	Persisted bool
}

// Worker consumes queue items and executes the harvest pipeline.
type Worker struct {
	queue     Queue
	harvester Harvester
	sessions  harvest.SessionPool
	store     harvest.RecordStore
	publisher harvest.Publisher
	clock     harvest.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker. publisher may be nil.
func New(
	queue Queue,
	harvester Harvester,
	sessions harvest.SessionPool,
	store harvest.RecordStore,
	publisher harvest.Publisher,
	clock harvest.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxPersistedEmails <= 0 {
		cfg.MaxPersistedEmails = 10
	}
	return &Worker{
		queue:     queue,
		harvester: harvester,
		sessions:  sessions,
		store:     store,
		publisher: publisher,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run blocks, consuming records until the queue is closed or ctx ends. Every
// handled record produces exactly one Outcome on results.
func (w *Worker) Run(ctx context.Context, results chan<- Outcome) {
	for {
		record, err := w.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, memory.ErrClosed) || ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued record", zap.String("record_id", record.ID))
		results <- w.Process(ctx, record)
	}
}

// Process harvests one record and persists the result.
func (w *Worker) Process(ctx context.Context, record harvest.BusinessRecord) Outcome {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	result := w.harvest(ctx, record)
	out := Outcome{Record: record, Result: result}

	logger := w.logger.With(zap.String("record_id", record.ID), zap.String("website", record.Website))
	update := harvest.Update{
		Status:         result.Status,
		Emails:         capEmails(result.Emails, w.cfg.MaxPersistedEmails),
		SocialProfiles: result.SocialProfiles,
		ScrapedAt:      w.now(),
	}
	if err := w.store.UpdateStatus(ctx, record.ID, update); err != nil {
		metrics.ObserveStoreError("update_status")
		logger.Warn("persist result failed",
			zap.String("status", string(result.Status)),
			zap.Error(err),
		)
		return out
	}
	out.Persisted = true
	logger.Info("record processed",
		zap.String("business", record.BusinessName),
		zap.String("status", string(result.Status)),
		zap.Strings("emails", update.Emails),
		zap.Int("social", len(result.SocialProfiles)),
		zap.Duration("duration", result.Duration),
	)

	if err := w.publish(ctx, record, update); err != nil {
		logger.Warn("publish event failed", zap.Error(err))
	}
	return out
}

// harvest holds a rendering session for exactly the duration of one harvest.
func (w *Worker) harvest(ctx context.Context, record harvest.BusinessRecord) harvest.Result {
	if _, err := harvest.NormalizeWebsite(record.Website); err != nil || w.sessions == nil {
		return w.harvester.Harvest(ctx, nil, record.Website, record.BusinessName)
	}
	session, err := w.sessions.Acquire(ctx)
	if err != nil {
		w.logger.Warn("acquire rendering session failed",
			zap.String("record_id", record.ID),
			zap.Error(err),
		)
		return harvest.Result{
			Website: record.Website,
			Status:  harvest.StatusFailed,
			Emails:  []string{},
			Err:     fmt.Errorf("acquire session: %w", err),
		}
	}
	defer w.sessions.Release(session)
	return w.harvester.Harvest(ctx, session, record.Website, record.BusinessName)
}

func (w *Worker) publish(ctx context.Context, record harvest.BusinessRecord, update harvest.Update) error {
	if w.cfg.Topic == "" || w.publisher == nil {
		return nil
	}
	event := harvest.Event{
		RunID:          w.cfg.RunID,
		RecordID:       record.ID,
		Website:        record.Website,
		Status:         update.Status,
		Emails:         update.Emails,
		SocialProfiles: update.SocialProfiles,
		FinishedAt:     update.ScrapedAt,
	}
	if _, err := w.publisher.Publish(ctx, w.cfg.Topic, event); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

func (w *Worker) now() time.Time {
	if w.clock == nil {
		return time.Now().UTC()
	}
	return w.clock.Now()
}

func capEmails(emails []string, limit int) []string {
	if len(emails) > limit {
		emails = emails[:limit]
	}
	return append([]string{}, emails...)
}
