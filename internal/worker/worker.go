package worker

import (
	"context"
	"errors"
	"time"

	"readmark/internal/extract"
	"readmark/internal/library"
	"readmark/internal/metrics"
	"readmark/internal/model"
	"readmark/internal/store"

	"go.uber.org/zap"
)

// Queue hands out save jobs.
// This allows us to mock Redis in tests.
type Queue interface {
	Pop(ctx context.Context, timeout time.Duration) (*store.Job, error)
}

// Saver runs the save use case for a job.
type Saver interface {
	SaveArticle(ctx context.Context, userID string, in library.SaveInput) (*model.Article, error)
}

type Worker struct {
	queue      Queue
	saver      Saver
	logger     *zap.Logger
	popTimeout time.Duration
}

// NewWorker initializes the worker.
func NewWorker(queue Queue, saver Saver, logger *zap.Logger, popTimeout time.Duration) *Worker {
	if popTimeout <= 0 {
		popTimeout = 5 * time.Second
	}
	return &Worker{
		queue:      queue,
		saver:      saver,
		logger:     logger,
		popTimeout: popTimeout,
	}
}

// Start runs the worker loop until ctx is done.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("Worker started. Waiting for jobs...")

	for {
		if ctx.Err() != nil {
			w.logger.Info("Worker shutting down")
			return
		}

		job, err := w.queue.Pop(ctx, w.popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				w.logger.Info("Worker shutting down")
				return
			}
			if errors.Is(err, store.ErrQueueEmpty) {
				continue
			}
			w.logger.Error("Queue error", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}

		w.processJob(ctx, job)
	}
}

// processJob saves one queued URL. A failed extraction writes nothing;
// the job is logged and dropped.
func (w *Worker) processJob(ctx context.Context, job *store.Job) {
	logger := w.logger.With(
		zap.String("job_id", job.ID.String()),
		zap.String("user_id", job.UserID),
		zap.String("url", job.URL))
	logger.Info("Processing started")

	article, err := w.saver.SaveArticle(ctx, job.UserID, library.SaveInput{URL: job.URL, Tags: job.Tags})
	if err != nil {
		metrics.QueueJobsTotal.WithLabelValues("failed").Inc()
		logger.Error("Job failed",
			zap.String("kind", extract.Kind(err)),
			zap.String("reason", extract.Message(err)),
			zap.Error(err))
		return
	}

	metrics.QueueJobsTotal.WithLabelValues("saved").Inc()
	logger.Info("Saving complete",
		zap.String("article_id", article.ID.String()),
		zap.String("title", article.Title))
}
