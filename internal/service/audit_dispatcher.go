package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/mute-meter-api/internal/models"
	"github.com/noah-isme/mute-meter-api/pkg/jobs"
)

// AuditDispatcher writes audit entries from a worker pool so requests do not
// wait on audit_logs. When the buffer is full or the pool is not running the
// entry is written inline.
type AuditDispatcher struct {
	store  auditRecorder
	queue  *jobs.Queue[*models.AuditLog]
	logger *zap.Logger
}

// NewAuditDispatcher constructs a dispatcher over store.
func NewAuditDispatcher(store auditRecorder, workers int, logger *zap.Logger) *AuditDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &AuditDispatcher{store: store, logger: logger}
	d.queue = jobs.NewQueue("audit", d.write, jobs.QueueConfig{
		Workers:    workers,
		MaxRetries: 2,
		RetryDelay: 500 * time.Millisecond,
		Logger:     logger,
	})
	return d
}

// Start launches the workers.
func (d *AuditDispatcher) Start() {
	d.queue.Start()
}

// Stop flushes buffered entries.
func (d *AuditDispatcher) Stop(ctx context.Context) error {
	return d.queue.Stop(ctx)
}

// CreateAuditLog stamps the entry and hands it to the pool.
func (d *AuditDispatcher) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}

	err := d.queue.TryEnqueue(log)
	if err == nil {
		return nil
	}
	if errors.Is(err, jobs.ErrQueueFull) {
		d.logger.Warn("audit queue full, writing inline", zap.String("action", log.Action))
	}
	return d.store.CreateAuditLog(ctx, log)
}

func (d *AuditDispatcher) write(ctx context.Context, log *models.AuditLog) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return d.store.CreateAuditLog(ctx, log)
}
