// Package job drains the contingency queue against the provider gateway.
package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Ign14/PYMERP-sub000/internal/config"
	"github.com/Ign14/PYMERP-sub000/internal/logging"
	"github.com/Ign14/PYMERP-sub000/internal/metrics"
	"github.com/Ign14/PYMERP-sub000/internal/model"
	"github.com/Ign14/PYMERP-sub000/internal/provider"
	"github.com/Ign14/PYMERP-sub000/internal/repository"
	"github.com/Ign14/PYMERP-sub000/internal/service"
)

const (
	detailRetriesExhausted = "Max retry attempts exceeded"
	detailInvalidPayload   = "Invalid contingency payload"
)

// Config controls batching and retry policy.
type Config struct {
	BatchSize       int
	MaxAttempts     int
	Backoff         time.Duration
	MaxBackoff      time.Duration
	LockTTL         time.Duration
	Interval        time.Duration
	ProviderTimeout time.Duration
	ProviderName    string
	WorkerID        string
}

// ConfigFrom builds a Config from the application settings.
func ConfigFrom(cfg *config.AppConfig) Config {
	return Config{
		BatchSize:       cfg.Sync.BatchSize,
		MaxAttempts:     cfg.Sync.MaxAttempts,
		Backoff:         cfg.Sync.Backoff,
		MaxBackoff:      cfg.Sync.MaxBackoff,
		LockTTL:         cfg.Sync.LockTTL,
		Interval:        cfg.Sync.Interval,
		ProviderTimeout: cfg.Provider.Timeout,
		ProviderName:    cfg.Provider.Name,
	}
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 20
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.Backoff <= 0 {
		c.Backoff = 30 * time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Minute
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 2 * time.Minute
	}
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.ProviderTimeout <= 0 {
		c.ProviderTimeout = 10 * time.Second
	}
	if c.WorkerID == "" {
		c.WorkerID = "sync-" + uuid.NewString()
	}
	return c
}

// Archiver stores official artifacts returned with a provider acknowledgement.
type Archiver interface {
	AttachIssued(ctx context.Context, documentID string, officials []provider.OfficialDocument) []service.FileOutcome
}

// Dependencies of the sync job. Locker and Metrics are optional.
type Dependencies struct {
	Fiscal   repository.FiscalDocumentRepository
	Queue    repository.ContingencyQueueRepository
	Gateway  provider.Gateway
	Archiver Archiver
	Locker   RunLocker
	Metrics  *metrics.Billing
	Logger   *logrus.Logger
	Now      func() time.Time
}

// SyncReport counts what one run did with the claimed items.
type SyncReport struct {
	Claimed      int `json:"claimed"`
	Synced       int `json:"synced"`
	Failed       int `json:"failed"`
	DeadLettered int `json:"deadLettered"`
	Skipped      int `json:"skipped"`
}

func (r *SyncReport) add(o SyncReport) {
	r.Claimed += o.Claimed
	r.Synced += o.Synced
	r.Failed += o.Failed
	r.DeadLettered += o.DeadLettered
	r.Skipped += o.Skipped
}

// ContingencySyncJob submits offline documents to the provider.
// One item's failure never aborts the rest of the batch.
type ContingencySyncJob struct {
	deps Dependencies
	cfg  Config
	log  *logrus.Entry
}

func NewContingencySyncJob(deps Dependencies, cfg Config) *ContingencySyncJob {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	cfg = cfg.withDefaults()
	return &ContingencySyncJob{
		deps: deps,
		cfg:  cfg,
		log:  deps.Logger.WithFields(logrus.Fields{"module": "contingency-sync", "worker_id": cfg.WorkerID}),
	}
}

// Run drains the queue immediately and then every Interval until ctx is done.
func (j *ContingencySyncJob) Run(ctx context.Context) {
	ticker := time.NewTicker(j.cfg.Interval)
	defer ticker.Stop()
	for {
		j.runLogged(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (j *ContingencySyncJob) runLogged(ctx context.Context) {
	report, err := j.RunOnce(ctx)
	switch {
	case errors.Is(err, ErrLockNotObtained):
		j.log.Debug("sync skipped, lock held elsewhere")
	case err != nil:
		logging.LogError(j.deps.Logger, "contingency-sync", "Run", "sync run failed", report, err)
	case report.Claimed > 0:
		j.log.WithFields(logrus.Fields{
			"claimed":       report.Claimed,
			"synced":        report.Synced,
			"failed":        report.Failed,
			"dead_lettered": report.DeadLettered,
			"skipped":       report.Skipped,
		}).Info("sync run finished")
	}
}

// RunOnce drains every item that is due now, batch by batch.
func (j *ContingencySyncJob) RunOnce(ctx context.Context) (SyncReport, error) {
	var report SyncReport
	if j.deps.Locker != nil {
		release, err := j.deps.Locker.Lock(ctx, LockKey, j.cfg.LockTTL)
		switch {
		case errors.Is(err, ErrLockNotObtained):
			return report, err
		case err != nil:
			j.log.WithError(err).Warn("error obtaining run lock; proceeding without lock")
		default:
			defer func() {
				if rerr := release(context.WithoutCancel(ctx)); rerr != nil {
					j.log.WithError(rerr).Warn("failed to release run lock")
				}
			}()
		}
	}

	for ctx.Err() == nil {
		now := j.deps.Now()
		items, err := j.deps.Queue.Claim(ctx, repository.ClaimQuery{
			Limit:       j.cfg.BatchSize,
			WorkerID:    j.cfg.WorkerID,
			Now:         now,
			StaleBefore: now.Add(-j.cfg.LockTTL),
		})
		if err != nil {
			return report, fmt.Errorf("claim contingency items: %w", err)
		}
		for i := range items {
			report.add(j.process(ctx, &items[i]))
		}
		if len(items) < j.cfg.BatchSize {
			break
		}
	}
	j.refreshPending(ctx)
	return report, ctx.Err()
}

func (j *ContingencySyncJob) refreshPending(ctx context.Context) {
	pending, err := j.deps.Queue.CountByStatus(ctx, model.QueueOfflinePending)
	if err != nil {
		logging.LogError(j.deps.Logger, "contingency-sync", "refreshPending", "count pending items", nil, err)
		return
	}
	syncing, err := j.deps.Queue.CountByStatus(ctx, model.QueueSyncing)
	if err != nil {
		logging.LogError(j.deps.Logger, "contingency-sync", "refreshPending", "count syncing items", nil, err)
		return
	}
	j.deps.Metrics.SetContingencyPending(pending + syncing)
}

func (j *ContingencySyncJob) process(ctx context.Context, item *model.ContingencyQueueItem) SyncReport {
	entry := j.log.WithFields(logrus.Fields{
		"document_id": item.DocumentID,
		"tenant_id":   item.TenantID,
		"item_id":     item.ID,
	})

	doc, err := j.deps.Fiscal.FindByID(ctx, item.DocumentID)
	if err != nil {
		logging.LogError(j.deps.Logger, "contingency-sync", "process", "load document", map[string]any{"document_id": item.DocumentID}, err)
		return SyncReport{Claimed: 1, Skipped: 1}
	}
	if doc.Status != model.FiscalOfflinePending {
		// settled elsewhere, usually by a webhook
		return j.release(ctx, item, entry, doc.Status)
	}

	var req provider.IssueRequest
	if err := json.Unmarshal(item.ProviderPayload, &req); err != nil {
		logging.LogError(j.deps.Logger, "contingency-sync", "process", "decode provider payload", map[string]any{"document_id": item.DocumentID}, err)
		return j.deadLetter(ctx, item, entry, detailInvalidPayload, err)
	}

	pctx, cancel := context.WithTimeout(ctx, j.cfg.ProviderTimeout)
	res, err := j.deps.Gateway.Issue(pctx, req)
	cancel()
	if err != nil {
		return j.fail(ctx, item, entry, err)
	}
	return j.succeed(ctx, item, entry, res)
}

func (j *ContingencySyncJob) succeed(ctx context.Context, item *model.ContingencyQueueItem, entry *logrus.Entry, res *provider.IssueResult) SyncReport {
	now := j.deps.Now()
	attempts := item.SyncAttempts + 1
	name := res.Provider
	if name == "" {
		name = j.cfg.ProviderName
	}
	doc, err := j.deps.Queue.Complete(ctx, item, func(d *model.FiscalDocument) error {
		if err := d.MarkSent(name, res.TrackID, res.Number, now); err != nil {
			return err
		}
		d.SyncAttempts = attempts
		return nil
	})
	var terr *model.TransitionError
	if errors.As(err, &terr) {
		return j.release(ctx, item, entry, terr.From)
	}
	if err != nil {
		logging.LogError(j.deps.Logger, "contingency-sync", "succeed", "complete contingency item", map[string]any{"document_id": item.DocumentID}, err)
		return SyncReport{Claimed: 1, Skipped: 1}
	}

	if j.deps.Archiver != nil {
		j.deps.Archiver.AttachIssued(ctx, doc.ID, res.Officials)
	}
	j.deps.Metrics.ObserveSyncLatency(now.Sub(item.CreatedAt))
	entry.WithFields(logrus.Fields{
		"track_id": doc.TrackID,
		"number":   doc.Number,
		"attempts": attempts,
	}).Info("contingency document synced")
	return SyncReport{Claimed: 1, Synced: 1}
}

func (j *ContingencySyncJob) fail(ctx context.Context, item *model.ContingencyQueueItem, entry *logrus.Entry, cause error) SyncReport {
	j.deps.Metrics.ContingencyFailure()
	attempts := item.SyncAttempts + 1
	switch {
	case !provider.IsTransient(cause):
		item.SyncAttempts = attempts
		return j.deadLetter(ctx, item, entry, provider.Message(cause), cause)
	case attempts >= j.cfg.MaxAttempts:
		item.SyncAttempts = attempts
		return j.deadLetter(ctx, item, entry, detailRetriesExhausted, cause)
	}

	now := j.deps.Now()
	next := now.Add(j.backoff(attempts))
	item.Status = model.QueueOfflinePending
	item.SyncAttempts = attempts
	item.LastError = model.TruncateDetail(cause.Error())
	item.LastSyncAt = &now
	item.NextAttemptAt = &next
	_, err := j.deps.Queue.RecordFailure(ctx, item, func(d *model.FiscalDocument) error {
		if d.Status != model.FiscalOfflinePending {
			return &model.TransitionError{DocumentID: d.ID, From: d.Status, To: model.FiscalOfflinePending}
		}
		d.SyncAttempts = attempts
		at := now.UTC()
		d.LastSyncAt = &at
		d.UpdatedAt = at
		return nil
	})
	var terr *model.TransitionError
	if errors.As(err, &terr) {
		return j.release(ctx, item, entry, terr.From)
	}
	if err != nil {
		logging.LogError(j.deps.Logger, "contingency-sync", "fail", "record sync failure", map[string]any{"document_id": item.DocumentID}, err)
		return SyncReport{Claimed: 1, Skipped: 1}
	}
	entry.WithFields(logrus.Fields{
		"attempts":        attempts,
		"next_attempt_at": next,
		"error":           cause.Error(),
	}).Warn("contingency sync attempt failed")
	return SyncReport{Claimed: 1, Failed: 1}
}

// deadLetter keeps the item as FAILED for operators and fails the document.
func (j *ContingencySyncJob) deadLetter(ctx context.Context, item *model.ContingencyQueueItem, entry *logrus.Entry, detail string, cause error) SyncReport {
	now := j.deps.Now()
	item.Status = model.QueueFailed
	item.LastError = model.TruncateDetail(cause.Error())
	item.LastSyncAt = &now
	item.NextAttemptAt = nil
	attempts := item.SyncAttempts
	_, err := j.deps.Queue.RecordFailure(ctx, item, func(d *model.FiscalDocument) error {
		if err := d.MarkFailed(detail, now); err != nil {
			return err
		}
		d.SyncAttempts = attempts
		return nil
	})
	var terr *model.TransitionError
	if errors.As(err, &terr) {
		return j.release(ctx, item, entry, terr.From)
	}
	if err != nil {
		logging.LogError(j.deps.Logger, "contingency-sync", "deadLetter", "dead-letter contingency item", map[string]any{"document_id": item.DocumentID}, err)
		return SyncReport{Claimed: 1, Skipped: 1}
	}
	entry.WithFields(logrus.Fields{
		"attempts": attempts,
		"detail":   detail,
		"error":    cause.Error(),
	}).Error("contingency item dead-lettered")
	return SyncReport{Claimed: 1, DeadLettered: 1}
}

// release removes the item of a document that no longer waits for the provider.
func (j *ContingencySyncJob) release(ctx context.Context, item *model.ContingencyQueueItem, entry *logrus.Entry, status model.FiscalStatus) SyncReport {
	if _, err := j.deps.Queue.Complete(ctx, item, func(*model.FiscalDocument) error { return nil }); err != nil {
		logging.LogError(j.deps.Logger, "contingency-sync", "release", "remove settled item", map[string]any{"document_id": item.DocumentID}, err)
	} else {
		entry.WithField("status", status).Info("queue item released, document already settled")
	}
	return SyncReport{Claimed: 1, Skipped: 1}
}

// backoff is Backoff*2^(attempts-1), capped at MaxBackoff.
func (j *ContingencySyncJob) backoff(attempts int) time.Duration {
	d := j.cfg.Backoff
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= j.cfg.MaxBackoff {
			return j.cfg.MaxBackoff
		}
	}
	if d > j.cfg.MaxBackoff {
		return j.cfg.MaxBackoff
	}
	return d
}
