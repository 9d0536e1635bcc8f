package service

import (
	"context"
	"sync"
	"time"

	"wainbox/internal/constants"
	"wainbox/internal/metrics"
	"wainbox/internal/privacy"
	"wainbox/pkg/circuitbreaker"
	"wainbox/pkg/evolution"
	"wainbox/pkg/storage"

	"github.com/sirupsen/logrus"
)

type jobKind int

const (
	jobMessageMedia jobKind = iota
	jobAvatar
)

type mediaJob struct {
	kind         jobKind
	workspaceID  string
	instanceName string

	// message media fields
	messageID  int64
	externalID string
	mimeType   string
	timestamp  time.Time

	// avatar fields
	contactID int64
	phone     string
}

// MediaWorkerPool runs the best-effort enrichment jobs: fetch message media
// and contact avatars from the provider and attach them to stored rows.
// Nothing here may fail a message insert; every failure is logged and the
// row keeps its NULL media fields.
type MediaWorkerPool struct {
	jobs     chan mediaJob
	workers  int
	db       Store
	provider evolution.Client
	store    storage.Store
	breaker  *circuitbreaker.Breaker
	timeout  time.Duration
	logger   *logrus.Logger
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func NewMediaWorkerPool(db Store, provider evolution.Client, store storage.Store, workers, queueSize int, timeout time.Duration, logger *logrus.Logger) *MediaWorkerPool {
	if workers <= 0 {
		workers = constants.DefaultMediaWorkers
	}
	if queueSize <= 0 {
		queueSize = constants.DefaultMediaQueueSize
	}

	return &MediaWorkerPool{
		jobs:     make(chan mediaJob, queueSize),
		workers:  workers,
		db:       db,
		provider: provider,
		store:    store,
		breaker: circuitbreaker.New("provider-media",
			constants.DefaultMediaBreakerFailures,
			constants.DefaultMediaBreakerCooldownSec*time.Second,
			logger),
		timeout: timeout,
		logger:  logger,
	}
}

// Start launches the workers. They drain the queue until Stop closes it.
func (p *MediaWorkerPool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				p.process(ctx, job)
			}
		}()
	}

	p.logger.WithField(LogFieldCount, p.workers).Info("Media workers started")
}

// Stop closes the queue and waits for in-flight jobs to finish.
func (p *MediaWorkerPool) Stop() {
	p.stopOnce.Do(func() {
		close(p.jobs)
	})
	p.wg.Wait()
}

// EnqueueMessageMedia schedules a media fetch for one stored message. A full
// queue drops the job: the message row is already durable and only loses its
// attachment.
func (p *MediaWorkerPool) EnqueueMessageMedia(workspaceID, instanceName string, messageID int64, externalID, mimeType string, at time.Time) {
	p.enqueue(mediaJob{
		kind:         jobMessageMedia,
		workspaceID:  workspaceID,
		instanceName: instanceName,
		messageID:    messageID,
		externalID:   externalID,
		mimeType:     mimeType,
		timestamp:    at,
	})
}

// EnqueueAvatar schedules an avatar fetch for a contact without one.
func (p *MediaWorkerPool) EnqueueAvatar(workspaceID, instanceName string, contactID int64, phone string) {
	p.enqueue(mediaJob{
		kind:         jobAvatar,
		workspaceID:  workspaceID,
		instanceName: instanceName,
		contactID:    contactID,
		phone:        phone,
	})
}

func (p *MediaWorkerPool) enqueue(job mediaJob) {
	select {
	case p.jobs <- job:
	default:
		metrics.IncrementCounter("media_jobs_dropped_total", nil)
		p.logger.WithFields(logrus.Fields{
			LogFieldWorkspace: job.workspaceID,
			LogFieldInstance:  job.instanceName,
		}).Warn("Media queue full, job dropped")
	}
}

func (p *MediaWorkerPool) process(ctx context.Context, job mediaJob) {
	jobCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var err error
	switch job.kind {
	case jobMessageMedia:
		err = p.fetchMessageMedia(jobCtx, job)
	case jobAvatar:
		err = p.fetchAvatar(jobCtx, job)
	}

	if err != nil {
		metrics.IncrementCounter("media_fetch_failures_total", nil)
		p.logger.WithError(err).WithFields(logrus.Fields{
			LogFieldWorkspace:  job.workspaceID,
			LogFieldInstance:   job.instanceName,
			LogFieldExternalID: privacy.MaskExternalID(job.externalID),
		}).Warn("Media enrichment failed")
	}
}

func (p *MediaWorkerPool) fetchMessageMedia(ctx context.Context, job mediaJob) error {
	var payload *evolution.MediaPayload

	err := p.breaker.Execute(ctx, func(ctx context.Context) error {
		var fetchErr error
		payload, fetchErr = p.provider.FetchMediaBase64(ctx, job.instanceName, job.externalID)
		return fetchErr
	})
	if err != nil {
		return err
	}

	mimeType := payload.MimeType
	if mimeType == "" {
		mimeType = job.mimeType
	}

	key := storage.ObjectKey(job.workspaceID, job.instanceName, job.externalID, mimeType, job.timestamp)
	if err := p.store.Put(ctx, key, payload.Data, mimeType); err != nil {
		return err
	}

	url := p.store.PublicURL(key)
	if err := p.db.UpdateMessageMedia(ctx, job.workspaceID, job.messageID, url, mimeType, int64(len(payload.Data))); err != nil {
		return err
	}

	metrics.IncrementCounter("media_stored_total", nil)
	p.logger.WithFields(logrus.Fields{
		LogFieldWorkspace: job.workspaceID,
		LogFieldMessageID: job.messageID,
		LogFieldSize:      len(payload.Data),
	}).Debug("Message media stored")

	return nil
}

func (p *MediaWorkerPool) fetchAvatar(ctx context.Context, job mediaJob) error {
	avatarCtx, cancel := context.WithTimeout(ctx, constants.DefaultAvatarFetchTimeoutSec*time.Second)
	defer cancel()

	url, err := p.provider.FetchProfilePictureURL(avatarCtx, job.instanceName, job.phone)
	if err != nil {
		return err
	}
	if url == "" {
		// Peer has no avatar, nothing to store.
		return nil
	}

	return p.db.UpdateContactAvatar(ctx, job.workspaceID, job.contactID, url)
}
