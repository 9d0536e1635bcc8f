package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	apperrors "wainbox/internal/errors"
	"wainbox/internal/metrics"
	"wainbox/internal/models"
	"wainbox/internal/normalize"
	"wainbox/internal/privacy"

	"github.com/sirupsen/logrus"
)

// Deduper is the realtime duplicate gate in front of the socket path.
type Deduper interface {
	IsDuplicate(eventID, externalID string) bool
	MarkProcessed(eventID, externalID string)
}

// MediaEnqueuer hands best-effort enrichment jobs to the worker pool.
type MediaEnqueuer interface {
	EnqueueMessageMedia(workspaceID, instanceName string, messageID int64, externalID, mimeType string, at time.Time)
	EnqueueAvatar(workspaceID, instanceName string, contactID int64, phone string)
}

// Outcome summarizes how one inbound event ended. Duplicate means the whole
// delivery was a replay and nothing was applied.
type Outcome struct {
	Status       models.DeliveryStatus
	Duplicate    bool
	Kind         models.EventKind
	MessageID    int64
	IgnoreReason string
}

// Ingestor is the pipeline behind both transports: record (webhook only),
// normalize, resolve, apply. Every write is idempotent; replays surface as
// duplicate outcomes, never as errors.
type Ingestor struct {
	db         Store
	resolver   *Resolver
	normalizer *normalize.Normalizer
	dedup      Deduper
	media      MediaEnqueuer
	provider   string
	logger     *logrus.Logger
}

func NewIngestor(db Store, resolver *Resolver, normalizer *normalize.Normalizer, dedup Deduper, media MediaEnqueuer, provider string, logger *logrus.Logger) *Ingestor {
	return &Ingestor{
		db:         db,
		resolver:   resolver,
		normalizer: normalizer,
		dedup:      dedup,
		media:      media,
		provider:   provider,
		logger:     logger,
	}
}

// IngestWebhook runs one webhook delivery through the pipeline. The delivery
// row is recorded before any domain processing; its UNIQUE key is the
// idempotency gate for provider retries.
func (s *Ingestor) IngestWebhook(ctx context.Context, workspace *models.Workspace, body []byte, headers string) (*Outcome, error) {
	var envelope models.WebhookEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInvalidInput, "undecodable webhook body")
	}
	if envelope.Event == "" {
		return nil, apperrors.New(apperrors.ErrCodeInvalidInput, "webhook envelope missing event type")
	}

	key := normalize.DeliveryKey(s.provider, envelope.Event, envelope.Instance, body, envelope.EventID)

	deliveryID, duplicate, err := s.db.RecordDelivery(ctx, &models.WebhookDelivery{
		WorkspaceID: workspace.ID,
		Provider:    s.provider,
		EventType:   envelope.Event,
		Instance:    envelope.Instance,
		DeliveryKey: key,
		Payload:     string(body),
		Headers:     headers,
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseQuery, "failed to record delivery")
	}
	if duplicate {
		metrics.IncrementCounter("deliveries_duplicate_total", map[string]string{"path": "webhook"})
		s.logger.WithFields(logrus.Fields{
			LogFieldWorkspace:   workspace.ID,
			LogFieldEvent:       envelope.Event,
			LogFieldDeliveryKey: privacy.MaskExternalID(key),
		}).Info("Duplicate webhook delivery suppressed")
		return &Outcome{Status: models.DeliveryProcessed, Duplicate: true}, nil
	}

	event := s.normalizer.Normalize(&envelope)
	outcome, applyErr := s.apply(ctx, workspace, event)

	s.finishDelivery(ctx, deliveryID, outcome, applyErr)

	if applyErr != nil {
		return nil, applyErr
	}
	return outcome, nil
}

// IngestSocketFrame runs one realtime frame through the pipeline. There is
// no delivery row on this path; the in-memory cache suppresses rapid
// duplicates and the database unique constraints remain the backstop.
func (s *Ingestor) IngestSocketFrame(ctx context.Context, workspace *models.Workspace, frame *models.SocketFrame) (*Outcome, error) {
	// Frames carrying a provider event id are gated before any payload
	// decoding happens.
	if frame.EventID != "" && s.dedup.IsDuplicate(frame.Type+"|"+frame.EventID, "") {
		metrics.IncrementCounter("deliveries_duplicate_total", map[string]string{"path": "socket"})
		return &Outcome{Status: models.DeliveryProcessed, Duplicate: true}, nil
	}

	event := s.normalizer.NormalizeSocket(frame)

	cacheKey := s.socketCacheKey(frame, event)
	if frame.EventID == "" && cacheKey != "" && s.dedup.IsDuplicate(cacheKey, "") {
		metrics.IncrementCounter("deliveries_duplicate_total", map[string]string{"path": "socket"})
		return &Outcome{Status: models.DeliveryProcessed, Duplicate: true, Kind: event.Kind}, nil
	}

	outcome, err := s.apply(ctx, workspace, event)
	if err != nil {
		return nil, err
	}

	if cacheKey != "" {
		s.dedup.MarkProcessed(cacheKey, "")
	}
	return outcome, nil
}

// socketCacheKey picks the dedup key for one frame. Status-bearing frames
// fold the status in so a later transition on the same message id is not
// suppressed.
func (s *Ingestor) socketCacheKey(frame *models.SocketFrame, event *models.NormalizedEvent) string {
	if frame.EventID != "" {
		return frame.Type + "|" + frame.EventID
	}

	switch event.Kind {
	case models.KindMessageUpsert:
		return frame.Type + "|" + event.ProviderEventID
	case models.KindMessageUpdate:
		return fmt.Sprintf("%s|%s|%s", frame.Type, event.ProviderEventID, event.Status)
	default:
		return ""
	}
}

func (s *Ingestor) finishDelivery(ctx context.Context, deliveryID int64, outcome *Outcome, applyErr error) {
	status := models.DeliveryProcessed
	errMsg := ""

	switch {
	case applyErr != nil && apperrors.Is(applyErr, apperrors.ErrCodeUnknownInstance):
		// A resolution miss is a terminal ignore, not a failure: the caller
		// still sees the error, but the delivery row records that nothing
		// was wrong with the delivery itself.
		status = models.DeliveryIgnored
		errMsg = applyErr.Error()
	case applyErr != nil:
		status = models.DeliveryFailed
		errMsg = applyErr.Error()
	case outcome.Status == models.DeliveryIgnored:
		status = models.DeliveryIgnored
		errMsg = outcome.IgnoreReason
	}

	if err := s.db.MarkDelivery(ctx, deliveryID, status, errMsg); err != nil {
		// The event is already applied; losing the terminal mark only costs
		// audit fidelity.
		s.logger.WithError(err).WithField("delivery_id", deliveryID).Warn("Failed to mark delivery status")
	}

	metrics.IncrementCounter("deliveries_total", map[string]string{"status": string(status)})
}

func (s *Ingestor) apply(ctx context.Context, workspace *models.Workspace, event *models.NormalizedEvent) (*Outcome, error) {
	start := time.Now()
	defer func() {
		metrics.RecordTimer("ingest_apply_duration", time.Since(start), map[string]string{"kind": string(event.Kind)})
	}()

	switch event.Kind {
	case models.KindIgnored:
		s.logger.WithFields(logrus.Fields{
			LogFieldWorkspace: workspace.ID,
			LogFieldInstance:  event.InstanceName,
			"reason":          event.IgnoreReason,
		}).Info("Event ignored")
		return &Outcome{Status: models.DeliveryIgnored, Kind: event.Kind, IgnoreReason: event.IgnoreReason}, nil

	case models.KindConnectionUpdate:
		return s.applyConnectionUpdate(ctx, workspace, event)

	case models.KindQrUpdate:
		return s.applyQrUpdate(ctx, workspace, event)

	case models.KindMessageUpsert:
		return s.applyMessageUpsert(ctx, workspace, event)

	case models.KindMessageUpdate:
		return s.applyMessageUpdate(ctx, workspace, event)

	case models.KindTyping:
		return s.applyConversationFlag(ctx, workspace, event, true)

	case models.KindRead:
		return s.applyConversationFlag(ctx, workspace, event, false)

	default:
		return nil, apperrors.New(apperrors.ErrCodeInternalError, fmt.Sprintf("unhandled event kind %q", event.Kind))
	}
}

// lookupInstance resolves the instance name. The ingestion path never
// creates instances, so a miss is final.
func (s *Ingestor) lookupInstance(ctx context.Context, workspace *models.Workspace, name string) (*models.Instance, error) {
	if name == "" {
		return nil, nil
	}

	inst, err := s.db.GetInstanceByName(ctx, workspace.ID, name)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseQuery, "failed to look up instance")
	}
	return inst, nil
}

func (s *Ingestor) applyConnectionUpdate(ctx context.Context, workspace *models.Workspace, event *models.NormalizedEvent) (*Outcome, error) {
	inst, err := s.lookupInstance(ctx, workspace, event.InstanceName)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return s.ignoredOutcome(workspace, event, "connection update for unknown instance"), nil
	}

	if err := s.db.UpdateInstanceStatus(ctx, inst.ID, event.Connection); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseQuery, "failed to update instance status")
	}

	s.logger.WithFields(logrus.Fields{
		LogFieldWorkspace: workspace.ID,
		LogFieldInstance:  event.InstanceName,
		"status":          event.Connection,
	}).Info("Instance connection state updated")

	return &Outcome{Status: models.DeliveryProcessed, Kind: event.Kind}, nil
}

func (s *Ingestor) applyQrUpdate(ctx context.Context, workspace *models.Workspace, event *models.NormalizedEvent) (*Outcome, error) {
	inst, err := s.lookupInstance(ctx, workspace, event.InstanceName)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return s.ignoredOutcome(workspace, event, "QR update for unknown instance"), nil
	}

	if err := s.db.UpdateInstanceQrCode(ctx, inst.ID, event.QrCode); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseQuery, "failed to update instance QR code")
	}

	return &Outcome{Status: models.DeliveryProcessed, Kind: event.Kind}, nil
}

func (s *Ingestor) applyMessageUpsert(ctx context.Context, workspace *models.Workspace, event *models.NormalizedEvent) (*Outcome, error) {
	inst, err := s.lookupInstance(ctx, workspace, event.InstanceName)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, apperrors.New(apperrors.ErrCodeUnknownInstance, "message event for unresolvable instance").
			WithContext("instance", event.InstanceName)
	}

	contact, err := s.resolver.ResolveContact(ctx, workspace.ID, event.Phone, event.PushName)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseQuery, "failed to resolve contact")
	}

	conv, err := s.resolver.ResolveConversation(ctx, workspace.ID, inst.ID, contact, event.RemoteJid, event.IsGroup)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseQuery, "failed to resolve conversation")
	}

	externalID := event.ProviderEventID
	msg := &models.Message{
		WorkspaceID:    workspace.ID,
		ConversationID: conv.ID,
		InstanceID:     inst.ID,
		Direction:      event.Direction,
		Body:           event.Body,
		Type:           event.MessageType,
		ExternalID:     &externalID,
		Status:         event.Status,
	}
	if event.Media != nil {
		if event.Media.MimeType != "" {
			msg.MediaMimeType = &event.Media.MimeType
		}
		if event.Media.DurationSec > 0 {
			d := event.Media.DurationSec
			msg.DurationSec = &d
		}
	}

	msgID, duplicate, err := s.db.InsertMessage(ctx, msg)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseQuery, "failed to insert message")
	}

	// Last activity always moves to processing time, including when the
	// insert short-circuited on the durable dedup constraint.
	now := time.Now().UTC()

	if duplicate {
		metrics.IncrementCounter("messages_duplicate_total", nil)
		if err := s.db.TouchConversation(ctx, workspace.ID, conv.ID, now, false); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseQuery, "failed to touch conversation")
		}
		s.logger.WithFields(logrus.Fields{
			LogFieldWorkspace:  workspace.ID,
			LogFieldInstance:   event.InstanceName,
			LogFieldExternalID: privacy.MaskExternalID(externalID),
		}).Debug("Duplicate message suppressed")
		return &Outcome{Status: models.DeliveryProcessed, Duplicate: false, Kind: event.Kind}, nil
	}

	incrementUnread := event.Direction == models.DirectionIncoming
	if err := s.db.TouchConversation(ctx, workspace.ID, conv.ID, now, incrementUnread); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseQuery, "failed to touch conversation")
	}

	s.appendAudit(ctx, workspace.ID, conv.ID, event)

	if event.Media != nil && event.MessageType.RequiresMedia() {
		mimeType := event.Media.MimeType
		s.media.EnqueueMessageMedia(workspace.ID, event.InstanceName, msgID, externalID, mimeType, event.Timestamp)
	}
	if contact.AvatarURL == nil || *contact.AvatarURL == "" {
		s.media.EnqueueAvatar(workspace.ID, event.InstanceName, contact.ID, contact.Phone)
	}

	metrics.IncrementCounter("messages_ingested_total", map[string]string{
		"direction": string(event.Direction),
		"type":      string(event.MessageType),
	})

	s.logger.WithFields(logrus.Fields{
		LogFieldWorkspace:   workspace.ID,
		LogFieldInstance:    event.InstanceName,
		LogFieldMessageID:   msgID,
		LogFieldMessageType: event.MessageType,
		LogFieldDirection:   event.Direction,
		"remote_jid":        privacy.MaskJid(event.RemoteJid),
	}).Info("Message ingested")

	return &Outcome{Status: models.DeliveryProcessed, Kind: event.Kind, MessageID: msgID}, nil
}

// applyMessageUpdate patches the status of an already-stored message. An
// update arriving before its upsert is an ordering race and is ignored, not
// upserted: a later retry of the upsert will insert the full row.
func (s *Ingestor) applyMessageUpdate(ctx context.Context, workspace *models.Workspace, event *models.NormalizedEvent) (*Outcome, error) {
	inst, err := s.lookupInstance(ctx, workspace, event.InstanceName)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, apperrors.New(apperrors.ErrCodeUnknownInstance, "status event for unresolvable instance").
			WithContext("instance", event.InstanceName)
	}

	msg, err := s.db.GetMessageByExternalID(ctx, workspace.ID, inst.ID, event.ProviderEventID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseQuery, "failed to look up message for update")
	}
	if msg == nil {
		return s.ignoredOutcome(workspace, event, "status update for unknown message"), nil
	}

	if err := s.db.UpdateMessageStatus(ctx, workspace.ID, msg.ID, event.Status); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseQuery, "failed to update message status")
	}

	// Updates sometimes re-carry the content; any media fields still empty
	// on the stored row get filled from it.
	if event.Media != nil && (event.Media.ProviderRef != "" || event.Media.MimeType != "") {
		if err := s.db.UpdateMessageMedia(ctx, workspace.ID, msg.ID, event.Media.ProviderRef, event.Media.MimeType, 0); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseQuery, "failed to update message media")
		}
	}

	s.logger.WithFields(logrus.Fields{
		LogFieldWorkspace:  workspace.ID,
		LogFieldMessageID:  msg.ID,
		LogFieldExternalID: privacy.MaskExternalID(event.ProviderEventID),
		"status":           event.Status,
	}).Debug("Message status updated")

	return &Outcome{Status: models.DeliveryProcessed, Kind: event.Kind, MessageID: msg.ID}, nil
}

// applyConversationFlag handles the realtime-only typing and read frames.
// Both are lookups, never creators: a flag for an unknown thread is ignored.
func (s *Ingestor) applyConversationFlag(ctx context.Context, workspace *models.Workspace, event *models.NormalizedEvent, typing bool) (*Outcome, error) {
	inst, err := s.lookupInstance(ctx, workspace, event.InstanceName)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return s.ignoredOutcome(workspace, event, "conversation flag for unknown instance"), nil
	}

	conv, err := s.db.GetConversationByRemoteJid(ctx, workspace.ID, inst.ID, event.RemoteJid)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseQuery, "failed to look up conversation")
	}
	if conv == nil {
		return s.ignoredOutcome(workspace, event, "conversation flag for unknown thread"), nil
	}

	if typing {
		err = s.db.SetConversationTyping(ctx, workspace.ID, conv.ID, event.Typing)
	} else {
		err = s.db.MarkConversationRead(ctx, workspace.ID, conv.ID)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseQuery, "failed to update conversation flag")
	}

	return &Outcome{Status: models.DeliveryProcessed, Kind: event.Kind}, nil
}

func (s *Ingestor) ignoredOutcome(workspace *models.Workspace, event *models.NormalizedEvent, reason string) *Outcome {
	s.logger.WithFields(logrus.Fields{
		LogFieldWorkspace: workspace.ID,
		LogFieldInstance:  event.InstanceName,
		"reason":          reason,
	}).Info("Event ignored")
	return &Outcome{Status: models.DeliveryIgnored, Kind: event.Kind, IgnoreReason: reason}
}

// appendAudit records the accepted event in the per-conversation trail. The
// trail is a debugging aid; failures are logged and swallowed.
func (s *Ingestor) appendAudit(ctx context.Context, workspaceID string, conversationID int64, event *models.NormalizedEvent) {
	payload, err := json.Marshal(map[string]interface{}{
		"kind":      event.Kind,
		"direction": event.Direction,
		"type":      event.MessageType,
		"timestamp": event.Timestamp,
	})
	if err != nil {
		return
	}

	if err := s.db.AppendConversationEvent(ctx, &models.ConversationEvent{
		WorkspaceID:    workspaceID,
		ConversationID: conversationID,
		EventType:      string(event.Kind),
		Payload:        string(payload),
	}); err != nil {
		s.logger.WithError(err).Debug("Failed to append conversation event")
	}
}
