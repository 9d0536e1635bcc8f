package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"wainbox/internal/constants"
	"wainbox/internal/models"

	"github.com/sirupsen/logrus"
)

// Normalizer maps heterogeneous provider payload shapes into the one
// internal event shape everything downstream depends on. Unknown events
// become KindIgnored, never errors.
type Normalizer struct {
	logger *logrus.Logger
}

func New(logger *logrus.Logger) *Normalizer {
	return &Normalizer{logger: logger}
}

// DeliveryKey computes the idempotency key for one inbound webhook call:
// the provider-issued event id when present, otherwise a stable content
// hash over provider, event type, instance and body.
func DeliveryKey(provider, eventType, instance string, body []byte, providerEventID string) string {
	if providerEventID != "" {
		return providerEventID
	}

	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|", provider, eventType, instance)
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// NormalizePhone reduces a remote address to its digits. Addresses with too
// few digits are unusable as contact keys.
func NormalizePhone(address string) (string, bool) {
	if i := strings.IndexByte(address, '@'); i >= 0 {
		address = address[:i]
	}

	var b strings.Builder
	for _, r := range address {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}

	phone := b.String()
	if len(phone) < constants.MinPhoneDigits {
		return "", false
	}
	return phone, true
}

// IsGroupJid reports whether the remote address follows the provider's
// group suffix convention.
func IsGroupJid(jid string) bool {
	return strings.HasSuffix(jid, constants.GroupJidSuffix)
}

// ConnectionStatus maps the provider's connection-state vocabulary onto the
// internal 4-state enum. The mapping is total: unrecognized values map to
// disconnected and are logged, never passed through unmapped.
func (n *Normalizer) ConnectionStatus(state string) models.InstanceStatus {
	switch strings.ToLower(state) {
	case "open":
		return models.InstanceConnected
	case "connecting":
		return models.InstancePairing
	case "close", "closed":
		return models.InstanceDisconnected
	case "refused", "error":
		return models.InstanceError
	default:
		n.logger.WithField("state", state).Warn("Unrecognized provider connection state")
		return models.InstanceDisconnected
	}
}

// MessageStatus maps the provider's ack vocabulary onto the internal
// delivery-status enum. Unrecognized values fall back to delivered.
func (n *Normalizer) MessageStatus(raw string) models.MessageStatus {
	switch strings.ToUpper(raw) {
	case "PENDING":
		return models.StatusSending
	case "SERVER_ACK":
		return models.StatusSent
	case "DELIVERY_ACK":
		return models.StatusDelivered
	case "READ", "PLAYED":
		return models.StatusRead
	case "ERROR":
		return models.StatusFailed
	case "":
		return models.StatusDelivered
	default:
		n.logger.WithField("status", raw).Warn("Unrecognized provider message status")
		return models.StatusDelivered
	}
}

// Normalize maps one provider envelope into a NormalizedEvent. The returned
// event is KindIgnored for unknown event types, undecodable payloads and
// unusable addresses; callers still record those through the delivery
// lifecycle.
func (n *Normalizer) Normalize(envelope *models.WebhookEnvelope) *models.NormalizedEvent {
	event := &models.NormalizedEvent{
		InstanceName:    envelope.Instance,
		ProviderEventID: envelope.EventID,
		Timestamp:       time.Now().UTC(),
	}

	switch envelope.Event {
	case models.EventConnectionUpdate:
		return n.normalizeConnectionUpdate(envelope, event)
	case models.EventQrCodeUpdated:
		return n.normalizeQrUpdate(envelope, event)
	case models.EventMessagesUpsert:
		return n.normalizeMessageUpsert(envelope, event)
	case models.EventMessagesUpdate:
		return n.normalizeMessageUpdate(envelope, event)
	default:
		event.Kind = models.KindIgnored
		event.IgnoreReason = fmt.Sprintf("unknown event type %q", envelope.Event)
		return event
	}
}

func ignored(event *models.NormalizedEvent, reason string) *models.NormalizedEvent {
	event.Kind = models.KindIgnored
	event.IgnoreReason = reason
	return event
}

func (n *Normalizer) normalizeConnectionUpdate(envelope *models.WebhookEnvelope, event *models.NormalizedEvent) *models.NormalizedEvent {
	var data models.ConnectionUpdateData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return ignored(event, "undecodable connection.update payload")
	}

	event.Kind = models.KindConnectionUpdate
	event.Connection = n.ConnectionStatus(data.State)
	return event
}

func (n *Normalizer) normalizeQrUpdate(envelope *models.WebhookEnvelope, event *models.NormalizedEvent) *models.NormalizedEvent {
	var data models.QrCodeUpdatedData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return ignored(event, "undecodable qrcode.updated payload")
	}

	qr := data.QrCode.Base64
	if qr == "" {
		qr = data.QrCode.Code
	}
	if qr == "" {
		return ignored(event, "qrcode.updated without pairing payload")
	}

	event.Kind = models.KindQrUpdate
	event.QrCode = qr
	return event
}

func (n *Normalizer) normalizeMessageUpsert(envelope *models.WebhookEnvelope, event *models.NormalizedEvent) *models.NormalizedEvent {
	var data models.MessageUpsertData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return ignored(event, "undecodable messages.upsert payload")
	}

	if data.Key.ID == "" {
		return ignored(event, "messages.upsert without message id")
	}

	phone, ok := NormalizePhone(data.Key.RemoteJid)
	if !ok {
		return ignored(event, fmt.Sprintf("unusable remote address %q", data.Key.RemoteJid))
	}

	event.Kind = models.KindMessageUpsert
	event.RemoteJid = data.Key.RemoteJid
	event.Phone = phone
	event.IsGroup = IsGroupJid(data.Key.RemoteJid)
	event.PushName = data.PushName
	event.ProviderEventID = data.Key.ID
	event.Status = n.MessageStatus(data.Status)

	if data.Key.FromMe {
		event.Direction = models.DirectionOutgoing
	} else {
		event.Direction = models.DirectionIncoming
	}

	event.MessageType, event.Body, event.Media = extractContent(data.Message)

	if data.MessageTimestamp > 0 {
		event.Timestamp = time.Unix(data.MessageTimestamp, 0).UTC()
	}

	return event
}

// NormalizeSocket maps one realtime frame into a NormalizedEvent. Message
// and status frames share the webhook payload shapes; typing and read
// markers exist only on this path.
func (n *Normalizer) NormalizeSocket(frame *models.SocketFrame) *models.NormalizedEvent {
	event := &models.NormalizedEvent{
		InstanceName:    frame.Instance,
		ProviderEventID: frame.EventID,
		Timestamp:       time.Now().UTC(),
	}

	switch frame.Type {
	case models.SocketMessage:
		return n.normalizeMessageUpsert(&models.WebhookEnvelope{Data: frame.Data}, event)
	case models.SocketMessageStatus:
		return n.normalizeMessageUpdate(&models.WebhookEnvelope{Data: frame.Data}, event)
	case models.SocketTyping:
		var data models.TypingData
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			return ignored(event, "undecodable typing payload")
		}
		if data.RemoteJid == "" {
			return ignored(event, "typing frame without remote address")
		}
		event.Kind = models.KindTyping
		event.RemoteJid = data.RemoteJid
		event.Typing = data.Typing
		return event
	case models.SocketConversation:
		var data models.ReadData
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			return ignored(event, "undecodable conversation payload")
		}
		if data.RemoteJid == "" {
			return ignored(event, "conversation frame without remote address")
		}
		event.Kind = models.KindRead
		event.RemoteJid = data.RemoteJid
		return event
	default:
		return ignored(event, fmt.Sprintf("unknown frame type %q", frame.Type))
	}
}

func (n *Normalizer) normalizeMessageUpdate(envelope *models.WebhookEnvelope, event *models.NormalizedEvent) *models.NormalizedEvent {
	var data models.MessageUpdateData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return ignored(event, "undecodable messages.update payload")
	}

	if data.Key.ID == "" {
		return ignored(event, "messages.update without message id")
	}

	event.Kind = models.KindMessageUpdate
	event.RemoteJid = data.Key.RemoteJid
	event.ProviderEventID = data.Key.ID
	event.Status = n.MessageStatus(data.Status)

	if data.Message != nil {
		_, _, event.Media = extractContent(data.Message)
	}
	return event
}

// extractContent derives the message type, the human-readable body and the
// media reference from the provider's nested per-type content keys.
// Body priority: explicit text, then media caption, then a placeholder
// glyph+label so a failed media fetch still renders something.
func extractContent(content *models.MessageContent) (models.MessageType, string, *models.MediaRef) {
	if content == nil {
		return models.MessageText, "", nil
	}

	if content.Conversation != "" {
		return models.MessageText, content.Conversation, nil
	}
	if content.ExtendedTextMessage != nil && content.ExtendedTextMessage.Text != "" {
		return models.MessageText, content.ExtendedTextMessage.Text, nil
	}

	type mediaCase struct {
		content     *models.MediaContent
		kind        models.MessageType
		placeholder string
	}

	cases := []mediaCase{
		{content.ImageMessage, models.MessageImage, "\U0001F4F7 Photo"},
		{content.VideoMessage, models.MessageVideo, "\U0001F3A5 Video"},
		{content.AudioMessage, models.MessageAudio, "\U0001F3A4 Voice message"},
		{content.DocumentMessage, models.MessageDocument, "\U0001F4C4 Document"},
		{content.StickerMessage, models.MessageSticker, "\U0001F4AC Sticker"},
	}

	for _, c := range cases {
		if c.content == nil {
			continue
		}

		body := c.content.Caption
		if body == "" {
			body = c.placeholder
		}

		return c.kind, body, &models.MediaRef{
			ProviderRef: c.content.URL,
			MimeType:    c.content.MimeType,
			DurationSec: c.content.Seconds,
		}
	}

	return models.MessageText, "", nil
}
