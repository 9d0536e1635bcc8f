package models

import (
	"time"
)

// DeliveryStatus is the terminal state recorded for one webhook delivery
// attempt.
type DeliveryStatus string

const (
	DeliveryReceived  DeliveryStatus = "received"
	DeliveryProcessed DeliveryStatus = "processed"
	DeliveryIgnored   DeliveryStatus = "ignored"
	DeliveryFailed    DeliveryStatus = "failed"
)

// InstanceStatus is the internal 4-state connection vocabulary. Provider
// states always normalize into exactly one of these.
type InstanceStatus string

const (
	InstanceDisconnected InstanceStatus = "disconnected"
	InstancePairing      InstanceStatus = "pairing"
	InstanceConnected    InstanceStatus = "connected"
	InstanceError        InstanceStatus = "error"
)

type MessageDirection string

const (
	DirectionIncoming MessageDirection = "incoming"
	DirectionOutgoing MessageDirection = "outgoing"
)

type MessageType string

const (
	MessageText     MessageType = "text"
	MessageImage    MessageType = "image"
	MessageVideo    MessageType = "video"
	MessageAudio    MessageType = "audio"
	MessageDocument MessageType = "document"
	MessageSticker  MessageType = "sticker"
)

// RequiresMedia reports whether a message of this type carries remote media
// worth fetching.
func (t MessageType) RequiresMedia() bool {
	switch t {
	case MessageImage, MessageVideo, MessageAudio, MessageDocument, MessageSticker:
		return true
	}
	return false
}

type MessageStatus string

const (
	StatusSending   MessageStatus = "sending"
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
	StatusFailed    MessageStatus = "failed"
)

// Workspace is the tenancy boundary. Every query in the store is scoped by
// workspace id.
type Workspace struct {
	ID         string    `db:"id"`
	Name       string    `db:"name"`
	APIKeyHash string    `db:"api_key_hash"`
	CreatedAt  time.Time `db:"created_at"`
}

// WebhookDelivery is the audit/idempotency record of one inbound provider
// call. Rows are never deleted.
type WebhookDelivery struct {
	ID          int64          `db:"id"`
	WorkspaceID string         `db:"workspace_id"`
	Provider    string         `db:"provider"`
	EventType   string         `db:"event_type"`
	Instance    string         `db:"instance_name"`
	DeliveryKey string         `db:"delivery_key"`
	Payload     string         `db:"payload"`
	Headers     string         `db:"headers"`
	Status      DeliveryStatus `db:"status"`
	Error       *string        `db:"error"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

// Instance is one connected provider account inside a workspace. Instances
// are provisioned out of band; the ingestion path never creates them.
type Instance struct {
	ID             int64          `db:"id"`
	WorkspaceID    string         `db:"workspace_id"`
	Name           string         `db:"name"`
	Phone          string         `db:"phone"`
	Status         InstanceStatus `db:"status"`
	QrCode         *string        `db:"qr_code"`
	ConnectedAt    *time.Time     `db:"connected_at"`
	DisconnectedAt *time.Time     `db:"disconnected_at"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

type Contact struct {
	ID          int64     `db:"id"`
	WorkspaceID string    `db:"workspace_id"`
	Phone       string    `db:"phone"`
	Name        string    `db:"name"`
	AvatarURL   *string   `db:"avatar_url"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// HasMeaningfulName reports whether the contact's name is anything beyond a
// placeholder (empty or its own phone number). Only placeholder names may be
// overwritten by inbound display-name hints.
func (c *Contact) HasMeaningfulName() bool {
	return c.Name != "" && c.Name != c.Phone
}

type Conversation struct {
	ID            int64      `db:"id"`
	WorkspaceID   string     `db:"workspace_id"`
	ContactID     int64      `db:"contact_id"`
	InstanceID    int64      `db:"instance_id"`
	RemoteJid     *string    `db:"remote_jid"`
	IsGroup       bool       `db:"is_group"`
	UnreadCount   int        `db:"unread_count"`
	Typing        bool       `db:"typing"`
	LastMessageAt *time.Time `db:"last_message_at"`
	CreatedAt     time.Time  `db:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"`
}

// Message is immutable once created except for status and media fields.
type Message struct {
	ID             int64            `db:"id"`
	WorkspaceID    string           `db:"workspace_id"`
	ConversationID int64            `db:"conversation_id"`
	InstanceID     int64            `db:"instance_id"`
	Direction      MessageDirection `db:"direction"`
	Body           string           `db:"body"`
	Type           MessageType      `db:"type"`
	MediaURL       *string          `db:"media_url"`
	MediaMimeType  *string          `db:"media_mime_type"`
	MediaSize      *int64           `db:"media_size"`
	DurationSec    *int             `db:"duration_sec"`
	ExternalID     *string          `db:"external_id"`
	Status         MessageStatus    `db:"status"`
	ReplyToID      *int64           `db:"reply_to_id"`
	QuotedSnapshot *string          `db:"quoted_snapshot"`
	CreatedAt      time.Time        `db:"created_at"`
	UpdatedAt      time.Time        `db:"updated_at"`
}

// ConversationEvent is the append-only audit trail of accepted events per
// conversation. Used for debugging only, never for business logic.
type ConversationEvent struct {
	ID             int64     `db:"id"`
	WorkspaceID    string    `db:"workspace_id"`
	ConversationID int64     `db:"conversation_id"`
	EventType      string    `db:"event_type"`
	Payload        string    `db:"payload"`
	CreatedAt      time.Time `db:"created_at"`
}
