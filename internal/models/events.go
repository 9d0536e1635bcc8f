package models

import (
	"encoding/json"
	"time"
)

// Provider webhook event types
const (
	EventConnectionUpdate = "connection.update"
	EventQrCodeUpdated    = "qrcode.updated"
	EventMessagesUpsert   = "messages.upsert"
	EventMessagesUpdate   = "messages.update"
)

// WebhookEnvelope is the provider-defined JSON envelope carried by every
// webhook call. Data is kept raw; the normalizer decodes it per event type.
type WebhookEnvelope struct {
	Event    string          `json:"event"`
	Instance string          `json:"instance"`
	EventID  string          `json:"eventId,omitempty"`
	Data     json.RawMessage `json:"data"`
	DateTime string          `json:"date_time,omitempty"`
	Sender   string          `json:"sender,omitempty"`
}

// ConnectionUpdateData is the data payload of a connection.update event.
type ConnectionUpdateData struct {
	State        string `json:"state"`
	StatusReason int    `json:"statusReason,omitempty"`
}

// QrCodeUpdatedData is the data payload of a qrcode.updated event.
type QrCodeUpdatedData struct {
	QrCode struct {
		Base64 string `json:"base64"`
		Code   string `json:"code"`
	} `json:"qrcode"`
}

// MessageKey identifies one provider message within a thread.
type MessageKey struct {
	RemoteJid string `json:"remoteJid"`
	FromMe    bool   `json:"fromMe"`
	ID        string `json:"id"`
}

// MessageUpsertData is the data payload of a messages.upsert event. The
// provider nests content under per-type keys; exactly one is populated.
type MessageUpsertData struct {
	Key              MessageKey      `json:"key"`
	PushName         string          `json:"pushName,omitempty"`
	MessageType      string          `json:"messageType,omitempty"`
	MessageTimestamp int64           `json:"messageTimestamp,omitempty"`
	Status           string          `json:"status,omitempty"`
	Message          *MessageContent `json:"message,omitempty"`
}

type MessageContent struct {
	Conversation        string        `json:"conversation,omitempty"`
	ExtendedTextMessage *ExtendedText `json:"extendedTextMessage,omitempty"`
	ImageMessage        *MediaContent `json:"imageMessage,omitempty"`
	VideoMessage        *MediaContent `json:"videoMessage,omitempty"`
	AudioMessage        *MediaContent `json:"audioMessage,omitempty"`
	DocumentMessage     *MediaContent `json:"documentMessage,omitempty"`
	StickerMessage      *MediaContent `json:"stickerMessage,omitempty"`
}

type ExtendedText struct {
	Text string `json:"text"`
}

type MediaContent struct {
	Caption  string `json:"caption,omitempty"`
	MimeType string `json:"mimetype,omitempty"`
	URL      string `json:"url,omitempty"`
	FileName string `json:"fileName,omitempty"`
	Seconds  int    `json:"seconds,omitempty"`
}

// MessageUpdateData is the data payload of a messages.update event. Some
// providers attach the message content again, carrying media references that
// were missing from the original upsert.
type MessageUpdateData struct {
	Key     MessageKey      `json:"key"`
	Status  string          `json:"status"`
	Message *MessageContent `json:"message,omitempty"`
}

// Socket frame types carried on the realtime path.
const (
	SocketMessage       = "message"
	SocketMessageStatus = "messageStatus"
	SocketConversation  = "conversation"
	SocketTyping        = "typing"
)

// SocketFrame is one typed event received on the websocket path. Data is
// kept raw, same as the webhook envelope.
type SocketFrame struct {
	Type     string          `json:"type"`
	Instance string          `json:"instance"`
	EventID  string          `json:"eventId,omitempty"`
	Data     json.RawMessage `json:"data"`
}

// TypingData is the payload of a typing frame.
type TypingData struct {
	RemoteJid string `json:"remoteJid"`
	Typing    bool   `json:"typing"`
}

// ReadData is the payload of a conversation (read marker) frame.
type ReadData struct {
	RemoteJid string `json:"remoteJid"`
}

// EventKind tags the normalized event union.
type EventKind string

const (
	KindConnectionUpdate EventKind = "connection_update"
	KindQrUpdate         EventKind = "qr_update"
	KindMessageUpsert    EventKind = "message_upsert"
	KindMessageUpdate    EventKind = "message_update"
	KindTyping           EventKind = "typing"
	KindRead             EventKind = "read"
	KindIgnored          EventKind = "ignored"
)

// MediaRef points at remote media the side-channel may fetch later.
type MediaRef struct {
	ProviderRef string
	MimeType    string
	DurationSec int
}

// NormalizedEvent is the one internal shape every downstream component
// depends on. Fields are populated per Kind; IgnoreReason is set only for
// KindIgnored.
type NormalizedEvent struct {
	Kind            EventKind
	InstanceName    string
	ProviderEventID string
	RemoteJid       string
	Phone           string
	IsGroup         bool
	PushName        string
	Direction       MessageDirection
	Body            string
	MessageType     MessageType
	Media           *MediaRef
	Status          MessageStatus
	Connection      InstanceStatus
	QrCode          string
	Typing          bool
	Timestamp       time.Time
	IgnoreReason    string
}
