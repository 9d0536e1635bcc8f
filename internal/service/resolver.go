package service

import (
	"context"
	"fmt"
	"time"

	"wainbox/internal/models"

	"github.com/sirupsen/logrus"
)

// Store is the persistence surface the ingestion services depend on.
// *database.Database satisfies it; tests substitute mocks.
type Store interface {
	RecordDelivery(ctx context.Context, delivery *models.WebhookDelivery) (int64, bool, error)
	MarkDelivery(ctx context.Context, id int64, status models.DeliveryStatus, errMsg string) error

	GetInstanceByName(ctx context.Context, workspaceID, name string) (*models.Instance, error)
	UpdateInstanceStatus(ctx context.Context, instanceID int64, status models.InstanceStatus) error
	UpdateInstanceQrCode(ctx context.Context, instanceID int64, qrCode string) error

	GetContactByPhone(ctx context.Context, workspaceID, phone string) (*models.Contact, error)
	InsertContact(ctx context.Context, contact *models.Contact) (int64, bool, error)
	UpdateContactName(ctx context.Context, workspaceID string, id int64, name string) error
	UpdateContactAvatar(ctx context.Context, workspaceID string, id int64, avatarURL string) error

	GetConversationByRemoteJid(ctx context.Context, workspaceID string, instanceID int64, remoteJid string) (*models.Conversation, error)
	GetConversationByContact(ctx context.Context, workspaceID string, instanceID, contactID int64) (*models.Conversation, error)
	InsertConversation(ctx context.Context, conv *models.Conversation) (int64, bool, error)
	BackfillConversationAddress(ctx context.Context, workspaceID string, id int64, remoteJid string, isGroup bool) error
	TouchConversation(ctx context.Context, workspaceID string, id int64, at time.Time, incrementUnread bool) error
	SetConversationTyping(ctx context.Context, workspaceID string, id int64, typing bool) error
	MarkConversationRead(ctx context.Context, workspaceID string, id int64) error

	InsertMessage(ctx context.Context, msg *models.Message) (int64, bool, error)
	GetMessageByExternalID(ctx context.Context, workspaceID string, instanceID int64, externalID string) (*models.Message, error)
	UpdateMessageStatus(ctx context.Context, workspaceID string, id int64, status models.MessageStatus) error
	UpdateMessageMedia(ctx context.Context, workspaceID string, id int64, mediaURL, mimeType string, size int64) error

	AppendConversationEvent(ctx context.Context, event *models.ConversationEvent) error
}

// Resolver finds or creates the contact and conversation rows behind one
// inbound message. Creation is insert-then-re-read: a UNIQUE violation means
// another worker won the race and the natural-key lookup is retried.
type Resolver struct {
	db     Store
	logger *logrus.Logger
}

func NewResolver(db Store, logger *logrus.Logger) *Resolver {
	return &Resolver{db: db, logger: logger}
}

// ResolveContact returns the contact for a normalized phone, creating it on
// first sight. A display-name hint only ever fills blanks: it is applied
// when the stored name is empty or equals the phone, never over a name a
// human may have curated.
func (r *Resolver) ResolveContact(ctx context.Context, workspaceID, phone, pushName string) (*models.Contact, error) {
	contact, err := r.db.GetContactByPhone(ctx, workspaceID, phone)
	if err != nil {
		return nil, fmt.Errorf("failed to look up contact: %w", err)
	}

	if contact == nil {
		name := pushName
		if name == "" {
			name = phone
		}

		candidate := &models.Contact{
			WorkspaceID: workspaceID,
			Phone:       phone,
			Name:        name,
		}

		id, duplicate, err := r.db.InsertContact(ctx, candidate)
		if err != nil {
			return nil, fmt.Errorf("failed to create contact: %w", err)
		}

		if !duplicate {
			candidate.ID = id
			return candidate, nil
		}

		// Lost the race, the winner's row is authoritative.
		contact, err = r.db.GetContactByPhone(ctx, workspaceID, phone)
		if err != nil {
			return nil, fmt.Errorf("failed to re-read contact after race: %w", err)
		}
		if contact == nil {
			return nil, fmt.Errorf("contact vanished after duplicate insert for phone %s", phone)
		}
	}

	if pushName != "" && pushName != contact.Name && !contact.HasMeaningfulName() {
		if err := r.db.UpdateContactName(ctx, workspaceID, contact.ID, pushName); err != nil {
			return nil, fmt.Errorf("failed to update contact name: %w", err)
		}
		contact.Name = pushName
	}

	return contact, nil
}

// ResolveConversation returns the thread for a message, creating it on first
// sight. The remote address is the authoritative key; the per-contact lookup
// is the fallback for threads created before their address was known, and
// such threads get the address backfilled.
func (r *Resolver) ResolveConversation(ctx context.Context, workspaceID string, instanceID int64, contact *models.Contact, remoteJid string, isGroup bool) (*models.Conversation, error) {
	conv, err := r.db.GetConversationByRemoteJid(ctx, workspaceID, instanceID, remoteJid)
	if err != nil {
		return nil, fmt.Errorf("failed to look up conversation: %w", err)
	}
	if conv != nil {
		return conv, nil
	}

	conv, err = r.db.GetConversationByContact(ctx, workspaceID, instanceID, contact.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up conversation by contact: %w", err)
	}
	if conv != nil {
		if conv.RemoteJid == nil {
			if err := r.db.BackfillConversationAddress(ctx, workspaceID, conv.ID, remoteJid, isGroup); err != nil {
				return nil, fmt.Errorf("failed to backfill conversation address: %w", err)
			}
			conv.RemoteJid = &remoteJid
			conv.IsGroup = isGroup
		}
		return conv, nil
	}

	candidate := &models.Conversation{
		WorkspaceID: workspaceID,
		ContactID:   contact.ID,
		InstanceID:  instanceID,
		RemoteJid:   &remoteJid,
		IsGroup:     isGroup,
	}

	id, duplicate, err := r.db.InsertConversation(ctx, candidate)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	if !duplicate {
		candidate.ID = id
		return candidate, nil
	}

	conv, err = r.db.GetConversationByRemoteJid(ctx, workspaceID, instanceID, remoteJid)
	if err != nil {
		return nil, fmt.Errorf("failed to re-read conversation after race: %w", err)
	}
	if conv == nil {
		return nil, fmt.Errorf("conversation vanished after duplicate insert for %s", remoteJid)
	}

	return conv, nil
}
