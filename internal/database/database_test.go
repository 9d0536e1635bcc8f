package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"wainbox/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *Database {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "wainbox-test.db")
	db, err := New(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return db
}

func seedWorkspace(t *testing.T, db *Database) *models.Workspace {
	t.Helper()

	ws := &models.Workspace{
		ID:         "ws-test",
		Name:       "Test Workspace",
		APIKeyHash: "hash-test",
	}
	require.NoError(t, db.SaveWorkspace(context.Background(), ws))
	return ws
}

func seedInstance(t *testing.T, db *Database, ws *models.Workspace, name string) *models.Instance {
	t.Helper()

	inst := &models.Instance{
		WorkspaceID: ws.ID,
		Name:        name,
		Status:      models.InstanceConnected,
	}
	id, err := db.SaveInstance(context.Background(), inst)
	require.NoError(t, err)
	inst.ID = id
	return inst
}

func TestWorkspaceLookupByAPIKeyHash(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	ws := seedWorkspace(t, db)

	found, err := db.GetWorkspaceByAPIKeyHash(ctx, ws.APIKeyHash)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, ws.ID, found.ID)

	missing, err := db.GetWorkspaceByAPIKeyHash(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRecordDeliveryIdempotency(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	ws := seedWorkspace(t, db)

	delivery := &models.WebhookDelivery{
		WorkspaceID: ws.ID,
		Provider:    "evolution",
		EventType:   models.EventMessagesUpsert,
		Instance:    "ws_abcdef01_1234",
		DeliveryKey: "evt-1",
		Payload:     `{"event":"messages.upsert"}`,
		Headers:     "{}",
	}

	id, duplicate, err := db.RecordDelivery(ctx, delivery)
	require.NoError(t, err)
	assert.False(t, duplicate)
	assert.Positive(t, id)

	replayID, duplicate, err := db.RecordDelivery(ctx, delivery)
	require.NoError(t, err)
	assert.True(t, duplicate, "same delivery key must be flagged")
	assert.Zero(t, replayID)

	stored, err := db.GetDelivery(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryReceived, stored.Status)
}

func TestMarkDelivery(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	ws := seedWorkspace(t, db)

	id, _, err := db.RecordDelivery(ctx, &models.WebhookDelivery{
		WorkspaceID: ws.ID,
		Provider:    "evolution",
		EventType:   models.EventMessagesUpsert,
		Instance:    "inst",
		DeliveryKey: "evt-2",
		Payload:     "{}",
	})
	require.NoError(t, err)

	require.NoError(t, db.MarkDelivery(ctx, id, models.DeliveryIgnored, "unknown event"))

	stored, err := db.GetDelivery(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryIgnored, stored.Status)
	require.NotNil(t, stored.Error)
	assert.Equal(t, "unknown event", *stored.Error)

	// Empty error message stores NULL, not an empty string.
	require.NoError(t, db.MarkDelivery(ctx, id, models.DeliveryProcessed, ""))
	stored, err = db.GetDelivery(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, stored.Error)
}

func TestInsertContactDuplicate(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	ws := seedWorkspace(t, db)

	id, duplicate, err := db.InsertContact(ctx, &models.Contact{
		WorkspaceID: ws.ID,
		Phone:       "5511999999999",
		Name:        "Alice",
	})
	require.NoError(t, err)
	assert.False(t, duplicate)
	assert.Positive(t, id)

	_, duplicate, err = db.InsertContact(ctx, &models.Contact{
		WorkspaceID: ws.ID,
		Phone:       "5511999999999",
		Name:        "Someone Else",
	})
	require.NoError(t, err)
	assert.True(t, duplicate)

	contact, err := db.GetContactByPhone(ctx, ws.ID, "5511999999999")
	require.NoError(t, err)
	require.NotNil(t, contact)
	assert.Equal(t, "Alice", contact.Name, "original row untouched")
}

func TestUpdateContactAvatarOnlyFillsBlanks(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	ws := seedWorkspace(t, db)

	id, _, err := db.InsertContact(ctx, &models.Contact{
		WorkspaceID: ws.ID,
		Phone:       "5511999999999",
		Name:        "Alice",
	})
	require.NoError(t, err)

	require.NoError(t, db.UpdateContactAvatar(ctx, ws.ID, id, "https://cdn.example/a.jpg"))
	require.NoError(t, db.UpdateContactAvatar(ctx, ws.ID, id, "https://cdn.example/b.jpg"))

	contact, err := db.GetContact(ctx, ws.ID, id)
	require.NoError(t, err)
	require.NotNil(t, contact.AvatarURL)
	assert.Equal(t, "https://cdn.example/a.jpg", *contact.AvatarURL, "existing avatar never overwritten")
}

func TestConversationLifecycle(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	ws := seedWorkspace(t, db)
	inst := seedInstance(t, db, ws, "inst-1")

	contactID, _, err := db.InsertContact(ctx, &models.Contact{
		WorkspaceID: ws.ID,
		Phone:       "5511999999999",
	})
	require.NoError(t, err)

	jid := "5511999999999@s.whatsapp.net"
	convID, duplicate, err := db.InsertConversation(ctx, &models.Conversation{
		WorkspaceID: ws.ID,
		ContactID:   contactID,
		InstanceID:  inst.ID,
		RemoteJid:   &jid,
	})
	require.NoError(t, err)
	assert.False(t, duplicate)

	_, duplicate, err = db.InsertConversation(ctx, &models.Conversation{
		WorkspaceID: ws.ID,
		ContactID:   contactID,
		InstanceID:  inst.ID,
		RemoteJid:   &jid,
	})
	require.NoError(t, err)
	assert.True(t, duplicate)

	conv, err := db.GetConversationByRemoteJid(ctx, ws.ID, inst.ID, jid)
	require.NoError(t, err)
	require.NotNil(t, conv)
	assert.Equal(t, convID, conv.ID)

	at := time.Now().UTC()
	require.NoError(t, db.TouchConversation(ctx, ws.ID, convID, at, true))
	require.NoError(t, db.TouchConversation(ctx, ws.ID, convID, at, false))

	conv, err = db.GetConversation(ctx, ws.ID, convID)
	require.NoError(t, err)
	assert.Equal(t, 1, conv.UnreadCount, "only incoming touches increment unread")
	require.NotNil(t, conv.LastMessageAt)

	require.NoError(t, db.MarkConversationRead(ctx, ws.ID, convID))
	conv, err = db.GetConversation(ctx, ws.ID, convID)
	require.NoError(t, err)
	assert.Zero(t, conv.UnreadCount)

	require.NoError(t, db.SetConversationTyping(ctx, ws.ID, convID, true))
	conv, err = db.GetConversation(ctx, ws.ID, convID)
	require.NoError(t, err)
	assert.True(t, conv.Typing)
}

func TestBackfillConversationAddress(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	ws := seedWorkspace(t, db)
	inst := seedInstance(t, db, ws, "inst-1")

	contactID, _, err := db.InsertContact(ctx, &models.Contact{
		WorkspaceID: ws.ID,
		Phone:       "5511999999999",
	})
	require.NoError(t, err)

	convID, _, err := db.InsertConversation(ctx, &models.Conversation{
		WorkspaceID: ws.ID,
		ContactID:   contactID,
		InstanceID:  inst.ID,
		RemoteJid:   nil,
	})
	require.NoError(t, err)

	conv, err := db.GetConversationByContact(ctx, ws.ID, inst.ID, contactID)
	require.NoError(t, err)
	require.NotNil(t, conv)
	assert.Nil(t, conv.RemoteJid)

	require.NoError(t, db.BackfillConversationAddress(ctx, ws.ID, convID, "5511999999999@s.whatsapp.net", false))

	conv, err = db.GetConversation(ctx, ws.ID, convID)
	require.NoError(t, err)
	require.NotNil(t, conv.RemoteJid)
	assert.Equal(t, "5511999999999@s.whatsapp.net", *conv.RemoteJid)

	// A second backfill is a no-op once the address is set.
	require.NoError(t, db.BackfillConversationAddress(ctx, ws.ID, convID, "other@s.whatsapp.net", true))
	conv, err = db.GetConversation(ctx, ws.ID, convID)
	require.NoError(t, err)
	assert.Equal(t, "5511999999999@s.whatsapp.net", *conv.RemoteJid)
}

func seedConversation(t *testing.T, db *Database, ws *models.Workspace, inst *models.Instance) *models.Conversation {
	t.Helper()
	ctx := context.Background()

	contactID, _, err := db.InsertContact(ctx, &models.Contact{
		WorkspaceID: ws.ID,
		Phone:       "5511999999999",
	})
	require.NoError(t, err)

	jid := "5511999999999@s.whatsapp.net"
	convID, _, err := db.InsertConversation(ctx, &models.Conversation{
		WorkspaceID: ws.ID,
		ContactID:   contactID,
		InstanceID:  inst.ID,
		RemoteJid:   &jid,
	})
	require.NoError(t, err)

	conv, err := db.GetConversation(ctx, ws.ID, convID)
	require.NoError(t, err)
	return conv
}

func TestInsertMessageDuplicate(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	ws := seedWorkspace(t, db)
	inst := seedInstance(t, db, ws, "inst-1")
	conv := seedConversation(t, db, ws, inst)

	externalID := "WA-1"
	msg := &models.Message{
		WorkspaceID:    ws.ID,
		ConversationID: conv.ID,
		InstanceID:     inst.ID,
		Direction:      models.DirectionIncoming,
		Body:           "Hello",
		Type:           models.MessageText,
		ExternalID:     &externalID,
		Status:         models.StatusDelivered,
	}

	id, duplicate, err := db.InsertMessage(ctx, msg)
	require.NoError(t, err)
	assert.False(t, duplicate)
	assert.Positive(t, id)

	_, duplicate, err = db.InsertMessage(ctx, msg)
	require.NoError(t, err)
	assert.True(t, duplicate, "same external id must be a silent duplicate")

	stored, err := db.GetMessageByExternalID(ctx, ws.ID, inst.ID, externalID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "Hello", stored.Body)
}

func TestUpdateMessageStatus(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	ws := seedWorkspace(t, db)
	inst := seedInstance(t, db, ws, "inst-1")
	conv := seedConversation(t, db, ws, inst)

	externalID := "WA-1"
	id, _, err := db.InsertMessage(ctx, &models.Message{
		WorkspaceID:    ws.ID,
		ConversationID: conv.ID,
		InstanceID:     inst.ID,
		Direction:      models.DirectionIncoming,
		Body:           "Hello",
		Type:           models.MessageText,
		ExternalID:     &externalID,
		Status:         models.StatusDelivered,
	})
	require.NoError(t, err)

	require.NoError(t, db.UpdateMessageStatus(ctx, ws.ID, id, models.StatusRead))

	stored, err := db.GetMessage(ctx, ws.ID, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRead, stored.Status)

	err = db.UpdateMessageStatus(ctx, ws.ID, 99999, models.StatusRead)
	assert.Error(t, err, "missing row is an error, not a silent no-op")
}

func TestUpdateMessageMediaNeverOverwrites(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	ws := seedWorkspace(t, db)
	inst := seedInstance(t, db, ws, "inst-1")
	conv := seedConversation(t, db, ws, inst)

	externalID := "WA-1"
	id, _, err := db.InsertMessage(ctx, &models.Message{
		WorkspaceID:    ws.ID,
		ConversationID: conv.ID,
		InstanceID:     inst.ID,
		Direction:      models.DirectionIncoming,
		Body:           "\U0001F4F7 Photo",
		Type:           models.MessageImage,
		ExternalID:     &externalID,
		Status:         models.StatusDelivered,
	})
	require.NoError(t, err)

	require.NoError(t, db.UpdateMessageMedia(ctx, ws.ID, id, "https://cdn.example/a.jpg", "image/jpeg", 1024))
	require.NoError(t, db.UpdateMessageMedia(ctx, ws.ID, id, "https://cdn.example/b.jpg", "image/png", 2048))

	stored, err := db.GetMessage(ctx, ws.ID, id)
	require.NoError(t, err)
	require.NotNil(t, stored.MediaURL)
	assert.Equal(t, "https://cdn.example/a.jpg", *stored.MediaURL)
	assert.Equal(t, "image/jpeg", *stored.MediaMimeType)
	assert.Equal(t, int64(1024), *stored.MediaSize)
}

func TestUpdateMessageMediaEmptyInputsLeaveNulls(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	ws := seedWorkspace(t, db)
	inst := seedInstance(t, db, ws, "inst-1")
	conv := seedConversation(t, db, ws, inst)

	externalID := "WA-1"
	id, _, err := db.InsertMessage(ctx, &models.Message{
		WorkspaceID:    ws.ID,
		ConversationID: conv.ID,
		InstanceID:     inst.ID,
		Direction:      models.DirectionIncoming,
		Body:           "\U0001F4F7 Photo",
		Type:           models.MessageImage,
		ExternalID:     &externalID,
		Status:         models.StatusDelivered,
	})
	require.NoError(t, err)

	// Empty inputs must not materialize empty strings or zeroes in the row.
	require.NoError(t, db.UpdateMessageMedia(ctx, ws.ID, id, "", "", 0))

	stored, err := db.GetMessage(ctx, ws.ID, id)
	require.NoError(t, err)
	assert.Nil(t, stored.MediaURL)
	assert.Nil(t, stored.MediaMimeType)
	assert.Nil(t, stored.MediaSize)

	// A partial fill takes only the fields it carries.
	require.NoError(t, db.UpdateMessageMedia(ctx, ws.ID, id, "https://cdn.example/a.jpg", "", 0))

	stored, err = db.GetMessage(ctx, ws.ID, id)
	require.NoError(t, err)
	require.NotNil(t, stored.MediaURL)
	assert.Equal(t, "https://cdn.example/a.jpg", *stored.MediaURL)
	assert.Nil(t, stored.MediaMimeType)
	assert.Nil(t, stored.MediaSize)
}

func TestGetMessageByExternalIDMissing(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	ws := seedWorkspace(t, db)
	inst := seedInstance(t, db, ws, "inst-1")

	msg, err := db.GetMessageByExternalID(ctx, ws.ID, inst.ID, "never-seen")
	require.NoError(t, err)
	assert.Nil(t, msg, "missing message is nil, nil")
}

func TestInstanceStatusTransitions(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	ws := seedWorkspace(t, db)

	inst := &models.Instance{
		WorkspaceID: ws.ID,
		Name:        "inst-1",
		Status:      models.InstanceDisconnected,
	}
	id, err := db.SaveInstance(ctx, inst)
	require.NoError(t, err)

	require.NoError(t, db.UpdateInstanceQrCode(ctx, id, "qr-payload"))

	stored, err := db.GetInstanceByName(ctx, ws.ID, "inst-1")
	require.NoError(t, err)
	assert.Equal(t, models.InstancePairing, stored.Status)
	require.NotNil(t, stored.QrCode)

	require.NoError(t, db.UpdateInstanceStatus(ctx, id, models.InstanceConnected))

	stored, err = db.GetInstanceByName(ctx, ws.ID, "inst-1")
	require.NoError(t, err)
	assert.Equal(t, models.InstanceConnected, stored.Status)
	assert.Nil(t, stored.QrCode, "connecting clears the pairing payload")
	require.NotNil(t, stored.ConnectedAt)

	require.NoError(t, db.UpdateInstanceStatus(ctx, id, models.InstanceDisconnected))
	stored, err = db.GetInstanceByName(ctx, ws.ID, "inst-1")
	require.NoError(t, err)
	require.NotNil(t, stored.DisconnectedAt)

	err = db.UpdateInstanceStatus(ctx, 99999, models.InstanceConnected)
	assert.Error(t, err)
}

func TestGetInstanceByNameMissing(t *testing.T) {
	db := setupTestDB(t)
	ws := seedWorkspace(t, db)

	inst, err := db.GetInstanceByName(context.Background(), ws.ID, "ghost")
	require.NoError(t, err)
	assert.Nil(t, inst)
}

func TestCountDeliveriesByStatus(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	ws := seedWorkspace(t, db)

	for i, status := range []models.DeliveryStatus{models.DeliveryProcessed, models.DeliveryProcessed, models.DeliveryIgnored} {
		id, _, err := db.RecordDelivery(ctx, &models.WebhookDelivery{
			WorkspaceID: ws.ID,
			Provider:    "evolution",
			EventType:   models.EventMessagesUpsert,
			Instance:    "inst",
			DeliveryKey: string(rune('a' + i)),
			Payload:     "{}",
		})
		require.NoError(t, err)
		require.NoError(t, db.MarkDelivery(ctx, id, status, ""))
	}

	counts, err := db.CountDeliveriesByStatus(ctx, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[models.DeliveryProcessed])
	assert.Equal(t, 1, counts[models.DeliveryIgnored])
}
