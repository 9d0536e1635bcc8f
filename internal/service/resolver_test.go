package service

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"wainbox/internal/database"
	"wainbox/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func setupStore(t *testing.T) (*database.Database, *models.Workspace, *models.Instance) {
	t.Helper()
	ctx := context.Background()

	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ws := &models.Workspace{ID: "ws-test", Name: "Test", APIKeyHash: "hash"}
	require.NoError(t, db.SaveWorkspace(ctx, ws))

	inst := &models.Instance{
		WorkspaceID: ws.ID,
		Name:        "ws_abcdef01_1234",
		Status:      models.InstanceConnected,
	}
	id, err := db.SaveInstance(ctx, inst)
	require.NoError(t, err)
	inst.ID = id

	return db, ws, inst
}

func TestResolveContactCreatesOnFirstSight(t *testing.T) {
	db, ws, _ := setupStore(t)
	resolver := NewResolver(db, testLogger())
	ctx := context.Background()

	contact, err := resolver.ResolveContact(ctx, ws.ID, "5511999999999", "Alice")
	require.NoError(t, err)
	require.NotNil(t, contact)
	assert.Positive(t, contact.ID)
	assert.Equal(t, "Alice", contact.Name)

	again, err := resolver.ResolveContact(ctx, ws.ID, "5511999999999", "Alice")
	require.NoError(t, err)
	assert.Equal(t, contact.ID, again.ID)
}

func TestResolveContactDefaultsNameToPhone(t *testing.T) {
	db, ws, _ := setupStore(t)
	resolver := NewResolver(db, testLogger())
	ctx := context.Background()

	contact, err := resolver.ResolveContact(ctx, ws.ID, "5511999999999", "")
	require.NoError(t, err)
	assert.Equal(t, "5511999999999", contact.Name)
	assert.False(t, contact.HasMeaningfulName())
}

func TestResolveContactNameFillsBlanksOnly(t *testing.T) {
	db, ws, _ := setupStore(t)
	resolver := NewResolver(db, testLogger())
	ctx := context.Background()

	// First sight without a push name leaves the placeholder.
	contact, err := resolver.ResolveContact(ctx, ws.ID, "5511999999999", "")
	require.NoError(t, err)
	assert.Equal(t, "5511999999999", contact.Name)

	// A later push name upgrades the placeholder.
	contact, err = resolver.ResolveContact(ctx, ws.ID, "5511999999999", "Alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", contact.Name)

	// Once meaningful, the name is never replaced.
	contact, err = resolver.ResolveContact(ctx, ws.ID, "5511999999999", "A. Smith")
	require.NoError(t, err)
	assert.Equal(t, "Alice", contact.Name)
}

func TestResolveConversationByRemoteJid(t *testing.T) {
	db, ws, inst := setupStore(t)
	resolver := NewResolver(db, testLogger())
	ctx := context.Background()

	contact, err := resolver.ResolveContact(ctx, ws.ID, "5511999999999", "Alice")
	require.NoError(t, err)

	jid := "5511999999999@s.whatsapp.net"
	conv, err := resolver.ResolveConversation(ctx, ws.ID, inst.ID, contact, jid, false)
	require.NoError(t, err)
	require.NotNil(t, conv)
	assert.Positive(t, conv.ID)
	require.NotNil(t, conv.RemoteJid)
	assert.Equal(t, jid, *conv.RemoteJid)
	assert.False(t, conv.IsGroup)

	again, err := resolver.ResolveConversation(ctx, ws.ID, inst.ID, contact, jid, false)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, again.ID)
}

func TestResolveConversationBackfillsAddress(t *testing.T) {
	db, ws, inst := setupStore(t)
	resolver := NewResolver(db, testLogger())
	ctx := context.Background()

	contact, err := resolver.ResolveContact(ctx, ws.ID, "5511999999999", "Alice")
	require.NoError(t, err)

	// Simulate a thread created before its address was known.
	convID, _, err := db.InsertConversation(ctx, &models.Conversation{
		WorkspaceID: ws.ID,
		ContactID:   contact.ID,
		InstanceID:  inst.ID,
		RemoteJid:   nil,
	})
	require.NoError(t, err)

	jid := "5511999999999@s.whatsapp.net"
	conv, err := resolver.ResolveConversation(ctx, ws.ID, inst.ID, contact, jid, false)
	require.NoError(t, err)
	assert.Equal(t, convID, conv.ID, "existing thread reused, not duplicated")
	require.NotNil(t, conv.RemoteJid)
	assert.Equal(t, jid, *conv.RemoteJid)

	stored, err := db.GetConversation(ctx, ws.ID, convID)
	require.NoError(t, err)
	require.NotNil(t, stored.RemoteJid)
	assert.Equal(t, jid, *stored.RemoteJid)
}

func TestResolveConversationGroup(t *testing.T) {
	db, ws, inst := setupStore(t)
	resolver := NewResolver(db, testLogger())
	ctx := context.Background()

	contact, err := resolver.ResolveContact(ctx, ws.ID, "123456789012345", "")
	require.NoError(t, err)

	conv, err := resolver.ResolveConversation(ctx, ws.ID, inst.ID, contact, "123456789012345@g.us", true)
	require.NoError(t, err)
	assert.True(t, conv.IsGroup)
}
