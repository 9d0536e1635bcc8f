package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"wainbox/internal/models"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialSocket(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+ts.URL[len("http"):]+"/socket", &websocket.DialOptions{
		HTTPHeader: http.Header{"X-Api-Key": []string{testAPIKey}},
	})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })

	return conn
}

func messageFrame(t *testing.T, externalID string) *models.SocketFrame {
	t.Helper()

	data, err := json.Marshal(map[string]interface{}{
		"key": map[string]interface{}{
			"remoteJid": "5511999999999@s.whatsapp.net",
			"fromMe":    false,
			"id":        externalID,
		},
		"pushName":         "Alice",
		"messageTimestamp": 1700000000,
		"message":          map[string]interface{}{"conversation": "Hi"},
	})
	require.NoError(t, err)

	return &models.SocketFrame{
		Type:     models.SocketMessage,
		Instance: "ws_abcdef01_1234",
		Data:     data,
	}
}

func TestSocketSessionIngestsFrames(t *testing.T) {
	server, db, ws := setupServer(t)

	ts := httptest.NewServer(server.httpSrv.Handler)
	defer ts.Close()

	conn := dialSocket(t, ts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, wsjson.Write(ctx, conn, socketSubscribe{
		Action:    "subscribe",
		Instances: []string{"ws_abcdef01_1234"},
	}))

	require.NoError(t, wsjson.Write(ctx, conn, messageFrame(t, "WA-S-1")))

	var ack socketAck
	require.NoError(t, wsjson.Read(ctx, conn, &ack))
	assert.True(t, ack.OK)
	assert.False(t, ack.Duplicate)

	inst, err := db.GetInstanceByName(ctx, ws.ID, "ws_abcdef01_1234")
	require.NoError(t, err)
	msg, err := db.GetMessageByExternalID(ctx, ws.ID, inst.ID, "WA-S-1")
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "Hi", msg.Body)

	// Replay of the same frame is acknowledged as a duplicate.
	require.NoError(t, wsjson.Write(ctx, conn, messageFrame(t, "WA-S-1")))
	require.NoError(t, wsjson.Read(ctx, conn, &ack))
	assert.True(t, ack.OK)
	assert.True(t, ack.Duplicate)
}

func TestSocketRejectsUnsubscribedInstance(t *testing.T) {
	server, _, _ := setupServer(t)

	ts := httptest.NewServer(server.httpSrv.Handler)
	defer ts.Close()

	conn := dialSocket(t, ts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, wsjson.Write(ctx, conn, socketSubscribe{
		Action:    "subscribe",
		Instances: []string{"some-other-instance"},
	}))

	require.NoError(t, wsjson.Write(ctx, conn, messageFrame(t, "WA-S-1")))

	var ack socketAck
	require.NoError(t, wsjson.Read(ctx, conn, &ack))
	assert.False(t, ack.OK)
	assert.Equal(t, "instance not subscribed", ack.Error)
}

func TestSocketEmptySubscriptionCoversAllInstances(t *testing.T) {
	server, _, _ := setupServer(t)

	ts := httptest.NewServer(server.httpSrv.Handler)
	defer ts.Close()

	conn := dialSocket(t, ts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, wsjson.Write(ctx, conn, socketSubscribe{Action: "subscribe"}))

	require.NoError(t, wsjson.Write(ctx, conn, messageFrame(t, "WA-S-2")))

	var ack socketAck
	require.NoError(t, wsjson.Read(ctx, conn, &ack))
	assert.True(t, ack.OK)
}
