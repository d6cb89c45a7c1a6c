package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-undock/pkg/protocol"
)

func statusFrame(t *testing.T, state, name string) []byte {
	t.Helper()
	msg, err := protocol.NewMessage(protocol.TypeStatus, map[string]any{
		"run_id":      "run-1",
		"state":       state,
		"status_name": name,
		"attempt":     1,
		"time":        time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	require.NoError(t, err)
	data, err := msg.Bytes()
	require.NoError(t, err)
	return data
}

func newFakeDaemon(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/undock/trigger", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ack{Success: true, Message: "undock requested"})
	})
	mux.HandleFunc("POST /api/undock/cancel", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ack{Success: true, Message: "no undock in progress"})
	})
	mux.HandleFunc("GET /api/undock/status", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"state":"idle","attempt":0}`))
	})
	upgrader := websocket.Upgrader{}
	mux.HandleFunc("/ws/status", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`))
		conn.WriteMessage(websocket.TextMessage, statusFrame(t, "discharging", "ACTIVE"))
		conn.WriteMessage(websocket.TextMessage, statusFrame(t, "succeeded", "SUCCEEDED"))
		// Hold the connection until the client closes it.
		conn.ReadMessage()
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRun_Trigger(t *testing.T) {
	srv := newFakeDaemon(t)
	var out bytes.Buffer

	require.NoError(t, run(context.Background(), newClient(srv.URL, time.Second), "trigger", nil, &out))
	assert.Equal(t, "success=true message=\"undock requested\"\n", out.String())
}

func TestRun_Cancel(t *testing.T) {
	srv := newFakeDaemon(t)
	var out bytes.Buffer

	require.NoError(t, run(context.Background(), newClient(srv.URL, time.Second), "cancel", nil, &out))
	assert.Contains(t, out.String(), "no undock in progress")
}

func TestRun_Status(t *testing.T) {
	srv := newFakeDaemon(t)
	var out bytes.Buffer

	require.NoError(t, run(context.Background(), newClient(srv.URL+"/", time.Second), "status", nil, &out))
	assert.JSONEq(t, `{"state":"idle","attempt":0}`, out.String())
}

func TestRun_WatchUntilDone(t *testing.T) {
	srv := newFakeDaemon(t)
	var out bytes.Buffer

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, run(ctx, newClient(srv.URL, time.Second), "watch", []string{"-until-done"}, &out))
	lines := bytes.Split(bytes.TrimSpace(out.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	assert.Contains(t, string(lines[0]), "state=discharging status=ACTIVE")
	assert.Contains(t, string(lines[1]), "state=succeeded status=SUCCEEDED")
}

func TestRun_UnknownCommand(t *testing.T) {
	err := run(context.Background(), newClient("http://127.0.0.1:1", time.Second), "dock", nil, &bytes.Buffer{})
	assert.ErrorContains(t, err, "unknown command")
}

func TestRun_DaemonDown(t *testing.T) {
	err := run(context.Background(), newClient("http://127.0.0.1:1", time.Second), "trigger", nil, &bytes.Buffer{})
	assert.Error(t, err)
}
