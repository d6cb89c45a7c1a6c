package web

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-undock/internal/log"
	"github.com/teslashibe/go-undock/pkg/hub"
	"github.com/teslashibe/go-undock/pkg/undock"
)

type fakeController struct {
	requests int
	cancels  int
	snap     undock.Snapshot
}

func (f *fakeController) RequestUndock() undock.Ack {
	f.requests++
	return undock.Ack{Accepted: true, Message: "undock requested"}
}

func (f *fakeController) Cancel() undock.Ack {
	f.cancels++
	return undock.Ack{Accepted: true, Message: "no undock in progress"}
}

func (f *fakeController) Snapshot() undock.Snapshot { return f.snap }

func newTestServer(t *testing.T, ctrl Controller) *Server {
	t.Helper()
	reg := prometheus.NewRegistry()
	undock.NewMetrics(reg)
	return NewServer(":0", ctrl, hub.New("status", log.Discard()), reg, log.Discard())
}

func do(t *testing.T, s *Server, method, path string) (int, []byte) {
	t.Helper()
	resp, err := s.app.Test(httptest.NewRequest(method, path, nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func TestServer_Trigger(t *testing.T) {
	ctrl := &fakeController{}
	s := newTestServer(t, ctrl)

	code, body := do(t, s, fiber.MethodPost, "/api/undock/trigger")
	assert.Equal(t, fiber.StatusOK, code)
	assert.JSONEq(t, `{"success":true,"message":"undock requested"}`, string(body))
	assert.Equal(t, 1, ctrl.requests)
}

func TestServer_Cancel(t *testing.T) {
	ctrl := &fakeController{}
	s := newTestServer(t, ctrl)

	code, body := do(t, s, fiber.MethodPost, "/api/undock/cancel")
	assert.Equal(t, fiber.StatusOK, code)
	assert.JSONEq(t, `{"success":true,"message":"no undock in progress"}`, string(body))
	assert.Equal(t, 1, ctrl.cancels)
}

func TestServer_Status(t *testing.T) {
	ctrl := &fakeController{snap: undock.Snapshot{
		State:   undock.Discharging,
		RunID:   "run-7",
		Attempt: 2,
		Pending: true,
		Waited:  4,
	}}
	s := newTestServer(t, ctrl)

	code, body := do(t, s, fiber.MethodGet, "/api/undock/status")
	require.Equal(t, fiber.StatusOK, code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "discharging", got["state"])
	assert.Equal(t, "run-7", got["run_id"])
	assert.EqualValues(t, 2, got["attempt"])
	assert.EqualValues(t, 4, got["discharge_ticks_waited"])
	assert.NotContains(t, got, "last_report")
}

func TestServer_TriggerIsPostOnly(t *testing.T) {
	ctrl := &fakeController{}
	s := newTestServer(t, ctrl)

	code, _ := do(t, s, fiber.MethodGet, "/api/undock/trigger")
	assert.Equal(t, fiber.StatusMethodNotAllowed, code)
	assert.Zero(t, ctrl.requests)
}

func TestServer_Metrics(t *testing.T) {
	s := newTestServer(t, &fakeController{})

	code, body := do(t, s, fiber.MethodGet, "/metrics")
	assert.Equal(t, fiber.StatusOK, code)
	assert.Contains(t, string(body), "undock_state")
}

func TestServer_Healthz(t *testing.T) {
	s := newTestServer(t, &fakeController{})

	code, body := do(t, s, fiber.MethodGet, "/healthz")
	assert.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, "ok", string(body))
}

func TestServer_StatusStreamNeedsUpgrade(t *testing.T) {
	s := newTestServer(t, &fakeController{})

	code, _ := do(t, s, fiber.MethodGet, "/ws/status")
	assert.Equal(t, fiber.StatusUpgradeRequired, code)
}
