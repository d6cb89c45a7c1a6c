package hub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-undock/internal/log"
)

// newTestClient registers a connection-less client so the fan-out can be
// observed directly on its send queue.
func newTestClient(h *Hub, buffer int) *Client {
	c := &Client{hub: h, send: make(chan Message, buffer)}
	h.register <- c
	return c
}

func recv(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case m, ok := <-c.send:
		require.True(t, ok, "send channel closed")
		return m
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return Message{}
	}
}

func TestHub_BroadcastReachesClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := New("status", log.Discard())
	go h.Run(ctx)

	a := newTestClient(h, 4)
	b := newTestClient(h, 4)
	assert.Eventually(t, func() bool { return h.ClientCount() == 2 }, time.Second, time.Millisecond)

	require.NoError(t, h.BroadcastJSON(map[string]string{"state": "idle"}))

	assert.JSONEq(t, `{"state":"idle"}`, string(recv(t, a).Data))
	assert.JSONEq(t, `{"state":"idle"}`, string(recv(t, b).Data))
}

func TestHub_ReplaysLatestToNewClient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := New("status", log.Discard())
	go h.Run(ctx)

	first := newTestClient(h, 4)
	require.NoError(t, h.BroadcastJSON("one"))
	require.NoError(t, h.BroadcastJSON("two"))
	recv(t, first)
	recv(t, first)

	late := newTestClient(h, 4)
	assert.Equal(t, `"two"`, string(recv(t, late).Data))
}

func TestHub_DropsSlowClient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := New("status", log.Discard())
	go h.Run(ctx)

	slow := newTestClient(h, 1)
	h.Broadcast(NewJSONMessage([]byte(`1`)))
	h.Broadcast(NewJSONMessage([]byte(`2`)))

	assert.Eventually(t, func() bool { return h.ClientCount() == 0 }, time.Second, time.Millisecond)
	<-slow.send
	_, ok := <-slow.send
	assert.False(t, ok)
}

func TestHub_StopClosesClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := New("status", log.Discard())
	go h.Run(ctx)

	c := newTestClient(h, 1)
	assert.Eventually(t, h.IsRunning, time.Second, time.Millisecond)
	cancel()

	assert.Eventually(t, func() bool { return !h.IsRunning() }, time.Second, time.Millisecond)
	_, ok := <-c.send
	assert.False(t, ok)
}

func TestHub_BroadcastJSONError(t *testing.T) {
	h := New("status", log.Discard())
	assert.Error(t, h.BroadcastJSON(make(chan int)))
}
