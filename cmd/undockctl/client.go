package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-undock/internal/httpc"
	"github.com/teslashibe/go-undock/pkg/protocol"
)

// ack mirrors the request interface reply.
type ack struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// statusReport is the part of a status envelope the CLI prints.
type statusReport struct {
	RunID      string    `json:"run_id"`
	State      string    `json:"state"`
	Status     int       `json:"status"`
	StatusName string    `json:"status_name"`
	Text       string    `json:"text"`
	Attempt    int       `json:"attempt"`
	Time       time.Time `json:"time"`
}

func (r statusReport) terminal() bool {
	switch r.State {
	case "succeeded", "failed", "cancelled":
		return true
	}
	return false
}

// client talks to an undockd request interface.
type client struct {
	base string
	http *http.Client
}

func newClient(base string, timeout time.Duration) *client {
	return &client{base: strings.TrimRight(base, "/"), http: httpc.NewClient(timeout)}
}

func (c *client) trigger(ctx context.Context) (ack, error) {
	var a ack
	err := httpc.PostJSON(ctx, c.http, c.base+"/api/undock/trigger", nil, &a)
	return a, err
}

func (c *client) cancel(ctx context.Context) (ack, error) {
	var a ack
	err := httpc.PostJSON(ctx, c.http, c.base+"/api/undock/cancel", nil, &a)
	return a, err
}

func (c *client) status(ctx context.Context) (map[string]any, error) {
	var snap map[string]any
	err := httpc.GetJSON(ctx, c.http, c.base+"/api/undock/status", &snap)
	return snap, err
}

// watch streams status reports to fn until ctx is done, the connection
// drops or fn returns false.
func (c *client) watch(ctx context.Context, fn func(statusReport) bool) error {
	u, err := url.Parse(c.base)
	if err != nil {
		return fmt.Errorf("invalid address: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws/status"

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", u, err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("status stream: %w", err)
		}

		msg, err := protocol.ParseMessage(data)
		if err != nil || msg.Type != protocol.TypeStatus {
			continue
		}
		var r statusReport
		if err := msg.ParseData(&r); err != nil {
			continue
		}
		if !fn(r) {
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil
		}
	}
}
