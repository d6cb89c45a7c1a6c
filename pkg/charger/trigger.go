// Package charger asks the charger controller to stop supplying current.
//
// A trigger only requests the stop; confirmation that charging has actually
// ceased comes from battery telemetry.
package charger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/teslashibe/go-undock/internal/httpc"
	"github.com/teslashibe/go-undock/pkg/protocol"
)

// Result is the outcome of a stop request.
type Result struct {
	Accepted bool
	Message  string
}

// Accepted builds an accepted result.
func Accepted(msg string) Result { return Result{Accepted: true, Message: msg} }

// Rejected builds a rejected result.
func Rejected(msg string) Result { return Result{Accepted: false, Message: msg} }

// Trigger requests the charger to stop. Implementations never return
// errors: every failure is folded into a rejected Result.
type Trigger interface {
	TriggerStop(ctx context.Context) Result
}

// HTTPTrigger calls the charger controller's stop endpoint.
type HTTPTrigger struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// NewHTTPTrigger creates a trigger that POSTs to url.
func NewHTTPTrigger(url string, timeout time.Duration, logger *slog.Logger) *HTTPTrigger {
	return &HTTPTrigger{
		url:    url,
		client: httpc.NewClient(timeout),
		logger: logger,
	}
}

// TriggerStop sends the stop request and reports whether it was accepted.
func (t *HTTPTrigger) TriggerStop(ctx context.Context) Result {
	var resp protocol.TriggerResponse
	if err := httpc.PostJSON(ctx, t.client, t.url, nil, &resp); err != nil {
		var se *httpc.StatusError
		if errors.As(err, &se) {
			t.logger.Error("stop charging call rejected by controller", "status", se.Code, "body", se.Body)
		} else {
			t.logger.Error("stop charging call failed", "error", err)
		}
		return Rejected(fmt.Sprintf("stop charging call failed: %v", err))
	}

	t.logger.Info("trigger stop charging", "success", resp.Success, "message", resp.Message)
	if !resp.Success {
		return Rejected(resp.Message)
	}
	return Accepted(resp.Message)
}
