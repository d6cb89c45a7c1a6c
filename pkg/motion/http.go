package motion

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/teslashibe/go-undock/internal/httpc"
)

// HTTPCommander sends Twist commands to a locomotion HTTP API.
type HTTPCommander struct {
	URL    string
	client *http.Client
	limits Limits
}

// NewHTTPCommander creates an HTTP-based commander. Requests time out
// after timeout so a stuck base never stalls the control loop.
func NewHTTPCommander(url string, timeout time.Duration, limits Limits) *HTTPCommander {
	return &HTTPCommander{
		URL:    url,
		client: httpc.NewClient(timeout),
		limits: limits,
	}
}

// Command posts one velocity command.
func (c *HTTPCommander) Command(ctx context.Context, linear, angular float64) error {
	if err := httpc.PostJSON(ctx, c.client, c.URL, c.limits.Twist(linear, angular), nil); err != nil {
		return fmt.Errorf("velocity command failed: %w", err)
	}
	return nil
}
