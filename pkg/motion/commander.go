// Package motion sends velocity commands to the robot's locomotion interface.
//
// Commands are fire-and-forget: there is no acknowledgment that the base
// actually moved. Sending the same command twice is harmless.
package motion

import (
	"context"

	"github.com/teslashibe/go-undock/pkg/protocol"
)

// Commander issues planar velocity commands.
type Commander interface {
	Command(ctx context.Context, linear, angular float64) error
}

// Stop issues the canonical zero-velocity stop command.
func Stop(ctx context.Context, c Commander) error {
	return c.Command(ctx, 0, 0)
}

// clamp restricts v to the range [min, max].
func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// Limits bounds the velocities a commander will send.
type Limits struct {
	MaxLinear  float64 // m/s
	MaxAngular float64 // rad/s
}

// DefaultLimits are conservative bounds for driving off a dock.
var DefaultLimits = Limits{MaxLinear: 0.5, MaxAngular: 0.5}

// Twist clamps the velocities and builds the wire command.
func (l Limits) Twist(linear, angular float64) protocol.Twist {
	return protocol.NewTwist(
		clamp(linear, -l.MaxLinear, l.MaxLinear),
		clamp(angular, -l.MaxAngular, l.MaxAngular),
	)
}
