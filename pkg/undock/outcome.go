package undock

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/teslashibe/go-undock/pkg/protocol"
)

// Outcome is what a status report says about a run. Each variant carries
// its own status code and text.
type Outcome interface {
	Code() protocol.GoalStatusCode
	Text() string
	isOutcome()
}

// Active is reported while a run is in progress.
type Active struct {
	Phase   State
	Attempt int
}

func (Active) Code() protocol.GoalStatusCode { return protocol.GoalActive }
func (a Active) Text() string {
	if a.Phase == Discharging {
		return fmt.Sprintf("Undock in progress: %s (attempt %d)", a.Phase, a.Attempt)
	}
	return fmt.Sprintf("Undock in progress: %s", a.Phase)
}
func (Active) isOutcome() {}

// Success is reported once the robot has cleared the dock.
type Success struct{}

func (Success) Code() protocol.GoalStatusCode { return protocol.GoalSucceeded }
func (Success) Text() string                  { return "Undock successfully completed" }
func (Success) isOutcome()                    {}

// CancelNotice acknowledges a cancel request. It never ends a run: while a
// run is in flight it reads as active, otherwise as pending.
type CancelNotice struct {
	Message  string
	InFlight bool
}

func (n CancelNotice) Code() protocol.GoalStatusCode {
	if n.InFlight {
		return protocol.GoalActive
	}
	return protocol.GoalPending
}
func (n CancelNotice) Text() string { return "Undock cancel received: " + n.Message }
func (CancelNotice) isOutcome()     {}

// Failure is reported when every discharge attempt failed.
type Failure struct {
	Reason   string
	Attempts int
}

func (Failure) Code() protocol.GoalStatusCode { return protocol.GoalAborted }
func (f Failure) Text() string {
	if f.Reason == "" {
		return "Undock Failed"
	}
	return fmt.Sprintf("Undock Failed after %d attempts: %s", f.Attempts, f.Reason)
}
func (Failure) isOutcome() {}

// Cancellation is reported when a cancel was observed during discharge.
type Cancellation struct{}

func (Cancellation) Code() protocol.GoalStatusCode { return protocol.GoalPreempted }
func (Cancellation) Text() string                  { return "Undock cancel" }
func (Cancellation) isOutcome()                    {}

// Report is one status publication.
type Report struct {
	RunID   string
	State   State
	Outcome Outcome
	Attempt int
	Time    time.Time
}

// Terminal reports whether the report closes a run.
func (r Report) Terminal() bool {
	return r.State.Terminal()
}

// GoalStatus renders the report for the supervisor.
func (r Report) GoalStatus() protocol.GoalStatusArray {
	return protocol.GoalStatusArray{
		Stamp: r.Time.UnixMilli(),
		StatusList: []protocol.GoalStatus{{
			GoalID: protocol.GoalID{ID: r.RunID, Stamp: r.Time.UnixMilli()},
			Status: r.Outcome.Code(),
			Text:   r.Outcome.Text(),
		}},
	}
}

type reportJSON struct {
	RunID      string                  `json:"run_id"`
	State      State                   `json:"state"`
	Status     protocol.GoalStatusCode `json:"status"`
	StatusName string                  `json:"status_name"`
	Text       string                  `json:"text"`
	Attempt    int                     `json:"attempt"`
	Time       time.Time               `json:"time"`
}

// MarshalJSON flattens the outcome into code and text.
func (r Report) MarshalJSON() ([]byte, error) {
	out := reportJSON{
		RunID:   r.RunID,
		State:   r.State,
		Attempt: r.Attempt,
		Time:    r.Time,
	}
	if r.Outcome != nil {
		out.Status = r.Outcome.Code()
		out.StatusName = r.Outcome.Code().String()
		out.Text = r.Outcome.Text()
	}
	return json.Marshal(out)
}

// Reporter publishes status reports to the supervisor. Duplicate reports
// are harmless; consumers treat the latest one as authoritative.
type Reporter interface {
	Report(ctx context.Context, r Report) error
}

