// Package undock drives a robot off its charging dock.
//
// The Sequencer is a tick-driven state machine:
//
//	idle -> discharging -> moving_out_of_dock -> succeeded -> idle
//	             |  \-> cancelled -> idle
//	             \-> (retry) idle ... -> failed -> idle
//
// Each call to Step advances it by one checkpoint and never sleeps, so all
// waits are counted in ticks. Run calls Step at a fixed cadence.
//
// Request and cancel flags are written by transport callbacks and read by
// the loop under a mutex. State, the retry counter and the phase counters
// are only touched by the loop goroutine.
package undock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"

	"github.com/teslashibe/go-undock/pkg/charger"
	"github.com/teslashibe/go-undock/pkg/motion"
)

// ChargeStatus exposes the latest "charging has stopped" reading.
type ChargeStatus interface {
	ChargingStopped() bool
}

// Options tune the sequence. Zero values fall back to DefaultOptions.
type Options struct {
	Rate                  time.Duration // loop cadence and checkpoint interval
	DischargeTimeoutTicks int           // checkpoints to wait for "not charging"
	MaxAttempts           int           // discharge attempts per request
	MoveCycles            int           // forward commands before stopping
	LinearVelocity        float64       // m/s while moving out of the dock
}

// DefaultOptions: 1 Hz, 20 s discharge budget, 3 attempts, 5 x 0.1 m/s.
var DefaultOptions = Options{
	Rate:                  time.Second,
	DischargeTimeoutTicks: 20,
	MaxAttempts:           3,
	MoveCycles:            5,
	LinearVelocity:        0.1,
}

func (o Options) withDefaults() Options {
	if o.Rate <= 0 {
		o.Rate = DefaultOptions.Rate
	}
	if o.DischargeTimeoutTicks <= 0 {
		o.DischargeTimeoutTicks = DefaultOptions.DischargeTimeoutTicks
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultOptions.MaxAttempts
	}
	if o.MoveCycles <= 0 {
		o.MoveCycles = DefaultOptions.MoveCycles
	}
	if o.LinearVelocity == 0 {
		o.LinearVelocity = DefaultOptions.LinearVelocity
	}
	return o
}

// Ack answers a request or cancel call.
type Ack struct {
	Accepted bool   `json:"success"`
	Message  string `json:"message"`
}

// Snapshot is a consistent copy of the sequencer for status queries.
type Snapshot struct {
	State           State   `json:"state"`
	RunID           string  `json:"run_id,omitempty"`
	Attempt         int     `json:"attempt"`
	Pending         bool    `json:"pending"`
	CancelRequested bool    `json:"cancel_requested"`
	Waited          int     `json:"discharge_ticks_waited"`
	MoveCycles      int     `json:"move_cycles_sent"`
	LastReport      *Report `json:"last_report,omitempty"`
}

// Sequencer is the undock state machine.
type Sequencer struct {
	opts     Options
	battery  ChargeStatus
	charger  charger.Trigger
	motion   motion.Commander
	reporter Reporter
	metrics  *Metrics
	logger   *slog.Logger
	now      func() time.Time
	newRunID func() string

	// Owned by the loop goroutine.
	machine *fsm.FSM
	retry   int
	waited  int
	cycles  int
	runID   string

	mu       sync.Mutex
	pending  bool
	cancel   bool
	notice   *CancelNotice // latest unpublished cancel acknowledgment
	snapshot Snapshot
}

// Option customizes a Sequencer.
type Option func(*Sequencer)

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(s *Sequencer) { s.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sequencer) { s.logger = l }
}

// WithClock replaces time.Now for report timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Sequencer) { s.now = now }
}

// WithRunIDs replaces the run ID generator.
func WithRunIDs(gen func() string) Option {
	return func(s *Sequencer) { s.newRunID = gen }
}

// New creates a Sequencer in the idle state.
func New(opts Options, battery ChargeStatus, trig charger.Trigger, cmd motion.Commander, rep Reporter, options ...Option) *Sequencer {
	s := &Sequencer{
		opts:     opts.withDefaults(),
		battery:  battery,
		charger:  trig,
		motion:   cmd,
		reporter: rep,
		now:      time.Now,
		newRunID: uuid.NewString,
		machine:  newMachine(),
		retry:    1,
	}
	for _, o := range options {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(nil)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "undock")
	s.publishSnapshot()
	return s
}

// RequestUndock asks for a run. It is always accepted; while a run is in
// flight the request is absorbed, not queued.
func (s *Sequencer) RequestUndock() Ack {
	s.mu.Lock()
	already := s.pending
	s.pending = true
	s.snapshot.Pending = true
	s.mu.Unlock()

	if already {
		s.logger.Info("undock already in progress, request absorbed")
		return Ack{Accepted: true, Message: "undock already in progress"}
	}
	s.logger.Info("undock requested")
	return Ack{Accepted: true, Message: "undock requested"}
}

// Cancel asks the current run to stop. It is only observed at discharge
// checkpoints; a run that is already moving out of the dock completes.
// Every acknowledgment is reported by the loop at the start of its next
// step; acknowledgments within one tick collapse into the latest.
func (s *Sequencer) Cancel() Ack {
	s.mu.Lock()
	defer s.mu.Unlock()

	ack := s.acknowledgeCancel()
	s.notice = &CancelNotice{Message: ack.Message, InFlight: s.pending}
	return ack
}

func (s *Sequencer) acknowledgeCancel() Ack {
	if !s.pending {
		s.logger.Warn("cancel received with no undock in progress")
		return Ack{Accepted: true, Message: "no undock in progress"}
	}
	s.cancel = true
	s.snapshot.CancelRequested = true

	if s.snapshot.State == MovingOutOfDock {
		s.logger.Warn("cancel received while moving out of dock, movement will complete")
		return Ack{Accepted: true, Message: "moving out of dock, cancel ignored"}
	}
	s.logger.Warn("undock cancel request received")
	return Ack{Accepted: true, Message: "cancel requested"}
}

// Snapshot returns the state as of the last completed step.
func (s *Sequencer) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snapshot
	if snap.LastReport != nil {
		r := *snap.LastReport
		snap.LastReport = &r
	}
	return snap
}

// State returns the current state. Only meaningful from the loop goroutine
// or after Run has returned; other callers should use Snapshot.
func (s *Sequencer) State() State {
	return parseState(s.machine.Current())
}

// Run steps the sequencer at the configured rate until ctx is done. If a
// run is in progress at shutdown the robot is sent a stop command.
func (s *Sequencer) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.Rate)
	defer ticker.Stop()

	s.logger.Info("undock sequencer started", "rate", s.opts.Rate)
	for {
		select {
		case <-ctx.Done():
			if st := s.State(); st == Discharging || st == MovingOutOfDock {
				stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.Rate)
				s.stop(stopCtx)
				cancel()
			}
			s.logger.Info("undock sequencer stopped")
			return nil
		case <-ticker.C:
			s.Step(ctx)
		}
	}
}

// Step advances the sequencer by one checkpoint. A pending cancel
// acknowledgment is reported first so a terminal report in the same step
// stays the latest one.
func (s *Sequencer) Step(ctx context.Context) {
	s.reportCancelNotice(ctx)

	switch s.State() {
	case Idle:
		s.stepIdle(ctx)
	case Discharging:
		s.checkpoint(ctx)
	case MovingOutOfDock:
		s.stepMove(ctx)
	default:
		// Terminal states are reset within the step that reaches them.
		s.logger.Error("sequencer found in terminal state, resetting", "state", s.State().String())
		s.reset(ctx)
	}
	s.publishSnapshot()
}

func (s *Sequencer) stepIdle(ctx context.Context) {
	s.mu.Lock()
	pending := s.pending
	s.mu.Unlock()
	if !pending {
		return
	}

	if s.runID == "" {
		s.runID = s.newRunID()
		s.retry = 1
		s.logger.Info("undock run started", "run_id", s.runID)
	}
	s.startAttempt(ctx)
}

// startAttempt enters the discharge phase and fires the stop trigger once.
func (s *Sequencer) startAttempt(ctx context.Context) {
	s.transition(ctx, eventStart)
	s.waited = 0
	s.report(ctx, Active{Phase: Discharging, Attempt: s.retry})
	s.logger.Info("stopping charge", "run_id", s.runID, "attempt", s.retry)

	if s.takeCancel() {
		s.metrics.attempts.WithLabelValues(attemptCancelled).Inc()
		s.cancelRun(ctx)
		return
	}

	res := s.charger.TriggerStop(ctx)
	if !res.Accepted {
		s.metrics.attempts.WithLabelValues(attemptRejected).Inc()
		s.failAttempt(ctx, fmt.Sprintf("stop charging rejected: %s", res.Message))
		return
	}
	s.metrics.attempts.WithLabelValues(attemptAccepted).Inc()
	s.checkpoint(ctx)
}

// checkpoint evaluates one discharge checkpoint. Cancel wins over a
// simultaneous "not charging" reading.
func (s *Sequencer) checkpoint(ctx context.Context) {
	if s.takeCancel() {
		s.metrics.attempts.WithLabelValues(attemptCancelled).Inc()
		s.cancelRun(ctx)
		return
	}

	if s.battery.ChargingStopped() {
		s.metrics.attempts.WithLabelValues(attemptStopped).Inc()
		s.logger.Info("charging stopped", "run_id", s.runID, "waited", s.waited)
		s.transition(ctx, eventDischarged)
		s.cycles = 0
		s.report(ctx, Active{Phase: MovingOutOfDock, Attempt: s.retry})
		s.stepMove(ctx)
		return
	}

	if s.waited >= s.opts.DischargeTimeoutTicks {
		s.metrics.attempts.WithLabelValues(attemptTimeout).Inc()
		reason := fmt.Sprintf("charging not stopped within %s",
			time.Duration(s.opts.DischargeTimeoutTicks)*s.opts.Rate)
		s.logger.Warn(reason, "run_id", s.runID, "attempt", s.retry)
		s.failAttempt(ctx, reason)
		return
	}

	s.waited++
	s.logger.Debug("waiting for charge to stop", "run_id", s.runID, "waited", s.waited)
}

// stepMove sends one forward command per tick, then the stop command.
// Cancellation is not checked here.
func (s *Sequencer) stepMove(ctx context.Context) {
	if s.cycles < s.opts.MoveCycles {
		s.command(ctx, s.opts.LinearVelocity, 0)
		s.cycles++
		s.logger.Debug("moving out of dock", "run_id", s.runID, "cycle", s.cycles)
		return
	}

	s.stop(ctx)
	s.transition(ctx, eventMoved)
	s.finish(ctx, Success{})
}

// failAttempt counts a failed discharge attempt and escalates to Failed
// once the attempt budget is spent.
func (s *Sequencer) failAttempt(ctx context.Context, reason string) {
	s.retry++

	if s.retry > s.opts.MaxAttempts {
		s.transition(ctx, eventFail)
		s.stop(ctx)
		s.finish(ctx, Failure{Reason: reason, Attempts: s.retry - 1})
		return
	}

	s.logger.Warn("discharge attempt failed, will retry",
		"run_id", s.runID, "reason", reason, "next_attempt", s.retry)
	s.transition(ctx, eventRetry)
}

func (s *Sequencer) cancelRun(ctx context.Context) {
	s.transition(ctx, eventCancel)
	s.stop(ctx)
	s.finish(ctx, Cancellation{})
}

// finish reports the terminal outcome and resets for the next request.
func (s *Sequencer) finish(ctx context.Context, outcome Outcome) {
	st := s.State()
	s.metrics.runs.WithLabelValues(st.String()).Inc()

	switch st {
	case Succeeded:
		s.logger.Info(outcome.Text(), "run_id", s.runID, "attempts", s.retry)
	case Failed:
		s.logger.Error(outcome.Text(), "run_id", s.runID)
	default:
		s.logger.Warn(outcome.Text(), "run_id", s.runID)
	}

	s.report(ctx, outcome)
	s.reset(ctx)
}

func (s *Sequencer) reset(ctx context.Context) {
	if s.State().Terminal() {
		s.transition(ctx, eventReset)
	}
	s.retry = 1
	s.waited = 0
	s.cycles = 0
	s.runID = ""

	s.mu.Lock()
	s.pending = false
	s.cancel = false
	s.mu.Unlock()
}

// takeCancel consumes the cancel flag.
func (s *Sequencer) takeCancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.cancel
	s.cancel = false
	return c
}

func (s *Sequencer) transition(ctx context.Context, event string) {
	from := s.machine.Current()
	// The table must advance even while ctx is being cancelled at shutdown.
	if err := s.machine.Event(context.WithoutCancel(ctx), event); err != nil {
		s.logger.Error("invalid undock transition", "event", event, "from", from, "error", err)
		return
	}
	to := s.State()
	s.metrics.state.Set(float64(to))
	s.logger.Debug("undock state changed", "from", from, "to", to.String(), "event", event)
}

func (s *Sequencer) command(ctx context.Context, linear, angular float64) {
	if err := s.motion.Command(ctx, linear, angular); err != nil {
		s.metrics.commands.WithLabelValues("error").Inc()
		s.logger.Error("velocity command failed", "linear", linear, "angular", angular, "error", err)
		return
	}
	s.metrics.commands.WithLabelValues("ok").Inc()
}

// stop sends the safety stop.
func (s *Sequencer) stop(ctx context.Context) {
	if err := motion.Stop(ctx, s.motion); err != nil {
		s.metrics.commands.WithLabelValues("error").Inc()
		s.logger.Error("stop command failed", "error", err)
		return
	}
	s.metrics.commands.WithLabelValues("ok").Inc()
}

// reportCancelNotice publishes the latest cancel acknowledgment, if any.
// It does not become the snapshot's last report.
func (s *Sequencer) reportCancelNotice(ctx context.Context) {
	s.mu.Lock()
	n := s.notice
	s.notice = nil
	s.mu.Unlock()
	if n == nil {
		return
	}
	s.publish(ctx, Report{
		RunID:   s.runID,
		State:   s.State(),
		Outcome: *n,
		Attempt: s.retry,
		Time:    s.now(),
	})
}

func (s *Sequencer) report(ctx context.Context, outcome Outcome) {
	r := Report{
		RunID:   s.runID,
		State:   s.State(),
		Outcome: outcome,
		Attempt: s.retry,
		Time:    s.now(),
	}

	s.mu.Lock()
	s.snapshot.LastReport = &r
	s.mu.Unlock()

	s.publish(ctx, r)
}

func (s *Sequencer) publish(ctx context.Context, r Report) {
	if s.reporter == nil {
		return
	}
	if err := s.reporter.Report(ctx, r); err != nil {
		s.metrics.reports.WithLabelValues("error").Inc()
		s.logger.Error("status report failed", "state", r.State.String(), "error", err)
		return
	}
	s.metrics.reports.WithLabelValues("ok").Inc()
}

func (s *Sequencer) publishSnapshot() {
	st := s.State()
	s.mu.Lock()
	s.snapshot.State = st
	s.snapshot.RunID = s.runID
	s.snapshot.Attempt = s.retry
	s.snapshot.Pending = s.pending
	s.snapshot.CancelRequested = s.cancel
	s.snapshot.Waited = s.waited
	s.snapshot.MoveCycles = s.cycles
	s.mu.Unlock()
}
