package undock

import (
	"github.com/looplab/fsm"
)

// State is the sequencer state. Exactly one is current at any time.
type State int

const (
	Idle State = iota
	Discharging
	MovingOutOfDock
	Succeeded
	Failed
	Cancelled
)

var stateNames = map[State]string{
	Idle:            "idle",
	Discharging:     "discharging",
	MovingOutOfDock: "moving_out_of_dock",
	Succeeded:       "succeeded",
	Failed:          "failed",
	Cancelled:       "cancelled",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether s ends a run.
func (s State) Terminal() bool {
	return s == Succeeded || s == Failed || s == Cancelled
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func parseState(name string) State {
	for s, n := range stateNames {
		if n == name {
			return s
		}
	}
	return Idle
}

// Events driving the state table.
const (
	eventStart      = "start"      // idle -> discharging
	eventDischarged = "discharged" // discharging -> moving_out_of_dock
	eventRetry      = "retry"      // discharging -> idle, request still pending
	eventFail       = "fail"       // discharging -> failed
	eventCancel     = "cancel"     // discharging -> cancelled
	eventMoved      = "moved"      // moving_out_of_dock -> succeeded
	eventReset      = "reset"      // terminal -> idle
)

// newMachine builds the transition table. Movement has no cancel or fail
// edge: once the robot starts driving off the dock it finishes.
func newMachine() *fsm.FSM {
	idle := Idle.String()
	discharging := Discharging.String()
	moving := MovingOutOfDock.String()

	return fsm.NewFSM(
		idle,
		fsm.Events{
			{Name: eventStart, Src: []string{idle}, Dst: discharging},
			{Name: eventDischarged, Src: []string{discharging}, Dst: moving},
			{Name: eventRetry, Src: []string{discharging}, Dst: idle},
			{Name: eventFail, Src: []string{discharging}, Dst: Failed.String()},
			{Name: eventCancel, Src: []string{discharging}, Dst: Cancelled.String()},
			{Name: eventMoved, Src: []string{moving}, Dst: Succeeded.String()},
			{Name: eventReset, Src: []string{Succeeded.String(), Failed.String(), Cancelled.String()}, Dst: idle},
		},
		fsm.Callbacks{},
	)
}
