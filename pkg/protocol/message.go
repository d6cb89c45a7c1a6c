// Package protocol defines the JSON wire types exchanged with the charger
// controller, the locomotion interface, battery telemetry and status watchers.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of a websocket envelope.
type MessageType string

const (
	TypeStatus MessageType = "status" // Undock status report
	TypePing   MessageType = "ping"   // Health check
)

// Message is the envelope for everything sent to websocket watchers.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	return &msg, nil
}

// =============================================================================
// Battery telemetry
// =============================================================================

// PowerSupplyStatus is the charge status code carried by battery telemetry.
type PowerSupplyStatus uint8

// Power supply status codes, as published by the charger RCU.
const (
	PowerSupplyUnknown     PowerSupplyStatus = 0
	PowerSupplyCharging    PowerSupplyStatus = 1
	PowerSupplyDischarging PowerSupplyStatus = 2
	PowerSupplyNotCharging PowerSupplyStatus = 3
	PowerSupplyFull        PowerSupplyStatus = 4
)

func (s PowerSupplyStatus) String() string {
	switch s {
	case PowerSupplyUnknown:
		return "unknown"
	case PowerSupplyCharging:
		return "charging"
	case PowerSupplyDischarging:
		return "discharging"
	case PowerSupplyNotCharging:
		return "not_charging"
	case PowerSupplyFull:
		return "full"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// BatteryState is a battery telemetry sample. Only the power supply status
// is consumed; the other fields are informational.
type BatteryState struct {
	Voltage           float64            `json:"voltage,omitempty"`
	Current           float64            `json:"current,omitempty"`
	Percentage        float64            `json:"percentage,omitempty"`
	PowerSupplyStatus *PowerSupplyStatus `json:"power_supply_status"`
}

// ParseBatteryState decodes a telemetry payload. A payload without a
// power_supply_status field is rejected.
func ParseBatteryState(data []byte) (BatteryState, error) {
	var bs BatteryState
	if err := json.Unmarshal(data, &bs); err != nil {
		return BatteryState{}, fmt.Errorf("failed to parse battery state: %w", err)
	}
	if bs.PowerSupplyStatus == nil {
		return BatteryState{}, fmt.Errorf("battery state has no power_supply_status")
	}
	return bs, nil
}

// =============================================================================
// Velocity commands
// =============================================================================

// Vector3 is a 3D vector.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Twist is a velocity command: linear.x in m/s, angular.z in rad/s.
type Twist struct {
	Linear  Vector3 `json:"linear"`
	Angular Vector3 `json:"angular"`
}

// NewTwist builds a planar velocity command.
func NewTwist(linear, angular float64) Twist {
	return Twist{
		Linear:  Vector3{X: linear},
		Angular: Vector3{Z: angular},
	}
}

// IsStop reports whether the command is the zero-velocity stop command.
func (t Twist) IsStop() bool {
	return t == Twist{}
}

// =============================================================================
// Trigger service
// =============================================================================

// TriggerResponse is the reply of a trigger-style service call.
type TriggerResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// =============================================================================
// Goal status
// =============================================================================

// GoalStatusCode is the supervisor-facing status code.
type GoalStatusCode uint8

// Goal status codes understood by the supervisor.
const (
	GoalPending   GoalStatusCode = 0
	GoalActive    GoalStatusCode = 1
	GoalPreempted GoalStatusCode = 2
	GoalSucceeded GoalStatusCode = 3
	GoalAborted   GoalStatusCode = 4
)

func (c GoalStatusCode) String() string {
	switch c {
	case GoalPending:
		return "pending"
	case GoalActive:
		return "active"
	case GoalPreempted:
		return "preempted"
	case GoalSucceeded:
		return "succeeded"
	case GoalAborted:
		return "aborted"
	default:
		return fmt.Sprintf("code(%d)", uint8(c))
	}
}

// GoalID identifies one undock run.
type GoalID struct {
	ID    string `json:"id"`
	Stamp int64  `json:"stamp"` // Unix milliseconds
}

// GoalStatus is one entry of a status report.
type GoalStatus struct {
	GoalID GoalID         `json:"goal_id"`
	Status GoalStatusCode `json:"status"`
	Text   string         `json:"text"`
}

// GoalStatusArray is the status message published to the supervisor.
type GoalStatusArray struct {
	Stamp      int64        `json:"stamp"` // Unix milliseconds
	StatusList []GoalStatus `json:"status_list"`
}
