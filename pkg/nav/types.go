package nav

import "fmt"

// Mode is the movement control mode.
type Mode string

const (
	ModeManual     Mode = "manual"
	ModeAssisted   Mode = "assisted"
	ModeAutonomous Mode = "autonomous"
)

// ParseMode converts a wire/API string into a Mode. Unknown strings are a
// validation error, never a silent default.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeManual, ModeAssisted, ModeAutonomous:
		return Mode(s), nil
	}
	return "", fmt.Errorf("invalid navigation mode: %q", s)
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	_, err := ParseMode(string(m))
	return err == nil
}

// Direction is a movement command, matching the bridge wire actions.
type Direction string

const (
	DirectionStop      Direction = "stop"
	DirectionForward   Direction = "forward"
	DirectionBackward  Direction = "backward"
	DirectionLeft      Direction = "left"
	DirectionRight     Direction = "right"
	DirectionSoftLeft  Direction = "soft_left"
	DirectionSoftRight Direction = "soft_right"
)

// ParseDirection converts a wire/API string into a Direction.
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case DirectionStop, DirectionForward, DirectionBackward,
		DirectionLeft, DirectionRight, DirectionSoftLeft, DirectionSoftRight:
		return Direction(s), nil
	}
	return "", fmt.Errorf("invalid direction: %q", s)
}

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	_, err := ParseDirection(string(d))
	return err == nil
}

// StatusEvent carries a navigation state transition to subscribers.
type StatusEvent struct {
	Mode         Mode      `json:"mode"`
	PreviousMode Mode      `json:"previous_mode,omitempty"`
	Direction    Direction `json:"direction,omitempty"`
	Speed        int       `json:"speed"`
	IsMoving     bool      `json:"is_moving"`
}

// ObstacleEvent describes a proximity alert as seen by the controller.
type ObstacleEvent struct {
	Side     string  `json:"side"` // front, left or right
	Angle    float64 `json:"angle"`
	Distance float64 `json:"distance"` // mm
}

// State is a read-only snapshot of the navigation state.
type State struct {
	Mode       Mode      `json:"mode"`
	Direction  Direction `json:"direction"`
	Speed      int       `json:"speed"`
	IsMoving   bool      `json:"is_moving"`
	AutoTarget float64   `json:"auto_target"` // radians
}
