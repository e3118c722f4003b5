package api

// MoveRequest commands a movement direction.
type MoveRequest struct {
	Direction string `json:"direction"`
}

// ModeRequest switches the navigation mode.
type ModeRequest struct {
	Mode string `json:"mode"`
}

// SpeedRequest sets the movement speed, 0..255.
type SpeedRequest struct {
	Speed int `json:"speed"`
}

// TargetRequest sets the autonomous target heading in radians.
type TargetRequest struct {
	Heading float64 `json:"heading"`
}

// ControlMsg is the envelope for control commands arriving over the
// websocket.
type ControlMsg struct {
	Type      string  `json:"type"` // move | mode | speed | target
	Direction string  `json:"direction,omitempty"`
	Mode      string  `json:"mode,omitempty"`
	Speed     int     `json:"speed,omitempty"`
	Heading   float64 `json:"heading,omitempty"`
}

// ControlAck is the websocket response to a control command.
type ControlAck struct {
	Type    string `json:"type"` // always "ack"
	Command string `json:"command"`
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}
