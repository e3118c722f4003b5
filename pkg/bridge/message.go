package bridge

import (
	"encoding/json"
	"fmt"
)

// Inbound message type values used by the bridge device.
const (
	MsgTypeLidarData   = "lidar_data"
	MsgTypeCameraFrame = "camera_frame"
	MsgTypeSensorData  = "sensor_data"
	MsgTypeHeartbeat   = "heartbeat"
	MsgTypeError       = "error"
)

// Outbound command type values.
const (
	CmdTypeRobotControl  = "robot_control"
	CmdTypeLidarControl  = "lidar_control"
	CmdTypeCameraControl = "camera_control"
	CmdTypeSensorControl = "sensor_control"
)

// Message is one parsed inbound wire message. Payloads are kept raw so each
// consumer decodes only the types it understands.
type Message struct {
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

// ScanPoints decodes a lidar_data payload: [[angleDeg, distanceMm], ...].
func (m Message) ScanPoints() ([][2]float64, error) {
	if m.Type != MsgTypeLidarData {
		return nil, fmt.Errorf("message type %q carries no scan data", m.Type)
	}
	var points [][2]float64
	if err := json.Unmarshal(m.Data, &points); err != nil {
		return nil, fmt.Errorf("decoding scan payload: %w", err)
	}
	return points, nil
}

// FramePayload decodes a camera_frame payload, a base64-encoded image kept
// opaque by the core.
func (m Message) FramePayload() (string, error) {
	if m.Type != MsgTypeCameraFrame {
		return "", fmt.Errorf("message type %q carries no frame data", m.Type)
	}
	var frame string
	if err := json.Unmarshal(m.Data, &frame); err != nil {
		return "", fmt.Errorf("decoding frame payload: %w", err)
	}
	return frame, nil
}

// SensorReadings decodes a sensor_data payload, a map of sensor key to value.
func (m Message) SensorReadings() (map[string]float64, error) {
	if m.Type != MsgTypeSensorData {
		return nil, fmt.Errorf("message type %q carries no sensor data", m.Type)
	}
	var readings map[string]float64
	if err := json.Unmarshal(m.Data, &readings); err != nil {
		return nil, fmt.Errorf("decoding sensor payload: %w", err)
	}
	return readings, nil
}

// RobotControlCommand commands the drive subsystem.
type RobotControlCommand struct {
	Type   string `json:"type"`
	Action string `json:"action"`
	Value  *int   `json:"value,omitempty"`
}

// NewMovementCommand builds a robot_control movement command.
func NewMovementCommand(action string) RobotControlCommand {
	return RobotControlCommand{Type: CmdTypeRobotControl, Action: action}
}

// NewSpeedCommand builds a robot_control set_speed command.
func NewSpeedCommand(value int) RobotControlCommand {
	return RobotControlCommand{Type: CmdTypeRobotControl, Action: "set_speed", Value: &value}
}

// LidarControlCommand starts or stops the ranging sensor sweep.
type LidarControlCommand struct {
	Type   string `json:"type"`
	Action string `json:"action"`
}

// NewLidarCommand builds a lidar_control command (start_scan / stop_scan).
func NewLidarCommand(action string) LidarControlCommand {
	return LidarControlCommand{Type: CmdTypeLidarControl, Action: action}
}

// CameraControlCommand starts or stops the video stream.
type CameraControlCommand struct {
	Type       string `json:"type"`
	Action     string `json:"action"`
	FPS        int    `json:"fps,omitempty"`
	Resolution []int  `json:"resolution,omitempty"`
}

// NewCameraStartCommand builds a camera_control start_stream command.
func NewCameraStartCommand(fps, width, height int) CameraControlCommand {
	return CameraControlCommand{
		Type:       CmdTypeCameraControl,
		Action:     "start_stream",
		FPS:        fps,
		Resolution: []int{width, height},
	}
}

// NewCameraStopCommand builds a camera_control stop_stream command.
func NewCameraStopCommand() CameraControlCommand {
	return CameraControlCommand{Type: CmdTypeCameraControl, Action: "stop_stream"}
}

// SensorControlCommand triggers sensor calibration on the bridge.
type SensorControlCommand struct {
	Type   string `json:"type"`
	Action string `json:"action"`
	Sensor string `json:"sensor,omitempty"`
}

// NewCalibrateCommand builds a sensor_control calibrate command for one sensor.
func NewCalibrateCommand(sensor string) SensorControlCommand {
	return SensorControlCommand{Type: CmdTypeSensorControl, Action: "calibrate", Sensor: sensor}
}

// NewCalibrateAllCommand builds a sensor_control calibrate_all command.
func NewCalibrateAllCommand() SensorControlCommand {
	return SensorControlCommand{Type: CmdTypeSensorControl, Action: "calibrate_all"}
}
