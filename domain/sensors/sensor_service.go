package sensors

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/pyroscout/controller/pkg/bridge"
	"github.com/pyroscout/controller/pkg/config"
	customlog "github.com/pyroscout/controller/pkg/log"
)

// CommandSender issues commands to the bridge device.
type CommandSender interface {
	Send(command interface{}) bool
	Connected() bool
}

// defaultThresholds are the built-in alert thresholds per sensor. A reading
// at or above its threshold raises an alert, except battery, which alerts
// below.
var defaultThresholds = map[string]float64{
	"temperature": 45,   // degrees C
	"humidity":    90,   // percent
	"gas":         1000, // ppm
	"co":          50,   // ppm
	"smoke":       30,   // percent obscuration
	"battery":     20,   // percent remaining, alerts below
}

// Reading is the latest value of a single sensor.
type Reading struct {
	Value      float64   `json:"value"`
	ReceivedAt time.Time `json:"received_at"`
	Alerting   bool      `json:"alerting"`
}

// Alert describes a threshold crossing.
type Alert struct {
	Sensor    string  `json:"sensor"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
}

// SensorService tracks environmental sensor readings from the robot and
// raises alerts on threshold crossings.
type SensorService struct {
	sender CommandSender
	logger customlog.Logger

	mu         sync.RWMutex
	thresholds map[string]float64
	readings   map[string]Reading
	alertSubs  []func(Alert)
}

// NewSensorService creates the sensor service. Configured thresholds
// override the built-in defaults per sensor.
func NewSensorService(cfg config.SensorsConfig, sender CommandSender, logger customlog.Logger) *SensorService {
	thresholds := make(map[string]float64, len(defaultThresholds))
	for name, value := range defaultThresholds {
		thresholds[name] = value
	}
	for name, value := range cfg.Thresholds {
		thresholds[name] = value
	}

	return &SensorService{
		sender:     sender,
		logger:     logger,
		thresholds: thresholds,
		readings:   make(map[string]Reading),
	}
}

// OnAlert registers a subscriber for threshold alerts.
func (s *SensorService) OnAlert(f func(Alert)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alertSubs = append(s.alertSubs, f)
}

// HandleMessage consumes sensor data messages from the bridge.
func (s *SensorService) HandleMessage(msg bridge.Message) {
	if msg.Type != bridge.MsgTypeSensorData {
		return
	}
	values, err := msg.SensorReadings()
	if err != nil {
		s.logger.Warnf("Malformed sensor data: %v", err)
		return
	}

	now := time.Now()
	var alerts []Alert

	s.mu.Lock()
	for name, value := range values {
		alerting := s.exceedsLocked(name, value)
		s.readings[name] = Reading{Value: value, ReceivedAt: now, Alerting: alerting}
		if alerting {
			alerts = append(alerts, Alert{Sensor: name, Value: value, Threshold: s.thresholds[name]})
		}
	}
	subs := make([]func(Alert), len(s.alertSubs))
	copy(subs, s.alertSubs)
	s.mu.Unlock()

	for _, alert := range alerts {
		s.logger.Warnf("Sensor alert: %s=%.1f (threshold %.1f)", alert.Sensor, alert.Value, alert.Threshold)
		for _, f := range subs {
			f(alert)
		}
	}
}

// exceedsLocked reports whether a value crosses its sensor's threshold.
// Battery is inverted: low values alert.
func (s *SensorService) exceedsLocked(name string, value float64) bool {
	threshold, ok := s.thresholds[name]
	if !ok {
		return false
	}
	if name == "battery" {
		return value < threshold
	}
	return value >= threshold
}

// Readings returns a copy of the latest readings.
func (s *SensorService) Readings() map[string]Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Reading, len(s.readings))
	for name, r := range s.readings {
		out[name] = r
	}
	return out
}

// Thresholds returns a copy of the active thresholds.
func (s *SensorService) Thresholds() map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]float64, len(s.thresholds))
	for name, value := range s.thresholds {
		out[name] = value
	}
	return out
}

// Calibrate requests calibration of a single sensor.
func (s *SensorService) Calibrate(sensor string) bool {
	if !s.sender.Connected() {
		s.logger.Errorf("Cannot calibrate %s: not connected", sensor)
		return false
	}
	ok := s.sender.Send(bridge.NewCalibrateCommand(sensor))
	if ok {
		s.logger.Infof("Calibration requested for %s", sensor)
	}
	return ok
}

// CalibrateAll requests calibration of every sensor.
func (s *SensorService) CalibrateAll() bool {
	if !s.sender.Connected() {
		s.logger.Errorf("Cannot calibrate: not connected")
		return false
	}
	ok := s.sender.Send(bridge.NewCalibrateAllCommand())
	if ok {
		s.logger.Infof("Calibration requested for all sensors")
	}
	return ok
}

// GetReadingsHandler serves the latest sensor readings.
func (s *SensorService) GetReadingsHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":     "success",
		"readings":   s.Readings(),
		"thresholds": s.Thresholds(),
	})
}

// CalibrateHandler requests calibration for the sensor named in the path,
// or all sensors when the name is "all".
func (s *SensorService) CalibrateHandler(c *fiber.Ctx) error {
	sensor := c.Params("sensor")

	var ok bool
	if sensor == "all" {
		ok = s.CalibrateAll()
	} else {
		ok = s.Calibrate(sensor)
	}
	if !ok {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status":  "error",
			"message": "failed to send calibration command",
		})
	}
	return c.JSON(fiber.Map{"status": "success"})
}
