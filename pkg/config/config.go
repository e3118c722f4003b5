package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the operational robot configuration. It is supplied
// externally (file or API) and consumed by the core components.
type Config struct {
	Version     string           `yaml:"version" json:"version"`
	RobotID     string           `yaml:"robot_id" json:"robot_id"`
	LastUpdated string           `yaml:"lastUpdated" json:"lastUpdated"`
	Connection  ConnectionConfig `yaml:"connection" json:"connection"`
	Lidar       LidarConfig      `yaml:"lidar" json:"lidar"`
	Navigation  NavigationConfig `yaml:"navigation" json:"navigation"`
	Camera      CameraConfig     `yaml:"camera" json:"camera"`
	Sensors     SensorsConfig    `yaml:"sensors" json:"sensors"`
}

// ConnectionConfig holds the bridge link settings
type ConnectionConfig struct {
	Host                 string  `yaml:"host" json:"host"`
	Port                 int     `yaml:"port" json:"port"`
	AutoReconnect        bool    `yaml:"auto_reconnect" json:"auto_reconnect"`
	ReconnectInterval    float64 `yaml:"reconnect_interval" json:"reconnect_interval"` // seconds
	MaxReconnectAttempts int     `yaml:"max_reconnect_attempts" json:"max_reconnect_attempts"`
	HeartbeatTimeout     float64 `yaml:"heartbeat_timeout" json:"heartbeat_timeout"` // seconds
}

// LidarConfig holds ranging sensor settings
type LidarConfig struct {
	Enabled       bool    `yaml:"enabled" json:"enabled"`
	MaxDistance   float64 `yaml:"max_distance" json:"max_distance"` // mm
	ScanFrequency float64 `yaml:"scan_frequency" json:"scan_frequency"` // Hz
	MaxPoints     int     `yaml:"max_points" json:"max_points"`
}

// NavigationConfig holds movement control settings
type NavigationConfig struct {
	DefaultSpeed      int     `yaml:"default_speed" json:"default_speed"`
	AutoStopTimeout   float64 `yaml:"auto_stop_timeout" json:"auto_stop_timeout"` // seconds
	ObstacleThreshold float64 `yaml:"obstacle_threshold" json:"obstacle_threshold"` // mm
}

// CameraConfig holds video stream settings
type CameraConfig struct {
	FPS        int    `yaml:"fps" json:"fps"`
	Resolution [2]int `yaml:"resolution" json:"resolution"`
}

// SensorsConfig holds per-sensor alert thresholds, keyed by sensor name
// (temperature, humidity, gas, co, smoke, battery). Missing entries fall
// back to the built-in defaults of the sensor service.
type SensorsConfig struct {
	Thresholds map[string]float64 `yaml:"thresholds" json:"thresholds"`
}

// ReconnectIntervalDuration returns the reconnect interval as a Duration
func (c ConnectionConfig) ReconnectIntervalDuration() time.Duration {
	return time.Duration(c.ReconnectInterval * float64(time.Second))
}

// HeartbeatTimeoutDuration returns the heartbeat timeout as a Duration
func (c ConnectionConfig) HeartbeatTimeoutDuration() time.Duration {
	return time.Duration(c.HeartbeatTimeout * float64(time.Second))
}

// AutoStopTimeoutDuration returns the auto-stop timeout as a Duration
func (c NavigationConfig) AutoStopTimeoutDuration() time.Duration {
	return time.Duration(c.AutoStopTimeout * float64(time.Second))
}

// LoadConfig loads the operational configuration from the specified file path
// and applies defaults for unset values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills in defaults for values the file left unset.
func (c *Config) ApplyDefaults() {
	if c.Connection.Host == "" {
		c.Connection.Host = "192.168.1.100"
	}
	if c.Connection.Port == 0 {
		c.Connection.Port = 9999
	}
	if c.Connection.ReconnectInterval == 0 {
		c.Connection.ReconnectInterval = 5
	}
	if c.Connection.MaxReconnectAttempts == 0 {
		c.Connection.MaxReconnectAttempts = 5
	}
	if c.Connection.HeartbeatTimeout == 0 {
		c.Connection.HeartbeatTimeout = 10
	}
	if c.Lidar.MaxDistance == 0 {
		c.Lidar.MaxDistance = 3000
	}
	if c.Lidar.ScanFrequency == 0 {
		c.Lidar.ScanFrequency = 5
	}
	if c.Lidar.MaxPoints == 0 {
		c.Lidar.MaxPoints = 1000
	}
	if c.Navigation.DefaultSpeed == 0 {
		c.Navigation.DefaultSpeed = 150
	}
	if c.Navigation.AutoStopTimeout == 0 {
		c.Navigation.AutoStopTimeout = 30
	}
	if c.Navigation.ObstacleThreshold == 0 {
		c.Navigation.ObstacleThreshold = 500
	}
	if c.Camera.FPS == 0 {
		c.Camera.FPS = 15
	}
	if c.Camera.Resolution == [2]int{} {
		c.Camera.Resolution = [2]int{640, 480}
	}
}

// Validate checks the configuration for values the core cannot work with.
func (c *Config) Validate() error {
	if c.Connection.Host == "" {
		return fmt.Errorf("connection.host must not be empty")
	}
	if c.Connection.Port <= 0 || c.Connection.Port > 65535 {
		return fmt.Errorf("connection.port out of range: %d", c.Connection.Port)
	}
	if c.Lidar.MaxDistance <= 0 {
		return fmt.Errorf("lidar.max_distance must be positive: %v", c.Lidar.MaxDistance)
	}
	if c.Navigation.DefaultSpeed < 0 || c.Navigation.DefaultSpeed > 255 {
		return fmt.Errorf("navigation.default_speed out of range: %d", c.Navigation.DefaultSpeed)
	}
	return nil
}
