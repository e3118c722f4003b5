package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	tempDir := t.TempDir()

	configContent := `
version: "1.0"
robot_id: "test-robot"
lastUpdated: "2026-01-01T00:00:00Z"

connection:
  host: 10.0.0.5
  port: 7777
  auto_reconnect: true
  reconnect_interval: 2
  max_reconnect_attempts: 3
  heartbeat_timeout: 8

lidar:
  enabled: true
  max_distance: 2500
  max_points: 500

navigation:
  default_speed: 120
  obstacle_threshold: 400
`

	configPath := filepath.Join(tempDir, "test_config.yaml")
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.RobotID != "test-robot" {
		t.Errorf("Expected robot_id 'test-robot', got %q", cfg.RobotID)
	}
	if cfg.Connection.Host != "10.0.0.5" {
		t.Errorf("Expected host '10.0.0.5', got %q", cfg.Connection.Host)
	}
	if cfg.Connection.Port != 7777 {
		t.Errorf("Expected port 7777, got %d", cfg.Connection.Port)
	}
	if cfg.Lidar.MaxDistance != 2500 {
		t.Errorf("Expected max_distance 2500, got %v", cfg.Lidar.MaxDistance)
	}

	// Unset values get defaults.
	if cfg.Navigation.AutoStopTimeout != 30 {
		t.Errorf("Expected default auto_stop_timeout 30, got %v", cfg.Navigation.AutoStopTimeout)
	}
	if cfg.Lidar.ScanFrequency != 5 {
		t.Errorf("Expected default scan_frequency 5, got %v", cfg.Lidar.ScanFrequency)
	}
	if cfg.Camera.FPS != 15 {
		t.Errorf("Expected default camera fps 15, got %d", cfg.Camera.FPS)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("Expected error for missing config file")
	}
	if !strings.Contains(err.Error(), "error reading config file") {
		t.Errorf("Unexpected error message: %v", err)
	}
}

func TestApplyDefaultsOnEmptyConfig(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()

	if cfg.Connection.Host != "192.168.1.100" {
		t.Errorf("Expected default host, got %q", cfg.Connection.Host)
	}
	if cfg.Connection.Port != 9999 {
		t.Errorf("Expected default port 9999, got %d", cfg.Connection.Port)
	}
	if cfg.Lidar.MaxPoints != 1000 {
		t.Errorf("Expected default max_points 1000, got %d", cfg.Lidar.MaxPoints)
	}
	if cfg.Navigation.DefaultSpeed != 150 {
		t.Errorf("Expected default speed 150, got %d", cfg.Navigation.DefaultSpeed)
	}
}

func TestDurationHelpers(t *testing.T) {
	conn := ConnectionConfig{ReconnectInterval: 2.5, HeartbeatTimeout: 10}
	if got := conn.ReconnectIntervalDuration(); got != 2500*time.Millisecond {
		t.Errorf("Expected 2.5s reconnect interval, got %v", got)
	}
	if got := conn.HeartbeatTimeoutDuration(); got != 10*time.Second {
		t.Errorf("Expected 10s heartbeat timeout, got %v", got)
	}

	navCfg := NavigationConfig{AutoStopTimeout: 30}
	if got := navCfg.AutoStopTimeoutDuration(); got != 30*time.Second {
		t.Errorf("Expected 30s auto-stop timeout, got %v", got)
	}
}

func TestValidate(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Defaults should validate, got: %v", err)
	}

	bad := cfg
	bad.Connection.Port = 70000
	if err := bad.Validate(); err == nil {
		t.Error("Expected validation error for out-of-range port")
	}

	bad = cfg
	bad.Navigation.DefaultSpeed = 300
	if err := bad.Validate(); err == nil {
		t.Error("Expected validation error for out-of-range speed")
	}
}
