package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// BootstrapConfig holds the initial configuration loaded from controller_config.yaml.
// It covers process-level concerns (logging, HTTP port, telemetry fan-out, data
// directory); the operational robot profile is loaded separately.
type BootstrapConfig struct {
	Logging   LoggingConfig         `yaml:"logging"`
	Server    BootstrapServerConfig `yaml:"server"`
	Telemetry TelemetryBootstrap    `yaml:"telemetry"`
	Data      DataConfig            `yaml:"data"`
}

// LoggingConfig holds logging settings from bootstrap
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogPath string `yaml:"log_path,omitempty"`
}

// BootstrapServerConfig holds bootstrap HTTP server settings
type BootstrapServerConfig struct {
	HTTPPort int `yaml:"http_port"`
}

// TelemetryBootstrap holds telemetry publisher settings from bootstrap
type TelemetryBootstrap struct {
	Enabled            bool   `yaml:"enabled"`
	PublishBindAddress string `yaml:"publish_bind_address"`
}

// DataConfig holds data directory settings from bootstrap
type DataConfig struct {
	Directory           string `yaml:"directory"`
	RobotConfigFilename string `yaml:"robot_config_file"`
	SessionDBFilename   string `yaml:"session_db_file,omitempty"`
}

// LoadBootstrapConfig loads the bootstrap configuration from controller_config.yaml
func LoadBootstrapConfig(configDir string) (*BootstrapConfig, error) {
	bootstrapConfigPath := filepath.Join(configDir, "controller_config.yaml")

	data, err := os.ReadFile(bootstrapConfigPath)
	if err != nil {
		return nil, fmt.Errorf("error reading bootstrap config file '%s': %w", bootstrapConfigPath, err)
	}

	var bootstrapCfg BootstrapConfig
	if err := yaml.Unmarshal(data, &bootstrapCfg); err != nil {
		return nil, fmt.Errorf("error parsing bootstrap config file '%s': %w", bootstrapConfigPath, err)
	}

	if bootstrapCfg.Data.Directory == "" {
		return nil, fmt.Errorf("missing required field in bootstrap config: data.directory")
	}
	if bootstrapCfg.Data.RobotConfigFilename == "" {
		return nil, fmt.Errorf("missing required field in bootstrap config: data.robot_config_file")
	}
	if bootstrapCfg.Telemetry.Enabled && bootstrapCfg.Telemetry.PublishBindAddress == "" {
		return nil, fmt.Errorf("missing required field in bootstrap config: telemetry.publish_bind_address")
	}

	return &bootstrapCfg, nil
}
