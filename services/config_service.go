package services

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pyroscout/controller/pkg/config"
	customlog "github.com/pyroscout/controller/pkg/log"
)

// RobotConfigService manages the operational robot configuration: loading
// it from disk, serving it to clients, and persisting updates.
type RobotConfigService interface {
	LoadConfig() error
	GetCurrentConfig() *config.Config
	GetCurrentConfigYAML() ([]byte, error)
	UpdateConfig(newConfigYAML []byte) error
	PersistConfig(yamlData []byte) error
}

type robotConfigService struct {
	configPath    string
	logger        customlog.Logger
	currentConfig *config.Config
	mu            sync.RWMutex
}

// NewRobotConfigService creates a RobotConfigService bound to the given
// file path and performs an initial load.
func NewRobotConfigService(configPath string, logger customlog.Logger) (RobotConfigService, error) {
	if configPath == "" {
		return nil, fmt.Errorf("robot configuration path cannot be empty")
	}

	service := &robotConfigService{
		configPath: configPath,
		logger:     logger,
	}

	if err := service.LoadConfig(); err != nil {
		// The file may not exist yet; it can still be supplied via the API.
		logger.Warnf("Initial load of robot config '%s' failed: %v", configPath, err)
		return service, nil
	}

	logger.Infof("Robot configuration service initialized for path: %s", configPath)
	return service, nil
}

// LoadConfig reads the robot config file from disk and makes it current.
func (s *robotConfigService) LoadConfig() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Infof("Loading robot configuration from: %s", s.configPath)
	cfg, err := config.LoadConfig(s.configPath)
	if err != nil {
		s.currentConfig = nil
		return err
	}
	if err := cfg.Validate(); err != nil {
		s.currentConfig = nil
		return fmt.Errorf("invalid robot configuration: %w", err)
	}

	s.currentConfig = cfg
	s.logger.Infof("Loaded robot configuration for %s (version %s)", cfg.RobotID, cfg.Version)
	return nil
}

// GetCurrentConfig returns the currently loaded configuration, nil when no
// valid configuration has been loaded.
func (s *robotConfigService) GetCurrentConfig() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentConfig
}

// GetCurrentConfigYAML returns the raw YAML content of the config file.
func (s *robotConfigService) GetCurrentConfigYAML() ([]byte, error) {
	s.mu.RLock()
	path := s.configPath
	s.mu.RUnlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading robot config file '%s': %w", path, err)
	}
	return data, nil
}

// UpdateConfig validates, persists and applies a new configuration supplied
// as YAML.
func (s *robotConfigService) UpdateConfig(newConfigYAML []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var newCfg config.Config
	if err := yaml.Unmarshal(newConfigYAML, &newCfg); err != nil {
		return fmt.Errorf("invalid YAML format: %w", err)
	}
	newCfg.ApplyDefaults()
	if newCfg.RobotID == "" {
		return fmt.Errorf("validation failed: robot_id is required")
	}
	if err := newCfg.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	newCfg.LastUpdated = time.Now().UTC().Format(time.RFC3339)

	data, err := yaml.Marshal(&newCfg)
	if err != nil {
		return fmt.Errorf("error serializing robot configuration: %w", err)
	}
	if err := s.persistConfigUnlocked(data); err != nil {
		return err
	}

	s.currentConfig = &newCfg
	s.logger.Infof("Robot configuration updated for %s (version %s)", newCfg.RobotID, newCfg.Version)
	return nil
}

// PersistConfig writes the given YAML data to the config file path.
func (s *robotConfigService) PersistConfig(yamlData []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistConfigUnlocked(yamlData)
}

func (s *robotConfigService) persistConfigUnlocked(yamlData []byte) error {
	if err := os.WriteFile(s.configPath, yamlData, 0644); err != nil {
		return fmt.Errorf("error writing robot config file '%s': %w", s.configPath, err)
	}
	s.logger.Infof("Persisted robot configuration to %s", s.configPath)
	return nil
}
