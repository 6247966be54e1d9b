package config_manager

import (
	"fmt"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var logger = logrus.WithField("module", "config_manager")

const (
	// DefaultConfigPath is used unless ConfigPathEnv is set
	DefaultConfigPath = "/etc/tollgate/client.json"
	ConfigPathEnv     = "TOLLGATE_CLIENT_CONFIG_PATH"
)

// ConfigPath returns the config file location, honouring ConfigPathEnv
func ConfigPath() string {
	if path := os.Getenv(ConfigPathEnv); path != "" {
		return path
	}
	return DefaultConfigPath
}

// ConfigManager owns the config file and the session state file.
type ConfigManager struct {
	filePath string
	config   *Config
	mu       sync.RWMutex
	stateMu  sync.Mutex
}

// NewConfigManager loads the config at filePath, creating it with defaults if needed
func NewConfigManager(filePath string) (*ConfigManager, error) {
	config, err := EnsureDefaultConfig(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure default config: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"path":    filePath,
		"version": config.ConfigVersion,
	}).Info("Loaded config")

	return &ConfigManager{
		filePath: filePath,
		config:   config,
	}, nil
}

// GetConfig returns the current config. Callers must not modify it.
func (cm *ConfigManager) GetConfig() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// Update applies fn to a copy of the config, saves it and makes it current
func (cm *ConfigManager) Update(fn func(*Config)) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	updated := *cm.config
	fn(&updated)

	if err := SaveConfig(cm.filePath, &updated); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	cm.config = &updated
	return nil
}

// SetAutoPay persists the auto-pay flag so it survives restarts
func (cm *ConfigManager) SetAutoPay(enabled bool) error {
	return cm.Update(func(c *Config) {
		c.Chandler.AutoPay = enabled
	})
}

// SaveSessionState writes a session snapshot to the configured state file
func (cm *ConfigManager) SaveSessionState(data []byte) error {
	path := cm.GetConfig().StateFile
	if path == "" {
		return nil
	}

	cm.stateMu.Lock()
	defer cm.stateMu.Unlock()

	if err := writeFileAtomic(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write session state to %s: %w", path, err)
	}
	return nil
}

// LoadSessionState reads the last saved snapshot; nil when none exists yet
func (cm *ConfigManager) LoadSessionState() ([]byte, error) {
	path := cm.GetConfig().StateFile
	if path == "" {
		return nil, nil
	}

	cm.stateMu.Lock()
	defer cm.stateMu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read session state from %s: %w", path, err)
	}
	return data, nil
}
