package config_manager

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/OpenTollGate/tollgate-client-go/src/tollgate_protocol"
	"github.com/hashicorp/go-version"
	"github.com/sirupsen/logrus"
)

// CurrentConfigVersion is the latest version of the client.json format.
const CurrentConfigVersion = "v0.1.0"

// Config is the client daemon configuration.
type Config struct {
	ConfigVersion string          `json:"config_version"`
	LogLevel      string          `json:"log_level"`
	StateFile     string          `json:"state_file"`
	ControlSocket string          `json:"control_socket"`
	Wallet        WalletConfig    `json:"wallet"`
	Crowsnest     CrowsnestConfig `json:"crowsnest"`
	Chandler      ChandlerConfig  `json:"chandler"`
}

// WalletConfig locates the Cashu wallet and lists the mints it may hold funds at.
type WalletConfig struct {
	Path          string   `json:"path"`
	AcceptedMints []string `json:"accepted_mints"`
}

// CrowsnestConfig holds configuration for the crowsnest module
type CrowsnestConfig struct {
	ProbeTimeout time.Duration `json:"probe_timeout"`
	GatewayPort  int           `json:"gateway_port"`

	// Interface filtering
	IgnoreInterfaces []string `json:"ignore_interfaces"`
	OnlyInterfaces   []string `json:"only_interfaces"`

	// Discovery deduplication
	DiscoveryTimeout time.Duration `json:"discovery_timeout"`

	// How often interface byte counters are sampled for data sessions
	TrafficPollInterval time.Duration `json:"traffic_poll_interval"`
}

// ChandlerConfig holds configuration for the chandler module
type ChandlerConfig struct {
	// Budget settings
	MaxPricePerMillisecond float64 `json:"max_price_per_millisecond"` // Max sats per ms (can be fractional)
	MaxPricePerByte        float64 `json:"max_price_per_byte"`        // Max sats per byte (can be fractional)

	Trust    TrustConfig   `json:"trust"`
	Sessions SessionConfig `json:"sessions"`

	AutoPay        bool          `json:"auto_pay"`
	SweepInterval  time.Duration `json:"sweep_interval"`
	RequestTimeout time.Duration `json:"request_timeout"`
}

// TrustConfig holds trust policy configuration
type TrustConfig struct {
	DefaultPolicy string   `json:"default_policy"` // "trust_all", "trust_none"
	Allowlist     []string `json:"allowlist"`      // Trusted pubkeys
	Blocklist     []string `json:"blocklist"`      // Blocked pubkeys
}

// SessionConfig holds purchase sizing and renewal settings
type SessionConfig struct {
	RenewalThreshold    float64       `json:"renewal_threshold"`
	InitialTimeFloor    time.Duration `json:"initial_time_floor"`
	InitialDataFloor    uint64        `json:"initial_data_floor_bytes"`
	RenewalTimeFloor    time.Duration `json:"renewal_time_floor"`
	RenewalDataFloor    uint64        `json:"renewal_data_floor_bytes"`
	RenewingGracePeriod time.Duration `json:"renewing_grace_period"`
}

// NewDefaultConfig creates a Config with default values.
func NewDefaultConfig() *Config {
	return &Config{
		ConfigVersion: CurrentConfigVersion,
		LogLevel:      "info",
		StateFile:     "/etc/tollgate/client_sessions.json",
		ControlSocket: "/var/run/tollgate-client.sock",
		Wallet: WalletConfig{
			Path: "/etc/tollgate/client_wallet",
			AcceptedMints: []string{
				"https://nofees.testnut.cashu.space",
				"https://mint.coinos.io",
				"https://mint.minibits.cash/Bitcoin",
			},
		},
		Crowsnest: CrowsnestConfig{
			ProbeTimeout:        10 * time.Second,
			GatewayPort:         2121,
			IgnoreInterfaces:    []string{"lo", "docker0", "br-lan", "phy1-ap0", "phy0-ap0", "wlan0-ap", "wlan1-ap", "hostap0"},
			OnlyInterfaces:      []string{},
			DiscoveryTimeout:    300 * time.Second,
			TrafficPollInterval: 5 * time.Second,
		},
		Chandler: ChandlerConfig{
			MaxPricePerMillisecond: 0.002777777778,   // 10k sats/hr
			MaxPricePerByte:        0.00003725782414, // 5k sats/gbit
			Trust: TrustConfig{
				DefaultPolicy: "trust_all",
				Allowlist:     []string{},
				Blocklist:     []string{},
			},
			Sessions: SessionConfig{
				RenewalThreshold:    0.8,
				InitialTimeFloor:    tollgate_protocol.InitialTimeFloor,
				InitialDataFloor:    tollgate_protocol.InitialDataFloor,
				RenewalTimeFloor:    tollgate_protocol.RenewalTimeFloor,
				RenewalDataFloor:    tollgate_protocol.RenewalDataFloor,
				RenewingGracePeriod: 2 * time.Minute,
			},
			AutoPay:        true,
			SweepInterval:  10 * time.Second,
			RequestTimeout: 10 * time.Second,
		},
	}
}

// LoadConfig loads and parses a config file. A missing or empty file yields nil.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", filePath, err)
	}
	return &config, nil
}

// SaveConfig writes the config as indented JSON.
func SaveConfig(filePath string, config *Config) error {
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(filePath, data, 0644)
}

// EnsureDefaultConfig loads the config file, writing defaults if it does not
// exist. Files from an older version get the fields added since then filled
// with defaults; unreadable files are backed up and replaced.
func EnsureDefaultConfig(filePath string) (*Config, error) {
	defaults := NewDefaultConfig()

	config, err := LoadConfig(filePath)
	if err != nil {
		logger.WithError(err).WithField("path", filePath).Warn("Config unreadable, replacing with defaults")
		if backupErr := backupFile(filePath); backupErr != nil {
			return nil, backupErr
		}
		return defaults, SaveConfig(filePath, defaults)
	}
	if config == nil {
		return defaults, SaveConfig(filePath, defaults)
	}

	migrated, err := migrateConfig(config, defaults)
	if err != nil {
		logger.WithError(err).WithField("path", filePath).Warn("Config version invalid, replacing with defaults")
		if backupErr := backupFile(filePath); backupErr != nil {
			return nil, backupErr
		}
		return defaults, SaveConfig(filePath, defaults)
	}
	if migrated {
		if err := SaveConfig(filePath, config); err != nil {
			return nil, err
		}
	}
	return config, nil
}

// migrateConfig back-fills fields an older config does not carry.
// It reports whether the config changed.
func migrateConfig(config, defaults *Config) (bool, error) {
	if config.ConfigVersion == "" {
		config.ConfigVersion = "v0.0.0"
	}

	current, err := version.NewVersion(CurrentConfigVersion)
	if err != nil {
		return false, err
	}
	fileVersion, err := version.NewVersion(config.ConfigVersion)
	if err != nil {
		return false, fmt.Errorf("invalid config_version %q: %w", config.ConfigVersion, err)
	}

	if fileVersion.GreaterThan(current) {
		logger.WithFields(logrus.Fields{
			"file_version":    config.ConfigVersion,
			"current_version": CurrentConfigVersion,
		}).Warn("Config is newer than this build, using it as is")
		return false, nil
	}
	if fileVersion.Equal(current) {
		return false, nil
	}

	fillDefaults(config, defaults)
	logger.WithFields(logrus.Fields{
		"from": config.ConfigVersion,
		"to":   CurrentConfigVersion,
	}).Info("Migrated config")
	config.ConfigVersion = CurrentConfigVersion
	return true, nil
}

func fillDefaults(config, defaults *Config) {
	if config.LogLevel == "" {
		config.LogLevel = defaults.LogLevel
	}
	if config.StateFile == "" {
		config.StateFile = defaults.StateFile
	}
	if config.ControlSocket == "" {
		config.ControlSocket = defaults.ControlSocket
	}
	if config.Wallet.Path == "" {
		config.Wallet.Path = defaults.Wallet.Path
	}
	if len(config.Wallet.AcceptedMints) == 0 {
		config.Wallet.AcceptedMints = defaults.Wallet.AcceptedMints
	}

	cn, dcn := &config.Crowsnest, defaults.Crowsnest
	if cn.ProbeTimeout == 0 {
		cn.ProbeTimeout = dcn.ProbeTimeout
	}
	if cn.GatewayPort == 0 {
		cn.GatewayPort = dcn.GatewayPort
	}
	if cn.IgnoreInterfaces == nil {
		cn.IgnoreInterfaces = dcn.IgnoreInterfaces
	}
	if cn.OnlyInterfaces == nil {
		cn.OnlyInterfaces = dcn.OnlyInterfaces
	}
	if cn.DiscoveryTimeout == 0 {
		cn.DiscoveryTimeout = dcn.DiscoveryTimeout
	}
	if cn.TrafficPollInterval == 0 {
		cn.TrafficPollInterval = dcn.TrafficPollInterval
	}

	ch, dch := &config.Chandler, defaults.Chandler
	if ch.MaxPricePerMillisecond == 0 {
		ch.MaxPricePerMillisecond = dch.MaxPricePerMillisecond
	}
	if ch.MaxPricePerByte == 0 {
		ch.MaxPricePerByte = dch.MaxPricePerByte
	}
	if ch.Trust.DefaultPolicy == "" {
		ch.Trust = dch.Trust
	}
	if ch.SweepInterval == 0 {
		ch.SweepInterval = dch.SweepInterval
	}
	if ch.RequestTimeout == 0 {
		ch.RequestTimeout = dch.RequestTimeout
	}

	s, ds := &ch.Sessions, dch.Sessions
	if s.RenewalThreshold == 0 {
		s.RenewalThreshold = ds.RenewalThreshold
	}
	if s.InitialTimeFloor == 0 {
		s.InitialTimeFloor = ds.InitialTimeFloor
	}
	if s.InitialDataFloor == 0 {
		s.InitialDataFloor = ds.InitialDataFloor
	}
	if s.RenewalTimeFloor == 0 {
		s.RenewalTimeFloor = ds.RenewalTimeFloor
	}
	if s.RenewalDataFloor == 0 {
		s.RenewalDataFloor = ds.RenewalDataFloor
	}
	if s.RenewingGracePeriod == 0 {
		s.RenewingGracePeriod = ds.RenewingGracePeriod
	}
}

// backupFile moves a bad config aside so it is not lost when defaults are written
func backupFile(filePath string) error {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil
	}
	backup := fmt.Sprintf("%s.%d.bak", filePath, time.Now().Unix())
	if err := os.Rename(filePath, backup); err != nil {
		return fmt.Errorf("failed to back up %s: %w", filePath, err)
	}
	logger.WithField("backup", filepath.Base(backup)).Info("Backed up previous config")
	return nil
}

// writeFileAtomic writes to a temp file in the same directory and renames it
// over the target so readers never see a partial file.
func writeFileAtomic(filePath string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(filePath)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, filePath)
}
