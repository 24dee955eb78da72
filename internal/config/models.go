package config

import "time"

// CurrentVersion is the schema version written by this build
const CurrentVersion = 1

// File represents the entire user configuration file.
type File struct {
	Version       int           `yaml:"version"`
	Device        *DeviceConfig `yaml:"device,omitempty"`
	LastBackupDir string        `yaml:"last_backup_dir,omitempty"`
	Preferences   *Preferences  `yaml:"preferences,omitempty"`
}

// DeviceConfig is the last device connected to successfully.
// KeyPath references a private key on disk; key material is never stored here.
type DeviceConfig struct {
	Address       string    `yaml:"address"`
	KeyPath       string    `yaml:"key_path"`
	LastConnected time.Time `yaml:"last_connected,omitempty"`
}

// Preferences represents application-wide user preferences.
type Preferences struct {
	HealthInterval  int `yaml:"health_interval"`  // Seconds between connection health checks
	DiscoverTimeout int `yaml:"discover_timeout"` // mDNS discovery timeout in seconds
}

// NewFile creates a new File with default values.
func NewFile() *File {
	return &File{
		Version:     CurrentVersion,
		Preferences: defaultPreferences(),
	}
}

func defaultPreferences() *Preferences {
	return &Preferences{
		HealthInterval:  10,
		DiscoverTimeout: 5,
	}
}

// HealthIntervalDuration returns the health interval, falling back to the default
func (p *Preferences) HealthIntervalDuration() time.Duration {
	if p == nil || p.HealthInterval <= 0 {
		return 10 * time.Second
	}
	return time.Duration(p.HealthInterval) * time.Second
}

// DiscoverTimeoutDuration returns the discovery timeout, falling back to the default
func (p *Preferences) DiscoverTimeoutDuration() time.Duration {
	if p == nil || p.DiscoverTimeout <= 0 {
		return 5 * time.Second
	}
	return time.Duration(p.DiscoverTimeout) * time.Second
}
