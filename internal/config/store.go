package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	appName    = "rmtemplates"
	configFile = "config.yaml"
)

// Store persists the last used device connection.
// Load returns nil and no error when nothing has been saved.
type Store interface {
	Load() (*DeviceConfig, error)
	Save(address, credentialRef string) error
	Clear() error
	SaveLastBackupDir(dir string) error
}

// GetConfigDir returns the OS-appropriate configuration directory for the application.
// This follows platform conventions:
//   - Linux: $XDG_CONFIG_HOME/rmtemplates or $HOME/.config/rmtemplates
//   - macOS: $HOME/.config/rmtemplates (following XDG convention on macOS)
//   - Windows: %LOCALAPPDATA%\rmtemplates
func GetConfigDir() (string, error) {
	var baseDir string

	switch runtime.GOOS {
	case "windows":
		localAppData := os.Getenv("LOCALAPPDATA")
		if localAppData == "" {
			userProfile := os.Getenv("USERPROFILE")
			if userProfile == "" {
				return "", fmt.Errorf("cannot determine user profile directory (LOCALAPPDATA and USERPROFILE not set)")
			}
			baseDir = filepath.Join(userProfile, "AppData", "Local", appName)
		} else {
			baseDir = filepath.Join(localAppData, appName)
		}

	case "darwin":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		baseDir = filepath.Join(homeDir, ".config", appName)

	default:
		xdgConfigHome := os.Getenv("XDG_CONFIG_HOME")
		if xdgConfigHome != "" {
			baseDir = filepath.Join(xdgConfigHome, appName)
		} else {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("cannot determine home directory: %w", err)
			}
			baseDir = filepath.Join(homeDir, ".config", appName)
		}
	}

	return baseDir, nil
}

// GetConfigPath returns the full path to the configuration file.
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, configFile), nil
}

// FileStore is a Store backed by a YAML file. It is safe for concurrent use.
type FileStore struct {
	path string
	mu   sync.Mutex
}

var _ Store = (*FileStore)(nil)

// NewFileStore returns a store that reads and writes the file at path
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// DefaultStore returns a store for the platform config file
func DefaultStore() (*FileStore, error) {
	path, err := GetConfigPath()
	if err != nil {
		return nil, fmt.Errorf("failed to get config path: %w", err)
	}
	return NewFileStore(path), nil
}

// Path returns the config file location
func (s *FileStore) Path() string {
	return s.path
}

// Load returns the saved device, or nil when none is saved
func (s *FileStore) Load() (*DeviceConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.read()
	if err != nil {
		return nil, err
	}
	if f.Device == nil || f.Device.Address == "" {
		return nil, nil
	}
	return f.Device, nil
}

// LoadFile returns the whole configuration file, with defaults when it does not exist
func (s *FileStore) LoadFile() (*File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

// Save records a successful connection
func (s *FileStore) Save(address, credentialRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.read()
	if err != nil {
		return err
	}
	f.Device = &DeviceConfig{
		Address:       address,
		KeyPath:       credentialRef,
		LastConnected: time.Now().UTC().Truncate(time.Second),
	}
	return s.write(f)
}

// SaveLastBackupDir remembers where the last backup was written
func (s *FileStore) SaveLastBackupDir(dir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.read()
	if err != nil {
		return err
	}
	f.LastBackupDir = dir
	return s.write(f)
}

// LastBackupDir returns the directory of the last backup, or "" if there was none
func (s *FileStore) LastBackupDir() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.read()
	if err != nil {
		return "", err
	}
	return f.LastBackupDir, nil
}

// Clear removes the configuration file. Clearing a missing file is not an error.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete config file: %w", err)
	}
	return nil
}

// read loads the file. Callers hold the lock.
func (s *FileStore) read() (*File, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return NewFile(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if f.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported config version: %d (expected %d)", f.Version, CurrentVersion)
	}
	if f.Preferences == nil {
		f.Preferences = defaultPreferences()
	}
	return &f, nil
}

// write saves the file atomically. Callers hold the lock.
func (s *FileStore) write(f *File) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# rmtemplates configuration file
# Stores the last connected reMarkable and the path of the SSH key used.
#
# Security Note: passwords and key material are NEVER stored in this file.
#
# Location: ` + s.path + `

`)
	data = append(header, data...)

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary config file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config file: %w", err)
	}
	return nil
}
