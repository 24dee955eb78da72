// Package config persists the last used reMarkable connection.
//
// The configuration is a small YAML file holding the device address, the path
// of the SSH private key that worked, the last backup directory and a few
// preferences. The file follows OS-specific conventions for storage location:
//   - Linux: $XDG_CONFIG_HOME/rmtemplates/config.yaml or $HOME/.config/rmtemplates/config.yaml
//   - macOS: $HOME/.config/rmtemplates/config.yaml
//   - Windows: %LOCALAPPDATA%\rmtemplates\config.yaml
//
// # Security
//
// Only the key's path is stored. Passwords are always prompted when needed.
//
// # Usage Example
//
//	store, err := config.DefaultStore()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := store.Save("10.11.99.1", "~/.ssh/remarkable_ab12"); err != nil {
//	    log.Fatal(err)
//	}
//	saved, _ := store.Load() // nil when nothing is saved
//
// Writes go to a temporary file that is renamed into place.
package config
