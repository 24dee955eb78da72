package device

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/muurk/rmtemplates/internal/templates"
)

const (
	// DefaultUSBAddress is the address the tablet uses over its USB network
	DefaultUSBAddress = "10.11.99.1"

	// TemplatesDir is where xochitl reads templates from
	TemplatesDir = "/usr/share/remarkable/templates"

	// TemplatesJSON is the index of templates shown on the device
	TemplatesJSON = TemplatesDir + "/templates.json"
)

// Service is the remote device as seen by the sync engine.
// Implementations must make ApplySync all-or-nothing from the caller's view.
type Service interface {
	Connect(ctx context.Context, credentialRef, address string) error
	Disconnect() error
	CheckHealth(ctx context.Context) error
	FetchTemplates(ctx context.Context) ([]templates.Template, error)
	ApplySync(ctx context.Context, uploads []templates.Upload, deletions []string) error
	Backup(ctx context.Context, targetDir string) (*BackupResult, error)
	Reboot(ctx context.Context) error
}

// KeyManager handles the local SSH keys used to log in to the device
type KeyManager interface {
	ListKeys() ([]Key, error)
	GenerateKey() (Key, error)
	UploadKey(ctx context.Context, keyPath, address, password string) error
}

// BackupResult describes a finished backup archive
type BackupResult struct {
	FilePath  string `json:"filePath"`
	SizeBytes int64  `json:"sizeBytes"`
	Files     int    `json:"files"`
}

// Key is a private key found in ~/.ssh
type Key struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// SelectedFile is a local file accepted as a template source
type SelectedFile struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// SelectLocalFile validates a local template file.
// An empty path means nothing was chosen and returns nil, nil.
func SelectLocalFile(path string) (*SelectedFile, error) {
	if path == "" {
		return nil, nil
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".svg" && ext != ".png" {
		return nil, NewInvalidFileError(fmt.Sprintf("invalid file type %q: only SVG and PNG files are allowed", ext), nil)
	}

	name := filepath.Base(path)
	if err := templates.ValidateFilename(name); err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, NewInvalidFileError("file does not exist: "+path, err)
		}
		return nil, NewInvalidFileError("cannot read file: "+path, err)
	}
	if info.IsDir() {
		return nil, NewInvalidFileError(path+" is a directory", nil)
	}

	return &SelectedFile{Name: name, Path: path}, nil
}
