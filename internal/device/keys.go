package device

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"

	"github.com/muurk/rmtemplates/internal/logging"
)

// keyBits is the RSA key size for generated keys
var keyBits = 4096

// skippedKeyFiles are well-known files in ~/.ssh that are never private keys
var skippedKeyFiles = map[string]bool{
	"known_hosts":     true,
	"known_hosts.old": true,
	"config":          true,
	"authorized_keys": true,
}

// FileKeyManager manages keys in a local .ssh directory. It implements KeyManager.
type FileKeyManager struct {
	// Dir is the key directory (default: ~/.ssh)
	Dir string
}

var _ KeyManager = (*FileKeyManager)(nil)

// NewFileKeyManager returns a key manager for the user's ~/.ssh directory
func NewFileKeyManager() *FileKeyManager {
	return &FileKeyManager{}
}

func (m *FileKeyManager) dir() (string, error) {
	if m.Dir != "" {
		return m.Dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".ssh"), nil
}

// ListKeys returns the private keys in the key directory
func (m *FileKeyManager) ListKeys() ([]Key, error) {
	dir, err := m.dir()
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Key{}, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	keys := []Key{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || skippedKeyFiles[name] || strings.HasSuffix(name, ".pub") || strings.HasSuffix(name, ".pem") {
			continue
		}
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		if strings.Contains(string(content), "PRIVATE KEY") {
			keys = append(keys, Key{Name: name, Path: filepath.Join(dir, name)})
		}
	}
	return keys, nil
}

// GenerateKey creates a new RSA key pair named remarkable_<random>.
// The private key is PEM encoded with mode 0600 and the public key is
// written next to it in authorized_keys format.
func (m *FileKeyManager) GenerateKey() (Key, error) {
	dir, err := m.dir()
	if err != nil {
		return Key{}, err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return Key{}, fmt.Errorf("failed to create %s: %w", dir, err)
	}

	id := make([]byte, 8)
	if _, err := rand.Read(id); err != nil {
		return Key{}, fmt.Errorf("failed to generate key name: %w", err)
	}
	name := "remarkable_" + hex.EncodeToString(id)
	privatePath := filepath.Join(dir, name)

	privateKey, err := rsa.GenerateKey(rand.Reader, keyBits)
	if err != nil {
		return Key{}, fmt.Errorf("failed to generate RSA key: %w", err)
	}

	privatePEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(privateKey),
	})
	if err := os.WriteFile(privatePath, privatePEM, 0600); err != nil {
		return Key{}, fmt.Errorf("failed to write private key: %w", err)
	}

	publicKey, err := ssh.NewPublicKey(&privateKey.PublicKey)
	if err != nil {
		return Key{}, fmt.Errorf("failed to generate public key: %w", err)
	}
	if err := os.WriteFile(privatePath+".pub", ssh.MarshalAuthorizedKey(publicKey), 0644); err != nil {
		return Key{}, fmt.Errorf("failed to write public key: %w", err)
	}

	logging.Info("Generated SSH key", zap.String("path", privatePath))
	return Key{Name: name, Path: privatePath}, nil
}

// UploadKey appends the public half of keyPath to the device's authorized_keys
// using password login, then logs in with the key to prove it works.
func (m *FileKeyManager) UploadKey(ctx context.Context, keyPath, address, password string) error {
	privatePath, err := expandPath(keyPath)
	if err != nil {
		return fmt.Errorf("failed to expand key path: %w", err)
	}
	publicKey, err := os.ReadFile(privatePath + ".pub")
	if err != nil {
		return fmt.Errorf("failed to read public key: %w", err)
	}

	svc := NewSSHService()
	client, err := svc.dial(ctx, address, ssh.Password(password))
	if err != nil {
		return err
	}
	svc.mu.Lock()
	svc.client = client
	svc.address = address
	svc.mu.Unlock()

	cmd := fmt.Sprintf("mkdir -p ~/.ssh && echo %s >> ~/.ssh/authorized_keys && chmod 700 ~/.ssh && chmod 600 ~/.ssh/authorized_keys",
		shellEscape(strings.TrimSpace(string(publicKey))))
	_, err = svc.run(ctx, cmd, nil)
	_ = svc.Disconnect()
	if err != nil {
		return NewTransportError("failed to upload key to device", err)
	}

	verify := NewSSHService()
	if err := verify.Connect(ctx, privatePath, address); err != nil {
		return fmt.Errorf("key uploaded but login with it failed: %w", err)
	}
	return verify.Disconnect()
}

// expandPath expands a leading ~/ to the user's home directory
func expandPath(p string) (string, error) {
	if rest, ok := strings.CutPrefix(p, "~/"); ok {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, rest), nil
	}
	return p, nil
}

func loadSigner(keyPath string) (ssh.Signer, error) {
	expanded, err := expandPath(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to expand key path: %w", err)
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return signer, nil
}
