package device

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"

	"github.com/muurk/rmtemplates/internal/logging"
	"github.com/muurk/rmtemplates/internal/templates"
)

const (
	// DefaultUser is the account used for SSH logins on the tablet
	DefaultUser = "root"

	// DefaultPort is the SSH port on the tablet
	DefaultPort = "22"

	// DefaultDialTimeout bounds the TCP connect and SSH handshake
	DefaultDialTimeout = 10 * time.Second
)

// SSHService talks to a reMarkable over SSH. It implements Service.
type SSHService struct {
	// TemplatesDir is the remote template directory (default: TemplatesDir)
	TemplatesDir string

	// DialTimeout bounds connection setup (default: DefaultDialTimeout)
	DialTimeout time.Duration

	mu      sync.Mutex
	client  *ssh.Client
	address string
}

// NewSSHService creates an unconnected SSH device service
func NewSSHService() *SSHService {
	return &SSHService{
		TemplatesDir: TemplatesDir,
		DialTimeout:  DefaultDialTimeout,
	}
}

var _ Service = (*SSHService)(nil)

// Connect opens an SSH connection using the private key at credentialRef.
// After login the root filesystem is remounted read-write; a failed remount
// is logged and does not fail the connection.
func (s *SSHService) Connect(ctx context.Context, credentialRef, address string) error {
	started := time.Now()

	signer, err := loadSigner(credentialRef)
	if err != nil {
		return &DeviceError{Type: ErrTypeAuth, Message: "cannot use SSH key " + credentialRef, Err: err, Address: address}
	}

	client, err := s.dial(ctx, address, ssh.PublicKeys(signer))
	logging.LogDeviceCall(address, "connect", started, err)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.client != nil {
		_ = s.client.Close()
	}
	s.client = client
	s.address = address
	s.mu.Unlock()

	if out, err := s.run(ctx, "mount -o remount,rw /", nil); err != nil {
		logging.Warn("Failed to remount root filesystem read-write",
			zap.String("address", address),
			zap.String("output", strings.TrimSpace(string(out))),
			zap.Error(err),
		)
	}
	return nil
}

func (s *SSHService) dial(ctx context.Context, address string, auth ssh.AuthMethod) (*ssh.Client, error) {
	timeout := s.dialTimeout()
	config := &ssh.ClientConfig{
		User: DefaultUser,
		Auth: []ssh.AuthMethod{auth},
		// The tablet regenerates its host key on every firmware update
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}

	hostPort := withDefaultPort(address)
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", hostPort)
	if err != nil {
		return nil, ClassifyConnectError(err, address)
	}
	if deadline, ok := dialCtx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, hostPort, config)
	if err != nil {
		_ = conn.Close()
		return nil, ClassifyConnectError(err, address)
	}
	_ = conn.SetDeadline(time.Time{})
	return ssh.NewClient(c, chans, reqs), nil
}

// Disconnect closes the connection. It is safe to call when not connected.
func (s *SSHService) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}

// CheckHealth runs a trivial command to prove the link is alive
func (s *SSHService) CheckHealth(ctx context.Context) error {
	started := time.Now()
	_, err := s.run(ctx, "echo ok", nil)
	logging.LogDeviceCall(s.currentAddress(), "health", started, err)
	if err != nil {
		return NewUnreachableError(s.currentAddress(), err)
	}
	return nil
}

// FetchTemplates reads templates.json from the device
func (s *SSHService) FetchTemplates(ctx context.Context) ([]templates.Template, error) {
	started := time.Now()
	out, err := s.run(ctx, "cat "+shellEscape(s.manifestPath()), nil)
	logging.LogDeviceCall(s.currentAddress(), "fetch_templates", started, err)
	if err != nil {
		return nil, NewTransportError("failed to read templates.json", err)
	}

	m, err := parseManifest(out)
	if err != nil {
		return nil, NewTransportError("templates.json on device is not valid", err)
	}
	return m.Templates()
}

// ApplySync uploads new template files and rewrites templates.json in one step.
// The manifest is written to a temporary file and moved into place. If any step
// fails, files uploaded during this call are removed and the manifest is left
// as it was.
func (s *SSHService) ApplySync(ctx context.Context, uploads []templates.Upload, deletions []string) (err error) {
	if len(uploads) == 0 && len(deletions) == 0 {
		return nil
	}
	started := time.Now()
	defer func() { logging.LogDeviceCall(s.currentAddress(), "apply_sync", started, err) }()

	var uploaded []string
	defer func() {
		if err != nil && len(uploaded) > 0 {
			s.removeRemote(uploaded)
		}
	}()

	for _, u := range uploads {
		remote := s.remoteFile(u)
		if err := s.upload(ctx, u.SourcePath, remote); err != nil {
			return NewSyncError("failed to upload "+u.Filename, err)
		}
		uploaded = append(uploaded, remote)
	}

	out, err := s.run(ctx, "cat "+shellEscape(s.manifestPath()), nil)
	if err != nil {
		return NewSyncError("failed to read templates.json", err)
	}
	m, err := parseManifest(out)
	if err != nil {
		return NewSyncError("templates.json on device is not valid", err)
	}
	if err := m.Apply(uploads, deletions); err != nil {
		return NewSyncError("failed to update templates.json", err)
	}
	data, err := m.Bytes()
	if err != nil {
		return NewSyncError("failed to update templates.json", err)
	}

	tmp := s.manifestPath() + ".tmp"
	cmd := fmt.Sprintf("cat > %s && mv %s %s", shellEscape(tmp), shellEscape(tmp), shellEscape(s.manifestPath()))
	if _, err := s.run(ctx, cmd, bytes.NewReader(data)); err != nil {
		return NewSyncError("failed to write templates.json", err)
	}

	logging.Info("Templates synced",
		zap.Int("uploads", len(uploads)),
		zap.Int("deletions", len(deletions)),
	)
	return nil
}

// Backup archives the remote template directory into targetDir
func (s *SSHService) Backup(ctx context.Context, targetDir string) (*BackupResult, error) {
	started := time.Now()
	out, err := s.run(ctx, fmt.Sprintf("test -d %s && echo exists || echo missing", shellEscape(s.templatesDir())), nil)
	if err != nil {
		return nil, NewBackupError("failed to check templates directory", err)
	}
	if strings.TrimSpace(string(out)) != "exists" {
		return nil, NewBackupError("templates directory not found on device", nil)
	}

	result, err := WriteBackup(ctx, remoteTree{s}, s.templatesDir(), targetDir, time.Now())
	logging.LogDeviceCall(s.currentAddress(), "backup", started, err)
	return result, err
}

// Reboot asks the device to restart and closes the connection.
// The command usually fails because the link drops; that is ignored.
func (s *SSHService) Reboot(ctx context.Context) error {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()
	if client == nil {
		return ErrNotConnected
	}

	session, err := client.NewSession()
	if err != nil {
		return NewTransportError("failed to create SSH session", err)
	}
	if err := session.Run("reboot"); err != nil {
		logging.Debug("Reboot command ended with error (expected when the link drops)", zap.Error(err))
	}
	_ = session.Close()

	return s.Disconnect()
}

// run executes cmd in a new session and returns its stdout.
// The session is closed early if ctx is cancelled.
func (s *SSHService) run(ctx context.Context, cmd string, stdin io.Reader) ([]byte, error) {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()
	if client == nil {
		return nil, ErrNotConnected
	}

	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create SSH session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr
	if stdin != nil {
		session.Stdin = stdin
	}

	done := make(chan error, 1)
	go func() { done <- session.Run(cmd) }()

	select {
	case err := <-done:
		if err != nil {
			if msg := strings.TrimSpace(stderr.String()); msg != "" {
				return stdout.Bytes(), fmt.Errorf("%s: %w", msg, err)
			}
			return stdout.Bytes(), err
		}
		return stdout.Bytes(), nil
	case <-ctx.Done():
		_ = session.Close()
		return nil, ctx.Err()
	}
}

func (s *SSHService) upload(ctx context.Context, localPath, remotePath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to read local file: %w", err)
	}
	defer f.Close()

	_, err = s.run(ctx, "cat > "+shellEscape(remotePath), f)
	return err
}

// removeRemote deletes files uploaded by a sync that did not complete
func (s *SSHService) removeRemote(paths []string) {
	quoted := make([]string, len(paths))
	for i, p := range paths {
		quoted[i] = shellEscape(p)
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.dialTimeout())
	defer cancel()
	if _, err := s.run(ctx, "rm -f "+strings.Join(quoted, " "), nil); err != nil {
		logging.Warn("Failed to remove uploaded files after sync failure",
			zap.Strings("files", paths),
			zap.Error(err),
		)
	}
}

func (s *SSHService) dialTimeout() time.Duration {
	if s.DialTimeout == 0 {
		return DefaultDialTimeout
	}
	return s.DialTimeout
}

func (s *SSHService) templatesDir() string {
	if s.TemplatesDir == "" {
		return TemplatesDir
	}
	return s.TemplatesDir
}

func (s *SSHService) manifestPath() string {
	return path.Join(s.templatesDir(), "templates.json")
}

// remoteFile is where an upload lands: the template filename plus the source extension
func (s *SSHService) remoteFile(u templates.Upload) string {
	return path.Join(s.templatesDir(), u.Filename+strings.ToLower(filepath.Ext(u.SourcePath)))
}

func (s *SSHService) currentAddress() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.address
}

// remoteTree exposes the remote filesystem to the backup writer
type remoteTree struct {
	s *SSHService
}

func (t remoteTree) List(ctx context.Context, dir string) ([]string, error) {
	out, err := t.s.run(ctx, "ls -1p "+shellEscape(dir), nil)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}

func (t remoteTree) Copy(ctx context.Context, file string, w io.Writer) error {
	s := t.s
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()
	if client == nil {
		return ErrNotConnected
	}

	session, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("failed to create SSH session: %w", err)
	}
	defer session.Close()
	session.Stdout = w

	done := make(chan error, 1)
	go func() { done <- session.Run("cat " + shellEscape(file)) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		_ = session.Close()
		return ctx.Err()
	}
}

// shellEscape quotes s for a POSIX shell
func shellEscape(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

func withDefaultPort(address string) string {
	if _, _, err := net.SplitHostPort(address); err == nil {
		return address
	}
	return net.JoinHostPort(address, DefaultPort)
}
