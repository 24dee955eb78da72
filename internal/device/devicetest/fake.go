// Package devicetest provides an in-memory device.Service for tests.
package devicetest

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/muurk/rmtemplates/internal/device"
	"github.com/muurk/rmtemplates/internal/templates"
)

// ErrScripted is a convenient error for scripting failures
var ErrScripted = errors.New("scripted failure")

// Fake is an in-memory reMarkable. The zero value is not usable; call New.
//
// Set the *Err fields to make the next calls fail. Set a Block* channel to
// make the matching call wait until the channel is closed or ctx is done;
// the Entered* channel receives a value each time such a call starts waiting.
type Fake struct {
	mu sync.Mutex

	// Device state
	templates []templates.Template
	files     map[string]string
	connected bool
	address   string
	keyPath   string

	// Scripted failures
	ConnectErr    error
	HealthErr     error
	FetchErr      error
	SyncErr       error
	BackupErr     error
	RebootErr     error
	DisconnectErr error

	// Blocking hooks
	BlockHealth   chan struct{}
	BlockSync     chan struct{}
	EnteredHealth chan struct{}
	EnteredSync   chan struct{}

	// Call counters
	Calls struct {
		Connect, Disconnect, Health, Fetch, Sync, Backup, Reboot int
	}

	// LastUploads and LastDeletions record the arguments of the last ApplySync
	LastUploads   []templates.Upload
	LastDeletions []string
}

var _ device.Service = (*Fake)(nil)

// New returns a fake whose templates.json holds the given entries
func New(initial ...templates.Template) *Fake {
	f := &Fake{files: map[string]string{}}
	for _, t := range initial {
		t = t.Clone()
		t.State = templates.StateSynced
		t.LocalSourcePath = ""
		f.templates = append(f.templates, t)
	}
	return f
}

// Connect records the address and key and marks the fake connected
func (f *Fake) Connect(_ context.Context, credentialRef, address string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls.Connect++
	if f.ConnectErr != nil {
		return f.ConnectErr
	}
	f.connected = true
	f.address = address
	f.keyPath = credentialRef
	return nil
}

// Disconnect marks the fake disconnected
func (f *Fake) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls.Disconnect++
	f.connected = false
	return f.DisconnectErr
}

// CheckHealth fails when HealthErr is set or the fake is not connected
func (f *Fake) CheckHealth(ctx context.Context) error {
	f.mu.Lock()
	f.Calls.Health++
	block, entered := f.BlockHealth, f.EnteredHealth
	f.mu.Unlock()

	if err := wait(ctx, block, entered); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.HealthErr != nil {
		return f.HealthErr
	}
	if !f.connected {
		return device.NewUnreachableError(f.address, errors.New("not connected"))
	}
	return nil
}

// FetchTemplates returns the current device templates
func (f *Fake) FetchTemplates(_ context.Context) ([]templates.Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls.Fetch++
	if f.FetchErr != nil {
		return nil, f.FetchErr
	}
	return cloneAll(f.templates), nil
}

// ApplySync applies all uploads and deletions, or nothing when SyncErr is set
func (f *Fake) ApplySync(ctx context.Context, uploads []templates.Upload, deletions []string) error {
	f.mu.Lock()
	f.Calls.Sync++
	f.LastUploads = append([]templates.Upload(nil), uploads...)
	f.LastDeletions = append([]string(nil), deletions...)
	block, entered := f.BlockSync, f.EnteredSync
	f.mu.Unlock()

	if err := wait(ctx, block, entered); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SyncErr != nil {
		return f.SyncErr
	}
	if !f.connected {
		return device.ErrNotConnected
	}

	drop := map[string]bool{}
	for _, d := range deletions {
		drop[d] = true
	}
	for _, u := range uploads {
		drop[u.Filename] = true
	}
	kept := f.templates[:0:0]
	for _, t := range f.templates {
		if !drop[t.Filename] {
			kept = append(kept, t)
		}
	}
	for _, u := range uploads {
		kept = append(kept, u.Entry())
		f.files[u.Filename+filepath.Ext(u.SourcePath)] = u.SourcePath
	}
	f.templates = kept
	return nil
}

// Backup returns a result under targetDir without writing anything
func (f *Fake) Backup(_ context.Context, targetDir string) (*device.BackupResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls.Backup++
	if f.BackupErr != nil {
		return nil, f.BackupErr
	}
	return &device.BackupResult{
		FilePath:  filepath.Join(targetDir, device.BackupFileName(time.Now())),
		SizeBytes: int64(1024 * (len(f.templates) + 1)),
		Files:     len(f.templates) + 1,
	}, nil
}

// Reboot disconnects the fake and returns RebootErr
func (f *Fake) Reboot(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls.Reboot++
	f.connected = false
	return f.RebootErr
}

// Templates returns the device-side templates.json entries
func (f *Fake) Templates() []templates.Template {
	f.mu.Lock()
	defer f.mu.Unlock()
	return cloneAll(f.templates)
}

// Uploaded returns the remote file name to local source path of every upload
func (f *Fake) Uploaded() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string, len(f.files))
	for k, v := range f.files {
		out[k] = v
	}
	return out
}

// Connected reports whether the fake is connected
func (f *Fake) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// Address returns the address of the last successful connect
func (f *Fake) Address() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.address
}

// KeyPath returns the credential of the last successful connect
func (f *Fake) KeyPath() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.keyPath
}

// Set replaces a field under the fake's lock. Use it to change scripted
// errors while other goroutines are calling the fake.
func (f *Fake) Set(fn func(f *Fake)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

// Counts returns a snapshot of the call counters
func (f *Fake) Counts() (connect, health, fetch, syncs, backup int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Calls.Connect, f.Calls.Health, f.Calls.Fetch, f.Calls.Sync, f.Calls.Backup
}

func wait(ctx context.Context, block, entered chan struct{}) error {
	if block == nil {
		return nil
	}
	if entered != nil {
		select {
		case entered <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	select {
	case <-block:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func cloneAll(in []templates.Template) []templates.Template {
	out := make([]templates.Template, len(in))
	for i, t := range in {
		out[i] = t.Clone()
	}
	return out
}
