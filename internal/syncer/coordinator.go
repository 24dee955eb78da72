package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/rmtemplates/internal/config"
	"github.com/muurk/rmtemplates/internal/device"
	"github.com/muurk/rmtemplates/internal/logging"
	"github.com/muurk/rmtemplates/internal/session"
	"github.com/muurk/rmtemplates/internal/templates"
)

// Connection is the part of session.Monitor the coordinator depends on
type Connection interface {
	State() session.State
	CheckNow(ctx context.Context) error
	Gate() *session.Gate
}

// Observer is told when syncs and backups start and finish.
// Observers only report progress; they cannot affect the outcome.
type Observer interface {
	SyncStarted(plan Plan)
	SyncFinished(result Result, err error)
	BackupStarted(targetDir string)
	BackupFinished(result *device.BackupResult, err error)
}

// Plan is what a sync is about to send
type Plan struct {
	Uploads   []string `json:"uploads"`
	Deletions []string `json:"deletions"`
}

// Result reports a finished sync
type Result struct {
	Uploaded []string      `json:"uploaded"`
	Deleted  []string      `json:"deleted"`
	Count    int           `json:"count"`
	Elapsed  time.Duration `json:"elapsed"`
}

// Coordinator runs sync and backup cycles against one device
type Coordinator struct {
	conn  Connection
	dev   device.Service
	reg   *templates.Registry
	store config.Store

	mu        sync.Mutex
	observers []Observer
}

// New creates a coordinator. store may be nil.
func New(conn Connection, dev device.Service, reg *templates.Registry, store config.Store) *Coordinator {
	return &Coordinator{conn: conn, dev: dev, reg: reg, store: store}
}

// AddObserver registers o for progress notifications
func (c *Coordinator) AddObserver(o Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, o)
}

func (c *Coordinator) each(fn func(Observer)) {
	c.mu.Lock()
	observers := append([]Observer(nil), c.observers...)
	c.mu.Unlock()
	for _, o := range observers {
		fn(o)
	}
}

// Sync uploads every unsynced template and removes every deletion-pending one
// in a single device call. On failure the registry is left exactly as it was.
// Templates added while the sync runs stay pending for the next one.
func (c *Coordinator) Sync(ctx context.Context) (Result, error) {
	if st := c.conn.State(); st != session.StateConnected {
		return Result{}, fmt.Errorf("%w: state is %s", session.ErrConnectionLost, st)
	}

	release, err := c.conn.Gate().Acquire("sync")
	if err != nil {
		return Result{}, err
	}
	defer release()

	if !c.reg.HasPending() {
		return Result{}, nil
	}

	if err := c.conn.CheckNow(ctx); err != nil {
		return Result{}, err
	}

	snap := c.reg.Snapshot()
	if snap.Empty() {
		return Result{}, nil
	}

	plan := Plan{Deletions: append([]string(nil), snap.Deletions...)}
	for _, u := range snap.Uploads {
		plan.Uploads = append(plan.Uploads, u.Filename)
	}
	c.each(func(o Observer) { o.SyncStarted(plan) })

	started := time.Now()
	if err := c.dev.ApplySync(ctx, snap.Uploads, snap.Deletions); err != nil {
		c.reg.Release(snap)
		err = fmt.Errorf("%w: %w", ErrSyncFailed, err)
		logging.Warn("Sync failed",
			zap.Int("uploads", len(snap.Uploads)),
			zap.Int("deletions", len(snap.Deletions)),
			zap.Error(err),
		)
		c.each(func(o Observer) { o.SyncFinished(Result{}, err) })
		return Result{}, err
	}
	c.reg.Commit(snap)

	result := Result{
		Uploaded: plan.Uploads,
		Deleted:  plan.Deletions,
		Count:    snap.Count(),
		Elapsed:  time.Since(started),
	}
	logging.Info("Sync completed",
		zap.Strings("uploaded", result.Uploaded),
		zap.Strings("deleted", result.Deleted),
		zap.Duration("elapsed", result.Elapsed),
	)
	c.each(func(o Observer) { o.SyncFinished(result, nil) })
	return result, nil
}

// Backup archives the device's template directory into targetDir.
// It never changes the registry.
func (c *Coordinator) Backup(ctx context.Context, targetDir string) (*device.BackupResult, error) {
	if st := c.conn.State(); st != session.StateConnected {
		return nil, fmt.Errorf("%w: state is %s", session.ErrConnectionLost, st)
	}

	release, err := c.conn.Gate().Acquire("backup")
	if err != nil {
		return nil, err
	}
	defer release()

	if err := c.conn.CheckNow(ctx); err != nil {
		return nil, err
	}

	c.each(func(o Observer) { o.BackupStarted(targetDir) })

	result, err := c.dev.Backup(ctx, targetDir)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrBackupFailed, err)
		c.each(func(o Observer) { o.BackupFinished(nil, err) })
		return nil, err
	}

	if c.store != nil {
		if err := c.store.SaveLastBackupDir(targetDir); err != nil {
			logging.Warn("Failed to remember backup directory", zap.Error(err))
		}
	}
	c.each(func(o Observer) { o.BackupFinished(result, nil) })
	return result, nil
}
