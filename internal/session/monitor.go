package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/rmtemplates/internal/config"
	"github.com/muurk/rmtemplates/internal/device"
	"github.com/muurk/rmtemplates/internal/logging"
	"github.com/muurk/rmtemplates/internal/templates"
)

const (
	// DefaultHealthInterval is the time between periodic health checks
	DefaultHealthInterval = 10 * time.Second

	// DefaultCheckTimeout bounds a single health check
	DefaultCheckTimeout = 10 * time.Second
)

// Options configures a Monitor. Zero values select the defaults.
type Options struct {
	// Interval between health checks (default: DefaultHealthInterval)
	Interval time.Duration

	// CheckTimeout bounds each health check (default: DefaultCheckTimeout)
	CheckTimeout time.Duration

	// Store receives the address and key after every successful connect. Optional.
	Store config.Store

	// Gate serializes network operations. A new gate is created when nil.
	Gate *Gate
}

// Monitor owns the connection to one device: it connects, watches link health,
// recovers after loss and tears the session down.
type Monitor struct {
	dev          device.Service
	reg          *templates.Registry
	store        config.Store
	gate         *Gate
	interval     time.Duration
	checkTimeout time.Duration

	// checkSlot holds a token while a health check is talking to the device.
	// Ticks skip when it is taken; CheckNow waits for it.
	checkSlot chan struct{}

	mu        sync.Mutex
	state     State
	session   *Session
	loop      *healthLoop
	listeners []func(Change)
}

// healthLoop is the state of one run of the periodic checker
type healthLoop struct {
	cancel  context.CancelFunc
	done    chan struct{}
	skipped atomic.Int64
}

// NewMonitor creates a disconnected monitor for dev. Fetched templates are written to reg.
func NewMonitor(dev device.Service, reg *templates.Registry, opts Options) *Monitor {
	m := &Monitor{
		dev:          dev,
		reg:          reg,
		store:        opts.Store,
		gate:         opts.Gate,
		interval:     opts.Interval,
		checkTimeout: opts.CheckTimeout,
		checkSlot:    make(chan struct{}, 1),
	}
	if m.gate == nil {
		m.gate = &Gate{}
	}
	if m.interval <= 0 {
		m.interval = DefaultHealthInterval
	}
	if m.checkTimeout <= 0 {
		m.checkTimeout = DefaultCheckTimeout
	}
	return m
}

// State returns the current connection state
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Session returns a copy of the current session, or nil when there is none
func (m *Monitor) Session() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil
	}
	s := *m.session
	return &s
}

// Gate returns the gate shared by every network operation of this device
func (m *Monitor) Gate() *Gate {
	return m.gate
}

// Registry returns the registry kept in step with the device
func (m *Monitor) Registry() *templates.Registry {
	return m.reg
}

// OnChange registers fn to receive every state change.
// Listeners run synchronously on the goroutine that caused the change.
func (m *Monitor) OnChange(fn func(Change)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Connect opens a session and loads the device's templates.
// On any failure the monitor returns to disconnected.
func (m *Monitor) Connect(ctx context.Context, address, credentialRef string) error {
	release, err := m.gate.Acquire("connect")
	if err != nil {
		return err
	}
	defer release()

	if err := m.fire(EventConnectRequested, nil); err != nil {
		return err
	}

	if err := m.dev.Connect(ctx, credentialRef, address); err != nil {
		_ = m.fire(EventConnectFailed, err)
		return err
	}

	fetched, err := m.dev.FetchTemplates(ctx)
	if err != nil {
		if derr := m.dev.Disconnect(); derr != nil {
			logging.Warn("Disconnect after failed fetch", zap.Error(derr))
		}
		_ = m.fire(EventConnectFailed, err)
		return fmt.Errorf("failed to load templates: %w", err)
	}

	m.reg.Reset()
	m.logConflicts(m.reg.ReplaceSynced(fetched))

	m.mu.Lock()
	m.session = newSession(address, credentialRef, time.Now())
	m.mu.Unlock()

	if err := m.fire(EventConnectSucceeded, nil); err != nil {
		return err
	}

	if m.store != nil {
		if err := m.store.Save(address, credentialRef); err != nil {
			logging.Warn("Failed to save device config", zap.Error(err))
		}
	}

	m.startLoop()
	return nil
}

// QuickConnect connects with the saved address and key
func (m *Monitor) QuickConnect(ctx context.Context) error {
	if m.store == nil {
		return ErrNoSavedConfig
	}
	cfg, err := m.store.Load()
	if err != nil {
		return fmt.Errorf("failed to load saved config: %w", err)
	}
	if cfg == nil {
		return ErrNoSavedConfig
	}
	return m.Connect(ctx, cfg.Address, cfg.KeyPath)
}

// CheckNow runs a health check immediately. A failure moves a connected
// monitor to lost and returns ErrConnectionLost.
func (m *Monitor) CheckNow(ctx context.Context) error {
	if st := m.State(); st != StateConnected {
		return fmt.Errorf("%w: state is %s", ErrConnectionLost, st)
	}

	select {
	case m.checkSlot <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-m.checkSlot }()

	// A tick that held the slot may have found the link down
	if st := m.State(); st != StateConnected {
		return fmt.Errorf("%w: state is %s", ErrConnectionLost, st)
	}

	ctx, cancel := context.WithTimeout(ctx, m.checkTimeout)
	defer cancel()

	if err := m.dev.CheckHealth(ctx); err != nil {
		m.markLost(err)
		return fmt.Errorf("%w: %w", ErrConnectionLost, err)
	}
	return nil
}

// Retry reconnects a lost session with its stored address and key and
// reloads the device templates. Local unsynced and pending work is kept.
func (m *Monitor) Retry(ctx context.Context) error {
	release, err := m.gate.Acquire("retry")
	if err != nil {
		return err
	}
	defer release()

	if err := m.fire(EventRetryRequested, nil); err != nil {
		return err
	}

	m.mu.Lock()
	sess := m.session
	m.mu.Unlock()
	if sess == nil {
		_ = m.fire(EventRetryFailed, ErrNotConnected)
		return fmt.Errorf("%w: no session to resume", ErrConnectionLost)
	}

	if err := m.dev.Disconnect(); err != nil {
		logging.Debug("Closing stale connection before retry", zap.Error(err))
	}

	fail := func(err error) error {
		_ = m.fire(EventRetryFailed, err)
		return fmt.Errorf("%w: %w", ErrConnectionLost, err)
	}

	if err := m.dev.Connect(ctx, sess.CredentialRef, sess.Address); err != nil {
		return fail(err)
	}
	fetched, err := m.dev.FetchTemplates(ctx)
	if err != nil {
		return fail(err)
	}
	m.logConflicts(m.reg.ReplaceSynced(fetched))

	m.mu.Lock()
	if m.session != nil {
		m.session.ConnectedAt = time.Now()
	}
	m.mu.Unlock()

	if err := m.fire(EventRetrySucceeded, nil); err != nil {
		return err
	}
	m.startLoop()
	return nil
}

// Disconnect ends the session. Device errors are logged, not returned;
// the registry is cleared and the health loop stopped.
func (m *Monitor) Disconnect(ctx context.Context) error {
	release, err := m.gate.Acquire("disconnect")
	if err != nil {
		return err
	}
	defer release()

	if st := m.State(); st != StateConnected && st != StateLost {
		return fmt.Errorf("%w: state is %s", ErrNotConnected, st)
	}
	m.teardown()
	return nil
}

// Reboot restarts the device and ends the session, whether or not the
// reboot command succeeded.
func (m *Monitor) Reboot(ctx context.Context) error {
	release, err := m.gate.Acquire("reboot")
	if err != nil {
		return err
	}
	defer release()

	if st := m.State(); st != StateConnected {
		return fmt.Errorf("%w: state is %s", ErrNotConnected, st)
	}

	m.stopLoop()
	rebootErr := m.dev.Reboot(ctx)
	m.teardown()
	if rebootErr != nil {
		return fmt.Errorf("reboot failed: %w", rebootErr)
	}
	return nil
}

// Close stops the health loop and drops any session without taking the gate.
// Owners call it on shutdown.
func (m *Monitor) Close() {
	m.stopLoop()

	m.mu.Lock()
	hadSession := m.session != nil
	m.mu.Unlock()
	if hadSession {
		if err := m.dev.Disconnect(); err != nil {
			logging.Debug("Disconnect on close", zap.Error(err))
		}
	}

	m.reg.Reset()

	m.mu.Lock()
	from := m.state
	m.state = StateDisconnected
	m.session = nil
	m.mu.Unlock()
	if from != StateDisconnected {
		m.emit(Change{From: from, To: StateDisconnected, At: time.Now()}, "")
	}
}

// teardown performs the disconnect transition
func (m *Monitor) teardown() {
	m.stopLoop()
	if err := m.dev.Disconnect(); err != nil {
		logging.Warn("Device disconnect failed", zap.Error(err))
	}
	m.reg.Reset()

	id := m.sessionID()
	m.mu.Lock()
	m.session = nil
	ch, err := m.applyLocked(EventDisconnectRequested, nil)
	m.mu.Unlock()
	if err == nil {
		m.emit(ch, id)
	}
}

// markLost moves a connected monitor to lost and stops the health loop that
// was running at that moment. A loop started later by Retry is left alone.
func (m *Monitor) markLost(cause error) {
	m.mu.Lock()
	if m.state != StateConnected {
		m.mu.Unlock()
		return
	}
	ch, err := m.applyLocked(EventHealthFailed, cause)
	if err != nil {
		m.mu.Unlock()
		return
	}
	loop := m.loop
	m.loop = nil
	m.mu.Unlock()

	if loop != nil {
		loop.cancel()
		<-loop.done
	}
	m.emit(ch, m.sessionID())
}

// fire applies ev and notifies listeners
func (m *Monitor) fire(ev Event, cause error) error {
	m.mu.Lock()
	ch, err := m.applyLocked(ev, cause)
	m.mu.Unlock()
	if err != nil {
		return err
	}
	m.emit(ch, m.sessionID())
	return nil
}

func (m *Monitor) applyLocked(ev Event, cause error) (Change, error) {
	to, err := Transition(m.state, ev)
	if err != nil {
		return Change{}, err
	}
	ch := Change{From: m.state, To: to, Err: cause, At: time.Now()}
	m.state = to
	return ch, nil
}

func (m *Monitor) emit(ch Change, sessionID string) {
	logging.LogStateChange(sessionID, ch.From.String(), ch.To.String(), ch.Err)

	m.mu.Lock()
	listeners := append([]func(Change){}, m.listeners...)
	m.mu.Unlock()
	for _, fn := range listeners {
		fn(ch)
	}
}

func (m *Monitor) sessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return ""
	}
	return m.session.ID
}

func (m *Monitor) logConflicts(conflicts []templates.Conflict) {
	for _, c := range conflicts {
		logging.Warn("Skipped device template that clashes with a local one",
			zap.String("filename", c.Template.Filename),
			zap.String("name", c.Template.Name),
			zap.String("reason", c.Reason),
		)
	}
}

// startLoop starts the periodic health checker. The first check runs immediately.
func (m *Monitor) startLoop() {
	ctx, cancel := context.WithCancel(context.Background())
	loop := &healthLoop{cancel: cancel, done: make(chan struct{})}

	m.mu.Lock()
	old := m.loop
	m.loop = loop
	m.mu.Unlock()
	if old != nil {
		old.cancel()
		<-old.done
	}

	go m.runLoop(ctx, loop)
}

// stopLoop cancels the health checker and waits for its ticker goroutine to exit
func (m *Monitor) stopLoop() {
	m.mu.Lock()
	loop := m.loop
	m.loop = nil
	m.mu.Unlock()
	if loop == nil {
		return
	}
	loop.cancel()
	<-loop.done
}

func (m *Monitor) runLoop(ctx context.Context, loop *healthLoop) {
	defer close(loop.done)

	m.tick(ctx, loop)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx, loop)
		}
	}
}

// tick starts a health check unless one is still running or the monitor is not connected
func (m *Monitor) tick(ctx context.Context, loop *healthLoop) {
	if m.State() != StateConnected {
		return
	}
	select {
	case m.checkSlot <- struct{}{}:
	default:
		loop.skipped.Add(1)
		logging.Debug("Health check still running, skipping tick")
		return
	}

	go func() {
		defer func() { <-m.checkSlot }()

		checkCtx, cancel := context.WithTimeout(ctx, m.checkTimeout)
		defer cancel()

		err := m.dev.CheckHealth(checkCtx)
		if err != nil && ctx.Err() == nil {
			m.markLost(err)
		}
	}()
}
