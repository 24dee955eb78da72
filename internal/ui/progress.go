package ui

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/rmtemplates/internal/device"
	"github.com/muurk/rmtemplates/internal/syncer"
)

// Simulated progress. The device call reports nothing until it returns, so
// the bar advances on a timer and stops short of the end until the result arrives.
const (
	progressCap = 0.90

	backupTickInterval = 200 * time.Millisecond
	backupTickStep     = 0.10

	syncTickInterval = 300 * time.Millisecond
	syncTickBudget   = 0.80 // spread over the files of a sync
)

// Tracker holds the simulated progress of one operation
type Tracker struct {
	Label    string
	files    []string
	step     float64
	interval time.Duration
	percent  float64
	fileIdx  int
	finished bool
	failed   bool
}

// NewSyncTracker tracks a sync of the given files
func NewSyncTracker(files []string) *Tracker {
	n := len(files)
	if n == 0 {
		n = 1
	}
	return &Tracker{
		Label:    "Syncing templates",
		files:    files,
		step:     syncTickBudget / float64(n),
		interval: syncTickInterval,
	}
}

// NewBackupTracker tracks a backup
func NewBackupTracker() *Tracker {
	return &Tracker{
		Label:    "Backing up templates",
		step:     backupTickStep,
		interval: backupTickInterval,
	}
}

// Tick advances the bar one step, never past the cap, and moves to the next file
func (t *Tracker) Tick() {
	if t.finished {
		return
	}
	t.percent += t.step
	if t.percent > progressCap {
		t.percent = progressCap
	}
	if len(t.files) > 0 {
		t.fileIdx = (t.fileIdx + 1) % len(t.files)
	}
}

// Finish completes the bar, or freezes it where it is on failure
func (t *Tracker) Finish(err error) {
	t.finished = true
	if err != nil {
		t.failed = true
		return
	}
	t.percent = 1
}

// Percent returns progress in the range 0-1
func (t *Tracker) Percent() float64 {
	return t.percent
}

// Interval is how often Tick should be called
func (t *Tracker) Interval() time.Duration {
	return t.interval
}

// CurrentFile is the file name shown next to the bar, or ""
func (t *Tracker) CurrentFile() string {
	if len(t.files) == 0 || t.finished {
		return ""
	}
	return t.files[t.fileIdx]
}

// Render draws the tracker as one line using bar
func (t *Tracker) Render(bar progress.Model) string {
	line := fmt.Sprintf("%s  %3.0f%%", bar.ViewAs(t.percent), t.percent*100)
	switch {
	case t.failed:
		line += "  " + ErrorTitleStyle.Render(FailureMarker)
	case t.finished:
		line += "  " + SuccessTitleStyle.Render(SuccessMarker)
	case t.CurrentFile() != "":
		line += "  " + ProgressFileStyle.Render(t.CurrentFile())
	}
	return lipgloss.NewStyle().PaddingLeft(2).Render(line)
}

// SyncProgress draws a progress bar for syncs and backups. It implements
// syncer.Observer and only reports; it never affects the operation.
type SyncProgress struct {
	out io.Writer
	bar progress.Model

	mu      sync.Mutex
	tracker *Tracker
	stop    chan struct{}
	done    chan struct{}
}

var _ syncer.Observer = (*SyncProgress)(nil)

// NewSyncProgress creates a progress observer writing to out, or os.Stdout if out is nil
func NewSyncProgress(out io.Writer) *SyncProgress {
	if out == nil {
		out = os.Stdout
	}
	barWidth := GetTerminalWidth() - 30
	if barWidth < 20 {
		barWidth = 20
	}
	if barWidth > 50 {
		barWidth = 50
	}
	return &SyncProgress{
		out: out,
		bar: progress.New(progress.WithDefaultGradient(), progress.WithWidth(barWidth)),
	}
}

// SyncStarted implements syncer.Observer
func (p *SyncProgress) SyncStarted(plan syncer.Plan) {
	files := append(append([]string(nil), plan.Uploads...), plan.Deletions...)
	p.start(NewSyncTracker(files))
}

// SyncFinished implements syncer.Observer
func (p *SyncProgress) SyncFinished(_ syncer.Result, err error) {
	p.finish(err)
}

// BackupStarted implements syncer.Observer
func (p *SyncProgress) BackupStarted(string) {
	p.start(NewBackupTracker())
}

// BackupFinished implements syncer.Observer
func (p *SyncProgress) BackupFinished(_ *device.BackupResult, err error) {
	p.finish(err)
}

func (p *SyncProgress) start(t *Tracker) {
	p.finish(nil)

	p.mu.Lock()
	p.tracker = t
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	stop, done := p.stop, p.done
	_, _ = fmt.Fprintln(p.out, ProgressLabelStyle.Render(t.Label+"..."))
	p.draw()
	p.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(t.Interval())
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				p.mu.Lock()
				t.Tick()
				p.draw()
				p.mu.Unlock()
			}
		}
	}()
}

func (p *SyncProgress) finish(err error) {
	p.mu.Lock()
	t, stop, done := p.tracker, p.stop, p.done
	p.tracker, p.stop, p.done = nil, nil, nil
	p.mu.Unlock()

	if t == nil {
		return
	}
	close(stop)
	<-done

	p.mu.Lock()
	defer p.mu.Unlock()
	t.Finish(err)
	_, _ = fmt.Fprintln(p.out, "\r"+t.Render(p.bar))
}

// draw repaints the current line. Callers hold the lock.
func (p *SyncProgress) draw() {
	if p.tracker == nil {
		return
	}
	_, _ = fmt.Fprint(p.out, "\r"+p.tracker.Render(p.bar))
}
