package ui

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/muurk/rmtemplates/internal/device"
	"github.com/muurk/rmtemplates/internal/syncer"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestSyncTracker(t *testing.T) {
	tr := NewSyncTracker([]string{"Grid", "Dots"})
	if tr.Interval() != 300*time.Millisecond {
		t.Errorf("Interval() = %v, want 300ms", tr.Interval())
	}
	if tr.CurrentFile() != "Grid" {
		t.Errorf("CurrentFile() = %q, want Grid", tr.CurrentFile())
	}

	tr.Tick()
	if !approx(tr.Percent(), 0.4) {
		t.Errorf("after one tick Percent() = %v, want 0.4", tr.Percent())
	}
	if tr.CurrentFile() != "Dots" {
		t.Errorf("CurrentFile() = %q, want Dots", tr.CurrentFile())
	}

	for i := 0; i < 10; i++ {
		tr.Tick()
	}
	if !approx(tr.Percent(), progressCap) {
		t.Errorf("Percent() = %v, want capped at %v", tr.Percent(), progressCap)
	}

	tr.Finish(nil)
	if tr.Percent() != 1 {
		t.Errorf("Percent() after success = %v, want 1", tr.Percent())
	}
	if tr.CurrentFile() != "" {
		t.Errorf("CurrentFile() after finish = %q, want empty", tr.CurrentFile())
	}
}

func TestBackupTracker(t *testing.T) {
	tr := NewBackupTracker()
	if tr.Interval() != 200*time.Millisecond {
		t.Errorf("Interval() = %v, want 200ms", tr.Interval())
	}
	for i := 0; i < 5; i++ {
		tr.Tick()
	}
	if !approx(tr.Percent(), 0.5) {
		t.Errorf("after five ticks Percent() = %v, want 0.5", tr.Percent())
	}
	for i := 0; i < 20; i++ {
		tr.Tick()
	}
	if !approx(tr.Percent(), progressCap) {
		t.Errorf("Percent() = %v, want %v", tr.Percent(), progressCap)
	}

	tr.Finish(errors.New("boom"))
	if !approx(tr.Percent(), progressCap) {
		t.Errorf("failed tracker moved to %v", tr.Percent())
	}
	tr.Tick()
	if !approx(tr.Percent(), progressCap) {
		t.Errorf("Tick after Finish changed Percent() to %v", tr.Percent())
	}
}

func TestSyncTrackerNoFiles(t *testing.T) {
	tr := NewSyncTracker(nil)
	tr.Tick()
	if !approx(tr.Percent(), syncTickBudget) {
		t.Errorf("Percent() = %v, want %v", tr.Percent(), syncTickBudget)
	}
}

func TestSyncProgressObserver(t *testing.T) {
	var buf bytes.Buffer
	p := NewSyncProgress(&buf)

	p.SyncStarted(syncer.Plan{Uploads: []string{"Grid"}, Deletions: []string{"Blank"}})
	p.SyncFinished(syncer.Result{Count: 2}, nil)

	out := buf.String()
	if !strings.Contains(out, "Syncing templates") {
		t.Errorf("output missing label:\n%s", out)
	}
	if !strings.Contains(out, "100%") {
		t.Errorf("output missing completed bar:\n%s", out)
	}

	buf.Reset()
	p.BackupStarted(t.TempDir())
	p.BackupFinished(nil, errors.New("disk full"))
	out = buf.String()
	if !strings.Contains(out, "Backing up templates") || !strings.Contains(out, FailureMarker) {
		t.Errorf("backup failure output:\n%s", out)
	}
	if strings.Contains(out, "100%") {
		t.Errorf("failed backup drew a full bar:\n%s", out)
	}

	// Finishing without a start is a no-op
	buf.Reset()
	p.BackupFinished(&device.BackupResult{}, nil)
	if buf.Len() != 0 {
		t.Errorf("unexpected output %q", buf.String())
	}
}
