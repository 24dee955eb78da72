package templates

import (
	"errors"
	"reflect"
	"testing"
)

func seeded(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry()
	reg.ReplaceSynced([]Template{synced("Dots", "Dots"), synced("Lines", "Lines")})
	if err := reg.Add(local("Grid", "Grid")); err != nil {
		t.Fatal(err)
	}
	if err := reg.Add(local("Weekly", "Weekly")); err != nil {
		t.Fatal(err)
	}
	reg.MarkForDeletion("Lines")
	return reg
}

func TestSnapshotCommit(t *testing.T) {
	reg := seeded(t)
	if err := reg.Rename("Grid", "Square Grid"); err != nil {
		t.Fatal(err)
	}

	snap := reg.Snapshot()
	if snap.Count() != 3 {
		t.Fatalf("Count() = %d, want 3", snap.Count())
	}
	if snap.Uploads[0].SourcePath != "/tmp/Grid.svg" || snap.Uploads[0].Name != "Square Grid" {
		t.Errorf("Uploads[0] = %+v", snap.Uploads[0])
	}
	if !reflect.DeepEqual(snap.Deletions, []string{"Lines"}) {
		t.Errorf("Deletions = %v, want [Lines]", snap.Deletions)
	}

	reg.Commit(snap)

	p := reg.Partition()
	if len(p.Unsynced) != 0 || len(p.DeletionPending) != 0 {
		t.Fatalf("pending work left after commit: %+v", p)
	}
	if len(p.Synced) != 3 {
		t.Fatalf("Synced = %v, want 3 entries", p.Synced)
	}
	grid, _ := reg.Get("Grid")
	if grid.State != StateSynced || grid.LocalSourcePath != "" || grid.Name != "Square Grid" {
		t.Errorf("Grid after commit = %+v", grid)
	}
	if _, ok := reg.Get("Lines"); ok {
		t.Error("Lines still present after commit")
	}
	if reg.HasPending() {
		t.Error("HasPending() = true after commit")
	}
}

func TestSnapshotReleaseRestoresRegistry(t *testing.T) {
	reg := seeded(t)
	before := reg.List()

	snap := reg.Snapshot()
	reg.Release(snap)

	if after := reg.List(); !reflect.DeepEqual(before, after) {
		t.Errorf("registry changed after release\nbefore: %+v\nafter:  %+v", before, after)
	}
	if err := reg.Rename("Grid", "Still Editable"); err != nil {
		t.Errorf("Rename() after release error = %v", err)
	}
	if again := reg.Snapshot(); again.Count() != 3 {
		t.Errorf("second snapshot Count() = %d, want 3", again.Count())
	}
}

func TestSnapshotFreezesEntries(t *testing.T) {
	reg := seeded(t)
	snap := reg.Snapshot()

	if err := reg.Rename("Grid", "Other"); !errors.Is(err, ErrInFlight) {
		t.Errorf("Rename() of in-flight entry error = %v, want ErrInFlight", err)
	}
	if marked, removed := reg.MarkForDeletion("Grid"); marked != 0 || removed != 0 {
		t.Errorf("MarkForDeletion() of in-flight entry = (%d, %d), want (0, 0)", marked, removed)
	}
	if reg.HasPending() {
		t.Error("HasPending() = true with everything in flight")
	}

	// Additions after the snapshot stay pending after the commit.
	if err := reg.Add(local("Late", "Late")); err != nil {
		t.Fatal(err)
	}
	if second := reg.Snapshot(); second.Count() != 1 || second.Uploads[0].Filename != "Late" {
		t.Errorf("second snapshot = %+v, want only Late", second)
	} else {
		reg.Release(second)
	}

	reg.Commit(snap)
	late, _ := reg.Get("Late")
	if late.State != StateUnsynced {
		t.Errorf("Late state = %v, want unsynced", late.State)
	}
	if !reg.HasPending() {
		t.Error("HasPending() = false, Late should still be pending")
	}
}

func TestEmptySnapshot(t *testing.T) {
	reg := NewRegistry()
	reg.ReplaceSynced([]Template{synced("Dots", "Dots")})

	snap := reg.Snapshot()
	if !snap.Empty() {
		t.Errorf("Snapshot() = %+v, want empty", snap)
	}
}
