package templates

// Snapshot is the batch a single sync sends to the device.
// While a snapshot is outstanding its entries are frozen; it must be
// finished with exactly one call to Commit or Release.
type Snapshot struct {
	Uploads   []Upload
	Deletions []string
}

// Empty reports whether the snapshot carries no work
func (s Snapshot) Empty() bool {
	return len(s.Uploads) == 0 && len(s.Deletions) == 0
}

// Count is the number of uploads plus deletions
func (s Snapshot) Count() int {
	return len(s.Uploads) + len(s.Deletions)
}

// Snapshot captures every unsynced and deletion-pending template that is not
// already part of another outstanding snapshot, and marks them in flight.
// Templates added afterwards are not part of it.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	var snap Snapshot
	for _, e := range r.entries {
		if e.inFlight {
			continue
		}
		switch e.tmpl.State {
		case StateUnsynced:
			t := e.tmpl
			snap.Uploads = append(snap.Uploads, Upload{
				Name:       t.Name,
				Filename:   t.Filename,
				SourcePath: t.LocalSourcePath,
				IconCode:   t.IconCode,
				Landscape:  t.Landscape,
				Categories: append([]string(nil), t.Categories...),
			})
			e.inFlight = true
		case StateDeletionPending:
			snap.Deletions = append(snap.Deletions, e.tmpl.Filename)
			e.inFlight = true
		}
	}
	return snap
}

// Commit applies a successful sync: uploaded templates become synced under
// the name they were uploaded with, and deleted templates leave the registry.
func (r *Registry) Commit(snap Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range snap.Uploads {
		e := r.findExact(u.Filename)
		if e == nil || e.tmpl.State != StateUnsynced {
			continue
		}
		e.tmpl.State = StateSynced
		e.tmpl.Name = u.Name
		e.tmpl.LocalSourcePath = ""
		e.inFlight = false
	}
	for _, filename := range snap.Deletions {
		e := r.findExact(filename)
		if e == nil || e.tmpl.State != StateDeletionPending {
			continue
		}
		r.remove(e)
	}
}

// Release abandons a snapshot after a failed sync. The registry is left
// exactly as it was before the snapshot was taken.
func (r *Registry) Release(snap Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range snap.Uploads {
		if e := r.findExact(u.Filename); e != nil {
			e.inFlight = false
		}
	}
	for _, filename := range snap.Deletions {
		if e := r.findExact(filename); e != nil {
			e.inFlight = false
		}
	}
}

func (r *Registry) findExact(filename string) *entry {
	for _, e := range r.entries {
		if e.tmpl.Filename == filename {
			return e
		}
	}
	return nil
}
