package templates

import (
	"fmt"
	"sync"
)

type entry struct {
	tmpl     Template
	inFlight bool
}

// Registry is the set of templates known for the current device session.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries []*entry
}

// Partition splits the registry by sync state. Each slice keeps insertion order.
type Partition struct {
	Synced          []Template
	Unsynced        []Template
	DeletionPending []Template
}

// Conflict is a fetched template that could not be inserted without breaking uniqueness
type Conflict struct {
	Template Template
	Reason   string
}

// NewRegistry returns an empty registry
func NewRegistry() *Registry {
	return &Registry{}
}

// Add inserts a locally created template as unsynced.
// The filename is the templates.json filename, without extension; use
// NewLocal or AddFile to derive it from a path. Defaults are filled in for
// the icon code and categories when the candidate has none.
func (r *Registry) Add(candidate Template) error {
	if err := validateBase(candidate.Filename, candidate.Filename); err != nil {
		return err
	}
	if candidate.LocalSourcePath == "" {
		return fmt.Errorf("%w: %s", ErrMissingSource, candidate.Filename)
	}
	if candidate.Name == "" {
		candidate.Name = candidate.Filename
	}
	if candidate.IconCode == "" {
		candidate.IconCode = DefaultIconCode
	}
	if len(candidate.Categories) == 0 {
		candidate.Categories = append([]string(nil), DefaultCategories...)
	}
	candidate.State = StateUnsynced

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkUnique(candidate.Filename, candidate.Name, nil); err != nil {
		return err
	}
	r.entries = append(r.entries, &entry{tmpl: candidate.Clone()})
	return nil
}

// AddFile adds the file at path as an unsynced template named after its base name
func (r *Registry) AddFile(path string) error {
	return r.Add(NewLocal(path))
}

// Rename changes the display name of an unsynced template
func (r *Registry) Rename(filename, newName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.find(filename)
	if e == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, filename)
	}
	if e.tmpl.State != StateUnsynced {
		return fmt.Errorf("%w: %s is %s", ErrNotRenamable, filename, e.tmpl.State)
	}
	if e.inFlight {
		return fmt.Errorf("%w: %s", ErrInFlight, filename)
	}
	if err := ValidateName(newName); err != nil {
		return err
	}
	if err := r.checkUnique("", newName, e); err != nil {
		return err
	}
	e.tmpl.Name = newName
	return nil
}

// MarkForDeletion schedules synced templates for removal on the next sync and
// drops unsynced ones straight away. Unknown, already pending and in-flight
// unsynced templates are left as they are.
func (r *Registry) MarkForDeletion(filenames ...string) (marked, removed int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range filenames {
		e := r.find(name)
		if e == nil {
			continue
		}
		switch e.tmpl.State {
		case StateSynced:
			e.tmpl.State = StateDeletionPending
			marked++
		case StateUnsynced:
			if e.inFlight {
				continue
			}
			r.remove(e)
			removed++
		}
	}
	return marked, removed
}

// Get returns a copy of the template with the given filename
func (r *Registry) Get(filename string) (Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if e := r.find(filename); e != nil {
		return e.tmpl.Clone(), true
	}
	return Template{}, false
}

// List returns copies of all templates in insertion order
func (r *Registry) List() []Template {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Template, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.tmpl.Clone())
	}
	return out
}

// Len returns the number of templates
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Partition returns the synced, unsynced and deletion-pending subsets
func (r *Registry) Partition() Partition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var p Partition
	for _, e := range r.entries {
		t := e.tmpl.Clone()
		switch t.State {
		case StateSynced:
			p.Synced = append(p.Synced, t)
		case StateUnsynced:
			p.Unsynced = append(p.Unsynced, t)
		case StateDeletionPending:
			p.DeletionPending = append(p.DeletionPending, t)
		}
	}
	return p
}

// HasPending reports whether anything is waiting to be uploaded or deleted
func (r *Registry) HasPending() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.entries {
		if e.tmpl.State != StateSynced && !e.inFlight {
			return true
		}
	}
	return false
}

// ReplaceSynced swaps the synced subset for a freshly fetched list.
// Unsynced templates are kept. A deletion-pending template that the device
// still reports stays pending with its metadata refreshed; one the device no
// longer has is dropped. Fetched templates that would collide with a kept
// template or with an earlier fetched entry are skipped and returned.
func (r *Registry) ReplaceSynced(fetched []Template) []Conflict {
	r.mu.Lock()
	defer r.mu.Unlock()

	filenames := make(map[string]bool)
	names := make(map[string]bool)
	pending := make(map[string]bool)
	var unsynced []*entry
	for _, e := range r.entries {
		switch e.tmpl.State {
		case StateUnsynced:
			unsynced = append(unsynced, e)
			filenames[foldKey(e.tmpl.Filename)] = true
			names[foldKey(e.tmpl.Name)] = true
		case StateDeletionPending:
			pending[foldKey(e.tmpl.Filename)] = true
		}
	}

	var conflicts []Conflict
	next := make([]*entry, 0, len(fetched)+len(unsynced))
	for _, t := range fetched {
		fk, nk := foldKey(t.Filename), foldKey(t.Name)
		if filenames[fk] {
			conflicts = append(conflicts, Conflict{Template: t.Clone(), Reason: "filename already in use"})
			continue
		}
		if names[nk] {
			conflicts = append(conflicts, Conflict{Template: t.Clone(), Reason: "name already in use"})
			continue
		}
		filenames[fk] = true
		names[nk] = true

		t = t.Clone()
		t.LocalSourcePath = ""
		t.State = StateSynced
		if pending[fk] {
			t.State = StateDeletionPending
		}
		next = append(next, &entry{tmpl: t})
	}
	r.entries = append(next, unsynced...)
	return conflicts
}

// Reset removes every template
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
}

// find looks up a template by filename. Callers hold the lock.
func (r *Registry) find(filename string) *entry {
	// Device filenames may contain dots, so the exact key wins over the stripped one.
	keys := []string{foldKey(filename)}
	if stripped := StripExtension(filename); stripped != filename {
		keys = append(keys, foldKey(stripped))
	}
	for _, key := range keys {
		for _, e := range r.entries {
			if foldKey(e.tmpl.Filename) == key {
				return e
			}
		}
	}
	return nil
}

func (r *Registry) remove(target *entry) {
	for i, e := range r.entries {
		if e == target {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return
		}
	}
}

// checkUnique rejects a filename or name that is already used by an entry other than self.
// An empty filename skips the filename check.
func (r *Registry) checkUnique(filename, name string, self *entry) error {
	fk, nk := foldKey(filename), foldKey(name)
	for _, e := range r.entries {
		if e == self {
			continue
		}
		if filename != "" && foldKey(e.tmpl.Filename) == fk {
			return fmt.Errorf("%w: filename %q already exists", ErrDuplicateTemplate, filename)
		}
		if foldKey(e.tmpl.Name) == nk {
			return fmt.Errorf("%w: name %q already exists", ErrDuplicateTemplate, name)
		}
	}
	return nil
}
