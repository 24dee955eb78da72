package templates

import (
	"errors"
	"strings"
	"testing"
)

func synced(name, filename string) Template {
	return Template{
		Name:       name,
		Filename:   filename,
		IconCode:   DefaultIconCode,
		Categories: []string{"Lines"},
		State:      StateSynced,
	}
}

func local(name, filename string) Template {
	return Template{Name: name, Filename: filename, LocalSourcePath: "/tmp/" + filename + ".svg"}
}

// assertUnique fails the test if any two templates share a filename or name
func assertUnique(t *testing.T, reg *Registry) {
	t.Helper()
	filenames := map[string]bool{}
	names := map[string]bool{}
	for _, tmpl := range reg.List() {
		fk, nk := strings.ToLower(tmpl.Filename), strings.ToLower(tmpl.Name)
		if filenames[fk] {
			t.Errorf("duplicate filename %q", tmpl.Filename)
		}
		if names[nk] {
			t.Errorf("duplicate name %q", tmpl.Name)
		}
		filenames[fk] = true
		names[nk] = true
	}
}

func TestValidateFilename(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"Valid: letters", "Cornell", false},
		{"Valid: with extension", "Cornell.svg", false},
		{"Valid: digits hyphen underscore", "grid_5mm-v2", false},
		{"Valid: png extension", "dots.png", false},
		{"Invalid: space", "my file", true},
		{"Invalid: space with extension", "my file.svg", true},
		{"Invalid: empty", "", true},
		{"Invalid: only extension", ".svg", true},
		{"Invalid: slash", "a/b", true},
		{"Invalid: unicode", "café", true},
		{"Invalid: inner dot", "a.b.svg", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFilename(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateFilename(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidFilename) {
				t.Errorf("expected ErrInvalidFilename, got %v", err)
			}
		})
	}
}

func TestStripExtension(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Cornell.svg", "Cornell"},
		{"Cornell", "Cornell"},
		{"a.b.png", "a.b"},
		{".svg", ".svg"},
	}
	for _, tt := range tests {
		if got := StripExtension(tt.in); got != tt.want {
			t.Errorf("StripExtension(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// Scenario A: adding a file whose name is already taken by a synced template
func TestAddRejectsCaseInsensitiveDuplicate(t *testing.T) {
	reg := NewRegistry()
	reg.ReplaceSynced([]Template{synced("Dots", "Dots")})

	err := reg.AddFile("/home/user/dots.svg")
	if !errors.Is(err, ErrDuplicateTemplate) {
		t.Fatalf("AddFile() error = %v, want ErrDuplicateTemplate", err)
	}
	if reg.Len() != 1 {
		t.Errorf("Len() = %d, want 1", reg.Len())
	}
	assertUnique(t, reg)
}

// Scenario B: an invalid filename is rejected before anything else
func TestAddRejectsInvalidFilename(t *testing.T) {
	for _, path := range []string{
		"/home/user/my file.svg",
		"/home/user/my.template.svg",
		"/home/user/.svg",
	} {
		t.Run(path, func(t *testing.T) {
			reg := NewRegistry()
			err := reg.AddFile(path)
			if !errors.Is(err, ErrInvalidFilename) {
				t.Fatalf("AddFile(%q) error = %v, want ErrInvalidFilename", path, err)
			}
			if reg.Len() != 0 {
				t.Errorf("Len() = %d, want 0", reg.Len())
			}
		})
	}

	for _, filename := range []string{"a.b.c", "Cornell.svg", "", "with space"} {
		t.Run("filename "+filename, func(t *testing.T) {
			reg := NewRegistry()
			err := reg.Add(Template{Name: "X", Filename: filename, LocalSourcePath: "/tmp/x.svg"})
			if !errors.Is(err, ErrInvalidFilename) {
				t.Fatalf("Add(Filename: %q) error = %v, want ErrInvalidFilename", filename, err)
			}
			if reg.Len() != 0 {
				t.Errorf("Len() = %d, want 0", reg.Len())
			}
		})
	}
}

func TestAddDefaults(t *testing.T) {
	reg := NewRegistry()
	if err := reg.AddFile("/home/user/Cornell.svg"); err != nil {
		t.Fatalf("AddFile() error = %v", err)
	}

	got, ok := reg.Get("Cornell")
	if !ok {
		t.Fatal("Get(Cornell) not found")
	}
	if got.Name != "Cornell" || got.Filename != "Cornell" {
		t.Errorf("got name=%q filename=%q, want Cornell/Cornell", got.Name, got.Filename)
	}
	if got.State != StateUnsynced {
		t.Errorf("State = %v, want unsynced", got.State)
	}
	if got.LocalSourcePath != "/home/user/Cornell.svg" {
		t.Errorf("LocalSourcePath = %q", got.LocalSourcePath)
	}
	if got.IconCode != DefaultIconCode {
		t.Errorf("IconCode = %q, want %q", got.IconCode, DefaultIconCode)
	}
	if len(got.Categories) != len(DefaultCategories) {
		t.Errorf("Categories = %v, want %v", got.Categories, DefaultCategories)
	}
}

func TestAddRequiresSource(t *testing.T) {
	reg := NewRegistry()
	err := reg.Add(Template{Name: "Grid", Filename: "Grid"})
	if !errors.Is(err, ErrMissingSource) {
		t.Fatalf("Add() error = %v, want ErrMissingSource", err)
	}
}

func TestAddRejectsDuplicateAgainstPending(t *testing.T) {
	reg := NewRegistry()
	reg.ReplaceSynced([]Template{synced("Lines", "Lines")})
	reg.MarkForDeletion("Lines")

	if err := reg.Add(local("Other", "lines")); !errors.Is(err, ErrDuplicateTemplate) {
		t.Errorf("Add() filename clash with pending: error = %v", err)
	}
	if err := reg.Add(local("LINES", "Fresh")); !errors.Is(err, ErrDuplicateTemplate) {
		t.Errorf("Add() name clash with pending: error = %v", err)
	}
}

func TestRename(t *testing.T) {
	reg := NewRegistry()
	reg.ReplaceSynced([]Template{synced("Dots", "Dots")})
	if err := reg.Add(local("Grid", "Grid")); err != nil {
		t.Fatal(err)
	}
	if err := reg.Add(local("Weekly", "Weekly")); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		filename string
		newName  string
		wantErr  error
	}{
		{"Rename unsynced", "Grid", "Square Grid", nil},
		{"Rename synced", "Dots", "Fine Dots", ErrNotRenamable},
		{"Unknown filename", "Nope", "X", ErrNotFound},
		{"Empty name", "Weekly", "  ", ErrInvalidName},
		{"Collides with synced", "Weekly", "dots", ErrDuplicateTemplate},
		{"Collides with unsynced", "Weekly", "square grid", ErrDuplicateTemplate},
		{"Same name different case", "Weekly", "WEEKLY", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := reg.Rename(tt.filename, tt.newName)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("Rename() error = %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("Rename() error = %v, want %v", err, tt.wantErr)
			}
			assertUnique(t, reg)
		})
	}

	if got, _ := reg.Get("Grid"); got.Name != "Square Grid" {
		t.Errorf("Grid name = %q, want Square Grid", got.Name)
	}
}

func TestMarkForDeletion(t *testing.T) {
	reg := NewRegistry()
	reg.ReplaceSynced([]Template{synced("Dots", "Dots"), synced("Lines", "Lines")})
	if err := reg.Add(local("Grid", "Grid")); err != nil {
		t.Fatal(err)
	}
	reg.MarkForDeletion("Lines")

	marked, removed := reg.MarkForDeletion("Dots", "Grid", "Lines", "Unknown")
	if marked != 1 || removed != 1 {
		t.Errorf("MarkForDeletion() = (%d, %d), want (1, 1)", marked, removed)
	}

	p := reg.Partition()
	if len(p.Synced) != 0 {
		t.Errorf("Synced = %v, want none", p.Synced)
	}
	if len(p.Unsynced) != 0 {
		t.Errorf("Unsynced = %v, want none", p.Unsynced)
	}
	if len(p.DeletionPending) != 2 || p.DeletionPending[0].Filename != "Dots" || p.DeletionPending[1].Filename != "Lines" {
		t.Errorf("DeletionPending = %v, want [Dots Lines]", p.DeletionPending)
	}
}

func TestPartitionOrder(t *testing.T) {
	reg := NewRegistry()
	reg.ReplaceSynced([]Template{synced("A", "A"), synced("B", "B"), synced("C", "C")})
	for _, f := range []string{"Z", "Y", "X"} {
		if err := reg.Add(local(f, f)); err != nil {
			t.Fatal(err)
		}
	}
	reg.MarkForDeletion("C", "A")

	p := reg.Partition()
	want := map[string][]string{
		"synced":   {"B"},
		"unsynced": {"Z", "Y", "X"},
		"pending":  {"A", "C"},
	}
	check := func(label string, got []Template) {
		t.Helper()
		if len(got) != len(want[label]) {
			t.Fatalf("%s = %v, want %v", label, got, want[label])
		}
		for i, tmpl := range got {
			if tmpl.Filename != want[label][i] {
				t.Errorf("%s[%d] = %s, want %s", label, i, tmpl.Filename, want[label][i])
			}
		}
	}
	check("synced", p.Synced)
	check("unsynced", p.Unsynced)
	check("pending", p.DeletionPending)
}

func TestReplaceSyncedPreservesLocalWork(t *testing.T) {
	reg := NewRegistry()
	reg.ReplaceSynced([]Template{synced("Dots", "Dots"), synced("Lines", "Lines"), synced("Gone", "Gone")})
	if err := reg.Add(local("Grid", "Grid")); err != nil {
		t.Fatal(err)
	}
	reg.MarkForDeletion("Lines", "Gone")

	refreshed := synced("Lines", "Lines")
	refreshed.Landscape = true
	conflicts := reg.ReplaceSynced([]Template{
		synced("Dots", "Dots"),
		refreshed,
		synced("Grid from device", "grid"),
		synced("dots", "DotsCopy"),
		synced("New", "New"),
	})

	if len(conflicts) != 2 {
		t.Fatalf("conflicts = %v, want 2", conflicts)
	}
	if conflicts[0].Template.Filename != "grid" || conflicts[1].Template.Filename != "DotsCopy" {
		t.Errorf("conflicts = %v", conflicts)
	}

	p := reg.Partition()
	if len(p.Synced) != 2 || p.Synced[0].Filename != "Dots" || p.Synced[1].Filename != "New" {
		t.Errorf("Synced = %v, want [Dots New]", p.Synced)
	}
	if len(p.Unsynced) != 1 || p.Unsynced[0].Filename != "Grid" {
		t.Errorf("Unsynced = %v, want [Grid]", p.Unsynced)
	}
	if len(p.DeletionPending) != 1 || !p.DeletionPending[0].Landscape {
		t.Errorf("DeletionPending = %v, want refreshed Lines", p.DeletionPending)
	}
	assertUnique(t, reg)
}

func TestReset(t *testing.T) {
	reg := NewRegistry()
	reg.ReplaceSynced([]Template{synced("Dots", "Dots")})
	_ = reg.AddFile("/tmp/Grid.svg")
	reg.Reset()
	if reg.Len() != 0 {
		t.Errorf("Len() after Reset = %d", reg.Len())
	}
}

func TestGetReturnsCopy(t *testing.T) {
	reg := NewRegistry()
	reg.ReplaceSynced([]Template{synced("Dots", "Dots")})

	got, _ := reg.Get("Dots")
	got.Categories[0] = "Mutated"

	again, _ := reg.Get("Dots")
	if again.Categories[0] != "Lines" {
		t.Errorf("registry was mutated through a returned copy: %v", again.Categories)
	}
}
