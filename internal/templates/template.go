package templates

import (
	"fmt"
	"path/filepath"
	"strings"
)

// DefaultIconCode is the icon the device shows for templates added by this tool
const DefaultIconCode = "\ue9fe"

// DefaultCategories are the categories written for templates added by this tool
var DefaultCategories = []string{"Creative", "Lines", "Grids", "Planners"}

// SyncState describes where a template currently lives
type SyncState int

const (
	// StateSynced means the template is present on the device as last confirmed
	StateSynced SyncState = iota
	// StateUnsynced means the template exists only locally and is waiting for upload
	StateUnsynced
	// StateDeletionPending means the template exists on the device and will be removed on the next sync
	StateDeletionPending
)

// String returns the wire name of the state
func (s SyncState) String() string {
	switch s {
	case StateSynced:
		return "synced"
	case StateUnsynced:
		return "unsynced"
	case StateDeletionPending:
		return "deletion-pending"
	default:
		return fmt.Sprintf("SyncState(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler
func (s SyncState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Template is a single note layout known to the registry.
// The JSON tags match the entries of the device's templates.json; the
// sync bookkeeping fields are never written to the device.
type Template struct {
	Name       string   `json:"name"`
	Filename   string   `json:"filename"`
	IconCode   string   `json:"iconCode"`
	Landscape  bool     `json:"landscape,omitempty"`
	Categories []string `json:"categories"`

	State           SyncState `json:"-"`
	LocalSourcePath string    `json:"-"`
}

// Clone returns a deep copy of the template
func (t Template) Clone() Template {
	if t.Categories != nil {
		t.Categories = append([]string(nil), t.Categories...)
	}
	return t
}

// Upload is one entry of a sync batch: the local file to send and the
// templates.json entry to create for it.
type Upload struct {
	Name       string
	Filename   string
	SourcePath string
	IconCode   string
	Landscape  bool
	Categories []string
}

// Entry returns the templates.json entry the device should hold after the upload
func (u Upload) Entry() Template {
	return Template{
		Name:       u.Name,
		Filename:   u.Filename,
		IconCode:   u.IconCode,
		Landscape:  u.Landscape,
		Categories: append([]string(nil), u.Categories...),
		State:      StateSynced,
	}
}

// NewLocal builds an unsynced template for a local file.
// The filename and display name are the file's base name without extension.
func NewLocal(path string) Template {
	base := StripExtension(filepath.Base(path))
	return Template{
		Name:            base,
		Filename:        base,
		IconCode:        DefaultIconCode,
		Categories:      append([]string(nil), DefaultCategories...),
		State:           StateUnsynced,
		LocalSourcePath: path,
	}
}

// StripExtension removes a trailing extension ("Cornell.svg" -> "Cornell")
func StripExtension(name string) string {
	ext := filepath.Ext(name)
	if ext == "" || ext == name {
		return name
	}
	return strings.TrimSuffix(name, ext)
}

// foldKey is the comparison key used for the uniqueness invariant
func foldKey(s string) string {
	return strings.ToLower(s)
}
