package device

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/muurk/rmtemplates/internal/templates"
)

const deviceManifest = `{
  "templates": [
    {"name": "Blank", "filename": "Blank", "iconCode": "", "categories": ["Creative"]},
    {"name": "Lines", "filename": "P Lines medium", "iconCode": "", "landscape": true, "categories": ["Lines"], "extra": 42},
    {"name": "Old Grid", "filename": "OldGrid", "iconCode": "", "categories": ["Grids"]}
  ],
  "version": 3
}`

func TestManifestTemplates(t *testing.T) {
	m, err := parseManifest([]byte(deviceManifest))
	if err != nil {
		t.Fatalf("parseManifest() error = %v", err)
	}
	got, err := m.Templates()
	if err != nil {
		t.Fatalf("Templates() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d templates, want 3", len(got))
	}
	if got[1].Filename != "P Lines medium" || !got[1].Landscape {
		t.Errorf("got[1] = %+v", got[1])
	}
	for _, tmpl := range got {
		if tmpl.State != templates.StateSynced {
			t.Errorf("%s state = %v, want synced", tmpl.Filename, tmpl.State)
		}
	}
}

func TestManifestApplyPreservesUnknownFields(t *testing.T) {
	m, err := parseManifest([]byte(deviceManifest))
	if err != nil {
		t.Fatal(err)
	}

	uploads := []templates.Upload{{
		Name:       "Cornell <A&B>",
		Filename:   "Cornell",
		SourcePath: "/tmp/Cornell.svg",
		IconCode:   templates.DefaultIconCode,
		Categories: templates.DefaultCategories,
	}}
	if err := m.Apply(uploads, []string{"OldGrid"}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	data, err := m.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}

	var decoded struct {
		Version   int              `json:"version"`
		Templates []map[string]any `json:"templates"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, data)
	}
	if decoded.Version != 3 {
		t.Errorf("version = %d, want 3", decoded.Version)
	}
	if len(decoded.Templates) != 3 {
		t.Fatalf("got %d entries, want 3", len(decoded.Templates))
	}
	if decoded.Templates[1]["extra"] != float64(42) {
		t.Errorf("unknown field lost: %v", decoded.Templates[1])
	}
	last := decoded.Templates[2]
	if last["filename"] != "Cornell" || last["iconCode"] != templates.DefaultIconCode {
		t.Errorf("new entry = %v", last)
	}
	if _, ok := last["landscape"]; ok {
		t.Error("landscape should be omitted when false")
	}
	if strings.Contains(string(data), "OldGrid") {
		t.Error("deleted entry still present")
	}
	if !strings.Contains(string(data), "Cornell <A&B>") {
		t.Errorf("output should not HTML-escape names:\n%s", data)
	}
}

func TestManifestApplyReplacesExistingFilename(t *testing.T) {
	m, err := parseManifest([]byte(deviceManifest))
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Apply([]templates.Upload{{Name: "Blank v2", Filename: "Blank"}}, nil); err != nil {
		t.Fatal(err)
	}
	got, err := m.Templates()
	if err != nil {
		t.Fatal(err)
	}
	count := 0
	for _, tmpl := range got {
		if tmpl.Filename == "Blank" {
			count++
			if tmpl.Name != "Blank v2" {
				t.Errorf("Blank name = %q, want Blank v2", tmpl.Name)
			}
		}
	}
	if count != 1 {
		t.Errorf("Blank appears %d times, want 1", count)
	}
}

func TestParseManifestErrors(t *testing.T) {
	if _, err := parseManifest([]byte("not json")); err == nil {
		t.Error("parseManifest() accepted invalid JSON")
	}
	if _, err := parseManifest([]byte(`{"templates": {"a": 1}}`)); err == nil {
		t.Error("parseManifest() accepted a non-list templates field")
	}
	m, err := parseManifest([]byte(`{}`))
	if err != nil {
		t.Fatalf("parseManifest({}) error = %v", err)
	}
	if got, _ := m.Templates(); len(got) != 0 {
		t.Errorf("empty manifest returned %v", got)
	}
}
