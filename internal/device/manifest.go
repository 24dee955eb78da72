package device

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/muurk/rmtemplates/internal/templates"
)

// manifest is templates.json kept as raw JSON so that fields and entries this
// tool does not know about are written back untouched.
type manifest struct {
	fields  map[string]json.RawMessage
	entries []json.RawMessage
}

type entryKey struct {
	Filename string `json:"filename"`
}

func parseManifest(data []byte) (*manifest, error) {
	m := &manifest{}
	if err := json.Unmarshal(data, &m.fields); err != nil {
		return nil, fmt.Errorf("failed to parse templates.json: %w", err)
	}
	if m.fields == nil {
		m.fields = map[string]json.RawMessage{}
	}
	if raw, ok := m.fields["templates"]; ok && string(raw) != "null" {
		if err := json.Unmarshal(raw, &m.entries); err != nil {
			return nil, fmt.Errorf("failed to parse templates list: %w", err)
		}
	}
	return m, nil
}

// Templates decodes every entry as a synced template
func (m *manifest) Templates() ([]templates.Template, error) {
	out := make([]templates.Template, 0, len(m.entries))
	for i, raw := range m.entries {
		var t templates.Template
		if err := json.Unmarshal(raw, &t); err != nil {
			return nil, fmt.Errorf("failed to parse template entry %d: %w", i, err)
		}
		t.State = templates.StateSynced
		out = append(out, t)
	}
	return out, nil
}

// Apply removes the entries named in deletions and adds or replaces one entry per upload
func (m *manifest) Apply(uploads []templates.Upload, deletions []string) error {
	drop := make(map[string]bool, len(deletions)+len(uploads))
	for _, f := range deletions {
		drop[f] = true
	}
	for _, u := range uploads {
		drop[u.Filename] = true
	}

	kept := make([]json.RawMessage, 0, len(m.entries)+len(uploads))
	for _, raw := range m.entries {
		var key entryKey
		if err := json.Unmarshal(raw, &key); err == nil && drop[key.Filename] {
			continue
		}
		kept = append(kept, raw)
	}

	for _, u := range uploads {
		raw, err := marshalNoEscape(u.Entry())
		if err != nil {
			return fmt.Errorf("failed to encode entry for %s: %w", u.Filename, err)
		}
		kept = append(kept, raw)
	}
	m.entries = kept
	return nil
}

// Bytes encodes the manifest with two-space indentation
func (m *manifest) Bytes() ([]byte, error) {
	list, err := marshalNoEscape(m.entries)
	if err != nil {
		return nil, err
	}
	m.fields["templates"] = list

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m.fields); err != nil {
		return nil, fmt.Errorf("failed to encode templates.json: %w", err)
	}
	return buf.Bytes(), nil
}

func marshalNoEscape(v any) (json.RawMessage, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return json.RawMessage(bytes.TrimRight(buf.Bytes(), "\n")), nil
}
