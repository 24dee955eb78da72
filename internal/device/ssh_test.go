package device

import (
	"context"
	"testing"

	"github.com/muurk/rmtemplates/internal/templates"
)

func TestShellEscape(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "'plain'"},
		{"with space", "'with space'"},
		{"it's", `'it'"'"'s'`},
		{"$(rm -rf /)", "'$(rm -rf /)'"},
	}
	for _, tt := range tests {
		if got := shellEscape(tt.in); got != tt.want {
			t.Errorf("shellEscape(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestWithDefaultPort(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"10.11.99.1", "10.11.99.1:22"},
		{"10.11.99.1:2222", "10.11.99.1:2222"},
		{"remarkable.local", "remarkable.local:22"},
		{"fe80::1", "[fe80::1]:22"},
	}
	for _, tt := range tests {
		if got := withDefaultPort(tt.in); got != tt.want {
			t.Errorf("withDefaultPort(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRemoteFile(t *testing.T) {
	s := NewSSHService()
	got := s.remoteFile(templates.Upload{Filename: "Cornell", SourcePath: "/home/me/Cornell.SVG"})
	if got != "/usr/share/remarkable/templates/Cornell.svg" {
		t.Errorf("remoteFile() = %q", got)
	}
}

func TestOperationsRequireConnection(t *testing.T) {
	s := NewSSHService()
	ctx := context.Background()

	if err := s.CheckHealth(ctx); !IsUnreachable(err) {
		t.Errorf("CheckHealth() error = %v, want unreachable", err)
	}
	if _, err := s.FetchTemplates(ctx); err == nil {
		t.Error("FetchTemplates() succeeded without a connection")
	}
	if err := s.Reboot(ctx); err != ErrNotConnected {
		t.Errorf("Reboot() error = %v, want ErrNotConnected", err)
	}
	if err := s.ApplySync(ctx, nil, nil); err != nil {
		t.Errorf("empty ApplySync() error = %v, want nil", err)
	}
	if err := s.Disconnect(); err != nil {
		t.Errorf("Disconnect() when idle error = %v", err)
	}
}
