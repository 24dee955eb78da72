package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/muurk/rmtemplates/internal/device"
	"github.com/muurk/rmtemplates/internal/device/devicetest"
	"github.com/muurk/rmtemplates/internal/session"
	"github.com/muurk/rmtemplates/internal/syncer"
	"github.com/muurk/rmtemplates/internal/templates"
)

type stubKeys struct {
	keys     []device.Key
	uploaded []string
}

func (k *stubKeys) ListKeys() ([]device.Key, error) { return k.keys, nil }
func (k *stubKeys) GenerateKey() (device.Key, error) {
	key := device.Key{Name: "remarkable_test", Path: "/home/u/.ssh/remarkable_test"}
	k.keys = append(k.keys, key)
	return key, nil
}
func (k *stubKeys) UploadKey(_ context.Context, keyPath, address, _ string) error {
	k.uploaded = append(k.uploaded, keyPath+"@"+address)
	return nil
}

type testBridge struct {
	dev  *devicetest.Fake
	mon  *session.Monitor
	srv  *Server
	http *httptest.Server
	keys *stubKeys
}

func newTestBridge(t *testing.T) *testBridge {
	t.Helper()
	dev := devicetest.New(templates.Template{Name: "Blank", Filename: "Blank", IconCode: templates.DefaultIconCode, Categories: []string{"Lines"}})
	reg := templates.NewRegistry()
	mon := session.NewMonitor(dev, reg, session.Options{Interval: time.Hour})
	coord := syncer.New(mon, dev, reg, nil)
	keys := &stubKeys{}
	srv := New(Config{BackupDir: t.TempDir()}, mon, coord, keys)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Hub().Close()
		ts.Close()
		mon.Close()
	})
	return &testBridge{dev: dev, mon: mon, srv: srv, http: ts, keys: keys}
}

func (b *testBridge) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, b.http.URL+path, reader)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func (b *testBridge) connect(t *testing.T) {
	t.Helper()
	resp, body := b.do(t, http.MethodPost, "/api/connect", connectRequest{Address: "10.11.99.1", KeyPath: "/k"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("connect status = %d, body = %v", resp.StatusCode, body)
	}
}

func writeSVG(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("<svg/>"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestStateAndConnect(t *testing.T) {
	b := newTestBridge(t)

	resp, body := b.do(t, http.MethodGet, "/api/state", nil)
	if resp.StatusCode != http.StatusOK || body["state"] != "disconnected" {
		t.Fatalf("initial state = %d %v", resp.StatusCode, body)
	}

	b.connect(t)
	_, body = b.do(t, http.MethodGet, "/api/state", nil)
	if body["state"] != "connected" {
		t.Errorf("state after connect = %v", body["state"])
	}
	sess, _ := body["session"].(map[string]any)
	if sess["address"] != "10.11.99.1" || sess["method"] != "ssh" {
		t.Errorf("session = %v", sess)
	}

	_, body = b.do(t, http.MethodGet, "/api/templates", nil)
	synced, _ := body["synced"].([]any)
	if len(synced) != 1 {
		t.Errorf("synced = %v, want the device template", body["synced"])
	}
}

func TestTemplateEditingAndSync(t *testing.T) {
	b := newTestBridge(t)
	b.connect(t)

	path := writeSVG(t, "Grid.svg")
	resp, body := b.do(t, http.MethodPost, "/api/templates", addRequest{Path: path, Landscape: true})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add status = %d, body = %v", resp.StatusCode, body)
	}
	if body["filename"] != "Grid" || body["sourcePath"] != path {
		t.Errorf("added = %v", body)
	}

	resp, body = b.do(t, http.MethodPost, "/api/templates", addRequest{Path: path})
	if resp.StatusCode != http.StatusConflict || body["code"] != "duplicate" {
		t.Errorf("duplicate add = %d %v", resp.StatusCode, body)
	}

	resp, _ = b.do(t, http.MethodPost, "/api/templates", addRequest{Path: writeSVG(t, "bad name.svg")})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid filename status = %d, want 400", resp.StatusCode)
	}

	resp, body = b.do(t, http.MethodPatch, "/api/templates/Grid", renameRequest{Name: "Square Grid"})
	if resp.StatusCode != http.StatusOK || body["name"] != "Square Grid" {
		t.Errorf("rename = %d %v", resp.StatusCode, body)
	}

	resp, _ = b.do(t, http.MethodPatch, "/api/templates/Blank", renameRequest{Name: "Other"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("rename of synced template status = %d, want 400", resp.StatusCode)
	}

	resp, body = b.do(t, http.MethodDelete, "/api/templates/Blank", nil)
	if resp.StatusCode != http.StatusOK || body["marked"] != float64(1) {
		t.Errorf("delete = %d %v", resp.StatusCode, body)
	}

	resp, _ = b.do(t, http.MethodDelete, "/api/templates/Missing", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("delete missing status = %d, want 404", resp.StatusCode)
	}

	resp, body = b.do(t, http.MethodPost, "/api/sync", nil)
	if resp.StatusCode != http.StatusOK || body["count"] != float64(2) {
		t.Fatalf("sync = %d %v", resp.StatusCode, body)
	}

	onDevice := b.dev.Templates()
	if len(onDevice) != 1 || onDevice[0].Name != "Square Grid" || !onDevice[0].Landscape {
		t.Errorf("device templates = %+v", onDevice)
	}
}

func TestSyncErrors(t *testing.T) {
	b := newTestBridge(t)

	resp, body := b.do(t, http.MethodPost, "/api/sync", nil)
	if resp.StatusCode != http.StatusServiceUnavailable || body["code"] != "connection_lost" {
		t.Errorf("sync while disconnected = %d %v", resp.StatusCode, body)
	}

	b.connect(t)
	if err := b.mon.Registry().AddFile("/tmp/Grid.svg"); err != nil {
		t.Fatal(err)
	}
	b.dev.Set(func(d *devicetest.Fake) { d.SyncErr = device.NewSyncError("disk full", errors.New("no space")) })

	resp, body = b.do(t, http.MethodPost, "/api/sync", nil)
	if resp.StatusCode != http.StatusBadGateway || body["hint"] == nil {
		t.Errorf("failed sync = %d %v", resp.StatusCode, body)
	}
}

func TestBusyRefusal(t *testing.T) {
	b := newTestBridge(t)
	b.connect(t)
	if err := b.mon.Registry().AddFile("/tmp/Grid.svg"); err != nil {
		t.Fatal(err)
	}

	block := make(chan struct{})
	entered := make(chan struct{}, 1)
	b.dev.Set(func(d *devicetest.Fake) {
		d.BlockSync = block
		d.EnteredSync = entered
	})

	done := make(chan int, 1)
	go func() {
		req, _ := http.NewRequest(http.MethodPost, b.http.URL+"/api/sync", nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			done <- 0
			return
		}
		resp.Body.Close()
		done <- resp.StatusCode
	}()

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("sync never reached the device")
	}

	for _, path := range []string{"/api/sync", "/api/disconnect", "/api/reboot"} {
		resp, body := b.do(t, http.MethodPost, path, nil)
		if resp.StatusCode != http.StatusConflict || body["code"] != "busy" {
			t.Errorf("POST %s during sync = %d %v, want 409 busy", path, resp.StatusCode, body)
		}
	}

	_, body := b.do(t, http.MethodGet, "/api/state", nil)
	if body["busy"] != "sync" {
		t.Errorf("state busy = %v, want sync", body["busy"])
	}

	close(block)
	if status := <-done; status != http.StatusOK {
		t.Errorf("blocked sync status = %d", status)
	}
}

func TestBackupAndKeys(t *testing.T) {
	b := newTestBridge(t)
	b.connect(t)

	resp, body := b.do(t, http.MethodPost, "/api/backup", nil)
	if resp.StatusCode != http.StatusOK || !strings.HasSuffix(fmt.Sprint(body["filePath"]), ".zip") {
		t.Errorf("backup = %d %v", resp.StatusCode, body)
	}

	resp, _ = b.do(t, http.MethodPost, "/api/keys", nil)
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("generate key status = %d", resp.StatusCode)
	}

	resp, _ = b.do(t, http.MethodPost, "/api/keys/upload", uploadKeyRequest{KeyPath: "/home/u/.ssh/remarkable_test", Password: "pw"})
	if resp.StatusCode != http.StatusOK {
		t.Errorf("upload key status = %d", resp.StatusCode)
	}
	if len(b.keys.uploaded) != 1 || b.keys.uploaded[0] != "/home/u/.ssh/remarkable_test@10.11.99.1" {
		t.Errorf("uploaded = %v", b.keys.uploaded)
	}

	resp, _ = b.do(t, http.MethodPost, "/api/keys/upload", map[string]string{"unknown": "x"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown field status = %d, want 400", resp.StatusCode)
	}
}

func TestWebSocketEvents(t *testing.T) {
	b := newTestBridge(t)

	url := "ws" + strings.TrimPrefix(b.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	next := func() Event {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("read event: %v", err)
		}
		return ev
	}

	if ev := next(); ev.Type != EventState {
		t.Fatalf("first event = %s, want state", ev.Type)
	}
	if ev := next(); ev.Type != EventTemplates {
		t.Fatalf("second event = %s, want templates", ev.Type)
	}

	deadline := time.Now().Add(2 * time.Second)
	for b.srv.Hub().Clients() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	b.connect(t)
	if err := b.mon.Registry().AddFile("/tmp/Grid.svg"); err != nil {
		t.Fatal(err)
	}
	if resp, _ := b.do(t, http.MethodPost, "/api/sync", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("sync status = %d", resp.StatusCode)
	}

	seen := map[EventType]bool{}
	for !seen[EventSyncFinished] {
		seen[next().Type] = true
	}
	for _, want := range []EventType{EventState, EventTemplates, EventSyncStarted, EventSyncFinished} {
		if !seen[want] {
			t.Errorf("no %s event before sync_finished", want)
		}
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("%w: sync", session.ErrBusy), http.StatusConflict},
		{templates.ErrDuplicateTemplate, http.StatusConflict},
		{templates.ErrInFlight, http.StatusConflict},
		{templates.ErrInvalidFilename, http.StatusBadRequest},
		{templates.ErrNotFound, http.StatusNotFound},
		{session.ErrConnectionLost, http.StatusServiceUnavailable},
		{fmt.Errorf("%w: %w", syncer.ErrSyncFailed, errors.New("x")), http.StatusBadGateway},
		{device.NewInvalidFileError("bad", nil), http.StatusBadRequest},
		{device.ClassifyConnectError(errors.New("ssh: unable to authenticate"), "h"), http.StatusUnauthorized},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got, _ := statusFor(tt.err); got != tt.status {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.status)
		}
	}
}
