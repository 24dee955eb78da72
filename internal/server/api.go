package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/muurk/rmtemplates/internal/device"
	"github.com/muurk/rmtemplates/internal/logging"
	"github.com/muurk/rmtemplates/internal/session"
	"github.com/muurk/rmtemplates/internal/templates"
)

const maxBodyBytes = 1 << 20

type stateResponse struct {
	State   session.State    `json:"state"`
	Session *session.Session `json:"session,omitempty"`
	Busy    string           `json:"busy,omitempty"`
}

type templatesResponse struct {
	Synced          []templates.Template `json:"synced"`
	Unsynced        []templateView       `json:"unsynced"`
	DeletionPending []templates.Template `json:"deletionPending"`
}

// templateView exposes the local source of an unsynced template
type templateView struct {
	templates.Template
	SourcePath string `json:"sourcePath"`
}

type connectRequest struct {
	Address string `json:"address"`
	KeyPath string `json:"keyPath"`
}

type addRequest struct {
	Path       string   `json:"path"`
	Name       string   `json:"name"`
	IconCode   string   `json:"iconCode"`
	Landscape  bool     `json:"landscape"`
	Categories []string `json:"categories"`
}

type renameRequest struct {
	Name string `json:"name"`
}

type backupRequest struct {
	Dir string `json:"dir"`
}

type uploadKeyRequest struct {
	KeyPath  string `json:"keyPath"`
	Address  string `json:"address"`
	Password string `json:"password"`
}

type deleteResponse struct {
	Marked  int `json:"marked"`
	Removed int `json:"removed"`
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("POST /api/connect", s.handleConnect)
	mux.HandleFunc("POST /api/retry", s.handleRetry)
	mux.HandleFunc("POST /api/disconnect", s.handleDisconnect)
	mux.HandleFunc("POST /api/reboot", s.handleReboot)

	mux.HandleFunc("GET /api/templates", s.handleTemplates)
	mux.HandleFunc("POST /api/templates", s.handleAddTemplate)
	mux.HandleFunc("PATCH /api/templates/{filename}", s.handleRenameTemplate)
	mux.HandleFunc("DELETE /api/templates/{filename}", s.handleDeleteTemplate)

	mux.HandleFunc("POST /api/sync", s.handleSync)
	mux.HandleFunc("POST /api/backup", s.handleBackup)

	mux.HandleFunc("GET /api/keys", s.handleListKeys)
	mux.HandleFunc("POST /api/keys", s.handleGenerateKey)
	mux.HandleFunc("POST /api/keys/upload", s.handleUploadKey)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.hub.serve(w, r, []Event{
		s.event(EventState, s.stateBody()),
		s.event(EventTemplates, s.templatesBody()),
	})
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.stateBody())
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if !decode(w, r, &req) {
		return
	}

	var err error
	if req.Address == "" && req.KeyPath == "" {
		err = s.mon.QuickConnect(r.Context())
	} else {
		if req.Address == "" {
			req.Address = device.DefaultUSBAddress
		}
		err = s.mon.Connect(r.Context(), req.Address, req.KeyPath)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	s.broadcastTemplates()
	writeJSON(w, http.StatusOK, s.stateBody())
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	if err := s.mon.Retry(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	s.broadcastTemplates()
	writeJSON(w, http.StatusOK, s.stateBody())
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := s.mon.Disconnect(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	s.broadcastTemplates()
	writeJSON(w, http.StatusOK, s.stateBody())
}

func (s *Server) handleReboot(w http.ResponseWriter, r *http.Request) {
	if err := s.mon.Reboot(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	s.broadcastTemplates()
	writeJSON(w, http.StatusOK, s.stateBody())
}

func (s *Server) handleTemplates(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.templatesBody())
}

func (s *Server) handleAddTemplate(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if !decode(w, r, &req) {
		return
	}

	file, err := device.SelectLocalFile(req.Path)
	if err != nil {
		writeError(w, err)
		return
	}
	if file == nil {
		writeError(w, fmt.Errorf("%w: path is required", templates.ErrMissingSource))
		return
	}

	t := templates.NewLocal(file.Path)
	if req.Name != "" {
		t.Name = req.Name
	}
	if req.IconCode != "" {
		t.IconCode = req.IconCode
	}
	if len(req.Categories) > 0 {
		t.Categories = req.Categories
	}
	t.Landscape = req.Landscape

	if err := s.mon.Registry().Add(t); err != nil {
		writeError(w, err)
		return
	}
	s.broadcastTemplates()

	added, _ := s.mon.Registry().Get(t.Filename)
	writeJSON(w, http.StatusCreated, templateView{Template: added, SourcePath: added.LocalSourcePath})
}

func (s *Server) handleRenameTemplate(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if !decode(w, r, &req) {
		return
	}
	filename := r.PathValue("filename")
	if err := s.mon.Registry().Rename(filename, req.Name); err != nil {
		writeError(w, err)
		return
	}
	s.broadcastTemplates()

	renamed, _ := s.mon.Registry().Get(filename)
	writeJSON(w, http.StatusOK, templateView{Template: renamed, SourcePath: renamed.LocalSourcePath})
}

func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	filename := r.PathValue("filename")
	marked, removed := s.mon.Registry().MarkForDeletion(filename)
	if marked+removed == 0 {
		if _, ok := s.mon.Registry().Get(filename); !ok {
			writeError(w, fmt.Errorf("%w: %s", templates.ErrNotFound, filename))
			return
		}
	}
	s.broadcastTemplates()
	writeJSON(w, http.StatusOK, deleteResponse{Marked: marked, Removed: removed})
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	result, err := s.coord.Sync(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleBackup(w http.ResponseWriter, r *http.Request) {
	var req backupRequest
	if !decode(w, r, &req) {
		return
	}
	dir := req.Dir
	if dir == "" {
		dir = s.cfg.BackupDir
	}
	if dir == "" {
		writeError(w, device.NewInvalidFileError("backup directory is required", nil))
		return
	}
	abs, err := filepath.Abs(dir)
	if err == nil {
		dir = abs
	}

	result, err := s.coord.Backup(r.Context(), dir)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListKeys(w http.ResponseWriter, _ *http.Request) {
	keys, err := s.keys.ListKeys()
	if err != nil {
		writeError(w, err)
		return
	}
	if keys == nil {
		keys = []device.Key{}
	}
	writeJSON(w, http.StatusOK, keys)
}

func (s *Server) handleGenerateKey(w http.ResponseWriter, _ *http.Request) {
	key, err := s.keys.GenerateKey()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, key)
}

func (s *Server) handleUploadKey(w http.ResponseWriter, r *http.Request) {
	var req uploadKeyRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Address == "" {
		req.Address = device.DefaultUSBAddress
	}
	if err := s.keys.UploadKey(r.Context(), req.KeyPath, req.Address, req.Password); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "uploaded"})
}

func (s *Server) stateBody() stateResponse {
	return stateResponse{
		State:   s.mon.State(),
		Session: s.mon.Session(),
		Busy:    s.mon.Gate().InFlight(),
	}
}

func (s *Server) templatesBody() templatesResponse {
	p := s.mon.Registry().Partition()
	body := templatesResponse{
		Synced:          nonNil(p.Synced),
		Unsynced:        make([]templateView, 0, len(p.Unsynced)),
		DeletionPending: nonNil(p.DeletionPending),
	}
	for _, t := range p.Unsynced {
		body.Unsynced = append(body.Unsynced, templateView{Template: t, SourcePath: t.LocalSourcePath})
	}
	return body
}

func nonNil(list []templates.Template) []templates.Template {
	if list == nil {
		return []templates.Template{}
	}
	return list
}

// decode reads a JSON body into v. An empty body leaves v at its zero value.
// On failure it writes a 400 and returns false.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body: " + err.Error(), Code: "bad_request"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Debug("Failed to write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		logging.Warn("Request failed", zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Code: code, Hint: hintFor(err)})
}
