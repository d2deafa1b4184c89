// Package server is the operator-facing control plane: a JSON API over the
// activation loop plus a websocket event stream for dashboards.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"

	"awakener/pkg/adapter"
	"awakener/pkg/model"
	"awakener/pkg/repository"
	"awakener/pkg/tool/skill"
	"awakener/pkg/usecase/activation"
	"awakener/pkg/usecase/snapshot"
	"awakener/pkg/utils/logging"
)

// maxPersonaBytes bounds PUT /api/prompt payloads.
const maxPersonaBytes = 64 * 1024

type Server struct {
	ctrl        *activation.Controller
	repo        repository.Repository
	hub         *Hub
	storage     adapter.Storage
	auditor     *snapshot.Service
	runLog      *logging.RunLog
	personaPath string
	skillsDir   string
}

type Option func(*Server)

func WithAuditor(auditor *snapshot.Service) Option {
	return func(s *Server) { s.auditor = auditor }
}

func WithStorage(storage adapter.Storage) Option {
	return func(s *Server) { s.storage = storage }
}

func WithRunLog(runLog *logging.RunLog) Option {
	return func(s *Server) { s.runLog = runLog }
}

func WithPersonaPath(path string) Option {
	return func(s *Server) { s.personaPath = path }
}

func WithSkillsDir(dir string) Option {
	return func(s *Server) { s.skillsDir = dir }
}

func New(ctrl *activation.Controller, repo repository.Repository, hub *Hub, opts ...Option) *Server {
	s := &Server{ctrl: ctrl, repo: repo, hub: hub}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Hub returns the event hub so it can be wired as the loop's sink.
func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/agent/start", s.handleStart)
	mux.HandleFunc("POST /api/agent/stop", s.handleStop)
	mux.HandleFunc("POST /api/agent/restart", s.handleRestart)
	mux.HandleFunc("GET /api/agent/status", s.handleStatus)
	mux.HandleFunc("POST /api/agent/inspiration", s.handleInspiration)

	mux.HandleFunc("GET /api/timeline", s.handleTimelineList)
	mux.HandleFunc("GET /api/timeline/{round}", s.handleTimelineGet)
	mux.HandleFunc("GET /api/timeline/{round}/actions", s.handleTimelineActions)
	mux.HandleFunc("DELETE /api/timeline/{round}", s.handleTimelineDelete)

	mux.HandleFunc("GET /api/notebook", s.handleNotebookList)
	mux.HandleFunc("GET /api/notebook/recent", s.handleNotebookRecent)

	mux.HandleFunc("GET /api/snapshot", s.handleSnapshot)
	mux.HandleFunc("GET /api/prompt", s.handlePromptGet)
	mux.HandleFunc("PUT /api/prompt", s.handlePromptPut)
	mux.HandleFunc("GET /api/skills", s.handleSkillList)
	mux.HandleFunc("GET /api/skills/{name}", s.handleSkillGet)
	mux.HandleFunc("GET /api/logs", s.handleLogs)

	if s.hub != nil {
		mux.Handle("GET /ws", s.hub)
	}

	return mux
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Start(r.Context()); err != nil {
		if errors.Is(err, activation.ErrAlreadyRunning) || errors.Is(err, activation.ErrStillStopping) {
			respondError(w, http.StatusConflict, err)
			return
		}
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "started"})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.ctrl.Stop()
	respondJSON(w, http.StatusOK, map[string]any{
		"status":  "stopping",
		"message": "agent will stop after the current round",
	})
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Restart(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "restarted"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) handleInspiration(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if req.Message == "" {
		respondMessage(w, http.StatusBadRequest, "message is required")
		return
	}
	if err := s.ctrl.Inspire(r.Context(), req.Message); err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "queued"})
}

func (s *Server) handleTimelineList(w http.ResponseWriter, r *http.Request) {
	offset, limit := pagination(r, 20)
	entries, total, err := s.repo.ListTimeline(r.Context(), offset, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	if entries == nil {
		entries = []*model.TimelineEntry{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"total":   total,
		"offset":  offset,
		"limit":   limit,
	})
}

func (s *Server) handleTimelineGet(w http.ResponseWriter, r *http.Request) {
	round, ok := roundParam(w, r)
	if !ok {
		return
	}
	entry, err := s.repo.GetTimeline(r.Context(), round)
	if err != nil {
		if errors.Is(err, repository.ErrRoundNotFound) {
			respondMessage(w, http.StatusNotFound, "round not found")
			return
		}
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, entry)
}

func (s *Server) handleTimelineDelete(w http.ResponseWriter, r *http.Request) {
	round, ok := roundParam(w, r)
	if !ok {
		return
	}
	if err := s.repo.DeleteRound(r.Context(), round); err != nil {
		if errors.Is(err, repository.ErrRoundNotFound) {
			respondMessage(w, http.StatusNotFound, "round not found")
			return
		}
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	if s.storage != nil {
		if err := s.storage.Delete(r.Context(), activation.ActionLogKey(round)); err != nil {
			logging.From(r.Context()).Warn("failed to delete action log blob",
				"round", round, "error", err)
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "deleted", "round": round})
}

// handleTimelineActions streams the raw tool-call blob saved for a round.
func (s *Server) handleTimelineActions(w http.ResponseWriter, r *http.Request) {
	round, ok := roundParam(w, r)
	if !ok {
		return
	}
	if s.storage == nil {
		respondMessage(w, http.StatusNotFound, "action log storage not configured")
		return
	}
	rc, err := s.storage.Get(r.Context(), activation.ActionLogKey(round))
	if err != nil {
		respondMessage(w, http.StatusNotFound, "no action log for round")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		logging.From(r.Context()).Warn("failed to stream action log",
			"round", round, "error", err)
	}
}

func (s *Server) handleNotebookList(w http.ResponseWriter, r *http.Request) {
	offset, limit := pagination(r, 20)
	entries, total, err := s.repo.ListNotebook(r.Context(), offset, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	if entries == nil {
		entries = []*model.NotebookEntry{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"total":   total,
		"offset":  offset,
		"limit":   limit,
	})
}

func (s *Server) handleNotebookRecent(w http.ResponseWriter, r *http.Request) {
	n := queryInt(r, "n", 3)
	entries, err := s.repo.RecentNotebook(r.Context(), n)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	if entries == nil {
		entries = []*model.NotebookEntry{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.auditor == nil {
		respondMessage(w, http.StatusNotFound, "snapshot auditor is not enabled")
		return
	}
	respondJSON(w, http.StatusOK, s.auditor.Load())
}

func (s *Server) handlePromptGet(w http.ResponseWriter, r *http.Request) {
	if s.personaPath == "" {
		respondMessage(w, http.StatusNotFound, "persona file is not configured")
		return
	}
	raw, err := os.ReadFile(s.personaPath)
	if err != nil {
		if os.IsNotExist(err) {
			respondJSON(w, http.StatusOK, map[string]any{"prompt": ""})
			return
		}
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"prompt": string(raw)})
}

func (s *Server) handlePromptPut(w http.ResponseWriter, r *http.Request) {
	if s.personaPath == "" {
		respondMessage(w, http.StatusNotFound, "persona file is not configured")
		return
	}
	var req struct {
		Prompt string `json:"prompt"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxPersonaBytes)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if req.Prompt == "" {
		respondMessage(w, http.StatusBadRequest, "prompt is required")
		return
	}
	if err := os.WriteFile(s.personaPath, []byte(req.Prompt), 0644); err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":  "saved",
		"message": "the new persona takes effect from the next round",
	})
}

func (s *Server) handleSkillList(w http.ResponseWriter, r *http.Request) {
	skills, err := skill.Scan(s.skillsDir)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	if skills == nil {
		skills = []*model.Skill{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"skills": skills})
}

func (s *Server) handleSkillGet(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	skills, err := skill.Scan(s.skillsDir)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	for _, sk := range skills {
		if sk.Name == name {
			respondJSON(w, http.StatusOK, sk)
			return
		}
	}
	respondMessage(w, http.StatusNotFound, "skill not found")
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if s.runLog == nil {
		respondMessage(w, http.StatusNotFound, "run log is not enabled")
		return
	}
	lines, err := s.runLog.Tail(queryInt(r, "lines", 100))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	if lines == nil {
		lines = []string{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"lines": lines})
}

func roundParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	round, err := strconv.ParseInt(r.PathValue("round"), 10, 64)
	if err != nil || round < 1 {
		respondMessage(w, http.StatusBadRequest, "invalid round number")
		return 0, false
	}
	return round, true
}

func pagination(r *http.Request, defaultLimit int) (offset, limit int) {
	return queryInt(r, "offset", 0), queryInt(r, "limit", defaultLimit)
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func respondJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func respondMessage(w http.ResponseWriter, code int, msg string) {
	respondJSON(w, code, map[string]any{"error": msg})
}

func respondError(w http.ResponseWriter, code int, err error) {
	respondMessage(w, code, err.Error())
}
