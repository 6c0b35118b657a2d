package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gwlsn/trimsilence/internal/browse"
	"github.com/gwlsn/trimsilence/internal/config"
	"github.com/gwlsn/trimsilence/internal/ffmpeg"
	"github.com/gwlsn/trimsilence/internal/jobs"
	"github.com/gwlsn/trimsilence/internal/logger"
	"github.com/gwlsn/trimsilence/internal/store"
)

// defaultHistoryLimit caps GET /api/jobs when no limit is given.
const defaultHistoryLimit = 50

// Runner is the job controller as seen by the API. Implemented by
// *jobs.Controller.
type Runner interface {
	Start(ctx context.Context, params jobs.Params, done func(*jobs.Result, error)) (*jobs.Job, error)
	Cancel() bool
	Active() *jobs.Job
	Subscribe() chan jobs.JobEvent
	Unsubscribe(ch chan jobs.JobEvent)
	Policy() ffmpeg.EncoderPolicy
}

// Handler provides HTTP API handlers
type Handler struct {
	runner  Runner
	history store.Store
	browser *browse.Browser
	cfg     *config.Config
	cfgPath string

	cfgMu sync.RWMutex // Protects cfg against PUT /api/config
	wg    sync.WaitGroup
}

// NewHandler creates a new API handler. history and browser may be nil.
func NewHandler(runner Runner, history store.Store, browser *browse.Browser, cfg *config.Config, cfgPath string) *Handler {
	return &Handler{
		runner:  runner,
		history: history,
		browser: browser,
		cfg:     cfg,
		cfgPath: cfgPath,
	}
}

// Shutdown cancels the running job and waits for it to unwind.
func (h *Handler) Shutdown() {
	h.runner.Cancel()
	h.wg.Wait()
}

// response helpers

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// Browse handles GET /api/browse?path=...
func (h *Handler) Browse(w http.ResponseWriter, r *http.Request) {
	if h.browser == nil {
		writeError(w, http.StatusNotFound, "browsing is disabled")
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		path = h.browser.Root()
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	result, err := h.browser.Browse(ctx, path)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Encoders handles GET /api/encoders
func (h *Handler) Encoders(w http.ResponseWriter, r *http.Request) {
	policy := h.runner.Policy()

	h.cfgMu.RLock()
	useHW := h.cfg.UseHardwareEncoder
	h.cfgMu.RUnlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"encoders":  policy.Candidates,
		"hardware":  policy.Hardware,
		"software":  policy.Software,
		"selected":  policy.Select(useHW),
		"qualities": ffmpeg.Qualities(),
	})
}

// CreateJobRequest is the request body for starting a job. Unset detection
// fields fall back to the server config.
type CreateJobRequest struct {
	InputPath          string   `json:"input_path"`
	OutputPath         string   `json:"output_path,omitempty"`
	ThresholdDB        *float64 `json:"threshold_db,omitempty"`
	MinSilenceDuration *float64 `json:"min_silence_duration,omitempty"`
	Padding            *float64 `json:"padding,omitempty"`
	Quality            *string  `json:"quality,omitempty"`
	NormalizeAudio     *bool    `json:"normalize_audio,omitempty"`
	UseHardwareEncoder *bool    `json:"use_hardware_encoder,omitempty"`
}

// params merges the request over the config defaults.
func (h *Handler) params(req CreateJobRequest) jobs.Params {
	h.cfgMu.RLock()
	p := jobs.Params{
		InputPath:          req.InputPath,
		OutputPath:         req.OutputPath,
		ThresholdDB:        h.cfg.ThresholdDB,
		MinSilenceDuration: h.cfg.MinSilenceDuration,
		Padding:            h.cfg.Padding,
		Quality:            h.cfg.Quality,
		NormalizeAudio:     h.cfg.NormalizeAudio,
		UseHardwareEncoder: h.cfg.UseHardwareEncoder,
	}
	h.cfgMu.RUnlock()

	if p.OutputPath == "" && p.InputPath != "" {
		p.OutputPath = jobs.DefaultOutputPath(p.InputPath)
	}
	if req.ThresholdDB != nil {
		p.ThresholdDB = *req.ThresholdDB
	}
	if req.MinSilenceDuration != nil {
		p.MinSilenceDuration = *req.MinSilenceDuration
	}
	if req.Padding != nil {
		p.Padding = *req.Padding
	}
	if req.Quality != nil {
		p.Quality = *req.Quality
	}
	if req.NormalizeAudio != nil {
		p.NormalizeAudio = *req.NormalizeAudio
	}
	if req.UseHardwareEncoder != nil {
		p.UseHardwareEncoder = *req.UseHardwareEncoder
	}
	return p
}

// CreateJob handles POST /api/jobs
// Responds once the job is accepted; progress and the result arrive via SSE.
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	params := h.params(req)
	if h.browser != nil {
		if !h.browser.Contains(params.InputPath) || !h.browser.Contains(params.OutputPath) {
			writeError(w, http.StatusForbidden, "paths must be inside the media directory")
			return
		}
	}
	if err := params.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// The job outlives the POST, so it is detached from the request context.
	h.wg.Add(1)
	job, err := h.runner.Start(context.Background(), params, func(result *jobs.Result, err error) {
		defer h.wg.Done()
		switch {
		case err != nil:
			logger.Error("Job failed", "input", params.InputPath, "error", err)
		case result != nil && result.Success && h.browser != nil:
			h.browser.InvalidateCache(result.OutputPath)
		}
	})
	if err != nil {
		h.wg.Done()
		switch {
		case errors.Is(err, jobs.ErrBusy):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, jobs.ErrInvalidParams):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"status": "started",
		"job":    job,
		"params": params,
	})
}

// CurrentJob handles GET /api/jobs/current
func (h *Handler) CurrentJob(w http.ResponseWriter, r *http.Request) {
	job := h.runner.Active()
	if job == nil {
		writeError(w, http.StatusNotFound, "no job running")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// CancelCurrent handles DELETE /api/jobs/current
func (h *Handler) CancelCurrent(w http.ResponseWriter, r *http.Request) {
	if !h.runner.Cancel() {
		writeError(w, http.StatusNotFound, "no job running")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})
}

// ListJobs handles GET /api/jobs?limit=N
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": []*jobs.Job{}, "active": h.runner.Active()})
		return
	}

	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit: %s", v))
			return
		}
		limit = n
	}

	list, err := h.history.ListJobs(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if list == nil {
		list = []*jobs.Job{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":   list,
		"active": h.runner.Active(),
	})
}

// GetJob handles GET /api/jobs/{id}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "job ID required")
		return
	}

	if active := h.runner.Active(); active != nil && active.ID == id {
		writeJSON(w, http.StatusOK, active)
		return
	}
	if h.history == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	job, err := h.history.GetJob(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if job == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// DeleteJob handles DELETE /api/jobs/{id}, removing a finished job from
// history.
func (h *Handler) DeleteJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if active := h.runner.Active(); active != nil && active.ID == id {
		writeError(w, http.StatusConflict, "job is running; cancel it first")
		return
	}
	if h.history == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err := h.history.DeleteJob(id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Stats handles GET /api/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeJSON(w, http.StatusOK, store.Stats{})
		return
	}
	stats, err := h.history.Stats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// GetConfig handles GET /api/config
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	h.cfgMu.RLock()
	defer h.cfgMu.RUnlock()

	// Binary and temp paths stay server-side
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"media_path":           h.cfg.MediaPath,
		"threshold_db":         h.cfg.ThresholdDB,
		"min_silence_duration": h.cfg.MinSilenceDuration,
		"padding":              h.cfg.Padding,
		"quality":              h.cfg.Quality,
		"normalize_audio":      h.cfg.NormalizeAudio,
		"use_hardware_encoder": h.cfg.UseHardwareEncoder,
		"has_temp_path":        h.cfg.TempPath != "",
	})
}

// UpdateConfigRequest is the request body for updating config
type UpdateConfigRequest struct {
	ThresholdDB        *float64 `json:"threshold_db,omitempty"`
	MinSilenceDuration *float64 `json:"min_silence_duration,omitempty"`
	Padding            *float64 `json:"padding,omitempty"`
	Quality            *string  `json:"quality,omitempty"`
	NormalizeAudio     *bool    `json:"normalize_audio,omitempty"`
	UseHardwareEncoder *bool    `json:"use_hardware_encoder,omitempty"`
}

// UpdateConfig handles PUT /api/config. Values are clamped the same way as
// the config file; the response lists any adjustments.
func (h *Handler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req UpdateConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	h.cfgMu.Lock()
	defer h.cfgMu.Unlock()

	next := *h.cfg
	if req.ThresholdDB != nil {
		next.ThresholdDB = *req.ThresholdDB
	}
	if req.MinSilenceDuration != nil {
		next.MinSilenceDuration = *req.MinSilenceDuration
	}
	if req.Padding != nil {
		next.Padding = *req.Padding
	}
	if req.Quality != nil {
		next.Quality = *req.Quality
	}
	if req.NormalizeAudio != nil {
		next.NormalizeAudio = *req.NormalizeAudio
	}
	if req.UseHardwareEncoder != nil {
		next.UseHardwareEncoder = *req.UseHardwareEncoder
	}

	adjusted, err := next.Validate()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Persist config to disk
	if h.cfgPath != "" {
		if err := next.Save(h.cfgPath); err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to save config: %v", err))
			return
		}
	}
	*h.cfg = next

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "updated",
		"adjusted": adjusted,
	})
}

// ClearCache handles POST /api/cache/clear
func (h *Handler) ClearCache(w http.ResponseWriter, r *http.Request) {
	if h.browser != nil {
		h.browser.ClearCache()
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cache cleared"})
}
