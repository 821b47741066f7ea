package admin

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gobwas/glob"
	"github.com/rs/zerolog/log"

	"github.com/maxpert/pcbc/pool"
	"github.com/maxpert/pcbc/transcoder"
)

// ConnectionCache is the part of the connection cache the admin API inspects
type ConnectionCache interface {
	Snapshot() []pool.HandleInfo
	Counts() (busy, idle int)
	Sweep(maxIdle time.Duration) int
}

// AdminHandlers serves the admin API
type AdminHandlers struct {
	cache   ConnectionCache
	maxIdle time.Duration
}

// NewAdminHandlers creates handlers over cache. maxIdle is used by sweeps that
// do not name their own threshold.
func NewAdminHandlers(cache ConnectionCache, maxIdle time.Duration) *AdminHandlers {
	return &AdminHandlers{
		cache:   cache,
		maxIdle: maxIdle,
	}
}

// handleListConnections lists cached handles, optionally filtered by a glob on
// the connection string and by state
func (h *AdminHandlers) handleListConnections(w http.ResponseWriter, r *http.Request) {
	var matcher glob.Glob
	if pattern := r.URL.Query().Get("match"); pattern != "" {
		g, err := glob.Compile(pattern)
		if err != nil {
			writeErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("invalid match pattern: %v", err))
			return
		}
		matcher = g
	}

	state := r.URL.Query().Get("state")
	if state != "" && state != "busy" && state != "idle" {
		writeErrorResponse(w, http.StatusBadRequest, "state must be busy or idle")
		return
	}

	infos := h.cache.Snapshot()
	result := make([]pool.HandleInfo, 0, len(infos))
	for _, info := range infos {
		if matcher != nil && !matcher.Match(info.ConnString) {
			continue
		}
		if state == "busy" && info.Refs == 0 || state == "idle" && info.Refs > 0 {
			continue
		}
		result = append(result, info)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].ConnString != result[j].ConnString {
			return result[i].ConnString < result[j].ConnString
		}
		return result[i].Username < result[j].Username
	})

	writeJSONResponse(w, result)
}

// handleConnectionStats returns busy and idle handle counts
func (h *AdminHandlers) handleConnectionStats(w http.ResponseWriter, r *http.Request) {
	busy, idle := h.cache.Counts()
	writeJSONResponse(w, map[string]interface{}{
		"busy":  busy,
		"idle":  idle,
		"total": busy + idle,
	})
}

// handleSweep destroys idle handles. The threshold comes from max_idle
// (a Go duration or whole seconds) or the configured default.
func (h *AdminHandlers) handleSweep(w http.ResponseWriter, r *http.Request) {
	maxIdle, err := parseMaxIdle(r, h.maxIdle)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	destroyed := h.cache.Sweep(maxIdle)
	log.Info().Int("destroyed", destroyed).Dur("max_idle", maxIdle).Msg("Admin sweep")

	writeJSONResponse(w, map[string]interface{}{
		"destroyed": destroyed,
		"max_idle":  maxIdle.String(),
	})
}

// handleFlags explains a flags word
func (h *AdminHandlers) handleFlags(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "flags")
	v, err := strconv.ParseUint(raw, 0, 32)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "invalid flags")
		return
	}

	f := transcoder.UnpackFlags(uint32(v))
	writeJSONResponse(w, map[string]interface{}{
		"flags":       fmt.Sprintf("0x%08x", uint32(v)),
		"format":      f.Format.String(),
		"kind":        f.Kind.String(),
		"compressed":  f.Compressed,
		"compression": f.Compression.String(),
		"summary":     f.String(),
	})
}

func parseMaxIdle(r *http.Request, fallback time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(r.URL.Query().Get("max_idle"))
	if s == "" {
		return fallback, nil
	}

	if secs, err := strconv.Atoi(s); err == nil {
		if secs < 0 {
			return 0, fmt.Errorf("max_idle must be >= 0")
		}
		return time.Duration(secs) * time.Second, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid max_idle parameter: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("max_idle must be >= 0")
	}
	return d, nil
}

// writeJSONResponse writes a successful JSON response
func writeJSONResponse(w http.ResponseWriter, data interface{}) {
	response := map[string]interface{}{
		"data": data,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error JSON response
func writeErrorResponse(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	response := map[string]interface{}{
		"error": message,
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Error().Err(err).Msg("Failed to encode error response")
	}
}
