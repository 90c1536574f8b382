package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/kashisync/kashisync/pkg/merchant"
	"github.com/kashisync/kashisync/pkg/runner"
)

const defaultLimit = 50

type merchantInfo struct {
	merchant.Profile
	Active bool `json:"active"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, merchant.ErrUnknownMerchant), errors.Is(err, runner.ErrNoRuns):
		status = http.StatusNotFound
	case errors.Is(err, runner.ErrRunActive):
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func limitParam(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return defaultLimit
	}
	return n
}

func (s *Server) handleMerchants(w http.ResponseWriter, r *http.Request) {
	out := make([]merchantInfo, 0, len(s.Merchants))
	for _, name := range s.Merchants.Names() {
		out = append(out, merchantInfo{Profile: s.Merchants[name], Active: s.Runs.Active(name)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("merchant")
	if name == "" {
		http.Error(w, "merchant is required", http.StatusBadRequest)
		return
	}
	summary, err := s.Runs.Status(r.Context(), name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("merchant")
	if name == "" {
		http.Error(w, "merchant is required", http.StatusBadRequest)
		return
	}
	started, err := s.Runs.StartRun(name)
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusAccepted
	if !started {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]interface{}{"merchant": name, "started": started})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.DB.ListRuns(r.Context(), r.URL.Query().Get("merchant"), limitParam(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleChanges(w http.ResponseWriter, r *http.Request) {
	changes, err := s.DB.ListRecentChanges(r.Context(), limitParam(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, changes)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.DB.GetStats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
