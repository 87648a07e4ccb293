// Package server exposes the diagnosis pipeline and knowledge base over a
// JSON HTTP API.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/faultlinehq/faultline/internal/database"
	"github.com/faultlinehq/faultline/internal/knowledge"
	"github.com/faultlinehq/faultline/internal/pipeline"
	"github.com/faultlinehq/faultline/internal/quota"
	"github.com/faultlinehq/faultline/internal/synth"
)

// Server is the HTTP server for diagnosis and knowledge-base access.
type Server struct {
	db   *database.DB
	pipe *pipeline.Pipeline
	mux  *http.ServeMux
}

// New creates a new Server.
func New(db *database.DB, pipe *pipeline.Pipeline) *Server {
	s := &Server{db: db, pipe: pipe, mux: http.NewServeMux()}
	s.routes()
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Serve starts the HTTP server on the given port and blocks.
func Serve(db *database.DB, pipe *pipeline.Pipeline, port int) error {
	s := New(db, pipe)
	return http.ListenAndServe(fmt.Sprintf(":%d", port), s.Handler())
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /api/diagnose", s.handleDiagnose)
	s.mux.HandleFunc("POST /api/search", s.handleSearch)
	s.mux.HandleFunc("GET /api/faults", s.handleListFaults)
	s.mux.HandleFunc("GET /api/faults/{id}", s.handleGetFault)
	s.mux.HandleFunc("POST /api/faults/{id}/rate", s.handleRateFault)
	s.mux.HandleFunc("GET /api/sources", s.handleListSources)
	s.mux.HandleFunc("GET /api/history", s.handleHistory)
}

type diagnoseRequest struct {
	AccountID        int64   `json:"accountId"`
	DeviceType       string  `json:"deviceType"`
	Manufacturer     string  `json:"manufacturer"`
	Model            string  `json:"model"`
	FaultDescription string  `json:"faultDescription"`
	Symptoms         string  `json:"symptoms"`
	ErrorCodes       string  `json:"errorCodes"`
	DocumentIDs      []int64 `json:"documentIds"`
	Save             bool    `json:"save"`
}

func (s *Server) handleDiagnose(w http.ResponseWriter, r *http.Request) {
	var req diagnoseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := s.pipe.Diagnose(r.Context(), &synth.Request{
		AccountID:        req.AccountID,
		DeviceType:       req.DeviceType,
		Manufacturer:     req.Manufacturer,
		Model:            req.Model,
		FaultDescription: req.FaultDescription,
		Symptoms:         req.Symptoms,
		ErrorCodes:       req.ErrorCodes,
		DocumentIDs:      req.DocumentIDs,
		Save:             req.Save,
	})
	if err != nil {
		writePipelineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type searchRequest struct {
	AccountID    int64  `json:"accountId"`
	Query        string `json:"query"`
	Save         bool   `json:"save"`
	DeviceType   string `json:"deviceType"`
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := s.pipe.Search(r.Context(), req.AccountID, req.Query, req.Save,
		req.DeviceType, req.Manufacturer, req.Model)
	if err != nil {
		writePipelineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type faultJSON struct {
	ID                  int64    `json:"id"`
	DeviceType          string   `json:"deviceType"`
	Manufacturer        string   `json:"manufacturer"`
	Model               string   `json:"model"`
	FaultDescription    string   `json:"faultDescription"`
	Symptoms            *string  `json:"symptoms,omitempty"`
	ErrorCodes          *string  `json:"errorCodes,omitempty"`
	RootCause           string   `json:"rootCause"`
	Solution            string   `json:"solution"`
	PartsRequired       []string `json:"partsRequired"`
	EstimatedRepairTime *string  `json:"estimatedRepairTime,omitempty"`
	Difficulty          string   `json:"difficulty"`
	Views               int      `json:"views"`
	Helpful             int      `json:"helpful"`
	NotHelpful          int      `json:"notHelpful"`
	Provenance          string   `json:"provenance"`
	SourceWebsite       *string  `json:"sourceWebsite,omitempty"`
	LinkedFaultIDs      []int64  `json:"linkedFaultIds,omitempty"`
}

func toFaultJSON(f *database.FaultRecord) faultJSON {
	return faultJSON{
		ID:                  f.ID,
		DeviceType:          f.DeviceType,
		Manufacturer:        f.Manufacturer,
		Model:               f.Model,
		FaultDescription:    f.FaultDescription,
		Symptoms:            f.Symptoms,
		ErrorCodes:          f.ErrorCodes,
		RootCause:           f.RootCause,
		Solution:            f.Solution,
		PartsRequired:       f.PartsRequired,
		EstimatedRepairTime: f.EstimatedRepairTime,
		Difficulty:          f.Difficulty,
		Views:               f.Views,
		Helpful:             f.Helpful,
		NotHelpful:          f.NotHelpful,
		Provenance:          f.Provenance,
		SourceWebsite:       f.SourceWebsite,
	}
}

func (s *Server) handleListFaults(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)
	offset := queryInt(r, "offset", 0)

	faults, err := s.db.ListFaults(limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing faults failed")
		return
	}

	out := make([]faultJSON, 0, len(faults))
	for i := range faults {
		out = append(out, toFaultJSON(&faults[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"faults": out})
}

func (s *Server) handleGetFault(w http.ResponseWriter, r *http.Request) {
	faultID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid fault id")
		return
	}

	fault, err := s.db.GetFaultByID(faultID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "loading fault failed")
		return
	}
	if fault == nil {
		writeError(w, http.StatusNotFound, "fault not found")
		return
	}

	// Reads count as views; popularity drives retrieval ordering.
	if err := s.db.IncrementFaultViews(faultID); err != nil {
		log.Printf("Failed to bump views for fault %d: %v", faultID, err)
	}

	out := toFaultJSON(fault)
	out.LinkedFaultIDs, _ = s.db.GetLinkedFaultIDs(faultID)
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRateFault(w http.ResponseWriter, r *http.Request) {
	faultID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid fault id")
		return
	}

	var req struct {
		Helpful bool `json:"helpful"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	fault, err := s.db.GetFaultByID(faultID)
	if err != nil || fault == nil {
		writeError(w, http.StatusNotFound, "fault not found")
		return
	}

	if err := s.db.RateFault(faultID, req.Helpful); err != nil {
		writeError(w, http.StatusInternalServerError, "rating failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.db.GetAllSources()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing sources failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": sources})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	accountID := int64(queryInt(r, "accountId", 0))
	if accountID == 0 {
		writeError(w, http.StatusBadRequest, "accountId is required")
		return
	}
	limit := queryInt(r, "limit", 50)

	entries, err := s.db.GetQueryHistory(accountID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "loading history failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": entries})
}

// writePipelineError maps the error taxonomy onto HTTP statuses so callers
// can distinguish retryable failures from final ones.
func writePipelineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pipeline.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, quota.ErrQuotaExceeded):
		writeError(w, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, quota.ErrUnknownAccount):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, synth.ErrSynthesisFailed):
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, knowledge.ErrPersistenceFailed):
		// The diagnosis may have succeeded; the caller must know it was
		// not saved.
		writeError(w, http.StatusInternalServerError, "result was not saved: "+err.Error())
	default:
		log.Printf("Unhandled pipeline error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
