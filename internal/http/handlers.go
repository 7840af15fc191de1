package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"billsplit/internal/core"
	"billsplit/internal/mirror"
	"billsplit/internal/services"
)

type saveRequest struct {
	Month     string            `json:"month"`
	Year      int               `json:"year"`
	TotalBill string            `json:"totalBill"`
	Paid      map[string]string `json:"paid"`
}

type ledgerResponse struct {
	Records  []core.MonthlyRecord `json:"records"`
	Balances core.Balances        `json:"balances"`
	CanUndo  bool                 `json:"canUndo"`
	CanRedo  bool                 `json:"canRedo"`
	Revision int64                `json:"revision"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// insightsUnavailable is served when summary generation fails.
const insightsUnavailable = "Could not generate insights at this time."

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.writeLedger(w, http.StatusOK)
	case http.MethodPost:
		s.handleSaveMonth(w, r)
	case http.MethodDelete:
		s.handleDeleteMonth(w, r)
	default:
		w.Header().Set("Allow", "GET, POST, DELETE")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleSaveMonth(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "malformed request body")
		return
	}

	totalBill, err := core.ParseAmount(req.TotalBill)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	paid := core.Balances{}
	for id, raw := range req.Paid {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		amount, err := core.ParseAmount(raw)
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		paid[core.ParticipantID(id)] = amount
	}

	rec, err := s.ledger.SaveMonth(r.Context(), req.Month, req.Year, totalBill, paid)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(rec); err != nil {
		slog.ErrorContext(r.Context(), "Encode record response failed", "error", err)
	}
}

func (s *Server) handleDeleteMonth(w http.ResponseWriter, r *http.Request) {
	label := strings.TrimSpace(r.URL.Query().Get("month"))
	if label == "" {
		writeError(w, http.StatusUnprocessableEntity, "validation", "month query parameter is required")
		return
	}

	if err := s.ledger.DeleteMonth(r.Context(), label); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	s.handleTimeTravel(w, r, s.ledger.Undo)
}

func (s *Server) handleRedo(w http.ResponseWriter, r *http.Request) {
	s.handleTimeTravel(w, r, s.ledger.Redo)
}

func (s *Server) handleTimeTravel(w http.ResponseWriter, r *http.Request, step func(ctx context.Context) (bool, error)) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	applied, err := step(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	resp := struct {
		Applied bool `json:"applied"`
		ledgerResponse
	}{Applied: applied, ledgerResponse: s.ledgerSnapshot()}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(r.Context(), "Encode undo/redo response failed", "error", err)
	}
}

func (s *Server) handleSyncConnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	// An existing remote ledger replaces local state unless the caller
	// opts out with {"adopt": false}.
	req := struct {
		Adopt *bool `json:"adopt"`
	}{}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	adopt := req.Adopt == nil || *req.Adopt

	adopted, err := s.ledger.ConnectMirror(r.Context(), adopt)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	resp := struct {
		Adopted bool `json:"adopted"`
		ledgerResponse
	}{Adopted: adopted, ledgerResponse: s.ledgerSnapshot()}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(r.Context(), "Encode connect response failed", "error", err)
	}
}

func (s *Server) handleSyncNow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if err := s.ledger.SyncNow(r.Context()); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.summarizer == nil {
		writeError(w, http.StatusServiceUnavailable, "sync", "insights not configured")
		return
	}

	revision := s.ledger.Revision()

	s.insightsMu.Lock()
	if s.insightsValid && s.insightsRevision == revision {
		text := s.insightsText
		s.insightsMu.Unlock()
		writeInsights(w, text, true)
		return
	}
	s.insightsMu.Unlock()

	text, err := s.summarizer.Summarize(r.Context(), s.ledger.Records())
	if err != nil {
		// Degrade to a fixed apology rather than failing the page; the
		// result is not cached so the next request retries.
		slog.ErrorContext(r.Context(), "Insights generation failed", "error", err)
		writeInsights(w, insightsUnavailable, false)
		return
	}

	s.insightsMu.Lock()
	s.insightsRevision = revision
	s.insightsText = text
	s.insightsValid = true
	s.insightsMu.Unlock()

	writeInsights(w, text, false)
}

func writeInsights(w http.ResponseWriter, text string, cached bool) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		Summary string `json:"summary"`
		Cached  bool   `json:"cached"`
	}{Summary: text, Cached: cached})
}

func (s *Server) ledgerSnapshot() ledgerResponse {
	records := s.ledger.Records()
	if records == nil {
		records = []core.MonthlyRecord{}
	}
	return ledgerResponse{
		Records:  records,
		Balances: s.ledger.LatestBalances(),
		CanUndo:  s.ledger.CanUndo(),
		CanRedo:  s.ledger.CanRedo(),
		Revision: s.ledger.Revision(),
	}
}

func (s *Server) writeLedger(w http.ResponseWriter, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(s.ledgerSnapshot())
}

// writeDomainError maps domain errors onto HTTP statuses and a stable error
// kind the client can branch on.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, core.ErrMonthRequired),
		errors.Is(err, core.ErrBillNotPositive):
		writeError(w, http.StatusUnprocessableEntity, "validation", err.Error())
	case errors.Is(err, core.ErrInvalidMonthLabel),
		errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrNegativeBill),
		errors.Is(err, core.ErrZeroWeightUnits),
		errors.Is(err, core.ErrUnknownParticipant):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, mirror.ErrAuth):
		writeError(w, http.StatusUnauthorized, "auth", err.Error())
	case errors.Is(err, services.ErrMirrorUnavailable):
		writeError(w, http.StatusConflict, "sync", err.Error())
	case errors.Is(err, mirror.ErrSync):
		writeError(w, http.StatusBadGateway, "sync", err.Error())
	default:
		slog.ErrorContext(r.Context(), "Unhandled request error",
			"method", r.Method, "url", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}

func writeError(w http.ResponseWriter, status int, kind, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: msg, Kind: kind})
}
