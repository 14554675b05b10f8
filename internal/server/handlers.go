package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/sells-group/parcel-cli/internal/export"
	"github.com/sells-group/parcel-cli/internal/model"
	"github.com/sells-group/parcel-cli/internal/store"
	"github.com/sells-group/parcel-cli/pkg/appraisal"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("write response failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"jurisdictions": s.deps.Catalog.Len(),
		"searches":      s.deps.Manager.Len(),
	})
}

type jurisdictionResponse struct {
	ID        string `json:"id"`
	HasDetail bool   `json:"has_detail"`
}

func (s *Server) handleJurisdictions(w http.ResponseWriter, _ *http.Request) {
	all := s.deps.Catalog.All()
	out := make([]jurisdictionResponse, len(all))
	for i, j := range all {
		out[i] = jurisdictionResponse{ID: j.ID, HasDetail: j.DetailTemplate != ""}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDetails(w http.ResponseWriter, r *http.Request) {
	if s.deps.Details == nil {
		writeError(w, http.StatusServiceUnavailable, "details lookup not configured")
		return
	}
	j, err := s.deps.Catalog.Get(chi.URLParam(r, "jurisdiction"))
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown jurisdiction")
		return
	}

	p, err := s.deps.Details.Details(r.Context(), j, chi.URLParam(r, "propertyID"))
	switch {
	case errors.Is(err, appraisal.ErrNotFound):
		writeError(w, http.StatusNotFound, "property not found")
		return
	case errors.Is(err, appraisal.ErrNoDetailTemplate):
		writeError(w, http.StatusNotImplemented, "jurisdiction has no detail lookup")
		return
	case err != nil:
		s.log.Warn("details lookup failed", zap.String("jurisdiction", j.ID), zap.Error(err))
		writeError(w, http.StatusBadGateway, "details lookup failed")
		return
	}

	resp := struct {
		*appraisal.Property
		Verdict string `json:"verdict,omitempty"`
	}{Property: p}
	if raw := r.URL.Query().Get("price"); raw != "" {
		price, err := strconv.ParseFloat(raw, 64)
		if err != nil || price < 0 {
			writeError(w, http.StatusBadRequest, "price must be a non-negative number")
			return
		}
		resp.Verdict = string(appraisal.EvaluatePrice(p.AppraisedValue, price))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListSearches(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "history not configured")
		return
	}
	q := r.URL.Query()
	filter := store.SearchFilter{
		State:      q.Get("state"),
		ConsumerID: q.Get("consumer"),
		StreetName: q.Get("street_name"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "offset must be non-negative")
			return
		}
		filter.Offset = n
	}

	runs, err := s.deps.Store.ListSearches(r.Context(), filter)
	if err != nil {
		s.log.Error("list searches failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list searches failed")
		return
	}
	if runs == nil {
		runs = []model.SearchRun{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.collector == nil {
		writeError(w, http.StatusServiceUnavailable, "history not configured")
		return
	}
	since := 24 * time.Hour
	if v := r.URL.Query().Get("since"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "since must be a positive duration")
			return
		}
		since = d
	}
	stats, err := s.collector.Collect(r.Context(), since)
	if err != nil {
		s.log.Error("collect stats failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "collect stats failed")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) loadSearch(w http.ResponseWriter, r *http.Request) (*model.SearchRun, bool) {
	if s.deps.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "history not configured")
		return nil, false
	}
	run, err := s.deps.Store.GetSearch(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "search not found")
		return nil, false
	}
	if err != nil {
		s.log.Error("get search failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "get search failed")
		return nil, false
	}
	return run, true
}

func (s *Server) handleGetSearch(w http.ResponseWriter, r *http.Request) {
	if run, ok := s.loadSearch(w, r); ok {
		writeJSON(w, http.StatusOK, run)
	}
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	run, ok := s.loadSearch(w, r)
	if !ok {
		return
	}
	name := strings.NewReplacer(" ", "_", "/", "_").Replace(run.Criteria.String())
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="parcels_`+name+`.xlsx"`)
	if err := export.Write(w, run.Results); err != nil {
		s.log.Warn("export failed", zap.String("search_id", run.ID), zap.Error(err))
	}
}
