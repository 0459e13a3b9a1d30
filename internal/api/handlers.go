package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitescan/internal/catalog"
	"github.com/JakeFAU/sitescan/internal/opportunity"
	"github.com/JakeFAU/sitescan/internal/scan"
	"github.com/JakeFAU/sitescan/internal/scheduler"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
)

type scanResponse struct {
	Status      string                `json:"status"`
	Found       int                   `json:"found"`
	New         int                   `json:"new"`
	Errors      int                   `json:"errors"`
	Deactivated int64                 `json:"deactivated"`
	Runs        []opportunity.ScanRun `json:"runs"`
	Alerts      any                   `json:"alerts"`
}

type sourceDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	NeedsAPIKey bool   `json:"needs_api_key"`
	HasAPIKey   bool   `json:"has_api_key"`
}

// triggerScan runs one cycle synchronously. Source failures are reported in
// the runs; the request only fails when the cycle itself fails.
func (s *Server) triggerScan(w http.ResponseWriter, r *http.Request) {
	sources := splitList(r.URL.Query().Get("sources"))
	for _, id := range sources {
		if _, ok := s.lookupSource(id); !ok {
			writeError(w, http.StatusBadRequest, "unknown source: "+id)
			return
		}
	}
	res, err := s.deps.Runner.RunCycle(r.Context(), scheduler.CycleRequest{
		Scan: scan.Request{Sources: sources, Keywords: s.deps.Keywords, State: s.deps.State},
	})
	if err != nil {
		s.logger.Error("scan trigger failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "scan failed")
		return
	}
	runs := res.Runs
	if runs == nil {
		runs = []opportunity.ScanRun{}
	}
	writeJSON(w, http.StatusOK, scanResponse{
		Status:      "complete",
		Found:       res.Found,
		New:         res.New,
		Errors:      res.Errors,
		Deactivated: res.Deactivated,
		Runs:        runs,
		Alerts:      res.Alerts,
	})
}

func (s *Server) processAlerts(w http.ResponseWriter, r *http.Request) {
	sum, err := s.deps.Runner.ProcessAlerts(r.Context())
	if err != nil {
		s.logger.Error("alert processing failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "alert processing failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "complete", "alerts": sum})
}

func (s *Server) scanHistory(w http.ResponseWriter, r *http.Request) {
	limit, _, err := parseLimitOffset(r, defaultHistoryLimit, maxHistoryLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	runs, err := s.deps.Store.ListScanRuns(r.Context(), limit)
	if err != nil {
		s.logger.Error("list scan runs failed", zap.Error(err))
		writeError(w, statusFor(err), "failed to list scan runs")
		return
	}
	if runs == nil {
		runs = []opportunity.ScanRun{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) listSources(w http.ResponseWriter, _ *http.Request) {
	srcs := s.deps.Sources.Sources()
	out := make([]sourceDTO, 0, len(srcs))
	for _, src := range srcs {
		out = append(out, sourceDTO{
			ID:          src.ID,
			Name:        src.Name,
			NeedsAPIKey: src.NeedsAPIKey,
			HasAPIKey:   src.HasAPIKey,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": out})
}

func (s *Server) lookupSource(id string) (string, bool) {
	for _, src := range s.deps.Sources.Sources() {
		if src.ID == id {
			return src.ID, true
		}
	}
	return "", false
}

// callerCriteria resolves the profile named by SubscriberHeader. No header
// means no criteria.
func (s *Server) callerCriteria(r *http.Request) (opportunity.Criteria, error) {
	id := strings.TrimSpace(r.Header.Get(SubscriberHeader))
	if id == "" {
		return opportunity.Criteria{}, nil
	}
	sub, err := s.deps.Store.GetSubscriber(r.Context(), id)
	if err != nil {
		return opportunity.Criteria{}, err
	}
	return sub.Criteria, nil
}

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	criteria, err := s.callerCriteria(r)
	if err != nil {
		writeError(w, statusFor(err), "subscriber lookup failed")
		return
	}
	q, err := parseProjectQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	page, err := s.deps.Catalog.List(r.Context(), criteria, q)
	if err != nil {
		s.logger.Error("list projects failed", zap.Error(err))
		writeError(w, statusFor(err), "failed to list projects")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) getProject(w http.ResponseWriter, r *http.Request) {
	criteria, err := s.callerCriteria(r)
	if err != nil {
		writeError(w, statusFor(err), "subscriber lookup failed")
		return
	}
	item, err := s.deps.Catalog.Get(r.Context(), criteria, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, opportunity.ErrNotFound) {
			writeError(w, http.StatusNotFound, "project not found")
			return
		}
		s.logger.Error("get project failed", zap.Error(err))
		writeError(w, statusFor(err), "failed to get project")
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) projectStats(w http.ResponseWriter, r *http.Request) {
	criteria, err := s.callerCriteria(r)
	if err != nil {
		writeError(w, statusFor(err), "subscriber lookup failed")
		return
	}
	st, err := s.deps.Catalog.Stats(r.Context(), criteria)
	if err != nil {
		s.logger.Error("project stats failed", zap.Error(err))
		writeError(w, statusFor(err), "failed to compute stats")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) getSubscriber(w http.ResponseWriter, r *http.Request) {
	sub, err := s.deps.Store.GetSubscriber(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, opportunity.ErrNotFound) {
			writeError(w, http.StatusNotFound, "subscriber not found")
			return
		}
		writeError(w, statusFor(err), "failed to get subscriber")
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *Server) putSubscriber(w http.ResponseWriter, r *http.Request) {
	var sub opportunity.Subscriber
	if err := decodeJSON(w, r, &sub); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	sub.ID = chi.URLParam(r, "id")
	if err := validateSubscriber(sub); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.deps.Store.SaveSubscriber(r.Context(), sub); err != nil {
		s.logger.Error("save subscriber failed", zap.String("subscriber", sub.ID), zap.Error(err))
		writeError(w, statusFor(err), "failed to save subscriber")
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func validateSubscriber(sub opportunity.Subscriber) error {
	switch {
	case sub.MinNotifyScore < 0 || sub.MinNotifyScore > 100:
		return errors.New("min_notify_score must be between 0 and 100")
	case sub.EmailEnabled && sub.Email == "":
		return errors.New("email required when email alerts are enabled")
	case sub.SMSEnabled && sub.Phone == "":
		return errors.New("phone required when sms alerts are enabled")
	case sub.Criteria.MinValue != nil && *sub.Criteria.MinValue < 0:
		return errors.New("criteria.min_value must not be negative")
	}
	return nil
}

func parseProjectQuery(r *http.Request) (catalog.Query, error) {
	v := r.URL.Query()
	q := catalog.Query{
		Filter: opportunity.RecordFilter{
			ActiveOnly: true,
			Categories: splitList(v.Get("category")),
			Sources:    splitList(v.Get("source")),
			Status:     strings.TrimSpace(v.Get("status")),
			Search:     strings.TrimSpace(v.Get("search")),
		},
		Sort: strings.TrimSpace(v.Get("sort")),
	}
	if raw := v.Get("active_only"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return q, errors.New("invalid active_only")
		}
		q.Filter.ActiveOnly = b
	}
	if raw := v.Get("min_value"); raw != "" {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil || f < 0 {
			return q, errors.New("invalid min_value")
		}
		q.Filter.MinValue = &f
	}
	if raw := v.Get("min_match"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 || n > 100 {
			return q, errors.New("invalid min_match")
		}
		q.MinMatch = n
	}
	if !catalog.ValidSort(q.Sort) {
		return q, errors.New("invalid sort")
	}
	switch strings.ToLower(v.Get("order")) {
	case "", "desc":
	case "asc":
		q.Asc = true
	default:
		return q, errors.New("invalid order")
	}
	limit, offset, err := parseLimitOffset(r, catalog.DefaultLimit, catalog.MaxLimit)
	if err != nil {
		return q, err
	}
	q.Limit, q.Offset = limit, offset
	return q, nil
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		limit = min(val, maxLimit)
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

