package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"cashflow/internal/alerts"
	applog "cashflow/internal/log"
)

type alertListResponse struct {
	Alerts      []alertResponse `json:"alerts"`
	UnreadCount int             `json:"unread_count"`
}

type refreshResponse struct {
	Alerts             []alertResponse `json:"alerts"`
	Created            int             `json:"created"`
	HasNegativeMonths  bool            `json:"has_negative_months"`
	FirstNegativeMonth *string         `json:"first_negative_month"`
	RatesStale         bool            `json:"rates_stale"`
}

// GET /alerts
func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	list, err := s.engine.ListAlerts(r.Context(), ownerFrom(r))
	if err != nil {
		s.writeError(w, r, applog.OpList, err)
		return
	}
	writeJSON(w, http.StatusOK, alertListResponse{
		Alerts:      toAlerts(list),
		UnreadCount: alerts.UnreadCount(list),
	})
}

// POST /alerts/refresh?months=N
func (s *Server) handleRefreshAlerts(w http.ResponseWriter, r *http.Request) {
	months, err := parseHorizon(r, "months", s.defaultMonths)
	if err != nil {
		s.writeError(w, r, applog.OpRegenerate, err)
		return
	}
	owner := ownerFrom(r)
	res, err := s.engine.RefreshAlerts(r.Context(), owner, months)
	if err != nil {
		s.writeError(w, r, applog.OpRegenerate, err)
		return
	}

	sl := applog.NewStructuredLogger(applog.FromContext(r.Context()))
	sl.LogAlertsRefreshed(r.Context(), owner, months, res.Alerts, len(res.Created))

	writeJSON(w, http.StatusOK, refreshResponse{
		Alerts:             toAlerts(res.Alerts),
		Created:            len(res.Created),
		HasNegativeMonths:  res.Projection.HasNegativePeriods,
		FirstNegativeMonth: optional(res.Projection.FirstNegativePeriod),
		RatesStale:         res.Projection.RatesStale,
	})
}

// POST /alerts/{id}/read
func (s *Server) handleMarkAlertRead(w http.ResponseWriter, r *http.Request) {
	a, err := s.engine.MarkAlertRead(r.Context(), ownerFrom(r), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, applog.OpUpdate, err)
		return
	}
	writeJSON(w, http.StatusOK, toAlert(a))
}

// POST /alerts/{id}/dismiss
func (s *Server) handleDismissAlert(w http.ResponseWriter, r *http.Request) {
	a, err := s.engine.DismissAlert(r.Context(), ownerFrom(r), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, applog.OpUpdate, err)
		return
	}
	writeJSON(w, http.StatusOK, toAlert(a))
}

// DELETE /alerts/{id}
func (s *Server) handleDeleteAlert(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.DeleteAlert(r.Context(), ownerFrom(r), mux.Vars(r)["id"]); err != nil {
		s.writeError(w, r, applog.OpDelete, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
