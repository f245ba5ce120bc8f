package http

import (
	"net/http"

	applog "cashflow/internal/log"
)

// GET /forecast?months=N
func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	months, err := parseHorizon(r, "months", s.defaultMonths)
	if err != nil {
		s.writeError(w, r, applog.OpProject, err)
		return
	}
	proj, err := s.engine.Project(r.Context(), ownerFrom(r), months)
	if err != nil {
		s.writeError(w, r, applog.OpProject, err)
		return
	}
	writeJSON(w, http.StatusOK, toMonthly(proj))
}

// GET /forecast/weekly?weeks=N
func (s *Server) handleForecastWeekly(w http.ResponseWriter, r *http.Request) {
	weeks, err := parseHorizon(r, "weeks", s.defaultWeeks)
	if err != nil {
		s.writeError(w, r, applog.OpProject, err)
		return
	}
	proj, err := s.engine.ProjectWeekly(r.Context(), ownerFrom(r), weeks)
	if err != nil {
		s.writeError(w, r, applog.OpProject, err)
		return
	}
	writeJSON(w, http.StatusOK, toWeekly(proj))
}

// GET /forecast/summary?months=N
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	months, err := parseHorizon(r, "months", s.defaultMonths)
	if err != nil {
		s.writeError(w, r, applog.OpSummarize, err)
		return
	}
	sum, err := s.engine.Summarize(r.Context(), ownerFrom(r), months)
	if err != nil {
		s.writeError(w, r, applog.OpSummarize, err)
		return
	}
	writeJSON(w, http.StatusOK, toSummary(sum))
}
