package httptransport

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"safereport/internal/audit"
	"safereport/internal/compliance"
	"safereport/internal/incident/models"
	id "safereport/pkg/domain"
	dErrors "safereport/pkg/domain-errors"
	"safereport/pkg/platform/httputil"
)

type backupRequest struct {
	Scope   string `json:"scope"`
	ScopeID string `json:"scope_id"`
}

type restoreRequest struct {
	Confirm bool `json:"confirm"`
}

type auditTrailResponse struct {
	Entries []*audit.Entry `json:"entries"`
	Count   int            `json:"count"`
}

func (h *Handler) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}
	filter, limit, err := parseAuditFilter(r)
	if err != nil {
		h.fail(w, r, err, "invalid audit trail request")
		return
	}
	entries, err := h.audit.GetAuditTrail(r.Context(), userID, filter, limit)
	if err != nil {
		h.fail(w, r, err, "failed to load audit trail")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, auditTrailResponse{Entries: entries, Count: len(entries)})
}

func parseAuditFilter(r *http.Request) (audit.Filter, int, error) {
	q := r.URL.Query()
	var filter audit.Filter
	for _, raw := range q["incident_id"] {
		incidentID, err := id.ParseIncidentID(raw)
		if err != nil {
			return audit.Filter{}, 0, err
		}
		filter.IncidentIDs = append(filter.IncidentIDs, incidentID)
	}
	if raw := q.Get("user_id"); raw != "" {
		userID, err := id.ParseUserID(raw)
		if err != nil {
			return audit.Filter{}, 0, err
		}
		filter.UserID = &userID
	}
	var err error
	if filter.From, err = parseTime("from", q.Get("from")); err != nil {
		return audit.Filter{}, 0, err
	}
	if filter.To, err = parseTime("to", q.Get("to")); err != nil {
		return audit.Filter{}, 0, err
	}
	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		return audit.Filter{}, 0, err
	}
	return filter, limit, nil
}

func (h *Handler) handleCreateBackup(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req backupRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err, "invalid backup request")
		return
	}
	scope, err := models.ParseScope(req.Scope, req.ScopeID)
	if err != nil {
		h.fail(w, r, err, "invalid backup request")
		return
	}
	res, err := h.backups.CreateBackup(r.Context(), userID, scope)
	if err != nil {
		h.fail(w, r, err, "failed to create backup")
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, res)
}

func (h *Handler) handleListBackups(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}
	scope, err := queryScope(r)
	if err != nil {
		h.fail(w, r, err, "invalid backup list request")
		return
	}
	backups, err := h.backups.ListBackups(r.Context(), userID, scope)
	if err != nil {
		h.fail(w, r, err, "failed to list backups")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"backups": backups})
}

func (h *Handler) handleRestoreBackup(w http.ResponseWriter, r *http.Request) {
	backupID, err := id.ParseBackupID(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err, "invalid backup id")
		return
	}
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req restoreRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err, "invalid restore request")
		return
	}
	res, err := h.backups.RestoreFromBackup(r.Context(), userID, backupID, req.Confirm)
	if err != nil {
		h.fail(w, r, err, "failed to restore backup")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	subject, err := compliance.ParseSubject(q.Get("subject"), q.Get("subject_id"))
	if err != nil {
		h.fail(w, r, err, "invalid export request")
		return
	}
	format, err := compliance.ParseFormat(q.Get("format"))
	if err != nil {
		h.fail(w, r, err, "invalid export request")
		return
	}
	res, err := h.exports.ExportSubjectData(r.Context(), userID, subject, format)
	if err != nil {
		h.fail(w, r, err, "failed to export subject data")
		return
	}
	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+res.Filename+`"`)
	w.Header().Set("X-Record-Count", strconv.Itoa(res.RecordCount))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Data)
}

func (h *Handler) handleRetentionReport(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}
	scope, err := queryScope(r)
	if err != nil {
		h.fail(w, r, err, "invalid retention report request")
		return
	}
	days := 0
	if raw := r.URL.Query().Get("days"); raw != "" {
		if days, err = strconv.Atoi(raw); err != nil {
			h.fail(w, r, dErrors.New(dErrors.CodeBadRequest, "days must be an integer").WithDetail("field", "days"), "invalid retention report request")
			return
		}
	}
	report, err := h.lifecycle.GetRetentionReport(r.Context(), userID, scope, days)
	if err != nil {
		h.fail(w, r, err, "failed to build retention report")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}
