package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"safereport/internal/incident/models"
	id "safereport/pkg/domain"
	"safereport/pkg/platform/httputil"
)

type deleteRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) handleCreateIncident(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}
	var payload models.Payload
	if err := httputil.DecodeJSON(r, &payload); err != nil {
		h.fail(w, r, err, "invalid create incident request")
		return
	}
	incident, err := h.incidents.Create(r.Context(), userID, payload)
	if err != nil {
		h.fail(w, r, err, "failed to create incident")
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, incident)
}

func (h *Handler) handleListIncidents(w http.ResponseWriter, r *http.Request) {
	scope, err := queryScope(r)
	if err != nil {
		h.fail(w, r, err, "invalid incident list request")
		return
	}
	h.writePage(w, r, scope)
}

func (h *Handler) handleResidentIncidents(w http.ResponseWriter, r *http.Request) {
	residentID, err := id.ParseResidentID(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err, "invalid resident id")
		return
	}
	h.writePage(w, r, models.ResidentScope(residentID))
}

func (h *Handler) writePage(w http.ResponseWriter, r *http.Request, scope models.Scope) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		h.fail(w, r, err, "invalid incident list request")
		return
	}
	page, err := h.incidents.GetIncidentsPage(r.Context(), userID, scope, r.URL.Query().Get("cursor"), limit)
	if err != nil {
		h.fail(w, r, err, "failed to list incidents")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) handleGetIncident(w http.ResponseWriter, r *http.Request) {
	userID, incidentID, ok := h.incidentRequest(w, r)
	if !ok {
		return
	}
	incident, err := h.incidents.GetIncident(r.Context(), userID, incidentID)
	if err != nil {
		h.fail(w, r, err, "failed to load incident")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, incident)
}

func (h *Handler) handleUpdateIncident(w http.ResponseWriter, r *http.Request) {
	userID, incidentID, ok := h.incidentRequest(w, r)
	if !ok {
		return
	}
	var fields models.UpdateFields
	if err := httputil.DecodeJSON(r, &fields); err != nil {
		h.fail(w, r, err, "invalid update incident request")
		return
	}
	incident, err := h.incidents.Update(r.Context(), userID, incidentID, fields)
	if err != nil {
		h.fail(w, r, err, "failed to update incident")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, incident)
}

func (h *Handler) handleDeleteIncident(w http.ResponseWriter, r *http.Request) {
	userID, incidentID, ok := h.incidentRequest(w, r)
	if !ok {
		return
	}
	var req deleteRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err, "invalid delete incident request")
		return
	}
	incident, err := h.lifecycle.SoftDelete(r.Context(), userID, incidentID, req.Reason)
	if err != nil {
		h.fail(w, r, err, "failed to delete incident")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, incident)
}

func (h *Handler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	userID, incidentID, ok := h.incidentRequest(w, r)
	if !ok {
		return
	}
	if err := h.incidents.MarkRead(r.Context(), userID, incidentID); err != nil {
		h.fail(w, r, err, "failed to mark incident read")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRecordPrint(w http.ResponseWriter, r *http.Request) {
	userID, incidentID, ok := h.incidentRequest(w, r)
	if !ok {
		return
	}
	if err := h.incidents.RecordPrint(r.Context(), userID, incidentID); err != nil {
		h.fail(w, r, err, "failed to record print")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) incidentRequest(w http.ResponseWriter, r *http.Request) (id.UserID, id.IncidentID, bool) {
	incidentID, err := id.ParseIncidentID(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err, "invalid incident id")
		return id.UserID{}, id.IncidentID{}, false
	}
	userID, ok := h.caller(w, r)
	return userID, incidentID, ok
}
