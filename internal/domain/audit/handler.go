package audit

import (
	"net/http"
	"strconv"
	"time"

	"patient-access/internal/middleware"
	"patient-access/internal/platform/httpjson"
	"patient-access/internal/ports/auditlog"

	"github.com/go-chi/chi/v5"
)

func RegisterRoutes(r chi.Router, svc *Service) {
	r.Get("/patients/{patientID}/audit", listAuditHandler(svc))
}

type recordResponse struct {
	ID             string           `json:"id"`
	PatientID      string           `json:"patientId"`
	ActorUserID    string           `json:"actorUserId"`
	ActorRole      string           `json:"actorRole,omitempty"`
	OrganizationID string           `json:"organizationId,omitempty"`
	Action         string           `json:"action"`
	ResourceType   string           `json:"resourceType,omitempty"`
	ResourceID     string           `json:"resourceId,omitempty"`
	Outcome        auditlog.Outcome `json:"outcome"`
	Detail         string           `json:"detail,omitempty"`
	IPAddress      string           `json:"ipAddress,omitempty"`
	UserAgent      string           `json:"userAgent,omitempty"`
	OccurredAt     time.Time        `json:"occurredAt"`
}

// listAuditHandler godoc
// @Summary Audit log de un paciente
// @Description Quién accedió o intentó acceder al registro. El dueño siempre; un practitioner necesita canViewAuditLogs.
// @Tags audit
// @Produce json
// @Param patientID path string true "ID del paciente"
// @Param limit query int false "Máximo a devolver (1-500). Por defecto 100"
// @Success 200 {array} recordResponse
// @Failure 401 {object} httpjson.ErrorBody "unauthorized"
// @Failure 403 {object} httpjson.ErrorBody "forbidden"
// @Failure 404 {object} httpjson.ErrorBody "patient not found"
// @Router /patients/{patientID}/audit [get]
func listAuditHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.RequireClaims(w, r)
		if !ok {
			return
		}

		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		items, err := svc.ListByPatient(r.Context(), claims, chi.URLParam(r, "patientID"), limit)
		if err != nil {
			httpjson.Fail(w, err)
			return
		}

		out := make([]recordResponse, 0, len(items))
		for _, rec := range items {
			out = append(out, recordResponse{
				ID:             rec.ID,
				PatientID:      rec.PatientID,
				ActorUserID:    rec.ActorUserID,
				ActorRole:      rec.ActorRole,
				OrganizationID: rec.OrganizationID,
				Action:         rec.Action,
				ResourceType:   rec.ResourceType,
				ResourceID:     rec.ResourceID,
				Outcome:        rec.Outcome,
				Detail:         rec.Detail,
				IPAddress:      rec.IPAddress,
				UserAgent:      rec.UserAgent,
				OccurredAt:     rec.OccurredAt,
			})
		}
		httpjson.Write(w, http.StatusOK, out)
	}
}
