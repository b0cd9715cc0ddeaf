package encounters

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"patient-access/internal/middleware"
	"patient-access/internal/platform/httpjson"

	"github.com/go-chi/chi/v5"
)

func RegisterRoutes(r chi.Router, svc *Service) {
	r.Route("/patients/{patientID}/encounters", func(er chi.Router) {
		er.Post("/", createEncounterHandler(svc))
		er.Get("/", listEncountersHandler(svc))
	})

	r.Get("/encounters/{encounterID}", getEncounterHandler(svc))
	// Solo el attending
	r.Post("/encounters/{encounterID}/finish", finishEncounterHandler(svc))
}

type createEncounterRequest struct {
	Type       EncounterType `json:"type" validate:"required" enums:"CONSULTATION,FOLLOW_UP,EMERGENCY,TELEMEDICINE,PROCEDURE,LAB_RESULT"`
	OccurredAt string        `json:"occurredAt,omitempty"` // RFC3339, default now
	Reason     string        `json:"reason" validate:"max=500"`
	Notes      string        `json:"notes" validate:"max=5000"`
}

type finishEncounterRequest struct {
	Diagnosis string `json:"diagnosis" validate:"required,max=2000"`
	Notes     string `json:"notes" validate:"max=5000"`
}

// encounterResponse representa un encounter devuelto por la API.
type encounterResponse struct {
	ID                      string        `json:"id"`
	PatientID               string        `json:"patientId"`
	OrganizationID          string        `json:"organizationId"`
	AttendingPractitionerID string        `json:"attendingPractitionerId"`
	Type                    EncounterType `json:"type"`
	Status                  Status        `json:"status"`
	Reason                  string        `json:"reason,omitempty"`
	Notes                   string        `json:"notes,omitempty"`
	Diagnosis               string        `json:"diagnosis,omitempty"`
	OccurredAt              time.Time     `json:"occurredAt"`
	RecordedAt              time.Time     `json:"recordedAt"`
	FinishedAt              *time.Time    `json:"finishedAt,omitempty"`
}

// createEncounterHandler godoc
// @Summary Crear encounter
// @Description Registra un acto clínico. Solo practitioners con un grant ACTIVE vigente de su organización con canCreateEncounters. El creador queda como attending.
// @Tags encounters
// @Accept json
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param X-Debug-Role header string false "Solo en modo dev, rol"
// @Param X-Debug-Organization-ID header string false "Solo en modo dev, organización"
// @Param Authorization header string false "Bearer token en producción"
// @Param patientID path string true "ID del paciente"
// @Param payload body createEncounterRequest true "Datos del encounter; occurredAt en RFC3339"
// @Success 201 {object} encounterResponse
// @Failure 400 {object} httpjson.ErrorBody "invalid json / occurredAt inválido / tipo desconocido"
// @Failure 401 {object} httpjson.ErrorBody "unauthorized"
// @Failure 403 {object} httpjson.ErrorBody "sin grant con canCreateEncounters"
// @Failure 404 {object} httpjson.ErrorBody "patient not found"
// @Router /patients/{patientID}/encounters [post]
func createEncounterHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.RequireClaims(w, r)
		if !ok {
			return
		}

		var req createEncounterRequest
		if err := httpjson.Decode(r, &req); err != nil {
			httpjson.Fail(w, err)
			return
		}

		var occurred time.Time
		if v := strings.TrimSpace(req.OccurredAt); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				httpjson.Fail(w, fmt.Errorf("%w: occurredAt must be RFC3339", ErrInvalidInput))
				return
			}
			occurred = t
		}

		e, err := svc.Create(r.Context(), claims, chi.URLParam(r, "patientID"), CreateInput{
			Type:       EncounterType(strings.ToUpper(strings.TrimSpace(string(req.Type)))),
			OccurredAt: occurred,
			Reason:     req.Reason,
			Notes:      req.Notes,
		})
		if err != nil {
			httpjson.Fail(w, err)
			return
		}

		httpjson.Write(w, http.StatusCreated, toEncounterResponse(e))
	}
}

// listEncountersHandler godoc
// @Summary Listar encounters de un paciente
// @Description El dueño y practitioners con canViewMedicalHistory ven todo. Un practitioner sin grant que atendió al paciente ve solo los suyos.
// @Tags encounters
// @Produce json
// @Param patientID path string true "ID del paciente"
// @Param limit query int false "Máximo a devolver (1-200). Por defecto 50"
// @Param types query string false "CSV de tipos (ej: CONSULTATION,EMERGENCY)"
// @Param from query string false "occurredAt mínimo (RFC3339)"
// @Param to query string false "occurredAt máximo (RFC3339)"
// @Success 200 {array} encounterResponse
// @Failure 400 {object} httpjson.ErrorBody "filtros inválidos"
// @Failure 401 {object} httpjson.ErrorBody "unauthorized"
// @Failure 403 {object} httpjson.ErrorBody "forbidden"
// @Failure 404 {object} httpjson.ErrorBody "patient not found"
// @Router /patients/{patientID}/encounters [get]
func listEncountersHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.RequireClaims(w, r)
		if !ok {
			return
		}

		filter, err := parseListFilter(r)
		if err != nil {
			httpjson.Fail(w, err)
			return
		}

		items, err := svc.List(r.Context(), claims, chi.URLParam(r, "patientID"), filter)
		if err != nil {
			httpjson.Fail(w, err)
			return
		}

		out := make([]encounterResponse, 0, len(items))
		for _, e := range items {
			out = append(out, toEncounterResponse(e))
		}
		httpjson.Write(w, http.StatusOK, out)
	}
}

func getEncounterHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.RequireClaims(w, r)
		if !ok {
			return
		}
		e, err := svc.Get(r.Context(), claims, chi.URLParam(r, "encounterID"))
		if err != nil {
			httpjson.Fail(w, err)
			return
		}
		httpjson.Write(w, http.StatusOK, toEncounterResponse(e))
	}
}

func finishEncounterHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.RequireClaims(w, r)
		if !ok {
			return
		}

		var req finishEncounterRequest
		if err := httpjson.Decode(r, &req); err != nil {
			httpjson.Fail(w, err)
			return
		}

		e, err := svc.Finish(r.Context(), claims, chi.URLParam(r, "encounterID"), FinishInput{
			Diagnosis: req.Diagnosis,
			Notes:     req.Notes,
		})
		if err != nil {
			httpjson.Fail(w, err)
			return
		}
		httpjson.Write(w, http.StatusOK, toEncounterResponse(e))
	}
}

func parseListFilter(r *http.Request) (ListFilter, error) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	filter := ListFilter{Limit: limit}

	// types=CONSULTATION,EMERGENCY
	if v := strings.TrimSpace(r.URL.Query().Get("types")); v != "" {
		for _, p := range strings.Split(v, ",") {
			t := EncounterType(strings.ToUpper(strings.TrimSpace(p)))
			if t == "" {
				continue
			}
			if !t.Valid() {
				return ListFilter{}, fmt.Errorf("%w: unknown encounter type %q", ErrInvalidInput, t)
			}
			filter.Types = append(filter.Types, t)
		}
	}

	if v := strings.TrimSpace(r.URL.Query().Get("from")); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return ListFilter{}, fmt.Errorf("%w: from must be RFC3339", ErrInvalidInput)
		}
		filter.From = &t
	}
	if v := strings.TrimSpace(r.URL.Query().Get("to")); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return ListFilter{}, fmt.Errorf("%w: to must be RFC3339", ErrInvalidInput)
		}
		filter.To = &t
	}

	return filter, nil
}

func toEncounterResponse(e Encounter) encounterResponse {
	return encounterResponse{
		ID:                      e.ID,
		PatientID:               e.PatientID,
		OrganizationID:          e.OrganizationID,
		AttendingPractitionerID: e.AttendingPractitionerID,
		Type:                    e.Type,
		Status:                  e.Status,
		Reason:                  e.Reason,
		Notes:                   e.Notes,
		Diagnosis:               e.Diagnosis,
		OccurredAt:              e.OccurredAt,
		RecordedAt:              e.RecordedAt,
		FinishedAt:              e.FinishedAt,
	}
}
