package accessgrants

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"patient-access/internal/middleware"
	"patient-access/internal/platform/apperr"
	"patient-access/internal/platform/httpjson"
	"patient-access/internal/ports/auth"

	"github.com/go-chi/chi/v5"
)

func RegisterRoutes(r chi.Router, svc *Service) {
	r.Route("/authorizations", func(ar chi.Router) {
		ar.Post("/request", requestAccessHandler(svc))
		ar.Patch("/approve", approveHandler(svc))
		ar.Patch("/deny", revokeHandler(svc))
		ar.Patch("/revoke", revokeHandler(svc))
		ar.Get("/{grantID}", getGrantHandler(svc))
	})

	// Paciente: grants sobre su registro
	r.Get("/me/authorizations", listMyAuthorizationsHandler(svc))
	// Practitioner: grants que pidió
	r.Get("/me/authorization-requests", listMyRequestsHandler(svc))

	r.Get("/admin/stats/authorizations", statsHandler(svc))
}

type accessScopeBody struct {
	CanViewMedicalHistory bool `json:"canViewMedicalHistory"`
	CanViewPrescriptions  bool `json:"canViewPrescriptions"`
	CanCreateEncounters   bool `json:"canCreateEncounters"`
	CanViewAuditLogs      bool `json:"canViewAuditLogs"`
}

func (b accessScopeBody) toScope() AccessScope {
	return AccessScope{
		CanViewMedicalHistory: b.CanViewMedicalHistory,
		CanViewPrescriptions:  b.CanViewPrescriptions,
		CanCreateEncounters:   b.CanCreateEncounters,
		CanViewAuditLogs:      b.CanViewAuditLogs,
	}
}

func fromScope(s AccessScope) accessScopeBody {
	return accessScopeBody{
		CanViewMedicalHistory: s.CanViewMedicalHistory,
		CanViewPrescriptions:  s.CanViewPrescriptions,
		CanCreateEncounters:   s.CanCreateEncounters,
		CanViewAuditLogs:      s.CanViewAuditLogs,
	}
}

type requestAccessBody struct {
	ScannedQRData            string          `json:"scannedQRData" validate:"required"`
	OrganizationID           string          `json:"organizationId" validate:"required"`
	RequestingPractitionerID string          `json:"requestingPractitionerId" validate:"required"`
	AccessScope              accessScopeBody `json:"accessScope"`
	TimeWindowHours          int             `json:"timeWindowHours" validate:"gte=0"`
	DeviceInfo               string          `json:"deviceInfo,omitempty" validate:"max=512"`
}

type decisionBody struct {
	GrantID string `json:"grantId" validate:"required"`
	Reason  string `json:"reason,omitempty" validate:"max=1000"`
}

type grantResponse struct {
	ID                       string          `json:"id"`
	PatientID                string          `json:"patientId"`
	OrganizationID           string          `json:"organizationId"`
	RequestingPractitionerID string          `json:"requestingPractitionerId"`
	Status                   Status          `json:"status"`
	AccessScope              accessScopeBody `json:"accessScope"`
	TimeWindowHours          int             `json:"timeWindowHours"`
	CreatedAt                time.Time       `json:"createdAt"`
	GrantedAt                *time.Time      `json:"grantedAt,omitempty"`
	ExpiresAt                time.Time       `json:"expiresAt"`
	RevokedAt                *time.Time      `json:"revokedAt,omitempty"`
	Reason                   string          `json:"reason,omitempty"`
}

type requestAccessResponse struct {
	Success      bool          `json:"success"`
	GrantID      string        `json:"grantId"`
	Status       Status        `json:"status"`
	ExpiresAt    time.Time     `json:"expiresAt"`
	Deduplicated bool          `json:"deduplicated"`
	Grant        grantResponse `json:"grant"`
}

type decisionResponse struct {
	Success   bool       `json:"success"`
	GrantID   string     `json:"grantId"`
	NewStatus Status     `json:"newStatus"`
	GrantedAt *time.Time `json:"grantedAt,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	RevokedAt *time.Time `json:"revokedAt,omitempty"`
}

type statsResponse struct {
	Success bool           `json:"success"`
	Counts  map[Status]int `json:"counts"`
	Total   int            `json:"total"`
}

// requestAccessHandler godoc
// @Summary Solicitar acceso al historial de un paciente
// @Description El practitioner escanea el QR del paciente y pide acceso con un scope y una ventana en horas. Queda PENDING hasta que el paciente apruebe o deniegue. Si ya existe un PENDING para el mismo paciente, organización y practitioner, se reutiliza.
// @Tags authorizations
// @Accept json
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param X-Debug-Role header string false "Solo en modo dev, rol (practitioner, pharmacist, patient, admin)"
// @Param X-Debug-Organization-ID header string false "Solo en modo dev, organización del usuario"
// @Param Authorization header string false "Bearer token en producción"
// @Param payload body requestAccessBody true "QR escaneado, organización, scope y ventana"
// @Success 201 {object} requestAccessResponse
// @Failure 400 {object} httpjson.ErrorBody "QR inválido / scope vacío / ventana fuera de rango"
// @Failure 401 {object} httpjson.ErrorBody "unauthorized"
// @Failure 403 {object} httpjson.ErrorBody "no es practitioner de la organización"
// @Failure 404 {object} httpjson.ErrorBody "paciente no encontrado"
// @Router /authorizations/request [post]
func requestAccessHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.RequireClaims(w, r)
		if !ok {
			return
		}

		var body requestAccessBody
		if err := httpjson.Decode(r, &body); err != nil {
			httpjson.Fail(w, err)
			return
		}

		out, err := svc.Request(r.Context(), claims, RequestInput{
			ScannedQRData:            body.ScannedQRData,
			OrganizationID:           body.OrganizationID,
			RequestingPractitionerID: body.RequestingPractitionerID,
			Scope:                    body.AccessScope.toScope(),
			TimeWindowHours:          body.TimeWindowHours,
			Metadata: RequestMetadata{
				IPAddress:  r.RemoteAddr,
				UserAgent:  r.UserAgent(),
				DeviceInfo: strings.TrimSpace(body.DeviceInfo),
			},
		})
		if err != nil {
			httpjson.Fail(w, err)
			return
		}

		status := http.StatusCreated
		if out.Deduplicated {
			status = http.StatusOK
		}
		httpjson.Write(w, status, requestAccessResponse{
			Success:      true,
			GrantID:      out.Grant.ID,
			Status:       out.Grant.Status,
			ExpiresAt:    out.Grant.ExpiresAt,
			Deduplicated: out.Deduplicated,
			Grant:        toGrantResponse(out.Grant, svc.Now()),
		})
	}
}

// approveHandler godoc
// @Summary Aprobar una solicitud de acceso
// @Description Solo el paciente dueño. PENDING -> ACTIVE; expiresAt = grantedAt + timeWindowHours.
// @Tags authorizations
// @Accept json
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param Authorization header string false "Bearer token en producción"
// @Param payload body decisionBody true "grantId y motivo opcional"
// @Success 200 {object} decisionResponse
// @Failure 400 {object} httpjson.ErrorBody "invalid json"
// @Failure 401 {object} httpjson.ErrorBody "unauthorized"
// @Failure 404 {object} httpjson.ErrorBody "grant not found"
// @Failure 409 {object} httpjson.ErrorBody "el grant no está PENDING"
// @Router /authorizations/approve [patch]
func approveHandler(svc *Service) http.HandlerFunc {
	return decide(svc, svc.Approve)
}

// revokeHandler godoc
// @Summary Denegar o revocar un acceso
// @Description Solo el paciente dueño. PENDING o ACTIVE -> REVOKED. Atiende /authorizations/deny y /authorizations/revoke.
// @Tags authorizations
// @Accept json
// @Produce json
// @Param payload body decisionBody true "grantId y motivo opcional"
// @Success 200 {object} decisionResponse
// @Failure 401 {object} httpjson.ErrorBody "unauthorized"
// @Failure 404 {object} httpjson.ErrorBody "grant not found"
// @Failure 409 {object} httpjson.ErrorBody "el grant ya está REVOKED o EXPIRED"
// @Router /authorizations/deny [patch]
func revokeHandler(svc *Service) http.HandlerFunc {
	return decide(svc, svc.Revoke)
}

func decide(svc *Service, fn func(context.Context, DecisionInput) (Grant, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.RequireClaims(w, r)
		if !ok {
			return
		}

		var body decisionBody
		if err := httpjson.Decode(r, &body); err != nil {
			httpjson.Fail(w, err)
			return
		}

		patientID, err := callerPatientID(r.Context(), svc, claims)
		if err != nil {
			httpjson.Fail(w, err)
			return
		}

		g, err := fn(r.Context(), DecisionInput{
			GrantID:   body.GrantID,
			PatientID: patientID,
			Reason:    body.Reason,
			Actor:     claims,
		})
		if err != nil {
			httpjson.Fail(w, err)
			return
		}

		resp := decisionResponse{
			Success:   true,
			GrantID:   g.ID,
			NewStatus: g.Status,
			GrantedAt: g.GrantedAt,
			RevokedAt: g.RevokedAt,
		}
		if g.Status == StatusActive {
			exp := g.ExpiresAt
			resp.ExpiresAt = &exp
		}
		httpjson.Write(w, http.StatusOK, resp)
	}
}

func getGrantHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.RequireClaims(w, r)
		if !ok {
			return
		}

		patientID, err := callerPatientID(r.Context(), svc, claims)
		if err != nil {
			httpjson.Fail(w, err)
			return
		}

		g, err := svc.Get(r.Context(), claims, patientID, chi.URLParam(r, "grantID"))
		if err != nil {
			httpjson.Fail(w, err)
			return
		}
		httpjson.Write(w, http.StatusOK, toGrantResponse(g, svc.Now()))
	}
}

// listMyAuthorizationsHandler godoc
// @Summary Listar accesos sobre mi registro
// @Description Grants pedidos sobre el registro del paciente autenticado. El filtro status se evalúa sobre el status efectivo (un ACTIVE vencido es EXPIRED).
// @Tags authorizations
// @Produce json
// @Param status query string false "CSV de status (PENDING,ACTIVE,EXPIRED,REVOKED)"
// @Success 200 {array} grantResponse
// @Failure 400 {object} httpjson.ErrorBody "status inválido"
// @Failure 401 {object} httpjson.ErrorBody "unauthorized"
// @Failure 404 {object} httpjson.ErrorBody "el usuario no tiene registro de paciente"
// @Router /me/authorizations [get]
func listMyAuthorizationsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.RequireClaims(w, r)
		if !ok {
			return
		}

		statuses, err := parseStatusFilter(r.URL.Query().Get("status"))
		if err != nil {
			httpjson.Fail(w, err)
			return
		}

		patientID, err := svc.PatientIDForUser(r.Context(), claims.UserID)
		if err != nil {
			httpjson.Fail(w, err)
			return
		}

		items, err := svc.ListForPatient(r.Context(), patientID, statuses)
		if err != nil {
			httpjson.Fail(w, err)
			return
		}
		httpjson.Write(w, http.StatusOK, toGrantResponses(items, svc.Now()))
	}
}

func listMyRequestsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.RequireClaims(w, r)
		if !ok {
			return
		}

		statuses, err := parseStatusFilter(r.URL.Query().Get("status"))
		if err != nil {
			httpjson.Fail(w, err)
			return
		}

		items, err := svc.ListRequestedBy(r.Context(), claims.UserID, statuses)
		if err != nil {
			httpjson.Fail(w, err)
			return
		}
		httpjson.Write(w, http.StatusOK, toGrantResponses(items, svc.Now()))
	}
}

// statsHandler godoc
// @Summary Conteo de grants por status
// @Description Solo admin. Siempre devuelve las cuatro claves (0 si no hay datos).
// @Tags admin
// @Produce json
// @Success 200 {object} statsResponse
// @Failure 401 {object} httpjson.ErrorBody "unauthorized"
// @Failure 403 {object} httpjson.ErrorBody "forbidden"
// @Router /admin/stats/authorizations [get]
func statsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.RequireClaims(w, r)
		if !ok {
			return
		}
		if claims.Role != auth.RoleAdmin {
			httpjson.Fail(w, fmt.Errorf("%w: admin only", ErrForbidden))
			return
		}

		counts, err := svc.Stats(r.Context())
		if err != nil {
			httpjson.Fail(w, err)
			return
		}
		total := 0
		for _, n := range counts {
			total += n
		}
		httpjson.Write(w, http.StatusOK, statsResponse{Success: true, Counts: counts, Total: total})
	}
}

// callerPatientID: "" si el usuario no tiene registro de paciente (p.ej. practitioners).
func callerPatientID(ctx context.Context, svc *Service, claims auth.Claims) (string, error) {
	id, err := svc.PatientIDForUser(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return id, nil
}

func toGrantResponse(g Grant, now time.Time) grantResponse {
	return grantResponse{
		ID:                       g.ID,
		PatientID:                g.PatientID,
		OrganizationID:           g.OrganizationID,
		RequestingPractitionerID: g.RequestingPractitionerID,
		Status:                   g.EffectiveStatus(now),
		AccessScope:              fromScope(g.Scope),
		TimeWindowHours:          g.TimeWindowHours,
		CreatedAt:                g.CreatedAt,
		GrantedAt:                g.GrantedAt,
		ExpiresAt:                g.ExpiresAt,
		RevokedAt:                g.RevokedAt,
		Reason:                   g.Reason,
	}
}

func toGrantResponses(items []Grant, now time.Time) []grantResponse {
	out := make([]grantResponse, 0, len(items))
	for _, g := range items {
		out = append(out, toGrantResponse(g, now))
	}
	return out
}

// parseStatusFilter: CSV opcional. Solo grafías canónicas; cualquier otra cosa es 400.
func parseStatusFilter(raw string) (map[Status]struct{}, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	out := map[Status]struct{}{}
	for _, p := range strings.Split(raw, ",") {
		if strings.TrimSpace(p) == "" {
			continue
		}
		st, ok := ParseStatus(p)
		if !ok {
			return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, strings.TrimSpace(p))
		}
		out[st] = struct{}{}
	}
	return out, nil
}
