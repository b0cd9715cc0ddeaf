package patients

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"patient-access/internal/domain/accessgrants"
	"patient-access/internal/middleware"
	"patient-access/internal/platform/httpjson"
	"patient-access/internal/ports/auth"

	"github.com/go-chi/chi/v5"
)

func RegisterRoutes(r chi.Router, svc *Service, grantsSvc *accessgrants.Service, authz *accessgrants.Authorizer) {
	r.Post("/patients", registerPatientHandler(svc))
	// Dueño o grant con canViewMedicalHistory
	r.Get("/patients/{patientID}", getPatientHandler(svc, authz))

	r.Route("/me/patient", func(mr chi.Router) {
		mr.Get("/", getMyPatientHandler(svc))
		mr.Patch("/", updateMyPatientHandler(svc))
		mr.Get("/qr", getMyQRHandler(svc))
	})

	// Practitioner: pacientes con un grant ACTIVE vigente pedido por él
	r.Get("/me/shared-patients", listSharedPatientsHandler(svc, grantsSvc, authz))
}

type registerPatientRequest struct {
	FullName  string `json:"fullName" validate:"required,max=200"`
	BirthDate string `json:"birthDate,omitempty"` // YYYY-MM-DD opcional
	Sex       string `json:"sex,omitempty"`
	BloodType string `json:"bloodType,omitempty" validate:"max=8"`
	Notes     string `json:"notes,omitempty" validate:"max=2000"`
}

type updatePatientRequest struct {
	// Punteros para PATCH real: nil = no tocar.
	FullName  *string `json:"fullName" validate:"omitempty,max=200"`
	BirthDate *string `json:"birthDate"`
	Sex       *string `json:"sex"`
	BloodType *string `json:"bloodType" validate:"omitempty,max=8"`
	Notes     *string `json:"notes" validate:"omitempty,max=2000"`
}

type patientResponse struct {
	ID                string     `json:"id"`
	UserID            string     `json:"userId"`
	DigitalIdentifier string     `json:"digitalIdentifier"`
	FullName          string     `json:"fullName"`
	BirthDate         *time.Time `json:"birthDate,omitempty"`
	Sex               Sex        `json:"sex"`
	BloodType         string     `json:"bloodType,omitempty"`
	Notes             string     `json:"notes,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

type qrResponse struct {
	Success bool                   `json:"success"`
	QRData  string                 `json:"qrData"`
	Payload accessgrants.QRPayload `json:"payload"`
}

type sharedPatientResponse struct {
	Patient   patientResponse `json:"patient"`
	GrantID   string          `json:"grantId"`
	ExpiresAt time.Time       `json:"expiresAt"`
}

// registerPatientHandler godoc
// @Summary Registrar mi registro de paciente
// @Description Crea el registro clínico de la cuenta autenticada (rol patient). Genera el digitalIdentifier que viaja en el QR.
// @Tags patients
// @Accept json
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param Authorization header string false "Bearer token en producción"
// @Param payload body registerPatientRequest true "Datos del paciente; birthDate YYYY-MM-DD"
// @Success 201 {object} patientResponse
// @Failure 400 {object} httpjson.ErrorBody "invalid json / birthDate inválido"
// @Failure 401 {object} httpjson.ErrorBody "unauthorized"
// @Failure 403 {object} httpjson.ErrorBody "solo cuentas de paciente"
// @Failure 409 {object} httpjson.ErrorBody "ya registrado"
// @Router /patients [post]
func registerPatientHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.RequireClaims(w, r)
		if !ok {
			return
		}
		if claims.Role != auth.RolePatient {
			httpjson.Fail(w, fmt.Errorf("%w: only patient accounts can register a record", accessgrants.ErrForbidden))
			return
		}

		var req registerPatientRequest
		if err := httpjson.Decode(r, &req); err != nil {
			httpjson.Fail(w, err)
			return
		}

		bd, err := parseDate(req.BirthDate)
		if err != nil {
			httpjson.Fail(w, err)
			return
		}

		p, err := svc.Register(r.Context(), claims.UserID, RegisterInput{
			FullName:  req.FullName,
			BirthDate: bd,
			Sex:       req.Sex,
			BloodType: req.BloodType,
			Notes:     req.Notes,
		})
		if err != nil {
			httpjson.Fail(w, err)
			return
		}

		httpjson.Write(w, http.StatusCreated, toPatientResponse(p))
	}
}

func getMyPatientHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.RequireClaims(w, r)
		if !ok {
			return
		}
		p, err := svc.GetByUser(r.Context(), claims.UserID)
		if err != nil {
			httpjson.Fail(w, err)
			return
		}
		httpjson.Write(w, http.StatusOK, toPatientResponse(p))
	}
}

func updateMyPatientHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.RequireClaims(w, r)
		if !ok {
			return
		}

		var req updatePatientRequest
		if err := httpjson.Decode(r, &req); err != nil {
			httpjson.Fail(w, err)
			return
		}

		var bd *time.Time
		if req.BirthDate != nil {
			parsed, err := parseDate(*req.BirthDate)
			if err != nil {
				httpjson.Fail(w, err)
				return
			}
			bd = parsed
		}

		p, err := svc.UpdateProfile(r.Context(), claims.UserID, UpdateProfileInput{
			FullName:  req.FullName,
			BirthDate: bd,
			Sex:       req.Sex,
			BloodType: req.BloodType,
			Notes:     req.Notes,
		})
		if err != nil {
			httpjson.Fail(w, err)
			return
		}
		httpjson.Write(w, http.StatusOK, toPatientResponse(p))
	}
}

// getMyQRHandler godoc
// @Summary QR de solicitud de acceso
// @Description Devuelve el payload (base64 de JSON) que el paciente muestra como QR. El render de la imagen es del cliente.
// @Tags patients
// @Produce json
// @Success 200 {object} qrResponse
// @Failure 401 {object} httpjson.ErrorBody "unauthorized"
// @Failure 404 {object} httpjson.ErrorBody "sin registro de paciente"
// @Router /me/patient/qr [get]
func getMyQRHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.RequireClaims(w, r)
		if !ok {
			return
		}
		encoded, payload, err := svc.QR(r.Context(), claims.UserID)
		if err != nil {
			httpjson.Fail(w, err)
			return
		}
		httpjson.Write(w, http.StatusOK, qrResponse{Success: true, QRData: encoded, Payload: payload})
	}
}

// getPatientHandler godoc
// @Summary Ver registro de paciente
// @Description El dueño siempre. Un practitioner necesita un grant ACTIVE vigente de su organización con canViewMedicalHistory.
// @Tags patients
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param X-Debug-Role header string false "Solo en modo dev, rol"
// @Param X-Debug-Organization-ID header string false "Solo en modo dev, organización"
// @Param Authorization header string false "Bearer token en producción"
// @Param patientID path string true "ID del paciente"
// @Success 200 {object} patientResponse
// @Failure 401 {object} httpjson.ErrorBody "unauthorized"
// @Failure 403 {object} httpjson.ErrorBody "forbidden"
// @Failure 404 {object} httpjson.ErrorBody "patient not found"
// @Router /patients/{patientID} [get]
func getPatientHandler(svc *Service, authz *accessgrants.Authorizer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.RequireClaims(w, r)
		if !ok {
			return
		}

		patientID := chi.URLParam(r, "patientID")
		if _, err := authz.Check(r.Context(), accessgrants.AccessRequest{
			Subject:      claims,
			PatientID:    patientID,
			Scope:        accessgrants.ScopeViewMedicalHistory,
			Action:       "patient.read",
			ResourceType: "patient",
			ResourceID:   patientID,
			IPAddress:    r.RemoteAddr,
			UserAgent:    r.UserAgent(),
		}); err != nil {
			httpjson.Fail(w, err)
			return
		}

		p, err := svc.GetByID(r.Context(), patientID)
		if err != nil {
			httpjson.Fail(w, err)
			return
		}
		httpjson.Write(w, http.StatusOK, toPatientResponse(p))
	}
}

func listSharedPatientsHandler(svc *Service, grantsSvc *accessgrants.Service, authz *accessgrants.Authorizer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.RequireClaims(w, r)
		if !ok {
			return
		}

		shared, err := svc.ListShared(r.Context(), claims, grantsSvc, authz)
		if err != nil {
			httpjson.Fail(w, err)
			return
		}

		out := make([]sharedPatientResponse, 0, len(shared))
		for _, sp := range shared {
			out = append(out, sharedPatientResponse{
				Patient:   toPatientResponse(sp.Patient),
				GrantID:   sp.GrantID,
				ExpiresAt: sp.ExpiresAt,
			})
		}
		httpjson.Write(w, http.StatusOK, out)
	}
}

func parseDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, fmt.Errorf("%w: birthDate must be YYYY-MM-DD", ErrInvalidInput)
	}
	return &t, nil
}

func toPatientResponse(p Patient) patientResponse {
	return patientResponse{
		ID:                p.ID,
		UserID:            p.UserID,
		DigitalIdentifier: p.DigitalIdentifier,
		FullName:          p.FullName,
		BirthDate:         p.BirthDate,
		Sex:               p.Sex,
		BloodType:         p.BloodType,
		Notes:             p.Notes,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
}
