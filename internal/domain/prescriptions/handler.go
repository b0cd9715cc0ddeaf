package prescriptions

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"patient-access/internal/middleware"
	"patient-access/internal/platform/httpjson"

	"github.com/go-chi/chi/v5"
)

func RegisterRoutes(r chi.Router, svc *Service) {
	r.Post("/encounters/{encounterID}/prescriptions", createPrescriptionHandler(svc))
	r.Get("/encounters/{encounterID}/prescriptions", listEncounterPrescriptionsHandler(svc))
	r.Get("/patients/{patientID}/prescriptions", listPatientPrescriptionsHandler(svc))

	r.Route("/prescriptions/{prescriptionID}", func(pr chi.Router) {
		pr.Get("/", getPrescriptionHandler(svc))
		pr.Post("/dispense", dispenseHandler(svc))
	})
}

type medicationBody struct {
	Name      string `json:"name" validate:"required,max=200"`
	Dosage    string `json:"dosage" validate:"required,max=50"`
	DoseUnit  string `json:"doseUnit" validate:"max=20"`
	Route     string `json:"route" validate:"max=30"`
	Frequency string `json:"frequency" validate:"max=100"`
}

type createPrescriptionRequest struct {
	Medication medicationBody `json:"medication"`
	StartDate  string         `json:"startDate,omitempty"` // YYYY-MM-DD, default hoy
	EndDate    string         `json:"endDate,omitempty"`   // YYYY-MM-DD opcional
	Notes      string         `json:"notes" validate:"max=2000"`
}

type prescriptionResponse struct {
	ID             string         `json:"id"`
	EncounterID    string         `json:"encounterId"`
	PatientID      string         `json:"patientId"`
	OrganizationID string         `json:"organizationId"`
	PrescriberID   string         `json:"prescriberId"`
	Medication     medicationBody `json:"medication"`
	StartDate      time.Time      `json:"startDate"`
	EndDate        *time.Time     `json:"endDate,omitempty"`
	Notes          string         `json:"notes,omitempty"`
	Status         Status         `json:"status"`
	CreatedAt      time.Time      `json:"createdAt"`
	DispensedAt    *time.Time     `json:"dispensedAt,omitempty"`
	DispensedBy    string         `json:"dispensedBy,omitempty"`
}

// createPrescriptionHandler godoc
// @Summary Emitir receta
// @Description Solo el attending del encounter, con el encounter IN_PROGRESS.
// @Tags prescriptions
// @Accept json
// @Produce json
// @Param encounterID path string true "ID del encounter"
// @Param payload body createPrescriptionRequest true "Medicación y fechas (YYYY-MM-DD)"
// @Success 201 {object} prescriptionResponse
// @Failure 400 {object} httpjson.ErrorBody "invalid json / fechas inválidas"
// @Failure 401 {object} httpjson.ErrorBody "unauthorized"
// @Failure 403 {object} httpjson.ErrorBody "no es el attending"
// @Failure 404 {object} httpjson.ErrorBody "encounter not found"
// @Failure 409 {object} httpjson.ErrorBody "encounter finalizado"
// @Router /encounters/{encounterID}/prescriptions [post]
func createPrescriptionHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.RequireClaims(w, r)
		if !ok {
			return
		}

		var req createPrescriptionRequest
		if err := httpjson.Decode(r, &req); err != nil {
			httpjson.Fail(w, err)
			return
		}

		start, err := parseDate("startDate", req.StartDate)
		if err != nil {
			httpjson.Fail(w, err)
			return
		}
		end, err := parseDate("endDate", req.EndDate)
		if err != nil {
			httpjson.Fail(w, err)
			return
		}

		in := CreateInput{
			Medication: Medication{
				Name:      req.Medication.Name,
				Dosage:    req.Medication.Dosage,
				DoseUnit:  req.Medication.DoseUnit,
				Route:     req.Medication.Route,
				Frequency: req.Medication.Frequency,
			},
			EndDate: end,
			Notes:   req.Notes,
		}
		if start != nil {
			in.StartDate = *start
		}

		p, err := svc.Create(r.Context(), claims, chi.URLParam(r, "encounterID"), in)
		if err != nil {
			httpjson.Fail(w, err)
			return
		}
		httpjson.Write(w, http.StatusCreated, toPrescriptionResponse(p))
	}
}

func listEncounterPrescriptionsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.RequireClaims(w, r)
		if !ok {
			return
		}
		items, err := svc.ListForEncounter(r.Context(), claims, chi.URLParam(r, "encounterID"))
		if err != nil {
			httpjson.Fail(w, err)
			return
		}
		httpjson.Write(w, http.StatusOK, toPrescriptionResponses(items))
	}
}

// listPatientPrescriptionsHandler godoc
// @Summary Listar recetas de un paciente
// @Description El dueño o un grant con canViewPrescriptions ven todas. Un prescriptor sin grant ve solo las suyas.
// @Tags prescriptions
// @Produce json
// @Param patientID path string true "ID del paciente"
// @Success 200 {array} prescriptionResponse
// @Failure 401 {object} httpjson.ErrorBody "unauthorized"
// @Failure 403 {object} httpjson.ErrorBody "forbidden"
// @Failure 404 {object} httpjson.ErrorBody "patient not found"
// @Router /patients/{patientID}/prescriptions [get]
func listPatientPrescriptionsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.RequireClaims(w, r)
		if !ok {
			return
		}
		items, err := svc.List(r.Context(), claims, chi.URLParam(r, "patientID"))
		if err != nil {
			httpjson.Fail(w, err)
			return
		}
		httpjson.Write(w, http.StatusOK, toPrescriptionResponses(items))
	}
}

func getPrescriptionHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.RequireClaims(w, r)
		if !ok {
			return
		}
		p, err := svc.Get(r.Context(), claims, chi.URLParam(r, "prescriptionID"))
		if err != nil {
			httpjson.Fail(w, err)
			return
		}
		httpjson.Write(w, http.StatusOK, toPrescriptionResponse(p))
	}
}

// dispenseHandler godoc
// @Summary Dispensar receta
// @Description Rol pharmacist con grant ACTIVE vigente de su organización y canViewPrescriptions. ACTIVE -> DISPENSED, una sola vez.
// @Tags prescriptions
// @Produce json
// @Param prescriptionID path string true "ID de la receta"
// @Success 200 {object} prescriptionResponse
// @Failure 401 {object} httpjson.ErrorBody "unauthorized"
// @Failure 403 {object} httpjson.ErrorBody "forbidden"
// @Failure 404 {object} httpjson.ErrorBody "prescription not found"
// @Failure 409 {object} httpjson.ErrorBody "ya dispensada"
// @Router /prescriptions/{prescriptionID}/dispense [post]
func dispenseHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.RequireClaims(w, r)
		if !ok {
			return
		}
		p, err := svc.Dispense(r.Context(), claims, chi.URLParam(r, "prescriptionID"))
		if err != nil {
			httpjson.Fail(w, err)
			return
		}
		httpjson.Write(w, http.StatusOK, toPrescriptionResponse(p))
	}
}

func parseDate(field, raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be YYYY-MM-DD", ErrInvalidInput, field)
	}
	return &t, nil
}

func toPrescriptionResponse(p Prescription) prescriptionResponse {
	return prescriptionResponse{
		ID:             p.ID,
		EncounterID:    p.EncounterID,
		PatientID:      p.PatientID,
		OrganizationID: p.OrganizationID,
		PrescriberID:   p.PrescriberID,
		Medication: medicationBody{
			Name:      p.Medication.Name,
			Dosage:    p.Medication.Dosage,
			DoseUnit:  p.Medication.DoseUnit,
			Route:     p.Medication.Route,
			Frequency: p.Medication.Frequency,
		},
		StartDate:   p.StartDate,
		EndDate:     p.EndDate,
		Notes:       p.Notes,
		Status:      p.Status,
		CreatedAt:   p.CreatedAt,
		DispensedAt: p.DispensedAt,
		DispensedBy: p.DispensedBy,
	}
}

func toPrescriptionResponses(items []Prescription) []prescriptionResponse {
	out := make([]prescriptionResponse, 0, len(items))
	for _, p := range items {
		out = append(out, toPrescriptionResponse(p))
	}
	return out
}
