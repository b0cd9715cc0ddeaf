package patients

import (
	"context"
	"errors"
	"strings"
	"time"

	"patient-access/internal/domain/accessgrants"
	"patient-access/internal/platform/apperr"
	"patient-access/internal/ports/auth"
)

// GrantLister devuelve los grants pedidos por un practitioner (accessgrants.Service).
type GrantLister interface {
	ListRequestedBy(ctx context.Context, practitionerID string, statuses map[accessgrants.Status]struct{}) ([]accessgrants.Grant, error)
}

// AccessChecker es el chequeo de capacidad (accessgrants.Authorizer).
type AccessChecker interface {
	Check(ctx context.Context, req accessgrants.AccessRequest) (accessgrants.Decision, error)
}

type SharedPatient struct {
	Patient   Patient
	GrantID   string
	ExpiresAt time.Time
}

// ListShared lista los pacientes que el practitioner puede ver hoy en su organización actual.
// Cada paciente pasa por el AccessChecker, así la lista coincide con lo que GET /patients/{id} permitiría.
// Sin organización en los claims no hay grant aplicable y la lista es vacía.
func (s *Service) ListShared(ctx context.Context, actor auth.Claims, grants GrantLister, authz AccessChecker) ([]SharedPatient, error) {
	out := make([]SharedPatient, 0)
	orgID := strings.TrimSpace(actor.OrganizationID)
	if orgID == "" || !actor.Role.IsClinician() {
		return out, nil
	}

	items, err := grants.ListRequestedBy(ctx, actor.UserID, map[accessgrants.Status]struct{}{
		accessgrants.StatusActive: {},
	})
	if err != nil {
		return nil, err
	}

	seen := map[string]struct{}{}
	for _, g := range items {
		if g.OrganizationID != orgID || !g.Scope.CanViewMedicalHistory {
			continue
		}
		if _, ok := seen[g.PatientID]; ok {
			continue
		}
		seen[g.PatientID] = struct{}{}

		d, err := authz.Check(ctx, accessgrants.AccessRequest{
			Subject:      actor,
			PatientID:    g.PatientID,
			Scope:        accessgrants.ScopeViewMedicalHistory,
			Action:       "patient.list_shared",
			ResourceType: "patient",
			ResourceID:   g.PatientID,
		})
		if err != nil {
			if errors.Is(err, apperr.ErrForbidden) || errors.Is(err, apperr.ErrNotFound) {
				continue
			}
			return nil, err
		}

		p, err := s.repo.GetByID(ctx, g.PatientID)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				continue
			}
			return nil, err
		}

		grantID := d.GrantID
		if grantID == "" {
			grantID = g.ID
		}
		out = append(out, SharedPatient{Patient: p, GrantID: grantID, ExpiresAt: g.ExpiresAt})
	}
	return out, nil
}
