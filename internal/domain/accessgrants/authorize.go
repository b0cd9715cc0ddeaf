package accessgrants

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"patient-access/internal/platform/apperr"
	"patient-access/internal/platform/logger"
	"patient-access/internal/ports/auditlog"
	"patient-access/internal/ports/auth"
)

// Basis dice por qué camino se concedió (o no) el acceso.
type Basis string

const (
	BasisOwner     Basis = "owner"
	BasisAttending Basis = "attending"
	BasisGrant     Basis = "grant"
	BasisNone      Basis = "none"
)

type AccessRequest struct {
	Subject   auth.Claims
	PatientID string
	Scope     Scope

	// AttendingPractitionerID es opcional: el practitioner a cargo del recurso (encounter).
	AttendingPractitionerID string

	// Para el audit log.
	Action       string
	ResourceType string
	ResourceID   string
	IPAddress    string
	UserAgent    string
}

type Decision struct {
	Allowed bool
	Basis   Basis
	GrantID string
}

// Authorizer combina ownership/attending con el grant activo.
// Es el único punto donde los módulos clínicos preguntan "¿puede este sujeto ver esto?".
type Authorizer struct {
	grants *Service
}

func NewAuthorizer(grants *Service) *Authorizer {
	return &Authorizer{grants: grants}
}

// Check devuelve Decision{Allowed:true} o un error que envuelve ErrForbidden.
// Cualquier decisión que no sea del propio paciente queda auditada.
func (a *Authorizer) Check(ctx context.Context, req AccessRequest) (Decision, error) {
	if strings.TrimSpace(req.Subject.UserID) == "" {
		return Decision{Basis: BasisNone}, apperr.ErrUnauthorized
	}
	patientID := strings.TrimSpace(req.PatientID)
	if patientID == "" {
		return Decision{Basis: BasisNone}, fmt.Errorf("%w: patientId required", ErrInvalidInput)
	}

	owner, err := a.grants.patients.OwnerOf(ctx, patientID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return Decision{Basis: BasisNone}, fmt.Errorf("%w: patient not found", ErrNotFound)
		}
		return Decision{Basis: BasisNone}, err
	}

	if owner != "" && owner == req.Subject.UserID {
		d := Decision{Allowed: true, Basis: BasisOwner}
		a.grants.metrics.AccessDecision(string(req.Scope), string(d.Basis), true)
		return d, nil
	}

	d := Decision{Basis: BasisNone}
	var denyErr error

	switch {
	case req.AttendingPractitionerID != "" && req.AttendingPractitionerID == req.Subject.UserID:
		d = Decision{Allowed: true, Basis: BasisAttending}

	case req.Subject.Role.IsClinician() && req.Subject.OrganizationID != "":
		g, err := a.grants.EffectiveGrant(ctx, patientID, req.Subject.OrganizationID, req.Scope)
		switch {
		case err == nil:
			d = Decision{Allowed: true, Basis: BasisGrant, GrantID: g.ID}
		case errors.Is(err, ErrForbidden):
			denyErr = err
		default:
			return Decision{Basis: BasisNone}, err
		}

	default:
		denyErr = fmt.Errorf("%w: no access to patient", ErrForbidden)
	}

	a.grants.metrics.AccessDecision(string(req.Scope), string(d.Basis), d.Allowed)
	a.audit(ctx, req, d)

	if !d.Allowed {
		logger.FromContext(ctx, a.grants.log).Debug("access denied", map[string]any{
			"patient_id": patientID,
			"user_id":    req.Subject.UserID,
			"scope":      string(req.Scope),
		})
		return d, denyErr
	}
	return d, nil
}

func (a *Authorizer) audit(ctx context.Context, req AccessRequest, d Decision) {
	outcome := auditlog.OutcomeSuccess
	if !d.Allowed {
		outcome = auditlog.OutcomeDenied
	}
	action := req.Action
	if action == "" {
		action = "access." + string(req.Scope)
	}
	detail := "basis=" + string(d.Basis)
	if d.GrantID != "" {
		detail += " grant=" + d.GrantID
	}

	a.grants.audit.Record(ctx, auditlog.Entry{
		PatientID:      req.PatientID,
		ActorUserID:    req.Subject.UserID,
		ActorRole:      string(req.Subject.Role),
		OrganizationID: req.Subject.OrganizationID,
		Action:         action,
		ResourceType:   req.ResourceType,
		ResourceID:     req.ResourceID,
		Outcome:        outcome,
		Detail:         detail,
		IPAddress:      req.IPAddress,
		UserAgent:      req.UserAgent,
		OccurredAt:     a.grants.now(),
	})
}
