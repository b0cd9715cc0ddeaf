package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"patient-access/internal/domain/accessgrants"
	"patient-access/internal/platform/apperr"
	"patient-access/internal/platform/logger"
	"patient-access/internal/ports/auditlog"
	"patient-access/internal/ports/auth"

	"github.com/google/uuid"
)

const (
	defaultLimit = 100
	maxLimit     = 500
	writeTimeout = 3 * time.Second
)

type Authorizer interface {
	Check(ctx context.Context, req accessgrants.AccessRequest) (accessgrants.Decision, error)
}

// FailureCounter lo implementa platform/metrics.Registry.
type FailureCounter interface {
	SideEffectFailed(kind string)
}

type Service struct {
	repo     Repository
	authz    Authorizer
	log      logger.Logger
	failures FailureCounter
	now      func() time.Time
}

func NewService(repo Repository, log logger.Logger, failures FailureCounter) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		repo:     repo,
		log:      log,
		failures: failures,
		now:      time.Now,
	}
}

// SetAuthorizer se llama después de armar accessgrants: el Authorizer depende del recorder.
func (s *Service) SetAuthorizer(a Authorizer) {
	s.authz = a
}

var _ auditlog.Recorder = (*Service)(nil)

// Record implementa auditlog.Recorder. Nunca falla hacia el llamador:
// se desacopla de la cancelación del request y los errores se loguean.
func (s *Service) Record(ctx context.Context, e auditlog.Entry) {
	if strings.TrimSpace(e.PatientID) == "" || strings.TrimSpace(e.Action) == "" {
		return
	}
	now := s.now()
	if e.OccurredAt.IsZero() {
		e.OccurredAt = now
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	err := s.repo.Append(wctx, Record{ID: uuid.NewString(), Entry: e, RecordedAt: now})
	if err != nil {
		if s.failures != nil {
			s.failures.SideEffectFailed("audit")
		}
		logger.FromContext(ctx, s.log).Warn("audit append failed", map[string]any{
			"action":     e.Action,
			"patient_id": e.PatientID,
			"error":      err,
		})
	}
}

// ListByPatient: dueño o grant con canViewAuditLogs.
func (s *Service) ListByPatient(ctx context.Context, actor auth.Claims, patientID string, limit int) ([]Record, error) {
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return nil, fmt.Errorf("%w: patientId required", apperr.ErrValidation)
	}
	if s.authz == nil {
		return nil, fmt.Errorf("%w: audit reader not configured", apperr.ErrForbidden)
	}
	if _, err := s.authz.Check(ctx, accessgrants.AccessRequest{
		Subject:      actor,
		PatientID:    patientID,
		Scope:        accessgrants.ScopeViewAuditLogs,
		Action:       "audit.read",
		ResourceType: "audit_log",
	}); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return s.repo.ListByPatient(ctx, patientID, limit)
}
