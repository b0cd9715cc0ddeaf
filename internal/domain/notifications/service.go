package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"patient-access/internal/domain/accessgrants"
	"patient-access/internal/platform/apperr"
	"patient-access/internal/platform/logger"

	"github.com/google/uuid"
)

// OwnerLookup lo implementa patients.Service.
type OwnerLookup interface {
	OwnerOf(ctx context.Context, patientID string) (string, error)
}

type Service struct {
	repo      Repository
	owners    OwnerLookup
	publisher Publisher
	log       logger.Logger
	now       func() time.Time
}

func NewService(repo Repository, owners OwnerLookup, publisher Publisher, log logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		repo:      repo,
		owners:    owners,
		publisher: publisher,
		log:       log,
		now:       time.Now,
	}
}

var _ accessgrants.Notifier = (*Service)(nil)

// AccessRequested avisa al paciente dueño que hay una solicitud PENDING.
func (s *Service) AccessRequested(ctx context.Context, g accessgrants.Grant) error {
	userID, err := s.owners.OwnerOf(ctx, g.PatientID)
	if err != nil {
		return fmt.Errorf("resolve patient owner: %w", err)
	}
	return s.deliver(ctx, g, Notification{
		UserID:  userID,
		Type:    TypeAccessRequested,
		Title:   "Nueva solicitud de acceso",
		Message: fmt.Sprintf("Un profesional de la organización %s solicita acceso a tu historial por %dh.", g.OrganizationID, g.TimeWindowHours),
	})
}

// AccessDecided avisa al practitioner que pidió el acceso.
func (s *Service) AccessDecided(ctx context.Context, g accessgrants.Grant) error {
	n := Notification{UserID: g.RequestingPractitionerID}
	switch {
	case g.Status == accessgrants.StatusActive:
		n.Type = TypeAccessApproved
		n.Title = "Acceso aprobado"
		n.Message = fmt.Sprintf("El paciente aprobó el acceso hasta %s.", g.ExpiresAt.UTC().Format(time.RFC3339))
	case g.Status == accessgrants.StatusRevoked && g.GrantedAt == nil:
		n.Type = TypeAccessDenied
		n.Title = "Acceso denegado"
		n.Message = "El paciente denegó la solicitud de acceso."
	case g.Status == accessgrants.StatusRevoked:
		n.Type = TypeAccessRevoked
		n.Title = "Acceso revocado"
		n.Message = "El paciente revocó el acceso a su historial."
	default:
		return nil
	}
	return s.deliver(ctx, g, n)
}

func (s *Service) deliver(ctx context.Context, g accessgrants.Grant, n Notification) error {
	if strings.TrimSpace(n.UserID) == "" {
		return fmt.Errorf("%w: notification without recipient", apperr.ErrValidation)
	}
	n.ID = uuid.NewString()
	n.GrantID = g.ID
	n.PatientID = g.PatientID
	n.OrganizationID = g.OrganizationID
	n.CreatedAt = s.now()

	if err := s.repo.Create(ctx, n); err != nil {
		return err
	}

	if s.publisher == nil {
		return nil
	}
	err := s.publisher.Publish(ctx, Event{
		NotificationID: n.ID,
		UserID:         n.UserID,
		Type:           n.Type,
		GrantID:        g.ID,
		PatientID:      g.PatientID,
		OrganizationID: g.OrganizationID,
		GrantStatus:    string(g.Status),
		OccurredAt:     n.CreatedAt,
	})
	if err != nil {
		// La bandeja ya quedó persistida; el relay externo es best-effort.
		logger.FromContext(ctx, s.log).Warn("notification publish failed", map[string]any{
			"notification_id": n.ID,
			"type":            string(n.Type),
			"error":           err,
		})
	}
	return nil
}

func (s *Service) ListForUser(ctx context.Context, userID string, unreadOnly bool) ([]Notification, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperr.ErrUnauthorized
	}
	return s.repo.ListByUser(ctx, userID, unreadOnly)
}

func (s *Service) MarkRead(ctx context.Context, userID, id string) (Notification, error) {
	userID = strings.TrimSpace(userID)
	id = strings.TrimSpace(id)
	if userID == "" {
		return Notification{}, apperr.ErrUnauthorized
	}
	if id == "" {
		return Notification{}, fmt.Errorf("%w: notificationId required", apperr.ErrValidation)
	}
	n, err := s.repo.MarkRead(ctx, id, userID, s.now())
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return Notification{}, fmt.Errorf("%w: notification not found", apperr.ErrNotFound)
		}
		return Notification{}, err
	}
	return n, nil
}
