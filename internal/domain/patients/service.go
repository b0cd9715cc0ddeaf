package patients

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"patient-access/internal/domain/accessgrants"
	"patient-access/internal/platform/apperr"

	"github.com/google/uuid"
)

var (
	ErrInvalidInput      = apperr.ErrValidation
	ErrNotFound          = apperr.ErrNotFound
	ErrAlreadyRegistered = fmt.Errorf("%w: patient already registered for this account", apperr.ErrInvalidState)
)

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{
		repo: repo,
		now:  time.Now,
	}
}

type RegisterInput struct {
	FullName  string
	BirthDate *time.Time
	Sex       string
	BloodType string
	Notes     string
}

// Register crea el registro del usuario. Uno por cuenta.
func (s *Service) Register(ctx context.Context, userID string, in RegisterInput) (Patient, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Patient{}, fmt.Errorf("%w: userId required", ErrInvalidInput)
	}
	if strings.TrimSpace(in.FullName) == "" {
		return Patient{}, fmt.Errorf("%w: fullName required", ErrInvalidInput)
	}
	sex, ok := ParseSex(strings.ToLower(strings.TrimSpace(in.Sex)))
	if !ok {
		return Patient{}, fmt.Errorf("%w: sex must be male, female, other or unknown", ErrInvalidInput)
	}
	if in.BirthDate != nil && in.BirthDate.After(s.now()) {
		return Patient{}, fmt.Errorf("%w: birthDate in the future", ErrInvalidInput)
	}

	if _, err := s.repo.GetByUserID(ctx, userID); err == nil {
		return Patient{}, ErrAlreadyRegistered
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return Patient{}, err
	}

	now := s.now()
	p := Patient{
		ID:                uuid.NewString(),
		UserID:            userID,
		DigitalIdentifier: newDigitalIdentifier(),
		FullName:          strings.TrimSpace(in.FullName),
		BirthDate:         in.BirthDate,
		Sex:               sex,
		BloodType:         strings.ToUpper(strings.TrimSpace(in.BloodType)),
		Notes:             strings.TrimSpace(in.Notes),
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.repo.Create(ctx, p); err != nil {
		return Patient{}, err
	}
	return p, nil
}

// UpdateProfileInput usa punteros: nil = no tocar.
type UpdateProfileInput struct {
	FullName  *string
	BirthDate *time.Time
	Sex       *string
	BloodType *string
	Notes     *string
}

// UpdateProfile solo sobre el registro propio. El DigitalIdentifier no cambia nunca.
func (s *Service) UpdateProfile(ctx context.Context, userID string, in UpdateProfileInput) (Patient, error) {
	p, err := s.GetByUser(ctx, userID)
	if err != nil {
		return Patient{}, err
	}

	if in.FullName != nil {
		name := strings.TrimSpace(*in.FullName)
		if name == "" {
			return Patient{}, fmt.Errorf("%w: fullName cannot be empty", ErrInvalidInput)
		}
		p.FullName = name
	}
	if in.BirthDate != nil {
		if in.BirthDate.After(s.now()) {
			return Patient{}, fmt.Errorf("%w: birthDate in the future", ErrInvalidInput)
		}
		bd := *in.BirthDate
		p.BirthDate = &bd
	}
	if in.Sex != nil {
		sex, ok := ParseSex(strings.ToLower(strings.TrimSpace(*in.Sex)))
		if !ok {
			return Patient{}, fmt.Errorf("%w: sex must be male, female, other or unknown", ErrInvalidInput)
		}
		p.Sex = sex
	}
	if in.BloodType != nil {
		p.BloodType = strings.ToUpper(strings.TrimSpace(*in.BloodType))
	}
	if in.Notes != nil {
		p.Notes = strings.TrimSpace(*in.Notes)
	}
	p.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, p); err != nil {
		return Patient{}, err
	}
	return p, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (Patient, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Patient{}, fmt.Errorf("%w: patientId required", ErrInvalidInput)
	}
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Patient{}, notFound(err)
	}
	return p, nil
}

func (s *Service) GetByUser(ctx context.Context, userID string) (Patient, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Patient{}, fmt.Errorf("%w: userId required", ErrInvalidInput)
	}
	p, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		return Patient{}, notFound(err)
	}
	return p, nil
}

// QR devuelve el payload base64 que el paciente muestra para que lo escaneen.
func (s *Service) QR(ctx context.Context, userID string) (string, accessgrants.QRPayload, error) {
	p, err := s.GetByUser(ctx, userID)
	if err != nil {
		return "", accessgrants.QRPayload{}, err
	}
	now := s.now()
	encoded := accessgrants.EncodeQRPayload(p.DigitalIdentifier, now)
	return encoded, accessgrants.QRPayload{
		Type:              accessgrants.QRTypeAccessRequest,
		DigitalIdentifier: p.DigitalIdentifier,
		Version:           accessgrants.QRVersion,
		Timestamp:         now.UnixMilli(),
	}, nil
}

// newDigitalIdentifier: "HID-" + 16 hex en mayúsculas. No se deriva del ID interno.
func newDigitalIdentifier() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "HID-" + strings.ToUpper(raw[:16])
}

func notFound(err error) error {
	if errors.Is(err, apperr.ErrNotFound) {
		return fmt.Errorf("%w: patient not found", ErrNotFound)
	}
	return err
}
