package patients

import "context"

// OwnerOf, ResolveDigitalIdentifier y PatientIDForUser implementan accessgrants.PatientDirectory.
// Así accessgrants no importa este paquete.
func (s *Service) OwnerOf(ctx context.Context, patientID string) (string, error) {
	p, err := s.GetByID(ctx, patientID)
	if err != nil {
		return "", err
	}
	return p.UserID, nil
}

func (s *Service) ResolveDigitalIdentifier(ctx context.Context, digitalIdentifier string) (string, error) {
	p, err := s.repo.GetByDigitalIdentifier(ctx, digitalIdentifier)
	if err != nil {
		return "", err
	}
	return p.ID, nil
}

func (s *Service) PatientIDForUser(ctx context.Context, userID string) (string, error) {
	p, err := s.GetByUser(ctx, userID)
	if err != nil {
		return "", err
	}
	return p.ID, nil
}
