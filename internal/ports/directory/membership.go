package directory

import "context"

// MembershipResolver responde si un practitioner pertenece a una organización.
type MembershipResolver interface {
	IsMember(ctx context.Context, practitionerID, organizationID string) (bool, error)
}
