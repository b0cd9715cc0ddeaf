package auth

import "strings"

// Role es el rol de la cuenta que hace el request.
type Role string

const (
	RolePatient      Role = "patient"
	RolePractitioner Role = "practitioner"
	RolePharmacist   Role = "pharmacist"
	RoleAdmin        Role = "admin"
)

// ParseRole normaliza el claim; roles desconocidos quedan vacíos (sin privilegios).
func ParseRole(s string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RolePatient:
		return RolePatient
	case RolePractitioner, "doctor":
		return RolePractitioner
	case RolePharmacist:
		return RolePharmacist
	case RoleAdmin:
		return RoleAdmin
	default:
		return ""
	}
}

// IsClinician: practitioners y pharmacists son los que pueden operar bajo un grant de su organización.
func (r Role) IsClinician() bool {
	return r == RolePractitioner || r == RolePharmacist
}

// Claims representa la información extraída del token.
type Claims struct {
	UserID         string
	Email          string
	Role           Role
	OrganizationID string
}
