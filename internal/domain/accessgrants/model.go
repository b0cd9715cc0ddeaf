package accessgrants

import (
	"strings"
	"time"
)

// Status es el estado persistido del grant. Es la única forma de escribirlo:
// no existen "approved"/"denied" en ningún lado.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusActive  Status = "ACTIVE"
	StatusExpired Status = "EXPIRED"
	StatusRevoked Status = "REVOKED"
)

var allStatuses = []Status{StatusPending, StatusActive, StatusExpired, StatusRevoked}

// ParseStatus acepta solo la grafía canónica (case-insensitive).
func ParseStatus(s string) (Status, bool) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range allStatuses {
		if st == known {
			return st, true
		}
	}
	return "", false
}

// IsTerminal: EXPIRED y REVOKED no tienen salida.
func (s Status) IsTerminal() bool {
	return s == StatusExpired || s == StatusRevoked
}

// Scope nombra una capability individual del AccessScope.
type Scope string

const (
	ScopeViewMedicalHistory Scope = "canViewMedicalHistory"
	ScopeViewPrescriptions  Scope = "canViewPrescriptions"
	ScopeCreateEncounters   Scope = "canCreateEncounters"
	ScopeViewAuditLogs      Scope = "canViewAuditLogs"
)

// AccessScope son flags independientes; ninguno implica a otro.
type AccessScope struct {
	CanViewMedicalHistory bool
	CanViewPrescriptions  bool
	CanCreateEncounters   bool
	CanViewAuditLogs      bool
}

func (a AccessScope) Allows(s Scope) bool {
	switch s {
	case ScopeViewMedicalHistory:
		return a.CanViewMedicalHistory
	case ScopeViewPrescriptions:
		return a.CanViewPrescriptions
	case ScopeCreateEncounters:
		return a.CanCreateEncounters
	case ScopeViewAuditLogs:
		return a.CanViewAuditLogs
	default:
		return false
	}
}

func (a AccessScope) IsEmpty() bool {
	return !a.CanViewMedicalHistory && !a.CanViewPrescriptions && !a.CanCreateEncounters && !a.CanViewAuditLogs
}

// RequestMetadata se captura para auditoría; nunca se valida.
type RequestMetadata struct {
	IPAddress  string
	UserAgent  string
	DeviceInfo string
}

type Grant struct {
	ID string

	PatientID                string
	OrganizationID           string
	RequestingPractitionerID string

	Status          Status
	Scope           AccessScope
	TimeWindowHours int

	CreatedAt time.Time
	UpdatedAt time.Time
	GrantedAt *time.Time
	// Mientras está PENDING es provisional (CreatedAt + ventana); al aprobar se recalcula desde GrantedAt.
	ExpiresAt time.Time
	RevokedAt *time.Time

	Reason          string
	RequestMetadata RequestMetadata
}

// EffectiveStatus deriva la expiración en el momento de la consulta:
// un ACTIVE vencido es EXPIRED aunque nadie haya corrido el sweep.
func (g Grant) EffectiveStatus(now time.Time) Status {
	if g.Status == StatusActive && !now.Before(g.ExpiresAt) {
		return StatusExpired
	}
	return g.Status
}

// IsEffectivelyActive es el único predicado válido para decisiones de acceso.
func (g Grant) IsEffectivelyActive(now time.Time) bool {
	return g.Status == StatusActive && now.Before(g.ExpiresAt)
}

// Window devuelve la ventana como duración exacta en horas.
func (g Grant) Window() time.Duration {
	return time.Duration(g.TimeWindowHours) * time.Hour
}
