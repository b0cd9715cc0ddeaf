package patients

import "time"

// Sex del paciente.
// @Enum male, female, other, unknown
type Sex string

const (
	SexMale    Sex = "male"
	SexFemale  Sex = "female"
	SexOther   Sex = "other"
	SexUnknown Sex = "unknown"
)

func ParseSex(s string) (Sex, bool) {
	switch Sex(s) {
	case SexMale, SexFemale, SexOther, SexUnknown:
		return Sex(s), true
	case "":
		return SexUnknown, true
	default:
		return "", false
	}
}

// Patient es el registro clínico de una cuenta. Una cuenta tiene a lo sumo un registro.
type Patient struct {
	ID     string
	UserID string

	// DigitalIdentifier es lo que viaja en el QR; nunca el ID interno.
	DigitalIdentifier string

	FullName  string
	BirthDate *time.Time
	Sex       Sex
	BloodType string
	Notes     string

	CreatedAt time.Time
	UpdatedAt time.Time
}
