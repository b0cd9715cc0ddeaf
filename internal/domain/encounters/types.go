package encounters

type EncounterType string

const (
	TypeConsultation EncounterType = "CONSULTATION"
	TypeFollowUp     EncounterType = "FOLLOW_UP"
	TypeEmergency    EncounterType = "EMERGENCY"
	TypeTelemedicine EncounterType = "TELEMEDICINE"
	TypeProcedure    EncounterType = "PROCEDURE"
	TypeLabResult    EncounterType = "LAB_RESULT"
)

func (t EncounterType) Valid() bool {
	switch t {
	case TypeConsultation, TypeFollowUp, TypeEmergency, TypeTelemedicine, TypeProcedure, TypeLabResult:
		return true
	default:
		return false
	}
}

type Status string

const (
	StatusInProgress Status = "IN_PROGRESS"
	StatusFinished   Status = "FINISHED"
)
