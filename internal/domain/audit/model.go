package audit

import (
	"time"

	"patient-access/internal/ports/auditlog"
)

// Record es una entrada persistida del audit log. Append-only.
type Record struct {
	ID string
	auditlog.Entry
	RecordedAt time.Time
}
