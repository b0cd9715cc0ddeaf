package router

import (
	"database/sql"

	mem "patient-access/internal/adapters/storage/memory"
	mdb "patient-access/internal/adapters/storage/mongodb"
	pg "patient-access/internal/adapters/storage/postgres"
	"patient-access/internal/domain/accessgrants"
	"patient-access/internal/domain/audit"
	"patient-access/internal/domain/encounters"
	"patient-access/internal/domain/notifications"
	"patient-access/internal/domain/patients"
	"patient-access/internal/domain/prescriptions"

	"go.mongodb.org/mongo-driver/v2/mongo"
)

// Stores agrupa los repos de todos los módulos. Se elige un backend completo, no se mezclan.
type Stores struct {
	Patients      patients.Repository
	Grants        accessgrants.Repository
	Encounters    encounters.Repository
	Prescriptions prescriptions.Repository
	Audit         audit.Repository
	Notifications notifications.Repository
}

func MemoryStores() Stores {
	return Stores{
		Patients:      mem.NewPatientRepo(),
		Grants:        mem.NewAccessGrantsRepo(),
		Encounters:    mem.NewEncounterRepo(),
		Prescriptions: mem.NewPrescriptionRepo(),
		Audit:         mem.NewAuditRepo(),
		Notifications: mem.NewNotificationRepo(),
	}
}

func PostgresStores(db *sql.DB) Stores {
	return Stores{
		Patients:      pg.NewPatientsRepo(db),
		Grants:        pg.NewAccessGrantsRepo(db),
		Encounters:    pg.NewEncountersRepo(db),
		Prescriptions: pg.NewPrescriptionsRepo(db),
		Audit:         pg.NewAuditRepo(db),
		Notifications: pg.NewNotificationsRepo(db),
	}
}

func MongoStores(db *mongo.Database) Stores {
	return Stores{
		Patients:      mdb.NewPatientsRepo(db),
		Grants:        mdb.NewAccessGrantsRepo(db),
		Encounters:    mdb.NewEncountersRepo(db),
		Prescriptions: mdb.NewPrescriptionsRepo(db),
		Audit:         mdb.NewAuditRepo(db),
		Notifications: mdb.NewNotificationsRepo(db),
	}
}
