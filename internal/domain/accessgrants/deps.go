package accessgrants

import (
	"context"
	"errors"
	"time"
)

// PatientDirectory evita importar el paquete patients (rompe ciclos).
type PatientDirectory interface {
	ResolveDigitalIdentifier(ctx context.Context, digitalIdentifier string) (string, error)
	PatientIDForUser(ctx context.Context, userID string) (string, error)
	OwnerOf(ctx context.Context, patientID string) (string, error)
}

// Notifier es el relay de notificaciones. Best-effort: su error se loguea y no se propaga.
type Notifier interface {
	AccessRequested(ctx context.Context, g Grant) error
	AccessDecided(ctx context.Context, g Grant) error
}

var ErrLockHeld = errors.New("request lock held")

// RequestLock serializa requests del mismo (patient, org, practitioner) entre instancias.
// TryAcquire no bloquea: ok=false si otro lo tiene.
type RequestLock interface {
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// MetricsRecorder lo implementa platform/metrics.Registry.
type MetricsRecorder interface {
	GrantTransition(status string)
	AccessDecision(scope, basis string, allowed bool)
	GrantsExpired(n int)
	SideEffectFailed(kind string)
}

type nopNotifier struct{}

func (nopNotifier) AccessRequested(context.Context, Grant) error { return nil }
func (nopNotifier) AccessDecided(context.Context, Grant) error   { return nil }

type nopMetrics struct{}

func (nopMetrics) GrantTransition(string)             {}
func (nopMetrics) AccessDecision(string, string, bool) {}
func (nopMetrics) GrantsExpired(int)                   {}
func (nopMetrics) SideEffectFailed(string)             {}
