package accessgrants

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"patient-access/internal/platform/apperr"
	"patient-access/internal/platform/logger"
	"patient-access/internal/ports/auditlog"
	"patient-access/internal/ports/auth"
	"patient-access/internal/ports/directory"

	"github.com/google/uuid"
)

var (
	ErrInvalidInput = apperr.ErrValidation
	ErrForbidden    = apperr.ErrForbidden
	ErrNotFound     = apperr.ErrNotFound
	ErrBadState     = apperr.ErrInvalidState
)

const (
	defaultWindowHours = 24
	defaultMaxHours    = 720

	resourceGrant = "authorization_grant"
)

type Service struct {
	repo     Repository
	patients PatientDirectory
	now      func() time.Time

	notifier   Notifier
	audit      auditlog.Recorder
	lock       RequestLock
	membership directory.MembershipResolver
	metrics    MetricsRecorder
	log        logger.Logger

	defaultWindowHours int
	maxWindowHours     int
	lockTTL            time.Duration
	lockWait           time.Duration
}

type Option func(*Service)

func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

func WithAuditRecorder(r auditlog.Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.audit = r
		}
	}
}

func WithRequestLock(l RequestLock) Option {
	return func(s *Service) { s.lock = l }
}

func WithMembership(m directory.MembershipResolver) Option {
	return func(s *Service) { s.membership = m }
}

func WithMetrics(m MetricsRecorder) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithTimeWindow fija la ventana por defecto (si el request manda 0) y el máximo aceptado.
func WithTimeWindow(defaultHours, maxHours int) Option {
	return func(s *Service) {
		if defaultHours > 0 {
			s.defaultWindowHours = defaultHours
		}
		if maxHours >= s.defaultWindowHours {
			s.maxWindowHours = maxHours
		}
	}
}

func NewService(repo Repository, patients PatientDirectory, opts ...Option) *Service {
	s := &Service{
		repo:               repo,
		patients:           patients,
		now:                time.Now,
		notifier:           nopNotifier{},
		audit:              auditlog.Nop{},
		metrics:            nopMetrics{},
		log:                logger.Nop(),
		defaultWindowHours: defaultWindowHours,
		maxWindowHours:     defaultMaxHours,
		lockTTL:            10 * time.Second,
		lockWait:           2 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type RequestInput struct {
	ScannedQRData            string
	OrganizationID           string
	RequestingPractitionerID string
	Scope                    AccessScope
	TimeWindowHours          int
	Metadata                 RequestMetadata
}

type RequestOutcome struct {
	Grant Grant
	// Deduplicated indica que se reutilizó un PENDING existente del mismo triple.
	Deduplicated bool
}

// Request crea (o colapsa) un grant PENDING a partir del QR escaneado por el practitioner.
func (s *Service) Request(ctx context.Context, actor auth.Claims, in RequestInput) (RequestOutcome, error) {
	// El QR se valida antes que todo lo demás: un payload inválido nunca llega al repo.
	qr, err := ParseQRPayload(in.ScannedQRData)
	if err != nil {
		return RequestOutcome{}, err
	}

	orgID := strings.TrimSpace(in.OrganizationID)
	practitionerID := strings.TrimSpace(in.RequestingPractitionerID)
	if orgID == "" || practitionerID == "" {
		return RequestOutcome{}, fmt.Errorf("%w: organizationId and requestingPractitionerId required", ErrInvalidInput)
	}
	if in.Scope.IsEmpty() {
		return RequestOutcome{}, fmt.Errorf("%w: accessScope must enable at least one capability", ErrInvalidInput)
	}
	hours, err := s.normalizeWindow(in.TimeWindowHours)
	if err != nil {
		return RequestOutcome{}, err
	}

	if err := s.authorizeRequester(ctx, actor, orgID, practitionerID); err != nil {
		return RequestOutcome{}, err
	}

	patientID, err := s.patients.ResolveDigitalIdentifier(ctx, qr.DigitalIdentifier)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return RequestOutcome{}, fmt.Errorf("%w: no patient for digital identifier", ErrNotFound)
		}
		return RequestOutcome{}, err
	}

	release, err := s.acquire(ctx, requestLockKey(patientID, orgID, practitionerID))
	if err != nil {
		return RequestOutcome{}, err
	}
	defer release()

	out, err := s.createOrCollapse(ctx, Grant{
		PatientID:                patientID,
		OrganizationID:           orgID,
		RequestingPractitionerID: practitionerID,
		Scope:                    in.Scope,
		TimeWindowHours:          hours,
		RequestMetadata:          in.Metadata,
	})
	if err != nil {
		return RequestOutcome{}, err
	}

	if !out.Deduplicated {
		s.metrics.GrantTransition(string(StatusPending))
	}
	s.notify(ctx, "access_requested", func() error { return s.notifier.AccessRequested(ctx, out.Grant) })
	s.record(ctx, actor, out.Grant, "authorization.request", "")

	return out, nil
}

func (s *Service) createOrCollapse(ctx context.Context, draft Grant) (RequestOutcome, error) {
	now := s.now()

	pending, err := s.repo.FindPending(ctx, draft.PatientID, draft.OrganizationID, draft.RequestingPractitionerID)
	if err != nil {
		return RequestOutcome{}, err
	}

	if winner, ok := latestByUpdate(pending); ok {
		winner.Scope = draft.Scope
		winner.TimeWindowHours = draft.TimeWindowHours
		winner.ExpiresAt = now.Add(draft.Window())
		winner.RequestMetadata = draft.RequestMetadata
		winner.UpdatedAt = now

		err := s.repo.UpdatePending(ctx, winner)
		if err == nil {
			s.revokeDuplicates(ctx, winner.ID, pending, now)
			return RequestOutcome{Grant: winner, Deduplicated: true}, nil
		}
		// Si el paciente resolvió el pendiente entre el Find y el Update, se crea uno nuevo.
		if !errors.Is(err, ErrStateConflict) {
			return RequestOutcome{}, err
		}
	}

	g := draft
	g.ID = uuid.NewString()
	g.Status = StatusPending
	g.CreatedAt = now
	g.UpdatedAt = now
	g.ExpiresAt = now.Add(draft.Window())

	if err := s.repo.Create(ctx, g); err != nil {
		return RequestOutcome{}, err
	}
	return RequestOutcome{Grant: g}, nil
}

// revokeDuplicates limpia data sucia: si existieran varios PENDING del mismo triple, queda uno.
func (s *Service) revokeDuplicates(ctx context.Context, winnerID string, pending []Grant, now time.Time) {
	for _, g := range pending {
		if g.ID == winnerID {
			continue
		}
		_, err := s.repo.Transition(ctx, Transition{
			GrantID:   g.ID,
			PatientID: g.PatientID,
			From:      []Status{StatusPending},
			To:        StatusRevoked,
			At:        now,
			RevokedAt: &now,
			Reason:    "superseded by a newer request",
		})
		if err != nil {
			logger.FromContext(ctx, s.log).Warn("revoke duplicate pending grant failed", map[string]any{
				"grant_id": g.ID,
				"error":    err,
			})
		}
	}
}

type DecisionInput struct {
	GrantID   string
	PatientID string
	Reason    string
	Actor     auth.Claims
}

// Now es el reloj del servicio; los handlers lo usan para el status efectivo de las respuestas.
func (s *Service) Now() time.Time {
	return s.now()
}

// Approve: PENDING -> ACTIVE, solo el paciente dueño. expiresAt = grantedAt + ventana.
func (s *Service) Approve(ctx context.Context, in DecisionInput) (Grant, error) {
	g, err := s.ownedGrant(ctx, in.GrantID, in.PatientID)
	if err != nil {
		return Grant{}, err
	}

	now := s.now()
	if st := g.EffectiveStatus(now); st != StatusPending {
		return Grant{}, fmt.Errorf("%w: grant is %s, only PENDING can be approved", ErrBadState, st)
	}

	grantedAt := now
	expiresAt := grantedAt.Add(g.Window())

	updated, err := s.repo.Transition(ctx, Transition{
		GrantID:   g.ID,
		PatientID: g.PatientID,
		From:      []Status{StatusPending},
		To:        StatusActive,
		At:        now,
		GrantedAt: &grantedAt,
		ExpiresAt: &expiresAt,
		Reason:    strings.TrimSpace(in.Reason),
	})
	if err != nil {
		return Grant{}, transitionError(err)
	}

	s.afterDecision(ctx, in.Actor, updated, "authorization.approve")
	return updated, nil
}

// Revoke deniega un PENDING o revoca un ACTIVE vigente. Solo el paciente dueño.
// Un ACTIVE ya vencido cuenta como EXPIRED (terminal).
func (s *Service) Revoke(ctx context.Context, in DecisionInput) (Grant, error) {
	g, err := s.ownedGrant(ctx, in.GrantID, in.PatientID)
	if err != nil {
		return Grant{}, err
	}

	now := s.now()
	st := g.EffectiveStatus(now)
	if st != StatusPending && st != StatusActive {
		return Grant{}, fmt.Errorf("%w: grant is %s and cannot be revoked", ErrBadState, st)
	}

	action := "authorization.deny"
	if st == StatusActive {
		action = "authorization.revoke"
	}

	// Compare-and-set sobre el estado leído: si otro request lo cambió entre medio, ErrStateConflict.
	updated, err := s.repo.Transition(ctx, Transition{
		GrantID:   g.ID,
		PatientID: g.PatientID,
		From:      []Status{st},
		To:        StatusRevoked,
		At:        now,
		RevokedAt: &now,
		Reason:    strings.TrimSpace(in.Reason),
	})
	if err != nil {
		return Grant{}, transitionError(err)
	}

	s.afterDecision(ctx, in.Actor, updated, action)
	return updated, nil
}

// Get devuelve el grant si el actor es el paciente dueño, el practitioner que lo pidió o admin.
// Para cualquier otro responde NotFound (no filtra existencia).
func (s *Service) Get(ctx context.Context, actor auth.Claims, actorPatientID, grantID string) (Grant, error) {
	grantID = strings.TrimSpace(grantID)
	if grantID == "" {
		return Grant{}, fmt.Errorf("%w: grantId required", ErrInvalidInput)
	}
	g, err := s.repo.GetByID(ctx, grantID)
	if err != nil {
		return Grant{}, notFound(err)
	}

	visible := actor.Role == auth.RoleAdmin ||
		(actorPatientID != "" && g.PatientID == actorPatientID) ||
		(actor.UserID != "" && g.RequestingPractitionerID == actor.UserID)
	if !visible {
		return Grant{}, fmt.Errorf("%w: grant not found", ErrNotFound)
	}
	return g, nil
}

// ListForPatient filtra por status efectivo (un ACTIVE vencido aparece como EXPIRED).
func (s *Service) ListForPatient(ctx context.Context, patientID string, statuses map[Status]struct{}) ([]Grant, error) {
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return nil, fmt.Errorf("%w: patientId required", ErrInvalidInput)
	}
	items, err := s.repo.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	return s.filterEffective(items, statuses), nil
}

func (s *Service) ListRequestedBy(ctx context.Context, practitionerID string, statuses map[Status]struct{}) ([]Grant, error) {
	practitionerID = strings.TrimSpace(practitionerID)
	if practitionerID == "" {
		return nil, fmt.Errorf("%w: practitionerId required", ErrInvalidInput)
	}
	items, err := s.repo.ListByPractitioner(ctx, practitionerID)
	if err != nil {
		return nil, err
	}
	return s.filterEffective(items, statuses), nil
}

// EffectiveGrant es el chequeo de acceso por consentimiento:
// status == ACTIVE && expiresAt > now && flag del scope en true.
func (s *Service) EffectiveGrant(ctx context.Context, patientID, organizationID string, scope Scope) (Grant, error) {
	patientID = strings.TrimSpace(patientID)
	organizationID = strings.TrimSpace(organizationID)
	if patientID == "" || organizationID == "" {
		return Grant{}, fmt.Errorf("%w: no active grant", ErrForbidden)
	}

	now := s.now()
	items, err := s.repo.FindActive(ctx, patientID, organizationID, now)
	if err != nil {
		return Grant{}, err
	}

	var winner Grant
	found := false
	for _, g := range items {
		if !g.IsEffectivelyActive(now) || !g.Scope.Allows(scope) {
			continue
		}
		if !found || g.ExpiresAt.After(winner.ExpiresAt) {
			winner = g
			found = true
		}
	}
	if !found {
		return Grant{}, fmt.Errorf("%w: no active grant with %s", ErrForbidden, scope)
	}
	return winner, nil
}

// ExpireStale materializa la expiración. Las decisiones de acceso no dependen de esto.
func (s *Service) ExpireStale(ctx context.Context) (int, error) {
	n, err := s.repo.ExpireStale(ctx, s.now())
	if err != nil {
		return 0, err
	}
	s.metrics.GrantsExpired(n)
	return n, nil
}

// Stats devuelve conteos por status persistido. Siempre trae las cuatro claves, en 0 si no hay datos.
func (s *Service) Stats(ctx context.Context) (map[Status]int, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[Status]int, len(allStatuses))
	for _, st := range allStatuses {
		out[st] = counts[st]
	}
	return out, nil
}

// PatientIDForUser expone el directorio a los handlers.
func (s *Service) PatientIDForUser(ctx context.Context, userID string) (string, error) {
	return s.patients.PatientIDForUser(ctx, userID)
}

func (s *Service) ownedGrant(ctx context.Context, grantID, patientID string) (Grant, error) {
	grantID = strings.TrimSpace(grantID)
	patientID = strings.TrimSpace(patientID)
	if grantID == "" {
		return Grant{}, fmt.Errorf("%w: grantId required", ErrInvalidInput)
	}

	g, err := s.repo.GetByID(ctx, grantID)
	if err != nil {
		return Grant{}, notFound(err)
	}
	// Mismo error si no existe o si es de otro paciente.
	if patientID == "" || g.PatientID != patientID {
		return Grant{}, fmt.Errorf("%w: grant not found", ErrNotFound)
	}
	return g, nil
}

func (s *Service) authorizeRequester(ctx context.Context, actor auth.Claims, orgID, practitionerID string) error {
	if strings.TrimSpace(actor.UserID) == "" {
		return apperr.ErrUnauthorized
	}
	if !actor.Role.IsClinician() {
		return fmt.Errorf("%w: only practitioners can request access", ErrForbidden)
	}
	if actor.UserID != practitionerID {
		return fmt.Errorf("%w: requestingPractitionerId must be the caller", ErrForbidden)
	}
	if actor.OrganizationID != "" && actor.OrganizationID != orgID {
		return fmt.Errorf("%w: caller does not belong to organization", ErrForbidden)
	}
	if s.membership == nil {
		return nil
	}
	ok, err := s.membership.IsMember(ctx, practitionerID, orgID)
	if err != nil {
		return fmt.Errorf("membership lookup: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: practitioner is not a member of organization", ErrForbidden)
	}
	return nil
}

func (s *Service) normalizeWindow(hours int) (int, error) {
	if hours == 0 {
		return s.defaultWindowHours, nil
	}
	if hours < 0 || hours > s.maxWindowHours {
		return 0, fmt.Errorf("%w: timeWindowHours must be between 1 and %d", ErrInvalidInput, s.maxWindowHours)
	}
	return hours, nil
}

// acquire toma el lock del triple. Si el backend del lock falla se sigue sin lock:
// el dedup es best-effort, las transiciones siguen siendo condicionales.
func (s *Service) acquire(ctx context.Context, key string) (func(), error) {
	noop := func() {}
	if s.lock == nil {
		return noop, nil
	}

	deadline := time.Now().Add(s.lockWait)
	for {
		release, ok, err := s.lock.TryAcquire(ctx, key, s.lockTTL)
		if err != nil {
			logger.FromContext(ctx, s.log).Warn("request lock unavailable, continuing without it", map[string]any{
				"key":   key,
				"error": err,
			})
			return noop, nil
		}
		if ok {
			return release, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: an identical request is already in progress", ErrBadState)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func (s *Service) afterDecision(ctx context.Context, actor auth.Claims, g Grant, action string) {
	s.metrics.GrantTransition(string(g.Status))
	s.notify(ctx, "access_decided", func() error { return s.notifier.AccessDecided(ctx, g) })
	s.record(ctx, actor, g, action, g.Reason)
}

// notify corre un side effect best-effort: si falla, se loguea y se cuenta, nada más.
func (s *Service) notify(ctx context.Context, kind string, fn func() error) {
	if err := fn(); err != nil {
		s.metrics.SideEffectFailed("notification")
		logger.FromContext(ctx, s.log).Warn("notification failed", map[string]any{
			"kind":  kind,
			"error": err,
		})
	}
}

func (s *Service) record(ctx context.Context, actor auth.Claims, g Grant, action, detail string) {
	s.audit.Record(ctx, auditlog.Entry{
		PatientID:      g.PatientID,
		ActorUserID:    actor.UserID,
		ActorRole:      string(actor.Role),
		OrganizationID: g.OrganizationID,
		Action:         action,
		ResourceType:   resourceGrant,
		ResourceID:     g.ID,
		Outcome:        auditlog.OutcomeSuccess,
		Detail:         detail,
		IPAddress:      g.RequestMetadata.IPAddress,
		UserAgent:      g.RequestMetadata.UserAgent,
		OccurredAt:     s.now(),
	})
}

func (s *Service) filterEffective(items []Grant, statuses map[Status]struct{}) []Grant {
	now := s.now()
	out := make([]Grant, 0, len(items))
	for _, g := range items {
		if len(statuses) > 0 {
			if _, ok := statuses[g.EffectiveStatus(now)]; !ok {
				continue
			}
		}
		out = append(out, g)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func latestByUpdate(items []Grant) (Grant, bool) {
	var winner Grant
	has := false
	for _, g := range items {
		if !has || g.UpdatedAt.After(winner.UpdatedAt) ||
			(g.UpdatedAt.Equal(winner.UpdatedAt) && g.CreatedAt.After(winner.CreatedAt)) {
			winner = g
			has = true
		}
	}
	return winner, has
}

func requestLockKey(patientID, orgID, practitionerID string) string {
	return "grant-request:" + patientID + ":" + orgID + ":" + practitionerID
}

func transitionError(err error) error {
	if errors.Is(err, ErrStateConflict) {
		return fmt.Errorf("%w: grant changed state concurrently", ErrBadState)
	}
	return err
}

func notFound(err error) error {
	if errors.Is(err, apperr.ErrNotFound) {
		return fmt.Errorf("%w: grant not found", ErrNotFound)
	}
	return err
}
