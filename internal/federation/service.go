// Package federation orchestrates secret resolution, pooled handles, and
// identity lookups to answer "find identity" and "validate credential"
// requests from the identity-server boundary.
package federation

import (
	"context"
	"database/sql"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"ndamli-federation/provider/internal/identity/domain"
	"ndamli-federation/provider/internal/identity/repository"
	"ndamli-federation/provider/internal/registry"
	"ndamli-federation/provider/internal/security"
	"ndamli-federation/provider/internal/telemetry"
	telemetrydomain "ndamli-federation/provider/internal/telemetry/domain"
)

const instrumentationName = "ndamli.federation"

// Coordinator resolves identities and validates credentials against the
// external store. Lookups borrow a pooled handle from the registry for the
// active configuration; credential checks are pure and never touch the store.
// Safe for concurrent use.
type Coordinator struct {
	registry *registry.Registry
	emitter  telemetry.EventEmitter

	mu     sync.RWMutex
	source CredentialSource

	// newRepo builds a repository over a live handle; overridable in tests.
	newRepo func(db *sql.DB) repository.Repository
	now     func() time.Time

	tracer      trace.Tracer
	validations metric.Int64Counter
}

// NewCoordinator returns a Coordinator using the given registry and
// credential source. emitter may be nil to disable event emission.
func NewCoordinator(reg *registry.Registry, source CredentialSource, emitter telemetry.EventEmitter) *Coordinator {
	c := &Coordinator{
		registry: reg,
		emitter:  emitter,
		source:   source,
		newRepo:  func(db *sql.DB) repository.Repository { return repository.NewPostgresRepository(db) },
		now:      time.Now,
		tracer:   otel.Tracer(instrumentationName),
	}
	counter, err := otel.Meter(instrumentationName).Int64Counter("federation.credential_validations",
		metric.WithDescription("Credential validation outcomes by result"))
	if err != nil {
		log.Printf("federation: credential validation counter unavailable: %v", err)
	} else {
		c.validations = counter
	}
	return c
}

// Source returns the active credential source.
func (c *Coordinator) Source() CredentialSource {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.source
}

// repo obtains a repository bound to the live handle for the active
// configuration. Handle construction failures surface as *registry.UnavailableError.
func (c *Coordinator) repo(ctx context.Context) (repository.Repository, error) {
	src := c.Source()
	db, err := c.registry.HandleFor(ctx, src.Key(), src.Credentials)
	if err != nil {
		return nil, err
	}
	return c.newRepo(db), nil
}

// ResolveByID returns the identity for the external id, or nil if not found.
func (c *Coordinator) ResolveByID(ctx context.Context, id int64) (*domain.Identity, error) {
	ctx, span := c.tracer.Start(ctx, "federation.ResolveByID")
	defer span.End()

	repo, err := c.repo(ctx)
	if err != nil {
		return nil, err
	}
	identity, err := repo.FindByID(ctx, id)
	c.emitResolution(ctx, identity, "")
	return identity, err
}

// ResolveByLogin matches the login handle exactly (case-sensitive).
func (c *Coordinator) ResolveByLogin(ctx context.Context, login string) (*domain.Identity, error) {
	ctx, span := c.tracer.Start(ctx, "federation.ResolveByLogin")
	defer span.End()

	repo, err := c.repo(ctx)
	if err != nil {
		return nil, err
	}
	identity, err := repo.FindByLogin(ctx, login)
	c.emitResolution(ctx, identity, login)
	return identity, err
}

// ResolveByEmail matches the email case-insensitively.
func (c *Coordinator) ResolveByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	ctx, span := c.tracer.Start(ctx, "federation.ResolveByEmail")
	defer span.End()

	repo, err := c.repo(ctx)
	if err != nil {
		return nil, err
	}
	identity, err := repo.FindByEmail(ctx, email)
	c.emitResolution(ctx, identity, email)
	return identity, err
}

// Search is a passthrough to the repository's substring search over login and
// email. The repository caps limit and returns an empty slice for blank terms.
func (c *Coordinator) Search(ctx context.Context, term string, offset, limit int) ([]*domain.Identity, error) {
	ctx, span := c.tracer.Start(ctx, "federation.Search")
	defer span.End()

	repo, err := c.repo(ctx)
	if err != nil {
		return nil, err
	}
	return repo.Search(ctx, term, offset, limit)
}

// ValidateCredential checks the submitted secret against the identity's
// stored hash. It returns false, never an error, when the account is not
// activated, is locked, has expired, or the secret does not match. The
// candidate secret is never logged or emitted.
func (c *Coordinator) ValidateCredential(ctx context.Context, identity *domain.Identity, candidate string) bool {
	ctx, span := c.tracer.Start(ctx, "federation.ValidateCredential")
	defer span.End()

	if identity == nil {
		return false
	}

	switch {
	case !identity.Activated:
		c.emitValidation(ctx, identity, telemetrydomain.ReasonNotActivated)
		return false
	case identity.Locked:
		c.emitValidation(ctx, identity, telemetrydomain.ReasonLocked)
		return false
	case identity.Expired(c.now()):
		c.emitValidation(ctx, identity, telemetrydomain.ReasonExpired)
		return false
	case !security.IsBcryptHash(identity.PasswordHash):
		c.emitValidation(ctx, identity, telemetrydomain.ReasonBadHash)
		return false
	}

	if !security.Matches(candidate, identity.PasswordHash) {
		c.emitValidation(ctx, identity, telemetrydomain.ReasonWrongPassword)
		return false
	}
	c.emitValidation(ctx, identity, "")
	return true
}

// OnConfigurationChanged installs next as the active credential source. When
// the configuration key differs, the old registry handle is invalidated and
// the old source's cached secrets dropped before next becomes visible, so no
// caller observes a half-invalidated state.
func (c *Coordinator) OnConfigurationChanged(next CredentialSource) {
	c.mu.Lock()
	defer c.mu.Unlock()

	old := c.source
	if old != nil && old.Key() == next.Key() {
		return
	}
	if old != nil {
		c.registry.Invalidate(old.Key())
		old.Reset()
		log.Printf("federation: configuration changed, retired handle for %s", old.Key())
	}
	c.source = next

	telemetry.EmitAsync(c.emitter, context.Background(), &telemetrydomain.AuthEvent{
		EventType: telemetrydomain.EventConfigInvalidated,
		ConfigKey: next.Key(),
		CreatedAt: c.now().UTC(),
	})
}

// Shutdown retires every pooled handle and drops cached secrets.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.source != nil {
		c.source.Reset()
	}
	c.registry.Shutdown()
}

func (c *Coordinator) emitResolution(ctx context.Context, identity *domain.Identity, login string) {
	event := &telemetrydomain.AuthEvent{
		EventType: telemetrydomain.EventIdentityNotFound,
		Login:     login,
		CreatedAt: c.now().UTC(),
	}
	if identity != nil {
		event.EventType = telemetrydomain.EventIdentityResolved
		event.IdentityID = identity.ID
		event.Login = identity.Login
	}
	telemetry.EmitAsync(c.emitter, ctx, event)
}

func (c *Coordinator) emitValidation(ctx context.Context, identity *domain.Identity, reason string) {
	outcome := "accepted"
	eventType := telemetrydomain.EventCredentialAccepted
	if reason != "" {
		outcome = "rejected"
		eventType = telemetrydomain.EventCredentialRejected
	}
	if c.validations != nil {
		c.validations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
	telemetry.EmitAsync(c.emitter, ctx, &telemetrydomain.AuthEvent{
		EventType:  eventType,
		IdentityID: identity.ID,
		Login:      identity.Login,
		Reason:     reason,
		CreatedAt:  c.now().UTC(),
	})
}
