package federation

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"ndamli-federation/provider/internal/identity/domain"
	"ndamli-federation/provider/internal/identity/repository"
	"ndamli-federation/provider/internal/registry"
	"ndamli-federation/provider/internal/security"
	"ndamli-federation/provider/internal/telemetry"
	telemetrydomain "ndamli-federation/provider/internal/telemetry/domain"
	"ndamli-federation/provider/internal/vault"
)

// fakeDriver satisfies database/sql so the registry can hand out handles
// without a live Postgres.
type fakeDriver struct{}

func (fakeDriver) Open(name string) (driver.Conn, error) { return fakeConn{}, nil }

type fakeConn struct{}

func (fakeConn) Prepare(query string) (driver.Stmt, error) { return nil, errors.New("not implemented") }
func (fakeConn) Close() error                              { return nil }
func (fakeConn) Begin() (driver.Tx, error)                 { return nil, errors.New("not implemented") }

func init() {
	sql.Register("federationfake", fakeDriver{})
}

// memRepo serves identities from memory, standing in for the Postgres
// repository behind a pooled handle.
type memRepo struct {
	mu         sync.Mutex
	byID       map[int64]*domain.Identity
	searchHits []*domain.Identity
	lastSearch string
}

func newMemRepo(identities ...*domain.Identity) *memRepo {
	r := &memRepo{byID: make(map[int64]*domain.Identity)}
	for _, id := range identities {
		r.byID[id.ID] = id
	}
	return r
}

func (r *memRepo) FindByID(ctx context.Context, id int64) (*domain.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byID[id], nil
}

func (r *memRepo) FindByLogin(ctx context.Context, login string) (*domain.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.byID {
		if id.Login == login {
			return id, nil
		}
	}
	return nil, nil
}

func (r *memRepo) FindByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.byID {
		if strings.EqualFold(id.Email, email) {
			return id, nil
		}
	}
	return nil, nil
}

func (r *memRepo) Search(ctx context.Context, term string, offset, limit int) ([]*domain.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastSearch = term
	return r.searchHits, nil
}

// fakeSource is a CredentialSource with an observable Reset.
type fakeSource struct {
	key      string
	err      error
	mu       sync.Mutex
	resets   int
	supplied int
}

func (s *fakeSource) Key() string { return s.key }

func (s *fakeSource) Credentials(ctx context.Context) (vault.Credentials, error) {
	s.mu.Lock()
	s.supplied++
	s.mu.Unlock()
	if s.err != nil {
		return vault.Credentials{}, s.err
	}
	return vault.Credentials{URL: "postgres://localhost:5432/users"}, nil
}

func (s *fakeSource) Reset() {
	s.mu.Lock()
	s.resets++
	s.mu.Unlock()
}

func (s *fakeSource) resetCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resets
}

func newTestCoordinator(t *testing.T, repo repository.Repository, source CredentialSource) *Coordinator {
	t.Helper()
	reg := registry.NewWithOpener(registry.PoolConfig{}, func(dsn string) (*sql.DB, error) {
		return sql.Open("federationfake", dsn)
	})
	t.Cleanup(reg.Shutdown)
	c := NewCoordinator(reg, source, nil)
	c.newRepo = func(db *sql.DB) repository.Repository { return repo }
	return c
}

func testIdentity(hash string) *domain.Identity {
	return &domain.Identity{
		ID:           1,
		Login:        "admin",
		Email:        "admin@example.sn",
		PasswordHash: hash,
		Activated:    true,
	}
}

func TestResolveByID(t *testing.T) {
	identity := testIdentity("")
	c := newTestCoordinator(t, newMemRepo(identity), &fakeSource{key: "k1"})

	got, err := c.ResolveByID(context.Background(), 1)
	if err != nil {
		t.Fatalf("ResolveByID: %v", err)
	}
	if got == nil || got.Login != "admin" {
		t.Errorf("ResolveByID = %+v, want admin", got)
	}

	missing, err := c.ResolveByID(context.Background(), 99)
	if err != nil {
		t.Fatalf("ResolveByID missing: %v", err)
	}
	if missing != nil {
		t.Errorf("ResolveByID(99) = %+v, want nil", missing)
	}
}

func TestResolveByLoginAndEmail(t *testing.T) {
	identity := testIdentity("")
	c := newTestCoordinator(t, newMemRepo(identity), &fakeSource{key: "k1"})

	byLogin, err := c.ResolveByLogin(context.Background(), "admin")
	if err != nil {
		t.Fatalf("ResolveByLogin: %v", err)
	}
	if byLogin == nil || byLogin.ID != 1 {
		t.Errorf("ResolveByLogin = %+v", byLogin)
	}

	byEmail, err := c.ResolveByEmail(context.Background(), "ADMIN@EXAMPLE.SN")
	if err != nil {
		t.Fatalf("ResolveByEmail: %v", err)
	}
	if byEmail == nil || byEmail.ID != 1 {
		t.Errorf("ResolveByEmail = %+v", byEmail)
	}
}

func TestSearch_Passthrough(t *testing.T) {
	repo := newMemRepo()
	repo.searchHits = []*domain.Identity{testIdentity("")}
	c := newTestCoordinator(t, repo, &fakeSource{key: "k1"})

	got, err := c.Search(context.Background(), "adm", 0, 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("Search returned %d rows, want 1", len(got))
	}
	if repo.lastSearch != "adm" {
		t.Errorf("search term = %q, want %q", repo.lastSearch, "adm")
	}
}

func TestResolve_SupplierFailure_SurfacesUnavailable(t *testing.T) {
	source := &fakeSource{key: "k1", err: errors.New("vault sealed")}
	c := newTestCoordinator(t, newMemRepo(), source)

	_, err := c.ResolveByLogin(context.Background(), "admin")
	if err == nil {
		t.Fatal("ResolveByLogin should fail when credentials cannot be resolved")
	}
	var unavailable *registry.UnavailableError
	if !errors.As(err, &unavailable) {
		t.Errorf("error should be *registry.UnavailableError, got %T: %v", err, err)
	}
}

func TestValidateCredential_GatingOrder(t *testing.T) {
	hash, err := security.Encode("admin", 4)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	testCases := []struct {
		name     string
		mutate   func(i *domain.Identity)
		password string
		want     bool
	}{
		{"correct password", func(i *domain.Identity) {}, "admin", true},
		{"wrong password", func(i *domain.Identity) {}, "wrong", false},
		{"not activated", func(i *domain.Identity) { i.Activated = false }, "admin", false},
		{"locked", func(i *domain.Identity) { i.Locked = true }, "admin", false},
		{"expired", func(i *domain.Identity) { i.ExpirationDate = &past }, "admin", false},
		{"future expiration ok", func(i *domain.Identity) { i.ExpirationDate = &future }, "admin", true},
		{"unrecognized hash", func(i *domain.Identity) { i.PasswordHash = "plaintext" }, "admin", false},
		{"empty hash", func(i *domain.Identity) { i.PasswordHash = "" }, "admin", false},
		{"empty password", func(i *domain.Identity) {}, "", false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestCoordinator(t, newMemRepo(), &fakeSource{key: "k1"})
			c.now = func() time.Time { return now }
			identity := testIdentity(hash)
			tc.mutate(identity)
			if got := c.ValidateCredential(context.Background(), identity, tc.password); got != tc.want {
				t.Errorf("ValidateCredential = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestValidateCredential_NilIdentity(t *testing.T) {
	c := newTestCoordinator(t, newMemRepo(), &fakeSource{key: "k1"})
	if c.ValidateCredential(context.Background(), nil, "anything") {
		t.Error("ValidateCredential(nil) should be false")
	}
}

func TestValidateCredential_LockingAfterSuccess(t *testing.T) {
	hash, err := security.Encode("admin", 4)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	c := newTestCoordinator(t, newMemRepo(), &fakeSource{key: "k1"})
	identity := testIdentity(hash)

	if !c.ValidateCredential(context.Background(), identity, "admin") {
		t.Error("correct password should validate")
	}
	if c.ValidateCredential(context.Background(), identity, "wrong") {
		t.Error("wrong password should not validate")
	}
	identity.Locked = true
	if c.ValidateCredential(context.Background(), identity, "admin") {
		t.Error("locked account should not validate even with correct password")
	}
}

func TestOnConfigurationChanged_SameKey_NoOp(t *testing.T) {
	old := &fakeSource{key: "k1"}
	next := &fakeSource{key: "k1"}
	c := newTestCoordinator(t, newMemRepo(), old)

	c.OnConfigurationChanged(next)

	if c.Source() != CredentialSource(old) {
		t.Error("source should be unchanged for identical keys")
	}
	if old.resetCount() != 0 {
		t.Errorf("old source reset %d times, want 0", old.resetCount())
	}
}

func TestOnConfigurationChanged_NewKey_RetiresOldState(t *testing.T) {
	old := &fakeSource{key: "k1"}
	next := &fakeSource{key: "k2"}
	c := newTestCoordinator(t, newMemRepo(), old)

	// Materialize a handle for the old key first.
	if _, err := c.ResolveByID(context.Background(), 1); err != nil {
		t.Fatalf("ResolveByID: %v", err)
	}

	c.OnConfigurationChanged(next)

	if c.Source() != CredentialSource(next) {
		t.Error("source should be swapped to the new configuration")
	}
	if old.resetCount() != 1 {
		t.Errorf("old source reset %d times, want 1", old.resetCount())
	}

	// The next lookup resolves credentials through the new source.
	if _, err := c.ResolveByID(context.Background(), 1); err != nil {
		t.Fatalf("ResolveByID after change: %v", err)
	}
	next.mu.Lock()
	supplied := next.supplied
	next.mu.Unlock()
	if supplied == 0 {
		t.Error("new source should supply credentials after the change")
	}
}

func TestShutdown_ResetsSource(t *testing.T) {
	source := &fakeSource{key: "k1"}
	c := newTestCoordinator(t, newMemRepo(), source)

	c.Shutdown()

	if source.resetCount() != 1 {
		t.Errorf("source reset %d times, want 1", source.resetCount())
	}
}

// captureEmitter records emitted events for assertions.
type captureEmitter struct {
	mu     sync.Mutex
	events []*telemetrydomain.AuthEvent
}

func (e *captureEmitter) Emit(ctx context.Context, event *telemetrydomain.AuthEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return nil
}

func (e *captureEmitter) byType(eventType string) []*telemetrydomain.AuthEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []*telemetrydomain.AuthEvent
	for _, ev := range e.events {
		if ev.EventType == eventType {
			out = append(out, ev)
		}
	}
	return out
}

func TestValidateCredential_EmitsRejectionEvent(t *testing.T) {
	emitter := &captureEmitter{}
	reg := registry.NewWithOpener(registry.PoolConfig{}, func(dsn string) (*sql.DB, error) {
		return sql.Open("federationfake", dsn)
	})
	t.Cleanup(reg.Shutdown)
	c := NewCoordinator(reg, &fakeSource{key: "k1"}, emitter)

	identity := testIdentity("")
	identity.Locked = true
	c.ValidateCredential(context.Background(), identity, "admin")

	deadline := time.Now().Add(2 * time.Second)
	for {
		rejected := emitter.byType(telemetrydomain.EventCredentialRejected)
		if len(rejected) == 1 {
			if rejected[0].Reason != telemetrydomain.ReasonLocked {
				t.Errorf("reason = %q, want %q", rejected[0].Reason, telemetrydomain.ReasonLocked)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("no credential_rejected event emitted")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

var _ telemetry.EventEmitter = (*captureEmitter)(nil)
