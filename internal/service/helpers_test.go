package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sakif/tapcard/internal/events"
	"github.com/sakif/tapcard/internal/model"
	"github.com/sakif/tapcard/internal/repository"
	"github.com/sakif/tapcard/internal/repository/sqlite"
)

// =========================================================================
// FIXTURES
// =========================================================================
//
// The services run against a real SQLite database: the lifecycle is all
// about transactions and constraints, and a fake store would only test the
// fake. Collaborators that talk to the network (broker, Redis, S3) are
// hand-written fakes below.

type testEnv struct {
	store     *sqlite.DB
	events    *fakePublisher
	lifecycle *Lifecycle
	sweeper   *Sweeper
	batches   *BatchService
	profiles  *ProfileService
	resolver  *Resolver
	uploader  *fakeUploader
	dedupe    *fakeDeduper
	admin     *model.User
	dbPath    string // set for file-backed envs only
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return buildEnv(t, db, db)
}

// newFileTestEnv uses an on-disk database so several connections (and
// therefore real concurrent transactions) are possible.
func newFileTestEnv(t *testing.T) *testEnv {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tapcard.db")
	db, err := sqlite.New(path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	env := buildEnv(t, db, db)
	env.dbPath = path
	return env
}

// execRaw runs a statement on its own connection, bypassing the store. It
// is how tests put rows into states no store method produces.
func (e *testEnv) execRaw(t *testing.T, query string, args ...any) {
	t.Helper()
	require.NotEmpty(t, e.dbPath, "execRaw needs a file-backed env")
	conn, err := sql.Open("sqlite", "file:"+e.dbPath+"?_pragma=busy_timeout(5000)&_time_format=sqlite")
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Exec(query, args...)
	require.NoError(t, err)
}

// buildEnv wires the services on store; db is the underlying database used
// by fixtures.
func buildEnv(t *testing.T, db *sqlite.DB, store repository.Store) *testEnv {
	t.Helper()
	logger := newTestLogger()
	env := &testEnv{
		store:    db,
		events:   &fakePublisher{},
		uploader: &fakeUploader{},
		dedupe:   &fakeDeduper{seen: map[string]bool{}},
	}
	env.lifecycle = NewLifecycle(store, env.events, logger)
	env.sweeper = NewSweeper(store, env.lifecycle, logger)
	env.batches = NewBatchService(store, env.events, "https://tap.example.com/", logger)
	env.profiles = NewProfileService(store, env.sweeper, env.uploader, logger)
	env.resolver = NewResolver(store, env.lifecycle, env.dedupe, logger)
	env.admin = env.user(t, "admin@example.com", model.RoleAdmin)
	return env
}

func (e *testEnv) user(t *testing.T, email, role string) *model.User {
	t.Helper()
	u := &model.User{Email: email, Name: email, Role: role}
	require.NoError(t, e.store.CreateUser(context.Background(), u))
	return u
}

func (e *testEnv) users(t *testing.T, n int) []*model.User {
	t.Helper()
	out := make([]*model.User, n)
	for i := range out {
		out[i] = e.user(t, fmt.Sprintf("user%d@example.com", i), model.RoleUser)
	}
	return out
}

// batch creates a batch through the service and returns its codes by value.
func (e *testEnv) batch(t *testing.T, values ...string) map[string]*model.ResolveCode {
	t.Helper()
	ctx := context.Background()
	_, err := e.batches.CreateBatch(ctx, values, "", "", e.admin.ID)
	require.NoError(t, err)

	out := make(map[string]*model.ResolveCode, len(values))
	for _, v := range values {
		c, err := e.store.GetCodeByValue(ctx, v)
		require.NoError(t, err)
		out[v] = c
	}
	return out
}

func (e *testEnv) code(t *testing.T, id int64) *model.ResolveCode {
	t.Helper()
	c, err := e.store.GetCodeByID(context.Background(), id)
	require.NoError(t, err)
	return c
}

func (e *testEnv) claim(t *testing.T, code string, userID int64) *model.Profile {
	t.Helper()
	p, err := e.lifecycle.Claim(context.Background(), code, userID, attrs("Jo", "Doe"))
	require.NoError(t, err)
	return p
}

func attrs(first, last string) model.ProfileAttrs {
	return model.ProfileAttrs{ProfileContent: model.ProfileContent{
		FirstName: first,
		LastName:  last,
		Phone:     "+1",
		Email:     "a@b.com",
	}}
}

// assertConsistent checks the two global properties: every profile is
// backed by its code, and every code's status agrees with its holder.
func assertConsistent(t *testing.T, store repository.Store) {
	t.Helper()
	ctx := context.Background()

	orphanProfiles, err := store.FindOrphanedProfiles(ctx, AllScope())
	require.NoError(t, err)
	require.Empty(t, orphanProfiles, "orphaned profiles left behind")

	orphanCodes, err := store.FindOrphanedCodes(ctx, AllScope())
	require.NoError(t, err)
	require.Empty(t, orphanCodes, "codes with a holder but no profile left behind")

	codes, err := store.ListCodes(ctx, repository.CodeFilter{})
	require.NoError(t, err)
	for _, c := range codes {
		if c.Status == model.StatusAssigned {
			require.NotNil(t, c.Assignment, "code %s assigned without holder", c.Code)
		}
	}
}

// =========================================================================
// FAKES
// =========================================================================

type fakePublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, e events.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, e)
	return nil
}

func (f *fakePublisher) types() []events.Type {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]events.Type, len(f.events))
	for i, e := range f.events {
		out[i] = e.Type
	}
	return out
}

type upload struct {
	key, contentType string
	size             int
}

type fakeUploader struct {
	uploads []upload
	err     error
}

func (f *fakeUploader) Upload(_ context.Context, key, contentType string, body []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.uploads = append(f.uploads, upload{key: key, contentType: contentType, size: len(body)})
	return "https://cdn.example.com/" + key, nil
}

type fakeDeduper struct {
	seen map[string]bool
	err  error
}

func (f *fakeDeduper) FirstSeen(_ context.Context, profileID int64, ip string) (bool, error) {
	if f.err != nil {
		return true, f.err
	}
	k := fmt.Sprintf("%d/%s", profileID, ip)
	if f.seen[k] {
		return false, nil
	}
	f.seen[k] = true
	return true, nil
}

// faultyStore wraps a real store and breaks chosen operations, inside and
// outside transactions.
type faultyStore struct {
	repository.Store
	failProfileDelete int64
	failScan          bool
}

var errInjected = errors.New("injected failure")

func (f *faultyStore) FindOrphanedProfiles(ctx context.Context, scope repository.Scope) ([]int64, error) {
	if f.failScan {
		return nil, errInjected
	}
	return f.Store.FindOrphanedProfiles(ctx, scope)
}

func (f *faultyStore) InTx(ctx context.Context, fn func(q repository.Queries) error) error {
	return f.Store.InTx(ctx, func(q repository.Queries) error {
		return fn(&faultyQueries{Queries: q, failProfileDelete: f.failProfileDelete})
	})
}

type faultyQueries struct {
	repository.Queries
	failProfileDelete int64
}

func (f *faultyQueries) DeleteProfile(ctx context.Context, id int64) error {
	if id == f.failProfileDelete {
		return errInjected
	}
	return f.Queries.DeleteProfile(ctx, id)
}
