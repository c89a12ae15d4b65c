package tokens

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rzbill/tokenvault/pkg/codec"
	"github.com/rzbill/tokenvault/pkg/log"
	"github.com/rzbill/tokenvault/pkg/secretstore"
	"github.com/rzbill/tokenvault/pkg/store"
	"github.com/rzbill/tokenvault/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/util/wait"
)

const testNamespace = "pai-user-token"

// fakeClock is a settable time source shared by the signer under test.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Now()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	manager *Manager
	backend *store.MemoryBackend
	signer  *codec.Signer
	clock   *fakeClock
	metrics *Metrics
	logger  *log.TestLogger
}

func newFixture(t *testing.T, configure ...func(*Config)) *fixture {
	t.Helper()

	clock := newFakeClock()
	signer, err := codec.NewSigner([]byte("K"), codec.WithClock(clock.Now))
	require.NoError(t, err)

	backend := store.NewMemoryBackend()
	logger := log.NewTestLogger()
	secrets := secretstore.New(backend, secretstore.Config{PageSize: 2, MaxListRestarts: 3}, logger)

	cfg := DefaultConfig()
	cfg.Backoff = wait.Backoff{Steps: 5, Duration: time.Millisecond, Factor: 1}
	for _, fn := range configure {
		fn(&cfg)
	}

	metrics := NewMetrics(prometheus.NewRegistry())
	manager, err := NewManager(secrets, signer, cfg, WithLogger(logger), WithMetrics(metrics))
	require.NoError(t, err)

	return &fixture{
		manager: manager,
		backend: backend,
		signer:  signer,
		clock:   clock,
		metrics: metrics,
		logger:  logger,
	}
}

// rawEntries returns the stored (encoded) entries of username's object.
func (f *fixture) rawEntries(t *testing.T, username string) map[string]string {
	t.Helper()
	obj, err := f.backend.Get(context.Background(), testNamespace, codec.NameHex.Encode(username))
	require.NoError(t, err)
	return obj.Data
}

func TestNewManagerValidatesConfig(t *testing.T) {
	signer, err := codec.NewSigner([]byte("K"))
	require.NoError(t, err)
	secrets := secretstore.New(store.NewMemoryBackend(), secretstore.DefaultConfig(), nil)

	_, err = NewManager(secrets, signer, Config{})
	assert.Error(t, err)
	_, err = NewManager(nil, signer, DefaultConfig())
	assert.Error(t, err)

	_, err = NewManager(secrets, signer, Config{Namespace: "tokens"})
	assert.Error(t, err, "zero default expiry")
	_, err = NewManager(secrets, signer, Config{Namespace: "tokens", DefaultExpiry: -time.Hour})
	assert.Error(t, err, "negative default expiry")

	m, err := NewManager(secrets, signer, Config{Namespace: "tokens", DefaultExpiry: time.Hour})
	require.NoError(t, err)
	assert.Equal(t, codec.NameHex, m.config.NameEncoding)
}

func TestCreateThenVerify(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	token, err := f.manager.Create(ctx, "alice", false, time.Hour)
	require.NoError(t, err)

	payload, err := f.manager.Verify(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "alice", payload.Username)
	assert.False(t, payload.Application)
	require.NotNil(t, payload.ExpiresAt)
	assert.WithinDuration(t, f.clock.Now().Add(time.Hour), *payload.ExpiresAt, time.Second)

	// stored under the hex name, labelled, base64 valued
	obj, err := f.backend.Get(ctx, testNamespace, "616c696365")
	require.NoError(t, err)
	assert.Equal(t, KindUserTokens, obj.Labels[LabelKind])
	require.Len(t, obj.Data, 1)
	for _, v := range obj.Data {
		assert.Equal(t, codec.EncodeValue(token), v)
	}
}

func TestCreateExpiryDefaults(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.DefaultExpiry = 2 * time.Hour })
	ctx := context.Background()

	userToken, err := f.manager.Create(ctx, "alice", false, 0)
	require.NoError(t, err)
	payload, err := f.manager.Verify(ctx, userToken)
	require.NoError(t, err)
	require.NotNil(t, payload.ExpiresAt)
	assert.WithinDuration(t, f.clock.Now().Add(2*time.Hour), *payload.ExpiresAt, time.Second)

	appToken, err := f.manager.Create(ctx, "ci-bot", true, 0)
	require.NoError(t, err)
	payload, err = f.manager.Verify(ctx, appToken)
	require.NoError(t, err)
	assert.True(t, payload.Application)
	assert.Nil(t, payload.ExpiresAt)

	// years later the application token is still live
	f.clock.Advance(5 * 365 * 24 * time.Hour)
	_, err = f.manager.Verify(ctx, appToken)
	assert.NoError(t, err)
	_, err = f.manager.Verify(ctx, userToken)
	assert.ErrorIs(t, err, types.ErrExpiredToken)
}

func TestCreateNegativeExpiryUserTokenGetsDefault(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.DefaultExpiry = 2 * time.Hour })
	ctx := context.Background()

	token, err := f.manager.Create(ctx, "alice", false, -time.Hour)
	require.NoError(t, err)
	payload, err := f.manager.Verify(ctx, token)
	require.NoError(t, err)
	require.NotNil(t, payload.ExpiresAt)
	assert.WithinDuration(t, f.clock.Now().Add(2*time.Hour), *payload.ExpiresAt, time.Second)

	f.clock.Advance(365 * 24 * time.Hour)
	_, err = f.manager.Verify(ctx, token)
	assert.ErrorIs(t, err, types.ErrExpiredToken)
}

func TestCreateRejectsNegativeApplicationExpiry(t *testing.T) {
	f := newFixture(t)

	token, err := f.manager.Create(context.Background(), "ci-bot", true, -time.Hour)
	assert.Empty(t, token)
	assert.True(t, types.IsValidationError(err), "got %v", err)
	assert.Equal(t, 0, f.backend.Calls(store.OpGet))
}

func TestCreateRequiresUsername(t *testing.T) {
	f := newFixture(t)
	_, err := f.manager.Create(context.Background(), "", false, time.Hour)
	assert.True(t, types.IsValidationError(err))
	assert.Equal(t, 0, f.backend.Calls(store.OpGet))
}

func TestCreateFailsWhenStorageFails(t *testing.T) {
	f := newFixture(t)
	f.backend.InjectFault(store.OpGet, types.NewTransportError("get secret", errors.New("connection refused")), 1)

	token, err := f.manager.Create(context.Background(), "alice", false, time.Hour)
	assert.Empty(t, token)
	assert.True(t, types.IsTransportError(err), "got %v", err)
}

// The concrete alice scenario: two tokens, revoke one, the other survives.
func TestAliceScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t1, err := f.manager.Create(ctx, "alice", false, time.Hour)
	require.NoError(t, err)
	t2, err := f.manager.Create(ctx, "alice", false, time.Hour)
	require.NoError(t, err)
	require.NotEqual(t, t1, t2)

	tokens, err := f.manager.List(ctx, "alice")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{t1, t2}, tokens)

	require.NoError(t, f.manager.Revoke(ctx, t1))

	tokens, err = f.manager.List(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{t2}, tokens)

	_, err = f.manager.Verify(ctx, t1)
	assert.ErrorIs(t, err, types.ErrRevokedToken)

	payload, err := f.manager.Verify(ctx, t2)
	require.NoError(t, err)
	assert.Equal(t, "alice", payload.Username)
	assert.False(t, payload.Application)
}

func TestRevokedTokenStillHasValidSignature(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	token, err := f.manager.Create(ctx, "bob", false, time.Hour)
	require.NoError(t, err)
	require.NoError(t, f.manager.Revoke(ctx, token))

	_, err = f.signer.Verify(token)
	require.NoError(t, err)
	_, err = f.manager.Verify(ctx, token)
	assert.ErrorIs(t, err, types.ErrRevokedToken)

	// revoking again is a no-op on the retained, now empty object
	require.NoError(t, f.manager.Revoke(ctx, token))
	assert.Empty(t, f.rawEntries(t, "bob"))
}

func TestRevokeErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.manager.Revoke(ctx, "not-a-token")
	assert.ErrorIs(t, err, types.ErrInvalidToken)

	forger, err := codec.NewSigner([]byte("not K"))
	require.NoError(t, err)
	forged, err := forger.Sign(types.TokenPayload{Username: "alice"}, time.Hour)
	require.NoError(t, err)
	assert.ErrorIs(t, f.manager.Revoke(ctx, forged), types.ErrInvalidToken)

	// signed by us but never stored for a user that has no object
	ghost, err := f.signer.Sign(types.TokenPayload{Username: "ghost"}, time.Hour)
	require.NoError(t, err)
	assert.ErrorIs(t, f.manager.Revoke(ctx, ghost), types.ErrNotFound)

	token, err := f.manager.Create(ctx, "alice", false, time.Minute)
	require.NoError(t, err)
	f.clock.Advance(time.Hour)
	assert.ErrorIs(t, f.manager.Revoke(ctx, token), types.ErrExpiredToken)
}

func TestVerifyErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.manager.Verify(ctx, "garbage")
	assert.ErrorIs(t, err, types.ErrInvalidToken)

	ghost, err := f.signer.Sign(types.TokenPayload{Username: "ghost"}, time.Hour)
	require.NoError(t, err)
	_, err = f.manager.Verify(ctx, ghost)
	assert.ErrorIs(t, err, types.ErrRevokedToken)

	f.backend.InjectFault(store.OpGet, types.NewTransportError("get secret", errors.New("i/o timeout")), 1)
	_, err = f.manager.Verify(ctx, ghost)
	assert.True(t, types.IsTransportError(err))
}

func TestListPurgesExpiredTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	short, err := f.manager.Create(ctx, "alice", false, time.Hour)
	require.NoError(t, err)
	long, err := f.manager.Create(ctx, "alice", false, 48*time.Hour)
	require.NoError(t, err)
	require.Len(t, f.rawEntries(t, "alice"), 2)

	f.clock.Advance(2 * time.Hour)

	tokens, err := f.manager.List(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{long}, tokens)
	assert.NotContains(t, tokens, short)

	entries := f.rawEntries(t, "alice")
	require.Len(t, entries, 1)
	for _, v := range entries {
		assert.Equal(t, codec.EncodeValue(long), v)
	}
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.purged))

	// nothing left to purge, so no write
	updates := f.backend.Calls(store.OpUpdate)
	_, err = f.manager.List(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, updates, f.backend.Calls(store.OpUpdate))
}

func TestListPurgesTokensSignedWithAnotherKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	live, err := f.manager.Create(ctx, "alice", false, time.Hour)
	require.NoError(t, err)

	old, err := codec.NewSigner([]byte("rotated away"))
	require.NoError(t, err)
	stale, err := old.Sign(types.TokenPayload{Username: "alice"}, time.Hour)
	require.NoError(t, err)

	entries := f.rawEntries(t, "alice")
	entries["stale"] = codec.EncodeValue(stale)
	_, err = f.backend.Update(ctx, &types.SecretObject{Namespace: testNamespace, Name: "616c696365", Data: entries})
	require.NoError(t, err)

	tokens, err := f.manager.List(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{live}, tokens)
	assert.Len(t, f.rawEntries(t, "alice"), 1)
}

func TestListUnknownUser(t *testing.T) {
	f := newFixture(t)

	tokens, err := f.manager.List(context.Background(), "nobody")
	require.NoError(t, err)
	assert.NotNil(t, tokens)
	assert.Empty(t, tokens)
	assert.Equal(t, 0, f.backend.Calls(store.OpCreate))
	assert.Equal(t, 0, f.backend.Calls(store.OpUpdate))
}

func TestBatchRevokeSelectivity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user1, err := f.manager.Create(ctx, "u", false, time.Hour)
	require.NoError(t, err)
	user2, err := f.manager.Create(ctx, "u", false, time.Hour)
	require.NoError(t, err)
	app, err := f.manager.Create(ctx, "u", true, 0)
	require.NoError(t, err)

	require.NoError(t, f.manager.BatchRevoke(ctx, "u", ApplicationTokensOnly()))

	_, err = f.manager.Verify(ctx, app)
	assert.ErrorIs(t, err, types.ErrRevokedToken)
	_, err = f.manager.Verify(ctx, user1)
	assert.NoError(t, err)
	_, err = f.manager.Verify(ctx, user2)
	assert.NoError(t, err)
}

func TestBatchRevokeIssuedBefore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	old, err := f.manager.Create(ctx, "u", false, 24*time.Hour)
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	cutoff := f.clock.Now()
	f.clock.Advance(time.Minute)
	fresh, err := f.manager.Create(ctx, "u", false, 24*time.Hour)
	require.NoError(t, err)

	require.NoError(t, f.manager.BatchRevoke(ctx, "u", And(UserTokensOnly(), IssuedBefore(cutoff))))

	tokens, err := f.manager.List(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, []string{fresh}, tokens)
	_, err = f.manager.Verify(ctx, old)
	assert.ErrorIs(t, err, types.ErrRevokedToken)

	require.NoError(t, f.manager.BatchRevoke(ctx, "u", nil))
	tokens, err = f.manager.List(ctx, "u")
	require.NoError(t, err)
	assert.Empty(t, tokens)
}

func TestBatchRevokeUnknownUser(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.manager.BatchRevoke(context.Background(), "nobody", All()))
	assert.Equal(t, 0, f.backend.Calls(store.OpCreate))
	assert.Equal(t, 0, f.backend.Calls(store.OpUpdate))
}

func TestOptimisticConcurrencyRetriesOnConflict(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.OptimisticConcurrency = true })
	ctx := context.Background()

	first, err := f.manager.Create(ctx, "alice", false, time.Hour)
	require.NoError(t, err)

	f.backend.InjectFault(store.OpUpdate, types.ErrConflict, 2)
	second, err := f.manager.Create(ctx, "alice", false, time.Hour)
	require.NoError(t, err)

	tokens, err := f.manager.List(ctx, "alice")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{first, second}, tokens)
	// one get for the first create, three for the retried one, one for list
	assert.Equal(t, 5, f.backend.Calls(store.OpGet))
}

func TestOptimisticConcurrencyDetectsStaleWrite(t *testing.T) {
	f := newFixture(t, func(c *Config) {
		c.OptimisticConcurrency = true
		c.Backoff = wait.Backoff{Steps: 1, Duration: time.Millisecond}
	})
	ctx := context.Background()

	_, err := f.manager.Create(ctx, "alice", false, time.Hour)
	require.NoError(t, err)

	f.backend.InjectFault(store.OpUpdate, types.ErrConflict, 10)
	_, err = f.manager.Create(ctx, "alice", false, time.Hour)
	assert.ErrorIs(t, err, types.ErrConflict)
}

func TestWithoutOptimisticConcurrencyConflictsSurface(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.manager.Create(ctx, "alice", false, time.Hour)
	require.NoError(t, err)

	f.backend.InjectFault(store.OpUpdate, types.ErrConflict, 1)
	_, err = f.manager.Create(ctx, "alice", false, time.Hour)
	assert.ErrorIs(t, err, types.ErrConflict)
	assert.Equal(t, 1, f.backend.Calls(store.OpUpdate))
}

func TestCreateFallsBackToReplaceWhenCreateRaces(t *testing.T) {
	signer, err := codec.NewSigner([]byte("K"))
	require.NoError(t, err)
	existing, err := signer.Sign(types.TokenPayload{Username: "alice"}, time.Hour)
	require.NoError(t, err)

	backend := &store.MockBackend{}
	name := codec.NameHex.Encode("alice")
	backend.On("Get", mock.Anything, testNamespace, name).
		Return(nil, types.ErrNotFound).Once()
	backend.On("Create", mock.Anything, mock.Anything).
		Return(nil, types.ErrAlreadyExists).Once()
	backend.On("Get", mock.Anything, testNamespace, name).
		Return(&types.SecretObject{
			Namespace: testNamespace,
			Name:      name,
			Data:      map[string]string{"other": codec.EncodeValue(existing)},
		}, nil).Once()
	backend.On("Update", mock.Anything, mock.MatchedBy(func(obj *types.SecretObject) bool {
		return obj.Name == name && len(obj.Data) == 2
	})).Return(&types.SecretObject{Namespace: testNamespace, Name: name}, nil).Once()

	secrets := secretstore.New(backend, secretstore.DefaultConfig(), log.NewTestLogger())
	manager, err := NewManager(secrets, signer, DefaultConfig(), WithLogger(log.NewTestLogger()))
	require.NoError(t, err)

	token, err := manager.Create(context.Background(), "alice", false, time.Hour)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	backend.AssertExpectations(t)
}

func TestSweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, user := range []string{"alice", "bob", "carol"} {
		_, err := f.manager.Create(ctx, user, false, time.Hour)
		require.NoError(t, err)
	}
	keep, err := f.manager.Create(ctx, "bob", false, 72*time.Hour)
	require.NoError(t, err)
	_, err = f.manager.Create(ctx, "dave", true, 0)
	require.NoError(t, err)

	f.clock.Advance(2 * time.Hour)

	result, err := f.manager.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Objects: 4, Updated: 3, Purged: 3}, result)

	assert.Empty(t, f.rawEntries(t, "alice"))
	assert.Equal(t, map[string]string{}, f.rawEntries(t, "carol"))
	bob := f.rawEntries(t, "bob")
	require.Len(t, bob, 1)
	for _, v := range bob {
		assert.Equal(t, codec.EncodeValue(keep), v)
	}
	assert.Len(t, f.rawEntries(t, "dave"), 1)
	assert.True(t, f.logger.AssertLoggedWithField(log.InfoLevel, "Swept", "purged", 3))
}

func TestSweepSkipsObjectsChangedConcurrently(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.manager.Create(ctx, "alice", false, time.Hour)
	require.NoError(t, err)
	_, err = f.manager.Create(ctx, "bob", false, time.Hour)
	require.NoError(t, err)
	f.clock.Advance(2 * time.Hour)

	f.backend.InjectFault(store.OpUpdate, types.ErrConflict, 1)
	result, err := f.manager.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 1, result.Updated)
}

func TestUsers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, user := range []string{"carol", "alice", "bob.smith@example.com"} {
		_, err := f.manager.Create(ctx, user, false, time.Hour)
		require.NoError(t, err)
	}
	// not a token object
	_, err := f.backend.Create(ctx, &types.SecretObject{Namespace: testNamespace, Name: "registry-creds"})
	require.NoError(t, err)

	users, err := f.manager.Users(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob.smith@example.com", "carol"}, users)
}

// legacyObject stores tokens for username the way older deployments did,
// without any labels.
func (f *fixture) legacyObject(t *testing.T, username string, tokens ...string) {
	t.Helper()
	data := make(map[string]string, len(tokens))
	for i, token := range tokens {
		data[fmt.Sprintf("id-%d", i)] = codec.EncodeValue(token)
	}
	_, err := f.backend.Create(context.Background(), &types.SecretObject{
		Namespace: testNamespace,
		Name:      codec.NameHex.Encode(username),
		Data:      data,
	})
	require.NoError(t, err)
}

func TestUsersAndSweepIncludeUnlabeledObjects(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.IncludeUnlabeled = true })
	ctx := context.Background()

	stale, err := f.signer.Sign(types.TokenPayload{Username: "erin"}, time.Hour)
	require.NoError(t, err)
	live, err := f.signer.Sign(types.TokenPayload{Username: "erin"}, 72*time.Hour)
	require.NoError(t, err)
	f.legacyObject(t, "erin", stale, live)
	_, err = f.manager.Create(ctx, "alice", false, time.Hour)
	require.NoError(t, err)

	users, err := f.manager.Users(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "erin"}, users)

	f.clock.Advance(2 * time.Hour)
	result, err := f.manager.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Objects: 2, Updated: 2, Purged: 2}, result)
	erin := f.rawEntries(t, "erin")
	require.Len(t, erin, 1)
	for _, v := range erin {
		assert.Equal(t, codec.EncodeValue(live), v)
	}
}

func TestUsersAndSweepSkipUnlabeledObjectsByDefault(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stale, err := f.signer.Sign(types.TokenPayload{Username: "erin"}, time.Hour)
	require.NoError(t, err)
	f.legacyObject(t, "erin", stale)

	users, err := f.manager.Users(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)

	f.clock.Advance(2 * time.Hour)
	result, err := f.manager.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{}, result)
	assert.Len(t, f.rawEntries(t, "erin"), 1)

	// a token write labels the object, after which it is swept
	_, err = f.manager.List(ctx, "erin")
	require.NoError(t, err)
	users, err = f.manager.Users(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"erin"}, users)
}

func TestEnsureNamespace(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.manager.EnsureNamespace(context.Background()))
	assert.True(t, f.backend.HasNamespace(testNamespace))
}

func TestMetricsCountOutcomes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	token, err := f.manager.Create(ctx, "alice", false, time.Hour)
	require.NoError(t, err)
	_, _ = f.manager.Verify(ctx, token)
	require.NoError(t, f.manager.Revoke(ctx, token))
	_, _ = f.manager.Verify(ctx, token)
	_, _ = f.manager.Verify(ctx, "garbage")

	ops := f.metrics.operations
	assert.Equal(t, float64(1), testutil.ToFloat64(ops.WithLabelValues("create", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(ops.WithLabelValues("verify", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(ops.WithLabelValues("verify", "revoked")))
	assert.Equal(t, float64(1), testutil.ToFloat64(ops.WithLabelValues("verify", "invalid")))
	assert.Equal(t, float64(1), testutil.ToFloat64(ops.WithLabelValues("revoke", "ok")))
}
