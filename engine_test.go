package otcAuth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/otcAuth/otc"
	"github.com/MrEthical07/otcAuth/store"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type mailbox struct {
	mu   sync.Mutex
	msgs []Message
	err  error
}

func (m *mailbox) Send(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.msgs = append(m.msgs, msg)
	return nil
}

func (m *mailbox) last(t *testing.T, kind MessageKind) Message {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.msgs) - 1; i >= 0; i-- {
		if m.msgs[i].Kind == kind {
			return m.msgs[i]
		}
	}
	t.Fatalf("no %s message sent", kind)
	return Message{}
}

func (m *mailbox) count(kind MessageKind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, msg := range m.msgs {
		if msg.Kind == kind {
			n++
		}
	}
	return n
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

func engineTestConfig() Config {
	cfg := validTestConfig()
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	return cfg
}

type testEnv struct {
	engine *Engine
	users  *MemoryUserStore
	mail   *mailbox
	mr     *miniredis.Miniredis
	rdb    *redis.Client
}

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()
	mr, rdb := newTestRedis(t)

	cfg := engineTestConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	env := &testEnv{users: NewMemoryUserStore(), mail: &mailbox{}, mr: mr, rdb: rdb}
	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(env.users).
		WithMailer(env.mail).
		Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	env.engine = engine
	return env
}

// registerConfirmed creates alice and redeems her confirmation code.
func (env *testEnv) registerConfirmed(t *testing.T) *User {
	t.Helper()
	ctx := context.Background()

	user, err := env.engine.Register(ctx, RegisterInput{
		Name:     "Alice",
		Email:    "alice@example.com",
		Password: "Secret-123",
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	code := env.mail.last(t, MessageConfirmAccount).Code
	if _, err := env.engine.RedeemOTC(ctx, code); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	return user
}

func TestBuildRequiresStores(t *testing.T) {
	_, rdb := newTestRedis(t)

	if _, err := New().WithConfig(engineTestConfig()).WithRedis(rdb).Build(); err == nil {
		t.Fatal("expected build without user store to fail")
	}
	if _, err := New().WithConfig(engineTestConfig()).WithUserStore(NewMemoryUserStore()).Build(); err == nil {
		t.Fatal("expected build without token backend to fail")
	}

	b := New().WithConfig(engineTestConfig()).WithRedis(rdb).WithUserStore(NewMemoryUserStore())
	e, err := b.Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer e.Close()
	if _, err := b.Build(); err == nil {
		t.Fatal("expected second build to fail")
	}
}

func TestAccountLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	user, err := env.engine.Register(ctx, RegisterInput{
		Name:     "Alice",
		Email:    "alice@example.com",
		Phone:    "+1 555 010 0199",
		Password: "Secret-123",
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if user.Confirmed {
		t.Fatal("new account must start unconfirmed")
	}

	if _, err := env.engine.Login(ctx, "alice@example.com", "Secret-123"); !errors.Is(err, ErrAccountNotConfirmed) {
		t.Fatalf("expected ErrAccountNotConfirmed, got %v", err)
	}

	msg := env.mail.last(t, MessageConfirmAccount)
	if msg.To != "alice@example.com" || len(msg.Code) != otc.CodeLength {
		t.Fatalf("unexpected confirmation message %+v", msg)
	}

	res, err := env.engine.RedeemOTC(ctx, msg.Code)
	if err != nil {
		t.Fatalf("redeem failed: %v", err)
	}
	if res.Action != otc.ActionConfirmAccount || res.UserID != user.ID {
		t.Fatalf("unexpected redeem result %+v", res)
	}
	if _, err := env.engine.RedeemOTC(ctx, msg.Code); !errors.Is(err, ErrOTCNotFound) {
		t.Fatalf("expected consumed code to be gone, got %v", err)
	}

	login, err := env.engine.Login(ctx, "Alice@Example.com", "Secret-123")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if login.AccessToken == "" || login.RefreshToken == "" || !login.User.Confirmed {
		t.Fatalf("unexpected login result %+v", login)
	}

	auth, err := env.engine.Authenticate(ctx, login.AccessToken, login.RefreshToken)
	if err != nil || auth.State != SessionAuthenticated || auth.UserID != user.ID {
		t.Fatalf("expected bearer to authenticate, got %+v err=%v", auth, err)
	}
	if auth.Claims.Email != "alice@example.com" || auth.Claims.Name != "Alice" {
		t.Fatalf("unexpected claims %+v", auth.Claims)
	}

	env.engine.now = func() time.Time { return time.Now().Add(11 * time.Minute) }

	rotated, err := env.engine.Authenticate(ctx, login.AccessToken, login.RefreshToken)
	if err != nil || rotated.State != SessionRotated {
		t.Fatalf("expected rotation, got %+v err=%v", rotated, err)
	}
	if rotated.RefreshToken == login.RefreshToken || rotated.AccessToken == "" {
		t.Fatalf("expected a new pair, got %+v", rotated)
	}

	if _, err := env.engine.Authenticate(ctx, "", login.RefreshToken); !errors.Is(err, ErrRefreshRevoked) {
		t.Fatalf("expected retired credential to be revoked, got %v", err)
	}

	snap := env.engine.MetricsSnapshot()
	if snap.Counters[MetricRotationSuccess] != 1 || snap.Counters[MetricLoginSuccess] != 1 {
		t.Fatalf("unexpected counters %+v", snap.Counters)
	}
	if len(snap.Histograms[MetricRotationLatency]) != histBucketCount {
		t.Fatal("expected rotation latency histogram")
	}
}

func TestAuthenticateWithoutCredentials(t *testing.T) {
	env := newTestEnv(t, nil)

	res, err := env.engine.Authenticate(context.Background(), "", "")
	if !errors.Is(err, ErrAuthenticationFailure) || res.State != SessionRejected {
		t.Fatalf("expected rejection, got %+v err=%v", res, err)
	}

	res, err = env.engine.Authenticate(context.Background(), "not-a-jwt", "")
	if !errors.Is(err, ErrAuthenticationFailure) || res.State != SessionRejected {
		t.Fatalf("expected rejection of garbage bearer, got %+v err=%v", res, err)
	}
}

func TestRotationSingleWinner(t *testing.T) {
	env := newTestEnv(t, nil)
	env.registerConfirmed(t)

	login, err := env.engine.Login(context.Background(), "alice@example.com", "Secret-123")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)

	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := env.engine.Authenticate(context.Background(), "", login.RefreshToken)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	success, fail := 0, 0
	for err := range results {
		switch {
		case err == nil:
			success++
		case errors.Is(err, ErrAuthenticationFailure):
			fail++
		default:
			t.Fatalf("unexpected rotation error: %v", err)
		}
	}
	if success != 1 || fail != n-1 {
		t.Fatalf("expected one winner, got %d successes and %d failures", success, fail)
	}

	keys, err := env.rdb.Keys(context.Background(), "refresh:*").Result()
	if err != nil {
		t.Fatalf("keys failed: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("expected exactly one live refresh credential, got %v", keys)
	}
}

func TestRegisterRejectsDuplicatesAndBadInput(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.registerConfirmed(t)

	_, err := env.engine.Register(ctx, RegisterInput{Name: "Other", Email: "ALICE@example.com", Password: "Secret-123"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	_, err = env.engine.Register(ctx, RegisterInput{Name: "", Email: "nope", Phone: "12", Password: "short"})
	var verr *ValidationError
	if !errors.As(err, &verr) || !errors.Is(err, ErrValidationFailure) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(verr.Fields) != 4 {
		t.Fatalf("expected four field errors, got %+v", verr.Fields)
	}
}

func TestUpdateAccountDirectNameChange(t *testing.T) {
	env := newTestEnv(t, nil)
	user := env.registerConfirmed(t)

	name := "Alice Liddell"
	res, err := env.engine.UpdateAccount(context.Background(), user.ID, AccountUpdate{Name: &name})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if res.OTCSent || res.User.Name != name || res.AccessToken == "" {
		t.Fatalf("unexpected update result %+v", res)
	}
	if env.mail.count(MessageUpdateAccount) != 0 {
		t.Fatal("direct update must not mail a code")
	}
}

func TestUpdateAccountEmailNeedsCode(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	user := env.registerConfirmed(t)

	email := "alice@wonderland.example"
	res, err := env.engine.UpdateAccount(ctx, user.ID, AccountUpdate{Email: &email, EmailConfirm: &email})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if !res.OTCSent || res.User.Email != "alice@example.com" {
		t.Fatalf("expected deferred update, got %+v", res)
	}

	msg := env.mail.last(t, MessageUpdateAccount)
	if msg.To != "alice@example.com" {
		t.Fatalf("code must go to the current address, got %q", msg.To)
	}

	redeemed, err := env.engine.RedeemOTC(ctx, msg.Code)
	if err != nil {
		t.Fatalf("redeem failed: %v", err)
	}
	if redeemed.Identity == nil || redeemed.Identity.Email != email || redeemed.AccessToken == "" {
		t.Fatalf("expected new identity and token, got %+v", redeemed)
	}

	if _, err := env.engine.Login(ctx, email, "Secret-123"); err != nil {
		t.Fatalf("login with new email failed: %v", err)
	}
	if env.mail.last(t, MessageActionApplied).To != email {
		t.Fatal("expected notice at the new address")
	}
}

func TestUpdateAccountPasswordHashedUpFront(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	user := env.registerConfirmed(t)

	pw := "Better-456!"
	if _, err := env.engine.UpdateAccount(ctx, user.ID, AccountUpdate{Password: &pw, PasswordConfirm: &pw}); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	raw, found, err := env.engine.tokens.Get(ctx, store.OTCKey(env.mail.last(t, MessageUpdateAccount).Code))
	if err != nil || !found {
		t.Fatalf("expected pending code, found=%v err=%v", found, err)
	}
	entry, err := otc.Unmarshal([]byte(raw))
	if err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	upd := entry.Pending.(otc.UpdateAccount)
	if upd.PasswordHash == nil || *upd.PasswordHash == pw {
		t.Fatal("pending password must be stored hashed")
	}

	if _, err := env.engine.Login(ctx, "alice@example.com", pw); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("password must not change before redemption, got %v", err)
	}
}

func TestUpdateAccountValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	user := env.registerConfirmed(t)

	email, other := "a@example.com", "b@example.com"
	_, err := env.engine.UpdateAccount(context.Background(), user.ID, AccountUpdate{Email: &email, EmailConfirm: &other})
	if !errors.Is(err, ErrValidationFailure) {
		t.Fatalf("expected mismatch to fail validation, got %v", err)
	}

	pw := "Better-456!"
	_, err = env.engine.UpdateAccount(context.Background(), user.ID, AccountUpdate{Password: &pw})
	if !errors.Is(err, ErrValidationFailure) {
		t.Fatalf("expected missing confirm to fail validation, got %v", err)
	}

	_, err = env.engine.UpdateAccount(context.Background(), user.ID, AccountUpdate{})
	if !errors.Is(err, ErrValidationFailure) {
		t.Fatalf("expected empty update to fail validation, got %v", err)
	}
}

func TestUpdateAccountEmailTaken(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	user := env.registerConfirmed(t)

	if _, err := env.engine.Register(ctx, RegisterInput{Name: "Bob", Email: "bob@example.com", Password: "Secret-123"}); err != nil {
		t.Fatalf("register bob failed: %v", err)
	}

	email := "bob@example.com"
	_, err := env.engine.UpdateAccount(ctx, user.ID, AccountUpdate{Email: &email, EmailConfirm: &email})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestDeleteAccountRevokesSessions(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	user := env.registerConfirmed(t)

	login, err := env.engine.Login(ctx, "alice@example.com", "Secret-123")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if err := env.engine.RequestDeletion(ctx, user.ID); err != nil {
		t.Fatalf("request deletion failed: %v", err)
	}
	if _, err := env.engine.GetUser(ctx, user.ID); err != nil {
		t.Fatalf("account must survive until redemption: %v", err)
	}

	res, err := env.engine.RedeemOTC(ctx, env.mail.last(t, MessageDeleteAccount).Code)
	if err != nil || res.Action != otc.ActionDeleteAccount {
		t.Fatalf("unexpected redeem result %+v err=%v", res, err)
	}

	if _, err := env.engine.GetUser(ctx, user.ID); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected deleted user, got %v", err)
	}
	if _, err := env.engine.Authenticate(ctx, "", login.RefreshToken); !errors.Is(err, ErrAuthenticationFailure) {
		t.Fatalf("expected revoked refresh credential, got %v", err)
	}
}

func TestRedeemUnknownAndMalformedCodes(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, code := range []string{"ZZZZZZ", "abc", "", "ABC-12"} {
		if _, err := env.engine.RedeemOTC(context.Background(), code); !errors.Is(err, ErrOTCNotFound) {
			t.Fatalf("code %q: expected ErrOTCNotFound, got %v", code, err)
		}
	}
}

func TestRedeemRateLimitedPerIP(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.RateLimit.MaxRedeemAttempts = 2
	})
	ctx := WithClientIP(context.Background(), "203.0.113.9")

	for i := 0; i < 2; i++ {
		if _, err := env.engine.RedeemOTC(ctx, "ZZZZZZ"); !errors.Is(err, ErrOTCNotFound) {
			t.Fatalf("attempt %d: expected ErrOTCNotFound, got %v", i, err)
		}
	}
	if _, err := env.engine.RedeemOTC(ctx, "ZZZZZZ"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	other := WithClientIP(context.Background(), "203.0.113.10")
	if _, err := env.engine.RedeemOTC(other, "ZZZZZZ"); !errors.Is(err, ErrOTCNotFound) {
		t.Fatalf("other ip must not be limited, got %v", err)
	}
}

func TestLoginRateLimited(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.RateLimit.MaxLoginAttempts = 2
	})
	ctx := context.Background()
	env.registerConfirmed(t)

	for i := 0; i < 2; i++ {
		if _, err := env.engine.Login(ctx, "alice@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i, err)
		}
	}
	if _, err := env.engine.Login(ctx, "alice@example.com", "Secret-123"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	env.mr.FastForward(16 * time.Minute)
	if _, err := env.engine.Login(ctx, "alice@example.com", "Secret-123"); err != nil {
		t.Fatalf("expected login after cooldown, got %v", err)
	}
}

func TestLoginUnknownEmail(t *testing.T) {
	env := newTestEnv(t, nil)

	if _, err := env.engine.Login(context.Background(), "ghost@example.com", "Secret-123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := env.engine.Login(context.Background(), "", ""); !errors.Is(err, ErrValidationFailure) {
		t.Fatalf("expected validation failure, got %v", err)
	}
}

func TestLogoutDeletesRefresh(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	user := env.registerConfirmed(t)

	login, err := env.engine.Login(ctx, "alice@example.com", "Secret-123")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if err := env.engine.Logout(ctx, user.ID, login.RefreshToken); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	if _, err := env.engine.Authenticate(ctx, "", login.RefreshToken); !errors.Is(err, ErrAuthenticationFailure) {
		t.Fatalf("expected logged-out credential to fail, got %v", err)
	}
	if err := env.engine.Logout(ctx, user.ID, "unknown"); err != nil {
		t.Fatalf("logout with unknown credential must succeed, got %v", err)
	}
}

func TestRegisterMailFailureDiscardsCode(t *testing.T) {
	env := newTestEnv(t, nil)
	env.mail.err = errors.New("smtp down")

	_, err := env.engine.Register(context.Background(), RegisterInput{
		Name: "Alice", Email: "alice@example.com", Password: "Secret-123",
	})
	if !errors.Is(err, ErrInternalFailure) {
		t.Fatalf("expected ErrInternalFailure, got %v", err)
	}
	keys, _ := env.rdb.Keys(context.Background(), "otc:*").Result()
	if len(keys) != 0 {
		t.Fatalf("undelivered code left behind: %v", keys)
	}

	env.mail.err = nil
	if err := env.engine.ResendConfirmation(context.Background(), "alice@example.com"); err != nil {
		t.Fatalf("resend failed: %v", err)
	}
	if env.mail.count(MessageConfirmAccount) != 1 {
		t.Fatal("expected resent confirmation")
	}
}

func TestReady(t *testing.T) {
	env := newTestEnv(t, nil)
	if err := env.engine.Ready(context.Background()); err != nil {
		t.Fatalf("expected ready, got %v", err)
	}

	env.mr.SetError("LOADING dataset in memory")
	if err := env.engine.Ready(context.Background()); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestAuditEventsCarryRequestContext(t *testing.T) {
	_, rdb := newTestRedis(t)
	cfg := engineTestConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.DropIfFull = false

	sink := NewChannelSink(16)
	mail := &mailbox{}
	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(NewMemoryUserStore()).
		WithMailer(mail).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	ctx := WithRequestID(WithClientIP(context.Background(), "198.51.100.4"), "req-42")
	if _, err := engine.Login(ctx, "ghost@example.com", "Secret-123"); err == nil {
		t.Fatal("expected login failure")
	}

	select {
	case ev := <-sink.Events():
		if ev.EventType != auditEventLoginFailure || ev.Success {
			t.Fatalf("unexpected event: %+v", ev)
		}
		if ev.IP != "198.51.100.4" || ev.RequestID != "req-42" {
			t.Fatalf("request context not recorded: %+v", ev)
		}
		if ev.EventID == "" {
			t.Fatal("event id missing")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no audit event delivered")
	}
}

// blippingUsers fails the next GetUserByID calls with a transient error.
type blippingUsers struct {
	*MemoryUserStore
	mu    sync.Mutex
	fails int
}

func (b *blippingUsers) GetUserByID(ctx context.Context, id int64) (User, error) {
	b.mu.Lock()
	if b.fails > 0 {
		b.fails--
		b.mu.Unlock()
		return User{}, errors.New("db: connection reset")
	}
	b.mu.Unlock()
	return b.MemoryUserStore.GetUserByID(ctx, id)
}

func TestRotationSurvivesTransientUserLookupFailure(t *testing.T) {
	_, rdb := newTestRedis(t)
	users := &blippingUsers{MemoryUserStore: NewMemoryUserStore()}
	mail := &mailbox{}

	engine, err := New().
		WithConfig(engineTestConfig()).
		WithRedis(rdb).
		WithUserStore(users).
		WithMailer(mail).
		Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	ctx := context.Background()
	if _, err := engine.Register(ctx, RegisterInput{Name: "Alice", Email: "alice@example.com", Password: "Secret-123"}); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if _, err := engine.RedeemOTC(ctx, mail.last(t, MessageConfirmAccount).Code); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	login, err := engine.Login(ctx, "alice@example.com", "Secret-123")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	users.mu.Lock()
	users.fails = 1
	users.mu.Unlock()

	_, err = engine.Authenticate(ctx, "", login.RefreshToken)
	if KindOf(err) != KindInternal || errors.Is(err, ErrRefreshRevoked) {
		t.Fatalf("expected a transient internal failure, got %v", err)
	}

	res, err := engine.Authenticate(ctx, "", login.RefreshToken)
	if err != nil || res.State != SessionRotated {
		t.Fatalf("expected retry to rotate, got %+v err=%v", res, err)
	}
}

func TestRotationStoreOutageIsNotRevocation(t *testing.T) {
	env := newTestEnv(t, nil)
	env.registerConfirmed(t)

	ctx := context.Background()
	login, err := env.engine.Login(ctx, "alice@example.com", "Secret-123")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	env.mr.SetError("ERR simulated outage")
	_, err = env.engine.Authenticate(ctx, "", login.RefreshToken)
	if !errors.Is(err, ErrAuthenticationFailure) || errors.Is(err, ErrRefreshRevoked) {
		t.Fatalf("expected a non-revoking authentication failure, got %v", err)
	}

	env.mr.SetError("")
	if res, err := env.engine.Authenticate(ctx, "", login.RefreshToken); err != nil || res.State != SessionRotated {
		t.Fatalf("expected credential to survive the outage, got %+v err=%v", res, err)
	}
}

type stallSink struct{ release chan struct{} }

func (s stallSink) Emit(context.Context, AuditEvent) { <-s.release }

func TestAuditDropsAreCounted(t *testing.T) {
	_, rdb := newTestRedis(t)
	cfg := engineTestConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 1
	cfg.Audit.DropIfFull = true

	sink := stallSink{release: make(chan struct{})}
	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(NewMemoryUserStore()).
		WithMailer(&mailbox{}).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	t.Cleanup(func() { close(sink.release) })

	// one event in flight plus one buffered; the third cannot fit
	for i := 0; i < 3; i++ {
		_, _ = engine.Login(context.Background(), "ghost@example.com", "Secret-123")
	}

	dropped := engine.AuditDropped()
	if dropped == 0 {
		t.Fatal("expected dropped audit events")
	}
	if got := engine.MetricsSnapshot().Counters[MetricAuditDropped]; got != dropped {
		t.Fatalf("metric %d does not match dispatcher count %d", got, dropped)
	}
}
