package auth

import (
	"context"
	"errors"
	"maps"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeRepo struct {
	users    map[string]*User
	roles    map[int64][]string
	sessions map[string]Session
	logs     map[string]LoginLog
	nextID   int64
	nextLog  int64

	failCreateSession bool
	failAttempt       bool
	attemptCalls      int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users:    make(map[string]*User),
		roles:    make(map[int64][]string),
		sessions: make(map[string]Session),
		logs:     make(map[string]LoginLog),
	}
}

func (r *fakeRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snapUsers := maps.Clone(r.users)
	snapRoles := maps.Clone(r.roles)
	snapSessions := maps.Clone(r.sessions)
	snapLogs := maps.Clone(r.logs)
	if err := fn(ctx, &fakeTx{r: r}); err != nil {
		r.users, r.roles, r.sessions, r.logs = snapUsers, snapRoles, snapSessions, snapLogs
		return err
	}
	return nil
}

func (r *fakeRepo) upsertLog(log LoginLog) {
	if prev, ok := r.logs[log.Email]; ok {
		log.ID = prev.ID
	} else {
		r.nextLog++
		log.ID = r.nextLog
	}
	r.logs[log.Email] = log
}

func (r *fakeRepo) GetSessionByToken(ctx context.Context, token string) (*SessionUser, error) {
	session, ok := r.sessions[token]
	if !ok {
		return nil, ErrNotFound
	}
	for _, user := range r.users {
		if user.ID == session.UserID {
			return &SessionUser{Session: session, User: *user}, nil
		}
	}
	return nil, ErrNotFound
}

func (r *fakeRepo) DeactivateSession(ctx context.Context, token string) (int64, error) {
	session, ok := r.sessions[token]
	if !ok || !session.IsActive {
		return 0, ErrNotFound
	}
	session.IsActive = false
	r.sessions[token] = session
	return session.UserID, nil
}

func (r *fakeRepo) RecordAttempt(ctx context.Context, log LoginLog) error {
	r.attemptCalls++
	if r.failAttempt {
		return errors.New("attempt write failed")
	}
	r.upsertLog(log)
	return nil
}

func (r *fakeRepo) GetUserWithRoles(ctx context.Context, userID int64) (*User, []string, error) {
	for _, user := range r.users {
		if user.ID == userID {
			return user, r.roles[userID], nil
		}
	}
	return nil, nil, ErrNotFound
}

func (r *fakeRepo) ListLogsByUser(ctx context.Context, userID int64, limit int) ([]LoginLog, error) {
	var logs []LoginLog
	for _, log := range r.logs {
		if log.UserID != nil && *log.UserID == userID {
			logs = append(logs, log)
		}
	}
	sort.Slice(logs, func(i, j int) bool { return logs[i].At.After(logs[j].At) })
	if len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}

type fakeTx struct {
	r *fakeRepo
}

func (t *fakeTx) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	user, ok := t.r.users[email]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (t *fakeTx) UserEmailExists(ctx context.Context, email string) (bool, error) {
	_, ok := t.r.users[email]
	return ok, nil
}

func (t *fakeTx) CreateUser(ctx context.Context, email, passwordHash string, lastName, firstName *string) (*User, error) {
	t.r.nextID++
	user := &User{
		ID:           t.r.nextID,
		Email:        email,
		PasswordHash: passwordHash,
		LastName:     lastName,
		FirstName:    firstName,
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
	}
	t.r.users[email] = user
	copied := *user
	return &copied, nil
}

func (t *fakeTx) AssignRoleByName(ctx context.Context, userID int64, roleName string) error {
	t.r.roles[userID] = append(t.r.roles[userID], roleName)
	return nil
}

func (t *fakeTx) CreateSession(ctx context.Context, s Session) error {
	if t.r.failCreateSession {
		return errors.New("session write failed")
	}
	t.r.sessions[s.Token] = s
	return nil
}

func (t *fakeTx) RecordAttempt(ctx context.Context, log LoginLog) error {
	return t.r.RecordAttempt(ctx, log)
}

func seedUser(t *testing.T, repo *fakeRepo, email, password string, active bool) *User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	repo.nextID++
	user := &User{
		ID:           repo.nextID,
		Email:        email,
		PasswordHash: string(hash),
		IsActive:     active,
		CreatedAt:    time.Now().UTC(),
	}
	repo.users[email] = user
	return user
}

func newTestService(repo *fakeRepo) *Service {
	return NewService(repo, nil, ServiceConfig{SessionTTL: 24 * time.Hour, BcryptCost: bcrypt.MinCost})
}

func TestLoginUnknownEmail(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	_, err := svc.Login(context.Background(), LoginInput{Email: "ghost@example.com", Password: "pw"})
	require.ErrorIs(t, err, ErrInvalidCredentials)

	log, ok := repo.logs["ghost@example.com"]
	require.True(t, ok, "reject must still commit its audit row")
	require.False(t, log.Success)
	require.Equal(t, CauseUnknownEmail, log.Message)
	require.Nil(t, log.UserID)
}

func TestLoginInactiveAccount(t *testing.T) {
	repo := newFakeRepo()
	user := seedUser(t, repo, "dormant@example.com", "pw123", false)
	svc := newTestService(repo)

	_, err := svc.Login(context.Background(), LoginInput{Email: user.Email, Password: "pw123"})
	require.ErrorIs(t, err, ErrInactiveAccount)

	log := repo.logs[user.Email]
	require.Equal(t, CauseInactive, log.Message)
	require.NotNil(t, log.UserID)
	require.Equal(t, user.ID, *log.UserID)
	require.Empty(t, repo.sessions)
}

func TestLoginBadPassword(t *testing.T) {
	repo := newFakeRepo()
	user := seedUser(t, repo, "alice@example.com", "pw123", true)
	svc := newTestService(repo)

	_, err := svc.Login(context.Background(), LoginInput{Email: user.Email, Password: "wrong"})
	require.ErrorIs(t, err, ErrInvalidCredentials)
	require.Equal(t, CauseBadPassword, repo.logs[user.Email].Message)
	require.Empty(t, repo.sessions)
}

func TestLoginSuccess(t *testing.T) {
	repo := newFakeRepo()
	user := seedUser(t, repo, "alice@example.com", "pw123", true)
	svc := newTestService(repo)

	result, err := svc.Login(context.Background(), LoginInput{Email: user.Email, Password: "pw123", IP: "10.0.0.1", UserAgent: "test"})
	require.NoError(t, err)
	require.NotEmpty(t, result.Token)
	require.Equal(t, user.ID, result.User.ID)

	session, ok := repo.sessions[result.Token]
	require.True(t, ok)
	require.True(t, session.IsActive)
	require.Equal(t, result.ExpiresAt, session.ExpiresAt)

	log := repo.logs[user.Email]
	require.True(t, log.Success)
	require.Equal(t, CauseSuccess, log.Message)
}

func TestLoginAttemptOverwritesPerEmail(t *testing.T) {
	repo := newFakeRepo()
	user := seedUser(t, repo, "alice@example.com", "pw123", true)
	svc := newTestService(repo)

	_, err := svc.Login(context.Background(), LoginInput{Email: user.Email, Password: "wrong"})
	require.ErrorIs(t, err, ErrInvalidCredentials)
	firstID := repo.logs[user.Email].ID

	_, err = svc.Login(context.Background(), LoginInput{Email: user.Email, Password: "pw123"})
	require.NoError(t, err)

	require.Len(t, repo.logs, 1, "one row per attempted email")
	log := repo.logs[user.Email]
	require.Equal(t, firstID, log.ID)
	require.Equal(t, CauseSuccess, log.Message)
}

func TestLoginStorageFaultRollsBackEverything(t *testing.T) {
	repo := newFakeRepo()
	user := seedUser(t, repo, "alice@example.com", "pw123", true)
	svc := newTestService(repo)

	repo.failAttempt = true
	_, err := svc.Login(context.Background(), LoginInput{Email: user.Email, Password: "pw123"})
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrInvalidCredentials)
	require.Empty(t, repo.sessions, "session issued before the fault must roll back")
	require.Empty(t, repo.logs)
}

func TestResolveTokenExpiryBoundary(t *testing.T) {
	repo := newFakeRepo()
	user := seedUser(t, repo, "alice@example.com", "pw123", true)
	svc := newTestService(repo)

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }
	result, err := svc.Login(context.Background(), LoginInput{Email: user.Email, Password: "pw123"})
	require.NoError(t, err)
	expiry := result.ExpiresAt

	svc.now = func() time.Time { return expiry.Add(-time.Second) }
	resolved, err := svc.ResolveToken(context.Background(), result.Token)
	require.NoError(t, err)
	require.Equal(t, user.ID, resolved.ID)

	// Exactly at expiration must fail.
	svc.now = func() time.Time { return expiry }
	_, err = svc.ResolveToken(context.Background(), result.Token)
	require.ErrorIs(t, err, ErrInvalidSession)

	svc.now = func() time.Time { return expiry.Add(time.Second) }
	_, err = svc.ResolveToken(context.Background(), result.Token)
	require.ErrorIs(t, err, ErrInvalidSession)
}

func TestResolveTokenUnknownOrMissing(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	_, err := svc.ResolveToken(context.Background(), "")
	require.ErrorIs(t, err, ErrInvalidSession)
	_, err = svc.ResolveToken(context.Background(), "nope")
	require.ErrorIs(t, err, ErrInvalidSession)
}

func TestLogoutTwiceIsNotFound(t *testing.T) {
	repo := newFakeRepo()
	user := seedUser(t, repo, "alice@example.com", "pw123", true)
	svc := newTestService(repo)

	result, err := svc.Login(context.Background(), LoginInput{Email: user.Email, Password: "pw123"})
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), result.Token, *user, "10.0.0.1", "test"))
	require.Equal(t, CauseLogout, repo.logs[user.Email].Message)

	_, err = svc.ResolveToken(context.Background(), result.Token)
	require.ErrorIs(t, err, ErrInvalidSession)

	err = svc.Logout(context.Background(), result.Token, *user, "10.0.0.1", "test")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRegisterAssignsBaseRole(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	user, err := svc.Register(context.Background(), RegisterInput{Email: "bob@example.com", Password: "pw123"})
	require.NoError(t, err)
	require.NotZero(t, user.ID)
	require.Equal(t, []string{"user"}, repo.roles[user.ID])
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.users[user.Email].PasswordHash), []byte("pw123")))
}

func TestRegisterDuplicateEmail(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	_, err := svc.Register(context.Background(), RegisterInput{Email: "bob@example.com", Password: "pw123"})
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), RegisterInput{Email: "bob@example.com", Password: "other"})
	require.ErrorIs(t, err, ErrEmailTaken)
	require.Len(t, repo.users, 1)
}

type recordingInvalidator struct {
	calls []int64
}

func (r *recordingInvalidator) Invalidate(_ context.Context, userID int64) error {
	r.calls = append(r.calls, userID)
	return nil
}

func TestRegisterInvalidatesPermissionCache(t *testing.T) {
	repo := newFakeRepo()
	inv := &recordingInvalidator{}
	svc := NewService(repo, inv, ServiceConfig{SessionTTL: 24 * time.Hour, BcryptCost: bcrypt.MinCost})

	user, err := svc.Register(context.Background(), RegisterInput{Email: "bob@example.com", Password: "pw123"})
	require.NoError(t, err)
	// The base role grant changed the account's permission set, so its
	// cache entry must be dropped for exactly this account.
	require.Equal(t, []int64{user.ID}, inv.calls)

	// A rejected registration mutates nothing and must not invalidate.
	_, err = svc.Register(context.Background(), RegisterInput{Email: "bob@example.com", Password: "other"})
	require.ErrorIs(t, err, ErrEmailTaken)
	require.Equal(t, []int64{user.ID}, inv.calls)
}
