package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"
)

// Business outcomes surfaced by the service. Everything else is a storage
// fault and maps to a generic server error.
var (
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrInactiveAccount    = errors.New("auth: inactive account")
	ErrEmailTaken         = errors.New("auth: email already registered")
	ErrInvalidSession     = errors.New("auth: invalid session")
	ErrSessionNotFound    = errors.New("auth: session not found")
)

// ServiceConfig tunes session and hashing behaviour.
type ServiceConfig struct {
	SessionTTL time.Duration
	BcryptCost int
}

// PermissionInvalidator drops an account's cached permission set. Any
// role mutation made by this service must go through it so a stale set
// never outlives the mutation.
type PermissionInvalidator interface {
	Invalidate(ctx context.Context, userID int64) error
}

// Service wraps authentication business rules.
type Service struct {
	repo       Repository
	perms      PermissionInvalidator
	sessionTTL time.Duration
	bcryptCost int
	now        func() time.Time
}

// NewService constructs a new Service. perms may be nil when no
// permission cache is configured.
func NewService(repo Repository, perms PermissionInvalidator, cfg ServiceConfig) *Service {
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	cost := cfg.BcryptCost
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	return &Service{repo: repo, perms: perms, sessionTTL: ttl, bcryptCost: cost, now: time.Now}
}

// LoginInput carries the credentials and the request metadata recorded in
// the attempt log.
type LoginInput struct {
	Email     string
	Password  string
	IP        string
	UserAgent string
}

// LoginResult is returned on successful authentication.
type LoginResult struct {
	User      User
	Token     string
	ExpiresAt time.Time
}

// Login runs the whole login sequence inside one transaction: credential
// verification, attempt auditing and session issuance. Reject paths still
// commit their audit upsert; only storage faults roll everything back.
func (s *Service) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	var (
		result *LoginResult
		reject error
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		user, err := tx.FindUserByEmail(ctx, in.Email)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				reject = ErrInvalidCredentials
				return tx.RecordAttempt(ctx, s.attempt(nil, in, false, CauseUnknownEmail))
			}
			return err
		}
		if !user.IsActive {
			reject = ErrInactiveAccount
			return tx.RecordAttempt(ctx, s.attempt(&user.ID, in, false, CauseInactive))
		}
		if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)) != nil {
			reject = ErrInvalidCredentials
			return tx.RecordAttempt(ctx, s.attempt(&user.ID, in, false, CauseBadPassword))
		}

		session := Session{
			UserID:    user.ID,
			Token:     uuid.NewString(),
			ExpiresAt: s.now().Add(s.sessionTTL),
			IsActive:  true,
		}
		if err := tx.CreateSession(ctx, session); err != nil {
			return err
		}
		if err := tx.RecordAttempt(ctx, s.attempt(&user.ID, in, true, CauseSuccess)); err != nil {
			return err
		}
		result = &LoginResult{User: *user, Token: session.Token, ExpiresAt: session.ExpiresAt}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if reject != nil {
		return nil, reject
	}
	return result, nil
}

func (s *Service) attempt(userID *int64, in LoginInput, success bool, message string) LoginLog {
	return LoginLog{
		UserID:    userID,
		Email:     in.Email,
		IP:        optional(in.IP),
		UserAgent: optional(in.UserAgent),
		Success:   success,
		Message:   message,
		At:        s.now().UTC(),
	}
}

// RegisterInput carries the fields accepted at registration.
type RegisterInput struct {
	Email     string
	Password  string
	LastName  *string
	FirstName *string
}

// Register creates an account and grants it the base "user" role, all in
// one transaction. A duplicate email yields ErrEmailTaken.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	var created *User
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		exists, err := tx.UserEmailExists(ctx, in.Email)
		if err != nil {
			return err
		}
		if exists {
			return ErrEmailTaken
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
		if err != nil {
			return err
		}
		user, err := tx.CreateUser(ctx, in.Email, string(hash), in.LastName, in.FirstName)
		if err != nil {
			return err
		}
		if err := tx.AssignRoleByName(ctx, user.ID, "user"); err != nil {
			return err
		}
		created = user
		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	// The role grant above is an AccountRole mutation: a permission set
	// may already be cached for this id from a lookup that predates the
	// account, so it has to be dropped now.
	if s.perms != nil {
		if err := s.perms.Invalidate(ctx, created.ID); err != nil {
			return nil, err
		}
	}
	return created, nil
}

// ResolveToken maps a bearer token to its account. A missing session, an
// inactive one, or one at or past its expiration is invalid.
func (s *Service) ResolveToken(ctx context.Context, token string) (*User, error) {
	if token == "" {
		return nil, ErrInvalidSession
	}
	su, err := s.repo.GetSessionByToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidSession
		}
		return nil, err
	}
	if !su.Session.IsActive || !s.now().Before(su.Session.ExpiresAt) {
		return nil, ErrInvalidSession
	}
	return &su.User, nil
}

// Logout deactivates the session and records the event in the attempt log.
// A token that does not match an active session yields ErrSessionNotFound.
func (s *Service) Logout(ctx context.Context, token string, actor User, ip, userAgent string) error {
	userID, err := s.repo.DeactivateSession(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrSessionNotFound
		}
		return err
	}
	return s.repo.RecordAttempt(ctx, LoginLog{
		UserID:    &userID,
		Email:     actor.Email,
		IP:        optional(ip),
		UserAgent: optional(userAgent),
		Success:   true,
		Message:   CauseLogout,
		At:        s.now().UTC(),
	})
}

// Profile fetches the account and its role names.
func (s *Service) Profile(ctx context.Context, userID int64) (*User, []string, error) {
	return s.repo.GetUserWithRoles(ctx, userID)
}

// Logs returns the caller's most recent attempt records, newest first.
func (s *Service) Logs(ctx context.Context, userID int64) ([]LoginLog, error) {
	return s.repo.ListLogsByUser(ctx, userID, 50)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
