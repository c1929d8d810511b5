package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gestion-utilisateurs/gestion/internal/platform/db"
)

// ErrNotFound indicates that the requested record does not exist.
var ErrNotFound = errors.New("auth: not found")

// TxRepository exposes the persistence operations that must share one
// transaction: login orchestration and registration.
type TxRepository interface {
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	UserEmailExists(ctx context.Context, email string) (bool, error)
	CreateUser(ctx context.Context, email, passwordHash string, lastName, firstName *string) (*User, error)
	AssignRoleByName(ctx context.Context, userID int64, roleName string) error
	CreateSession(ctx context.Context, s Session) error
	RecordAttempt(ctx context.Context, log LoginLog) error
}

// Repository defines persistence operations for the auth module.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetSessionByToken(ctx context.Context, token string) (*SessionUser, error)
	DeactivateSession(ctx context.Context, token string) (int64, error)
	RecordAttempt(ctx context.Context, log LoginLog) error
	GetUserWithRoles(ctx context.Context, userID int64) (*User, []string, error)
	ListLogsByUser(ctx context.Context, userID int64, limit int) ([]LoginLog, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

var _ Repository = (*PGRepository)(nil)

// execer abstracts pool and transaction so the attempt upsert works in
// both scopes.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// WithTx runs fn inside a single transaction; fn commits when it returns nil.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

type txRepo struct {
	tx pgx.Tx
}

var _ TxRepository = (*txRepo)(nil)

func (t *txRepo) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	return findUserByEmail(ctx, t.tx, email)
}

func (t *txRepo) UserEmailExists(ctx context.Context, email string) (bool, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `SELECT id FROM utilisateurs WHERE email = $1`, email).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (t *txRepo) CreateUser(ctx context.Context, email, passwordHash string, lastName, firstName *string) (*User, error) {
	user := &User{Email: email, PasswordHash: passwordHash, LastName: lastName, FirstName: firstName, IsActive: true}
	err := t.tx.QueryRow(ctx,
		`INSERT INTO utilisateurs (email, password_hash, nom, prenom)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, actif, date_creation`,
		email, passwordHash, lastName, firstName,
	).Scan(&user.ID, &user.IsActive, &user.CreatedAt)
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (t *txRepo) AssignRoleByName(ctx context.Context, userID int64, roleName string) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO utilisateur_roles (utilisateur_id, role_id)
		 VALUES ($1, (SELECT id FROM roles WHERE nom = $2))`,
		userID, roleName,
	)
	return err
}

func (t *txRepo) CreateSession(ctx context.Context, s Session) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO sessions (utilisateur_id, token, date_expiration, actif)
		 VALUES ($1, $2, $3, $4)`,
		s.UserID, s.Token, s.ExpiresAt, s.IsActive,
	)
	return err
}

func (t *txRepo) RecordAttempt(ctx context.Context, log LoginLog) error {
	return recordAttempt(ctx, t.tx, log)
}

func findUserByEmail(ctx context.Context, q pgx.Tx, email string) (*User, error) {
	var user User
	err := q.QueryRow(ctx,
		`SELECT id, email, password_hash, nom, prenom, actif, date_creation, date_modification
		 FROM utilisateurs WHERE email = $1`,
		email,
	).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.LastName, &user.FirstName, &user.IsActive, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// upsertAttemptSQL keeps one row per attempted email: a repeated attempt
// overwrites the previous record instead of appending.
const upsertAttemptSQL = `
INSERT INTO logs_connexion (utilisateur_id, email_tentative, adresse_ip, user_agent, succes, message, date_heure)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (email_tentative) DO UPDATE
SET utilisateur_id = EXCLUDED.utilisateur_id,
    date_heure = EXCLUDED.date_heure,
    adresse_ip = EXCLUDED.adresse_ip,
    user_agent = EXCLUDED.user_agent,
    succes = EXCLUDED.succes,
    message = EXCLUDED.message`

func recordAttempt(ctx context.Context, q execer, log LoginLog) error {
	at := log.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err := q.Exec(ctx, upsertAttemptSQL, log.UserID, log.Email, log.IP, log.UserAgent, log.Success, log.Message, at)
	return err
}

// RecordAttempt upserts an attempt row outside any explicit transaction.
func (r *PGRepository) RecordAttempt(ctx context.Context, log LoginLog) error {
	return recordAttempt(ctx, r.pool, log)
}

// GetSessionByToken resolves a token to its session and owning account.
// It applies no activity or expiry filter; the service decides usability.
func (r *PGRepository) GetSessionByToken(ctx context.Context, token string) (*SessionUser, error) {
	var su SessionUser
	err := r.pool.QueryRow(ctx,
		`SELECT s.id, s.utilisateur_id, s.token, s.date_expiration, s.actif,
		        u.id, u.email, u.password_hash, u.nom, u.prenom, u.actif, u.date_creation, u.date_modification
		 FROM sessions s
		 JOIN utilisateurs u ON u.id = s.utilisateur_id
		 WHERE s.token = $1`,
		token,
	).Scan(
		&su.Session.ID, &su.Session.UserID, &su.Session.Token, &su.Session.ExpiresAt, &su.Session.IsActive,
		&su.User.ID, &su.User.Email, &su.User.PasswordHash, &su.User.LastName, &su.User.FirstName, &su.User.IsActive, &su.User.CreatedAt, &su.User.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &su, nil
}

// DeactivateSession flips the session inactive and returns the owning
// account id. A token that no longer matches an active session yields
// ErrNotFound, so a second logout on the same token is rejected.
func (r *PGRepository) DeactivateSession(ctx context.Context, token string) (int64, error) {
	var userID int64
	err := r.pool.QueryRow(ctx,
		`UPDATE sessions SET actif = FALSE WHERE token = $1 AND actif = TRUE RETURNING utilisateur_id`,
		token,
	).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return userID, nil
}

// GetUserWithRoles fetches an account and its aggregated role names.
func (r *PGRepository) GetUserWithRoles(ctx context.Context, userID int64) (*User, []string, error) {
	var (
		user  User
		roles []string
	)
	err := r.pool.QueryRow(ctx,
		`SELECT u.id, u.email, u.nom, u.prenom, u.actif, u.date_creation,
		        array_remove(array_agg(r.nom), NULL)
		 FROM utilisateurs u
		 LEFT JOIN utilisateur_roles ur ON ur.utilisateur_id = u.id
		 LEFT JOIN roles r ON r.id = ur.role_id
		 WHERE u.id = $1
		 GROUP BY u.id, u.email, u.nom, u.prenom, u.actif, u.date_creation`,
		userID,
	).Scan(&user.ID, &user.Email, &user.LastName, &user.FirstName, &user.IsActive, &user.CreatedAt, &roles)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}
	return &user, roles, nil
}

// ListLogsByUser returns the most recent attempt rows for an account.
func (r *PGRepository) ListLogsByUser(ctx context.Context, userID int64, limit int) ([]LoginLog, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, utilisateur_id, email_tentative, adresse_ip, user_agent, succes, message, date_heure
		 FROM logs_connexion
		 WHERE utilisateur_id = $1
		 ORDER BY date_heure DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var logs []LoginLog
	for rows.Next() {
		var log LoginLog
		if err := rows.Scan(&log.ID, &log.UserID, &log.Email, &log.IP, &log.UserAgent, &log.Success, &log.Message, &log.At); err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}
