package auth

import "time"

// User represents a registered account.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	LastName     *string
	FirstName    *string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    *time.Time
}

// Session is a time-bounded proof of authentication. A session is usable
// only while IsActive is true and the current time is before ExpiresAt.
type Session struct {
	ID        int64
	UserID    int64
	Token     string
	ExpiresAt time.Time
	IsActive  bool
}

// SessionUser bundles a session with its owning account.
type SessionUser struct {
	Session Session
	User    User
}

// LoginLog captures the most recent authentication attempt for an email.
// The table keeps one row per attempted email; a new attempt overwrites
// the previous one.
type LoginLog struct {
	ID        int64
	UserID    *int64
	Email     string
	IP        *string
	UserAgent *string
	Success   bool
	Message   string
	At        time.Time
}

// Audit messages recorded in logs_connexion, matching the wire contract.
const (
	CauseUnknownEmail = "Email inconnu"
	CauseInactive     = "Compte inactif"
	CauseBadPassword  = "Mot de passe incorrect"
	CauseSuccess      = "Connexion réussie"
	CauseLogout       = "Déconnexion"
)
