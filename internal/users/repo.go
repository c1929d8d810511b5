package users

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates that the requested user does not exist.
var ErrNotFound = errors.New("users: not found")

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CountUsers returns the total number of accounts.
func (r *Repository) CountUsers(ctx context.Context) (int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)::int FROM utilisateurs`).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// ListUsers returns one page of accounts with their aggregated role names.
func (r *Repository) ListUsers(ctx context.Context, limit, offset int) ([]User, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT u.id, u.email, u.nom, u.prenom, u.actif, u.date_creation,
		        array_remove(array_agg(ro.nom), NULL)
		 FROM utilisateurs u
		 LEFT JOIN utilisateur_roles ur ON ur.utilisateur_id = u.id
		 LEFT JOIN roles ro ON ro.id = ur.role_id
		 GROUP BY u.id, u.email, u.nom, u.prenom, u.actif, u.date_creation
		 ORDER BY u.id
		 LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		var user User
		if err := rows.Scan(&user.ID, &user.Email, &user.LastName, &user.FirstName, &user.IsActive, &user.CreatedAt, &user.Roles); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

// UpdateUser mutates the name fields and the active flag.
func (r *Repository) UpdateUser(ctx context.Context, id int64, in UpdateInput) (*User, error) {
	var user User
	err := r.pool.QueryRow(ctx,
		`UPDATE utilisateurs
		 SET nom = $1, prenom = $2, actif = $3, date_modification = CURRENT_TIMESTAMP
		 WHERE id = $4
		 RETURNING id, email, nom, prenom, actif, date_modification`,
		in.LastName, in.FirstName, in.IsActive, id,
	).Scan(&user.ID, &user.Email, &user.LastName, &user.FirstName, &user.IsActive, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// DeleteUser removes an account and returns the deleted record.
func (r *Repository) DeleteUser(ctx context.Context, id int64) (*User, error) {
	var user User
	err := r.pool.QueryRow(ctx,
		`DELETE FROM utilisateurs WHERE id = $1
		 RETURNING id, email, nom, prenom, actif, date_creation`,
		id,
	).Scan(&user.ID, &user.Email, &user.LastName, &user.FirstName, &user.IsActive, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}
