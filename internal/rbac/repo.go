package rbac

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository defines persistence operations for the rbac module.
type Repository interface {
	UserPermissions(ctx context.Context, userID int64) ([]Permission, error)
	AssignRole(ctx context.Context, userID, roleID int64) error
	RemoveRole(ctx context.Context, userID, roleID int64) error
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

// UserPermissions resolves the deduplicated permission set reachable
// through the account's roles, ordered by (resource, action). The join
// shape is fixed, so the query is a constant.
func (r *PGRepository) UserPermissions(ctx context.Context, userID int64) ([]Permission, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT p.id, p.nom, p.ressource, p.action, p.description
		 FROM utilisateurs u
		 JOIN utilisateur_roles ur ON ur.utilisateur_id = u.id
		 JOIN roles ro ON ro.id = ur.role_id
		 JOIN role_permissions rp ON rp.role_id = ro.id
		 JOIN permissions p ON p.id = rp.permission_id
		 WHERE u.id = $1
		 ORDER BY p.ressource, p.action`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Resource, &p.Action, &p.Description); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}

// AssignRole grants a role to the given account.
func (r *PGRepository) AssignRole(ctx context.Context, userID, roleID int64) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO utilisateur_roles (utilisateur_id, role_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		userID, roleID,
	)
	return err
}

// RemoveRole revokes a role from the given account.
func (r *PGRepository) RemoveRole(ctx context.Context, userID, roleID int64) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM utilisateur_roles WHERE utilisateur_id = $1 AND role_id = $2`,
		userID, roleID,
	)
	return err
}
