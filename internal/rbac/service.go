package rbac

import (
	"context"
	"log/slog"
	"strconv"

	"golang.org/x/sync/singleflight"
)

// Service resolves the permissions an account holds through its roles.
type Service struct {
	repo   Repository
	cache  *Cache
	logger *slog.Logger
	group  singleflight.Group
}

// NewService constructs a Service. The cache may be nil.
func NewService(repo Repository, cache *Cache, logger *slog.Logger) *Service {
	return &Service{repo: repo, cache: cache, logger: logger}
}

// EffectivePermissions returns the deduplicated permission set for an
// account, ordered by (resource, action). Concurrent lookups for the same
// account collapse into one query.
func (s *Service) EffectivePermissions(ctx context.Context, userID int64) ([]Permission, error) {
	if perms, ok := s.cache.Get(ctx, userID); ok {
		return perms, nil
	}
	value, err, _ := s.group.Do(strconv.FormatInt(userID, 10), func() (any, error) {
		perms, err := s.repo.UserPermissions(ctx, userID)
		if err != nil {
			return nil, err
		}
		if err := s.cache.Set(ctx, userID, perms); err != nil && s.logger != nil {
			s.logger.Warn("permission cache set", slog.Any("error", err))
		}
		return perms, nil
	})
	if err != nil {
		return nil, err
	}
	return value.([]Permission), nil
}

// HasPermission reports whether the account holds the exact
// (resource, action) pair.
func (s *Service) HasPermission(ctx context.Context, userID int64, resource, action string) (bool, error) {
	perms, err := s.EffectivePermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, p := range perms {
		if p.Resource == resource && p.Action == action {
			return true, nil
		}
	}
	return false, nil
}

// AssignRole grants a role to the account and invalidates its cached
// permission set.
func (s *Service) AssignRole(ctx context.Context, userID, roleID int64) error {
	if err := s.repo.AssignRole(ctx, userID, roleID); err != nil {
		return err
	}
	return s.cache.Invalidate(ctx, userID)
}

// RemoveRole revokes a role from the account and invalidates its cached
// permission set.
func (s *Service) RemoveRole(ctx context.Context, userID, roleID int64) error {
	if err := s.repo.RemoveRole(ctx, userID, roleID); err != nil {
		return err
	}
	return s.cache.Invalidate(ctx, userID)
}
