package users

import (
	"context"
	"math"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	CountUsers(ctx context.Context) (int, error)
	ListUsers(ctx context.Context, limit, offset int) ([]User, error)
	UpdateUser(ctx context.Context, id int64, in UpdateInput) (*User, error)
	DeleteUser(ctx context.Context, id int64) (*User, error)
}

// Service handles user management logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// List returns one page of accounts plus pagination metadata.
func (s *Service) List(ctx context.Context, page, limit int) ([]User, Pagination, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 10
	}
	total, err := s.repo.CountUsers(ctx)
	if err != nil {
		return nil, Pagination{}, err
	}
	users, err := s.repo.ListUsers(ctx, limit, (page-1)*limit)
	if err != nil {
		return nil, Pagination{}, err
	}
	pagination := Pagination{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: int(math.Ceil(float64(total) / float64(limit))),
	}
	return users, pagination, nil
}

// Update mutates the name fields and active flag of an account.
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput) (*User, error) {
	return s.repo.UpdateUser(ctx, id, in)
}

// Delete removes an account.
func (s *Service) Delete(ctx context.Context, id int64) (*User, error) {
	return s.repo.DeleteUser(ctx, id)
}
