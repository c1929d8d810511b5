package users

import "time"

// User represents a managed account and its role names.
type User struct {
	ID        int64
	Email     string
	LastName  *string
	FirstName *string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt *time.Time
	Roles     []string
}

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// UpdateInput carries the fields mutable through the admin update.
type UpdateInput struct {
	LastName  *string
	FirstName *string
	IsActive  bool
}
