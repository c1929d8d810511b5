package rbac

import "time"

// Role represents a named permission grouping.
type Role struct {
	ID          int64
	Name        string
	Description string
	CreatedAt   time.Time
}

// Permission represents an allowed (resource, action) pair.
type Permission struct {
	ID          int64  `json:"-"`
	Name        string `json:"nom"`
	Resource    string `json:"ressource"`
	Action      string `json:"action"`
	Description string `json:"description"`
}
