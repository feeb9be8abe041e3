package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleStudent          UserRole = "STUDENT"
	RoleParent           UserRole = "PARENT"
	RoleEducator         UserRole = "EDUCATOR"
	RoleAdmin            UserRole = "ADMIN"
	RoleOperationManager UserRole = "OPERATION_MANAGER"
)

// IsStaff reports whether the role has full visibility and override rights.
func (r UserRole) IsStaff() bool {
	return r == RoleAdmin || r == RoleOperationManager
}

// User represents an application user stored in the users table.
type User struct {
	ID        string     `db:"id" json:"id"`
	Email     string     `db:"email" json:"email"`
	FullName  string     `db:"full_name" json:"full_name"`
	Role      UserRole   `db:"role" json:"role"`
	Active    bool       `db:"active" json:"active"`
	LastLogin *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// ParentStudentLink ties a parent account to a student account.
type ParentStudentLink struct {
	ParentID  string    `db:"parent_id" json:"parent_id"`
	StudentID string    `db:"student_id" json:"student_id"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
	TotalPages int `json:"total_pages"`
}

// NewPagination derives the page count from a total row count.
func NewPagination(page, size, total int) *Pagination {
	pages := 0
	if size > 0 {
		pages = (total + size - 1) / size
	}
	return &Pagination{Page: page, PageSize: size, TotalCount: total, TotalPages: pages}
}
