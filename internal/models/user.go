package models

// UserRole represents the roles carried in access tokens.
type UserRole string

const (
	RoleStudent UserRole = "STUDENT"
	RoleAgent   UserRole = "AGENT"
	RoleStaff   UserRole = "STAFF"
	RoleAdmin   UserRole = "ADMIN"
)

// IsReviewer reports whether the role may decide documents and applications.
func (r UserRole) IsReviewer() bool {
	return r == RoleStaff || r == RoleAdmin
}

// Valid reports whether the role is one the portal recognises.
func (r UserRole) Valid() bool {
	switch r {
	case RoleStudent, RoleAgent, RoleStaff, RoleAdmin:
		return true
	}
	return false
}

// Actor identifies who performs a workflow action.
type Actor struct {
	ID   string   `json:"id"`
	Role UserRole `json:"role"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
