package models

// Role is the privilege level of a verified caller
type Role string

const (
	RoleStudent  Role = "student"
	RoleReviewer Role = "reviewer"
	RoleAdmin    Role = "admin"
)

// Caller is the verified identity attached to every engine operation
type Caller struct {
	StudentID string
	Role      Role
}

// IsPrivileged reports whether the caller may perform administrative actions
func (c Caller) IsPrivileged() bool {
	return c.Role == RoleAdmin
}

// CanReview reports whether the caller may read and review plagiarism reports
func (c Caller) CanReview() bool {
	return c.Role == RoleAdmin || c.Role == RoleReviewer
}

// Owns reports whether the caller may act on an attempt belonging to studentID
func (c Caller) Owns(studentID string) bool {
	return c.IsPrivileged() || (c.StudentID != "" && c.StudentID == studentID)
}
