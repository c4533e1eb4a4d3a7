package models

// Role is a team membership role.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleViewer Role = "viewer"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember, RoleViewer:
		return true
	}
	return false
}

// IsManager reports whether r can manage the team (owner or admin).
func (r Role) IsManager() bool {
	return r == RoleOwner || r == RoleAdmin
}

// Team represents a team entity
type Team struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Color       string `json:"color"`
	OwnerID     int64  `json:"owner_id"`
	CreatedAt   int64  `json:"created_at"`
	UpdatedAt   int64  `json:"updated_at"`
}

// TeamSummary is a team as seen from one of its members.
type TeamSummary struct {
	Team
	Role        Role `json:"role"`
	MemberCount int  `json:"member_count"`
}

// TeamMember represents a team membership with role
type TeamMember struct {
	TeamID    int64  `json:"team_id"`
	UserID    int64  `json:"user_id"`
	Role      Role   `json:"role"`
	JoinedAt  int64  `json:"joined_at"`
	InvitedBy *int64 `json:"invited_by,omitempty"`

	Email     string `json:"email,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// TeamDetail is a team together with its members.
type TeamDetail struct {
	Team
	Members []TeamMember `json:"members"`
}

// PaginationResponse wraps paginated team results
type PaginationResponse struct {
	Teams      []TeamSummary `json:"teams"`
	TotalCount int           `json:"total_count"`
	Page       int           `json:"page"`
	PerPage    int           `json:"per_page"`
}
