package schema

// Role is the bot account's role inside a group.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// IsElevated reports whether the role can manage the group.
func (r Role) IsElevated() bool {
	return r == RoleOwner || r == RoleAdmin
}
