package entities

// Role is the access role attached to an identity by the upstream
// authentication collaborator.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether the role is known.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Identity is the authenticated caller as handed to the engine by the
// authentication collaborator. The engine never manages credentials.
type Identity struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}
