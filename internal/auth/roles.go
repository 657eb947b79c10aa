package auth

// Role is an admin permission level
type Role string

const (
	RoleViewer Role = "viewer"
	RoleEditor Role = "editor"
	RoleAdmin  Role = "admin"
)

var roleLevels = map[Role]int{
	RoleViewer: 10,
	RoleEditor: 20,
	RoleAdmin:  30,
}

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	_, ok := roleLevels[r]
	return ok
}

// Level returns the rank of r, 0 for unknown roles
func (r Role) Level() int {
	return roleLevels[r]
}

// Allows reports whether r ranks at least as high as min
func (r Role) Allows(min Role) bool {
	return r.Valid() && r.Level() >= min.Level()
}

// Roles lists the known roles from lowest to highest
func Roles() []Role {
	return []Role{RoleViewer, RoleEditor, RoleAdmin}
}
