package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleCaller     = "caller"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super_admin"
	RoleDataBot    = "data_bot" // hidden role for automated correction pipelines
)

func IsSuperAdmin(role string) bool { return role == RoleSuperAdmin }

func IsHiddenRole(role string) bool { return role == RoleDataBot }
