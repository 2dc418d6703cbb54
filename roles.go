package auth

// roleHierarchy orders roles from least to most privileged. Every role
// comparison in the machine goes through RoleIsAtLeast so the ordering lives
// in exactly one place.
var roleHierarchy = map[Role]int{
	RoleGuest:         0,
	RoleWorker:        1,
	RoleClinicAdmin:   2,
	RoleCompanyOwner:  3,
	RolePlatformAdmin: 4,
}

// RoleIsValid checks if the role is one of the predefined valid roles.
func RoleIsValid(r Role) bool {
	_, ok := roleHierarchy[r]
	return ok
}

// RoleIsAtLeast reports whether role meets the minimum required level.
// Unknown roles never satisfy any minimum.
func RoleIsAtLeast(role, min Role) bool {
	current, ok := roleHierarchy[role]
	if !ok {
		return false
	}
	required, ok := roleHierarchy[min]
	if !ok {
		return false
	}
	return current >= required
}

// GetAllRoles returns all predefined roles in hierarchical order.
func GetAllRoles() []Role {
	return []Role{
		RoleGuest,
		RoleWorker,
		RoleClinicAdmin,
		RoleCompanyOwner,
		RolePlatformAdmin,
	}
}

// ParseRole safely parses a string into a Role.
func ParseRole(roleStr string) (Role, bool) {
	role := Role(roleStr)
	return role, RoleIsValid(role)
}
