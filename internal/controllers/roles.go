package controllers

var allowedRoles = map[string]struct{}{
	"admin":       {},
	"judge":       {},
	"participant": {},
}

func IsValidRole(role string) bool {
	_, ok := allowedRoles[role]
	return ok
}

// IsPrivileged reports whether role may read other subjects' monitoring
// data (review dashboards, session overrides).
func IsPrivileged(role string) bool {
	return role == "admin" || role == "judge"
}
