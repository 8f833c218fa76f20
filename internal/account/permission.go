package account

// flattenRoles walks a user's roles and their Inherits chains, returning the
// full set of permissions granted (directly or via inheritance), along with
// the user's own direct permissions.
func flattenRoles(u *User) []Permission {
	seen := make(map[string]bool)
	var out []Permission
	out = append(out, u.PermissionsDirect...)

	var walk func(r RoleRef)
	walk = func(r RoleRef) {
		if seen[r.Name] {
			return
		}
		seen[r.Name] = true
		out = append(out, r.Permissions...)
		for _, inherited := range r.Inherits {
			walk(inherited)
		}
	}
	for _, role := range u.Roles {
		walk(role)
	}
	return out
}

// dominatedBy reports whether some permission in held dominates req.
func dominatedBy(held []Permission, req Permission) bool {
	for _, p := range held {
		if p.Dominates(req) {
			return true
		}
	}
	return false
}
