package rbac

// The authorization engine. Pure functions over an already-loaded role
// graph: no I/O happens here, callers are responsible for eager fetching.
// Slug comparison is exact and case-sensitive.

// HasRole reports whether slug is among the assigned role slugs.
func HasRole(roles []Role, slug string) bool {
	for _, r := range roles {
		if r.Slug == slug {
			return true
		}
	}
	return false
}

// HasPermission reports whether any role grants the permission slug.
// Evaluation order across roles is unspecified; the first match wins.
func HasPermission(roles []Role, slug string) bool {
	for _, r := range roles {
		for _, p := range r.Permissions {
			if p.Slug == slug {
				return true
			}
		}
	}
	return false
}

// AllPermissions returns the union of permissions across roles,
// deduplicated by slug.
func AllPermissions(roles []Role) []Permission {
	seen := make(map[string]struct{})
	var out []Permission
	for _, r := range roles {
		for _, p := range r.Permissions {
			if _, ok := seen[p.Slug]; ok {
				continue
			}
			seen[p.Slug] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}
