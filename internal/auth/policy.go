package auth

// Resources and actions the admin portal authorizes against. Every protected
// operation names its pair here instead of duck-typed checks inline per
// handler.
const (
	ResourceMembers      = "members"
	ResourceAdmins       = "admins"
	ResourceContent      = "content"
	ResourceTestimonials = "testimonials"
	ResourceAuditLog     = "audit_log"
	ResourceActivities   = "activities"
)

const (
	ActionRead  = "read"
	ActionWrite = "write"
)

// policy maps resource:action to the minimum role required. Pairs absent from
// the table are denied for everyone; an operation must be registered here to
// be reachable at all.
var policy = map[string]Role{
	ResourceMembers + ":" + ActionRead:       RoleAdmin,
	ResourceMembers + ":" + ActionWrite:      RoleAdmin,
	ResourceContent + ":" + ActionRead:       RoleAdmin,
	ResourceContent + ":" + ActionWrite:      RoleAdmin,
	ResourceTestimonials + ":" + ActionRead:  RoleAdmin,
	ResourceTestimonials + ":" + ActionWrite: RoleAdmin,
	ResourceActivities + ":" + ActionRead:    RoleAdmin,
	ResourceAuditLog + ":" + ActionRead:      RoleAdmin,
	ResourceAdmins + ":" + ActionRead:        RoleSuperAdmin,
	ResourceAdmins + ":" + ActionWrite:       RoleSuperAdmin,
}

// MinimumRole returns the role the policy table demands for a resource/action
// pair. The second result is false when the pair is unknown.
func MinimumRole(resource, action string) (Role, bool) {
	role, ok := policy[resource+":"+action]
	return role, ok
}

// Authorize decides whether the principal may perform action on resource.
//
// Order of evaluation: an explicit per-admin override row wins in both
// directions; otherwise the role hierarchy is consulted against the policy
// table. An unknown pair is denied.
func Authorize(principal *AdminPrincipal, resource, action string) error {
	if principal == nil || principal.Admin == nil {
		return ErrUnauthenticated
	}
	for _, p := range principal.Overrides {
		if p.Resource != resource || p.Action != action {
			continue
		}
		if !p.Allowed {
			return &ForbiddenError{Required: RoleSuperAdmin, Actual: principal.Admin.Role}
		}
		return nil
	}
	required, ok := MinimumRole(resource, action)
	if !ok {
		return &ForbiddenError{Required: RoleSuperAdmin, Actual: principal.Admin.Role}
	}
	if !principal.Admin.Role.Covers(required) {
		return &ForbiddenError{Required: required, Actual: principal.Admin.Role}
	}
	return nil
}
