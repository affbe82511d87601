package auth

import "time"

// Role is the admin role hierarchy. It is totally ordered: super_admin covers
// admin, admin covers an unprivileged principal.
type Role string

const (
	RoleNone       Role = ""
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

func (r Role) rank() int {
	switch r {
	case RoleSuperAdmin:
		return 2
	case RoleAdmin:
		return 1
	default:
		return 0
	}
}

// Valid reports whether r is a role the system knows about.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// Covers reports whether r satisfies the required role.
func (r Role) Covers(required Role) bool {
	return r.rank() >= required.rank()
}

// Member lifecycle statuses.
const (
	MemberStatusActive    = "active"
	MemberStatusPending   = "pending"
	MemberStatusSuspended = "suspended"
	MemberStatusExpired   = "expired"
)

// Application statuses.
const (
	ApplicationPending  = "pending"
	ApplicationApproved = "approved"
	ApplicationRejected = "rejected"
)

// Member is a society member. Authentication material lives in a separate
// row (MemberCredential); members are soft-statused, never deleted.
type Member struct {
	ID                string    `json:"id"`
	FullName          string    `json:"full_name"`
	MemberStatus      string    `json:"member_status"`
	ApplicationStatus string    `json:"application_status"`
	RenewalDate       time.Time `json:"renewal_date"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// MemberCredential holds a member's login material. A zero PasswordHash means
// the member was approved but has not completed password setup yet.
type MemberCredential struct {
	MemberID          string
	Username          string
	PasswordHash      string
	Salt              string
	PasswordChangedAt time.Time
}

// MemberContact is the subset of contact details the identity flows need.
type MemberContact struct {
	MemberID string `json:"member_id"`
	Email    string `json:"email"`
	Phone    string `json:"phone,omitempty"`
}

// Admin is a portal administrator.
type Admin struct {
	ID                string     `json:"id"`
	Username          string     `json:"username"`
	Email             string     `json:"email"`
	PasswordHash      string     `json:"-"`
	Salt              string     `json:"-"`
	Role              Role       `json:"role"`
	IsActive          bool       `json:"is_active"`
	LoginAttempts     int        `json:"-"`
	LockedUntil       *time.Time `json:"locked_until,omitempty"`
	LastLogin         *time.Time `json:"last_login,omitempty"`
	PasswordChangedAt time.Time  `json:"-"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Locked reports whether the account is locked out at the given instant.
func (a *Admin) Locked(now time.Time) bool {
	return a.LockedUntil != nil && now.Before(*a.LockedUntil)
}

// Permission is a sparse per-admin override on top of the role policy.
// An explicit Allowed=false row denies regardless of role.
type Permission struct {
	AdminID  string `json:"admin_id"`
	Resource string `json:"resource"`
	Action   string `json:"action"`
	Allowed  bool   `json:"allowed"`
}

// Session records an issued admin session token so logout can revoke it
// before its natural expiry. Token validation stays stateless otherwise.
type Session struct {
	ID        string
	AdminID   string
	TokenID   string
	CreatedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
}

// AdminPrincipal is an authenticated admin with preloaded overrides.
type AdminPrincipal struct {
	Admin     *Admin       `json:"admin"`
	Overrides []Permission `json:"overrides,omitempty"`
}

// MemberPrincipal is an authenticated member.
type MemberPrincipal struct {
	Member   *Member `json:"member"`
	Username string  `json:"username"`
	Email    string  `json:"email,omitempty"`
}
