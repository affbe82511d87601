package auth

import (
	"context"
	"time"
)

// Store describes persistence operations required by the identity subsystem.
type Store interface {
	Members(ctx context.Context) MemberStore
	Admins(ctx context.Context) AdminStore
	Permissions(ctx context.Context) PermissionStore
	Sessions(ctx context.Context) SessionStore
}

// MemberStore manages members, their contact details and credentials.
type MemberStore interface {
	// Create inserts the member with its contact and credential rows in one
	// transaction, so a failure (say, a taken username) leaves no orphaned
	// member behind.
	Create(ctx context.Context, m *Member, contact *MemberContact, cred *MemberCredential) error
	Find(ctx context.Context, id string) (*Member, error)
	List(ctx context.Context, limit, offset int) ([]*Member, error)

	// FindByIdentifier resolves a login identifier (username or email) to the
	// member and its credential row.
	FindByIdentifier(ctx context.Context, identifier string) (*Member, *MemberCredential, error)
	FindByEmail(ctx context.Context, email string) (*Member, error)
	Contact(ctx context.Context, memberID string) (*MemberContact, error)

	Credential(ctx context.Context, memberID string) (*MemberCredential, error)
	UpdatePassword(ctx context.Context, memberID, passwordHash, salt string, changedAt time.Time) error

	// UpdateStatus transitions member/application status and reports the row
	// as it was before the write, for audit diffs.
	UpdateStatus(ctx context.Context, id, memberStatus, applicationStatus string) (*Member, error)
}

// AdminStore manages administrator accounts.
type AdminStore interface {
	Create(ctx context.Context, a *Admin) error
	Find(ctx context.Context, id string) (*Admin, error)
	FindByIdentifier(ctx context.Context, identifier string) (*Admin, error)
	FindByEmail(ctx context.Context, email string) (*Admin, error)
	List(ctx context.Context) ([]*Admin, error)

	UpdatePassword(ctx context.Context, adminID, passwordHash, salt string, changedAt time.Time) error
	RecordLoginSuccess(ctx context.Context, adminID string, at time.Time) error
	// RecordLoginFailure increments the attempt counter and returns the new
	// count so the caller can decide on a lockout.
	RecordLoginFailure(ctx context.Context, adminID string) (int, error)
	Lock(ctx context.Context, adminID string, until time.Time) error
	Unlock(ctx context.Context, adminID string) error
	SetRole(ctx context.Context, adminID string, role Role) error
	SetActive(ctx context.Context, adminID string, active bool) error
}

// PermissionStore manages sparse per-admin overrides.
type PermissionStore interface {
	ForAdmin(ctx context.Context, adminID string) ([]Permission, error)
	Set(ctx context.Context, p Permission) error
}

// SessionStore records issued admin session tokens for revocation lookups.
type SessionStore interface {
	Create(ctx context.Context, s *Session) error
	Revoke(ctx context.Context, tokenID string, at time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// PrincipalCache holds short-lived copies of resolved principals so the
// authorization gate does not hit the store on every request. Entries must be
// invalidated on logout, password change and role change; staleness is
// otherwise bounded by the configured TTL.
type PrincipalCache interface {
	GetAdmin(ctx context.Context, id string) (*AdminPrincipal, bool)
	SetAdmin(ctx context.Context, id string, p *AdminPrincipal)
	InvalidateAdmin(ctx context.Context, id string)

	GetMember(ctx context.Context, id string) (*MemberPrincipal, bool)
	SetMember(ctx context.Context, id string, p *MemberPrincipal)
	InvalidateMember(ctx context.Context, id string)
}
