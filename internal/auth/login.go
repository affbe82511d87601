package auth

import (
	"context"
	"errors"

	"counselsoc.org/internal/obs"
)

// TokenGrant is a freshly issued session token.
type TokenGrant struct {
	Token     string
	ExpiresAt int64
}

// MemberLogin verifies a member's credentials by username or email and issues
// a session token. Unknown identifiers burn a hash comparison so their
// latency is not trivially distinguishable from a wrong password.
func (s *Service) MemberLogin(ctx context.Context, identifier, password string) (*TokenGrant, *MemberPrincipal, error) {
	identifier = normalizeIdentifier(identifier)
	if identifier == "" || password == "" {
		return nil, nil, ErrInvalidCredentials
	}

	member, cred, err := s.store.Members(ctx).FindByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			burnHash(password)
			obs.LoginAttempts.WithLabelValues("member", "not_found").Inc()
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}
	if err := VerifyPassword(cred.PasswordHash, password); err != nil {
		obs.LoginAttempts.WithLabelValues("member", "bad_password").Inc()
		return nil, nil, ErrInvalidCredentials
	}
	// Expired members may still sign in to renew; suspended and unapproved
	// accounts may not.
	if member.ApplicationStatus != ApplicationApproved || member.MemberStatus == MemberStatusSuspended {
		obs.LoginAttempts.WithLabelValues("member", "not_active").Inc()
		return nil, nil, ErrAccountNotActive
	}

	token, verified, err := s.tokens.Issue(member.ID, PurposeSession, s.sessionTTL)
	if err != nil {
		return nil, nil, err
	}
	principal := &MemberPrincipal{Member: member, Username: cred.Username}
	if contact, err := s.store.Members(ctx).Contact(ctx, member.ID); err == nil {
		principal.Email = contact.Email
	}
	obs.LoginAttempts.WithLabelValues("member", "success").Inc()
	return &TokenGrant{Token: token, ExpiresAt: verified.ExpiresAt.Unix()}, principal, nil
}

// AdminLogin verifies an admin's credentials, applies the lockout policy and
// issues a session token backed by an admin_sessions row for revocation.
func (s *Service) AdminLogin(ctx context.Context, identifier, password string) (*TokenGrant, *Admin, error) {
	identifier = normalizeIdentifier(identifier)
	if identifier == "" || password == "" {
		return nil, nil, ErrInvalidCredentials
	}

	admins := s.store.Admins(ctx)
	admin, err := admins.FindByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			burnHash(password)
			obs.LoginAttempts.WithLabelValues("admin", "not_found").Inc()
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}

	now := s.now()
	if !admin.IsActive || admin.Locked(now) {
		obs.LoginAttempts.WithLabelValues("admin", "not_active").Inc()
		return nil, nil, ErrAccountNotActive
	}

	if err := VerifyPassword(admin.PasswordHash, password); err != nil {
		attempts, ferr := admins.RecordLoginFailure(ctx, admin.ID)
		if ferr == nil && attempts >= s.lockThreshold {
			_ = admins.Lock(ctx, admin.ID, now.Add(s.lockDuration))
		}
		obs.LoginAttempts.WithLabelValues("admin", "bad_password").Inc()
		return nil, nil, ErrInvalidCredentials
	}

	if err := admins.RecordLoginSuccess(ctx, admin.ID, now); err != nil {
		return nil, nil, err
	}
	admin.LoginAttempts = 0
	admin.LockedUntil = nil
	admin.LastLogin = &now

	token, verified, err := s.tokens.Issue(admin.ID, PurposeSession, s.sessionTTL)
	if err != nil {
		return nil, nil, err
	}
	err = s.store.Sessions(ctx).Create(ctx, &Session{
		AdminID:   admin.ID,
		TokenID:   verified.TokenID,
		ExpiresAt: verified.ExpiresAt,
	})
	if err != nil {
		return nil, nil, err
	}
	s.invalidateAdmin(ctx, admin.ID)
	obs.LoginAttempts.WithLabelValues("admin", "success").Inc()
	return &TokenGrant{Token: token, ExpiresAt: verified.ExpiresAt.Unix()}, admin, nil
}

// AdminLogout revokes the presented session token and drops any cached
// principal. Revocation is best-effort on the session row but the cache is
// always cleared.
func (s *Service) AdminLogout(ctx context.Context, adminID, tokenID string) error {
	s.invalidateAdmin(ctx, adminID)
	if tokenID == "" {
		return nil
	}
	return s.store.Sessions(ctx).Revoke(ctx, tokenID, s.now())
}
