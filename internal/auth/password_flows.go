package auth

import (
	"context"
	"errors"
	"strings"
)

const minPasswordLength = 8

func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return ErrInvalidInput
	}
	return nil
}

// MemberForgotPassword issues a password reset token for the member holding
// the given email. An unknown email yields no token and no error so callers
// can answer with the same generic message either way.
func (s *Service) MemberForgotPassword(ctx context.Context, email string) (string, *Member, error) {
	email = normalizeIdentifier(email)
	if email == "" || !strings.Contains(email, "@") {
		return "", nil, nil
	}
	member, err := s.store.Members(ctx).FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil, nil
		}
		return "", nil, err
	}
	token, _, err := s.tokens.Issue(member.ID, PurposePasswordReset, s.resetTTL)
	if err != nil {
		return "", nil, err
	}
	return token, member, nil
}

// ResetMemberPassword consumes a reset token and overwrites the member's
// credential. Tokens issued before the last password change are rejected, so
// a reset token cannot be replayed once the password it was meant to set has
// already been changed.
func (s *Service) ResetMemberPassword(ctx context.Context, rawToken, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	verified, err := s.tokens.Verify(rawToken, PurposePasswordReset)
	if err != nil {
		return err
	}
	members := s.store.Members(ctx)
	cred, err := members.Credential(ctx, verified.SubjectID)
	if err != nil {
		return err
	}
	if verified.IssuedAt.Before(cred.PasswordChangedAt) {
		return ErrTokenExpired
	}
	return s.writeMemberPassword(ctx, verified.SubjectID, newPassword)
}

// SetupMemberPassword consumes a setup token minted at member creation and
// sets the initial password. The same stale-token guard applies: once any
// password has been set after the token was issued, the token is dead.
func (s *Service) SetupMemberPassword(ctx context.Context, rawToken, password string) error {
	if err := validatePassword(password); err != nil {
		return err
	}
	verified, err := s.tokens.Verify(rawToken, PurposePasswordSetup)
	if err != nil {
		return err
	}
	members := s.store.Members(ctx)
	member, err := members.Find(ctx, verified.SubjectID)
	if err != nil {
		return err
	}
	if member.ApplicationStatus != ApplicationApproved {
		return ErrAccountNotActive
	}
	cred, err := members.Credential(ctx, verified.SubjectID)
	if err != nil {
		return err
	}
	if verified.IssuedAt.Before(cred.PasswordChangedAt) {
		return ErrTokenExpired
	}
	return s.writeMemberPassword(ctx, verified.SubjectID, password)
}

func (s *Service) writeMemberPassword(ctx context.Context, memberID, password string) error {
	hash, err := HashPassword(password, MemberHashCost)
	if err != nil {
		return err
	}
	salt, err := NewSalt()
	if err != nil {
		return err
	}
	if err := s.store.Members(ctx).UpdatePassword(ctx, memberID, hash, salt, s.now().UTC()); err != nil {
		return err
	}
	s.invalidateMember(ctx, memberID)
	return nil
}

// AdminForgotPassword mirrors the member flow for administrators.
func (s *Service) AdminForgotPassword(ctx context.Context, email string) (string, *Admin, error) {
	email = normalizeIdentifier(email)
	if email == "" || !strings.Contains(email, "@") {
		return "", nil, nil
	}
	admin, err := s.store.Admins(ctx).FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil, nil
		}
		return "", nil, err
	}
	if !admin.IsActive {
		return "", nil, nil
	}
	token, _, err := s.tokens.Issue(admin.ID, PurposePasswordReset, s.resetTTL)
	if err != nil {
		return "", nil, err
	}
	return token, admin, nil
}

// ResetAdminPassword consumes an admin reset token, with the same issued-at
// guard as the member flow.
func (s *Service) ResetAdminPassword(ctx context.Context, rawToken, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	verified, err := s.tokens.Verify(rawToken, PurposePasswordReset)
	if err != nil {
		return err
	}
	admins := s.store.Admins(ctx)
	admin, err := admins.Find(ctx, verified.SubjectID)
	if err != nil {
		return err
	}
	if verified.IssuedAt.Before(admin.PasswordChangedAt) {
		return ErrTokenExpired
	}
	hash, err := HashPassword(newPassword, AdminHashCost)
	if err != nil {
		return err
	}
	salt, err := NewSalt()
	if err != nil {
		return err
	}
	if err := admins.UpdatePassword(ctx, admin.ID, hash, salt, s.now().UTC()); err != nil {
		return err
	}
	s.invalidateAdmin(ctx, admin.ID)
	return nil
}
