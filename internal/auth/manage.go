package auth

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// CreateMemberParams carries everything needed to register an approved
// member. The credential row is created immediately with an empty hash; the
// returned setup token lets the member choose their password.
type CreateMemberParams struct {
	FullName    string
	Username    string
	Email       string
	Phone       string
	RenewalDate time.Time
}

func (p *CreateMemberParams) validate() error {
	p.FullName = strings.TrimSpace(p.FullName)
	p.Username = normalizeIdentifier(p.Username)
	p.Email = normalizeIdentifier(p.Email)
	if p.FullName == "" {
		return fmt.Errorf("%w: full name is required", ErrInvalidInput)
	}
	if p.Username == "" {
		return fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	if p.Email == "" || !strings.Contains(p.Email, "@") {
		return fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if p.RenewalDate.IsZero() {
		return fmt.Errorf("%w: renewal date is required", ErrInvalidInput)
	}
	return nil
}

// CreateMember registers an approved, active member and mints a password
// setup token for them.
func (s *Service) CreateMember(ctx context.Context, params CreateMemberParams) (*Member, string, error) {
	if err := params.validate(); err != nil {
		return nil, "", err
	}
	member := &Member{
		FullName:          params.FullName,
		MemberStatus:      MemberStatusActive,
		ApplicationStatus: ApplicationApproved,
		RenewalDate:       params.RenewalDate,
	}
	salt, err := NewSalt()
	if err != nil {
		return nil, "", err
	}
	contact := &MemberContact{Email: params.Email, Phone: params.Phone}
	cred := &MemberCredential{Username: params.Username, Salt: salt}
	if err := s.store.Members(ctx).Create(ctx, member, contact, cred); err != nil {
		return nil, "", err
	}
	token, _, err := s.tokens.Issue(member.ID, PurposePasswordSetup, s.setupTTL)
	if err != nil {
		return nil, "", err
	}
	return member, token, nil
}

// GetMember loads one member.
func (s *Service) GetMember(ctx context.Context, id string) (*Member, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: member id is required", ErrInvalidInput)
	}
	return s.store.Members(ctx).Find(ctx, id)
}

// ListMembers pages through members, newest first.
func (s *Service) ListMembers(ctx context.Context, limit, offset int) ([]*Member, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.Members(ctx).List(ctx, limit, offset)
}

// MemberProfile resolves a member principal for the member portal.
func (s *Service) MemberProfile(ctx context.Context, memberID string) (*MemberPrincipal, error) {
	return s.memberPrincipal(ctx, memberID)
}

func validMemberStatus(status string) bool {
	switch status {
	case MemberStatusActive, MemberStatusPending, MemberStatusSuspended, MemberStatusExpired:
		return true
	}
	return false
}

func validApplicationStatus(status string) bool {
	switch status {
	case ApplicationPending, ApplicationApproved, ApplicationRejected:
		return true
	}
	return false
}

// UpdateMemberStatus transitions a member's statuses and returns both images
// for the audit trail.
func (s *Service) UpdateMemberStatus(ctx context.Context, id, memberStatus, applicationStatus string) (old, updated *Member, err error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil, fmt.Errorf("%w: member id is required", ErrInvalidInput)
	}
	if !validMemberStatus(memberStatus) {
		return nil, nil, fmt.Errorf("%w: unknown member status %q", ErrInvalidInput, memberStatus)
	}
	if !validApplicationStatus(applicationStatus) {
		return nil, nil, fmt.Errorf("%w: unknown application status %q", ErrInvalidInput, applicationStatus)
	}
	old, err = s.store.Members(ctx).UpdateStatus(ctx, id, memberStatus, applicationStatus)
	if err != nil {
		return nil, nil, err
	}
	updated = &Member{
		ID:                old.ID,
		FullName:          old.FullName,
		MemberStatus:      memberStatus,
		ApplicationStatus: applicationStatus,
		RenewalDate:       old.RenewalDate,
		CreatedAt:         old.CreatedAt,
	}
	s.invalidateMember(ctx, id)
	return old, updated, nil
}

// SubmitRenewal records a member's renewal payment reference and parks the
// membership in pending until an admin reviews it. Expired members may
// submit; suspended ones may not.
func (s *Service) SubmitRenewal(ctx context.Context, memberID, reference string) (*Member, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, fmt.Errorf("%w: payment reference is required", ErrInvalidInput)
	}
	members := s.store.Members(ctx)
	member, err := members.Find(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if member.MemberStatus == MemberStatusSuspended || member.ApplicationStatus != ApplicationApproved {
		return nil, ErrAccountNotActive
	}
	if _, err := members.UpdateStatus(ctx, memberID, MemberStatusPending, member.ApplicationStatus); err != nil {
		return nil, err
	}
	member.MemberStatus = MemberStatusPending
	s.invalidateMember(ctx, memberID)
	return member, nil
}

// CreateAdmin provisions an administrator account. Restricted to super_admin
// at the gate; the service only validates shape.
func (s *Service) CreateAdmin(ctx context.Context, username, email, password string, role Role) (*Admin, error) {
	username = normalizeIdentifier(username)
	email = normalizeIdentifier(email)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if err := validatePassword(password); err != nil {
		return nil, fmt.Errorf("%w: password too short", ErrInvalidInput)
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	hash, err := HashPassword(password, AdminHashCost)
	if err != nil {
		return nil, err
	}
	salt, err := NewSalt()
	if err != nil {
		return nil, err
	}
	admin := &Admin{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Salt:         salt,
		Role:         role,
		IsActive:     true,
	}
	if err := s.store.Admins(ctx).Create(ctx, admin); err != nil {
		return nil, err
	}
	return admin, nil
}

// GetAdmin loads one admin.
func (s *Service) GetAdmin(ctx context.Context, id string) (*Admin, error) {
	return s.store.Admins(ctx).Find(ctx, id)
}

// ListAdmins lists every admin account.
func (s *Service) ListAdmins(ctx context.Context) ([]*Admin, error) {
	return s.store.Admins(ctx).List(ctx)
}

// SetAdminRole changes an admin's role and drops the cached principal so the
// new rank applies on the next request.
func (s *Service) SetAdminRole(ctx context.Context, adminID string, role Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	if err := s.store.Admins(ctx).SetRole(ctx, adminID, role); err != nil {
		return err
	}
	s.invalidateAdmin(ctx, adminID)
	return nil
}

// SetAdminActive toggles an admin account. Deactivation takes effect within
// the cache TTL at worst.
func (s *Service) SetAdminActive(ctx context.Context, adminID string, active bool) error {
	if err := s.store.Admins(ctx).SetActive(ctx, adminID, active); err != nil {
		return err
	}
	s.invalidateAdmin(ctx, adminID)
	return nil
}

// UnlockAdmin clears a lockout before it expires on its own.
func (s *Service) UnlockAdmin(ctx context.Context, adminID string) error {
	if err := s.store.Admins(ctx).Unlock(ctx, adminID); err != nil {
		return err
	}
	s.invalidateAdmin(ctx, adminID)
	return nil
}

// SetPermission writes a per-admin override row.
func (s *Service) SetPermission(ctx context.Context, p Permission) error {
	if p.AdminID == "" || p.Resource == "" || p.Action == "" {
		return fmt.Errorf("%w: admin_id, resource and action are required", ErrInvalidInput)
	}
	if err := s.store.Permissions(ctx).Set(ctx, p); err != nil {
		return err
	}
	s.invalidateAdmin(ctx, p.AdminID)
	return nil
}
