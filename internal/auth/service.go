package auth

import (
	"context"
	"errors"
	"strings"
	"time"
)

const (
	defaultSessionTTL = 24 * time.Hour
	defaultResetTTL   = time.Hour
	defaultSetupTTL   = 24 * time.Hour

	defaultLockThreshold = 5
	defaultLockDuration  = 15 * time.Minute
)

// Service provides the identity and authorization operations: credential
// verification, token lifecycle, principal resolution and admin management.
type Service struct {
	store  Store
	tokens *TokenIssuer
	cache  PrincipalCache
	now    func() time.Time

	sessionTTL time.Duration
	resetTTL   time.Duration
	setupTTL   time.Duration

	lockThreshold int
	lockDuration  time.Duration
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithCache enables short-lived principal caching for the authorization gate.
func WithCache(cache PrincipalCache) ServiceOption {
	return func(s *Service) { s.cache = cache }
}

// WithSessionTTL configures login session token lifetime.
func WithSessionTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.sessionTTL = ttl
		}
	}
}

// WithResetTTL configures password reset token lifetime.
func WithResetTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.resetTTL = ttl
		}
	}
}

// WithSetupTTL configures password setup token lifetime.
func WithSetupTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.setupTTL = ttl
		}
	}
}

// WithLockPolicy configures the admin lockout threshold and duration.
func WithLockPolicy(threshold int, duration time.Duration) ServiceOption {
	return func(s *Service) {
		if threshold > 0 {
			s.lockThreshold = threshold
		}
		if duration > 0 {
			s.lockDuration = duration
		}
	}
}

// NewService constructs a Service.
func NewService(store Store, tokens *TokenIssuer, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	if tokens == nil {
		return nil, errors.New("auth: token issuer is required")
	}
	svc := &Service{
		store:         store,
		tokens:        tokens,
		now:           time.Now,
		sessionTTL:    defaultSessionTTL,
		resetTTL:      defaultResetTTL,
		setupTTL:      defaultSetupTTL,
		lockThreshold: defaultLockThreshold,
		lockDuration:  defaultLockDuration,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// AuthenticateAdmin resolves a bearer session token to a live admin
// principal. The current row is always consulted (possibly via the cache), so
// a deactivated admin loses access within the cache TTL even while the token
// is unexpired.
func (s *Service) AuthenticateAdmin(ctx context.Context, rawToken string) (*AdminPrincipal, *VerifiedToken, error) {
	verified, err := s.tokens.Verify(rawToken, PurposeSession)
	if err != nil {
		return nil, nil, ErrUnauthenticated
	}
	revoked, err := s.store.Sessions(ctx).IsRevoked(ctx, verified.TokenID)
	if err != nil {
		return nil, nil, err
	}
	if revoked {
		return nil, nil, ErrUnauthenticated
	}
	principal, err := s.adminPrincipal(ctx, verified.SubjectID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, ErrUnauthenticated
		}
		return nil, nil, err
	}
	if !principal.Admin.IsActive || principal.Admin.Locked(s.now()) {
		return nil, nil, ErrUnauthenticated
	}
	return principal, verified, nil
}

// AuthenticateMember resolves a bearer session token to a live member
// principal.
func (s *Service) AuthenticateMember(ctx context.Context, rawToken string) (*MemberPrincipal, *VerifiedToken, error) {
	verified, err := s.tokens.Verify(rawToken, PurposeSession)
	if err != nil {
		return nil, nil, ErrUnauthenticated
	}
	principal, err := s.memberPrincipal(ctx, verified.SubjectID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, ErrUnauthenticated
		}
		return nil, nil, err
	}
	m := principal.Member
	if m.ApplicationStatus != ApplicationApproved || m.MemberStatus == MemberStatusSuspended {
		return nil, nil, ErrUnauthenticated
	}
	return principal, verified, nil
}

// Authorize enforces the policy table plus per-admin overrides.
func (s *Service) Authorize(principal *AdminPrincipal, resource, action string) error {
	return Authorize(principal, resource, action)
}

func (s *Service) adminPrincipal(ctx context.Context, id string) (*AdminPrincipal, error) {
	if s.cache != nil {
		if p, ok := s.cache.GetAdmin(ctx, id); ok {
			return p, nil
		}
	}
	admin, err := s.store.Admins(ctx).Find(ctx, id)
	if err != nil {
		return nil, err
	}
	overrides, err := s.store.Permissions(ctx).ForAdmin(ctx, id)
	if err != nil {
		return nil, err
	}
	principal := &AdminPrincipal{Admin: admin, Overrides: overrides}
	if s.cache != nil {
		s.cache.SetAdmin(ctx, id, principal)
	}
	return principal, nil
}

func (s *Service) memberPrincipal(ctx context.Context, id string) (*MemberPrincipal, error) {
	if s.cache != nil {
		if p, ok := s.cache.GetMember(ctx, id); ok {
			return p, nil
		}
	}
	members := s.store.Members(ctx)
	member, err := members.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	cred, err := members.Credential(ctx, id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	principal := &MemberPrincipal{Member: member}
	if cred != nil {
		principal.Username = cred.Username
	}
	if contact, err := members.Contact(ctx, id); err == nil {
		principal.Email = contact.Email
	}
	if s.cache != nil {
		s.cache.SetMember(ctx, id, principal)
	}
	return principal, nil
}

func (s *Service) invalidateAdmin(ctx context.Context, id string) {
	if s.cache != nil {
		s.cache.InvalidateAdmin(ctx, id)
	}
}

func (s *Service) invalidateMember(ctx context.Context, id string) {
	if s.cache != nil {
		s.cache.InvalidateMember(ctx, id)
	}
}

func normalizeIdentifier(identifier string) string {
	return strings.TrimSpace(strings.ToLower(identifier))
}
