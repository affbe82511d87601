package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"counselsoc.org/internal/obs"
)

// Purpose restricts what flow a token is valid for. Verification checks the
// claim against the purpose the endpoint expects, so a reset token can never
// stand in for a setup token or a login session.
type Purpose string

const (
	PurposeSession       Purpose = "session"
	PurposePasswordReset Purpose = "password_reset"
	PurposePasswordSetup Purpose = "password_setup"
)

const defaultIssuer = "counselsoc"

// TokenClaims is the JWT payload for every purpose.
type TokenClaims struct {
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// VerifiedToken is the result of a successful verification.
type VerifiedToken struct {
	SubjectID string
	TokenID   string
	Purpose   Purpose
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenIssuer mints and verifies signed, time-bounded tokens using HS256.
type TokenIssuer struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// IssuerOption configures a TokenIssuer.
type IssuerOption func(*TokenIssuer)

// WithIssuerName overrides the iss claim.
func WithIssuerName(name string) IssuerOption {
	return func(i *TokenIssuer) {
		if strings.TrimSpace(name) != "" {
			i.issuer = name
		}
	}
}

// WithIssuerClock overrides the time source, for tests.
func WithIssuerClock(fn func() time.Time) IssuerOption {
	return func(i *TokenIssuer) {
		if fn != nil {
			i.now = fn
		}
	}
}

// NewTokenIssuer constructs a TokenIssuer with the given signing secret.
func NewTokenIssuer(secret string, opts ...IssuerOption) (*TokenIssuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	issuer := &TokenIssuer{
		secret: []byte(secret),
		issuer: defaultIssuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(issuer)
	}
	return issuer, nil
}

// Issue signs a token for the subject with the given purpose and lifetime.
func (i *TokenIssuer) Issue(subjectID string, purpose Purpose, ttl time.Duration) (string, *VerifiedToken, error) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return "", nil, errors.New("auth: subject is required")
	}
	if ttl <= 0 {
		return "", nil, errors.New("auth: ttl must be greater than zero")
	}

	now := i.now().UTC()
	exp := now.Add(ttl)
	jti := uuid.NewString()
	claims := TokenClaims{
		Purpose: string(purpose),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   subjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        jti,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", nil, err
	}
	obs.TokensIssued.WithLabelValues(string(purpose)).Inc()
	return signed, &VerifiedToken{
		SubjectID: subjectID,
		TokenID:   jti,
		Purpose:   purpose,
		IssuedAt:  now,
		ExpiresAt: exp,
	}, nil
}

// Verify checks signature, structure, expiry and the purpose claim.
func (i *TokenIssuer) Verify(token string, expected Purpose) (*VerifiedToken, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenMalformed
	}

	parsed, err := jwt.ParseWithClaims(token, &TokenClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrTokenMalformed
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now), jwt.WithIssuer(i.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenMalformed
	}
	claims, ok := parsed.Claims.(*TokenClaims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenMalformed
	}
	if strings.TrimSpace(claims.Subject) == "" || claims.IssuedAt == nil || claims.ExpiresAt == nil {
		return nil, ErrTokenMalformed
	}
	if Purpose(claims.Purpose) != expected {
		return nil, ErrTokenPurposeMismatch
	}
	return &VerifiedToken{
		SubjectID: claims.Subject,
		TokenID:   claims.ID,
		Purpose:   Purpose(claims.Purpose),
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
