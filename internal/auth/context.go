package auth

import "context"

type adminContextKey struct{}
type memberContextKey struct{}
type tokenContextKey struct{}

// ContextWithAdmin attaches an authenticated admin principal to the context.
func ContextWithAdmin(ctx context.Context, principal *AdminPrincipal) context.Context {
	if principal == nil {
		return ctx
	}
	return context.WithValue(ctx, adminContextKey{}, principal)
}

// AdminFromContext extracts the authenticated admin principal.
func AdminFromContext(ctx context.Context) (*AdminPrincipal, bool) {
	if ctx == nil {
		return nil, false
	}
	v, ok := ctx.Value(adminContextKey{}).(*AdminPrincipal)
	if !ok || v == nil || v.Admin == nil {
		return nil, false
	}
	return v, true
}

// ContextWithMember attaches an authenticated member principal to the context.
func ContextWithMember(ctx context.Context, principal *MemberPrincipal) context.Context {
	if principal == nil {
		return ctx
	}
	return context.WithValue(ctx, memberContextKey{}, principal)
}

// MemberFromContext extracts the authenticated member principal.
func MemberFromContext(ctx context.Context) (*MemberPrincipal, bool) {
	if ctx == nil {
		return nil, false
	}
	v, ok := ctx.Value(memberContextKey{}).(*MemberPrincipal)
	if !ok || v == nil || v.Member == nil {
		return nil, false
	}
	return v, true
}

// ContextWithToken stores the verified session token inside the context so
// logout can revoke the exact token it was called with.
func ContextWithToken(ctx context.Context, token *VerifiedToken) context.Context {
	if token == nil {
		return ctx
	}
	return context.WithValue(ctx, tokenContextKey{}, token)
}

// TokenFromContext returns the verified token if one was attached.
func TokenFromContext(ctx context.Context) (*VerifiedToken, bool) {
	if ctx == nil {
		return nil, false
	}
	v, ok := ctx.Value(tokenContextKey{}).(*VerifiedToken)
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}
