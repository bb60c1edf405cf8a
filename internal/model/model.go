package model

import (
	"context"
	"fmt"
	"time"
)

// Role represents a user's access level, sourced from decoded token claims.
type Role string

const (
	// RoleAdmin is a school administrator.
	RoleAdmin Role = "admin"
	// RoleTeacher is a teacher.
	RoleTeacher Role = "teacher"
	// RoleStudent is a student.
	RoleStudent Role = "student"
	// RoleParent is a parent or guardian.
	RoleParent Role = "parent"
)

// ParseRole validates a raw role string from token claims.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin, RoleTeacher, RoleStudent, RoleParent:
		return Role(s), nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// LandingPath returns the default section a role lands on after login.
func (r Role) LandingPath() string {
	switch r {
	case RoleAdmin:
		return "/admin"
	case RoleTeacher:
		return "/teacher"
	case RoleStudent:
		return "/student"
	case RoleParent:
		return "/parent"
	default:
		return "/login"
	}
}

// Identity holds the claims decoded from an access token.
type Identity struct {
	UserID    string
	Role      Role
	FullName  string
	Email     string
	ExpiresAt time.Time
}

// Profile is the extended user record fetched from the API. It is a superset
// of Identity; empty fields fall back to the token claims on merge.
type Profile struct {
	ID        string `json:"id"`
	FullName  string `json:"full_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
	PhotoURL  string `json:"photo_url"`
	ClassName string `json:"class_name,omitempty"`
}

type identityCtxKey struct{}

// ContextWithIdentity stores the authenticated identity in the request context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey{}, id)
}

// IdentityFromContext retrieves the authenticated identity from context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityCtxKey{}).(Identity)
	return id, ok
}

type basePathCtxKey struct{}

// ContextWithBasePath stores the base path prefix in context.
func ContextWithBasePath(ctx context.Context, basePath string) context.Context {
	return context.WithValue(ctx, basePathCtxKey{}, basePath)
}

// BasePathFromContext retrieves the base path from context (empty string if not set).
func BasePathFromContext(ctx context.Context) string {
	bp, _ := ctx.Value(basePathCtxKey{}).(string)
	return bp
}

type csrfCtxKey struct{}

// ContextWithCSRFToken stores the CSRF token in context.
func ContextWithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, csrfCtxKey{}, token)
}

// CSRFTokenFromContext retrieves the CSRF token from context.
func CSRFTokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(csrfCtxKey{}).(string)
	return t
}

// PortalSession is one browser session's durable record: the opaque cookie
// value plus the tokens the portal holds on that user's behalf.
type PortalSession struct {
	ID           string
	AccessToken  string
	RefreshToken string
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// PortalConfig holds runtime parameters set via CLI flags.
type PortalConfig struct {
	APIURL        string // upstream REST API origin
	BasePath      string // URL prefix for sub-path deployments (e.g. "/portal")
	SecureCookies bool   // Set Secure flag on cookies (disable for local dev)
	Lang          string
}
