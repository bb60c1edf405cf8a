package session

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"schoolportal/internal/model"
)

// accessClaims is the claim set the API embeds in access tokens.
type accessClaims struct {
	Role     string `json:"role"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	jwt.RegisteredClaims
}

// DecodeIdentity extracts the identity from an access token without verifying
// its signature. The portal never holds the API's signing key; every claim it
// decodes is re-checked server-side on each request, so an unverified decode
// only decides what the portal renders, never what the user may do.
func DecodeIdentity(accessToken string) (model.Identity, error) {
	var claims accessClaims
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, &claims); err != nil {
		return model.Identity{}, fmt.Errorf("decode access token: %w", err)
	}

	role, err := model.ParseRole(claims.Role)
	if err != nil {
		return model.Identity{}, fmt.Errorf("decode access token: %w", err)
	}
	if claims.Subject == "" {
		return model.Identity{}, fmt.Errorf("decode access token: missing subject")
	}

	var expires time.Time
	if claims.ExpiresAt != nil {
		expires = claims.ExpiresAt.Time
	}
	return model.Identity{
		UserID:    claims.Subject,
		Role:      role,
		FullName:  claims.FullName,
		Email:     claims.Email,
		ExpiresAt: expires,
	}, nil
}
