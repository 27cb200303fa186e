package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func NewAdminPolicy(adminClientCode string) AdminPolicy {
	return AdminPolicy{AdminClientCode: adminClientCode}
}

// IsAdmin resolves the admin flag from, in order: the role claim of a
// server token, the role field of the user record, and finally the
// configured admin client code.
func (p AdminPolicy) IsAdmin(clientCode string, role string, token string) bool {
	if token != "" {
		claims, err := ParseRoleClaims(token)
		if err == nil && claims.Role != "" && (claims.ClientCode == "" || claims.ClientCode == clientCode) {
			return strings.EqualFold(claims.Role, ROLE_ADMIN)
		}
	}
	if role != "" {
		return strings.EqualFold(role, ROLE_ADMIN)
	}
	return p.AdminClientCode != "" && clientCode == p.AdminClientCode
}

// ParseRoleClaims reads the claims of token without verifying its
// signature. The result is for display only; the remote API enforces
// authorization on every call.
func ParseRoleClaims(token string) (RoleClaims, error) {
	var claims RoleClaims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return RoleClaims{}, fmt.Errorf("failed to read role claims: %w", err)
	}
	if claims.ExpiresAt != nil && claims.ExpiresAt.Before(time.Now()) {
		return RoleClaims{}, fmt.Errorf("role claims expired at %s", claims.ExpiresAt.Format(time.RFC3339))
	}
	return claims, nil
}
