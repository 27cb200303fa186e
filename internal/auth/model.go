package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

const (
	ROLE_ADMIN  = "admin"
	ROLE_CLIENT = "client"
)

// RoleClaims is the part of a server-issued token the front end reads.
type RoleClaims struct {
	Role       string `json:"role"`
	ClientCode string `json:"clientCode,omitempty"`
	jwt.RegisteredClaims
}

// AdminPolicy decides whether a user is shown the admin surface.
// AdminClientCode is only consulted when the server issued no role at all.
type AdminPolicy struct {
	AdminClientCode string
}
