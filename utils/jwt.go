package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/yeremiapane/tenant-realtime/events"
)

const (
	RoleMember     = "member"
	RoleOrgAdmin   = "admin"
	RoleSuperadmin = "superadmin"
)

// JWTSecret signs and verifies tokens. It is set from configuration at
// startup.
var JWTSecret []byte

type CustomClaims struct {
	UserID string `json:"user_id"`
	OrgID  string `json:"org_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Identity is the authenticated caller as seen by handlers.
type Identity struct {
	UserID string `json:"user_id"`
	OrgID  string `json:"org_id"`
	Role   string `json:"role"`
}

func (id Identity) IsSuperadmin() bool { return id.Role == RoleSuperadmin }

// Scope resolves the routing scope of the caller. It never consults
// anything the client sent besides the verified token.
func (id Identity) Scope() (events.Scope, error) {
	if id.IsSuperadmin() {
		return events.Global(), nil
	}
	if id.OrgID == "" || id.UserID == "" {
		return events.Scope{}, Unauthorized("token carries no org membership")
	}
	return events.User(id.OrgID, id.UserID), nil
}

// OrgScope is the org-wide scope of an ordinary caller, Global for a
// superadmin.
func (id Identity) OrgScope() (events.Scope, error) {
	if id.IsSuperadmin() {
		return events.Global(), nil
	}
	if id.OrgID == "" {
		return events.Scope{}, Unauthorized("token carries no org membership")
	}
	return events.Org(id.OrgID), nil
}

func GenerateToken(id Identity, ttl time.Duration) (string, error) {
	if len(JWTSecret) == 0 {
		return "", errors.New("jwt secret not configured")
	}
	now := time.Now()
	claims := &CustomClaims{
		UserID: id.UserID,
		OrgID:  id.OrgID,
		Role:   id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "tenant-realtime",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(JWTSecret)
}

func ParseToken(tokenString string) (*CustomClaims, error) {
	if len(JWTSecret) == 0 {
		return nil, Unauthorized("jwt secret not configured")
	}
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return JWTSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, Unauthorized("invalid or expired token")
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || claims.UserID == "" {
		return nil, Unauthorized("invalid token claims")
	}
	return claims, nil
}

// IdentityFromClaims maps verified claims to an Identity.
func IdentityFromClaims(c *CustomClaims) Identity {
	return Identity{UserID: c.UserID, OrgID: c.OrgID, Role: c.Role}
}
