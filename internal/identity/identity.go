// Package identity resolves bearer tokens into an authenticated actor with an
// explicit role tag. Domain code switches on Role and never inspects profiles.
package identity

import (
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Role is the closed set of actor roles.
type Role string

const (
	RoleNone       Role = ""
	RoleManager    Role = "MANAGER"
	RoleResident   Role = "RESIDENT"
	RoleTechnician Role = "TECHNICIAN"
	RoleCouncil    Role = "COUNCIL"
)

// ParseRole maps a claim value to a Role. Unknown values map to RoleNone.
func ParseRole(s string) Role {
	switch Role(strings.ToUpper(strings.TrimSpace(s))) {
	case RoleManager:
		return RoleManager
	case RoleResident:
		return RoleResident
	case RoleTechnician:
		return RoleTechnician
	case RoleCouncil:
		return RoleCouncil
	default:
		return RoleNone
	}
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

// Is reports whether the actor holds one of roles.
func (a Actor) Is(roles ...Role) bool {
	if a.Role == RoleNone {
		return false
	}
	for _, r := range roles {
		if a.Role == r {
			return true
		}
	}
	return false
}

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
)

// Claims are the token claims issued by the identity provider.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Resolver verifies HMAC-signed access tokens.
type Resolver struct {
	secret []byte
	issuer string
}

// NewResolver creates a resolver. An empty issuer disables the issuer check.
func NewResolver(secret, issuer string) *Resolver {
	return &Resolver{secret: []byte(secret), issuer: issuer}
}

// Resolve parses and verifies rawToken.
func (r *Resolver) Resolve(rawToken string) (Actor, error) {
	if strings.TrimSpace(rawToken) == "" {
		return Actor{}, ErrMissingToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithExpirationRequired(),
	}
	if r.issuer != "" {
		opts = append(opts, jwt.WithIssuer(r.issuer))
	}

	var claims Claims
	parsed, err := jwt.ParseWithClaims(rawToken, &claims, func(token *jwt.Token) (interface{}, error) {
		return r.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return Actor{}, ErrInvalidToken
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Actor{}, ErrInvalidToken
	}

	return Actor{ID: id, Role: ParseRole(claims.Role)}, nil
}

// Sign issues a token for actor. Used by tooling and tests; production tokens
// come from the identity provider.
func (r *Resolver) Sign(actor Actor, claims jwt.RegisteredClaims) (string, error) {
	claims.Subject = actor.ID.String()
	if r.issuer != "" && claims.Issuer == "" {
		claims.Issuer = r.issuer
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{Role: string(actor.Role), RegisteredClaims: claims})
	return token.SignedString(r.secret)
}
