package identity

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func TestResolve_RoundTrip(t *testing.T) {
	r := NewResolver("secret", "copro-idp")
	actor := Actor{ID: uuid.New(), Role: RoleTechnician}

	token, err := r.Sign(actor, jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))})
	if err != nil {
		t.Fatalf("Sign returned error: %v", err)
	}

	got, err := r.Resolve(token)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if got != actor {
		t.Errorf("Expected %+v, got %+v", actor, got)
	}
}

func TestResolve_Rejections(t *testing.T) {
	r := NewResolver("secret", "copro-idp")
	other := NewResolver("other-secret", "copro-idp")
	actor := Actor{ID: uuid.New(), Role: RoleManager}

	valid := jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}

	wrongKey, _ := other.Sign(actor, valid)
	expired, _ := r.Sign(actor, jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))})
	wrongIssuer, _ := NewResolver("secret", "someone-else").Sign(actor, valid)
	noExpiry, _ := r.Sign(actor, jwt.RegisteredClaims{})

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"empty", "", ErrMissingToken},
		{"garbage", "not.a.token", ErrInvalidToken},
		{"wrong key", wrongKey, ErrInvalidToken},
		{"expired", expired, ErrInvalidToken},
		{"wrong issuer", wrongIssuer, ErrInvalidToken},
		{"no expiry", noExpiry, ErrInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := r.Resolve(tt.token); !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestResolve_UnknownRoleIsNone(t *testing.T) {
	r := NewResolver("secret", "")
	token, _ := r.Sign(Actor{ID: uuid.New(), Role: "JANITOR"}, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})

	got, err := r.Resolve(token)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if got.Role != RoleNone {
		t.Errorf("Expected RoleNone, got %q", got.Role)
	}
	if got.Is(RoleManager, RoleResident, RoleTechnician, RoleCouncil) {
		t.Error("Actor without role must not match any role")
	}
}

func TestParseRole(t *testing.T) {
	if ParseRole(" manager ") != RoleManager {
		t.Error("Expected case-insensitive role parsing")
	}
	if ParseRole("syndic") != RoleNone {
		t.Error("Expected unknown label to map to RoleNone")
	}
}
