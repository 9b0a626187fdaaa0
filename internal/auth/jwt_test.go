package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sakif/tapcard/internal/model"
)

// newTestTokenService uses a fixed secret so tests are deterministic.
func newTestTokenService(t *testing.T) *TokenService {
	t.Helper()
	ts, err := NewTokenService("test-secret-at-least-16-chars!!")
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return ts
}

// =========================================================================
// TOKEN SERVICE CONSTRUCTION TESTS
// =========================================================================

func TestNewTokenService_ShortSecret(t *testing.T) {
	_, err := NewTokenService("short")
	if err == nil {
		t.Fatal("NewTokenService() should reject secrets shorter than 16 chars")
	}
}

func TestNewTokenService_ValidSecret(t *testing.T) {
	_, err := NewTokenService("this-is-16-chars")
	if err != nil {
		t.Fatalf("NewTokenService() unexpected error for valid secret: %v", err)
	}
}

// =========================================================================
// GENERATE / VALIDATE TESTS
// =========================================================================

func TestValidate_RoundTrip(t *testing.T) {
	ts := newTestTokenService(t)

	tests := []struct {
		name     string
		role     string
		wantRole string
	}{
		{"admin", model.RoleAdmin, model.RoleAdmin},
		{"user", model.RoleUser, model.RoleUser},
		{"role defaults to user", "", model.RoleUser},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := ts.Generate(42, tt.role, time.Hour)
			if err != nil {
				t.Fatalf("Generate() error = %v", err)
			}
			if strings.Count(token, ".") != 2 {
				t.Fatalf("Generate() token doesn't look like a JWT: %q", token)
			}

			id, err := ts.Validate(token)
			if err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			if id.UserID != 42 {
				t.Errorf("UserID = %d, want 42", id.UserID)
			}
			if id.Role != tt.wantRole {
				t.Errorf("Role = %q, want %q", id.Role, tt.wantRole)
			}
			if id.IsAdmin() != (tt.wantRole == model.RoleAdmin) {
				t.Errorf("IsAdmin() = %v for role %q", id.IsAdmin(), id.Role)
			}
		})
	}
}

func TestValidate_ExpiredToken(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.Generate(1, model.RoleUser, -time.Second)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	_, err = ts.Validate(token)
	if err == nil {
		t.Fatal("Validate() should return an error for an expired token")
	}
}

func TestValidate_TamperedToken(t *testing.T) {
	ts := newTestTokenService(t)

	token, _ := ts.Generate(1, model.RoleUser, time.Hour)
	tampered := token[:len(token)-3] + "xxx"

	if _, err := ts.Validate(tampered); err == nil {
		t.Fatal("Validate() should return an error for a tampered token")
	}
}

func TestValidate_WrongSecret(t *testing.T) {
	ts1, _ := NewTokenService("correct-secret-32-chars-long!!!!")
	ts2, _ := NewTokenService("wrong-secret-32-chars-long!!!!!!")

	token, _ := ts1.Generate(1, model.RoleAdmin, time.Hour)

	if _, err := ts2.Validate(token); err == nil {
		t.Fatal("Validate() should fail when using a different secret")
	}
}

func TestValidate_Garbage(t *testing.T) {
	ts := newTestTokenService(t)

	for _, s := range []string{"", "not.a.jwt.token"} {
		if _, err := ts.Validate(s); err == nil {
			t.Errorf("Validate(%q) should fail", s)
		}
	}
}

// signRaw signs arbitrary claims with the test secret, bypassing Generate.
func signRaw(t *testing.T, c claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte("test-secret-at-least-16-chars!!"))
	if err != nil {
		t.Fatalf("signing: %v", err)
	}
	return s
}

func TestValidate_RejectsBadClaims(t *testing.T) {
	ts := newTestTokenService(t)
	exp := jwt.NewNumericDate(time.Now().Add(time.Hour))

	tests := []struct {
		name string
		c    claims
	}{
		{"non-numeric subject", claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "abc", Issuer: issuer, ExpiresAt: exp}, Role: model.RoleUser}},
		{"zero subject", claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "0", Issuer: issuer, ExpiresAt: exp}, Role: model.RoleUser}},
		{"unknown role", claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "1", Issuer: issuer, ExpiresAt: exp}, Role: "root"}},
		{"foreign issuer", claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "1", Issuer: "someone-else", ExpiresAt: exp}, Role: model.RoleUser}},
		{"no expiry", claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "1", Issuer: issuer}, Role: model.RoleUser}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ts.Validate(signRaw(t, tt.c)); err == nil {
				t.Error("Validate() should reject these claims")
			}
		})
	}
}
