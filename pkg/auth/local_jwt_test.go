package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signTestToken(t *testing.T, secret string, claims DashboardClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return signed
}

func TestNewDashboardJWTAuth_RequiresSecret(t *testing.T) {
	if _, err := NewDashboardJWTAuth(""); err == nil {
		t.Error("empty secret should be rejected")
	}
	if _, err := NewDashboardJWTAuth("secret"); err != nil {
		t.Errorf("valid secret rejected: %v", err)
	}
}

func TestDashboardJWTAuth_VerifyToken(t *testing.T) {
	auth, err := NewDashboardJWTAuth("test-secret")
	if err != nil {
		t.Fatalf("failed to create auth: %v", err)
	}

	signed := signTestToken(t, "test-secret", DashboardClaims{
		UserID:     "user-1",
		Email:      "dev@example.com",
		ProjectIDs: []string{"proj-1", "proj-2"},
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	})

	claims, err := auth.VerifyToken(signed)
	if err != nil {
		t.Fatalf("VerifyToken failed: %v", err)
	}
	if claims.UserID != "user-1" {
		t.Errorf("user id = %q, want user-1", claims.UserID)
	}
	if !claims.HasProject("proj-2") {
		t.Error("claims should grant proj-2")
	}
	if claims.HasProject("proj-3") {
		t.Error("claims should not grant proj-3")
	}
}

func TestDashboardJWTAuth_RejectsWrongSecret(t *testing.T) {
	auth, _ := NewDashboardJWTAuth("right-secret")

	signed := signTestToken(t, "wrong-secret", DashboardClaims{
		UserID: "user-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	if _, err := auth.VerifyToken(signed); err == nil {
		t.Error("token signed with the wrong secret should be rejected")
	}
}

func TestDashboardJWTAuth_RejectsExpired(t *testing.T) {
	auth, _ := NewDashboardJWTAuth("test-secret")

	signed := signTestToken(t, "test-secret", DashboardClaims{
		UserID: "user-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})

	if _, err := auth.VerifyToken(signed); err == nil {
		t.Error("expired token should be rejected")
	}
}
