package auth

import (
	"strings"
	"testing"
	"time"
)

func TestSignAndVerifyHS256(t *testing.T) {
	claims := Claims{
		Sub:  "user-1",
		Role: RolePatient,
		Exp:  time.Now().Add(time.Hour).Unix(),
		Iat:  time.Now().Unix(),
	}
	token, err := SignHS256(claims, "secret")
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}

	parsed, err := ParseAndVerifyHS256(token, "secret")
	if err != nil {
		t.Fatalf("ParseAndVerifyHS256 failed: %v", err)
	}
	if parsed.Sub != "user-1" || parsed.Role != RolePatient {
		t.Fatalf("unexpected claims: %+v", parsed)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	token, err := SignHS256(Claims{Sub: "user-1", Role: RolePatient}, "secret")
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	if _, err := ParseAndVerifyHS256(token, "other-secret"); err == nil {
		t.Fatal("expected verification to fail with wrong secret")
	}
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	token, err := SignHS256(Claims{Sub: "user-1", Role: RolePatient}, "secret")
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	parts := strings.Split(token, ".")
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]
	if _, err := ParseAndVerifyHS256(tampered, "secret"); err == nil {
		t.Fatal("expected verification to fail for tampered payload")
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	token, err := SignHS256(Claims{
		Sub:  "user-1",
		Role: RolePatient,
		Exp:  time.Now().Add(-time.Minute).Unix(),
	}, "secret")
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	if _, err := ParseAndVerifyHS256(token, "secret"); err == nil {
		t.Fatal("expected verification to fail for expired token")
	}
}
