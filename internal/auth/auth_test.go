package auth

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestPasswordHashRoundTrip(t *testing.T) {
	hasher := NewPasswordHasher()

	encoded, err := hasher.HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	ok, err := hasher.VerifyPassword("correct horse battery staple", encoded)
	if err != nil || !ok {
		t.Fatalf("valid password rejected: ok=%v err=%v", ok, err)
	}

	ok, err = hasher.VerifyPassword("wrong password", encoded)
	if err != nil {
		t.Fatalf("verify wrong password: %v", err)
	}
	if ok {
		t.Fatalf("wrong password accepted")
	}

	if _, err := hasher.VerifyPassword("x", "not-an-encoded-hash"); err == nil {
		t.Fatalf("malformed hash accepted")
	}
}

func TestJWTRoundTrip(t *testing.T) {
	handler := NewJWTHandler("unit-test-secret", time.Hour)

	token, err := handler.GenerateToken("admin")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	claims, err := handler.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	if claims.Username != "admin" {
		t.Fatalf("username = %q, want admin", claims.Username)
	}
	if claims.Issuer != "balupi" {
		t.Fatalf("issuer = %q", claims.Issuer)
	}

	// A token signed with a different key is rejected.
	other := NewJWTHandler("some-other-secret", time.Hour)
	if _, err := other.ValidateToken(token); err == nil {
		t.Fatalf("cross-key token accepted")
	}
}

func TestJWTExpiry(t *testing.T) {
	handler := NewJWTHandler("unit-test-secret", -time.Minute)

	token, err := handler.GenerateToken("admin")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	if _, err := handler.ValidateToken(token); err == nil {
		t.Fatalf("expired token accepted")
	}
}

func TestServiceLogin(t *testing.T) {
	hash, err := NewPasswordHasher().HashPassword("hunter2hunter2")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	svc := NewService(zap.NewNop(), NewJWTHandler("unit-test-secret", time.Hour), "admin", hash)

	token, err := svc.Login("admin", "hunter2hunter2")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := svc.ValidateToken(token); err != nil {
		t.Fatalf("issued token invalid: %v", err)
	}

	if _, err := svc.Login("admin", "wrong"); err == nil {
		t.Fatalf("wrong password logged in")
	}
	if _, err := svc.Login("root", "hunter2hunter2"); err == nil {
		t.Fatalf("unknown user logged in")
	}
}
