package auth

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func TestMintVerifyRoundTrip(t *testing.T) {
	svc, err := NewTokenService("test-secret", "")
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}

	token, err := svc.Mint(42)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	userID, err := svc.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if userID != 42 {
		t.Fatalf("userID = %d, want 42", userID)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	minter, _ := NewTokenService("secret-a", "")
	verifier, _ := NewTokenService("secret-b", "")

	token, err := minter.Mint(42)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if _, err := verifier.Verify(token); err == nil {
		t.Fatal("expected verification failure for wrong secret")
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	svc, _ := NewTokenService("test-secret", "")
	if _, err := svc.Verify("not-a-token"); err == nil {
		t.Fatal("expected verification failure")
	}
}

func TestVerifyRejectsUnsignedToken(t *testing.T) {
	svc, _ := NewTokenService("test-secret", "")

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "42"})
	token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("signing: %v", err)
	}
	if _, err := svc.Verify(token); err == nil {
		t.Fatal("alg=none token must be rejected")
	}
}

func TestVerifyRejectsTokenWithoutSubject(t *testing.T) {
	svc, _ := NewTokenService("test-secret", "")

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"name": "no subject"})
	signed, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("signing: %v", err)
	}
	if _, err := svc.Verify(signed); err == nil {
		t.Fatal("token without subject must be rejected")
	}
}
