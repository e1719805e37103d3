package auth

import (
	"testing"
	"time"
)

func TestIssueAndVerifyControllerToken(t *testing.T) {
	issuer := NewTokenIssuer([]byte("test-secret"), time.Hour)

	token, err := issuer.IssueControllerToken("show-1")
	if err != nil {
		t.Fatalf("IssueControllerToken failed: %v", err)
	}

	claims, err := issuer.VerifyControllerToken(token)
	if err != nil {
		t.Fatalf("VerifyControllerToken failed: %v", err)
	}
	if claims.ShowID != "show-1" {
		t.Fatalf("expected showId=show-1, got %s", claims.ShowID)
	}
}

func TestVerifyControllerTokenRejectsWrongSecret(t *testing.T) {
	issuer := NewTokenIssuer([]byte("secret-a"), time.Hour)
	other := NewTokenIssuer([]byte("secret-b"), time.Hour)

	token, err := issuer.IssueControllerToken("show-1")
	if err != nil {
		t.Fatalf("IssueControllerToken failed: %v", err)
	}

	if _, err := other.VerifyControllerToken(token); err == nil {
		t.Fatalf("expected verification to fail against a different secret")
	}
}

func TestVerifyControllerTokenRejectsExpiredToken(t *testing.T) {
	issuer := NewTokenIssuer([]byte("test-secret"), -time.Hour)

	token, err := issuer.IssueControllerToken("show-1")
	if err != nil {
		t.Fatalf("IssueControllerToken failed: %v", err)
	}

	if _, err := issuer.VerifyControllerToken(token); err == nil {
		t.Fatalf("expected verification to fail for an already-expired token")
	}
}

func TestHashAndCheckSecretRoundTrip(t *testing.T) {
	hash, err := HashSecret("operator-secret")
	if err != nil {
		t.Fatalf("HashSecret failed: %v", err)
	}
	if !CheckSecret(hash, "operator-secret") {
		t.Fatalf("expected CheckSecret to accept the original plaintext")
	}
	if CheckSecret(hash, "wrong-secret") {
		t.Fatalf("expected CheckSecret to reject an incorrect plaintext")
	}
}

func TestGenerateUserIDIsUnique(t *testing.T) {
	a := GenerateUserID()
	b := GenerateUserID()
	if a == b {
		t.Fatalf("expected two successive GenerateUserID calls to differ, got %q twice", a)
	}
}

func TestGenerateSecureTokenLength(t *testing.T) {
	token, err := GenerateSecureToken(32)
	if err != nil {
		t.Fatalf("GenerateSecureToken failed: %v", err)
	}
	if len(token) != 44 {
		t.Fatalf("expected a 44-character token (32 bytes, padded base64), got %d", len(token))
	}
}
