package utils

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHashAndVerifyPassword(t *testing.T) {
	h, err := HashPassword("correct horse", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !VerifyPassword(h, "correct horse") {
		t.Fatalf("expected password to verify")
	}
	if VerifyPassword(h, "wrong") {
		t.Fatalf("expected wrong password to fail")
	}
}
