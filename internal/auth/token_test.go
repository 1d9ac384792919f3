package auth

import (
	"errors"
	"testing"
	"time"
)

var testSecret = []byte("unit-test-secret")

func testClaims() Claims {
	return Claims{
		Sub:    "usr_1",
		Name:   "Priya Shah",
		Role:   "manager",
		Branch: "brn_1",
		JTI:    "jti_1",
		Exp:    time.Now().Add(time.Minute).Unix(),
	}
}

func TestIssueAndParseToken(t *testing.T) {
	token, err := IssueToken(testSecret, testClaims())
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	claims, err := ParseToken(testSecret, token)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Sub != "usr_1" || claims.Name != "Priya Shah" || claims.Role != "manager" || claims.Branch != "brn_1" {
		t.Errorf("claims round trip = %+v", claims)
	}
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	token, err := IssueToken(testSecret, testClaims())
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	if _, err := ParseToken([]byte("other-secret"), token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	claims := testClaims()
	claims.Exp = time.Now().Add(-time.Minute).Unix()
	token, err := IssueToken(testSecret, claims)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	if _, err := ParseToken(testSecret, token); !errors.Is(err, ErrExpiredToken) {
		t.Errorf("expected ErrExpiredToken, got %v", err)
	}
}

func TestParseTokenRejectsMalformed(t *testing.T) {
	for _, token := range []string{"", "nodot", "a.b.c", "!!!.???"} {
		if _, err := ParseToken(testSecret, token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("ParseToken(%q) = %v, want ErrInvalidToken", token, err)
		}
	}
}

func TestParseTokenRejectsMissingClaims(t *testing.T) {
	claims := testClaims()
	claims.JTI = ""
	token, err := IssueToken(testSecret, claims)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	if _, err := ParseToken(testSecret, token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for missing jti, got %v", err)
	}
}

func TestHashTokenIsStable(t *testing.T) {
	a := HashToken("refresh-token-value")
	b := HashToken("refresh-token-value")
	if a != b {
		t.Error("hash must be deterministic")
	}
	if a == HashToken("different") {
		t.Error("different inputs must not collide")
	}
	if len(a) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}
}
