package token

import (
	"strings"
	"testing"
)

func TestGenerateIsURLSafeAndUnique(t *testing.T) {
	seen := make(map[string]struct{}, 64)
	for i := 0; i < 64; i++ {
		tok, err := Generate()
		if err != nil {
			t.Fatalf("Generate error: %v", err)
		}
		if strings.ContainsAny(tok, "+/=") {
			t.Fatalf("token is not url safe: %q", tok)
		}
		if err := Validate(tok); err != nil {
			t.Fatalf("Validate(%q) error: %v", tok, err)
		}
		if _, dup := seen[tok]; dup {
			t.Fatalf("duplicate token %q", tok)
		}
		seen[tok] = struct{}{}
	}
}

func TestValidateRejectsMalformed(t *testing.T) {
	for _, tok := range []string{"", "short", "!!!!", strings.Repeat("a", 80)} {
		if err := Validate(tok); err == nil {
			t.Fatalf("expected %q to be rejected", tok)
		}
	}
}

func TestHashIsDeterministicAndOneWay(t *testing.T) {
	tok, err := Generate()
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}

	first := Hash(tok)
	second := Hash(tok)
	if first != second {
		t.Fatal("expected hash to be deterministic")
	}
	if len(first) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(first))
	}
	if strings.Contains(first, tok) {
		t.Fatal("digest must not contain the raw token")
	}
	if !Equal(first, second) {
		t.Fatal("expected Equal to accept identical digests")
	}
	if Equal(first, Hash(tok+"x")) {
		t.Fatal("expected Equal to reject different digests")
	}
}

func TestGenerateOTPShape(t *testing.T) {
	leadingZero := false
	for i := 0; i < 2000; i++ {
		code, err := GenerateOTP()
		if err != nil {
			t.Fatalf("GenerateOTP error: %v", err)
		}
		if len(code) != 6 {
			t.Fatalf("expected 6 digits, got %q", code)
		}
		for _, c := range code {
			if c < '0' || c > '9' {
				t.Fatalf("non-digit in otp %q", code)
			}
		}
		if code[0] == '0' {
			leadingZero = true
		}
	}
	if !leadingZero {
		t.Fatal("expected at least one code with a leading zero in 2000 draws")
	}
}

func TestNewIDUnique(t *testing.T) {
	if NewID() == NewID() {
		t.Fatal("expected distinct ids")
	}
}
