package auth

import (
	"fmt"
	"testing"

	"pgregory.net/rapid"
)

func TestValidateStrengthTable(t *testing.T) {
	policy := NewPasswordPolicy()

	tests := []struct {
		name     string
		password string
		valid    bool
	}{
		{"all classes present", "Sup3r$ecret", true},
		{"minimum length boundary", "Aa1!aaaa", true},
		{"too short", "Aa1!aaa", false},
		{"missing uppercase", "sup3r$ecret", false},
		{"missing lowercase", "SUP3R$ECRET", false},
		{"missing digit", "Super$ecret", false},
		{"missing symbol", "Sup3rSecret", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := policy.ValidateStrength(tt.password); got != tt.valid {
				t.Errorf("ValidateStrength(%q) = %v, want %v", tt.password, got, tt.valid)
			}
		})
	}
}

func TestValidateOverlongPassword(t *testing.T) {
	policy := NewPasswordPolicy()

	long := "Aa1!"
	for len(long) <= MaxPasswordLength {
		long += "xXyY9!"
	}
	violations := policy.Validate(long)
	if len(violations) != 1 {
		t.Fatalf("violations = %v, want exactly the length rule", violations)
	}
}

func TestValidateReportsEveryViolation(t *testing.T) {
	policy := NewPasswordPolicy()

	// Too short, no uppercase, no digit, no symbol: four distinct rules
	violations := policy.Validate("abc")
	if len(violations) != 4 {
		t.Fatalf("violations = %d, want 4: %v", len(violations), violations)
	}
}

func TestValidateStrengthProperty(t *testing.T) {
	policy := NewPasswordPolicy()

	const (
		uppers  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
		lowers  = "abcdefghijklmnopqrstuvwxyz"
		digits  = "0123456789"
		symbols = "!@#$%^&*()-_=+[]{};:,.<>?"
	)

	rapid.Check(t, func(t *rapid.T) {
		// One character from each required class, padded to a valid length
		// with a random mix of all classes.
		parts := []byte{
			uppers[rapid.IntRange(0, len(uppers)-1).Draw(t, "u")],
			lowers[rapid.IntRange(0, len(lowers)-1).Draw(t, "l")],
			digits[rapid.IntRange(0, len(digits)-1).Draw(t, "d")],
			symbols[rapid.IntRange(0, len(symbols)-1).Draw(t, "s")],
		}
		all := uppers + lowers + digits + symbols
		padLen := rapid.IntRange(4, MaxPasswordLength-4).Draw(t, "padLen")
		for i := 0; i < padLen; i++ {
			parts = append(parts, all[rapid.IntRange(0, len(all)-1).Draw(t, fmt.Sprintf("pad%d", i))])
		}
		password := string(parts)

		if !policy.ValidateStrength(password) {
			t.Fatalf("password %q satisfies every rule but was rejected: %v",
				password, policy.Validate(password))
		}

		// Dropping an entire class must always invalidate the password.
		for _, class := range []string{uppers, lowers, digits, symbols} {
			stripped := make([]byte, 0, len(password))
			for i := 0; i < len(password); i++ {
				if !containsByte(class, password[i]) {
					stripped = append(stripped, password[i])
				}
			}
			if policy.ValidateStrength(string(stripped)) {
				t.Fatalf("password %q missing a character class but was accepted", stripped)
			}
		}
	})
}

func containsByte(s string, b byte) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return true
		}
	}
	return false
}

func TestRotateKeepsMostRecentFive(t *testing.T) {
	policy := NewPasswordPolicy()

	var history []string
	for i := 0; i < 8; i++ {
		history = policy.Rotate(history, fmt.Sprintf("hash-%d", i))
	}

	want := []string{"hash-7", "hash-6", "hash-5", "hash-4", "hash-3"}
	if len(history) != len(want) {
		t.Fatalf("history length = %d, want %d", len(history), len(want))
	}
	for i, h := range want {
		if history[i] != h {
			t.Errorf("history[%d] = %q, want %q", i, history[i], h)
		}
	}
}

func TestRotateDoesNotMutateInput(t *testing.T) {
	policy := NewPasswordPolicy()

	original := []string{"a", "b", "c"}
	rotated := policy.Rotate(original, "new")
	if original[0] != "a" || len(original) != 3 {
		t.Errorf("input slice mutated: %v", original)
	}
	if rotated[0] != "new" || rotated[1] != "a" {
		t.Errorf("rotated = %v", rotated)
	}
}

func TestCheckReuseCoversCurrentAndHistory(t *testing.T) {
	policy := NewPasswordPolicy()

	currentHash, err := policy.HashPassword("Curr3nt$ecret")
	if err != nil {
		t.Fatal(err)
	}
	oldHash, err := policy.HashPassword("Old$ecret123")
	if err != nil {
		t.Fatal(err)
	}
	history := []string{oldHash}

	if !policy.CheckReuse("Curr3nt$ecret", history, currentHash) {
		t.Error("current password not flagged as reused")
	}
	if !policy.CheckReuse("Old$ecret123", history, currentHash) {
		t.Error("historical password not flagged as reused")
	}
	if policy.CheckReuse("Fr3sh$ecret!", history, currentHash) {
		t.Error("fresh password flagged as reused")
	}
}

func TestVerifyPasswordRoundTrip(t *testing.T) {
	policy := NewPasswordPolicy()

	hash, err := policy.HashPassword("Sup3r$ecret")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if err := policy.VerifyPassword("Sup3r$ecret", hash); err != nil {
		t.Errorf("VerifyPassword() error = %v", err)
	}
	if err := policy.VerifyPassword("wrong", hash); err == nil {
		t.Error("wrong password accepted")
	}
}
