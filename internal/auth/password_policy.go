package auth

import (
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const (
	// MinPasswordLength is the minimum accepted password length
	MinPasswordLength = 8
	// MaxPasswordLength is the maximum accepted password length
	MaxPasswordLength = 100
	// BcryptCost is the cost factor for bcrypt hashing
	BcryptCost = 12
)

// PolicyViolation names one unmet password requirement
type PolicyViolation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// PasswordPolicy validates password strength, hashes passwords, and manages
// the rolling password history. All methods are pure with respect to
// persistent state; callers store the results.
type PasswordPolicy struct {
	historyLimit int
}

// NewPasswordPolicy creates a PasswordPolicy with the default history depth of 5
func NewPasswordPolicy() *PasswordPolicy {
	return &PasswordPolicy{historyLimit: 5}
}

// Validate checks a candidate against every strength rule and returns one
// violation per unmet rule (empty when the password is acceptable)
func (p *PasswordPolicy) Validate(password string) []PolicyViolation {
	var violations []PolicyViolation

	if len(password) < MinPasswordLength {
		violations = append(violations, PolicyViolation{
			Field:   "password",
			Message: "Password must be at least 8 characters long",
		})
	}
	if len(password) > MaxPasswordLength {
		violations = append(violations, PolicyViolation{
			Field:   "password",
			Message: "Password must be at most 100 characters long",
		})
	}

	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsDigit(char):
			hasDigit = true
		case unicode.IsPunct(char) || unicode.IsSymbol(char):
			hasSymbol = true
		}
	}

	if !hasUpper {
		violations = append(violations, PolicyViolation{
			Field:   "password",
			Message: "Password must contain at least one uppercase letter",
		})
	}
	if !hasLower {
		violations = append(violations, PolicyViolation{
			Field:   "password",
			Message: "Password must contain at least one lowercase letter",
		})
	}
	if !hasDigit {
		violations = append(violations, PolicyViolation{
			Field:   "password",
			Message: "Password must contain at least one number",
		})
	}
	if !hasSymbol {
		violations = append(violations, PolicyViolation{
			Field:   "password",
			Message: "Password must contain at least one special character",
		})
	}

	return violations
}

// ValidateStrength reports whether the candidate satisfies every rule
func (p *PasswordPolicy) ValidateStrength(password string) bool {
	return len(p.Validate(password)) == 0
}

// HashPassword creates a bcrypt hash of the password
func (p *PasswordPolicy) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword compares a password with its bcrypt hash.
// Returns nil if they match. bcrypt's comparison is constant-time.
func (p *PasswordPolicy) VerifyPassword(password, hash string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// CheckReuse reports whether candidate matches the current hash or any hash
// in the history. Every entry is evaluated; the result is folded with OR
// rather than returned on first match.
func (p *PasswordPolicy) CheckReuse(candidate string, history []string, currentHash string) bool {
	reused := false
	if currentHash != "" && bcrypt.CompareHashAndPassword([]byte(currentHash), []byte(candidate)) == nil {
		reused = true
	}
	for _, oldHash := range history {
		if bcrypt.CompareHashAndPassword([]byte(oldHash), []byte(candidate)) == nil {
			reused = true
		}
	}
	return reused
}

// Rotate prepends the outgoing hash and truncates to the history limit.
// The result is most-recent-first and always a fresh slice.
func (p *PasswordPolicy) Rotate(history []string, outgoingHash string) []string {
	rotated := make([]string, 0, p.historyLimit)
	rotated = append(rotated, outgoingHash)
	for _, h := range history {
		if len(rotated) >= p.historyLimit {
			break
		}
		rotated = append(rotated, h)
	}
	return rotated
}
