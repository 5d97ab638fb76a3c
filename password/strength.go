package password

import (
	"strconv"
	"unicode"
)

// Policy describes the composition rules applied by ValidateStrength.
type Policy struct {
	MinLength      int
	RequireUpper   bool
	RequireLower   bool
	RequireDigit   bool
	RequireSpecial bool
}

// DefaultPolicy requires eight characters with mixed case, a digit and a symbol.
func DefaultPolicy() Policy {
	return Policy{
		MinLength:      8,
		RequireUpper:   true,
		RequireLower:   true,
		RequireDigit:   true,
		RequireSpecial: true,
	}
}

// StrengthResult lists every rule the candidate violated.
type StrengthResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// ValidateStrength checks plaintext against p and reports all violations at once.
// A MinLength below 8 is raised to 8.
func ValidateStrength(plaintext string, p Policy) StrengthResult {
	minLength := p.MinLength
	if minLength < 8 {
		minLength = 8
	}

	var upper, lower, digit, special bool
	length := 0
	for _, r := range plaintext {
		length++
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			special = true
		}
	}

	var errs []string
	if length < minLength {
		errs = append(errs, "password must be at least "+strconv.Itoa(minLength)+" characters long")
	}
	if p.RequireUpper && !upper {
		errs = append(errs, "password must contain an uppercase letter")
	}
	if p.RequireLower && !lower {
		errs = append(errs, "password must contain a lowercase letter")
	}
	if p.RequireDigit && !digit {
		errs = append(errs, "password must contain a digit")
	}
	if p.RequireSpecial && !special {
		errs = append(errs, "password must contain a special character")
	}

	return StrengthResult{Valid: len(errs) == 0, Errors: errs}
}
