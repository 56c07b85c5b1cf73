package sessionsdk

import (
	"regexp"
	"strings"
)

const (
	requiredReason     = "required"
	invalidEmailReason = "must be a valid email address"
)

var (
	reEmail   = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	reUpper   = regexp.MustCompile(`[A-Z]`)
	reLower   = regexp.MustCompile(`[a-z]`)
	reDigit   = regexp.MustCompile(`[0-9]`)
	reSpecial = regexp.MustCompile(`[!@#$%^&*(),.?":{}|<>]`)
)

// Validate checks the registration fields before they are sent.
// Returns a map of field names to error messages, or nil if all fields are valid.
// The identity service remains the authority; this only saves a round trip.
func (r RegisterRequest) Validate() map[string]string {
	errs := make(map[string]string)

	name := strings.TrimSpace(r.Name)
	switch {
	case name == "":
		errs["name"] = requiredReason
	case len(name) > 64:
		errs["name"] = "too long (max 64)"
	}

	validateEmail(errs, r.Email)

	if r.Password == "" {
		errs["password"] = requiredReason
	} else if problems := PasswordProblems(r.Password); len(problems) > 0 {
		errs["password"] = strings.Join(problems, ", ")
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// Validate checks that the login fields are present and well formed.
// Password rules are not applied: accounts may predate them.
func (r LoginRequest) Validate() map[string]string {
	errs := make(map[string]string)

	validateEmail(errs, r.Email)
	if r.Password == "" {
		errs["password"] = requiredReason
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

func validateEmail(errs map[string]string, email string) {
	email = strings.TrimSpace(email)
	switch {
	case email == "":
		errs["email"] = requiredReason
	case !reEmail.MatchString(email):
		errs["email"] = invalidEmailReason
	}
}

// PasswordProblems lists the password rules pw does not meet, in a fixed
// order. An empty result means the password is acceptable.
func PasswordProblems(pw string) []string {
	var problems []string
	if len(pw) < 8 {
		problems = append(problems, "at least 8 characters")
	}
	if !reUpper.MatchString(pw) {
		problems = append(problems, "at least 1 uppercase letter")
	}
	if !reLower.MatchString(pw) {
		problems = append(problems, "at least 1 lowercase letter")
	}
	if !reDigit.MatchString(pw) {
		problems = append(problems, "at least 1 number")
	}
	if !reSpecial.MatchString(pw) {
		problems = append(problems, "at least 1 special character")
	}
	return problems
}

// Strength grades a password for display next to a password field.
type Strength string

const (
	StrengthWeak   Strength = "weak"
	StrengthMedium Strength = "medium"
	StrengthStrong Strength = "strong"
)

// PasswordStrength scores pw one point each for length >= 8, length >= 12,
// an uppercase letter, a lowercase letter, a digit and a special character.
// Up to 2 points is weak, up to 4 medium, more is strong.
func PasswordStrength(pw string) Strength {
	score := 0
	if len(pw) >= 8 {
		score++
	}
	if len(pw) >= 12 {
		score++
	}
	for _, re := range []*regexp.Regexp{reUpper, reLower, reDigit, reSpecial} {
		if re.MatchString(pw) {
			score++
		}
	}

	switch {
	case score <= 2:
		return StrengthWeak
	case score <= 4:
		return StrengthMedium
	default:
		return StrengthStrong
	}
}
