package security

import (
	"fmt"
	"unicode"
	"unicode/utf8"

	zxcvbn "github.com/nbutton23/zxcvbn-go"
)

// Violation codes reported in PasswordValidationError.Code.
const (
	ViolationTooShort         = "min_length"
	ViolationTooLong          = "max_length"
	ViolationCharacterClasses = "character_classes"
	ViolationWeak             = "weak_password"
)

// PasswordValidationError is the first rule a password failed.
type PasswordValidationError struct {
	Code    string
	Message string
}

func (e *PasswordValidationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func violation(code, format string, args ...any) *PasswordValidationError {
	return &PasswordValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// PasswordRule returns a *PasswordValidationError when password breaks it.
type PasswordRule func(password string) error

// PasswordValidator runs rules in order and stops at the first violation.
type PasswordValidator struct {
	rules []PasswordRule
}

func NewPasswordValidator(rules ...PasswordRule) *PasswordValidator {
	return &PasswordValidator{rules: append([]PasswordRule(nil), rules...)}
}

func (v *PasswordValidator) Validate(password string) error {
	if v == nil {
		return fmt.Errorf("password validator not configured")
	}
	for _, rule := range v.rules {
		if err := rule(password); err != nil {
			return err
		}
	}
	return nil
}

// LengthRule bounds the password length in runes. max <= 0 disables the upper bound.
func LengthRule(min, max int) PasswordRule {
	return func(password string) error {
		n := utf8.RuneCountInString(password)
		switch {
		case n < min:
			return violation(ViolationTooShort, "password must be at least %d characters long", min)
		case max > 0 && n > max:
			return violation(ViolationTooLong, "password must be at most %d characters long", max)
		}
		return nil
	}
}

type charClass uint8

const (
	classUpper charClass = 1 << iota
	classLower
	classDigit
	classSymbol
)

func classesOf(password string) int {
	var seen charClass
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			seen |= classUpper
		case unicode.IsLower(r):
			seen |= classLower
		case unicode.IsDigit(r):
			seen |= classDigit
		case unicode.IsSymbol(r) || unicode.IsPunct(r):
			seen |= classSymbol
		}
	}

	count := 0
	for ; seen != 0; seen &= seen - 1 {
		count++
	}
	return count
}

// CharacterClassesRule requires min of upper, lower, digit and symbol.
func CharacterClassesRule(min int) PasswordRule {
	return func(password string) error {
		if min > 0 && classesOf(password) < min {
			return violation(ViolationCharacterClasses, "password must include at least %d character types", min)
		}
		return nil
	}
}

// StrengthRule requires a zxcvbn score of at least minScore (capped at 4).
// userInputs are dictionary words specific to the account, such as its name.
func StrengthRule(minScore int, userInputs ...string) PasswordRule {
	if minScore > 4 {
		minScore = 4
	}
	return func(password string) error {
		if minScore <= 0 {
			return nil
		}
		if zxcvbn.PasswordStrength(password, userInputs).Score < minScore {
			return violation(ViolationWeak, "password is too weak; choose a more complex value")
		}
		return nil
	}
}
