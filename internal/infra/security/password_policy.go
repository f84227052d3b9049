package security

import (
	"fmt"
	"strings"
)

const (
	defaultMinPasswordLength   = 10
	defaultMaxPasswordLength   = 128
	defaultMinCharacterClasses = 3
	defaultMinZxcvbnScore      = 3
)

// DefaultPasswordValidator returns the built-in validator enforcing length,
// character class, and zxcvbn strength checks.
func DefaultPasswordValidator() *PasswordValidator {
	return NewPasswordValidatorWithContext()
}

// NewPasswordValidatorWithContext includes user inputs (name, email) in strength checking.
func NewPasswordValidatorWithContext(userInputs ...string) *PasswordValidator {
	return NewPasswordValidator(
		LengthRule(defaultMinPasswordLength, defaultMaxPasswordLength),
		CharacterClassesRule(defaultMinCharacterClasses),
		StrengthRule(defaultMinZxcvbnScore, userInputs...),
	)
}

// PasswordPolicy implements port.PasswordPolicyValidator.
type PasswordPolicy struct {
	factory func(inputs []string) *PasswordValidator
}

// NewPasswordPolicy builds a policy that accounts for contextual user inputs when validating passwords.
func NewPasswordPolicy() *PasswordPolicy {
	return &PasswordPolicy{
		factory: func(inputs []string) *PasswordValidator {
			return NewPasswordValidatorWithContext(inputs...)
		},
	}
}

// NewPasswordPolicyFromValidator wraps an existing validator instance without contextual enhancements.
func NewPasswordPolicyFromValidator(validator *PasswordValidator) *PasswordPolicy {
	if validator == nil {
		validator = DefaultPasswordValidator()
	}
	return &PasswordPolicy{
		factory: func(_ []string) *PasswordValidator {
			return validator
		},
	}
}

// Validate checks password against the policy. Email addresses contribute their
// local part as well so "jane.doe2024" is penalised for jane.doe@example.com.
func (p *PasswordPolicy) Validate(password string, userInputs ...string) error {
	if p == nil || p.factory == nil {
		return fmt.Errorf("password policy not configured")
	}

	inputs := make([]string, 0, len(userInputs)*2)
	for _, input := range userInputs {
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		inputs = append(inputs, input)
		if local, _, ok := strings.Cut(input, "@"); ok && local != "" {
			inputs = append(inputs, local)
		}
	}

	validator := p.factory(inputs)
	if validator == nil {
		return fmt.Errorf("password validator not configured")
	}

	return validator.Validate(password)
}
