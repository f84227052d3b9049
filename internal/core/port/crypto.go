package port

// PasswordHasher hashes and verifies secrets using the configured algorithm.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password string, encoded string) bool
}

// CodeGenerator produces numeric one-time codes.
type CodeGenerator interface {
	Generate() (string, error)
}

// PasswordPolicyValidator enforces password strength requirements.
type PasswordPolicyValidator interface {
	Validate(password string, userInputs ...string) error
}
