package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/argon2"
)

const (
	argon2Variant = "argon2id"
	argon2Version = "v=19"
)

var (
	errInvalidHashFormat = errors.New("argon2: invalid encoded hash format")
	errInvalidConfig     = errors.New("argon2: invalid configuration")
)

// Argon2Config defines tunable parameters for Argon2id password hashing.
type Argon2Config struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2Config returns the library default Argon2id configuration.
func DefaultArgon2Config() Argon2Config {
	return Argon2Config{
		Memory:      64 * 1024,
		Iterations:  3,
		Parallelism: 4,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Validate checks the parameters against conservative lower bounds.
func (cfg Argon2Config) Validate() error {
	if cfg.Memory < 8*1024 {
		return fmt.Errorf("%w: memory must be at least 8192", errInvalidConfig)
	}
	if cfg.Iterations == 0 {
		return fmt.Errorf("%w: iterations must be greater than zero", errInvalidConfig)
	}
	if cfg.Parallelism == 0 {
		return fmt.Errorf("%w: parallelism must be greater than zero", errInvalidConfig)
	}
	if cfg.SaltLength < 8 {
		return fmt.Errorf("%w: salt length must be at least 8 bytes", errInvalidConfig)
	}
	if cfg.KeyLength < 16 {
		return fmt.Errorf("%w: key length must be at least 16 bytes", errInvalidConfig)
	}
	return nil
}

// Argon2Hasher implements port.PasswordHasher with Argon2id.
type Argon2Hasher struct {
	cfg    Argon2Config
	logger *zap.Logger
}

// NewArgon2Hasher constructs a hasher after validating the parameters.
func NewArgon2Hasher(cfg Argon2Config, logger *zap.Logger) (*Argon2Hasher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Argon2Hasher{cfg: cfg, logger: logger}, nil
}

// Hash generates an encoded Argon2id hash with a fresh random salt.
func (h *Argon2Hasher) Hash(password string) (string, error) {
	return hashWithConfig(password, h.cfg)
}

// Verify reports whether password matches encoded. Malformed hashes verify as false.
func (h *Argon2Hasher) Verify(password, encoded string) bool {
	ok, err := VerifyPassword(password, encoded)
	if err != nil {
		h.logger.Warn("stored password hash could not be decoded", zap.Error(err))
		return false
	}
	return ok
}

// HashPassword hashes with DefaultArgon2Config.
func HashPassword(password string) (string, error) {
	return hashWithConfig(password, DefaultArgon2Config())
}

// encodedHash is the parsed form of argon2id$v=19$m=<kib>,t=<n>,p=<n>$<salt>$<key>.
type encodedHash struct {
	params Argon2Config
	salt   []byte
	key    []byte
}

func (e encodedHash) String() string {
	return strings.Join([]string{
		argon2Variant,
		argon2Version,
		fmt.Sprintf("m=%d,t=%d,p=%d", e.params.Memory, e.params.Iterations, e.params.Parallelism),
		base64.RawStdEncoding.EncodeToString(e.salt),
		base64.RawStdEncoding.EncodeToString(e.key),
	}, "$")
}

func (e encodedHash) derive(password string) []byte {
	return argon2.IDKey([]byte(password), e.salt, e.params.Iterations, e.params.Memory, e.params.Parallelism, uint32(len(e.key)))
}

func hashWithConfig(password string, cfg Argon2Config) (string, error) {
	h := encodedHash{params: cfg, salt: make([]byte, cfg.SaltLength)}
	if _, err := rand.Read(h.salt); err != nil {
		return "", fmt.Errorf("argon2: generate salt: %w", err)
	}
	h.key = argon2.IDKey([]byte(password), h.salt, cfg.Iterations, cfg.Memory, cfg.Parallelism, cfg.KeyLength)
	return h.String(), nil
}

// VerifyPassword reports whether password matches encoded. A malformed
// encoding is returned as an error so callers can tell it apart from a mismatch.
// Every password, the empty one included, round-trips through HashPassword.
func VerifyPassword(password, encoded string) (bool, error) {
	if encoded == "" {
		return false, nil
	}

	h, err := parseEncodedHash(encoded)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(h.derive(password), h.key) == 1, nil
}

func parseEncodedHash(encoded string) (encodedHash, error) {
	variant, rest, _ := strings.Cut(encoded, "$")
	if variant != argon2Variant {
		return encodedHash{}, fmt.Errorf("%w: unexpected variant %q", errInvalidHashFormat, variant)
	}

	fields := strings.Split(rest, "$")
	if len(fields) != 4 {
		return encodedHash{}, errInvalidHashFormat
	}
	if fields[0] != argon2Version {
		return encodedHash{}, fmt.Errorf("argon2: unsupported version %q", fields[0])
	}

	var (
		h      encodedHash
		params = fields[1]
	)
	if n, err := fmt.Sscanf(params, "m=%d,t=%d,p=%d", &h.params.Memory, &h.params.Iterations, &h.params.Parallelism); err != nil || n != 3 {
		return encodedHash{}, fmt.Errorf("%w: parameters %q", errInvalidHashFormat, params)
	}
	if want := fmt.Sprintf("m=%d,t=%d,p=%d", h.params.Memory, h.params.Iterations, h.params.Parallelism); want != params {
		return encodedHash{}, fmt.Errorf("%w: parameters %q", errInvalidHashFormat, params)
	}

	var err error
	if h.salt, err = base64.RawStdEncoding.DecodeString(fields[2]); err != nil {
		return encodedHash{}, fmt.Errorf("argon2: decode salt: %w", err)
	}
	if h.key, err = base64.RawStdEncoding.DecodeString(fields[3]); err != nil {
		return encodedHash{}, fmt.Errorf("argon2: decode hash: %w", err)
	}

	h.params.SaltLength = uint32(len(h.salt))
	h.params.KeyLength = uint32(len(h.key))
	if err := h.params.Validate(); err != nil {
		return encodedHash{}, err
	}
	return h, nil
}
