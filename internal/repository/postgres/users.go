package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/social-identity/internal/core/domain"
	"github.com/arklim/social-identity/internal/repository"
)

const usersTable = "identity.users"

var userColumns = []string{
	"id",
	"email",
	"full_name",
	"password_hash",
	"is_verified",
	"otp_code",
	"otp_purpose",
	"otp_expires_at",
	"otp_used",
	"created_at",
	"updated_at",
}

// UserRepository implements port.UserRepository using PostgreSQL.
type UserRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewUserRepository wires a PostgreSQL-backed user repository.
func NewUserRepository(exec pgExecutor) *UserRepository {
	return &UserRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts a new user row. A duplicate email yields repository.ErrConflict.
func (r *UserRepository) Create(ctx context.Context, user domain.User) error {
	stmt, args, err := r.builder.Insert(usersTable).
		Columns(userColumns...).
		Values(
			user.ID,
			user.Email,
			user.FullName,
			user.PasswordHash,
			user.IsVerified,
			codeValue(user.Code),
			purposeValue(user.Code),
			expiresValue(user.Code),
			user.Code.Used,
			user.CreatedAt,
			user.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert user sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by identifier.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, squirrel.Eq{"id": id}, "by id")
}

// GetByEmail retrieves a user by normalized email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, squirrel.Eq{"email": email}, "by email")
}

func (r *UserRepository) getOne(ctx context.Context, where squirrel.Sqlizer, label string) (*domain.User, error) {
	stmt, args, err := r.builder.
		Select(userColumns...).
		From(usersTable).
		Where(where).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user %s sql: %w", label, err)
	}

	user, err := scanUser(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan user %s: %w", label, err)
	}

	return user, nil
}

// UpdatePassword overwrites the stored password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, id string, passwordHash string, changedAt time.Time) error {
	stmt, args, err := r.builder.Update(usersTable).
		Set("password_hash", passwordHash).
		Set("updated_at", changedAt).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update password sql: %w", err)
	}

	return r.execAffectingOne(ctx, stmt, args, "update password")
}

// SetCode overwrites the code slot of the user owning email.
func (r *UserRepository) SetCode(ctx context.Context, email string, slot domain.CodeSlot) error {
	stmt, args, err := r.builder.Update(usersTable).
		Set("otp_code", codeValue(slot)).
		Set("otp_purpose", purposeValue(slot)).
		Set("otp_expires_at", expiresValue(slot)).
		Set("otp_used", false).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"email": email}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build set code sql: %w", err)
	}

	return r.execAffectingOne(ctx, stmt, args, "set code")
}

// ConsumeCode marks a matching code as used in a single conditional UPDATE.
// Concurrent callers serialise on the row lock; only one observes the RETURNING row.
// A registration code also verifies the account in the same statement.
func (r *UserRepository) ConsumeCode(ctx context.Context, email, code string, purpose domain.CodePurpose, now time.Time) (*domain.User, error) {
	query := r.builder.Update(usersTable).
		Set("otp_used", true).
		Set("otp_code", nil).
		Set("otp_purpose", nil).
		Set("otp_expires_at", nil).
		Set("updated_at", now)
	if purpose == domain.CodePurposeRegistration {
		query = query.Set("is_verified", true)
	}

	stmt, args, err := query.
		Where(squirrel.Eq{
			"email":       email,
			"otp_code":    code,
			"otp_purpose": string(purpose),
			"otp_used":    false,
		}).
		Where(squirrel.Gt{"otp_expires_at": now}).
		Suffix("RETURNING " + strings.Join(userColumns, ", ")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build consume code sql: %w", err)
	}

	user, err := scanUser(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("consume code: %w", err)
	}

	return user, nil
}

// ClearExpiredCodes resets every slot whose expiry is before now.
func (r *UserRepository) ClearExpiredCodes(ctx context.Context, now time.Time) (int64, error) {
	stmt, args, err := r.builder.Update(usersTable).
		Set("otp_code", nil).
		Set("otp_purpose", nil).
		Set("otp_expires_at", nil).
		Set("otp_used", false).
		Where(squirrel.Lt{"otp_expires_at": now}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build clear expired codes sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("clear expired codes: %w", err)
	}

	return res.RowsAffected(), nil
}

func (r *UserRepository) execAffectingOne(ctx context.Context, stmt string, args []any, action string) error {
	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		user    domain.User
		code    *string
		purpose *string
		expires *time.Time
	)

	if err := row.Scan(
		&user.ID,
		&user.Email,
		&user.FullName,
		&user.PasswordHash,
		&user.IsVerified,
		&code,
		&purpose,
		&expires,
		&user.Code.Used,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}

	user.Code.Code = code
	user.Code.ExpiresAt = expires
	if purpose != nil {
		p := domain.CodePurpose(*purpose)
		user.Code.Purpose = &p
	}

	return &user, nil
}

func codeValue(slot domain.CodeSlot) any {
	if slot.Code == nil {
		return nil
	}
	return *slot.Code
}

func purposeValue(slot domain.CodeSlot) any {
	if slot.Purpose == nil {
		return nil
	}
	return string(*slot.Purpose)
}

func expiresValue(slot domain.CodeSlot) any {
	if slot.ExpiresAt == nil {
		return nil
	}
	return slot.ExpiresAt.UTC()
}
