package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const userColumns = `id, name, email, phone_number, password_hash, avatar, is_admin, favorites, created_at, updated_at`

type userRepository struct {
	db *sql.DB
}

// NewUserRepository создаёт PostgreSQL-реализацию UserRepository.
func NewUserRepository(store *Store) domain.UserRepository {
	return &userRepository{db: store.DB()}
}

func (r *userRepository) Create(ctx context.Context, user domain.User) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	favorites, err := encodeStrings(user.Favorites)
	if err != nil {
		return fmt.Errorf("encode favorites: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		user.ID, user.Name, user.Email, user.PhoneNumber, user.PasswordHash,
		user.Avatar, user.IsAdmin, favorites, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) && violatedConstraint(err) == "users_email_uq" {
			return domain.ErrEmailTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *userRepository) Get(ctx context.Context, id string) (domain.User, error) {
	return r.getBy(ctx, `id = $1`, id)
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	return r.getBy(ctx, `LOWER(email) = LOWER($1)`, email)
}

func (r *userRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return expectAffected(res, domain.ErrUserNotFound)
}

func (r *userRepository) SetFavorites(ctx context.Context, userID string, favorites []string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	raw, err := encodeStrings(favorites)
	if err != nil {
		return fmt.Errorf("encode favorites: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET favorites = $2, updated_at = $3 WHERE id = $1
	`, userID, raw, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update favorites: %w", err)
	}
	return expectAffected(res, domain.ErrUserNotFound)
}

func (r *userRepository) getBy(ctx context.Context, cond string, arg string) (domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		user      domain.User
		favorites []byte
	)
	err := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+cond, arg).Scan(
		&user.ID, &user.Name, &user.Email, &user.PhoneNumber, &user.PasswordHash,
		&user.Avatar, &user.IsAdmin, &favorites, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, domain.ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("select user: %w", err)
	}
	if err := decodeStrings(favorites, &user.Favorites); err != nil {
		return domain.User{}, fmt.Errorf("decode favorites: %w", err)
	}
	return user, nil
}

var _ domain.UserRepository = (*userRepository)(nil)
