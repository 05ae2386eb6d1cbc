package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	// DefaultBcryptCost - стоимость хеширования паролей по умолчанию.
	DefaultBcryptCost = 12

	minNameLength     = 3
	minPasswordLength = 6

	emailTakenMessage = "Email already exists"
)

// TokenIssuer выпускает сессионные токены.
type TokenIssuer interface {
	Issue(user domain.User) (string, time.Time, error)
}

// RegisterRequest - данные формы регистрации.
type RegisterRequest struct {
	Name        string
	Email       string
	PhoneNumber string
	Password    string
}

// Session - результат успешного входа.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      domain.User
}

// Option настраивает сервис.
type Option func(*Service)

// WithBcryptCost задаёт стоимость bcrypt; в тестах используется bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			s.bcryptCost = cost
		}
	}
}

// Service - регистрация, вход, профиль и избранное.
type Service struct {
	users      domain.UserRepository
	carts      domain.CartRepository
	catalog    domain.CatalogRepository
	tokens     TokenIssuer
	bcryptCost int
	now        func() time.Time
	logger     *log.Entry
}

// NewService создаёт сервис учётных записей.
func NewService(users domain.UserRepository, carts domain.CartRepository, catalog domain.CatalogRepository, tokens TokenIssuer, logger *log.Entry, opts ...Option) *Service {
	if logger == nil {
		logger = log.WithField("component", "account")
	}
	s := &Service{
		users:      users,
		carts:      carts,
		catalog:    catalog,
		tokens:     tokens,
		bcryptCost: DefaultBcryptCost,
		now:        time.Now,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register создаёт пользователя и его пустую корзину.
// Занятый email - ошибка валидации поля email, ничего не создаётся.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (domain.User, error) {
	return s.create(ctx, req, false)
}

// EnsureAdmin создаёт администратора при первом запуске. Существующая учётная
// запись с тем же email не меняется.
func (s *Service) EnsureAdmin(ctx context.Context, req RegisterRequest) (domain.User, error) {
	existing, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	switch {
	case err == nil:
		if !existing.IsAdmin {
			s.logger.WithField("user_id", existing.ID).Warn("bootstrap admin email belongs to a regular user")
		}
		return existing, nil
	case !errors.Is(err, domain.ErrUserNotFound):
		return domain.User{}, fmt.Errorf("lookup user by email: %w", err)
	}
	return s.create(ctx, req, true)
}

func (s *Service) create(ctx context.Context, req RegisterRequest, isAdmin bool) (domain.User, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.PhoneNumber = strings.TrimSpace(req.PhoneNumber)

	if err := validateRegistration(req); err != nil {
		return domain.User{}, err
	}

	switch _, err := s.users.GetByEmail(ctx, req.Email); {
	case err == nil:
		return domain.User{}, domain.NewValidationError("email", emailTakenMessage)
	case !errors.Is(err, domain.ErrUserNotFound):
		return domain.User{}, fmt.Errorf("lookup user by email: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	user := domain.User{
		ID:           uuid.NewString(),
		Name:         req.Name,
		Email:        req.Email,
		PhoneNumber:  req.PhoneNumber,
		PasswordHash: string(hash),
		IsAdmin:      isAdmin,
		Favorites:    []string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		// Гонка двух регистраций: проверка выше прошла у обеих.
		if errors.Is(err, domain.ErrEmailTaken) {
			return domain.User{}, domain.NewValidationError("email", emailTakenMessage)
		}
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}

	if err := s.carts.Create(ctx, domain.NewCart(user.ID, now)); err != nil {
		if delErr := s.users.Delete(ctx, user.ID); delErr != nil {
			s.logger.WithError(delErr).WithField("user_id", user.ID).Error("failed to roll back user after cart creation error")
		}
		return domain.User{}, fmt.Errorf("create cart: %w", err)
	}

	s.logger.WithFields(log.Fields{"user_id": user.ID, "admin": isAdmin}).Info("user registered")
	return user, nil
}

// Login проверяет пароль и выпускает токен. Неизвестный email и неверный
// пароль неразличимы для клиента.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return Session{}, domain.ErrInvalidCredentials
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return Session{}, domain.ErrInvalidCredentials
		}
		return Session{}, fmt.Errorf("lookup user by email: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return Session{}, domain.ErrInvalidCredentials
		}
		return Session{}, fmt.Errorf("compare password: %w", err)
	}

	token, expiresAt, err := s.tokens.Issue(user)
	if err != nil {
		return Session{}, fmt.Errorf("issue token: %w", err)
	}
	return Session{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

// Profile возвращает текущего пользователя.
func (s *Service) Profile(ctx context.Context, userID string) (domain.User, error) {
	return s.users.Get(ctx, userID)
}

// Favorites возвращает избранные товары; удалённые из каталога пропускаются.
func (s *Service) Favorites(ctx context.Context, userID string) ([]domain.Product, error) {
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(user.Favorites) == 0 {
		return []domain.Product{}, nil
	}

	found, err := s.catalog.GetProducts(ctx, user.Favorites)
	if err != nil {
		return nil, fmt.Errorf("resolve favorites: %w", err)
	}
	products := make([]domain.Product, 0, len(found))
	for _, id := range user.Favorites {
		if p, ok := found[id]; ok {
			products = append(products, p)
		}
	}
	return products, nil
}

// ToggleFavorite добавляет товар в избранное или убирает его.
// Возвращает true, если товар теперь в избранном.
func (s *Service) ToggleFavorite(ctx context.Context, userID, productID string) (bool, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return false, domain.NewValidationError("productId", "Product is required")
	}

	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return false, err
	}
	if !user.HasFavorite(productID) {
		if _, err := s.catalog.GetProduct(ctx, productID); err != nil {
			return false, err
		}
	}

	added := user.ToggleFavorite(productID)
	if err := s.users.SetFavorites(ctx, userID, user.Favorites); err != nil {
		return false, fmt.Errorf("save favorites: %w", err)
	}
	return added, nil
}

// RemoveFavorite убирает товар из избранного; отсутствие не ошибка.
func (s *Service) RemoveFavorite(ctx context.Context, userID, productID string) error {
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return err
	}
	if !user.HasFavorite(productID) {
		return nil
	}
	user.RemoveFavorite(productID)
	if err := s.users.SetFavorites(ctx, userID, user.Favorites); err != nil {
		return fmt.Errorf("save favorites: %w", err)
	}
	return nil
}

func validateRegistration(req RegisterRequest) error {
	vErr := &domain.ValidationError{}

	if utf8.RuneCountInString(req.Name) < minNameLength {
		vErr.Add("name", fmt.Sprintf("Name must be at least %d characters", minNameLength))
	}
	switch {
	case req.Email == "":
		vErr.Add("email", "Email is required")
	case !domain.ValidEmail(req.Email):
		vErr.Add("email", "Invalid email format")
	}
	switch {
	case req.PhoneNumber == "":
		vErr.Add("phoneNumber", "Phone is required")
	case !domain.ValidPhone(req.PhoneNumber):
		vErr.Add("phoneNumber", "Invalid phone number")
	}
	if len(req.Password) < minPasswordLength {
		vErr.Add("password", fmt.Sprintf("Password must be at least %d characters", minPasswordLength))
	}

	return vErr.OrNil()
}
