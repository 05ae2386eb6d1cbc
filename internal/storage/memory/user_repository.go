package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// userRepositoryInMemory хранит учётные записи с уникальным email.
type userRepositoryInMemory struct {
	mu      sync.RWMutex
	users   map[string]domain.User
	byEmail map[string]string
}

// NewUserRepository создаёт in-memory реализацию UserRepository.
func NewUserRepository() domain.UserRepository {
	return &userRepositoryInMemory{
		users:   make(map[string]domain.User),
		byEmail: make(map[string]string),
	}
}

func (r *userRepositoryInMemory) Create(_ context.Context, user domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	email := strings.ToLower(user.Email)
	if _, ok := r.byEmail[email]; ok {
		return domain.ErrEmailTaken
	}
	r.byEmail[email] = user.ID
	r.users[user.ID] = cloneUser(user)
	return nil
}

func (r *userRepositoryInMemory) Get(_ context.Context, id string) (domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return cloneUser(user), nil
}

func (r *userRepositoryInMemory) GetByEmail(_ context.Context, email string) (domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[strings.ToLower(email)]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return cloneUser(r.users[id]), nil
}

func (r *userRepositoryInMemory) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	delete(r.byEmail, strings.ToLower(user.Email))
	delete(r.users, id)
	return nil
}

func (r *userRepositoryInMemory) SetFavorites(_ context.Context, userID string, favorites []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	user.Favorites = append([]string(nil), favorites...)
	r.users[userID] = user
	return nil
}

func cloneUser(u domain.User) domain.User {
	u.Favorites = append([]string(nil), u.Favorites...)
	return u
}

var _ domain.UserRepository = (*userRepositoryInMemory)(nil)
