package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// cartRepositoryInMemory хранит по одной корзине на пользователя.
type cartRepositoryInMemory struct {
	mu    sync.RWMutex
	carts map[string]domain.Cart
}

// NewCartRepository создаёт in-memory реализацию CartRepository.
func NewCartRepository() domain.CartRepository {
	return &cartRepositoryInMemory{carts: make(map[string]domain.Cart)}
}

// Create сохраняет корзину, если у пользователя её ещё нет.
func (r *cartRepositoryInMemory) Create(_ context.Context, cart domain.Cart) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.carts[cart.UserID]; ok {
		return nil
	}
	cart.Version = 0
	r.carts[cart.UserID] = cart.Clone()
	return nil
}

// Get возвращает копию корзины.
func (r *cartRepositoryInMemory) Get(_ context.Context, userID string) (domain.Cart, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cart, ok := r.carts[userID]
	if !ok {
		return domain.Cart{}, domain.ErrCartNotFound
	}
	return cart.Clone(), nil
}

// Save перезаписывает корзину при совпадении версии.
func (r *cartRepositoryInMemory) Save(_ context.Context, cart domain.Cart) (domain.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.carts[cart.UserID]
	if !ok {
		return domain.Cart{}, domain.ErrCartNotFound
	}
	if current.Version != cart.Version {
		return domain.Cart{}, domain.ErrCartVersionConflict
	}
	cart.Version++
	cart.UpdatedAt = time.Now().UTC()
	r.carts[cart.UserID] = cart.Clone()
	return cart.Clone(), nil
}

var _ domain.CartRepository = (*cartRepositoryInMemory)(nil)
