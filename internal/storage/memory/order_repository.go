package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// orderRepositoryInMemory - простая in-memory реализация OrderRepository.
type orderRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Order
	// Индексы уникальности: трек-номер и платёжная ссылка -> ID заказа.
	byTracking  map[string]string
	byReference map[string]string
}

// NewOrderRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewOrderRepository() domain.OrderRepository {
	return &orderRepositoryInMemory{
		items:       make(map[string]domain.Order),
		byTracking:  make(map[string]string),
		byReference: make(map[string]string),
	}
}

// Create сохраняет новый заказ, проверяя уникальность ID, трек-номера и платёжной ссылки.
func (r *orderRepositoryInMemory) Create(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[order.ID]; exists {
		return domain.ErrOrderExists
	}
	if _, exists := r.byTracking[order.TrackingID]; exists {
		return domain.ErrTrackingIDConflict
	}
	if order.PaymentReference != "" {
		if _, exists := r.byReference[order.PaymentReference]; exists {
			return domain.ErrDuplicatePaymentReference
		}
		r.byReference[order.PaymentReference] = order.ID
	}
	r.byTracking[order.TrackingID] = order.ID
	r.items[order.ID] = cloneOrder(order)
	return nil
}

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (r *orderRepositoryInMemory) Get(_ context.Context, id string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.items[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

// GetByTrackingID ищет заказ по трек-номеру.
func (r *orderRepositoryInMemory) GetByTrackingID(_ context.Context, trackingID string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byTracking[trackingID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return cloneOrder(r.items[id]), nil
}

// List возвращает страницу заказов, новые первыми.
func (r *orderRepositoryInMemory) List(_ context.Context, filter domain.OrderFilter) (domain.OrderPage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	page, limit := domain.NormalizePage(filter.Page, filter.Limit)

	matched := make([]domain.Order, 0, len(r.items))
	for _, order := range r.items {
		if filter.UserID != "" && order.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && order.Status != filter.Status {
			continue
		}
		matched = append(matched, order)
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	result := domain.OrderPage{TotalCount: len(matched), Orders: []domain.Order{}}
	offset := domain.PageOffset(page, limit)
	if offset >= len(matched) {
		return result, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	for _, order := range matched[offset:end] {
		result.Orders = append(result.Orders, cloneOrder(order))
	}
	return result, nil
}

// Save перезаписывает заказ, проверяя версию (optimistic locking).
func (r *orderRepositoryInMemory) Save(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[order.ID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if current.Version != order.Version {
		return domain.ErrOrderVersionConflict
	}
	// Инкрементируем версию перед сохранением.
	order.Version++
	r.items[order.ID] = cloneOrder(order)
	return nil
}

// Delete удаляет заказ вместе с индексами уникальности.
func (r *orderRepositoryInMemory) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.items[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	delete(r.byTracking, order.TrackingID)
	if order.PaymentReference != "" {
		delete(r.byReference, order.PaymentReference)
	}
	delete(r.items, id)
	return nil
}

// cloneOrder копирует срез позиций, чтобы снимок нельзя было изменить извне.
func cloneOrder(order domain.Order) domain.Order {
	items := make([]domain.OrderLineItem, len(order.Items))
	copy(items, order.Items)
	order.Items = items
	return order
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
