package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/resilience"
)

// View - корзина с разрешёнными товарами и итогом.
type View struct {
	UserID  string
	Lines   []domain.CartLine
	Summary domain.PriceSummary
	Version int64
}

// Service - операции корзины покупателя.
type Service struct {
	carts   domain.CartRepository
	catalog domain.CatalogRepository
	retrier *resilience.Retrier
	logger  *log.Entry
}

// NewService создаёт сервис корзины. Конфликты версий повторяются по retryConfig.
func NewService(carts domain.CartRepository, catalog domain.CatalogRepository, retryConfig resilience.RetryConfig, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "cart")
	}
	retryable := func(err error) bool { return errors.Is(err, domain.ErrCartVersionConflict) }
	return &Service{
		carts:   carts,
		catalog: catalog,
		retrier: resilience.NewRetrier(retryConfig, retryable, logger),
		logger:  logger,
	}
}

// Get возвращает корзину пользователя. Удалённые из каталога товары остаются в
// корзине и помечаются как удалённые; в итог они не входят.
func (s *Service) Get(ctx context.Context, userID string) (View, error) {
	cart, err := s.carts.Get(ctx, userID)
	if err != nil {
		return View{}, err
	}
	return s.view(ctx, cart)
}

// Toggle добавляет товар или убирает его, если он уже в корзине.
func (s *Service) Toggle(ctx context.Context, userID, productID string, quantity int) (View, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return View{}, domain.NewValidationError("productId", "Product is required")
	}

	return s.mutate(ctx, userID, "cart.toggle", func(ctx context.Context, cart *domain.Cart) error {
		// Добавлять можно только существующий товар; убирать - любой.
		if !cart.Has(productID) {
			if _, err := s.catalog.GetProduct(ctx, productID); err != nil {
				return err
			}
		}
		return cart.Toggle(productID, quantity)
	})
}

// UpdateQuantity задаёт количество позиции.
func (s *Service) UpdateQuantity(ctx context.Context, userID, productID string, quantity int) (View, error) {
	return s.mutate(ctx, userID, "cart.update_quantity", func(_ context.Context, cart *domain.Cart) error {
		return cart.UpdateQuantity(productID, quantity)
	})
}

// Remove убирает позицию; отсутствие товара в корзине не ошибка.
func (s *Service) Remove(ctx context.Context, userID, productID string) (View, error) {
	return s.mutate(ctx, userID, "cart.remove", func(_ context.Context, cart *domain.Cart) error {
		cart.Remove(productID)
		return nil
	})
}

// mutate выполняет read-modify-write с проверкой версии и повтором при конфликте.
func (s *Service) mutate(ctx context.Context, userID, operation string, apply func(context.Context, *domain.Cart) error) (View, error) {
	var saved domain.Cart

	err := s.retrier.Do(ctx, operation, func(ctx context.Context) error {
		cart, err := s.carts.Get(ctx, userID)
		if err != nil {
			return err
		}
		if err := apply(ctx, &cart); err != nil {
			return err
		}
		saved, err = s.carts.Save(ctx, cart)
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrCartVersionConflict) {
			s.logger.WithFields(log.Fields{"user_id": userID, "operation": operation}).Warn("cart update lost to concurrent writers")
		}
		return View{}, err
	}
	return s.view(ctx, saved)
}

func (s *Service) view(ctx context.Context, cart domain.Cart) (View, error) {
	lines, err := ResolveLines(ctx, s.catalog, cart)
	if err != nil {
		return View{}, err
	}
	return View{
		UserID:  cart.UserID,
		Lines:   lines,
		Summary: domain.SummarizeLines(lines),
		Version: cart.Version,
	}, nil
}

// ResolveLines загружает товары корзины одним запросом.
func ResolveLines(ctx context.Context, catalog domain.CatalogRepository, cart domain.Cart) ([]domain.CartLine, error) {
	if len(cart.Items) == 0 {
		return []domain.CartLine{}, nil
	}
	products, err := catalog.GetProducts(ctx, cart.ProductIDs())
	if err != nil {
		return nil, fmt.Errorf("resolve cart products: %w", err)
	}
	return domain.ResolveCart(cart, products), nil
}
