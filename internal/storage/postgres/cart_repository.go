package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// cartItemRow - JSON-представление позиции в колонке carts.items.
type cartItemRow struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type cartRepository struct {
	db *sql.DB
}

// NewCartRepository создаёт PostgreSQL-реализацию CartRepository.
func NewCartRepository(store *Store) domain.CartRepository {
	return &cartRepository{db: store.DB()}
}

func (r *cartRepository) Create(ctx context.Context, cart domain.Cart) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	items, err := encodeCartItems(cart.Items)
	if err != nil {
		return err
	}
	if cart.UpdatedAt.IsZero() {
		cart.UpdatedAt = time.Now().UTC()
	}

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO carts (user_id, items, version, updated_at)
		VALUES ($1, $2, 0, $3)
		ON CONFLICT (user_id) DO NOTHING
	`, cart.UserID, items, cart.UpdatedAt); err != nil {
		return fmt.Errorf("insert cart: %w", err)
	}
	return nil
}

func (r *cartRepository) Get(ctx context.Context, userID string) (domain.Cart, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	cart := domain.Cart{UserID: userID}
	var items []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT items, version, updated_at FROM carts WHERE user_id = $1
	`, userID).Scan(&items, &cart.Version, &cart.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Cart{}, domain.ErrCartNotFound
		}
		return domain.Cart{}, fmt.Errorf("select cart: %w", err)
	}
	if cart.Items, err = decodeCartItems(items); err != nil {
		return domain.Cart{}, err
	}
	return cart, nil
}

func (r *cartRepository) Save(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	saved, err := saveCartVersioned(ctx, r.db, cart, time.Now().UTC())
	if err != nil {
		return domain.Cart{}, err
	}
	return saved, nil
}

// saveCartVersioned обновляет корзину только при совпадении версии.
// Используется и репозиторием, и транзакцией оформления заказа.
func saveCartVersioned(ctx context.Context, q queryer, cart domain.Cart, now time.Time) (domain.Cart, error) {
	items, err := encodeCartItems(cart.Items)
	if err != nil {
		return domain.Cart{}, err
	}

	err = q.QueryRowContext(ctx, `
		UPDATE carts
		SET items = $2,
		    version = version + 1,
		    updated_at = $3
		WHERE user_id = $1
		  AND version = $4
		RETURNING version, updated_at
	`, cart.UserID, items, now, cart.Version).Scan(&cart.Version, &cart.UpdatedAt)
	if err == nil {
		return cart.Clone(), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.Cart{}, fmt.Errorf("update cart: %w", err)
	}

	var exists bool
	if err := q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM carts WHERE user_id = $1)`, cart.UserID).Scan(&exists); err != nil {
		return domain.Cart{}, fmt.Errorf("check cart exists: %w", err)
	}
	if !exists {
		return domain.Cart{}, domain.ErrCartNotFound
	}
	return domain.Cart{}, domain.ErrCartVersionConflict
}

func encodeCartItems(items []domain.CartItem) (string, error) {
	rows := make([]cartItemRow, 0, len(items))
	for _, item := range items {
		rows = append(rows, cartItemRow{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	raw, err := json.Marshal(rows)
	if err != nil {
		return "", fmt.Errorf("encode cart items: %w", err)
	}
	return string(raw), nil
}

func decodeCartItems(raw []byte) ([]domain.CartItem, error) {
	var rows []cartItemRow
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &rows); err != nil {
			return nil, fmt.Errorf("decode cart items: %w", err)
		}
	}
	items := make([]domain.CartItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, domain.CartItem{ProductID: row.ProductID, Quantity: row.Quantity})
	}
	return items, nil
}

var _ domain.CartRepository = (*cartRepository)(nil)
