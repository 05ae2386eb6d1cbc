package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	opTimeout = 5 * time.Second

	orderColumns = `
		id, tracking_id, user_id, total_amount, status, payment_method, payment_reference,
		ship_name, ship_address, ship_city, ship_phone, ship_email,
		version, created_at, updated_at`
)

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

func (r *orderRepository) Create(ctx context.Context, order domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = insertOrder(ctx, tx, order); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create order: %w", err)
	}

	return nil
}

// insertOrder сохраняет заголовок заказа и позиции снимка.
func insertOrder(ctx context.Context, q queryer, order domain.Order) error {
	reference := sql.NullString{String: order.PaymentReference, Valid: order.PaymentReference != ""}

	_, err := q.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`,
		order.ID, order.TrackingID, order.UserID, order.TotalAmount, string(order.Status),
		string(order.PaymentMethod), reference,
		order.Shipment.Name, order.Shipment.Address, order.Shipment.City,
		order.Shipment.PhoneNumber, order.Shipment.Email,
		order.Version, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return mapOrderUniqueViolation(err)
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for i, item := range order.Items {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO order_items (
				order_id, position, product_id, name, quantity, list_price, discount, price
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`,
			order.ID, i, item.ProductID, item.Name, item.Quantity, item.ListPrice, item.Discount, item.Price,
		); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	return nil
}

func mapOrderUniqueViolation(err error) error {
	switch violatedConstraint(err) {
	case "orders_payment_reference_uq":
		return domain.ErrDuplicatePaymentReference
	case "orders_tracking_id_uq":
		return domain.ErrTrackingIDConflict
	default:
		return domain.ErrOrderExists
	}
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	return r.getBy(ctx, `id = $1`, id)
}

func (r *orderRepository) GetByTrackingID(ctx context.Context, trackingID string) (domain.Order, error) {
	return r.getBy(ctx, `tracking_id = $1`, trackingID)
}

func (r *orderRepository) getBy(ctx context.Context, cond, arg string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	order, err := scanOrder(r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE `+cond, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	items, err := r.loadItems(ctx, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items

	return order, nil
}

func (r *orderRepository) List(ctx context.Context, filter domain.OrderFilter) (domain.OrderPage, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	page, limit := domain.NormalizePage(filter.Page, filter.Limit)

	var (
		where []string
		args  []any
	)
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		where = append(where, "user_id = $"+strconv.Itoa(len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, "status = $"+strconv.Itoa(len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	result := domain.OrderPage{Orders: []domain.Order{}}
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`+clause, args...).Scan(&result.TotalCount); err != nil {
		return domain.OrderPage{}, fmt.Errorf("count orders: %w", err)
	}
	if result.TotalCount == 0 {
		return result, nil
	}

	args = append(args, limit, domain.PageOffset(page, limit))
	rows, err := r.db.QueryContext(ctx, `SELECT `+orderColumns+` FROM orders`+clause+`
		ORDER BY created_at DESC, id DESC
		LIMIT $`+strconv.Itoa(len(args)-1)+` OFFSET $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return domain.OrderPage{}, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return domain.OrderPage{}, fmt.Errorf("scan order row: %w", err)
		}
		result.Orders = append(result.Orders, order)
	}
	if err := rows.Err(); err != nil {
		return domain.OrderPage{}, fmt.Errorf("iterate order rows: %w", err)
	}

	for i := range result.Orders {
		items, err := r.loadItems(ctx, result.Orders[i].ID)
		if err != nil {
			return domain.OrderPage{}, err
		}
		result.Orders[i].Items = items
	}

	return result, nil
}

// Save обновляет только изменяемую часть заказа: статус и время обновления.
// Денежный снимок после создания не перезаписывается.
func (r *orderRepository) Save(ctx context.Context, order domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $1,
		    version = version + 1,
		    updated_at = $2
		WHERE id = $3
		  AND version = $4
	`,
		string(order.Status),
		order.UpdatedAt,
		order.ID,
		order.Version,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		exists, existsErr := r.orderExistsTx(ctx, tx, order.ID)
		switch {
		case existsErr != nil:
			err = existsErr
		case !exists:
			err = domain.ErrOrderNotFound
		default:
			err = domain.ErrOrderVersionConflict
		}
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit save order: %w", err)
	}

	return nil
}

func (r *orderRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	return expectAffected(res, domain.ErrOrderNotFound)
}

func (r *orderRepository) loadItems(ctx context.Context, orderID string) ([]domain.OrderLineItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, name, quantity, list_price, discount, price
		FROM order_items
		WHERE order_id = $1
		ORDER BY position ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.OrderLineItem, 0)
	for rows.Next() {
		var item domain.OrderLineItem
		if err := rows.Scan(&item.ProductID, &item.Name, &item.Quantity, &item.ListPrice, &item.Discount, &item.Price); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}

	return items, nil
}

func (r *orderRepository) orderExistsTx(ctx context.Context, tx *sql.Tx, orderID string) (bool, error) {
	var id string
	err := tx.QueryRowContext(ctx, `SELECT id FROM orders WHERE id = $1`, orderID).Scan(&id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check order exists: %w", err)
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order          domain.Order
		status, method string
		reference      sql.NullString
	)
	if err := row.Scan(
		&order.ID, &order.TrackingID, &order.UserID, &order.TotalAmount, &status, &method, &reference,
		&order.Shipment.Name, &order.Shipment.Address, &order.Shipment.City,
		&order.Shipment.PhoneNumber, &order.Shipment.Email,
		&order.Version, &order.CreatedAt, &order.UpdatedAt,
	); err != nil {
		return domain.Order{}, err
	}
	order.Status = domain.OrderStatus(status)
	order.PaymentMethod = domain.PaymentMethod(method)
	order.PaymentReference = reference.String
	return order, nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
