package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const productColumns = `
	id, name, description, brand_id, category, concentration, gender, size,
	price, discount, stock, main_pic, other_images, is_featured, sales, rating,
	tags, created_at, updated_at`

type catalogRepository struct {
	db *sql.DB
}

// NewCatalogRepository создаёт PostgreSQL-реализацию CatalogRepository.
func NewCatalogRepository(store *Store) domain.CatalogRepository {
	return &catalogRepository{db: store.DB()}
}

// productQuery накапливает условия WHERE и позиционные аргументы.
type productQuery struct {
	where []string
	args  []any
}

func (q *productQuery) arg(v any) string {
	q.args = append(q.args, v)
	return "$" + strconv.Itoa(len(q.args))
}

func (q *productQuery) in(column string, values []string) {
	placeholders := make([]string, 0, len(values))
	for _, v := range values {
		placeholders = append(placeholders, q.arg(v))
	}
	q.where = append(q.where, column+" IN ("+strings.Join(placeholders, ",")+")")
}

func (q *productQuery) clause() string {
	if len(q.where) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(q.where, " AND ")
}

func buildProductQuery(f domain.ProductFilter) *productQuery {
	q := &productQuery{}
	if f.Name != "" {
		q.where = append(q.where, "name = "+q.arg(f.Name))
	}
	if f.Query != "" {
		p := q.arg("%" + escapeLike(f.Query) + "%")
		q.where = append(q.where, "(name ILIKE "+p+" OR description ILIKE "+p+")")
	}
	if len(f.Brands) > 0 {
		q.in("brand_id", f.Brands)
	}
	if len(f.Concentrations) > 0 {
		q.in("concentration", f.Concentrations)
	}
	if len(f.Genders) > 0 {
		q.in("gender", f.Genders)
	}
	if len(f.Sizes) > 0 {
		placeholders := make([]string, 0, len(f.Sizes))
		for _, s := range f.Sizes {
			placeholders = append(placeholders, q.arg(s))
		}
		q.where = append(q.where, "size IN ("+strings.Join(placeholders, ",")+")")
	}
	if f.MinPrice != nil {
		q.where = append(q.where, "price >= "+q.arg(*f.MinPrice))
	}
	if f.MaxPrice != nil {
		q.where = append(q.where, "price <= "+q.arg(*f.MaxPrice))
	}
	if f.OnlyDiscounted {
		q.where = append(q.where, "discount > 0")
	}
	return q
}

func orderByClause(f domain.ProductFilter) string {
	column := "sales"
	switch f.Sort {
	case domain.SortByAlpha:
		column = "name"
	case domain.SortByPrice:
		column = "price"
	case domain.SortByDate:
		column = "created_at"
	case domain.SortByDiscount:
		column = "discount"
	}
	direction := "ASC"
	if f.Descending {
		direction = "DESC"
	}
	return " ORDER BY " + column + " " + direction + ", id ASC"
}

func (r *catalogRepository) ListProducts(ctx context.Context, filter domain.ProductFilter) (domain.ProductPage, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	filter = filter.Normalize()
	q := buildProductQuery(filter)

	page := domain.ProductPage{Products: []domain.Product{}}
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`+q.clause(), q.args...).Scan(&page.TotalCount); err != nil {
		return domain.ProductPage{}, fmt.Errorf("count products: %w", err)
	}
	if page.TotalCount == 0 {
		return page, nil
	}

	query := `SELECT ` + productColumns + ` FROM products` + q.clause() + orderByClause(filter) +
		" LIMIT " + q.arg(filter.Limit) + " OFFSET " + q.arg(filter.Offset())
	products, err := r.queryProducts(ctx, query, q.args...)
	if err != nil {
		return domain.ProductPage{}, err
	}
	page.Products = products
	return page, nil
}

func (r *catalogRepository) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	p, err := scanProduct(r.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}
	return p, nil
}

func (r *catalogRepository) GetProducts(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	q := &productQuery{}
	q.in("id", ids)
	products, err := r.queryProducts(ctx, `SELECT `+productColumns+` FROM products`+q.clause(), q.args...)
	if err != nil {
		return nil, err
	}
	for _, p := range products {
		result[p.ID] = p
	}
	return result, nil
}

func (r *catalogRepository) Autocomplete(ctx context.Context, prefix string, limit int) ([]domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 5
	}
	return r.queryProducts(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE name ILIKE $1
		ORDER BY name ASC, id ASC
		LIMIT $2
	`, escapeLike(prefix)+"%", limit)
}

func (r *catalogRepository) CreateProduct(ctx context.Context, p domain.Product) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	images, tags, err := encodeProductLists(p)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
	`,
		p.ID, p.Name, p.Description, p.BrandID, p.Category, p.Concentration, string(p.Gender), p.Size,
		p.Price, p.Discount, p.Stock, p.MainPic, images, p.IsFeatured, p.Sales, p.Rating,
		tags, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrBrandNotFound
		}
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (r *catalogRepository) UpdateProduct(ctx context.Context, p domain.Product) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	images, tags, err := encodeProductLists(p)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, description = $3, brand_id = $4, category = $5, concentration = $6,
		    gender = $7, size = $8, price = $9, discount = $10, stock = $11, main_pic = $12,
		    other_images = $13, is_featured = $14, sales = $15, rating = $16, tags = $17,
		    updated_at = $18
		WHERE id = $1
	`,
		p.ID, p.Name, p.Description, p.BrandID, p.Category, p.Concentration,
		string(p.Gender), p.Size, p.Price, p.Discount, p.Stock, p.MainPic,
		images, p.IsFeatured, p.Sales, p.Rating, tags, p.UpdatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrBrandNotFound
		}
		return fmt.Errorf("update product: %w", err)
	}
	return expectAffected(res, domain.ErrProductNotFound)
}

func (r *catalogRepository) DeleteProduct(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	return expectAffected(res, domain.ErrProductNotFound)
}

func (r *catalogRepository) AddSales(ctx context.Context, productID string, quantity int) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `UPDATE products SET sales = sales + $2 WHERE id = $1`, productID, quantity)
	if err != nil {
		return fmt.Errorf("add product sales: %w", err)
	}
	return expectAffected(res, domain.ErrProductNotFound)
}

func (r *catalogRepository) GetBrand(ctx context.Context, id string) (domain.Brand, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var b domain.Brand
	err := r.db.QueryRowContext(ctx, `SELECT id, name, created_at FROM brands WHERE id = $1`, id).
		Scan(&b.ID, &b.Name, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Brand{}, domain.ErrBrandNotFound
		}
		return domain.Brand{}, fmt.Errorf("select brand: %w", err)
	}
	return b, nil
}

func (r *catalogRepository) ListBrands(ctx context.Context) ([]domain.Brand, error) {
	var brands []domain.Brand
	err := r.listNamed(ctx, "brands", func(row *sql.Rows) error {
		var b domain.Brand
		if err := row.Scan(&b.ID, &b.Name, &b.CreatedAt); err != nil {
			return err
		}
		brands = append(brands, b)
		return nil
	})
	if brands == nil {
		brands = []domain.Brand{}
	}
	return brands, err
}

func (r *catalogRepository) CreateBrand(ctx context.Context, b domain.Brand) error {
	return r.insertNamed(ctx, "brands", b.ID, b.Name, b.CreatedAt)
}

func (r *catalogRepository) ListCategories(ctx context.Context) ([]domain.Category, error) {
	var categories []domain.Category
	err := r.listNamed(ctx, "categories", func(row *sql.Rows) error {
		var c domain.Category
		if err := row.Scan(&c.ID, &c.Name, &c.CreatedAt); err != nil {
			return err
		}
		categories = append(categories, c)
		return nil
	})
	if categories == nil {
		categories = []domain.Category{}
	}
	return categories, err
}

func (r *catalogRepository) CreateCategory(ctx context.Context, c domain.Category) error {
	return r.insertNamed(ctx, "categories", c.ID, c.Name, c.CreatedAt)
}

func (r *catalogRepository) ListTags(ctx context.Context) ([]domain.Tag, error) {
	var tags []domain.Tag
	err := r.listNamed(ctx, "tags", func(row *sql.Rows) error {
		var t domain.Tag
		if err := row.Scan(&t.ID, &t.Name, &t.CreatedAt); err != nil {
			return err
		}
		tags = append(tags, t)
		return nil
	})
	if tags == nil {
		tags = []domain.Tag{}
	}
	return tags, err
}

func (r *catalogRepository) CreateTag(ctx context.Context, t domain.Tag) error {
	return r.insertNamed(ctx, "tags", t.ID, t.Name, t.CreatedAt)
}

// insertNamed вставляет запись справочника (бренд, категория, тег).
// Имя таблицы берётся только из констант пакета.
func (r *catalogRepository) insertNamed(ctx context.Context, table, id, name string, createdAt time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO `+table+` (id, name, created_at) VALUES ($1,$2,$3)`, id, name, createdAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateName
		}
		return fmt.Errorf("insert into %s: %w", table, err)
	}
	return nil
}

func (r *catalogRepository) listNamed(ctx context.Context, table string, scan func(*sql.Rows) error) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `SELECT id, name, created_at FROM `+table+` ORDER BY name ASC, id ASC`)
	if err != nil {
		return fmt.Errorf("list %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return fmt.Errorf("scan %s row: %w", table, err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate %s rows: %w", table, err)
	}
	return nil
}

func (r *catalogRepository) queryProducts(ctx context.Context, query string, args ...any) ([]domain.Product, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product row: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product rows: %w", err)
	}
	return products, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var (
		p              domain.Product
		gender         string
		images, tagsJS []byte
	)
	if err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.BrandID, &p.Category, &p.Concentration, &gender, &p.Size,
		&p.Price, &p.Discount, &p.Stock, &p.MainPic, &images, &p.IsFeatured, &p.Sales, &p.Rating,
		&tagsJS, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return domain.Product{}, err
	}
	p.Gender = domain.Gender(gender)
	if err := decodeStrings(images, &p.OtherImages); err != nil {
		return domain.Product{}, fmt.Errorf("decode other_images: %w", err)
	}
	if err := decodeStrings(tagsJS, &p.Tags); err != nil {
		return domain.Product{}, fmt.Errorf("decode tags: %w", err)
	}
	return p, nil
}

func encodeProductLists(p domain.Product) (string, string, error) {
	images, err := encodeStrings(p.OtherImages)
	if err != nil {
		return "", "", fmt.Errorf("encode other_images: %w", err)
	}
	tags, err := encodeStrings(p.Tags)
	if err != nil {
		return "", "", fmt.Errorf("encode tags: %w", err)
	}
	return images, tags, nil
}

// encodeStrings сериализует список в JSONB; nil сохраняется как [].
func encodeStrings(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodeStrings(raw []byte, dst *[]string) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func expectAffected(res sql.Result, notFound error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return notFound
	}
	return nil
}

var _ domain.CatalogRepository = (*catalogRepository)(nil)
