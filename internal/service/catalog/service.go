package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const autocompleteLimit = 5

// Service - операции витрины и администрирования каталога.
type Service struct {
	repo   domain.CatalogRepository
	logger *log.Entry
	now    func() time.Time
}

// NewService создаёт сервис каталога.
func NewService(repo domain.CatalogRepository, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "catalog")
	}
	return &Service{
		repo:   repo,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ListProducts возвращает страницу каталога по фильтрам.
func (s *Service) ListProducts(ctx context.Context, filter domain.ProductFilter) (domain.ProductPage, error) {
	return s.repo.ListProducts(ctx, filter.Normalize())
}

// GetProduct возвращает товар с раскрытым брендом. Пропавший бренд не считается ошибкой.
func (s *Service) GetProduct(ctx context.Context, id string) (domain.ProductDetails, error) {
	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.ProductDetails{}, err
	}

	details := domain.ProductDetails{Product: product}
	brand, err := s.repo.GetBrand(ctx, product.BrandID)
	switch {
	case err == nil:
		details.Brand = &brand
	case errors.Is(err, domain.ErrBrandNotFound):
		s.logger.WithFields(log.Fields{"product_id": id, "brand_id": product.BrandID}).Warn("product references missing brand")
	default:
		return domain.ProductDetails{}, err
	}
	return details, nil
}

// TopDeals - товары со скидкой, самые большие скидки первыми.
func (s *Service) TopDeals(ctx context.Context, page, limit int) (domain.ProductPage, error) {
	return s.ListProducts(ctx, domain.ProductFilter{
		Page:           page,
		Limit:          limit,
		OnlyDiscounted: true,
		Sort:           domain.SortByDiscount,
		Descending:     true,
	})
}

// TopSelling - самые продаваемые товары.
func (s *Service) TopSelling(ctx context.Context, page, limit int) (domain.ProductPage, error) {
	return s.ListProducts(ctx, domain.ProductFilter{
		Page:       page,
		Limit:      limit,
		Sort:       domain.SortBySales,
		Descending: true,
	})
}

// Search ищет подстроку в названии и описании.
func (s *Service) Search(ctx context.Context, query string, page, limit int) (domain.ProductPage, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return domain.ProductPage{}, domain.NewValidationError("q", "Search query is required")
	}
	return s.ListProducts(ctx, domain.ProductFilter{
		Page:       page,
		Limit:      limit,
		Query:      query,
		Sort:       domain.SortBySales,
		Descending: true,
	})
}

// Autocomplete возвращает до пяти товаров, чьё имя начинается с query.
func (s *Service) Autocomplete(ctx context.Context, query string) ([]domain.Product, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []domain.Product{}, nil
	}
	return s.repo.Autocomplete(ctx, query, autocompleteLimit)
}

func (s *Service) ListBrands(ctx context.Context) ([]domain.Brand, error) {
	return s.repo.ListBrands(ctx)
}

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.repo.ListCategories(ctx)
}

func (s *Service) ListTags(ctx context.Context) ([]domain.Tag, error) {
	return s.repo.ListTags(ctx)
}

// CreateBrand добавляет бренд; имя уникально без учёта регистра.
func (s *Service) CreateBrand(ctx context.Context, name string) (domain.Brand, error) {
	name, err := requireName(name)
	if err != nil {
		return domain.Brand{}, err
	}
	brand := domain.Brand{ID: uuid.NewString(), Name: name, CreatedAt: s.now()}
	if err := s.repo.CreateBrand(ctx, brand); err != nil {
		return domain.Brand{}, err
	}
	return brand, nil
}

// CreateCategory добавляет категорию.
func (s *Service) CreateCategory(ctx context.Context, name string) (domain.Category, error) {
	name, err := requireName(name)
	if err != nil {
		return domain.Category{}, err
	}
	category := domain.Category{ID: uuid.NewString(), Name: name, CreatedAt: s.now()}
	if err := s.repo.CreateCategory(ctx, category); err != nil {
		return domain.Category{}, err
	}
	return category, nil
}

// CreateTag добавляет метку.
func (s *Service) CreateTag(ctx context.Context, name string) (domain.Tag, error) {
	name, err := requireName(name)
	if err != nil {
		return domain.Tag{}, err
	}
	tag := domain.Tag{ID: uuid.NewString(), Name: name, CreatedAt: s.now()}
	if err := s.repo.CreateTag(ctx, tag); err != nil {
		return domain.Tag{}, err
	}
	return tag, nil
}

// CreateProduct проверяет карточку и сохраняет её с новым идентификатором.
func (s *Service) CreateProduct(ctx context.Context, p domain.Product) (domain.Product, error) {
	p.ID = uuid.NewString()
	p.Name = strings.TrimSpace(p.Name)
	p.CreatedAt = s.now()
	p.UpdatedAt = p.CreatedAt
	if err := p.Validate(); err != nil {
		return domain.Product{}, err
	}

	if err := s.repo.CreateProduct(ctx, p); err != nil {
		if errors.Is(err, domain.ErrBrandNotFound) {
			return domain.Product{}, domain.NewValidationError("brand", "Brand not found")
		}
		return domain.Product{}, err
	}
	s.logger.WithFields(log.Fields{"product_id": p.ID, "name": p.Name}).Info("product created")
	return p, nil
}

// UpdateProduct применяет частичное обновление. Корзины и заказы не затрагиваются:
// заказы хранят снимок цен, корзины разрешают товар при чтении.
func (s *Service) UpdateProduct(ctx context.Context, id string, patch ProductPatch) (domain.Product, error) {
	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	patch.Apply(&product)
	product.UpdatedAt = s.now()
	if err := product.Validate(); err != nil {
		return domain.Product{}, err
	}

	if err := s.repo.UpdateProduct(ctx, product); err != nil {
		if errors.Is(err, domain.ErrBrandNotFound) {
			return domain.Product{}, domain.NewValidationError("brand", "Brand not found")
		}
		return domain.Product{}, fmt.Errorf("update product %s: %w", id, err)
	}
	return product, nil
}

// DeleteProduct удаляет товар из каталога. Ссылки в корзинах остаются и
// разрешаются как удалённые товары.
func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.logger.WithField("product_id", id).Info("product deleted")
	return nil
}

func requireName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", domain.NewValidationError("name", "Name is required")
	}
	return name, nil
}
