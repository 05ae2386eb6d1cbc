package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// CatalogRepository - in-memory каталог для локальной разработки и тестов.
type CatalogRepository struct {
	mu         sync.RWMutex
	products   map[string]domain.Product
	brands     map[string]domain.Brand
	categories map[string]domain.Category
	tags       map[string]domain.Tag
}

// NewCatalogRepository создаёт пустой каталог.
func NewCatalogRepository() *CatalogRepository {
	return &CatalogRepository{
		products:   make(map[string]domain.Product),
		brands:     make(map[string]domain.Brand),
		categories: make(map[string]domain.Category),
		tags:       make(map[string]domain.Tag),
	}
}

func (r *CatalogRepository) ListProducts(_ context.Context, filter domain.ProductFilter) (domain.ProductPage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	filter = filter.Normalize()

	matched := make([]domain.Product, 0, len(r.products))
	for _, p := range r.products {
		if filter.Matches(p) {
			matched = append(matched, p)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return filter.Less(matched[i], matched[j]) })

	page := domain.ProductPage{TotalCount: len(matched), Products: []domain.Product{}}
	offset := filter.Offset()
	if offset >= len(matched) {
		return page, nil
	}
	end := offset + filter.Limit
	if end > len(matched) {
		end = len(matched)
	}
	for _, p := range matched[offset:end] {
		page.Products = append(page.Products, cloneProduct(p))
	}
	return page, nil
}

func (r *CatalogRepository) GetProduct(_ context.Context, id string) (domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.products[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return cloneProduct(p), nil
}

func (r *CatalogRepository) GetProducts(_ context.Context, ids []string) (map[string]domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := r.products[id]; ok {
			result[id] = cloneProduct(p)
		}
	}
	return result, nil
}

func (r *CatalogRepository) Autocomplete(_ context.Context, prefix string, limit int) ([]domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	prefix = strings.ToLower(prefix)
	result := make([]domain.Product, 0, limit)
	for _, p := range r.products {
		if strings.HasPrefix(strings.ToLower(p.Name), prefix) {
			result = append(result, cloneProduct(p))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *CatalogRepository) CreateProduct(_ context.Context, p domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.brands[p.BrandID]; !ok {
		return domain.ErrBrandNotFound
	}
	r.products[p.ID] = cloneProduct(p)
	return nil
}

func (r *CatalogRepository) UpdateProduct(_ context.Context, p domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.products[p.ID]; !ok {
		return domain.ErrProductNotFound
	}
	if _, ok := r.brands[p.BrandID]; !ok {
		return domain.ErrBrandNotFound
	}
	r.products[p.ID] = cloneProduct(p)
	return nil
}

func (r *CatalogRepository) DeleteProduct(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.products[id]; !ok {
		return domain.ErrProductNotFound
	}
	delete(r.products, id)
	return nil
}

func (r *CatalogRepository) AddSales(_ context.Context, productID string, quantity int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.products[productID]
	if !ok {
		return domain.ErrProductNotFound
	}
	p.Sales += quantity
	r.products[productID] = p
	return nil
}

func (r *CatalogRepository) GetBrand(_ context.Context, id string) (domain.Brand, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.brands[id]
	if !ok {
		return domain.Brand{}, domain.ErrBrandNotFound
	}
	return b, nil
}

func (r *CatalogRepository) ListBrands(_ context.Context) ([]domain.Brand, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Brand, 0, len(r.brands))
	for _, b := range r.brands {
		result = append(result, b)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (r *CatalogRepository) CreateBrand(_ context.Context, b domain.Brand) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.brands {
		if strings.EqualFold(existing.Name, b.Name) {
			return domain.ErrDuplicateName
		}
	}
	r.brands[b.ID] = b
	return nil
}

func (r *CatalogRepository) ListCategories(_ context.Context) ([]domain.Category, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Category, 0, len(r.categories))
	for _, c := range r.categories {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (r *CatalogRepository) CreateCategory(_ context.Context, c domain.Category) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.categories {
		if strings.EqualFold(existing.Name, c.Name) {
			return domain.ErrDuplicateName
		}
	}
	r.categories[c.ID] = c
	return nil
}

func (r *CatalogRepository) ListTags(_ context.Context) ([]domain.Tag, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Tag, 0, len(r.tags))
	for _, t := range r.tags {
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (r *CatalogRepository) CreateTag(_ context.Context, t domain.Tag) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.tags {
		if strings.EqualFold(existing.Name, t.Name) {
			return domain.ErrDuplicateName
		}
	}
	r.tags[t.ID] = t
	return nil
}

func cloneProduct(p domain.Product) domain.Product {
	p.OtherImages = append([]string(nil), p.OtherImages...)
	p.Tags = append([]string(nil), p.Tags...)
	return p
}

var _ domain.CatalogRepository = (*CatalogRepository)(nil)
