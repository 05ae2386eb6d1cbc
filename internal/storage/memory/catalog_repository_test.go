package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func seedCatalog(t *testing.T) *memory.CatalogRepository {
	t.Helper()

	repo := memory.NewCatalogRepository()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.CreateBrand(ctx, domain.Brand{ID: "b-1", Name: "Maison", CreatedAt: base}))
	require.NoError(t, repo.CreateBrand(ctx, domain.Brand{ID: "b-2", Name: "Atelier", CreatedAt: base}))

	products := []domain.Product{
		{ID: "p-1", Name: "Amber Oud", BrandID: "b-1", Gender: domain.GenderUnisex, Concentration: "EDP", Size: 100, Price: 1000, Discount: 10, Sales: 5, CreatedAt: base},
		{ID: "p-2", Name: "Bergamot", BrandID: "b-2", Gender: domain.GenderMen, Concentration: "EDT", Size: 50, Price: 500, Sales: 20, CreatedAt: base.Add(time.Hour)},
		{ID: "p-3", Name: "Cedar Mist", BrandID: "b-1", Gender: domain.GenderWomen, Concentration: "EDP", Size: 100, Price: 750, Discount: 30, Sales: 1, CreatedAt: base.Add(2 * time.Hour)},
		{ID: "p-4", Name: "amber light", Description: "fresh citrus", BrandID: "b-2", Gender: domain.GenderWomen, Concentration: "EDC", Size: 30, Price: 200, Sales: 11, CreatedAt: base.Add(3 * time.Hour)},
	}
	for _, p := range products {
		require.NoError(t, repo.CreateProduct(ctx, p))
	}
	return repo
}

func productIDs(products []domain.Product) []string {
	ids := make([]string, 0, len(products))
	for _, p := range products {
		ids = append(ids, p.ID)
	}
	return ids
}

func TestCatalogRepository_ListProductsFilters(t *testing.T) {
	repo := seedCatalog(t)
	ctx := context.Background()
	minPrice, maxPrice := 300.0, 900.0

	cases := []struct {
		name   string
		filter domain.ProductFilter
		want   []string
		total  int
	}{
		{name: "default sort by sales asc", filter: domain.ProductFilter{}, want: []string{"p-3", "p-1", "p-4", "p-2"}, total: 4},
		{name: "brands", filter: domain.ProductFilter{Brands: []string{"b-1"}, Sort: domain.SortByAlpha}, want: []string{"p-1", "p-3"}, total: 2},
		{name: "gender and size", filter: domain.ProductFilter{Genders: []string{"Women"}, Sizes: []int{100}}, want: []string{"p-3"}, total: 1},
		{name: "price range", filter: domain.ProductFilter{MinPrice: &minPrice, MaxPrice: &maxPrice, Sort: domain.SortByPrice}, want: []string{"p-2", "p-3"}, total: 2},
		{name: "concentration desc by date", filter: domain.ProductFilter{Concentrations: []string{"EDP"}, Sort: domain.SortByDate, Descending: true}, want: []string{"p-3", "p-1"}, total: 2},
		{name: "exact name", filter: domain.ProductFilter{Name: "Bergamot"}, want: []string{"p-2"}, total: 1},
		{name: "query matches description", filter: domain.ProductFilter{Query: "citrus"}, want: []string{"p-4"}, total: 1},
		{name: "only discounted by discount desc", filter: domain.ProductFilter{OnlyDiscounted: true, Sort: domain.SortByDiscount, Descending: true}, want: []string{"p-3", "p-1"}, total: 2},
		{name: "pagination", filter: domain.ProductFilter{Page: 2, Limit: 3}, want: []string{"p-2"}, total: 4},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			page, err := repo.ListProducts(ctx, tc.filter)
			require.NoError(t, err)
			require.Equal(t, tc.total, page.TotalCount)
			require.Equal(t, tc.want, productIDs(page.Products))
		})
	}
}

func TestCatalogRepository_AutocompleteIsCaseInsensitivePrefix(t *testing.T) {
	repo := seedCatalog(t)

	found, err := repo.Autocomplete(context.Background(), "AMB", 5)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"p-1", "p-4"}, productIDs(found))

	limited, err := repo.Autocomplete(context.Background(), "a", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
}

func TestCatalogRepository_ProductCRUD(t *testing.T) {
	repo := seedCatalog(t)
	ctx := context.Background()

	p, err := repo.GetProduct(ctx, "p-1")
	require.NoError(t, err)
	p.Price = 1200
	require.NoError(t, repo.UpdateProduct(ctx, p))

	updated, err := repo.GetProduct(ctx, "p-1")
	require.NoError(t, err)
	require.Equal(t, 1200.0, updated.Price)

	require.NoError(t, repo.DeleteProduct(ctx, "p-1"))
	_, err = repo.GetProduct(ctx, "p-1")
	require.True(t, errors.Is(err, domain.ErrProductNotFound))
	require.ErrorIs(t, repo.UpdateProduct(ctx, p), domain.ErrProductNotFound)
	require.ErrorIs(t, repo.DeleteProduct(ctx, "p-1"), domain.ErrProductNotFound)

	orphan := domain.Product{ID: "p-9", Name: "Orphan", BrandID: "missing"}
	require.ErrorIs(t, repo.CreateProduct(ctx, orphan), domain.ErrBrandNotFound)

	found, err := repo.GetProducts(ctx, []string{"p-1", "p-2"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Contains(t, found, "p-2")
}

func TestCatalogRepository_NamesAreUnique(t *testing.T) {
	repo := memory.NewCatalogRepository()
	ctx := context.Background()

	require.NoError(t, repo.CreateBrand(ctx, domain.Brand{ID: "b-1", Name: "Maison"}))
	require.ErrorIs(t, repo.CreateBrand(ctx, domain.Brand{ID: "b-2", Name: "maison"}), domain.ErrDuplicateName)
	require.NoError(t, repo.CreateCategory(ctx, domain.Category{ID: "c-1", Name: "Woody"}))
	require.ErrorIs(t, repo.CreateCategory(ctx, domain.Category{ID: "c-2", Name: "Woody"}), domain.ErrDuplicateName)
	require.NoError(t, repo.CreateTag(ctx, domain.Tag{ID: "t-1", Name: "new"}))
	require.ErrorIs(t, repo.CreateTag(ctx, domain.Tag{ID: "t-2", Name: "NEW"}), domain.ErrDuplicateName)

	brands, err := repo.ListBrands(ctx)
	require.NoError(t, err)
	require.Len(t, brands, 1)

	_, err = repo.GetBrand(ctx, "b-2")
	require.ErrorIs(t, err, domain.ErrBrandNotFound)
}
