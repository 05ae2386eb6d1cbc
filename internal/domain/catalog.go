package domain

import (
	"math"
	"strings"
	"time"
)

// Gender - целевая аудитория аромата.
type Gender string

const (
	GenderMen    Gender = "Men"
	GenderWomen  Gender = "Women"
	GenderUnisex Gender = "Unisex"
)

// Valid проверяет, что значение входит в допустимый набор.
func (g Gender) Valid() bool {
	switch g {
	case GenderMen, GenderWomen, GenderUnisex:
		return true
	default:
		return false
	}
}

// Product - карточка товара в каталоге.
type Product struct {
	ID            string
	Name          string
	Description   string
	BrandID       string
	Category      string
	Concentration string
	Gender        Gender
	// Size - объём флакона в мл, 0 если не указан.
	Size        int
	Price       float64
	Discount    float64
	Stock       int
	MainPic     string
	OtherImages []string
	IsFeatured  bool
	Sales       int
	Rating      float64
	Tags        []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// EffectivePrice возвращает цену единицы товара с учётом скидки.
func (p Product) EffectivePrice() float64 {
	return EffectivePrice(p.Price, p.Discount)
}

// Validate проверяет инварианты карточки товара.
func (p Product) Validate() error {
	vErr := &ValidationError{}
	if strings.TrimSpace(p.Name) == "" {
		vErr.Add("name", "Name is required")
	}
	if p.BrandID == "" {
		vErr.Add("brand", "A Brand is required")
	}
	if !p.Gender.Valid() {
		vErr.Add("gender", "Gender is required")
	}
	if strings.TrimSpace(p.Concentration) == "" {
		vErr.Add("concentration", "Concentration is required")
	}
	if strings.TrimSpace(p.Category) == "" {
		vErr.Add("category", "Category is required")
	}
	if strings.TrimSpace(p.MainPic) == "" {
		vErr.Add("mainPic", "mainPic is required")
	}
	if p.Price < 0 {
		vErr.Add("price", "Price must be non-negative")
	}
	if p.Discount < 0 || p.Discount > 100 {
		vErr.Add("discount", "Discount must be between 0 and 100")
	}
	if p.Stock < 0 {
		vErr.Add("stock", "Stock must be non-negative")
	}
	if p.Rating < 0 || p.Rating > 5 {
		vErr.Add("rating", "Rating must be between 0 and 5")
	}
	return vErr.OrNil()
}

// Brand - производитель товара.
type Brand struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Category - категория каталога.
type Category struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Tag - произвольная метка товара.
type Tag struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// ProductSort - поле сортировки выдачи.
type ProductSort string

const (
	SortBySales ProductSort = ""
	SortByAlpha ProductSort = "alpha"
	SortByPrice ProductSort = "price"
	SortByDate  ProductSort = "date"
	// SortByDiscount используется витриной «лучшие скидки».
	SortByDiscount ProductSort = "discount"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
	// MaxPage держит (page-1)*limit в пределах int32 на любой платформе.
	MaxPage = math.MaxInt32 / maxPageLimit
)

// ProductFilter описывает фильтры, сортировку и пагинацию списка товаров.
type ProductFilter struct {
	Page           int
	Limit          int
	Name           string
	Query          string
	Brands         []string
	Concentrations []string
	Genders        []string
	Sizes          []int
	MinPrice       *float64
	MaxPrice       *float64
	OnlyDiscounted bool
	Sort           ProductSort
	Descending     bool
}

// Normalize приводит пагинацию к допустимым границам.
func (f ProductFilter) Normalize() ProductFilter {
	f.Page, f.Limit = NormalizePage(f.Page, f.Limit)
	switch f.Sort {
	case SortByAlpha, SortByPrice, SortByDate, SortByDiscount:
	default:
		f.Sort = SortBySales
	}
	return f
}

// Offset - сколько записей пропустить.
func (f ProductFilter) Offset() int {
	return PageOffset(f.Page, f.Limit)
}

// Matches проверяет товар против фильтра; используется in-memory хранилищем.
func (f ProductFilter) Matches(p Product) bool {
	if f.Name != "" && p.Name != f.Name {
		return false
	}
	if f.Query != "" {
		q := strings.ToLower(f.Query)
		if !strings.Contains(strings.ToLower(p.Name), q) && !strings.Contains(strings.ToLower(p.Description), q) {
			return false
		}
	}
	if len(f.Brands) > 0 && !contains(f.Brands, p.BrandID) {
		return false
	}
	if len(f.Concentrations) > 0 && !contains(f.Concentrations, p.Concentration) {
		return false
	}
	if len(f.Genders) > 0 && !contains(f.Genders, string(p.Gender)) {
		return false
	}
	if len(f.Sizes) > 0 {
		found := false
		for _, s := range f.Sizes {
			if s == p.Size {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.MinPrice != nil && p.Price < *f.MinPrice {
		return false
	}
	if f.MaxPrice != nil && p.Price > *f.MaxPrice {
		return false
	}
	if f.OnlyDiscounted && p.Discount <= 0 {
		return false
	}
	return true
}

// Less сравнивает товары согласно сортировке фильтра.
func (f ProductFilter) Less(a, b Product) bool {
	var less, equal bool
	switch f.Sort {
	case SortByAlpha:
		less, equal = a.Name < b.Name, a.Name == b.Name
	case SortByPrice:
		less, equal = a.Price < b.Price, a.Price == b.Price
	case SortByDate:
		less, equal = a.CreatedAt.Before(b.CreatedAt), a.CreatedAt.Equal(b.CreatedAt)
	case SortByDiscount:
		less, equal = a.Discount < b.Discount, a.Discount == b.Discount
	default:
		less, equal = a.Sales < b.Sales, a.Sales == b.Sales
	}
	if equal {
		// Стабильный порядок для одинаковых ключей.
		return a.ID < b.ID
	}
	if f.Descending {
		return !less
	}
	return less
}

// ProductPage - страница выдачи каталога.
type ProductPage struct {
	Products   []Product
	TotalCount int
}

// ProductDetails - товар с раскрытой ссылкой на бренд.
type ProductDetails struct {
	Product Product
	Brand   *Brand
}

// NormalizePage приводит page/limit к допустимым значениям.
func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	if page > MaxPage {
		page = MaxPage
	}
	return page, limit
}

// PageOffset считает смещение для нормализованных page/limit.
func PageOffset(page, limit int) int {
	page, limit = NormalizePage(page, limit)
	return (page - 1) * limit
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
