package mongodb

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type productDoc struct {
	ID            string    `bson:"_id"`
	Name          string    `bson:"name"`
	NameKey       string    `bson:"nameKey"`
	Description   string    `bson:"description"`
	BrandID       string    `bson:"brandId"`
	Category      string    `bson:"category"`
	Concentration string    `bson:"concentration"`
	Gender        string    `bson:"gender"`
	Size          int       `bson:"size"`
	Price         float64   `bson:"price"`
	Discount      float64   `bson:"discount"`
	Stock         int       `bson:"stock"`
	MainPic       string    `bson:"mainPic"`
	OtherImages   []string  `bson:"otherImages"`
	IsFeatured    bool      `bson:"isFeatured"`
	Sales         int       `bson:"sales"`
	Rating        float64   `bson:"rating"`
	Tags          []string  `bson:"tags"`
	CreatedAt     time.Time `bson:"createdAt"`
	UpdatedAt     time.Time `bson:"updatedAt"`
}

func productToDoc(p domain.Product) productDoc {
	return productDoc{
		ID: p.ID, Name: p.Name, NameKey: strings.ToLower(p.Name), Description: p.Description,
		BrandID: p.BrandID, Category: p.Category, Concentration: p.Concentration, Gender: string(p.Gender),
		Size: p.Size, Price: p.Price, Discount: p.Discount, Stock: p.Stock, MainPic: p.MainPic,
		OtherImages: append([]string{}, p.OtherImages...), IsFeatured: p.IsFeatured, Sales: p.Sales,
		Rating: p.Rating, Tags: append([]string{}, p.Tags...), CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt,
	}
}

func (d productDoc) toDomain() domain.Product {
	return domain.Product{
		ID: d.ID, Name: d.Name, Description: d.Description, BrandID: d.BrandID, Category: d.Category,
		Concentration: d.Concentration, Gender: domain.Gender(d.Gender), Size: d.Size, Price: d.Price,
		Discount: d.Discount, Stock: d.Stock, MainPic: d.MainPic, OtherImages: d.OtherImages,
		IsFeatured: d.IsFeatured, Sales: d.Sales, Rating: d.Rating, Tags: d.Tags,
		CreatedAt: d.CreatedAt.UTC(), UpdatedAt: d.UpdatedAt.UTC(),
	}
}

// namedDoc - общая форма брендов, категорий и тегов.
type namedDoc struct {
	ID        string    `bson:"_id"`
	Name      string    `bson:"name"`
	NameKey   string    `bson:"nameKey"`
	CreatedAt time.Time `bson:"createdAt"`
}

type catalogRepository struct {
	products   *mongo.Collection
	brands     *mongo.Collection
	categories *mongo.Collection
	tags       *mongo.Collection
}

// NewCatalogRepository создаёт MongoDB-реализацию CatalogRepository.
func NewCatalogRepository(store *Store) domain.CatalogRepository {
	db := store.Database()
	return &catalogRepository{
		products:   db.Collection(colProducts),
		brands:     db.Collection(colBrands),
		categories: db.Collection(colCategories),
		tags:       db.Collection(colTags),
	}
}

// productFilter переводит фильтр каталога в запрос MongoDB.
func productFilter(f domain.ProductFilter) bson.M {
	filter := bson.M{}
	if f.Name != "" {
		filter["name"] = f.Name
	}
	if f.Query != "" {
		pattern := caseInsensitive(regexp.QuoteMeta(f.Query))
		filter["$or"] = bson.A{bson.M{"name": pattern}, bson.M{"description": pattern}}
	}
	if len(f.Brands) > 0 {
		filter["brandId"] = bson.M{"$in": f.Brands}
	}
	if len(f.Concentrations) > 0 {
		filter["concentration"] = bson.M{"$in": f.Concentrations}
	}
	if len(f.Genders) > 0 {
		filter["gender"] = bson.M{"$in": f.Genders}
	}
	if len(f.Sizes) > 0 {
		filter["size"] = bson.M{"$in": f.Sizes}
	}
	price := bson.M{}
	if f.MinPrice != nil {
		price["$gte"] = *f.MinPrice
	}
	if f.MaxPrice != nil {
		price["$lte"] = *f.MaxPrice
	}
	if len(price) > 0 {
		filter["price"] = price
	}
	if f.OnlyDiscounted {
		filter["discount"] = bson.M{"$gt": 0}
	}
	return filter
}

// productSort повторяет порядок сортировки остальных хранилищ: ключ, затем _id.
func productSort(f domain.ProductFilter) bson.D {
	field := "sales"
	switch f.Sort {
	case domain.SortByAlpha:
		field = "name"
	case domain.SortByPrice:
		field = "price"
	case domain.SortByDate:
		field = "createdAt"
	case domain.SortByDiscount:
		field = "discount"
	}
	direction := 1
	if f.Descending {
		direction = -1
	}
	return bson.D{{Key: field, Value: direction}, {Key: "_id", Value: 1}}
}

func caseInsensitive(pattern string) bson.M {
	return bson.M{"$regex": pattern, "$options": "i"}
}

func (r *catalogRepository) ListProducts(ctx context.Context, filter domain.ProductFilter) (domain.ProductPage, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	filter = filter.Normalize()
	query := productFilter(filter)

	total, err := r.products.CountDocuments(ctx, query)
	if err != nil {
		return domain.ProductPage{}, fmt.Errorf("count products: %w", err)
	}

	page := domain.ProductPage{TotalCount: int(total), Products: []domain.Product{}}
	if total == 0 {
		return page, nil
	}

	opts := options.Find().
		SetSort(productSort(filter)).
		SetSkip(int64(filter.Offset())).
		SetLimit(int64(filter.Limit))
	products, err := r.findProducts(ctx, query, opts)
	if err != nil {
		return domain.ProductPage{}, err
	}
	page.Products = products
	return page, nil
}

func (r *catalogRepository) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var doc productDoc
	if err := r.products.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("find product: %w", err)
	}
	return doc.toDomain(), nil
}

func (r *catalogRepository) GetProducts(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	products, err := r.findProducts(ctx, bson.M{"_id": bson.M{"$in": ids}}, options.Find())
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
	// Префиксный поиск по нижнему регистру использует индекс nameKey.
	query := bson.M{"nameKey": bson.M{"$regex": "^" + regexp.QuoteMeta(strings.ToLower(prefix))}}
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}, {Key: "_id", Value: 1}}).SetLimit(int64(limit))
	return r.findProducts(ctx, query, opts)
}

func (r *catalogRepository) CreateProduct(ctx context.Context, p domain.Product) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := r.brands.FindOne(ctx, bson.M{"_id": p.BrandID}).Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.ErrBrandNotFound
		}
		return fmt.Errorf("check brand: %w", err)
	}

	if _, err := r.products.InsertOne(ctx, productToDoc(p)); err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (r *catalogRepository) UpdateProduct(ctx context.Context, p domain.Product) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.products.ReplaceOne(ctx, bson.M{"_id": p.ID}, productToDoc(p))
	if err != nil {
		return fmt.Errorf("replace product: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

func (r *catalogRepository) DeleteProduct(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.products.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

func (r *catalogRepository) AddSales(ctx context.Context, productID string, quantity int) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.products.UpdateOne(ctx, bson.M{"_id": productID}, bson.M{"$inc": bson.M{"sales": quantity}})
	if err != nil {
		return fmt.Errorf("add product sales: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

func (r *catalogRepository) GetBrand(ctx context.Context, id string) (domain.Brand, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var doc namedDoc
	if err := r.brands.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Brand{}, domain.ErrBrandNotFound
		}
		return domain.Brand{}, fmt.Errorf("find brand: %w", err)
	}
	return domain.Brand{ID: doc.ID, Name: doc.Name, CreatedAt: doc.CreatedAt.UTC()}, nil
}

func (r *catalogRepository) ListBrands(ctx context.Context) ([]domain.Brand, error) {
	docs, err := listNamed(ctx, r.brands)
	if err != nil {
		return nil, err
	}
	brands := make([]domain.Brand, 0, len(docs))
	for _, d := range docs {
		brands = append(brands, domain.Brand{ID: d.ID, Name: d.Name, CreatedAt: d.CreatedAt.UTC()})
	}
	return brands, nil
}

func (r *catalogRepository) CreateBrand(ctx context.Context, b domain.Brand) error {
	return insertNamed(ctx, r.brands, namedDoc{ID: b.ID, Name: b.Name, CreatedAt: b.CreatedAt})
}

func (r *catalogRepository) ListCategories(ctx context.Context) ([]domain.Category, error) {
	docs, err := listNamed(ctx, r.categories)
	if err != nil {
		return nil, err
	}
	categories := make([]domain.Category, 0, len(docs))
	for _, d := range docs {
		categories = append(categories, domain.Category{ID: d.ID, Name: d.Name, CreatedAt: d.CreatedAt.UTC()})
	}
	return categories, nil
}

func (r *catalogRepository) CreateCategory(ctx context.Context, c domain.Category) error {
	return insertNamed(ctx, r.categories, namedDoc{ID: c.ID, Name: c.Name, CreatedAt: c.CreatedAt})
}

func (r *catalogRepository) ListTags(ctx context.Context) ([]domain.Tag, error) {
	docs, err := listNamed(ctx, r.tags)
	if err != nil {
		return nil, err
	}
	tags := make([]domain.Tag, 0, len(docs))
	for _, d := range docs {
		tags = append(tags, domain.Tag{ID: d.ID, Name: d.Name, CreatedAt: d.CreatedAt.UTC()})
	}
	return tags, nil
}

func (r *catalogRepository) CreateTag(ctx context.Context, t domain.Tag) error {
	return insertNamed(ctx, r.tags, namedDoc{ID: t.ID, Name: t.Name, CreatedAt: t.CreatedAt})
}

func (r *catalogRepository) findProducts(ctx context.Context, query bson.M, opts *options.FindOptions) ([]domain.Product, error) {
	cur, err := r.products.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("find products: %w", err)
	}
	defer cur.Close(ctx)

	var docs []productDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}

	products := make([]domain.Product, 0, len(docs))
	for _, d := range docs {
		products = append(products, d.toDomain())
	}
	return products, nil
}

func insertNamed(ctx context.Context, col *mongo.Collection, doc namedDoc) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	doc.NameKey = strings.ToLower(doc.Name)
	if _, err := col.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrDuplicateName
		}
		return fmt.Errorf("insert into %s: %w", col.Name(), err)
	}
	return nil
}

func listNamed(ctx context.Context, col *mongo.Collection) ([]namedDoc, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := col.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", col.Name(), err)
	}
	defer cur.Close(ctx)

	var docs []namedDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode %s: %w", col.Name(), err)
	}
	return docs, nil
}

var _ domain.CatalogRepository = (*catalogRepository)(nil)
