package domain

import "context"

// CatalogRepository описывает хранилище товаров, брендов, категорий и тегов.
type CatalogRepository interface {
	// ListProducts возвращает страницу товаров и общее число совпадений.
	ListProducts(ctx context.Context, filter ProductFilter) (ProductPage, error)
	// GetProduct возвращает товар или ErrProductNotFound.
	GetProduct(ctx context.Context, id string) (Product, error)
	// GetProducts возвращает найденные товары по идентификаторам; отсутствующие пропускаются.
	GetProducts(ctx context.Context, ids []string) (map[string]Product, error)
	// Autocomplete ищет товары по префиксу имени без учёта регистра.
	Autocomplete(ctx context.Context, prefix string, limit int) ([]Product, error)
	CreateProduct(ctx context.Context, p Product) error
	UpdateProduct(ctx context.Context, p Product) error
	DeleteProduct(ctx context.Context, id string) error
	// AddSales увеличивает счётчик продаж товара; отсутствующий товар - ErrProductNotFound.
	AddSales(ctx context.Context, productID string, quantity int) error

	GetBrand(ctx context.Context, id string) (Brand, error)
	ListBrands(ctx context.Context) ([]Brand, error)
	// CreateBrand возвращает ErrDuplicateName при совпадении имени.
	CreateBrand(ctx context.Context, b Brand) error
	ListCategories(ctx context.Context) ([]Category, error)
	CreateCategory(ctx context.Context, c Category) error
	ListTags(ctx context.Context) ([]Tag, error)
	CreateTag(ctx context.Context, t Tag) error
}

// CartRepository хранит корзины, по одной на пользователя.
type CartRepository interface {
	// Create сохраняет новую корзину; повторное создание не перезаписывает существующую.
	Create(ctx context.Context, cart Cart) error
	// Get возвращает корзину пользователя или ErrCartNotFound.
	Get(ctx context.Context, userID string) (Cart, error)
	// Save применяет изменения при совпадении версии, иначе ErrCartVersionConflict.
	Save(ctx context.Context, cart Cart) (Cart, error)
}

// OrderFilter - пагинация и фильтр списка заказов.
type OrderFilter struct {
	// UserID пустой для администратора: тогда возвращаются все заказы.
	UserID string
	Status OrderStatus
	Page   int
	Limit  int
}

// OrderPage - страница заказов.
type OrderPage struct {
	Orders     []Order
	TotalCount int
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ. Возвращает ErrDuplicatePaymentReference,
	// ErrTrackingIDConflict или ErrOrderExists при нарушении уникальности.
	Create(ctx context.Context, order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(ctx context.Context, id string) (Order, error)
	// GetByTrackingID ищет заказ по трек-номеру.
	GetByTrackingID(ctx context.Context, trackingID string) (Order, error)
	// List возвращает заказы по фильтру, новые первыми.
	List(ctx context.Context, filter OrderFilter) (OrderPage, error)
	// Save применяет обновления к заказу с учётом optimistic locking.
	Save(ctx context.Context, order Order) error
	// Delete удаляет заказ; используется только компенсацией оформления.
	Delete(ctx context.Context, id string) error
}

// UserRepository хранит учётные записи.
type UserRepository interface {
	// Create возвращает ErrEmailTaken, если email уже зарегистрирован.
	Create(ctx context.Context, user User) error
	Get(ctx context.Context, id string) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	// Delete используется компенсацией регистрации.
	Delete(ctx context.Context, id string) error
	SetFavorites(ctx context.Context, userID string, favorites []string) error
}
