package domain

import "time"

// CartItem - позиция корзины: ссылка на товар и количество (>= 1).
type CartItem struct {
	ProductID string
	Quantity  int
}

// Cart - рабочий набор товаров пользователя. Создаётся один раз при регистрации,
// после оформления заказа очищается, но не удаляется.
type Cart struct {
	UserID    string
	Items     []CartItem
	Version   int64
	UpdatedAt time.Time
}

// NewCart возвращает пустую корзину пользователя.
func NewCart(userID string, now time.Time) Cart {
	return Cart{UserID: userID, Items: []CartItem{}, UpdatedAt: now}
}

// Has проверяет наличие товара в корзине.
func (c *Cart) Has(productID string) bool {
	return c.indexOf(productID) >= 0
}

// Toggle добавляет отсутствующий товар или убирает присутствующий.
// Повторное добавление не увеличивает количество.
func (c *Cart) Toggle(productID string, quantity int) error {
	if idx := c.indexOf(productID); idx >= 0 {
		c.removeAt(idx)
		return nil
	}
	if quantity == 0 {
		quantity = 1
	}
	if quantity < 1 {
		return ErrQuantityInvalid
	}
	c.Items = append(c.Items, CartItem{ProductID: productID, Quantity: quantity})
	return nil
}

// UpdateQuantity задаёт количество явно. Значения меньше 1 отклоняются.
func (c *Cart) UpdateQuantity(productID string, quantity int) error {
	if quantity < 1 {
		return ErrQuantityInvalid
	}
	idx := c.indexOf(productID)
	if idx < 0 {
		return ErrCartItemNotFound
	}
	c.Items[idx].Quantity = quantity
	return nil
}

// Remove убирает товар из корзины; отсутствие товара - не ошибка.
func (c *Cart) Remove(productID string) {
	if idx := c.indexOf(productID); idx >= 0 {
		c.removeAt(idx)
	}
}

// Clear очищает корзину после оформления заказа.
func (c *Cart) Clear() {
	c.Items = []CartItem{}
}

// Clone возвращает копию, не разделяющую срез позиций.
func (c Cart) Clone() Cart {
	items := make([]CartItem, len(c.Items))
	copy(items, c.Items)
	c.Items = items
	return c
}

func (c *Cart) indexOf(productID string) int {
	for i, item := range c.Items {
		if item.ProductID == productID {
			return i
		}
	}
	return -1
}

func (c *Cart) removeAt(idx int) {
	items := make([]CartItem, 0, len(c.Items)-1)
	items = append(items, c.Items[:idx]...)
	items = append(items, c.Items[idx+1:]...)
	c.Items = items
}

// ProductRef - ссылка на товар после разрешения: либо найденный товар,
// либо пометка, что товар удалён из каталога.
type ProductRef struct {
	ID      string
	Product *Product
}

// Resolved создаёт ссылку на найденный товар.
func Resolved(p Product) ProductRef {
	return ProductRef{ID: p.ID, Product: &p}
}

// Deleted создаёт ссылку на удалённый товар с исходным идентификатором.
func Deleted(id string) ProductRef {
	return ProductRef{ID: id}
}

// IsDeleted сообщает, что товар не найден в каталоге.
func (r ProductRef) IsDeleted() bool {
	return r.Product == nil
}

// CartLine - позиция корзины с разрешённым товаром.
type CartLine struct {
	Ref      ProductRef
	Quantity int
}

// PriceEntry переводит строку в вход для расчёта цены.
func (l CartLine) PriceEntry() PriceEntry {
	if l.Ref.IsDeleted() {
		return PriceEntry{Quantity: l.Quantity, Missing: true}
	}
	return PriceEntry{Price: l.Ref.Product.Price, Discount: l.Ref.Product.Discount, Quantity: l.Quantity}
}

// ResolveCart сопоставляет позиции корзины с товарами каталога.
func ResolveCart(cart Cart, products map[string]Product) []CartLine {
	lines := make([]CartLine, 0, len(cart.Items))
	for _, item := range cart.Items {
		ref := Deleted(item.ProductID)
		if p, ok := products[item.ProductID]; ok {
			ref = Resolved(p)
		}
		lines = append(lines, CartLine{Ref: ref, Quantity: item.Quantity})
	}
	return lines
}

// SummarizeLines считает итог по разрешённым строкам корзины.
func SummarizeLines(lines []CartLine) PriceSummary {
	entries := make([]PriceEntry, 0, len(lines))
	for _, l := range lines {
		entries = append(entries, l.PriceEntry())
	}
	return Totals(entries)
}

// ProductIDs возвращает идентификаторы товаров корзины.
func (c Cart) ProductIDs() []string {
	ids := make([]string, 0, len(c.Items))
	for _, item := range c.Items {
		ids = append(ids, item.ProductID)
	}
	return ids
}
