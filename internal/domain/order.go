package domain

import (
	"crypto/rand"
	"math"
	"math/big"
	"regexp"
	"strings"
	"time"
)

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusProcessing - начальный статус, присваивается при создании.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped - заказ передан в доставку.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered - заказ вручён, терминальный статус.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCanceled - заказ отменён, терминальный статус.
	OrderStatusCanceled OrderStatus = "canceled"
)

// orderTransitions - разрешённые переходы. Отсутствие ключа означает терминальный статус.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCanceled},
	OrderStatusShipped:    {OrderStatusDelivered, OrderStatusCanceled},
}

// Valid проверяет, что статус входит в перечисление.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered, OrderStatusCanceled:
		return true
	default:
		return false
	}
}

// Terminal сообщает, что из статуса нет переходов.
func (s OrderStatus) Terminal() bool {
	_, ok := orderTransitions[s]
	return !ok
}

// CanTransitionTo проверяет ребро машины состояний.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// PaymentMethod - способ оплаты заказа.
type PaymentMethod string

const (
	// PaymentMethodCash - оплата при получении.
	PaymentMethodCash PaymentMethod = "cash"
	// PaymentMethodGateway - онлайн-оплата через платёжный шлюз.
	PaymentMethodGateway PaymentMethod = "paystack"
)

// Valid проверяет, что способ оплаты поддерживается.
func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodCash || m == PaymentMethodGateway
}

// ShipmentInfo - данные доставки, все поля обязательны.
type ShipmentInfo struct {
	Name        string
	Address     string
	City        string
	PhoneNumber string
	Email       string
}

var (
	emailPattern = regexp.MustCompile(`^\S+@\S+\.\S+$`)
	phonePattern = regexp.MustCompile(`^\+?\d{10,15}$`)
)

// ValidEmail проверяет формат адреса почты.
func ValidEmail(email string) bool { return emailPattern.MatchString(email) }

// ValidPhone проверяет, что номер состоит из 10–15 цифр с необязательным "+".
func ValidPhone(phone string) bool { return phonePattern.MatchString(phone) }

// Validate возвращает ошибки по полям формы доставки.
func (s ShipmentInfo) Validate() error {
	vErr := &ValidationError{}
	if strings.TrimSpace(s.Name) == "" {
		vErr.Add("shipmentInfo.name", "Name is required")
	}
	if strings.TrimSpace(s.Address) == "" {
		vErr.Add("shipmentInfo.address", "Address is required")
	}
	if strings.TrimSpace(s.City) == "" {
		vErr.Add("shipmentInfo.city", "City is required")
	}
	switch phone := strings.TrimSpace(s.PhoneNumber); {
	case phone == "":
		vErr.Add("shipmentInfo.phoneNumber", "Phone is required")
	case !ValidPhone(phone):
		vErr.Add("shipmentInfo.phoneNumber", "Invalid phone number")
	}
	switch email := strings.TrimSpace(s.Email); {
	case email == "":
		vErr.Add("shipmentInfo.email", "Email is required")
	case !ValidEmail(email):
		vErr.Add("shipmentInfo.email", "Invalid email format")
	}
	return vErr.OrNil()
}

// OrderLineItem - позиция заказа с ценой, зафиксированной в момент оформления.
type OrderLineItem struct {
	ProductID string
	Name      string
	Quantity  int
	// ListPrice и Discount - значения карточки товара на момент оформления.
	ListPrice float64
	Discount  float64
	// Price - итоговая цена единицы, по ней считается сумма заказа.
	Price float64
}

// Order - неизменяемый снимок корзины плюс изменяемый статус.
type Order struct {
	ID               string
	TrackingID       string
	UserID           string
	Items            []OrderLineItem
	TotalAmount      float64
	Status           OrderStatus
	PaymentMethod    PaymentMethod
	PaymentReference string
	Shipment         ShipmentInfo
	Version          int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// amountEpsilon - допуск сравнения сумм с плавающей точкой.
const amountEpsilon = 1e-6

// ComputeTotal пересчитывает сумму по зафиксированным ценам.
func (o *Order) ComputeTotal() float64 {
	entries := make([]PriceEntry, 0, len(o.Items))
	for _, item := range o.Items {
		entries = append(entries, PriceEntry{Price: item.Price, Quantity: item.Quantity})
	}
	return Totals(entries).Amount
}

// ItemCount возвращает суммарное количество единиц.
func (o *Order) ItemCount() int {
	var n int
	for _, item := range o.Items {
		n += item.Quantity
	}
	return n
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.UserID == "" {
		errs = append(errs, ErrUserRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if o.TotalAmount < 0 {
		errs = append(errs, ErrAmountNegative)
	}
	if !o.PaymentMethod.Valid() {
		errs = append(errs, ErrPaymentMethodInvalid)
	}
	if !o.Status.Valid() {
		errs = append(errs, ErrStatusInvalid)
	}
	for _, item := range o.Items {
		if item.Quantity < 1 {
			errs = append(errs, ErrQuantityInvalid)
		}
		if item.Price < 0 {
			errs = append(errs, ErrItemPriceInvalid)
		}
	}
	// Сверяем сумму заказа с суммой позиций: qty * price.
	if math.Abs(o.ComputeTotal()-o.TotalAmount) > amountEpsilon {
		errs = append(errs, ErrAmountMismatch)
	}
	if err := o.Shipment.Validate(); err != nil {
		errs = append(errs, err)
	}

	return errs
}

// TransitionTo меняет только статус и время обновления.
func (o *Order) TransitionTo(next OrderStatus, now time.Time) error {
	if !next.Valid() {
		return ErrStatusInvalid
	}
	if !o.Status.CanTransitionTo(next) {
		return ErrInvalidStatusTransition
	}
	o.Status = next
	o.UpdatedAt = now
	return nil
}

// SnapshotLines фиксирует текущие цены разрешённых строк корзины.
// Удалённые товары в снимок не попадают.
func SnapshotLines(lines []CartLine) []OrderLineItem {
	items := make([]OrderLineItem, 0, len(lines))
	for _, line := range lines {
		if line.Ref.IsDeleted() || line.Quantity < 1 {
			continue
		}
		p := line.Ref.Product
		items = append(items, OrderLineItem{
			ProductID: p.ID,
			Name:      p.Name,
			Quantity:  line.Quantity,
			ListPrice: p.Price,
			Discount:  p.Discount,
			Price:     p.EffectivePrice(),
		})
	}
	return items
}

const trackingIDDigits = 12

// NewTrackingID генерирует числовой трек-номер, отличный от внутреннего ID.
func NewTrackingID() string {
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(trackingIDDigits-1), nil)
	n, err := rand.Int(rand.Reader, new(big.Int).Mul(limit, big.NewInt(9)))
	if err != nil {
		// crypto/rand на поддерживаемых платформах не возвращает ошибок.
		panic(err)
	}
	// Смещение гарантирует ровно trackingIDDigits цифр без ведущих нулей.
	return n.Add(n, limit).String()
}
