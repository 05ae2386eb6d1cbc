package domain

import (
	"errors"
	"sort"
	"strings"
)

var (
	// Ошибка отсутствующего владельца заказа.
	ErrUserRequired = errors.New("user_id is required")
	// Ошибка отсутствия хотя бы одного товара в заказе.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// Ошибка отрицательной суммы заказа.
	ErrAmountNegative = errors.New("total amount must be non-negative")
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// Ошибка несоответствия суммы заказа и сумм позиций.
	ErrAmountMismatch = errors.New("order amount does not match items sum")
	// Ошибка неизвестного способа оплаты.
	ErrPaymentMethodInvalid = errors.New("payment method is invalid")
	// Ошибка неизвестного статуса заказа.
	ErrStatusInvalid = errors.New("order status is invalid")

	// ErrProductNotFound возвращается, если товар отсутствует в каталоге.
	ErrProductNotFound = errors.New("product not found")
	// ErrBrandNotFound возвращается, если бренд не найден.
	ErrBrandNotFound = errors.New("brand not found")
	// ErrDuplicateName - имя бренда/категории/тега уже занято.
	ErrDuplicateName = errors.New("name already exists")
	// ErrCartNotFound - корзина пользователя не создана (пользователь не регистрировался).
	ErrCartNotFound = errors.New("cart not found")
	// ErrCartItemNotFound - товара нет в корзине.
	ErrCartItemNotFound = errors.New("cart item not found")
	// ErrCartEmpty - в корзине нет ни одной доступной позиции для оформления.
	ErrCartEmpty = errors.New("cart is empty")
	// ErrQuantityInvalid - количество меньше единицы.
	ErrQuantityInvalid = errors.New("quantity must be at least 1")
	// ErrCartVersionConflict сигнализирует о конкурентном изменении корзины.
	ErrCartVersionConflict = errors.New("cart version conflict")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrOrderExists - заказ с таким ID уже сохранён.
	ErrOrderExists = errors.New("order already exists")
	// ErrTrackingIDConflict - сгенерированный трек-номер уже занят.
	ErrTrackingIDConflict = errors.New("tracking id already taken")
	// ErrDuplicatePaymentReference - платёжная ссылка уже использована другим заказом.
	ErrDuplicatePaymentReference = errors.New("payment reference already used")
	// ErrInvalidStatusTransition - переход статуса не разрешён машиной состояний.
	ErrInvalidStatusTransition = errors.New("invalid order status transition")
	// ErrPaymentNotConfirmed - платёжный шлюз не подтвердил оплату по ссылке.
	ErrPaymentNotConfirmed = errors.New("payment not confirmed")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrEmailTaken - пользователь с таким email уже существует.
	ErrEmailTaken = errors.New("email already exists")
	// ErrInvalidCredentials - неверный email или пароль.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthenticated - запрос без валидной сессии.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden - у пользователя нет прав администратора.
	ErrForbidden = errors.New("insufficient permission")
	// ErrOutboxPublish - ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
	// ErrOutboxMessageNotFound - сообщение outbox не найдено.
	ErrOutboxMessageNotFound = errors.New("outbox message not found")

	// ErrIdempotencyKeyRequired - пустой ключ идемпотентности.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyRequestHashRequired - пустой хеш тела запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyAlreadyExists - ключ уже зарегистрирован.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyHashMismatch - ключ переиспользован с другим телом запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency key reused with different request")
	// ErrIdempotencyKeyNotFound - ключ не найден или истёк.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
)

// ValidationError собирает ошибки валидации по полям.
// Поле -> человекочитаемое сообщение, пригодное для вывода в форме.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError создаёт ошибку с одним полем.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

// Add добавляет замечание по полю; первое сообщение для поля сохраняется.
func (e *ValidationError) Add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, ok := e.Fields[field]; ok {
		return
	}
	e.Fields[field] = message
}

// Empty сообщает, что замечаний нет.
func (e *ValidationError) Empty() bool {
	return e == nil || len(e.Fields) == 0
}

// OrNil возвращает nil для пустой ошибки, чтобы не получить typed-nil в error.
func (e *ValidationError) OrNil() error {
	if e.Empty() {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// IsValidation проверяет, что ошибка относится к валидации входных данных.
func IsValidation(err error) bool {
	var vErr *ValidationError
	return errors.As(err, &vErr)
}

// IsNotFound объединяет все ошибки отсутствия ресурса.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrProductNotFound) ||
		errors.Is(err, ErrBrandNotFound) ||
		errors.Is(err, ErrCartNotFound) ||
		errors.Is(err, ErrCartItemNotFound) ||
		errors.Is(err, ErrOrderNotFound) ||
		errors.Is(err, ErrUserNotFound)
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict) || errors.Is(err, ErrCartVersionConflict)
}

// IsIdempotencyConflict сообщает о конфликте ключа идемпотентности.
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) || errors.Is(err, ErrIdempotencyHashMismatch)
}
