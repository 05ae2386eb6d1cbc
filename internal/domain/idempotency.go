package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// IdempotencyStatus описывает жизненный цикл ключа идемпотентности оформления заказа.
type IdempotencyStatus string

const (
	// IdempotencyStatusProcessing означает, что оформление начато и ещё не завершено.
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	// IdempotencyStatusDone означает, что заказ создан и ответ сохранён.
	IdempotencyStatusDone IdempotencyStatus = "done"
	// IdempotencyStatusFailed означает, что оформление завершилось ошибкой.
	IdempotencyStatusFailed IdempotencyStatus = "failed"
)

// IdempotencyRecord хранит результат запроса, отправленного с Idempotency-Key.
type IdempotencyRecord struct {
	Key          string
	RequestHash  string
	ResponseBody []byte
	HTTPStatus   int
	Status       IdempotencyStatus
	TTLAt        time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s IdempotencyStatus) Valid() bool {
	switch s {
	case IdempotencyStatusProcessing, IdempotencyStatusDone, IdempotencyStatusFailed:
		return true
	default:
		return false
	}
}

// Expired сообщает, что запись пережила свой TTL.
func (r IdempotencyRecord) Expired(now time.Time) bool {
	return !r.TTLAt.IsZero() && !now.Before(r.TTLAt)
}

// ScopedIdempotencyKey привязывает клиентский ключ к пользователю,
// чтобы ключи разных покупателей не пересекались.
func ScopedIdempotencyKey(userID, key string) string {
	return userID + ":" + key
}

// HashRequest возвращает стабильный хеш тела запроса.
func HashRequest(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
