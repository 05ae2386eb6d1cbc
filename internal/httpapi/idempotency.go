package httpapi

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	headerIdempotencyKey      = "Idempotency-Key"
	headerIdempotencyReplayed = "Idempotency-Replayed"
	maxIdempotencyKeyLength   = 128
	defaultIdempotencyTTL     = 24 * time.Hour
)

// internalErrorBody совпадает с ответом recovery на панику.
var internalErrorBody = []byte(`{"message":"` + msgInternal + `"}`)

// captureWriter копирует тело ответа для сохранения под ключом идемпотентности.
type captureWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *captureWriter) Write(data []byte) (int, error) {
	w.body.Write(data)
	return w.ResponseWriter.Write(data)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// idempotent повторяет сохранённый ответ для запроса с тем же Idempotency-Key и телом.
// Без заголовка запрос проходит как обычно. Ключи изолированы по пользователю.
func idempotent(repo domain.IdempotencyRepository, ttl time.Duration, logger *log.Entry) gin.HandlerFunc {
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	return func(c *gin.Context) {
		rawKey := strings.TrimSpace(c.GetHeader(headerIdempotencyKey))
		if repo == nil || rawKey == "" {
			c.Next()
			return
		}
		if len(rawKey) > maxIdempotencyKeyLength {
			c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{
				Message: msgValidationFailed,
				Errors:  map[string]string{headerIdempotencyKey: "Idempotency key is too long"},
			})
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			writeError(c, logger, domain.NewValidationError("body", "Malformed request body"))
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		key := domain.ScopedIdempotencyKey(mustActor(c).UserID, rawKey)
		hash := domain.HashRequest(append([]byte(c.Request.Method+" "+c.FullPath()+"\n"), body...))

		record, err := repo.CreateProcessing(c.Request.Context(), key, hash, time.Now().UTC().Add(ttl))
		if err != nil {
			replayIdempotent(c, logger, err, record)
			return
		}

		// Ответ уже отправлен; сохраняем его даже если клиент отключился.
		ctx := context.WithoutCancel(c.Request.Context())
		store := func(status int, body []byte) {
			mark := repo.MarkDone
			if status >= http.StatusBadRequest {
				mark = repo.MarkFailed
			}
			if err := mark(ctx, key, body, status); err != nil {
				logger.WithError(err).WithField("idempotency_key", rawKey).Warn("failed to store idempotent response")
			}
		}

		// Паника перехватывается recovery снаружи; ключ не должен остаться в processing.
		defer func() {
			if recovered := recover(); recovered != nil {
				store(http.StatusInternalServerError, internalErrorBody)
				panic(recovered)
			}
		}()

		writer := &captureWriter{ResponseWriter: c.Writer}
		c.Writer = writer
		c.Next()

		store(writer.Status(), writer.body.Bytes())
	}
}

func replayIdempotent(c *gin.Context, logger *log.Entry, createErr error, record domain.IdempotencyRecord) {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		c.AbortWithStatusJSON(http.StatusConflict, errorResponse{Message: "idempotency key is already used with different request payload"})
	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
		switch record.Status {
		case domain.IdempotencyStatusDone, domain.IdempotencyStatusFailed:
			if record.HTTPStatus == 0 || len(record.ResponseBody) == 0 {
				writeError(c, logger, errors.New("idempotency cache is empty"))
				return
			}
			c.Header(headerIdempotencyReplayed, "true")
			c.Data(record.HTTPStatus, "application/json; charset=utf-8", record.ResponseBody)
			c.Abort()
		case domain.IdempotencyStatusProcessing:
			c.AbortWithStatusJSON(http.StatusConflict, errorResponse{Message: "request with the same idempotency key is already processing"})
		default:
			writeError(c, logger, errors.New("unknown idempotency record status"))
		}
	default:
		writeError(c, logger, createErr)
	}
}
