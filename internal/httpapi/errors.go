package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	msgValidationFailed = "validation failed"
	msgUnauthorized     = "Unauthorized"
	msgForbidden        = "Insufficient Permission"
	msgNotFound         = "Not Found"
	msgInternal         = "Internal Server Error"
)

type errorResponse struct {
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// badRequestErrors - доменные ошибки, которые клиент может исправить сам.
var badRequestErrors = []error{
	domain.ErrDuplicatePaymentReference,
	domain.ErrDuplicateName,
	domain.ErrInvalidStatusTransition,
	domain.ErrStatusInvalid,
	domain.ErrCartEmpty,
	domain.ErrPaymentNotConfirmed,
	domain.ErrPaymentMethodInvalid,
	domain.ErrQuantityInvalid,
}

// writeError переводит ошибку сервиса в HTTP-ответ. Неизвестные ошибки
// логируются и наружу уходят без подробностей.
func writeError(c *gin.Context, logger *log.Entry, err error) {
	status, body := classifyError(err)
	if status == http.StatusInternalServerError {
		logger.WithError(err).WithFields(log.Fields{
			"method": c.Request.Method,
			"route":  c.FullPath(),
		}).Error("request failed")
	}
	c.AbortWithStatusJSON(status, body)
}

func classifyError(err error) (int, errorResponse) {
	var vErr *domain.ValidationError
	switch {
	case errors.As(err, &vErr):
		return http.StatusBadRequest, errorResponse{Message: msgValidationFailed, Errors: vErr.Fields}
	case errors.Is(err, domain.ErrUnauthenticated), errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized, errorResponse{Message: msgUnauthorized}
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, errorResponse{Message: msgForbidden}
	case errors.Is(err, domain.ErrBrandNotFound):
		// Бренд в теле запроса - ошибка ввода, а не отсутствующий ресурс пути.
		return http.StatusBadRequest, errorResponse{Message: msgValidationFailed, Errors: map[string]string{"brand": "Brand not found"}}
	case domain.IsNotFound(err):
		return http.StatusNotFound, errorResponse{Message: msgNotFound}
	case domain.IsIdempotencyConflict(err):
		return http.StatusConflict, errorResponse{Message: err.Error()}
	case domain.IsVersionConflict(err):
		return http.StatusConflict, errorResponse{Message: "resource was modified concurrently, retry the request"}
	}
	for _, target := range badRequestErrors {
		if errors.Is(err, target) {
			return http.StatusBadRequest, errorResponse{Message: target.Error()}
		}
	}
	return http.StatusInternalServerError, errorResponse{Message: msgInternal}
}
