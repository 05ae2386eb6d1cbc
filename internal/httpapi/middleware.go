package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/auth"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

const actorKey = "storefront.actor"

// TokenParser проверяет токен сессии.
type TokenParser interface {
	Parse(token string) (domain.Actor, error)
}

// requestLogger пишет access-лог через logrus.
func requestLogger(logger *log.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		entry := logger.WithFields(log.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"route":      c.FullPath(),
			"status":     status,
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.ClientIP(),
		})
		switch {
		case status >= http.StatusInternalServerError:
			entry.Warn("http request")
		default:
			entry.Debug("http request")
		}
	}
}

// recovery превращает панику обработчика в 500 без деталей.
func recovery(logger *log.Entry) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.WithFields(log.Fields{
			"panic": recovered,
			"route": c.FullPath(),
		}).Error("panic in http handler")
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Message: msgInternal})
	})
}

func observe(m *metrics.HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		m.Start()
		c.Next()
		m.Observe(c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start))
	}
}

// authenticate требует валидный Bearer-токен.
func authenticate(tokens TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := auth.BearerToken(c.GetHeader("Authorization"))
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Message: msgUnauthorized})
			return
		}
		actor, err := tokens.Parse(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Message: msgUnauthorized})
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

// requireAdmin ставится после authenticate: 401 проверяется раньше 403.
func requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Message: msgUnauthorized})
			return
		}
		if !actor.IsAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, errorResponse{Message: msgForbidden})
			return
		}
		c.Next()
	}
}

func actorFrom(c *gin.Context) (domain.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return domain.Actor{}, false
	}
	actor, ok := v.(domain.Actor)
	return actor, ok
}

// mustActor используется только на маршрутах за authenticate.
func mustActor(c *gin.Context) domain.Actor {
	actor, _ := actorFrom(c)
	return actor
}
