package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/account"
	"github.com/vladislavdragonenkov/storefront/internal/service/cart"
	"github.com/vladislavdragonenkov/storefront/internal/service/catalog"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
	"github.com/vladislavdragonenkov/storefront/internal/service/orders"
)

// Dependencies - сервисы и инфраструктура, нужные HTTP API.
type Dependencies struct {
	Catalog  *catalog.Service
	Carts    *cart.Service
	Checkout *checkout.Service
	Orders   *orders.Service
	Accounts *account.Service
	Tokens   TokenParser

	// Idempotency включает поддержку Idempotency-Key на POST /orders; nil - выключено.
	Idempotency    domain.IdempotencyRepository
	IdempotencyTTL time.Duration

	Metrics *metrics.HTTPMetrics
	Logger  *log.Entry
}

// Handler обслуживает маршруты API.
type Handler struct {
	catalog  *catalog.Service
	carts    *cart.Service
	checkout *checkout.Service
	orders   *orders.Service
	accounts *account.Service
	logger   *log.Entry
}

// NewRouter собирает gin.Engine со всеми маршрутами.
func NewRouter(deps Dependencies) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = log.WithField("component", "http-api")
	}
	useJSONFieldNames()

	h := &Handler{
		catalog:  deps.Catalog,
		carts:    deps.Carts,
		checkout: deps.Checkout,
		orders:   deps.Orders,
		accounts: deps.Accounts,
		logger:   logger,
	}

	r := gin.New()
	r.Use(recovery(logger), requestLogger(logger), observe(deps.Metrics))
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, errorResponse{Message: msgNotFound})
	})
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	r.GET("/products", h.listProducts)
	r.GET("/products/top-deals", h.topDeals)
	r.GET("/products/top-selling", h.topSelling)
	r.GET("/products/:id", h.getProduct)
	r.GET("/search", h.search)
	r.GET("/autocomplete", h.autocomplete)
	r.GET("/brands", h.listBrands)
	r.GET("/categories", h.listCategories)
	r.GET("/tags", h.listTags)

	r.POST("/auth/register", h.register)
	r.POST("/auth/login", h.login)

	authed := r.Group("/", authenticate(deps.Tokens))
	{
		authed.GET("/profile", h.profile)

		authed.GET("/cart", h.getCart)
		authed.POST("/cart", h.toggleCart)
		authed.PATCH("/cart/:productId", h.updateCartQuantity)
		authed.DELETE("/cart/:productId", h.removeFromCart)

		authed.GET("/favorites", h.listFavorites)
		authed.POST("/favorites", h.toggleFavorite)
		authed.DELETE("/favorites/:productId", h.removeFavorite)

		authed.GET("/orders", h.listOrders)
		authed.GET("/orders/:trackingId", h.getOrder)
		authed.POST("/orders", idempotent(deps.Idempotency, deps.IdempotencyTTL, logger), h.placeOrder)
	}

	admin := r.Group("/admin", authenticate(deps.Tokens), requireAdmin())
	{
		admin.GET("/orders", h.listOrders)
		admin.PATCH("/orders/:trackingId", h.updateOrderStatus)

		admin.POST("/brands", h.createBrand)
		admin.POST("/categories", h.createCategory)
		admin.POST("/tags", h.createTag)
		admin.POST("/products", h.createProduct)
		admin.PATCH("/products/:id", h.updateProduct)
		admin.DELETE("/products/:id", h.deleteProduct)
	}

	return r
}
