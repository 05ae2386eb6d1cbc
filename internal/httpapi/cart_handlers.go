package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type toggleCartPayload struct {
	ProductID string `json:"productId" binding:"required"`
	Quantity  int    `json:"quantity"`
}

type quantityPayload struct {
	Quantity *int `json:"quantity" binding:"required"`
}

func (h *Handler) getCart(c *gin.Context) {
	view, err := h.carts.Get(c.Request.Context(), mustActor(c).UserID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toCartResponse(view))
}

// toggleCart добавляет товар или убирает его, если он уже в корзине.
func (h *Handler) toggleCart(c *gin.Context) {
	var payload toggleCartPayload
	if err := bindJSON(c, &payload); err != nil {
		writeError(c, h.logger, err)
		return
	}
	view, err := h.carts.Toggle(c.Request.Context(), mustActor(c).UserID, payload.ProductID, payload.Quantity)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toCartResponse(view))
}

func (h *Handler) updateCartQuantity(c *gin.Context) {
	var payload quantityPayload
	if err := bindJSON(c, &payload); err != nil {
		writeError(c, h.logger, err)
		return
	}
	view, err := h.carts.UpdateQuantity(c.Request.Context(), mustActor(c).UserID, c.Param("productId"), *payload.Quantity)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toCartResponse(view))
}

func (h *Handler) removeFromCart(c *gin.Context) {
	view, err := h.carts.Remove(c.Request.Context(), mustActor(c).UserID, c.Param("productId"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toCartResponse(view))
}
