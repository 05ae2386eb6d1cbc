package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
)

type placeOrderPayload struct {
	PaymentMethod    string          `json:"paymentMethod"`
	PaymentReference string          `json:"paymentReference"`
	ShipmentInfo     shipmentPayload `json:"shipmentInfo"`
}

type orderListQuery struct {
	Page   int    `form:"page" binding:"omitempty,min=1"`
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=100"`
	Status string `form:"status"`
}

type statusPayload struct {
	Status string `json:"status" binding:"required"`
}

func (h *Handler) placeOrder(c *gin.Context) {
	var payload placeOrderPayload
	if err := bindJSON(c, &payload); err != nil {
		writeError(c, h.logger, err)
		return
	}

	order, err := h.checkout.Checkout(c.Request.Context(), mustActor(c).UserID, checkout.Request{
		PaymentMethod:    domain.PaymentMethod(payload.PaymentMethod),
		PaymentReference: payload.PaymentReference,
		Shipment: domain.ShipmentInfo{
			Name:        payload.ShipmentInfo.Name,
			Address:     payload.ShipmentInfo.Address,
			City:        payload.ShipmentInfo.City,
			PhoneNumber: payload.ShipmentInfo.PhoneNumber,
			Email:       payload.ShipmentInfo.Email,
		},
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, toOrderResponse(order))
}

// listOrders отдаёт собственные заказы, администратору - все.
func (h *Handler) listOrders(c *gin.Context) {
	var query orderListQuery
	if err := bindQuery(c, &query); err != nil {
		writeError(c, h.logger, err)
		return
	}

	page, err := h.orders.List(c.Request.Context(), mustActor(c), domain.OrderFilter{
		Status: domain.OrderStatus(query.Status),
		Page:   query.Page,
		Limit:  query.Limit,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	out := orderPageResponse{Orders: make([]orderResponse, 0, len(page.Orders)), TotalCount: page.TotalCount}
	for _, o := range page.Orders {
		out.Orders = append(out.Orders, toOrderResponse(o))
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) getOrder(c *gin.Context) {
	detail, err := h.orders.Get(c.Request.Context(), mustActor(c), c.Param("trackingId"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toOrderDetail(detail))
}

func (h *Handler) updateOrderStatus(c *gin.Context) {
	var payload statusPayload
	if err := bindJSON(c, &payload); err != nil {
		writeError(c, h.logger, err)
		return
	}
	order, err := h.orders.UpdateStatus(c.Request.Context(), mustActor(c), c.Param("trackingId"), domain.OrderStatus(payload.Status))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(order))
}
