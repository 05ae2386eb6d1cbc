package httpapi

import (
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/cart"
	"github.com/vladislavdragonenkov/storefront/internal/service/orders"
)

type brandResponse struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
}

type productResponse struct {
	ID             string        `json:"_id"`
	Name           string        `json:"name"`
	Description    string        `json:"description,omitempty"`
	Brand          any           `json:"brand"`
	Category       string        `json:"category"`
	Concentration  string        `json:"concentration"`
	Gender         domain.Gender `json:"gender"`
	Size           int           `json:"size,omitempty"`
	Price          float64       `json:"price"`
	Discount       float64       `json:"discount"`
	EffectivePrice float64       `json:"effectivePrice"`
	Stock          int           `json:"stock"`
	MainPic        string        `json:"mainPic"`
	OtherImages    []string      `json:"otherImages"`
	IsFeatured     bool          `json:"isFeatured"`
	Sales          int           `json:"sales"`
	Rating         float64       `json:"rating"`
	Tags           []string      `json:"tags"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

// toProductResponse отдаёт brand как id; с details - как вложенный объект.
func toProductResponse(p domain.Product, brand *domain.Brand) productResponse {
	var brandField any = p.BrandID
	if brand != nil {
		brandField = brandResponse{ID: brand.ID, Name: brand.Name}
	}
	return productResponse{
		ID:             p.ID,
		Name:           p.Name,
		Description:    p.Description,
		Brand:          brandField,
		Category:       p.Category,
		Concentration:  p.Concentration,
		Gender:         p.Gender,
		Size:           p.Size,
		Price:          p.Price,
		Discount:       p.Discount,
		EffectivePrice: p.EffectivePrice(),
		Stock:          p.Stock,
		MainPic:        p.MainPic,
		OtherImages:    nonNil(p.OtherImages),
		IsFeatured:     p.IsFeatured,
		Sales:          p.Sales,
		Rating:         p.Rating,
		Tags:           nonNil(p.Tags),
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

func toProductList(products []domain.Product) []productResponse {
	out := make([]productResponse, 0, len(products))
	for _, p := range products {
		out = append(out, toProductResponse(p, nil))
	}
	return out
}

type productPageResponse struct {
	Products   []productResponse `json:"products"`
	TotalCount int               `json:"totalCount"`
}

func toProductPage(page domain.ProductPage) productPageResponse {
	return productPageResponse{Products: toProductList(page.Products), TotalCount: page.TotalCount}
}

type namedResponse struct {
	ID        string    `json:"_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

type cartLineResponse struct {
	ProductID string           `json:"productId"`
	Quantity  int              `json:"quantity"`
	Deleted   bool             `json:"deleted"`
	Product   *productResponse `json:"product"`
	Amount    float64          `json:"amount"`
}

type cartResponse struct {
	Items       []cartLineResponse `json:"items"`
	TotalAmount float64            `json:"totalAmount"`
	TotalItems  int                `json:"totalItems"`
	Version     int64              `json:"version"`
}

func toCartResponse(view cart.View) cartResponse {
	items := make([]cartLineResponse, 0, len(view.Lines))
	for _, line := range view.Lines {
		item := cartLineResponse{
			ProductID: line.Ref.ID,
			Quantity:  line.Quantity,
			Deleted:   line.Ref.IsDeleted(),
		}
		if !line.Ref.IsDeleted() {
			p := toProductResponse(*line.Ref.Product, nil)
			item.Product = &p
			item.Amount = domain.LineAmount(line.PriceEntry())
		}
		items = append(items, item)
	}
	return cartResponse{
		Items:       items,
		TotalAmount: view.Summary.Amount,
		TotalItems:  view.Summary.Items,
		Version:     view.Version,
	}
}

type shipmentPayload struct {
	Name        string `json:"name"`
	Address     string `json:"address"`
	City        string `json:"city"`
	PhoneNumber string `json:"phoneNumber"`
	Email       string `json:"email"`
}

type orderItemResponse struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	ListPrice float64 `json:"listPrice"`
	Discount  float64 `json:"discount"`
	Price     float64 `json:"price"`
}

type orderResponse struct {
	ID               string               `json:"_id"`
	TrackingID       string               `json:"trackingId"`
	UserID           string               `json:"user"`
	Items            []orderItemResponse  `json:"items"`
	TotalAmount      float64              `json:"totalAmount"`
	Status           domain.OrderStatus   `json:"status"`
	PaymentMethod    domain.PaymentMethod `json:"paymentMethod"`
	PaymentReference string               `json:"paymentReference,omitempty"`
	ShipmentInfo     shipmentPayload      `json:"shipmentInfo"`
	Version          int64                `json:"version"`
	CreatedAt        time.Time            `json:"createdAt"`
	UpdatedAt        time.Time            `json:"updatedAt"`
}

func toOrderResponse(o domain.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderItemResponse{
			ProductID: it.ProductID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			ListPrice: it.ListPrice,
			Discount:  it.Discount,
			Price:     it.Price,
		})
	}
	return orderResponse{
		ID:               o.ID,
		TrackingID:       o.TrackingID,
		UserID:           o.UserID,
		Items:            items,
		TotalAmount:      o.TotalAmount,
		Status:           o.Status,
		PaymentMethod:    o.PaymentMethod,
		PaymentReference: o.PaymentReference,
		ShipmentInfo: shipmentPayload{
			Name:        o.Shipment.Name,
			Address:     o.Shipment.Address,
			City:        o.Shipment.City,
			PhoneNumber: o.Shipment.PhoneNumber,
			Email:       o.Shipment.Email,
		},
		Version:   o.Version,
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
}

type orderPageResponse struct {
	Orders     []orderResponse `json:"orders"`
	TotalCount int             `json:"totalCount"`
}

type timelineEventResponse struct {
	Type     string             `json:"type"`
	From     domain.OrderStatus `json:"from,omitempty"`
	To       domain.OrderStatus `json:"to"`
	ActorID  string             `json:"actorId,omitempty"`
	Occurred time.Time          `json:"occurredAt"`
}

type orderDetailResponse struct {
	orderResponse
	Timeline []timelineEventResponse `json:"timeline"`
}

func toOrderDetail(d orders.Detail) orderDetailResponse {
	timeline := make([]timelineEventResponse, 0, len(d.Timeline))
	for _, ev := range d.Timeline {
		timeline = append(timeline, timelineEventResponse{
			Type:     ev.Type,
			From:     ev.From,
			To:       ev.To,
			ActorID:  ev.ActorID,
			Occurred: ev.Occurred,
		})
	}
	return orderDetailResponse{orderResponse: toOrderResponse(d.Order), Timeline: timeline}
}

type userResponse struct {
	ID          string    `json:"_id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	PhoneNumber string    `json:"phoneNumber"`
	Avatar      string    `json:"avatar,omitempty"`
	IsAdmin     bool      `json:"isAdmin"`
	Favorites   []string  `json:"favorites"`
	CreatedAt   time.Time `json:"createdAt"`
}

func toUserResponse(u domain.User) userResponse {
	return userResponse{
		ID:          u.ID,
		Name:        u.Name,
		Email:       u.Email,
		PhoneNumber: u.PhoneNumber,
		Avatar:      u.Avatar,
		IsAdmin:     u.IsAdmin,
		Favorites:   nonNil(u.Favorites),
		CreatedAt:   u.CreatedAt,
	}
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
