package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/cart"
	"github.com/vladislavdragonenkov/storefront/internal/service/resilience"
)

// Request - данные оформления заказа.
type Request struct {
	PaymentMethod    domain.PaymentMethod
	PaymentReference string
	Shipment         domain.ShipmentInfo
}

// Dependencies - зависимости сервиса оформления.
type Dependencies struct {
	Carts    domain.CartRepository
	Catalog  domain.CatalogRepository
	Placer   domain.OrderPlacer
	Gateway  domain.PaymentGateway
	Timeline domain.TimelineRepository
	Metrics  *metrics.CheckoutMetrics
	Retry    resilience.RetryConfig
	Logger   *log.Entry
}

// Service превращает корзину пользователя в заказ.
type Service struct {
	carts    domain.CartRepository
	catalog  domain.CatalogRepository
	placer   domain.OrderPlacer
	gateway  domain.PaymentGateway
	timeline domain.TimelineRepository
	metrics  *metrics.CheckoutMetrics
	retrier  *resilience.Retrier
	logger   *log.Entry

	now           func() time.Time
	newID         func() string
	newTrackingID func() string
}

// NewService собирает сервис оформления заказа.
func NewService(deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = log.WithField("component", "checkout")
	}
	retryable := func(err error) bool { return errors.Is(err, domain.ErrTrackingIDConflict) }
	return &Service{
		carts:         deps.Carts,
		catalog:       deps.Catalog,
		placer:        deps.Placer,
		gateway:       deps.Gateway,
		timeline:      deps.Timeline,
		metrics:       deps.Metrics,
		retrier:       resilience.NewRetrier(deps.Retry, retryable, logger),
		logger:        logger,
		now:           time.Now,
		newID:         uuid.NewString,
		newTrackingID: domain.NewTrackingID,
	}
}

// Checkout фиксирует текущие цены корзины в заказе, сохраняет его в статусе
// processing и очищает корзину. Если сохранить заказ не удалось, корзина
// остаётся нетронутой.
func (s *Service) Checkout(ctx context.Context, userID string, req Request) (order domain.Order, err error) {
	started := s.now()
	s.metrics.RecordCheckoutStarted()
	defer func() {
		s.metrics.RecordCheckoutFinished(time.Since(started))
		if err != nil {
			s.metrics.RecordCheckoutFailed(failureReason(err))
			return
		}
		s.metrics.RecordCheckoutCompleted()
	}()

	c, err := s.carts.Get(ctx, userID)
	if err != nil {
		return domain.Order{}, err
	}
	lines, err := cart.ResolveLines(ctx, s.catalog, c)
	if err != nil {
		return domain.Order{}, err
	}

	req = normalizeRequest(req)
	if err := validateRequest(req); err != nil {
		return domain.Order{}, err
	}

	items := domain.SnapshotLines(lines)
	if len(items) == 0 {
		return domain.Order{}, domain.ErrCartEmpty
	}
	total := domain.SummarizeLines(lines).Amount

	if req.PaymentMethod == domain.PaymentMethodGateway {
		stepStarted := time.Now()
		err := s.verifyPayment(ctx, req.PaymentReference, total)
		s.metrics.RecordStepDuration("verify_payment", time.Since(stepStarted))
		if err != nil {
			return domain.Order{}, err
		}
	}

	now := s.now().UTC()
	order = domain.Order{
		ID:               s.newID(),
		UserID:           userID,
		Items:            items,
		TotalAmount:      total,
		Status:           domain.OrderStatusProcessing,
		PaymentMethod:    req.PaymentMethod,
		PaymentReference: req.PaymentReference,
		Shipment:         req.Shipment,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	stepStarted := time.Now()
	err = s.retrier.Do(ctx, "checkout.place_order", func(ctx context.Context) error {
		order.TrackingID = s.newTrackingID()
		if errs := order.ValidateInvariants(); len(errs) > 0 {
			return fmt.Errorf("order invariants violated: %w", errors.Join(errs...))
		}
		event, err := domain.NewOrderPlacedMessage(order)
		if err != nil {
			return err
		}
		return s.placer.PlaceOrder(ctx, order, c, event)
	})
	s.metrics.RecordStepDuration("place_order", time.Since(stepStarted))
	if err != nil {
		s.logPlaceFailure(order, err)
		return domain.Order{}, err
	}

	s.appendPlacedTimeline(ctx, order)
	s.logger.WithFields(log.Fields{
		"order_id":    order.ID,
		"tracking_id": order.TrackingID,
		"user_id":     userID,
		"total":       order.TotalAmount,
		"items":       order.ItemCount(),
	}).Info("order placed")

	return order, nil
}

func (s *Service) verifyPayment(ctx context.Context, reference string, amount float64) error {
	if s.gateway == nil {
		s.logger.Warn("online payment requested but no payment gateway configured")
		return domain.ErrPaymentNotConfirmed
	}
	if err := s.gateway.Verify(ctx, reference, amount); err != nil {
		if !errors.Is(err, domain.ErrPaymentNotConfirmed) {
			s.logger.WithError(err).WithField("reference", reference).Error("payment verification failed")
		}
		return err
	}
	return nil
}

func (s *Service) appendPlacedTimeline(ctx context.Context, order domain.Order) {
	if s.timeline == nil {
		return
	}
	event := domain.TimelineEvent{
		OrderID:  order.ID,
		Type:     domain.TimelineOrderPlaced,
		To:       domain.OrderStatusProcessing,
		ActorID:  order.UserID,
		Occurred: order.CreatedAt,
	}
	if err := s.timeline.Append(ctx, event); err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Warn("failed to append order timeline")
		return
	}
	s.metrics.RecordTimelineEvent()
}

func (s *Service) logPlaceFailure(order domain.Order, err error) {
	entry := s.logger.WithError(err).WithFields(log.Fields{"order_id": order.ID, "user_id": order.UserID})
	switch {
	case errors.Is(err, domain.ErrDuplicatePaymentReference), errors.Is(err, domain.ErrCartVersionConflict):
		entry.Warn("order not placed")
	default:
		entry.Error("failed to place order")
	}
}

func normalizeRequest(req Request) Request {
	req.PaymentMethod = domain.PaymentMethod(strings.ToLower(strings.TrimSpace(string(req.PaymentMethod))))
	req.PaymentReference = strings.TrimSpace(req.PaymentReference)
	if req.PaymentMethod == domain.PaymentMethodCash {
		// Для оплаты при получении ссылка не используется.
		req.PaymentReference = ""
	}
	req.Shipment = domain.ShipmentInfo{
		Name:        strings.TrimSpace(req.Shipment.Name),
		Address:     strings.TrimSpace(req.Shipment.Address),
		City:        strings.TrimSpace(req.Shipment.City),
		PhoneNumber: strings.TrimSpace(req.Shipment.PhoneNumber),
		Email:       strings.ToLower(strings.TrimSpace(req.Shipment.Email)),
	}
	return req
}

func validateRequest(req Request) error {
	vErr := &domain.ValidationError{}

	var shipErr *domain.ValidationError
	if err := req.Shipment.Validate(); errors.As(err, &shipErr) {
		for field, msg := range shipErr.Fields {
			vErr.Add(field, msg)
		}
	}

	switch {
	case req.PaymentMethod == "":
		vErr.Add("paymentMethod", "Payment method is required")
	case !req.PaymentMethod.Valid():
		vErr.Add("paymentMethod", "Invalid payment method")
	case req.PaymentMethod == domain.PaymentMethodGateway && req.PaymentReference == "":
		vErr.Add("paymentReference", "Payment reference is required")
	}

	return vErr.OrNil()
}

func failureReason(err error) string {
	switch {
	case domain.IsValidation(err):
		return "validation"
	case errors.Is(err, domain.ErrCartNotFound):
		return "cart_not_found"
	case errors.Is(err, domain.ErrCartEmpty):
		return "cart_empty"
	case errors.Is(err, domain.ErrPaymentNotConfirmed):
		return "payment_not_confirmed"
	case errors.Is(err, domain.ErrDuplicatePaymentReference):
		return "duplicate_payment_reference"
	case errors.Is(err, domain.ErrCartVersionConflict):
		return "cart_conflict"
	case errors.Is(err, domain.ErrTrackingIDConflict):
		return "tracking_id_conflict"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "internal"
	}
}
