package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

// Detail - заказ вместе с журналом событий.
type Detail struct {
	Order    domain.Order
	Timeline []domain.TimelineEvent
}

// Service - просмотр заказов и смена статуса администратором.
type Service struct {
	repo     domain.OrderRepository
	timeline domain.TimelineRepository
	outbox   domain.OutboxRepository
	metrics  *metrics.CheckoutMetrics
	now      func() time.Time
	logger   *log.Entry
}

// NewService собирает сервис заказов. timeline, outbox и metrics могут быть nil.
func NewService(
	repo domain.OrderRepository,
	timeline domain.TimelineRepository,
	outbox domain.OutboxRepository,
	m *metrics.CheckoutMetrics,
	logger *log.Entry,
) *Service {
	if logger == nil {
		logger = log.WithField("component", "orders")
	}
	return &Service{
		repo:     repo,
		timeline: timeline,
		outbox:   outbox,
		metrics:  m,
		now:      time.Now,
		logger:   logger,
	}
}

// List возвращает заказы пользователя; администратор видит все заказы.
func (s *Service) List(ctx context.Context, actor domain.Actor, filter domain.OrderFilter) (domain.OrderPage, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return domain.OrderPage{}, domain.NewValidationError("status", "Invalid order status")
	}
	if !actor.IsAdmin {
		filter.UserID = actor.UserID
	}
	filter.Page, filter.Limit = domain.NormalizePage(filter.Page, filter.Limit)

	page, err := s.repo.List(ctx, filter)
	if err != nil {
		return domain.OrderPage{}, fmt.Errorf("list orders: %w", err)
	}
	return page, nil
}

// Get возвращает заказ по трек-номеру. Чужой заказ для покупателя неотличим от
// отсутствующего.
func (s *Service) Get(ctx context.Context, actor domain.Actor, trackingID string) (Detail, error) {
	order, err := s.repo.GetByTrackingID(ctx, strings.TrimSpace(trackingID))
	if err != nil {
		return Detail{}, err
	}
	if !actor.IsAdmin && order.UserID != actor.UserID {
		return Detail{}, domain.ErrOrderNotFound
	}

	detail := Detail{Order: order, Timeline: []domain.TimelineEvent{}}
	if s.timeline == nil {
		return detail, nil
	}
	events, err := s.timeline.List(ctx, order.ID)
	if err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Warn("failed to list timeline events")
		return detail, nil
	}
	detail.Timeline = events
	return detail, nil
}

// UpdateStatus переводит заказ в новый статус. Меняются только статус и время
// обновления; позиции и сумма остаются прежними.
func (s *Service) UpdateStatus(ctx context.Context, actor domain.Actor, trackingID string, status domain.OrderStatus) (domain.Order, error) {
	if !actor.IsAdmin {
		return domain.Order{}, domain.ErrForbidden
	}
	if !status.Valid() {
		return domain.Order{}, domain.NewValidationError("status", "Invalid order status")
	}

	order, err := s.repo.GetByTrackingID(ctx, strings.TrimSpace(trackingID))
	if err != nil {
		return domain.Order{}, err
	}

	from := order.Status
	if err := order.TransitionTo(status, s.now().UTC()); err != nil {
		return domain.Order{}, err
	}

	if err := s.repo.Save(ctx, order); err != nil {
		if !domain.IsVersionConflict(err) && !errors.Is(err, domain.ErrOrderNotFound) {
			s.logger.WithError(err).WithField("order_id", order.ID).Error("failed to save order")
		}
		return domain.Order{}, err
	}
	// Save увеличивает версию в хранилище.
	order.Version++

	s.metrics.RecordStatusTransition(string(status))
	s.appendTimeline(ctx, order, from, actor.UserID)
	s.enqueueStatusChanged(ctx, order, from, actor.UserID)

	s.logger.WithFields(log.Fields{
		"order_id":    order.ID,
		"tracking_id": order.TrackingID,
		"from":        from,
		"to":          status,
	}).Info("order status updated")

	return order, nil
}

func (s *Service) appendTimeline(ctx context.Context, order domain.Order, from domain.OrderStatus, actorID string) {
	if s.timeline == nil {
		return
	}
	event := domain.TimelineEvent{
		OrderID:  order.ID,
		Type:     domain.TimelineStatusChanged,
		From:     from,
		To:       order.Status,
		ActorID:  actorID,
		Occurred: order.UpdatedAt,
	}
	if err := s.timeline.Append(ctx, event); err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Warn("failed to append status timeline")
		return
	}
	s.metrics.RecordTimelineEvent()
}

func (s *Service) enqueueStatusChanged(ctx context.Context, order domain.Order, from domain.OrderStatus, actorID string) {
	if s.outbox == nil {
		return
	}
	msg, err := domain.NewStatusChangedMessage(order, from, actorID)
	if err == nil {
		_, err = s.outbox.Enqueue(ctx, msg)
	}
	if err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Warn("failed to enqueue status change event")
		return
	}
	s.metrics.RecordOutboxEvent()
}
