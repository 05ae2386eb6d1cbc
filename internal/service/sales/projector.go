package sales

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
)

// keyTTL - сколько помним обработанные позиции; должно перекрывать retention топика.
const keyTTL = 7 * 24 * time.Hour

var projectedItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "storefront_sales_projected_items_total",
	Help: "Total number of order items applied to product sales counters grouped by result.",
}, []string{"result"})

// Projector ведёт счётчик продаж товаров по событиям order.placed.
// Каждая позиция учитывается не более одного раза: ключ "sales:<event>:<product>"
// регистрируется в хранилище идемпотентности до изменения счётчика.
type Projector struct {
	catalog domain.CatalogRepository
	keys    domain.IdempotencyRepository
	logger  *log.Entry
	now     func() time.Time
}

// NewProjector создаёт проектор продаж.
func NewProjector(catalog domain.CatalogRepository, keys domain.IdempotencyRepository, logger *log.Entry) *Projector {
	if logger == nil {
		logger = log.WithField("component", "sales-projector")
	}
	return &Projector{
		catalog: catalog,
		keys:    keys,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Handle обрабатывает событие из топика заказов. Прочие типы событий игнорируются.
func (p *Projector) Handle(ctx context.Context, env kafka.Envelope) error {
	if env.EventType != domain.EventOrderPlaced {
		return nil
	}
	event, err := env.OrderPlaced()
	if err != nil {
		// Повтор не исправит битый payload.
		p.logger.WithError(err).WithField("event_id", env.ID).Warn("skip malformed order.placed event")
		return nil
	}

	var errs []error
	for _, item := range event.Items {
		if err := p.applyItem(ctx, env.ID, item); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MessageHandler возвращает обработчик для kafka.Consumer.
func (p *Projector) MessageHandler() kafka.MessageHandler {
	return kafka.EnvelopeHandler(p.logger, p.Handle)
}

func (p *Projector) applyItem(ctx context.Context, eventID string, item domain.OrderEventItem) error {
	entry := p.logger.WithFields(log.Fields{"event_id": eventID, "product_id": item.ProductID})
	key := "sales:" + eventID + ":" + item.ProductID
	hash := domain.HashRequest([]byte(item.ProductID + ":" + strconv.Itoa(item.Quantity)))

	_, err := p.keys.CreateProcessing(ctx, key, hash, p.now().Add(keyTTL))
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists):
		record, getErr := p.keys.Get(ctx, key)
		if getErr != nil {
			return fmt.Errorf("load sales key: %w", getErr)
		}
		if record.Status != domain.IdempotencyStatusFailed {
			// done - уже учтено; processing - прошлая попытка прервалась, второй раз не считаем.
			projectedItemsTotal.WithLabelValues("duplicate").Inc()
			entry.WithField("status", record.Status).Debug("sales item already applied")
			return nil
		}
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		projectedItemsTotal.WithLabelValues("conflict").Inc()
		entry.Warn("sales key reused with different quantity")
		return nil
	default:
		return fmt.Errorf("register sales key: %w", err)
	}

	if err := p.catalog.AddSales(ctx, item.ProductID, item.Quantity); err != nil {
		if errors.Is(err, domain.ErrProductNotFound) {
			// Товар удалён после оформления: учитывать некуда.
			projectedItemsTotal.WithLabelValues("skipped").Inc()
			p.mark(ctx, entry, key, p.keys.MarkDone, http.StatusNotFound)
			return nil
		}
		projectedItemsTotal.WithLabelValues("error").Inc()
		p.mark(ctx, entry, key, p.keys.MarkFailed, http.StatusInternalServerError)
		return fmt.Errorf("add sales for product %s: %w", item.ProductID, err)
	}

	projectedItemsTotal.WithLabelValues("applied").Inc()
	p.mark(ctx, entry, key, p.keys.MarkDone, http.StatusOK)
	return nil
}

func (p *Projector) mark(ctx context.Context, entry *log.Entry, key string, fn func(context.Context, string, []byte, int) error, status int) {
	if err := fn(ctx, key, nil, status); err != nil {
		entry.WithError(err).Warn("failed to update sales key status")
	}
}
