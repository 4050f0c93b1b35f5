package services

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"rental-backend/internal/cache"
	"rental-backend/internal/gateway"
	"rental-backend/internal/models"
	"rental-backend/internal/repositories"
)

// PaymentQuery serves the polling endpoint clients use after a browser
// payment flow when the deep link never arrives.
type PaymentQuery struct {
	registry *gateway.Registry
	invoices repositories.InvoiceStore
	payments repositories.PaymentStore
	cache    StatusCache
	log      *zap.Logger
}

func NewPaymentQuery(registry *gateway.Registry, invoices repositories.InvoiceStore, payments repositories.PaymentStore, cache StatusCache, log *zap.Logger) *PaymentQuery {
	return &PaymentQuery{
		registry: registry,
		invoices: invoices,
		payments: payments,
		cache:    cache,
		log:      log.With(zap.String("component", "payment_query")),
	}
}

// cachedStatus keeps the owner next to the view so a cache hit is still
// authorized.
type cachedStatus struct {
	TenantID int64                    `json:"tenant_id"`
	View     models.PaymentStatusView `json:"view"`
}

func (q *PaymentQuery) Status(ctx context.Context, actor models.Principal, gatewayName string, invoiceID int64) (*models.PaymentStatusView, error) {
	adapter, err := q.registry.Get(gatewayName)
	if err != nil {
		return nil, err
	}
	key := cache.PaymentStatusKey(adapter.Name(), invoiceID)

	if q.cache != nil {
		if data, ok := q.cache.GetCached(ctx, key); ok {
			var c cachedStatus
			if err := json.Unmarshal(data, &c); err == nil {
				if !actor.IsManager() && !actor.IsTenant(c.TenantID) {
					return nil, models.ErrForbidden
				}
				return &c.View, nil
			}
		}
	}

	inv, err := q.invoices.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if !actor.CanView(inv) {
		return nil, models.ErrForbidden
	}

	view := models.PaymentStatusView{InvoiceID: inv.ID, InvoiceStatus: inv.Status}
	p, err := q.payments.LatestPayment(ctx, inv.ID, adapter.Name())
	switch {
	case err == nil:
		view.Payment = &models.PaymentStatusItem{
			TransactionID: p.TransactionID,
			Status:        p.Status,
			ResponseCode:  p.ResponseCode,
			PaidAt:        p.PaidAt,
		}
	case errors.Is(err, models.ErrNotFound):
	default:
		return nil, err
	}

	// Only PAID views are cached. A reconcile landing between the reads
	// above and the write below would otherwise leave a stale UNPAID view
	// behind its own invalidation.
	if q.cache != nil && inv.Status == models.InvoiceStatusPaid {
		if data, err := json.Marshal(cachedStatus{TenantID: inv.TenantID, View: view}); err == nil {
			q.cache.SetCached(ctx, key, data)
		}
	}
	return &view, nil
}
