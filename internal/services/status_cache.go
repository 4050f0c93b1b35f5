package services

import (
	"context"

	"rental-backend/internal/cache"
	"rental-backend/internal/gateway"
)

// StatusCache is the slice of cache.Client the services use. A nil
// *cache.Client satisfies it and does nothing.
type StatusCache interface {
	GetCached(ctx context.Context, key string) ([]byte, bool)
	SetCached(ctx context.Context, key string, data []byte)
	Invalidate(ctx context.Context, keys ...string)
}

var _ StatusCache = (*cache.Client)(nil)

// invalidateStatus drops the polled status of an invoice for every gateway.
func invalidateStatus(ctx context.Context, c StatusCache, invoiceID int64) {
	if c == nil {
		return
	}
	c.Invalidate(ctx,
		cache.PaymentStatusKey(gateway.NameVNPay, invoiceID),
		cache.PaymentStatusKey(gateway.NameMoMo, invoiceID),
	)
}
