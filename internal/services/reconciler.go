package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"rental-backend/internal/gateway"
	"rental-backend/internal/metrics"
	"rental-backend/internal/models"
	"rental-backend/internal/repositories"
	"rental-backend/internal/timeutil"
)

// ReconciliationResult describes what one verified gateway outcome did.
type ReconciliationResult struct {
	Payment        *models.Payment
	Upsert         models.UpsertResult
	InvoiceStatus  models.InvoiceStatus
	InvoicePaid    bool // this outcome moved the invoice to PAID
	AmountMismatch bool
}

// PaymentReconciler applies verified gateway outcomes. It is safe to call any
// number of times with the same outcome.
type PaymentReconciler struct {
	invoices repositories.InvoiceStore
	machine  *InvoiceService
	cache    StatusCache
	log      *zap.Logger
	now      func() time.Time
}

func NewPaymentReconciler(invoices repositories.InvoiceStore, machine *InvoiceService, cache StatusCache, log *zap.Logger) *PaymentReconciler {
	return &PaymentReconciler{
		invoices: invoices,
		machine:  machine,
		cache:    cache,
		log:      log.With(zap.String("component", "reconciler")),
		now:      timeutil.Now,
	}
}

// Reconcile upserts the payment keyed by (gateway, transaction id) and, on a
// SUCCESS whose amount matches the invoice total, marks the invoice paid. All
// writes happen in one transaction holding the invoice row lock.
func (r *PaymentReconciler) Reconcile(ctx context.Context, o *gateway.VerifiedOutcome) (*ReconciliationResult, error) {
	res := &ReconciliationResult{}
	now := r.now()

	err := r.invoices.WithInvoiceLock(ctx, o.InvoiceID, func(ctx context.Context, tx repositories.InvoiceTx) error {
		inv := tx.Invoice()

		p := &models.Payment{
			InvoiceID:     inv.ID,
			TenantID:      inv.TenantID,
			Gateway:       o.Gateway,
			TransactionID: o.TransactionID,
			GatewayRef:    o.GatewayRef,
			Amount:        o.Amount,
			Status:        o.Outcome.PaymentStatus(),
			ResponseCode:  o.ResponseCode,
		}
		if p.Status == models.PaymentStatusSuccess {
			p.PaidAt = &now
		}

		upsert, err := tx.UpsertPayment(ctx, p)
		if err != nil {
			return err
		}
		res.Payment = p
		res.Upsert = upsert

		if !o.Amount.Equal(inv.Total) {
			res.AmountMismatch = true
			// Only a newly applied SUCCESS is worth an operator's attention;
			// replays and failed attempts are not recorded again.
			if p.Status == models.PaymentStatusSuccess && upsert != models.UpsertUnchanged {
				if err := tx.RecordAnomaly(ctx, &models.ReconciliationAnomaly{
					InvoiceID:      inv.ID,
					Gateway:        o.Gateway,
					TransactionID:  o.TransactionID,
					Kind:           models.AnomalyAmountMismatch,
					ExpectedAmount: inv.Total,
					ReportedAmount: o.Amount,
					CreatedAt:      now,
				}); err != nil {
					return err
				}
			}
			res.InvoiceStatus = inv.Status
			return nil
		}

		if p.Status == models.PaymentStatusSuccess {
			paid, err := r.machine.MarkPaidFromGateway(ctx, tx, now)
			if err != nil {
				return err
			}
			res.InvoicePaid = paid
		}
		res.InvoiceStatus = tx.Invoice().Status
		return nil
	})
	if err != nil {
		metrics.Reconciliations.WithLabelValues(o.Gateway, string(o.Outcome), "error").Inc()
		return nil, err
	}

	metrics.Reconciliations.WithLabelValues(o.Gateway, string(o.Outcome), string(res.Upsert)).Inc()
	invalidateStatus(ctx, r.cache, o.InvoiceID)

	fields := []zap.Field{
		zap.String("gateway", o.Gateway),
		zap.String("transaction_id", o.TransactionID),
		zap.Int64("invoice_id", o.InvoiceID),
		zap.String("outcome", string(o.Outcome)),
		zap.String("upsert", string(res.Upsert)),
		zap.String("invoice_status", string(res.InvoiceStatus)),
	}
	if res.AmountMismatch {
		metrics.AmountMismatches.WithLabelValues(o.Gateway).Inc()
		r.log.Warn("gateway amount does not match invoice total; invoice left unchanged",
			append(fields, zap.String("reported", o.Amount.String()))...)
		return res, nil
	}
	r.log.Info("payment reconciled", append(fields, zap.Bool("invoice_paid", res.InvoicePaid))...)
	return res, nil
}
