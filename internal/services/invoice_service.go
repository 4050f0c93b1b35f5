package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"rental-backend/internal/metrics"
	"rental-backend/internal/models"
	"rental-backend/internal/repositories"
	"rental-backend/internal/timeutil"
)

const (
	sourceTenant  = "tenant"
	sourceManager = "manager"
	sourceGateway = "gateway"
)

// InvoiceService is the invoice state machine. Every status change is a single
// conditional write so concurrent actors cannot move an invoice backwards.
type InvoiceService struct {
	invoices repositories.InvoiceStore
	payments repositories.PaymentStore
	cache    StatusCache
	log      *zap.Logger
	now      func() time.Time
}

func NewInvoiceService(invoices repositories.InvoiceStore, payments repositories.PaymentStore, cache StatusCache, log *zap.Logger) *InvoiceService {
	return &InvoiceService{
		invoices: invoices,
		payments: payments,
		cache:    cache,
		log:      log.With(zap.String("component", "invoice")),
		now:      timeutil.Now,
	}
}

// RequestPayment moves UNPAID -> PENDING for the tenant billed by the invoice.
func (s *InvoiceService) RequestPayment(ctx context.Context, id int64, actor models.Principal) (*models.Invoice, error) {
	inv, err := s.invoices.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsTenant(inv.TenantID) {
		return nil, models.ErrForbidden
	}
	if err := checkRequestable(inv.Status); err != nil {
		return nil, err
	}

	ok, err := s.invoices.MarkInvoiceRequested(ctx, id, s.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		// lost a race; report what it lost to
		current, err := s.invoices.GetInvoice(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := checkRequestable(current.Status); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("invoice %d is %s: %w", id, current.Status, models.ErrInvalidTransition)
	}

	s.transitioned(ctx, id, models.InvoiceStatusPending, sourceTenant)
	return s.invoices.GetInvoice(ctx, id)
}

func checkRequestable(status models.InvoiceStatus) error {
	switch {
	case status == models.InvoiceStatusPaid:
		return models.ErrAlreadyPaid
	case !models.CanTransition(status, models.InvoiceStatusPending):
		return fmt.Errorf("invoice is %s: %w", status, models.ErrInvalidTransition)
	}
	return nil
}

// ConfirmPaid is the manager's manual confirmation. A second call fails with
// ErrAlreadyPaid instead of being silently ignored.
func (s *InvoiceService) ConfirmPaid(ctx context.Context, id int64, actor models.Principal) (*models.Invoice, error) {
	if !actor.IsManager() {
		return nil, models.ErrForbidden
	}
	if _, err := s.invoices.GetInvoice(ctx, id); err != nil {
		return nil, err
	}

	ok, err := s.invoices.MarkInvoicePaid(ctx, id, s.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, models.ErrAlreadyPaid
	}

	s.transitioned(ctx, id, models.InvoiceStatusPaid, sourceManager)
	return s.invoices.GetInvoice(ctx, id)
}

// MarkPaidFromGateway runs under the invoice lock held by the reconciler. An
// invoice that is already PAID is left as it is, paidAt included.
func (s *InvoiceService) MarkPaidFromGateway(ctx context.Context, tx repositories.InvoiceTx, at time.Time) (bool, error) {
	if !models.CanTransition(tx.Invoice().Status, models.InvoiceStatusPaid) {
		return false, nil
	}
	ok, err := tx.MarkPaid(ctx, at)
	if err != nil {
		return false, err
	}
	if ok {
		metrics.InvoiceTransitions.WithLabelValues(string(models.InvoiceStatusPaid), sourceGateway).Inc()
	}
	return ok, nil
}

func (s *InvoiceService) transitioned(ctx context.Context, id int64, to models.InvoiceStatus, source string) {
	metrics.InvoiceTransitions.WithLabelValues(string(to), source).Inc()
	invalidateStatus(ctx, s.cache, id)
	s.log.Info("invoice status changed",
		zap.Int64("invoice_id", id), zap.String("status", string(to)), zap.String("source", source))
}

func (s *InvoiceService) Get(ctx context.Context, id int64, actor models.Principal) (*models.Invoice, error) {
	inv, err := s.invoices.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanView(inv) {
		return nil, models.ErrForbidden
	}
	return inv, nil
}

// List returns every invoice matching f for managers; tenants only see their own.
func (s *InvoiceService) List(ctx context.Context, actor models.Principal, f models.InvoiceFilter) ([]*models.Invoice, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, fmt.Errorf("unknown status %q: %w", f.Status, models.ErrValidation)
	}
	if f.Period != "" && !timeutil.ValidPeriod(f.Period) {
		return nil, fmt.Errorf("period must be YYYY-MM: %w", models.ErrValidation)
	}
	if !actor.IsManager() {
		if actor.TenantID == nil {
			return nil, models.ErrForbidden
		}
		f.TenantID = actor.TenantID
	}
	invoices, err := s.invoices.ListInvoices(ctx, f)
	if err != nil {
		return nil, err
	}
	if invoices == nil {
		invoices = []*models.Invoice{}
	}
	return invoices, nil
}

func (s *InvoiceService) Payments(ctx context.Context, id int64, actor models.Principal) ([]*models.Payment, error) {
	if _, err := s.Get(ctx, id, actor); err != nil {
		return nil, err
	}
	payments, err := s.payments.ListPayments(ctx, id)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}
	if payments == nil {
		payments = []*models.Payment{}
	}
	return payments, nil
}
