package services

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"rental-backend/internal/archive"
	"rental-backend/internal/fieldcrypt"
	"rental-backend/internal/gateway"
	"rental-backend/internal/metrics"
	"rental-backend/internal/models"
	"rental-backend/internal/repositories"
	"rental-backend/internal/timeutil"
)

// FieldDecrypter opens sealed PII columns. *fieldcrypt.Cipher implements it.
type FieldDecrypter interface {
	Decrypt(stored fieldcrypt.Sealed) fieldcrypt.Result
}

type CreatePaymentInput struct {
	InvoiceID int64
	ClientIP  string
	Options   map[string]string
}

// InboundKind tells a browser return from a server-to-server callback.
type InboundKind string

const (
	InboundReturn   InboundKind = "return"
	InboundCallback InboundKind = "callback"
)

type InboundResult struct {
	Outcome        *gateway.VerifiedOutcome
	Reconciliation *ReconciliationResult
}

// PaymentService issues payment URLs and feeds inbound gateway messages
// through verification into the reconciler.
type PaymentService struct {
	registry   *gateway.Registry
	invoices   repositories.InvoiceStore
	payments   repositories.PaymentStore
	tenants    repositories.TenantStore
	cipher     FieldDecrypter
	reconciler *PaymentReconciler
	archive    archive.Archiver
	cache      StatusCache
	log        *zap.Logger
	now        func() time.Time
}

func NewPaymentService(
	registry *gateway.Registry,
	invoices repositories.InvoiceStore,
	payments repositories.PaymentStore,
	tenants repositories.TenantStore,
	cipher FieldDecrypter,
	reconciler *PaymentReconciler,
	arch archive.Archiver,
	cache StatusCache,
	log *zap.Logger,
) *PaymentService {
	if arch == nil {
		arch = archive.Nop{}
	}
	return &PaymentService{
		registry:   registry,
		invoices:   invoices,
		payments:   payments,
		tenants:    tenants,
		cipher:     cipher,
		reconciler: reconciler,
		archive:    arch,
		cache:      cache,
		log:        log.With(zap.String("component", "payment")),
		now:        timeutil.Now,
	}
}

func (s *PaymentService) Adapter(name string) (gateway.Adapter, error) {
	return s.registry.Get(name)
}

// CreatePayment builds a signed payment URL and records the issued
// transaction id as a PENDING payment. Nothing is written when the gateway
// cannot be reached.
func (s *PaymentService) CreatePayment(ctx context.Context, actor models.Principal, gatewayName string, in CreatePaymentInput) (*gateway.PaymentURL, error) {
	adapter, err := s.registry.Get(gatewayName)
	if err != nil {
		return nil, err
	}
	if in.InvoiceID <= 0 {
		return nil, models.ErrValidation
	}
	inv, err := s.invoices.GetInvoice(ctx, in.InvoiceID)
	if err != nil {
		return nil, err
	}
	if !actor.CanView(inv) {
		return nil, models.ErrForbidden
	}
	if inv.Status == models.InvoiceStatusPaid {
		return nil, models.ErrAlreadyPaid
	}

	name := adapter.Name()
	start := time.Now()
	url, err := adapter.CreatePaymentURL(ctx, gateway.PaymentRequest{
		InvoiceID: inv.ID,
		Amount:    inv.Total,
		ClientIP:  in.ClientIP,
		Options:   in.Options,
		Payer:     s.payer(ctx, inv.TenantID),
	})
	metrics.GatewayCreateDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		result := "error"
		if errors.Is(err, models.ErrGatewayUnavailable) {
			result = "unavailable"
		}
		metrics.GatewayCreateTotal.WithLabelValues(name, result).Inc()
		s.log.Warn("payment url not created",
			zap.String("gateway", name), zap.Int64("invoice_id", inv.ID), zap.Error(err))
		return nil, err
	}

	if err := s.payments.CreatePendingPayment(ctx, &models.Payment{
		InvoiceID:     inv.ID,
		TenantID:      inv.TenantID,
		Gateway:       name,
		TransactionID: url.TransactionID,
		Amount:        inv.Total,
	}); err != nil {
		metrics.GatewayCreateTotal.WithLabelValues(name, "error").Inc()
		return nil, err
	}

	metrics.GatewayCreateTotal.WithLabelValues(name, "ok").Inc()
	invalidateStatus(ctx, s.cache, inv.ID)
	s.log.Info("payment url created",
		zap.String("gateway", name),
		zap.Int64("invoice_id", inv.ID),
		zap.String("transaction_id", url.TransactionID))
	return url, nil
}

// payer decrypts the tenant's contact details for the gateway checkout page.
// Fields that cannot be decrypted are left out, never sent sealed.
func (s *PaymentService) payer(ctx context.Context, tenantID int64) *gateway.Payer {
	if s.cipher == nil || s.tenants == nil {
		return nil
	}
	t, err := s.tenants.GetTenant(ctx, tenantID)
	if err != nil {
		s.log.Debug("tenant not loaded for payer info", zap.Int64("tenant_id", tenantID), zap.Error(err))
		return nil
	}
	open := func(field string, v fieldcrypt.Sealed) string {
		res := s.cipher.Decrypt(v)
		if res.Failed() {
			metrics.DecryptFailures.WithLabelValues("payer_" + field).Inc()
			s.log.Warn("tenant field could not be decrypted; omitted from payer info",
				zap.Int64("tenant_id", tenantID), zap.String("field", field))
		}
		return res.OrEmpty()
	}
	p := &gateway.Payer{
		Name:  open("full_name", t.FullName),
		Phone: open("phone", t.Phone),
		Email: open("email", t.Email),
	}
	if *p == (gateway.Payer{}) {
		return nil
	}
	return p
}

// HandleInbound verifies a gateway return or callback, archives it and
// reconciles it. A verification error means nothing was written, not even
// to the archive.
func (s *PaymentService) HandleInbound(ctx context.Context, gatewayName string, kind InboundKind, r *http.Request) (*InboundResult, error) {
	adapter, err := s.registry.Get(gatewayName)
	if err != nil {
		return nil, err
	}
	name := adapter.Name()

	params, err := adapter.InboundParams(r)
	if err != nil {
		metrics.InboundMessages.WithLabelValues(name, string(kind), "malformed").Inc()
		s.log.Warn("malformed gateway message", zap.String("gateway", name), zap.String("kind", string(kind)), zap.Error(err))
		return nil, err
	}

	outcome, err := adapter.VerifyInbound(params)
	if err != nil {
		metrics.InboundMessages.WithLabelValues(name, string(kind), "rejected").Inc()
		s.log.Warn("gateway message rejected",
			zap.String("gateway", name), zap.String("kind", string(kind)), zap.Error(err))
		return nil, err
	}
	metrics.InboundMessages.WithLabelValues(name, string(kind), "verified").Inc()

	if err := s.archive.Store(ctx, archive.Message{
		Gateway:       name,
		Kind:          string(kind),
		ReceivedAt:    s.now(),
		TransactionID: outcome.TransactionID,
		Params:        params,
	}); err != nil {
		s.log.Error("failed to archive gateway message", zap.String("gateway", name), zap.Error(err))
	}

	res, err := s.reconciler.Reconcile(ctx, outcome)
	if err != nil {
		return &InboundResult{Outcome: outcome}, err
	}
	return &InboundResult{Outcome: outcome, Reconciliation: res}, nil
}
