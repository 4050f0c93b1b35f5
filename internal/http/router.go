package http

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"rental-backend/internal/handlers"
	"rental-backend/internal/middleware"
	"rental-backend/internal/models"
)

type Handlers struct {
	Invoice  *handlers.InvoiceHandler
	Meter    *handlers.MeterHandler
	Gateway  *handlers.GatewayHandler
	Settings *handlers.SettingsHandler
	Health   *handlers.HealthHandler
}

func NewRouter(h Handlers, authMiddleware *middleware.AuthMiddleware, log *zap.Logger) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.MetricsMiddleware, middleware.RequestLogger(log))

	// protect wraps a handler in authentication and, when roles are given, a role check.
	protect := func(fn http.HandlerFunc, roles ...models.Role) http.Handler {
		var next http.Handler = fn
		if len(roles) > 0 {
			next = middleware.RequireRole(roles...)(next)
		}
		return authMiddleware.Authenticate(next)
	}

	// Health and metrics
	r.HandleFunc("/health", h.Health.BasicHealth).Methods("GET")
	r.HandleFunc("/health/ready", h.Health.ReadinessHealth).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Meter readings (manager)
	r.Handle("/meter-readings", protect(h.Meter.CreateReading, models.RoleManager)).Methods("POST")
	r.Handle("/meter-readings/{id:[0-9]+}", protect(h.Meter.GetReading, models.RoleManager)).Methods("GET")
	r.Handle("/meter-readings/{id:[0-9]+}/lock", protect(h.Meter.LockReading, models.RoleManager)).Methods("PATCH")

	// Invoices
	r.Handle("/invoices/generate-trigger", protect(h.Invoice.GenerateTrigger, models.RoleManager)).Methods("POST")
	r.Handle("/invoices", protect(h.Invoice.ListInvoices)).Methods("GET")
	r.Handle("/invoices/{id:[0-9]+}", protect(h.Invoice.GetInvoice)).Methods("GET")
	r.Handle("/invoices/{id:[0-9]+}/payments", protect(h.Invoice.ListPayments)).Methods("GET")
	r.Handle("/invoices/{id:[0-9]+}/request-payment", protect(h.Invoice.RequestPayment, models.RoleTenant)).Methods("POST")
	r.Handle("/invoices/{id:[0-9]+}/pay", protect(h.Invoice.ConfirmPaid, models.RoleManager)).Methods("PATCH")

	// Settings and operator review (manager)
	r.Handle("/settings/utility-prices", protect(h.Settings.GetUtilityPrices, models.RoleManager)).Methods("GET")
	r.Handle("/settings/utility-prices", protect(h.Settings.PutUtilityPrices, models.RoleManager)).Methods("PUT")
	r.Handle("/reconciliation/anomalies", protect(h.Settings.ListAnomalies, models.RoleManager)).Methods("GET")

	// Payment gateways. Return and callback are called by the gateway or the
	// payer's browser and are authenticated by signature, not by token.
	r.Handle("/{gateway:[a-z]+}/create", protect(h.Gateway.CreatePayment)).Methods("POST")
	r.Handle("/{gateway:[a-z]+}/status/{invoiceId:[0-9]+}", protect(h.Gateway.Status)).Methods("GET")
	r.HandleFunc("/{gateway:[a-z]+}/return", h.Gateway.Return).Methods("GET")
	r.HandleFunc("/{gateway:[a-z]+}/callback", h.Gateway.Callback).Methods("GET", "POST")

	return r
}
