package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"rental-backend/internal/metrics"
	"rental-backend/internal/models"
	"rental-backend/internal/repositories"
	"rental-backend/internal/timeutil"
)

// TriggerResult is what one run of the lock trigger produced. Invoice is nil
// when the room is vacant.
type TriggerResult struct {
	Reading *models.MeterReading `json:"reading"`
	Invoice *models.Invoice      `json:"invoice,omitempty"`
	Created bool                 `json:"created"`
	Reason  string               `json:"reason,omitempty"`
}

const (
	reasonCreated = "created"
	reasonExists  = "exists"
	reasonVacant  = "vacant"
	reasonLocked  = "already_locked"
)

// MeterService owns meter readings and turns a locked reading into exactly one
// invoice for its (room, period).
type MeterService struct {
	readings repositories.ReadingStore
	rooms    repositories.RoomStore
	settings repositories.SettingStore
	invoices repositories.InvoiceStore
	cache    StatusCache
	log      *zap.Logger
	now      func() time.Time
}

func NewMeterService(
	readings repositories.ReadingStore,
	rooms repositories.RoomStore,
	settings repositories.SettingStore,
	invoices repositories.InvoiceStore,
	cache StatusCache,
	log *zap.Logger,
) *MeterService {
	return &MeterService{
		readings: readings,
		rooms:    rooms,
		settings: settings,
		invoices: invoices,
		cache:    cache,
		log:      log.With(zap.String("component", "meter")),
		now:      timeutil.Now,
	}
}

func (s *MeterService) CreateReading(ctx context.Context, req *models.CreateMeterReadingRequest) (*models.MeterReading, error) {
	if req.RoomID <= 0 || !timeutil.ValidPeriod(req.Period) {
		return nil, fmt.Errorf("room_id and period (YYYY-MM) are required: %w", models.ErrValidation)
	}
	if req.ElectricityNew < 0 || req.WaterNew < 0 {
		return nil, fmt.Errorf("meter counters cannot be negative: %w", models.ErrValidation)
	}
	if _, err := s.rooms.GetRoom(ctx, req.RoomID); err != nil {
		return nil, err
	}

	r := &models.MeterReading{
		RoomID:         req.RoomID,
		Period:         req.Period,
		ElectricityNew: req.ElectricityNew,
		WaterNew:       req.WaterNew,
	}

	// Skipped periods are not prorated: old counters come from the newest
	// earlier reading however far back it is.
	if req.ElectricityOld == nil || req.WaterOld == nil {
		prev, err := s.readings.LatestReadingBefore(ctx, req.RoomID, req.Period)
		switch {
		case err == nil:
			r.ElectricityOld = prev.ElectricityNew
			r.WaterOld = prev.WaterNew
		case errors.Is(err, models.ErrNotFound):
		default:
			return nil, err
		}
	}
	if req.ElectricityOld != nil {
		r.ElectricityOld = *req.ElectricityOld
	}
	if req.WaterOld != nil {
		r.WaterOld = *req.WaterOld
	}

	if err := s.readings.CreateReading(ctx, r); err != nil {
		return nil, err
	}
	s.log.Info("meter reading created",
		zap.Int64("reading_id", r.ID), zap.Int64("room_id", r.RoomID), zap.String("period", r.Period))
	return r, nil
}

func (s *MeterService) GetReading(ctx context.Context, id int64) (*models.MeterReading, error) {
	return s.readings.GetReading(ctx, id)
}

// Lock locks the reading and runs the invoice trigger. Locking twice is a
// no-op that returns the existing invoice.
func (s *MeterService) Lock(ctx context.Context, readingID int64) (*TriggerResult, error) {
	return s.OnLock(ctx, readingID)
}

// OnLock flips the reading to locked and materializes its invoice in the same
// write. Only the call that flips the lock can create an invoice; any later
// call, including one racing it, reports what the first call left behind.
func (s *MeterService) OnLock(ctx context.Context, readingID int64) (*TriggerResult, error) {
	reading, err := s.readings.GetReading(ctx, readingID)
	if err != nil {
		return nil, err
	}
	if reading.Locked {
		return s.alreadyLocked(ctx, reading)
	}

	room, err := s.rooms.GetRoom(ctx, reading.RoomID)
	if err != nil {
		return nil, err
	}

	var inv *models.Invoice
	if room.HasTenant() {
		prices, err := s.settings.UtilityPrices(ctx)
		if err != nil {
			return nil, err
		}
		inv = &models.Invoice{
			RoomID:           room.ID,
			TenantID:         *room.CurrentTenantID,
			ReadingID:        &reading.ID,
			Period:           reading.Period,
			Rent:             room.Rent,
			ElectricityUsed:  reading.ElectricityUsed(),
			ElectricityPrice: prices.Electricity,
			WaterUsed:        reading.WaterUsed(),
			WaterPrice:       prices.Water,
			Surcharge:        decimal.Zero,
		}
		inv.Total = inv.ComputeTotal()
	}

	at := s.now()
	locked, created, err := s.readings.LockReading(ctx, reading.ID, at, inv)
	if err != nil {
		return nil, err
	}
	if !locked {
		return s.alreadyLocked(ctx, reading)
	}
	reading.Locked = true
	reading.LockedAt = &at

	res := &TriggerResult{Reading: reading}
	if inv == nil {
		res.Reason = reasonVacant
		metrics.InvoicesGenerated.WithLabelValues(reasonVacant).Inc()
		s.log.Info("room vacant, no invoice", zap.Int64("room_id", room.ID), zap.String("period", reading.Period))
		return res, nil
	}
	if !created {
		existing, err := s.findInvoice(ctx, room.ID, reading.Period)
		if err != nil {
			return nil, err
		}
		res.Invoice = existing
		res.Reason = reasonExists
		metrics.InvoicesGenerated.WithLabelValues(reasonExists).Inc()
		return res, nil
	}

	res.Invoice = inv
	res.Created = true
	res.Reason = reasonCreated
	metrics.InvoicesGenerated.WithLabelValues(reasonCreated).Inc()
	invalidateStatus(ctx, s.cache, inv.ID)
	s.log.Info("invoice created",
		zap.Int64("invoice_id", inv.ID),
		zap.Int64("room_id", inv.RoomID),
		zap.String("period", inv.Period),
		zap.String("total", inv.Total.String()))
	return res, nil
}

// alreadyLocked is the no-op answer for a reading some earlier call locked:
// its invoice if one exists, otherwise nothing. A tenant assigned after the
// lock is never billed for that period.
func (s *MeterService) alreadyLocked(ctx context.Context, reading *models.MeterReading) (*TriggerResult, error) {
	fresh, err := s.readings.GetReading(ctx, reading.ID)
	if err != nil {
		return nil, err
	}
	res := &TriggerResult{Reading: fresh}

	existing, err := s.findInvoice(ctx, fresh.RoomID, fresh.Period)
	switch {
	case err == nil:
		res.Invoice = existing
		res.Reason = reasonExists
	case errors.Is(err, models.ErrNotFound):
		res.Reason = reasonLocked
	default:
		return nil, err
	}
	metrics.InvoicesGenerated.WithLabelValues(res.Reason).Inc()
	return res, nil
}

func (s *MeterService) findInvoice(ctx context.Context, roomID int64, period string) (*models.Invoice, error) {
	list, err := s.invoices.ListInvoices(ctx, models.InvoiceFilter{RoomID: &roomID, Period: period, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("invoice for room %d period %s: %w", roomID, period, models.ErrNotFound)
	}
	return list[0], nil
}

func (s *MeterService) UtilityPrices(ctx context.Context) (models.UtilityPrices, error) {
	return s.settings.UtilityPrices(ctx)
}

// SetUtilityPrices only affects invoices created afterwards.
func (s *MeterService) SetUtilityPrices(ctx context.Context, p models.UtilityPrices) error {
	if p.Electricity.IsNegative() || p.Water.IsNegative() {
		return fmt.Errorf("prices cannot be negative: %w", models.ErrValidation)
	}
	if err := s.settings.SetUtilityPrices(ctx, p); err != nil {
		return err
	}
	s.log.Info("utility prices updated",
		zap.String("electricity", p.Electricity.String()), zap.String("water", p.Water.String()))
	return nil
}
