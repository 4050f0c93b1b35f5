package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"rental-backend/internal/fieldcrypt"
	"rental-backend/internal/metrics"
	"rental-backend/internal/repositories"
)

// FieldRotator re-seals a value under the current key. *fieldcrypt.Cipher
// implements it.
type FieldRotator interface {
	Rotate(stored fieldcrypt.Sealed) (fieldcrypt.Sealed, fieldcrypt.RotateAction, error)
}

type RotationReport struct {
	TenantsScanned  int     `json:"tenants_scanned"`
	TenantsUpdated  int     `json:"tenants_updated"`
	Reencrypted     int     `json:"reencrypted"`
	LegacyEncrypted int     `json:"legacy_encrypted"`
	Failed          int     `json:"failed"`
	FailedTenants   []int64 `json:"failed_tenants,omitempty"`
}

// KeyRotator moves every tenant PII field onto the current key. Fields no key
// can open are left untouched and reported.
type KeyRotator struct {
	tenants  repositories.TenantStore
	cipher   FieldRotator
	log      *zap.Logger
	PageSize int
	DryRun   bool
}

func NewKeyRotator(tenants repositories.TenantStore, cipher FieldRotator, log *zap.Logger) *KeyRotator {
	return &KeyRotator{
		tenants:  tenants,
		cipher:   cipher,
		log:      log.With(zap.String("component", "key_rotation")),
		PageSize: 200,
	}
}

func (k *KeyRotator) pageSize() int {
	if k.PageSize <= 0 {
		return 200
	}
	return k.PageSize
}

func (k *KeyRotator) Run(ctx context.Context) (*RotationReport, error) {
	report := &RotationReport{}
	var after int64

	for {
		page, err := k.tenants.ListTenants(ctx, after, k.pageSize())
		if err != nil {
			return report, err
		}
		if len(page) == 0 {
			return report, nil
		}

		for _, t := range page {
			after = t.ID
			report.TenantsScanned++

			changed, failed := false, false
			for _, field := range t.SealedFields() {
				out, action, err := k.cipher.Rotate(*field)
				switch action {
				case fieldcrypt.RotateReencrypted:
					report.Reencrypted++
				case fieldcrypt.RotateLegacyEncrypted:
					report.LegacyEncrypted++
				case fieldcrypt.RotateFailed:
					if !errors.Is(err, fieldcrypt.ErrDecryptFailed) {
						return report, fmt.Errorf("failed to rotate tenant %d: %w", t.ID, err)
					}
					report.Failed++
					failed = true
					metrics.DecryptFailures.WithLabelValues("rotation").Inc()
					continue
				default:
					continue
				}
				*field = out
				changed = true
			}

			if failed {
				report.FailedTenants = append(report.FailedTenants, t.ID)
				k.log.Warn("tenant has fields no key can open", zap.Int64("tenant_id", t.ID))
			}
			if !changed {
				continue
			}
			if !k.DryRun {
				if err := k.tenants.UpdateTenantPII(ctx, t); err != nil {
					return report, err
				}
			}
			report.TenantsUpdated++
		}
	}
}
