package services

import (
	"context"

	"rental-backend/internal/models"
	"rental-backend/internal/repositories"
)

type AnomalyService struct {
	anomalies repositories.AnomalyStore
}

func NewAnomalyService(anomalies repositories.AnomalyStore) *AnomalyService {
	return &AnomalyService{anomalies: anomalies}
}

// List returns the newest anomalies first; managers only.
func (s *AnomalyService) List(ctx context.Context, actor models.Principal, limit int) ([]*models.ReconciliationAnomaly, error) {
	if !actor.IsManager() {
		return nil, models.ErrForbidden
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	list, err := s.anomalies.ListAnomalies(ctx, limit)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []*models.ReconciliationAnomaly{}
	}
	return list, nil
}
