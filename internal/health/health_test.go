package health

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type stubCache struct{ enabled, healthy bool }

func (s stubCache) Enabled() bool { return s.enabled }
func (s stubCache) IsHealthy(ctx context.Context) bool { return s.healthy }

func TestCheckBasic(t *testing.T) {
	up := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("connection refused") })

	s := NewHealthChecker(up, nil).CheckBasic(context.Background())
	assert.Equal(t, "healthy", s.Status)
	assert.Equal(t, "disabled", s.Cache)

	s = NewHealthChecker(up, stubCache{enabled: true}).CheckBasic(context.Background())
	assert.Equal(t, "healthy", s.Status)
	assert.Equal(t, "degraded", s.Cache)

	s = NewHealthChecker(down, stubCache{enabled: true, healthy: true}).CheckBasic(context.Background())
	assert.Equal(t, "unhealthy", s.Status)
	assert.Equal(t, "unhealthy", s.Database.Status)
	assert.Equal(t, "healthy", s.Cache)
}
