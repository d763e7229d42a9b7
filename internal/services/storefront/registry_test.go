package storefront

import (
	"context"
	"testing"

	"letknow-gateway/internal/config"
	"letknow-gateway/internal/models"
	"letknow-gateway/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewRegistryFromConfig(t *testing.T) {
	r := NewRegistryFromConfig(config.StorefrontConfig{
		ID:         "shop-eu",
		APIKeyHash: "$2a$10$hash",
		AllowedIPs: []string{"10.0.0.0/8"},
	}, zap.NewNop())

	assert.Equal(t, "shop-eu", r.DefaultID())

	sf, err := r.GetStorefront(context.Background(), "shop-eu")
	require.NoError(t, err)
	assert.Equal(t, "$2a$10$hash", sf.APIKeyHash)
	assert.Equal(t, []string{"10.0.0.0/8"}, sf.AllowedIPs)
}

func TestRegistry_Add_KeepsFirstAsDefault(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	r.Add(&models.Storefront{ID: "a"})
	r.Add(&models.Storefront{ID: "b"})

	assert.Equal(t, "a", r.DefaultID())

	sf, err := r.GetStorefront(context.Background(), "b")
	require.NoError(t, err)
	assert.Equal(t, "b", sf.ID)
}

func TestRegistry_GetStorefront_NotFound(t *testing.T) {
	r := NewRegistry(zap.NewNop())

	_, err := r.GetStorefront(context.Background(), "missing")

	assert.True(t, errors.HasCode(err, errors.CodeNotFound))
}

func TestRegistry_GetStorefront_Cancelled(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	r.Add(&models.Storefront{ID: "a"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.GetStorefront(ctx, "a")

	assert.True(t, errors.HasCode(err, errors.CodeDependencyUnavailable))
}
