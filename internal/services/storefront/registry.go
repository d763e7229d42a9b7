package storefront

import (
	"context"
	"sync"

	"letknow-gateway/internal/config"
	"letknow-gateway/internal/models"
	"letknow-gateway/pkg/errors"

	"go.uber.org/zap"
)

// Registry holds the storefronts allowed to call the checkout API.
// Thread-safe; storefronts may be added while requests are served.
type Registry struct {
	mu          sync.RWMutex
	storefronts map[string]*models.Storefront
	defaultID   string
	logger      *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		storefronts: make(map[string]*models.Storefront),
		logger:      logger,
	}
}

// NewRegistryFromConfig registers the configured storefront and makes it the default.
func NewRegistryFromConfig(cfg config.StorefrontConfig, logger *zap.Logger) *Registry {
	r := NewRegistry(logger)
	r.Add(&models.Storefront{
		ID:         cfg.ID,
		APIKeyHash: cfg.APIKeyHash,
		AllowedIPs: cfg.AllowedIPs,
	})
	r.defaultID = cfg.ID
	return r
}

func (r *Registry) Add(sf *models.Storefront) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.storefronts[sf.ID] = sf
	if r.defaultID == "" {
		r.defaultID = sf.ID
	}
}

// DefaultID is the storefront assumed for bearer tokens that carry no storefront id.
func (r *Registry) DefaultID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultID
}

func (r *Registry) GetStorefront(ctx context.Context, storefrontID string) (*models.Storefront, error) {
	select {
	case <-ctx.Done():
		return nil, errors.WrapDomainError(ctx.Err(), errors.CodeDependencyUnavailable, "storefront lookup cancelled", "context cancelled")
	default:
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	sf, exists := r.storefronts[storefrontID]
	if !exists {
		return nil, errors.NewDomainError(errors.CodeNotFound, "storefront not found", "storefront_id not found")
	}
	return sf, nil
}
