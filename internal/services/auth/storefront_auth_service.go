package auth

import (
	"context"

	"letknow-gateway/internal/models"
	perrors "letknow-gateway/pkg/errors"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const ErrMsgAuthFailed = "authentication failed"

type StorefrontRegistry interface {
	GetStorefront(ctx context.Context, storefrontID string) (*models.Storefront, error)
	DefaultID() string
}

type StorefrontAuthService struct {
	registry StorefrontRegistry
	logger   *zap.Logger
}

func NewStorefrontAuthService(registry StorefrontRegistry, logger *zap.Logger) *StorefrontAuthService {
	return &StorefrontAuthService{
		registry: registry,
		logger:   logger,
	}
}

// AuthenticateStorefront checks apiKey against the storefront's bcrypt hash and its IP allowlist.
// Suspended storefronts are rejected only after their key verifies.
// An empty storefrontID selects the registry default.
func (s *StorefrontAuthService) AuthenticateStorefront(ctx context.Context, storefrontID, apiKey, clientIP string) (*models.Storefront, error) {
	if storefrontID == "" {
		storefrontID = s.registry.DefaultID()
	}

	sf, err := s.registry.GetStorefront(ctx, storefrontID)
	if err != nil {
		return s.handleRegistryError(err, storefrontID)
	}

	if !sf.AllowsIP(clientIP) {
		s.logger.Warn("authentication failed: IP address not allowed",
			zap.String("storefront_id", storefrontID),
			zap.String("client_ip", clientIP),
			zap.Strings("allowed_ips", sf.AllowedIPs),
		)
		return nil, perrors.NewDomainError(perrors.CodeAuthFailed, ErrMsgAuthFailed, "invalid credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(sf.APIKeyHash), []byte(apiKey)); err != nil {
		s.logger.Warn("authentication failed: invalid credentials",
			zap.String("storefront_id", storefrontID),
			zap.String("client_ip", clientIP),
		)
		return nil, perrors.NewDomainError(perrors.CodeAuthFailed, ErrMsgAuthFailed, "invalid credentials")
	}

	if !sf.IsActive() {
		s.logger.Warn("authentication failed: storefront not active",
			zap.String("storefront_id", storefrontID),
			zap.String("status", sf.Status),
		)
		return nil, perrors.NewDomainError(perrors.CodeAuthFailed, ErrMsgAuthFailed, "storefront not active")
	}

	return sf, nil
}

func (s *StorefrontAuthService) handleRegistryError(err error, storefrontID string) (*models.Storefront, error) {
	if perrors.HasCode(err, perrors.CodeNotFound) {
		s.logger.Info("authentication failed: storefront not found",
			zap.String("storefront_id", storefrontID),
		)
		return nil, perrors.NewDomainError(perrors.CodeAuthFailed, ErrMsgAuthFailed, "invalid credentials")
	}

	s.logger.Error("authentication service unavailable: registry error",
		zap.String("storefront_id", storefrontID),
		zap.Error(err),
	)
	return nil, perrors.WrapDomainError(err, perrors.CodeDependencyUnavailable, "authentication service unavailable", "dependency error")
}
