// Command storefrontctl manages the storefronts allowed to call the checkout API.
//
//	storefrontctl upsert -id shop-eu -key-env SHOP_EU_API_KEY [-allowed-ips 10.0.0.0/8,203.0.113.7]
//	storefrontctl suspend -id shop-eu
//	storefrontctl activate -id shop-eu
//
// Postgres and Redis are configured through the same environment as the server.
// The plaintext key is read from the named environment variable and stored only as a bcrypt hash.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	redisclient "letknow-gateway/internal/clients/redis"
	"letknow-gateway/internal/config"
	"letknow-gateway/internal/logging"
	"letknow-gateway/internal/models"
	"letknow-gateway/internal/repository/storefront_registry"
	"letknow-gateway/internal/services/storefront"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	cfg, err := config.LoadStorageConfig()
	if err != nil {
		fail("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		fail("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := run(ctx, cfg, logger, os.Args[1], os.Args[2:]); err != nil {
		logger.Error("storefrontctl failed", zap.String("command", os.Args[1]), zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger, command string, args []string) error {
	fs := flag.NewFlagSet(command, flag.ExitOnError)
	id := fs.String("id", "", "storefront id")
	keyEnv := fs.String("key-env", "", "environment variable holding the plaintext api key (upsert)")
	allowedIPs := fs.String("allowed-ips", "", "comma-separated CIDR allowlist (upsert)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("-id is required")
	}

	var sf *models.Storefront
	switch command {
	case "upsert":
		var err error
		if sf, err = buildStorefront(*id, *keyEnv, *allowedIPs); err != nil {
			return err
		}
	case "suspend", "activate":
	default:
		usage()
	}

	db, err := sql.Open("postgres", cfg.Postgres.DSN())
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	defer db.Close()

	redisClient, err := redisclient.NewClient(ctx, cfg.Redis, logger)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close()

	repo := storefront_registry.NewRepository(db, logger)
	if err := repo.EnsureSchema(ctx); err != nil {
		return err
	}

	registry := storefront.NewDBRegistry(
		storefront.NewRegistry(logger),
		repo,
		redisClient.GetClient(),
		cfg.Redis.KeyPrefix,
		cfg.Storefront.CacheTTL,
		logger,
	)

	switch command {
	case "upsert":
		err = registry.UpsertStorefront(ctx, sf)
	case "suspend":
		err = registry.UpdateStatus(ctx, *id, models.StorefrontStatusSuspended)
	case "activate":
		err = registry.UpdateStatus(ctx, *id, models.StorefrontStatusActive)
	}
	if err != nil {
		return err
	}

	logger.Info("storefront updated", zap.String("command", command), zap.String("storefront_id", *id))
	return nil
}

func buildStorefront(id, keyEnv, allowedIPs string) (*models.Storefront, error) {
	if keyEnv == "" {
		return nil, fmt.Errorf("-key-env is required for upsert")
	}
	apiKey := os.Getenv(keyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("environment variable %s is empty", keyEnv)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(apiKey), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash api key: %w", err)
	}

	var cidrs []string
	for _, cidr := range strings.Split(allowedIPs, ",") {
		cidr = strings.TrimSpace(cidr)
		if cidr == "" {
			continue
		}
		if _, err := models.ParseIPRange(cidr); err != nil {
			return nil, fmt.Errorf("invalid allowed ip range %q: %w", cidr, err)
		}
		cidrs = append(cidrs, cidr)
	}

	return &models.Storefront{
		ID:         id,
		APIKeyHash: string(hash),
		AllowedIPs: cidrs,
		Status:     models.StorefrontStatusActive,
	}, nil
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: storefrontctl upsert|suspend|activate -id <storefront_id> [-key-env VAR] [-allowed-ips CIDRS]")
	os.Exit(2)
}

func fail(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
