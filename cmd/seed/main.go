// Command seed loads catalog products from a JSON file into the store.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"

	"storefront/config"
	"storefront/internal/models"
	"storefront/internal/redisclient"
	"storefront/internal/store"
	"storefront/internal/util"

	"go.uber.org/zap"
)

func main() {
	path := flag.String("file", "products.json", "JSON array of products to upsert")
	flag.Parse()

	cfg := config.Load()
	if err := util.InitLogger(cfg.Server.Env, cfg.Observ.LogLevel, "storefront-seed"); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()
	logger := util.GetLogger()

	products, err := readProducts(*path)
	if err != nil {
		logger.Fatal("Failed to read products", zap.String("file", *path), zap.Error(err))
	}

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := db.Migrate(ctx); err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}

	var cache *redisclient.Client
	if cfg.Redis.Addr != "" {
		cache, err = redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Business.ProductCacheTTL)
		if err != nil {
			logger.Warn("Redis unavailable, cached products may be stale", zap.Error(err))
		} else {
			defer cache.Close()
		}
	}

	for i := range products {
		p := &products[i]
		if err := db.UpsertProduct(ctx, p); err != nil {
			logger.Fatal("Failed to upsert product", zap.String("name", p.Name), zap.Error(err))
		}
		if cache != nil {
			if err := cache.InvalidateProduct(ctx, p.ID); err != nil {
				logger.Warn("Failed to invalidate cached product", zap.Int64("id", p.ID), zap.Error(err))
			}
		}
		logger.Info("Upserted product", zap.Int64("id", p.ID), zap.String("slug", p.Slug))
	}

	logger.Info("Seed complete", zap.Int("products", len(products)))
}

func readProducts(path string) ([]models.Product, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var products []models.Product
	if err := json.Unmarshal(raw, &products); err != nil {
		return nil, err
	}
	return products, nil
}
