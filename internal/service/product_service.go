package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// ProductService serves catalog reads, with single products cached
type ProductService struct {
	store  ProductStore
	cache  ProductCache
	logger *zap.Logger
}

// NewProductService creates a new product service. cache may be nil.
func NewProductService(store ProductStore, cache ProductCache) *ProductService {
	return &ProductService{
		store:  store,
		cache:  cache,
		logger: util.GetLogger(),
	}
}

// GetProduct returns a product by id, checking the cache first
func (s *ProductService) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.GetProduct")
	defer span.End()

	if id <= 0 {
		return nil, invalid("productId", "Product ID is required")
	}

	if s.cache != nil {
		product, ok, err := s.cache.GetProduct(ctx, id)
		if err != nil {
			s.logger.Warn("Product cache read failed", zap.Int64("product_id", id), zap.Error(err))
		}
		if ok {
			util.ProductCacheHits.Inc()
			return product, nil
		}
		util.ProductCacheMisses.Inc()
	}

	product, err := s.store.GetProductByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("product %d %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.SetProduct(ctx, product); err != nil {
			s.logger.Warn("Product cache fill failed", zap.Int64("product_id", id), zap.Error(err))
		}
	}
	return product, nil
}

// GetProductBySlug returns a product by its slug
func (s *ProductService) GetProductBySlug(ctx context.Context, slug string) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.GetProductBySlug")
	defer span.End()

	product, err := s.store.GetProductBySlug(ctx, slug)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("product %q %w", slug, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return product, nil
}

// GetProductsByIDs returns the products that exist, keyed by id
func (s *ProductService) GetProductsByIDs(ctx context.Context, ids []int64) (map[int64]models.Product, error) {
	products, err := s.store.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get products: %w", err)
	}

	byID := make(map[int64]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return byID, nil
}

// ListProducts returns one page of published products
func (s *ProductService) ListProducts(ctx context.Context, q models.ProductQuery) (models.Page[models.Product], error) {
	ctx, span := util.StartSpan(ctx, "ProductService.ListProducts")
	defer span.End()

	q.Page, q.Limit = models.NormalizePaging(q.Page, q.Limit)
	products, total, err := s.store.ListProducts(ctx, q)
	if err != nil {
		return models.Page[models.Product]{}, fmt.Errorf("failed to list products: %w", err)
	}
	return models.NewPage(products, total, q.Page, q.Limit), nil
}

// SearchProducts lists published products matching q.Search
func (s *ProductService) SearchProducts(ctx context.Context, q models.ProductQuery) (models.Page[models.Product], error) {
	q.Search = strings.TrimSpace(q.Search)
	if q.Search == "" {
		return models.Page[models.Product]{}, invalid("q", "Search query is required")
	}
	return s.ListProducts(ctx, q)
}
