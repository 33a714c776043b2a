package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"storefront/internal/entity"
)

// CatalogClient calls the catalog service.
type CatalogClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewCatalogClient(baseURL string, httpClient *http.Client) *CatalogClient {
	return &CatalogClient{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

// GetProducts --> GET /products
func (c *CatalogClient) GetProducts(ctx context.Context) ([]entity.Product, error) {
	var products []entity.Product
	if err := doJSON(ctx, c.httpClient, http.MethodGet, c.baseURL+"/products", nil, &products); err != nil {
		return nil, err
	}
	return products, nil
}

type variantCheckRequest struct {
	ProductID entity.ProductID `json:"productId"`
	Branch    string           `json:"branch"`
	Variant   string           `json:"variant"`
}

// CheckVariant --> POST /check-variant-availability
func (c *CatalogClient) CheckVariant(ctx context.Context, productID entity.ProductID, branch, variant string) (bool, error) {
	var resp struct {
		Available bool `json:"available"`
	}
	req := variantCheckRequest{ProductID: productID, Branch: branch, Variant: variant}
	if err := doJSON(ctx, c.httpClient, http.MethodPost, c.baseURL+"/check-variant-availability", req, &resp); err != nil {
		return false, err
	}
	return resp.Available, nil
}

type ProductSource interface {
	GetProducts(ctx context.Context) ([]entity.Product, error)
}

const productsCacheKey = "storefront:catalog:products"

// CachedCatalog serves the product list from Redis, falling back to the
// catalog service on a miss.
type CachedCatalog struct {
	source ProductSource
	rdb    *redis.Client
	ttl    time.Duration
}

func NewCachedCatalog(source ProductSource, rdb *redis.Client, ttl time.Duration) *CachedCatalog {
	return &CachedCatalog{source: source, rdb: rdb, ttl: ttl}
}

func (c *CachedCatalog) GetProducts(ctx context.Context) ([]entity.Product, error) {
	cached, err := c.rdb.Get(ctx, productsCacheKey).Bytes()
	if err != nil && !errors.Is(err, redis.Nil) {
		logger.Error().Err(err).Msg("Error getting products from cache")
	}

	if len(cached) > 0 {
		var products []entity.Product
		if err := json.Unmarshal(cached, &products); err == nil {
			return products, nil
		}
		logger.Error().Err(err).Msg("Error unmarshalling cached products")
	}

	products, err := c.source.GetProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch products: %w", err)
	}
	c.store(ctx, products)
	return products, nil
}

// Warm loads the product list into the cache ahead of the first request.
func (c *CachedCatalog) Warm(ctx context.Context) error {
	products, err := c.source.GetProducts(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Error getting products")
		return err
	}
	c.store(ctx, products)
	logger.Info().Msgf("Catalog cache warmed with %d products", len(products))
	return nil
}

func (c *CachedCatalog) store(ctx context.Context, products []entity.Product) {
	data, err := json.Marshal(products)
	if err != nil {
		logger.Error().Err(err).Msg("Error marshalling products for cache")
		return
	}
	if err := c.rdb.Set(ctx, productsCacheKey, data, c.ttl).Err(); err != nil {
		logger.Error().Err(err).Msg("Error setting products in cache")
	}
}

// Invalidate drops the cached product list.
func (c *CachedCatalog) Invalidate(ctx context.Context) error {
	return c.rdb.Del(ctx, productsCacheKey).Err()
}
