package repository

import (
	"catalog-validation/config"
	"catalog-validation/pkg/cache"
	"catalog-validation/pkg/common"
	"catalog-validation/pkg/httpclient"
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrSchemaFetch = errors.New("can not read a valid schema from url")

// SchemaRepository fetches Table Schemas published at a URL.
type SchemaRepository interface {
	Fetch(ctx context.Context, schemaURL string) (map[string]interface{}, error)
}

type schemaRepository struct {
	httpClient    httpclient.HTTPClient
	inmemoryCache cache.Cache
}

func NewSchemaRepository(cfg *config.Config, inmemoryCache cache.Cache) SchemaRepository {
	return &schemaRepository{
		httpClient: httpclient.New(httpclient.Options{
			Timeout: cfg.Validation.SchemaTimeout,
			Proxy:   cfg.Validation.DownloadProxy,
		}),
		inmemoryCache: inmemoryCache,
	}
}

func (r *schemaRepository) Fetch(ctx context.Context, schemaURL string) (map[string]interface{}, error) {
	key := fmt.Sprintf(common.KEY_CACHE_SCHEMA, schemaURL)
	return cache.GetOrLoad(ctx, r.inmemoryCache, key, cache.DefaultExpiration, func(ctx context.Context) (map[string]interface{}, error) {
		resp, err := r.httpClient.Get(ctx, schemaURL, nil, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrSchemaFetch, schemaURL, err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("%w: %s: status %d", ErrSchemaFetch, schemaURL, resp.StatusCode)
		}

		var schema map[string]interface{}
		if err := json.Unmarshal(resp.Body, &schema); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrSchemaFetch, schemaURL, err)
		}
		return schema, nil
	})
}
