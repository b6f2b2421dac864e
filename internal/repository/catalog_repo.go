package repository

import (
	"catalog-validation/config"
	"catalog-validation/internal/model"
	"catalog-validation/pkg/cache"
	"catalog-validation/pkg/common"
	"catalog-validation/pkg/httpclient"
	"catalog-validation/pkg/logger"
	"catalog-validation/pkg/ratelimit"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var ErrCatalogRequest = errors.New("catalog request failed")

// CatalogRepository talks to the catalog action API.
type CatalogRepository interface {
	ResourceShow(ctx context.Context, id string) (*model.Resource, error)
	PackageShow(ctx context.Context, id string) (*model.Dataset, error)
	ResourcePatch(ctx context.Context, patch model.ResourcePatch) error
	PackageSearch(ctx context.Context, params model.SearchParams) (*model.SearchResult, error)
	// SiteUserToken is the service account credential used for private resources.
	SiteUserToken() string
}

type actionResponse struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Error   *actionError    `json:"error"`
}

type actionError struct {
	Type    string `json:"__type"`
	Message string `json:"message"`
}

type catalogRepository struct {
	httpClient    httpclient.HTTPClient
	cfg           *config.Config
	log           *logger.Logger
	inmemoryCache cache.Cache
	limiter       *ratelimit.TokenLimiter
}

func NewCatalogRepository(cfg *config.Config, log *logger.Logger, inmemoryCache cache.Cache) CatalogRepository {
	client := httpclient.New(httpclient.Options{
		BaseURL:       cfg.Catalog.BaseURL,
		Timeout:       cfg.Catalog.BaseTimeout,
		Authorization: cfg.Catalog.APIToken,
	})
	return newCatalogRepository(cfg, log, inmemoryCache, client)
}

func newCatalogRepository(cfg *config.Config, log *logger.Logger, inmemoryCache cache.Cache, client httpclient.HTTPClient) *catalogRepository {
	return &catalogRepository{
		httpClient:    client,
		cfg:           cfg,
		log:           log,
		inmemoryCache: inmemoryCache,
		limiter:       ratelimit.NewTokenLimiter(cfg.Catalog.MaxRequestPerMin),
	}
}

func (r *catalogRepository) call(ctx context.Context, action string, body interface{}, headers map[string]string, dest interface{}) error {
	if err := r.limiter.Wait(ctx, 1); err != nil {
		return err
	}

	resp, err := r.httpClient.Post(ctx, "/api/3/action/"+action, body, headers, nil)
	if err != nil {
		r.log.ErrorContext(ctx, "Catalog request failed", logger.StringField("action", action), logger.ErrorField(err))
		return fmt.Errorf("%w: %s: %v", ErrCatalogRequest, action, err)
	}

	var out actionResponse
	_ = json.Unmarshal(resp.Body, &out)

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %w", action, ErrRecordNotFound)
	}
	if resp.IsError() || !out.Success {
		msg := string(resp.Body)
		if out.Error != nil {
			msg = out.Error.Message
			if out.Error.Type == "Not Found Error" {
				return fmt.Errorf("%s: %w", action, ErrRecordNotFound)
			}
		}
		r.log.WarnContext(ctx, "Catalog action returned an error",
			logger.StringField("action", action),
			logger.IntField("status_code", resp.StatusCode),
			logger.StringField("message", msg),
		)
		return fmt.Errorf("%w: %s: status %d: %s", ErrCatalogRequest, action, resp.StatusCode, msg)
	}

	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(out.Result, dest); err != nil {
		return fmt.Errorf("%w: %s: decode result: %v", ErrCatalogRequest, action, err)
	}
	return nil
}

func (r *catalogRepository) ResourceShow(ctx context.Context, id string) (*model.Resource, error) {
	var resource model.Resource
	if err := r.call(ctx, "resource_show", map[string]string{"id": id}, nil, &resource); err != nil {
		return nil, err
	}
	return &resource, nil
}

func (r *catalogRepository) PackageShow(ctx context.Context, id string) (*model.Dataset, error) {
	key := fmt.Sprintf(common.KEY_CACHE_DATASET, id)
	return cache.GetOrLoad(ctx, r.inmemoryCache, key, cache.DefaultExpiration, func(ctx context.Context) (*model.Dataset, error) {
		var dataset model.Dataset
		if err := r.call(ctx, "package_show", map[string]string{"id": id}, nil, &dataset); err != nil {
			return nil, err
		}
		return &dataset, nil
	})
}

// ResourcePatch marks the request so the catalog's update hook skips re-validation.
func (r *catalogRepository) ResourcePatch(ctx context.Context, patch model.ResourcePatch) error {
	headers := map[string]string{common.HEADER_VALIDATION_DONE: "true"}
	return r.call(ctx, "resource_patch", patch, headers, nil)
}

func (r *catalogRepository) PackageSearch(ctx context.Context, params model.SearchParams) (*model.SearchResult, error) {
	if params.FQList == nil {
		params.FQList = []string{}
	}
	var result model.SearchResult
	if err := r.call(ctx, "package_search", params, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *catalogRepository) SiteUserToken() string {
	return r.cfg.Catalog.APIToken
}
