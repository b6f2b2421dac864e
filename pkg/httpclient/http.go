package httpclient

import (
	"context"
	"net/http"
	"time"
)

type BaseResponse struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
}

// IsError reports whether the response carries a 4xx/5xx status.
func (r *BaseResponse) IsError() bool {
	return r != nil && r.StatusCode >= http.StatusBadRequest
}

type HTTPClient interface {
	Get(ctx context.Context, endpoint string, queryParams map[string]string, headers map[string]string, result interface{}) (*BaseResponse, error)
	Post(ctx context.Context, endpoint string, body interface{}, headers map[string]string, result interface{}) (*BaseResponse, error)
	Put(ctx context.Context, endpoint string, body interface{}, headers map[string]string, result interface{}) (*BaseResponse, error)
	Delete(ctx context.Context, endpoint string, headers map[string]string, result interface{}) (*BaseResponse, error)
}

type Options struct {
	BaseURL string
	Timeout time.Duration
	// Authorization is sent verbatim in the Authorization header.
	Authorization string
	Proxy         string
}
