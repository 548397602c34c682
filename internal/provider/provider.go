package provider

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/SourceCoDeals/connect-market-nexus-sub004/internal/domain"
	"github.com/go-resty/resty/v2"
)

// classifyResponse maps a provider HTTP response to the domain error taxonomy:
// 429 becomes a rate-limited transient carrying the Retry-After delay, other
// 4xx are permanent, and 5xx are transient.
func classifyResponse(op string, resp *resty.Response) error {
	code := resp.StatusCode()
	if code >= 200 && code < 300 {
		return nil
	}

	base := fmt.Errorf("status %d: %s", code, resp.String())

	switch {
	case code == http.StatusTooManyRequests:
		return domain.RateLimited(op, base, retryAfter(resp))
	case code >= 400 && code < 500:
		return domain.Permanent(op, base)
	default:
		return domain.Transient(op, base)
	}
}

// retryAfter parses the Retry-After header as delay seconds. A missing or
// unparseable header yields zero, which callers replace with their own
// backoff.
func retryAfter(resp *resty.Response) time.Duration {
	raw := resp.Header().Get("Retry-After")
	if raw == "" {
		return 0
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
