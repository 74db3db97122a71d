package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pmacquire/daemon/internal/domain"
	"github.com/pmacquire/daemon/internal/ratelimit"
)

const (
	marketPageSize        = 100
	closedMarketPageLimit = 3 // bounded page ceiling; avoids paging years of history
	orderbookBatchSize    = 100
)

// GammaClient is the REST half of the venue client: market discovery and
// batched orderbook reads, both rate-limited.
type GammaClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *ratelimit.Limiter
}

// NewGammaClient creates a REST client against baseURL (the venue's
// discovery/book API root), gated by the shared rate limiter.
func NewGammaClient(baseURL string, limiter *ratelimit.Limiter) *GammaClient {
	return &GammaClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    limiter,
	}
}

// ListActiveMarkets drains every page of active, unclosed markets.
func (g *GammaClient) ListActiveMarkets(ctx context.Context) ([]RawMarket, error) {
	params := url.Values{}
	params.Set("active", "true")
	params.Set("closed", "false")
	return g.paginateMarkets(ctx, params, 0)
}

// ListClosedMarketsSince drains up to closedMarketPageLimit pages of markets
// closed at or after cutoff, for the resolution tracker.
func (g *GammaClient) ListClosedMarketsSince(ctx context.Context, cutoff time.Time) ([]RawMarket, error) {
	params := url.Values{}
	params.Set("closed", "true")
	params.Set("end_date_min", cutoff.UTC().Format(time.RFC3339))
	return g.paginateMarkets(ctx, params, closedMarketPageLimit)
}

// paginateMarkets sequentially drains pages of the given query, stopping at
// pageCeiling pages (0 = unbounded) or when a short page signals the end.
// Individual malformed records are skipped, never aborting the whole page.
func (g *GammaClient) paginateMarkets(ctx context.Context, params url.Values, pageCeiling int) ([]RawMarket, error) {
	var out []RawMarket
	offset := 0

	for page := 0; pageCeiling == 0 || page < pageCeiling; page++ {
		if err := g.limiter.Bucket(ratelimit.ClassMarketDiscovery).Acquire(ctx, 1); err != nil {
			return out, fmt.Errorf("polymarket: rate limiter: %w", err)
		}

		q := cloneValues(params)
		q.Set("limit", strconv.Itoa(marketPageSize))
		q.Set("offset", strconv.Itoa(offset))

		body, err := g.doGet(ctx, "/markets?"+q.Encode())
		if err != nil {
			return out, fmt.Errorf("polymarket: list markets: %w", err)
		}

		var raws []json.RawMessage
		if err := json.Unmarshal(body, &raws); err != nil {
			return out, fmt.Errorf("polymarket: decode market page: %w", err)
		}
		if len(raws) == 0 {
			break
		}

		for _, r := range raws {
			var m RawMarket
			if err := json.Unmarshal(r, &m); err != nil {
				continue // malformed record: skip, never raise
			}
			out = append(out, m)
		}

		if len(raws) < marketPageSize {
			break
		}
		offset += marketPageSize
	}

	return out, nil
}

// GetOrderbooks fetches top-depth order books for tokenIDs, in batches of
// orderbookBatchSize to bound request size. One rate-limiter draw per
// batch request.
func (g *GammaClient) GetOrderbooks(ctx context.Context, tokenIDs []string, depth int) ([]RawOrderbook, error) {
	if len(tokenIDs) == 0 {
		return nil, nil
	}

	var out []RawOrderbook
	for start := 0; start < len(tokenIDs); start += orderbookBatchSize {
		end := start + orderbookBatchSize
		if end > len(tokenIDs) {
			end = len(tokenIDs)
		}
		chunk := tokenIDs[start:end]

		if err := g.limiter.Bucket(ratelimit.ClassOrderbookRead).Acquire(ctx, 1); err != nil {
			return out, fmt.Errorf("polymarket: rate limiter: %w", err)
		}

		books, err := g.getOrderbookBatch(ctx, chunk)
		if err != nil {
			return out, fmt.Errorf("polymarket: get orderbooks: %w", err)
		}
		for i := range books {
			truncateLevels(&books[i], depth)
		}
		out = append(out, books...)
	}

	return out, nil
}

// truncateLevels trims a raw book's sides to the top depth levels per side,
// so callers never carry more of the wire payload than they asked for.
func truncateLevels(b *RawOrderbook, depth int) {
	if depth <= 0 {
		return
	}
	if len(b.Bids) > depth {
		b.Bids = b.Bids[:depth]
	}
	if len(b.Asks) > depth {
		b.Asks = b.Asks[:depth]
	}
}

func (g *GammaClient) getOrderbookBatch(ctx context.Context, tokenIDs []string) ([]RawOrderbook, error) {
	reqBody := make([]struct {
		TokenID string `json:"token_id"`
	}, len(tokenIDs))
	for i, id := range tokenIDs {
		reqBody[i].TokenID = id
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("encode book request: %w", err)
	}

	body, err := g.doPost(ctx, "/books", payload)
	if err != nil {
		return nil, err
	}

	var books []RawOrderbook
	if err := json.Unmarshal(body, &books); err != nil {
		return nil, fmt.Errorf("decode book response: %w", err)
	}
	return books, nil
}

// --------------------------------------------------------------------------
// HTTP plumbing
// --------------------------------------------------------------------------

func (g *GammaClient) doGet(ctx context.Context, path string) ([]byte, error) {
	return g.do(ctx, http.MethodGet, path, nil)
}

func (g *GammaClient) doPost(ctx context.Context, path string, payload []byte) ([]byte, error) {
	return g.do(ctx, http.MethodPost, path, payload)
}

// do sends the request and, on a 429 with Retry-After, force-drains both
// buckets for the advised duration, waits it out, and retries exactly
// once, per the venue's throttle contract.
func (g *GammaClient) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	body, retryAfter, err := g.doOnce(ctx, method, path, payload)
	if err == nil {
		return body, nil
	}
	if retryAfter <= 0 {
		return nil, err
	}

	g.limiter.ForceDrain(ratelimit.ClassMarketDiscovery, retryAfter)
	g.limiter.ForceDrain(ratelimit.ClassOrderbookRead, retryAfter)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(retryAfter):
	}

	body, _, err = g.doOnce(ctx, method, path, payload)
	return body, err
}

// doOnce performs a single attempt, returning the parsed Retry-After
// duration (0 if absent/not a throttle response) alongside any error.
func (g *GammaClient) doOnce(ctx context.Context, method, path string, payload []byte) ([]byte, time.Duration, error) {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, bodyReader)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, retryAfterDuration(resp.Header.Get("Retry-After")), fmt.Errorf("%w: %s", domain.ErrRateLimited, respBody)
	}
	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, 0, err
	}

	return respBody, 0, nil
}

func retryAfterDuration(header string) time.Duration {
	if header == "" {
		return time.Second // venue signalled throttle without a duration: use a conservative default
	}
	if secs, err := strconv.Atoi(header); err == nil {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return time.Second
}

func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, body)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, body)
	}
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vs := range v {
		cp := make([]string, len(vs))
		copy(cp, vs)
		out[k] = cp
	}
	return out
}
