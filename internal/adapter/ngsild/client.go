// Package ngsild implements store.EntityStore against an NGSI-LD context
// broker (Orion-LD, Scorpio, Stellio) over its HTTP API.
package ngsild

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/flood-risk-engine/internal/ngsi"
	"github.com/couchcryptid/flood-risk-engine/internal/observability"
	"github.com/couchcryptid/flood-risk-engine/internal/store"
)

const (
	entitiesPath = "/ngsi-ld/v1/entities"
	pageSize     = 100
	maxErrorBody = 512
)

// Client is an NGSI-LD entity store client.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates a broker client rooted at baseURL, e.g. http://orion:1026.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
		metrics: metrics,
	}
}

func (c *Client) Create(ctx context.Context, e ngsi.Entity) error {
	_, err := c.do(ctx, "create", http.MethodPost, entitiesPath, e)
	return err
}

func (c *Client) Patch(ctx context.Context, id string, attrs ngsi.Entity) error {
	path := entitiesPath + "/" + url.PathEscape(id) + "/attrs"
	_, err := c.do(ctx, "patch", http.MethodPatch, path, attrs.Attrs())
	return err
}

func (c *Client) Get(ctx context.Context, id string) (ngsi.Entity, error) {
	body, err := c.do(ctx, "get", http.MethodGet, entitiesPath+"/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	return ngsi.Decode(body)
}

// Query pages through all entities of q.Type, stopping at q.Limit when set.
func (c *Client) Query(ctx context.Context, q store.Query) ([]ngsi.Entity, error) {
	var out []ngsi.Entity
	for offset := 0; ; offset += pageSize {
		limit := pageSize
		if q.Limit > 0 {
			limit = min(pageSize, q.Limit-len(out))
		}
		params := url.Values{
			"type":   {q.Type},
			"limit":  {strconv.Itoa(limit)},
			"offset": {strconv.Itoa(offset)},
		}
		body, err := c.do(ctx, "query", http.MethodGet, entitiesPath+"?"+params.Encode(), nil)
		if err != nil {
			return nil, err
		}

		var page []ngsi.Entity
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("decode query response: %w", err)
		}
		out = append(out, page...)

		if len(page) < limit || (q.Limit > 0 && len(out) >= q.Limit) {
			return out, nil
		}
	}
}

func (c *Client) do(ctx context.Context, op, method, path string, payload ngsi.Entity) ([]byte, error) {
	start := time.Now()
	defer func() {
		c.metrics.StoreDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Link", fmt.Sprintf(`<%s>; rel="http://www.w3.org/ns/json-ld#context"; type="application/ld+json"`, ngsi.CoreContext))
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.StoreRequests.WithLabelValues(op, "error").Inc()
		return nil, fmt.Errorf("%s request: %w", op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.StoreRequests.WithLabelValues(op, "error").Inc()
		return nil, fmt.Errorf("read %s response: %w", op, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		c.metrics.StoreRequests.WithLabelValues(op, "success").Inc()
		return respBody, nil
	case resp.StatusCode == http.StatusNotFound:
		c.metrics.StoreRequests.WithLabelValues(op, "not_found").Inc()
		return nil, fmt.Errorf("%s %s: %w", op, path, store.ErrNotFound)
	case resp.StatusCode == http.StatusConflict:
		c.metrics.StoreRequests.WithLabelValues(op, "conflict").Inc()
		return nil, fmt.Errorf("%s %s: %w", op, path, store.ErrAlreadyExists)
	}

	c.metrics.StoreRequests.WithLabelValues(op, "error").Inc()
	if len(respBody) > maxErrorBody {
		respBody = respBody[:maxErrorBody]
	}
	c.logger.Debug("context broker error", "op", op, "status", resp.StatusCode, "body", string(respBody))
	return nil, &store.StatusError{Code: resp.StatusCode, Body: string(respBody)}
}
