// Package httpclient implements the catalog.Client contract against the
// catalog's REST API.
//
// Wire conventions:
//   - POST /api/catalog/entities/by-refs with {"entityRefs": [...], "fields": [...]}
//     returns {"items": [entity | null, ...]} aligned with the request order.
//   - GET /api/catalog/entities accepts repeated "filter" parameters (OR'd);
//     one parameter is a comma-joined list of key=value terms (AND'd), and a
//     key repeated within one parameter matches any of its values.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/sakaguchi/ownerstats/internal/catalog"
	"github.com/sakaguchi/ownerstats/internal/entities"
	"github.com/sakaguchi/ownerstats/pkg/cache"
)

const (
	defaultTimeout          = 15 * time.Second
	defaultMaxResponseBytes = int64(8 * 1024 * 1024) // 8 MiB
)

// Config holds settings for the HTTP catalog client.
type Config struct {
	// BaseURL is the catalog API root, e.g. "http://catalog:7007".
	BaseURL string

	// Token is an optional static bearer token.
	Token string

	// Timeout bounds each catalog request. Zero means the default.
	Timeout time.Duration

	// MaxResponseBytes bounds response body reads. Zero means the default.
	MaxResponseBytes int64

	// Cache, when set, memoizes by-reference lookups for CacheTTL. The
	// filtered search endpoint is never cached.
	Cache    cache.Cache
	CacheTTL time.Duration
}

// Client is an HTTP implementation of catalog.Client.
type Client struct {
	baseURL  string
	token    string
	http     *http.Client
	maxBody  int64
	cache    cache.Cache
	cacheTTL time.Duration
}

var _ catalog.Client = (*Client)(nil)

// New creates a catalog HTTP client.
func New(cfg *Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("catalog base URL is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxBody := cfg.MaxResponseBytes
	if maxBody <= 0 {
		maxBody = defaultMaxResponseBytes
	}

	return &Client{
		baseURL:  base,
		token:    cfg.Token,
		http:     &http.Client{Timeout: timeout},
		maxBody:  maxBody,
		cache:    cfg.Cache,
		cacheTTL: cfg.CacheTTL,
	}, nil
}

// wireEntity is the catalog API's entity shape. Only the projected fields are
// ever populated.
type wireEntity struct {
	Kind     string `json:"kind"`
	Metadata struct {
		Name      string `json:"name"`
		Namespace string `json:"namespace"`
	} `json:"metadata"`
	Spec struct {
		Type string `json:"type"`
	} `json:"spec"`
	Relations []struct {
		Type      string `json:"type"`
		TargetRef string `json:"targetRef"`
	} `json:"relations"`
}

func (w *wireEntity) toEntity() entities.Entity {
	e := entities.Entity{
		Kind:      w.Kind,
		Namespace: w.Metadata.Namespace,
		Name:      w.Metadata.Name,
		Type:      w.Spec.Type,
	}
	if e.Namespace == "" {
		e.Namespace = entities.DefaultNamespace
	}
	for _, rel := range w.Relations {
		e.Relations = append(e.Relations, entities.Relation{Type: rel.Type, TargetRef: rel.TargetRef})
	}
	return e
}

// EntitiesByRefs implements catalog.Client. Cached entries are served without
// a network call; only cache misses are sent to the catalog, and the combined
// result keeps the request order. Unresolved references come back as nil.
func (c *Client) EntitiesByRefs(ctx context.Context, req catalog.ByRefsRequest) ([]*entities.Entity, error) {
	result := make([]*entities.Entity, len(req.Refs))

	missing := make([]entities.Ref, 0, len(req.Refs))
	missingAt := make([]int, 0, len(req.Refs))
	for i, ref := range req.Refs {
		if c.cache != nil {
			if v, ok := c.cache.Get(ctx, c.cacheKey(ref, req.Fields)); ok {
				ent := v.(entities.Entity)
				result[i] = &ent
				continue
			}
		}
		missing = append(missing, ref)
		missingAt = append(missingAt, i)
	}

	if len(missing) == 0 {
		return result, nil
	}

	refStrings := make([]string, len(missing))
	for i, ref := range missing {
		refStrings[i] = ref.String()
	}
	body, err := json.Marshal(map[string]interface{}{
		"entityRefs": refStrings,
		"fields":     req.Fields,
	})
	if err != nil {
		return nil, &catalog.FetchError{Op: "entities-by-refs", Err: err}
	}

	var resp struct {
		Items []*wireEntity `json:"items"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/catalog/entities/by-refs", nil, body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Items) != len(missing) {
		return nil, &catalog.FetchError{
			Op:  "entities-by-refs",
			Err: fmt.Errorf("response item count %d does not match request count %d", len(resp.Items), len(missing)),
		}
	}

	for i, item := range resp.Items {
		if item == nil {
			// Expected absence; the ref stays nil in the result.
			continue
		}
		ent := item.toEntity()
		result[missingAt[i]] = &ent
		if c.cache != nil {
			_ = c.cache.Set(ctx, c.cacheKey(missing[i], req.Fields), ent, c.cacheTTL)
		}
	}
	return result, nil
}

// Entities implements catalog.Client.
func (c *Client) Entities(ctx context.Context, q catalog.Query) ([]entities.Entity, error) {
	params := url.Values{}
	for _, f := range q.Filters {
		params.Add("filter", encodeFilter(f))
	}
	if len(q.Fields) > 0 {
		params.Set("fields", strings.Join(q.Fields, ","))
	}

	var resp struct {
		Items []wireEntity `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/catalog/entities", params, nil, &resp); err != nil {
		return nil, err
	}

	out := make([]entities.Entity, 0, len(resp.Items))
	for i := range resp.Items {
		out = append(out, resp.Items[i].toEntity())
	}
	return out, nil
}

// encodeFilter renders one filter as comma-joined key=value terms. A repeated
// key is an any-of match, so every kind and every relation target gets its own
// term. Relation keys are emitted in sorted order to keep URLs stable.
func encodeFilter(f catalog.Filter) string {
	var terms []string
	for _, kind := range f.Kinds {
		terms = append(terms, "kind="+strings.ToLower(kind))
	}

	names := make([]string, 0, len(f.Relations))
	for name := range f.Relations {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, target := range f.Relations[name] {
			terms = append(terms, "relations."+name+"="+target)
		}
	}
	return strings.Join(terms, ",")
}

func (c *Client) cacheKey(ref entities.Ref, fields []string) string {
	return "byref:" + ref.String() + "#" + strings.Join(fields, ",")
}

// do issues one request and decodes the JSON response into out. Any transport
// failure or non-2xx status becomes a FetchError.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, body []byte, out interface{}) error {
	op := strings.TrimPrefix(path, "/api/catalog/")

	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return &catalog.FetchError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &catalog.FetchError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
	if err != nil {
		return &catalog.FetchError{Op: op, Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &catalog.FetchError{
			Op:     op,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("%s", strings.TrimSpace(string(data))),
		}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return &catalog.FetchError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}
