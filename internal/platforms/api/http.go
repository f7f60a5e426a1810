package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// AsServerFault unwraps err to a ServerFault if one is present.
func AsServerFault(err error) (*ServerFault, bool) {
	var fault *ServerFault
	if errors.As(err, &fault) {
		return fault, true
	}
	return nil, false
}

// HTTPClient implements Client over a vendor REST API with bearer auth.
type HTTPClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPClient) Get(ctx context.Context, path string, query url.Values) (map[string]any, error) {
	body, err := c.do(ctx, http.MethodGet, c.endpoint(path, query), nil)
	if err != nil {
		return nil, err
	}
	return decodeObject(body)
}

func (c *HTTPClient) List(ctx context.Context, path string, query url.Values) ([]map[string]any, error) {
	var items []map[string]any

	next := c.endpoint(path, query)
	for next != "" {
		body, err := c.do(ctx, http.MethodGet, next, nil)
		if err != nil {
			return nil, err
		}
		page, nextLink, err := decodePage(body)
		if err != nil {
			return nil, err
		}
		items = append(items, page...)
		next = nextLink
	}
	return items, nil
}

func (c *HTTPClient) Create(ctx context.Context, path string, payload map[string]any) (map[string]any, error) {
	body, err := c.do(ctx, http.MethodPost, c.endpoint(path, nil), payload)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return map[string]any{}, nil
	}
	return decodeObject(body)
}

func (c *HTTPClient) Update(ctx context.Context, path string, payload map[string]any) (map[string]any, error) {
	body, err := c.do(ctx, http.MethodPatch, c.endpoint(path, nil), payload)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return map[string]any{}, nil
	}
	return decodeObject(body)
}

func (c *HTTPClient) Delete(ctx context.Context, path string) error {
	_, err := c.do(ctx, http.MethodDelete, c.endpoint(path, nil), nil)
	return err
}

func (c *HTTPClient) endpoint(path string, query url.Values) string {
	endpoint := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	return endpoint
}

func (c *HTTPClient) do(ctx context.Context, method, endpoint string, payload map[string]any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ServerFault{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

func decodeObject(body []byte) (map[string]any, error) {
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return obj, nil
}

// Collection envelope keys used across the supported vendor APIs.
var collectionKeys = []string{"items", "value", "records", "users"}

// decodePage extracts one page of a listing plus the next-page link.
// Handles bare arrays and the common envelope shapes.
func decodePage(body []byte) ([]map[string]any, string, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var bare []map[string]any
		if err := json.Unmarshal(trimmed, &bare); err != nil {
			return nil, "", fmt.Errorf("decode listing: %w", err)
		}
		return bare, "", nil
	}

	var envelope map[string]any
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, "", fmt.Errorf("decode listing: %w", err)
	}

	var items []map[string]any
	for _, key := range collectionKeys {
		list, ok := envelope[key].([]any)
		if !ok {
			continue
		}
		for _, item := range list {
			if obj, ok := item.(map[string]any); ok {
				items = append(items, obj)
			}
		}
		break
	}

	next, _ := envelope["@odata.nextLink"].(string)
	if next == "" {
		next, _ = envelope["next_page_link"].(string)
	}
	return items, next, nil
}
