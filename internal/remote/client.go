// Package remote implements the thin transport the sync engine uses to talk
// to the authoritative collection API. The contract is deliberately narrow:
// list by owner, create, update, delete by id, plus a health probe.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/finwiselabs/finsync/internal/types"
)

// DefaultTimeout bounds every remote call. A timed-out call feeds the retry
// path exactly like a connection failure.
const DefaultTimeout = 5 * time.Second

// Client talks to the remote collection endpoints.
type Client struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	client  *http.Client
}

// NewClient creates a remote client. apiKey may be empty for servers that do
// not require auth; timeout <= 0 selects DefaultTimeout.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

// Ping checks connectivity against the health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &StatusError{Op: "ping", Status: resp.StatusCode}
	}
	return nil
}

// FetchAll lists every record in a collection for the given owner.
func (c *Client) FetchAll(ctx context.Context, collection types.Collection, ownerID string) ([]types.WireRecord, error) {
	path := fmt.Sprintf("/%s?ownerId=%s", collection, url.QueryEscape(ownerID))
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Op: "fetch", Collection: string(collection), Status: resp.StatusCode}
	}

	var records []types.WireRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode %s list: %w", collection, err)
	}
	return records, nil
}

// Create posts a new record. The server assigns the id when the body carries
// none; the created record is returned either way.
func (c *Client) Create(ctx context.Context, collection types.Collection, rec types.WireRecord) (*types.WireRecord, error) {
	return c.send(ctx, http.MethodPost, fmt.Sprintf("/%s", collection), collection, "create", rec)
}

// Update replaces a record by id. A 404 response is returned as ErrNotFound
// so the caller can fall back to Create.
func (c *Client) Update(ctx context.Context, collection types.Collection, rec types.WireRecord) (*types.WireRecord, error) {
	return c.send(ctx, http.MethodPut, fmt.Sprintf("/%s/%s", collection, url.PathEscape(rec.ID)), collection, "update", rec)
}

// Delete removes a record by id. A 404 is success: the record is already
// gone, which is all a delete promises.
func (c *Client) Delete(ctx context.Context, collection types.Collection, id, ownerID string) error {
	path := fmt.Sprintf("/%s/%s?ownerId=%s", collection, url.PathEscape(id), url.QueryEscape(ownerID))
	resp, err := c.do(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return nil
	default:
		return &StatusError{Op: "delete", Collection: string(collection), Status: resp.StatusCode}
	}
}

func (c *Client) send(ctx context.Context, method, path string, collection types.Collection, op string, rec types.WireRecord) (*types.WireRecord, error) {
	body, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal %s record: %w", collection, err)
	}

	resp, err := c.do(ctx, method, path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var out types.WireRecord
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			// Some servers answer an empty body; echo the request back.
			return &rec, nil
		}
		return &out, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%s %s/%s: %w", op, collection, rec.ID, ErrNotFound)
	default:
		io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{Op: op, Collection: string(collection), Status: resp.StatusCode}
	}
}

// do issues a request bound by the client timeout. The timeout lives on the
// http.Client so it covers the body read as well as the exchange.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}

	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.client.Do(req)
}
