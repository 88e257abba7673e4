// Package httpremote implements syncer.Remote over HTTP against a
// JSON-document API: GET/POST/PATCH/DELETE on {base}/{type}[/{id}] with
// query params rendered by a pluggable syncer.Encoding.
package httpremote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tidemark/normstore/query"
	"github.com/tidemark/normstore/resource"
	"github.com/tidemark/normstore/syncer"
)

const contentType = "application/vnd.api+json"

// Client is an HTTP implementation of syncer.Remote.
type Client struct {
	base     *url.URL
	http     *http.Client
	encoding syncer.Encoding
	headers  map[string]string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
// Defaults to http.DefaultClient.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithEncoding overrides the query-param encoding.
func WithEncoding(enc syncer.Encoding) Option {
	return func(c *Client) {
		c.encoding = enc
	}
}

// WithHeader adds a header to every request (e.g. authorization).
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.headers[key] = value
	}
}

// New creates a client for the given base URL.
func New(base string, opts ...Option) (*Client, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	c := &Client{
		base:     u,
		http:     http.DefaultClient,
		encoding: syncer.DefaultEncoding(),
		headers:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Fetch implements syncer.Remote.
func (c *Client) Fetch(ctx context.Context, q query.Query) (*resource.Document, error) {
	target := c.resourceURL(q.Type, q.ID)
	if q.ID == "" {
		target.RawQuery = c.encoding.Encode(q.Params)
	} else if q.Params != nil && len(q.Params.Include) > 0 {
		// Single-resource fetches still honor eager inclusion.
		target.RawQuery = c.encoding.Encode(&query.Params{Include: q.Params.Include})
	}

	body, err := c.do(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	doc, err := resource.ParseDocument(body)
	if err != nil {
		return nil, syncer.NewRemoteError(0, "malformed response document", err)
	}
	return doc, nil
}

// Create implements syncer.Remote.
func (c *Client) Create(ctx context.Context, res *resource.Resource) (*resource.Resource, error) {
	body, err := json.Marshal(resource.SingleDocument(res))
	if err != nil {
		return nil, fmt.Errorf("encode resource: %w", err)
	}
	respBody, err := c.do(ctx, http.MethodPost, c.resourceURL(res.Type, ""), body)
	if err != nil {
		return nil, err
	}
	return parseCanonical(respBody)
}

// Update implements syncer.Remote.
func (c *Client) Update(ctx context.Context, res *resource.Resource) (*resource.Resource, error) {
	body, err := json.Marshal(resource.SingleDocument(res))
	if err != nil {
		return nil, fmt.Errorf("encode resource: %w", err)
	}
	respBody, err := c.do(ctx, http.MethodPatch, c.resourceURL(res.Type, res.ID), body)
	if err != nil {
		return nil, err
	}
	return parseCanonical(respBody)
}

// Delete implements syncer.Remote.
func (c *Client) Delete(ctx context.Context, id resource.Identifier) error {
	_, err := c.do(ctx, http.MethodDelete, c.resourceURL(id.Type, id.ID), nil)
	return err
}

func (c *Client) resourceURL(resourceType, id string) *url.URL {
	target := *c.base
	target.Path = strings.TrimSuffix(target.Path, "/") + "/" + resourceType
	if id != "" {
		target.Path += "/" + id
	}
	return &target
}

func (c *Client) do(ctx context.Context, method string, target *url.URL, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", contentType)
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, syncer.NewRemoteError(0, "transport failure", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, syncer.NewRemoteError(resp.StatusCode, "read response", err)
	}
	if resp.StatusCode >= 400 {
		return nil, remoteErrorFrom(resp.StatusCode, respBody)
	}
	return respBody, nil
}

// parseCanonical extracts the canonical resource from a write response.
// Empty bodies (204-style responses) yield nil: the submitted body was
// stored as-is.
func parseCanonical(body []byte) (*resource.Resource, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	doc, err := resource.ParseDocument(body)
	if err != nil {
		return nil, syncer.NewRemoteError(0, "malformed response document", err)
	}
	if len(doc.Data) == 0 {
		return nil, nil
	}
	return doc.Data[0], nil
}

// remoteErrorFrom shapes an HTTP failure, pulling detail from an error
// document when the server sent one.
func remoteErrorFrom(status int, body []byte) *syncer.Error {
	message := http.StatusText(status)
	if doc, ok := resource.ParseErrorDocument(body); ok {
		parts := make([]string, 0, len(doc.Errors))
		for _, e := range doc.Errors {
			switch {
			case e.Detail != "":
				parts = append(parts, e.Detail)
			case e.Title != "":
				parts = append(parts, e.Title)
			}
		}
		if len(parts) > 0 {
			message = strings.Join(parts, "; ")
		}
	}
	return syncer.NewRemoteError(status, message, nil)
}
