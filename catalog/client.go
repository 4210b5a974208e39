// catalog/client.go

package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/norun9/rocketshoes-cart/domain"
	"github.com/pkg/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// ErrNotFound is returned when the API has no record for the requested id.
var ErrNotFound = errors.New("not found")

// ICatalogClient reads stock levels and catalog entries by product id.
type ICatalogClient interface {
	GetStock(ctx context.Context, productID int) (domain.Stock, error)
	GetProduct(ctx context.Context, productID int) (domain.Product, error)
}

// Client talks to the stock/catalog HTTP API.
type Client struct {
	baseURL *url.URL
	http    *http.Client
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithTimeout bounds every request. Zero disables the bound.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.http = hc
	}
}

// NewClient builds a client rooted at baseURL, e.g. "http://localhost:3333".
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid API url %q", baseURL)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.Errorf("invalid API url %q: scheme and host are required", baseURL)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}

	c := &Client{
		baseURL: u,
		http: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// stockRecord mirrors domain.Stock with optional fields so an empty body
// can be told apart from a zero stock level.
type stockRecord struct {
	ProductID *int `json:"productId"`
	Amount    *int `json:"amount"`
}

// GetStock issues GET stock/{productID}. A record without an amount, or one
// for another product, is a malformed response.
func (c *Client) GetStock(ctx context.Context, productID int) (domain.Stock, error) {
	var rec stockRecord
	if err := c.get(ctx, fmt.Sprintf("stock/%d", productID), &rec); err != nil {
		return domain.Stock{}, errors.Wrapf(err, "failed to fetch stock for product %d", productID)
	}
	switch {
	case rec.Amount == nil:
		return domain.Stock{}, errors.Errorf("stock for product %d: malformed response: missing amount", productID)
	case rec.ProductID != nil && *rec.ProductID != productID:
		return domain.Stock{}, errors.Errorf("stock for product %d: malformed response: got product %d", productID, *rec.ProductID)
	}
	return domain.Stock{ProductID: productID, Amount: *rec.Amount}, nil
}

// GetProduct issues GET products/{productID}.
func (c *Client) GetProduct(ctx context.Context, productID int) (domain.Product, error) {
	var product domain.Product
	if err := c.get(ctx, fmt.Sprintf("products/%d", productID), &product); err != nil {
		return domain.Product{}, errors.Wrapf(err, "failed to fetch product %d", productID)
	}
	return product, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	endpoint := c.baseURL.ResolveReference(&url.URL{Path: path})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return errors.Wrap(err, "failed to build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "GET %s", endpoint)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errors.Wrapf(ErrNotFound, "GET %s", endpoint)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return errors.Errorf("GET %s: unexpected status %d", endpoint, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrapf(err, "GET %s: failed to read body", endpoint)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrapf(err, "GET %s: malformed response", endpoint)
	}
	return nil
}
