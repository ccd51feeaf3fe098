// Package ipfs publishes attestation metadata to content-addressed storage.
//
// The backend is a pinning service reached over HTTP. When no backend is
// configured the publisher degrades to a deterministic placeholder URI
// derived from the document bytes, so callers keep working and audits can
// tell the two apart via IsPlaceholder.
package ipfs

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/forgemint/forgemint/pkg/logger"
	"github.com/forgemint/forgemint/pkg/metrics"
)

// URI scheme prefixes.
const (
	ipfsScheme        = "ipfs://"
	placeholderScheme = "placeholder://sha256-"
)

const defaultHTTPTimeout = 30 * time.Second

// Publisher publishes JSON documents and returns their stable URI.
type Publisher interface {
	Publish(ctx context.Context, doc any) (string, error)
}

// IsPlaceholder reports whether uri was locally derived instead of pinned.
func IsPlaceholder(uri string) bool {
	return strings.HasPrefix(uri, placeholderScheme)
}

// Option applies a configuration option to the HTTPPublisher.
type Option func(*HTTPPublisher)

// WithEndpoint sets the pinning service endpoint. Empty disables pinning.
func WithEndpoint(endpoint string) Option {
	return func(p *HTTPPublisher) {
		p.endpoint = strings.TrimRight(endpoint, "/")
	}
}

// WithToken sets the bearer token for the pinning service.
func WithToken(token string) Option {
	return func(p *HTTPPublisher) {
		p.token = token
	}
}

// WithHTTPClient overrides the HTTP client, for tests.
func WithHTTPClient(client *http.Client) Option {
	return func(p *HTTPPublisher) {
		if client != nil {
			p.client = client
		}
	}
}

// HTTPPublisher implements Publisher against a JSON pinning API.
type HTTPPublisher struct {
	endpoint string
	token    string
	client   *http.Client
	logger   logger.Logger
}

// NewHTTPPublisher creates a publisher with configuration options.
func NewHTTPPublisher(opts ...Option) *HTTPPublisher {
	p := &HTTPPublisher{
		client: &http.Client{Timeout: defaultHTTPTimeout},
		logger: logger.Get().Named("ipfs"),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// pinResponse is the subset of the pinning API response we consume.
type pinResponse struct {
	CID      string `json:"cid"`
	IpfsHash string `json:"IpfsHash"` // pinata-compatible casing
}

// Publish serializes doc and pins it, returning ipfs://<cid>. Without a
// configured endpoint it returns a placeholder URI instead of failing.
func (p *HTTPPublisher) Publish(ctx context.Context, doc any) (string, error) {
	payload, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode metadata document: %w", err)
	}

	if p.endpoint == "" {
		metrics.RecordMetadataPlaceholder()
		return placeholderURI(payload), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build pin request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("pin metadata: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read pin response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("pin metadata: status %d: %w", resp.StatusCode, ErrPinFailed)
	}

	var pin pinResponse
	if err := json.Unmarshal(body, &pin); err != nil {
		return "", fmt.Errorf("decode pin response: %w", err)
	}
	cid := pin.CID
	if cid == "" {
		cid = pin.IpfsHash
	}
	if cid == "" {
		return "", fmt.Errorf("pin response carries no cid: %w", ErrPinFailed)
	}

	metrics.RecordMetadataPublished()
	p.logger.Debug(ctx, "metadata pinned", logger.String("cid", cid))
	return ipfsScheme + cid, nil
}

func placeholderURI(payload []byte) string {
	sum := sha256.Sum256(payload)
	return placeholderScheme + hex.EncodeToString(sum[:])
}
