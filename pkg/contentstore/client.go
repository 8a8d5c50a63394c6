package contentstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gowebpki/jcs"

	"github.com/Mindburn-Labs/productledger/pkg/resiliency"
)

// Fetcher performs HTTP GETs against resolved content URLs.
type Fetcher interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Download is a blob together with the URL it resolves to.
type Download struct {
	CID  CID
	URL  string
	Data []byte
}

// Client is the content store surface used by the lifecycle coordinator.
type Client struct {
	store      Store
	gatewayURL string
	fetcher    Fetcher
	logger     *slog.Logger
}

// NewClient builds a client whose resolved URLs point at gatewayURL/content/{cid}.
// A nil fetcher uses a resiliency.EnhancedClient with default options.
func NewClient(store Store, gatewayURL string, fetcher Fetcher) *Client {
	if fetcher == nil {
		fetcher = resiliency.NewEnhancedClient(resiliency.DefaultOptions())
	}
	return &Client{
		store:      store,
		gatewayURL: strings.TrimRight(gatewayURL, "/"),
		fetcher:    fetcher,
		logger:     slog.Default().With("component", "contentstore"),
	}
}

// Upload stores data and returns its CID.
func (c *Client) Upload(ctx context.Context, data []byte) (CID, error) {
	cid, err := c.store.Put(ctx, data)
	if err != nil {
		c.logger.ErrorContext(ctx, "upload failed", "bytes", len(data), "error", err)
		return "", fmt.Errorf("%w: upload: %w", ErrStoreUnavailable, err)
	}
	return cid, nil
}

// UploadJSON stores v as canonical JSON, so equal values share a CID.
func (c *Client) UploadJSON(ctx context.Context, v any) (CID, error) {
	canonical, err := Canonical(v)
	if err != nil {
		return "", err
	}
	return c.Upload(ctx, canonical)
}

// Canonical encodes v as RFC 8785 JSON.
func Canonical(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode content: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize content: %w", err)
	}
	return canonical, nil
}

// Resolve maps cid to a stable retrieval URL. It does not touch the store.
func (c *Client) Resolve(cid CID) (string, error) {
	if _, err := cid.Digest(); err != nil {
		return "", err
	}
	return c.gatewayURL + "/content/" + string(cid), nil
}

// Download reads cid from the store and reports its URL.
func (c *Client) Download(ctx context.Context, cid CID) (*Download, error) {
	url, err := c.Resolve(cid)
	if err != nil {
		return nil, err
	}
	data, err := c.store.Get(ctx, cid)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: download: %w", ErrStoreUnavailable, err)
	}
	return &Download{CID: cid, URL: url, Data: data}, nil
}

// Fetch retrieves whatever url points at. URLs registered on the ledger may be
// hosted anywhere, so this goes over HTTP rather than to the local store.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	data, err := c.fetcher.Get(ctx, url)
	if err != nil {
		var se *resiliency.StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, url)
		}
		return nil, fmt.Errorf("%w: fetch %s: %w", ErrStoreUnavailable, url, err)
	}
	return data, nil
}
