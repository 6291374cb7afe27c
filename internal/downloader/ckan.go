package downloader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// CatalogClient fetches dataset metadata from the address registry's CKAN
// catalog.
type CatalogClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewCatalogClient creates a catalog client. A single HTTP client is shared
// with the download pool; the catalog serves HTTP/2, so one connection
// multiplexes all requests.
func NewCatalogClient(baseURL string, timeout time.Duration, logger *slog.Logger) *CatalogClient {
	return &CatalogClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Resource is one downloadable file within a dataset package.
type Resource struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	URL          string `json:"url"`
	Format       string `json:"format"`
	LastModified string `json:"last_modified"`
}

// Package is a CKAN dataset: a named collection of resources.
type Package struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Resources []Resource `json:"resources"`
}

// PackageShow fetches the metadata of one dataset package by ID.
func (c *CatalogClient) PackageShow(ctx context.Context, packageID string) (Package, error) {
	u := fmt.Sprintf("%s/api/3/action/package_show?%s", c.baseURL, url.Values{"id": {packageID}}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Package{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Package{}, fmt.Errorf("package_show request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return Package{}, fmt.Errorf("catalog API error: status %d: %s", resp.StatusCode, body)
	}

	var envelope struct {
		Success bool    `json:"success"`
		Result  Package `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return Package{}, fmt.Errorf("decode response: %w", err)
	}
	if !envelope.Success {
		return Package{}, fmt.Errorf("catalog API reported failure for package %q", packageID)
	}
	return envelope.Result, nil
}
