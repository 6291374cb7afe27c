package downloader

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LunaInsidious/abr-geocoder/internal/observability"
)

func TestPackageShow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/3/action/package_show", r.URL.Path)
		assert.Equal(t, "ba000001", r.URL.Query().Get("id"))

		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"result": map[string]any{
				"id":   "pkg-1",
				"name": "ba000001",
				"resources": []map[string]any{
					{
						"id":            "res-1",
						"name":          "mt_town_all",
						"url":           "https://example.test/mt_town_all.csv.gz",
						"format":        "CSV",
						"last_modified": "2026-08-01T00:00:00",
					},
				},
			},
		})
	}))
	defer srv.Close()

	client := NewCatalogClient(srv.URL, 5*time.Second, observability.NewDiscardLogger())
	pkg, err := client.PackageShow(context.Background(), "ba000001")
	require.NoError(t, err)

	assert.Equal(t, "ba000001", pkg.Name)
	require.Len(t, pkg.Resources, 1)
	assert.Equal(t, "mt_town_all", pkg.Resources[0].Name)
	assert.Equal(t, "https://example.test/mt_town_all.csv.gz", pkg.Resources[0].URL)
}

func TestPackageShowReportedFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"success": false})
	}))
	defer srv.Close()

	client := NewCatalogClient(srv.URL, 5*time.Second, observability.NewDiscardLogger())
	_, err := client.PackageShow(context.Background(), "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reported failure")
}

func TestPackageShowHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewCatalogClient(srv.URL, 5*time.Second, observability.NewDiscardLogger())
	_, err := client.PackageShow(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}
