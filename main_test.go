package main

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tokoadmin/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		AppPort:        ":0",
		LogLevel:       "error",
		DatabaseDriver: "memory",
		JWTSecret:      "test_jwt_secret",
		CSRFSecret:     "test_csrf_secret",
		CSRFTTL:        time.Hour,
		ImageStorage:   "local",
		ImageRoot:      t.TempDir(),
		AdminUsername:  "root",
		AdminEmail:     "root@example.com",
		AdminPassword:  "rootpassword",
	}
}

func newTestApp(t *testing.T, cfg *config.Config) *fiber.App {
	t.Helper()
	app, cleanup, err := newApp(cfg, zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(cleanup)
	return app
}

func TestHealthCheck(t *testing.T) {
	app := newTestApp(t, testConfig(t))

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "memory", body["database"])
}

func TestAdminRoutesRequireToken(t *testing.T) {
	app := newTestApp(t, testConfig(t))

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/admin/products/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestSeededAdminCanListProducts(t *testing.T) {
	app := newTestApp(t, testConfig(t))

	req := httptest.NewRequest(fiber.MethodPost, "/auth/login", strings.NewReader(`{"username":"root","password":"rootpassword"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var login struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&login))
	require.NotEmpty(t, login.Token)

	req = httptest.NewRequest(fiber.MethodGet, "/admin/products/", nil)
	req.Header.Set("Authorization", "Bearer "+login.Token)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	app := newTestApp(t, testConfig(t))

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestSQLiteBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.DatabaseDriver = "sqlite"
	cfg.DatabaseDSN = "file:" + t.Name() + "?mode=memory&cache=shared"
	app := newTestApp(t, cfg)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
