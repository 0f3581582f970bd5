package controller

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupAPI(t *testing.T) (*fiber.App, *stubRunner) {
	t.Helper()
	runner := &stubRunner{kind: "switch"}
	r := NewRegistry()
	require.NoError(t, r.Register(runner))

	app := fiber.New()
	NewAPI(r, zap.NewNop()).RegisterRoutes(app)
	return app, runner
}

func TestAPI(t *testing.T) {
	app, runner := setupAPI(t)

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
		wantBody   string
	}{
		{"ListControllers", http.MethodGet, "/controllers", fiber.StatusOK, `"kind":"switch"`},
		{"GetController", http.MethodGet, "/controllers/switch", fiber.StatusOK, `"phase":"idle"`},
		{"UnknownKind", http.MethodGet, "/controllers/rack", fiber.StatusNotFound, "unknown controller kind rack"},
		{"Trigger", http.MethodPost, "/controllers/switch/trigger", fiber.StatusAccepted, `"triggered":true`},
		{"Run", http.MethodPost, "/controllers/switch/run", fiber.StatusOK, `"kind":"switch"`},
		{"InspectKnown", http.MethodGet, "/controllers/switch/objects/known", fiber.StatusOK, `"state":"ready"`},
		{"InspectMissing", http.MethodGet, "/controllers/switch/objects/other", fiber.StatusNotFound, "object not found"},
		{"History", http.MethodGet, "/controllers/switch/history/known?limit=3", fiber.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest(tt.method, tt.path, nil))
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			body, _ := io.ReadAll(resp.Body)
			assert.Contains(t, string(body), tt.wantBody)
		})
	}

	assert.Equal(t, int32(1), runner.triggers.Load())
}

func TestAPI_HistoryLimit(t *testing.T) {
	app, _ := setupAPI(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/controllers/switch/history/known?limit=3", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var entries []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
	assert.Len(t, entries, 3)
}

func TestAPI_RunConflict(t *testing.T) {
	runner := &stubRunner{kind: "rack", err: &IterationClaimError{Kind: "rack", Err: ErrIterationInProgress}}
	r := NewRegistry()
	require.NoError(t, r.Register(runner))
	app := fiber.New()
	NewAPI(r, zap.NewNop()).RegisterRoutes(app)

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/controllers/rack/run", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
}
