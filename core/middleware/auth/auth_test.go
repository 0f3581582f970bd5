package auth_test

import (
	"net/http/httptest"
	"testing"

	"site-controller/core/middleware/auth"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuth(t *testing.T) {
	app := fiber.New()
	app.Use(auth.New(auth.Config{ApiKey: "secret", Skip: []string{"/metrics"}}))
	app.Get("/controllers", func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/metrics", func(c *fiber.Ctx) error { return c.SendString("ok") })

	tests := []struct {
		name   string
		path   string
		header string
		value  string
		want   int
	}{
		{"Missing Key", "/controllers", "", "", fiber.StatusUnauthorized},
		{"Wrong Key", "/controllers", auth.HeaderName, "nope", fiber.StatusUnauthorized},
		{"Valid Key", "/controllers", auth.HeaderName, "secret", fiber.StatusOK},
		{"Bearer Token", "/controllers", fiber.HeaderAuthorization, "Bearer secret", fiber.StatusOK},
		{"Skipped Path", "/metrics", "", "", fiber.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.path, nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestAuth_Disabled(t *testing.T) {
	app := fiber.New()
	app.Use(auth.New(auth.Config{}))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
