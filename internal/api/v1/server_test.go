package apiv1

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const specPath = "../../../public/docs/v1/openapi.yml"

// recordingServer captures the parameters the wrapper extracted.
type recordingServer struct {
	id     string
	params ListSignatureEventsParams
}

func (s *recordingServer) GetPing(c *fiber.Ctx) error {
	return c.JSON(Pong{Ping: "pong"})
}

func (s *recordingServer) ListSignatureEvents(c *fiber.Ctx, params ListSignatureEventsParams) error {
	s.params = params
	return c.SendStatus(fiber.StatusOK)
}

func (s *recordingServer) PostSignatureEvent(c *fiber.Ctx) error {
	return c.SendStatus(fiber.StatusCreated)
}

func (s *recordingServer) GetSignatureEvent(c *fiber.Ctx, id string) error {
	s.id = id
	return c.SendStatus(fiber.StatusOK)
}

func newTestApp(si ServerInterface) *fiber.App {
	app := fiber.New()
	RegisterHandlers(app.Group("/api/v1"), si)
	return app
}

func TestGetPing(t *testing.T) {
	app := newTestApp(NewAPIServer(nil))

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/api/v1/ping", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var pong Pong
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pong))
	assert.Equal(t, "pong", pong.Ping)
}

func TestWrapperExtractsParameters(t *testing.T) {
	server := &recordingServer{}
	app := newTestApp(server)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/api/v1/signature-events/abc-123", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "abc-123", server.id)

	resp, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/api/v1/signature-events?status=SENT&page=2&per_page=25", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, ListSignatureEventsParams{Status: "SENT", Page: 2, PerPage: 25}, server.params)

	resp, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/api/v1/signature-events?page=two", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestOpenAPIDocumentIsValid(t *testing.T) {
	doc, err := LoadSpec(context.Background(), specPath)
	require.NoError(t, err)
	assert.Equal(t, "/api/v1", doc.Servers[0].URL)
}

func TestEveryRouteIsDocumented(t *testing.T) {
	doc, err := LoadSpec(context.Background(), specPath)
	require.NoError(t, err)

	app := newTestApp(&recordingServer{})
	checked := 0
	for _, route := range app.GetRoutes(true) {
		if route.Method == fiber.MethodHead || !strings.HasPrefix(route.Path, "/api/v1/") {
			continue
		}
		path := strings.TrimPrefix(route.Path, "/api/v1")
		path = strings.ReplaceAll(path, ":id", "{id}")
		assert.True(t, IsDocumented(doc, route.Method, path), "%s %s is not documented", route.Method, path)
		checked++
	}
	assert.Equal(t, 4, checked)
}
