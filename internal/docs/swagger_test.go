package docs

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temcen/lotus/internal/validation"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewSwaggerHandler(GetSwaggerConfig(), validation.MustNewSchemaValidator()).RegisterRoutes(router)
	return router
}

func TestOpenAPISpecJSON(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/docs/openapi.json", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var doc struct {
		OpenAPI    string                     `json:"openapi"`
		Paths      map[string]json.RawMessage `json:"paths"`
		Components struct {
			Schemas map[string]map[string]any `json:"schemas"`
		} `json:"components"`
		Servers []map[string]string `json:"servers"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))

	assert.Equal(t, "3.0.3", doc.OpenAPI)
	for _, path := range []string{"/assess", "/ingredients", "/ingredients/search", "/ingredients/{id}"} {
		assert.Contains(t, doc.Paths, path)
	}
	assert.Equal(t, "Risk assessment", doc.Components.Schemas["RiskAssessment"]["title"])
	require.Len(t, doc.Servers, 2)
	assert.Equal(t, "http://localhost:8080/api/v1", doc.Servers[0]["url"])
}

func TestSchema(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/docs/schemas/reasoning-response", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/schema+json", w.Header().Get("Content-Type"))
	assert.True(t, json.Valid(w.Body.Bytes()))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/docs/schemas/content-item", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "risk-assessment")
}

func TestErrorCodes(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/docs/errors", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Errors []ErrorCodeInfo `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	codes := make(map[string]int, len(body.Errors))
	for _, e := range body.Errors {
		codes[e.Code] = e.HTTPStatus
	}
	assert.Equal(t, http.StatusTooManyRequests, codes["RATE_LIMIT_EXCEEDED"])
	assert.Equal(t, http.StatusGatewayTimeout, codes["ASSESSMENT_TIMEOUT"])
}
