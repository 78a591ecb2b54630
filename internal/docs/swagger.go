package docs

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/temcen/lotus/internal/validation"
)

// SwaggerConfig holds configuration for the published API description
type SwaggerConfig struct {
	Title       string
	Description string
	Version     string
	Host        string
	BasePath    string
	Schemes     []string
}

// SwaggerHandler serves the OpenAPI document and the JSON schemas behind it
type SwaggerHandler struct {
	config  SwaggerConfig
	schemas *validation.SchemaValidator
}

func NewSwaggerHandler(config SwaggerConfig, schemas *validation.SchemaValidator) *SwaggerHandler {
	return &SwaggerHandler{
		config:  config,
		schemas: schemas,
	}
}

// RegisterRoutes registers documentation routes
func (sh *SwaggerHandler) RegisterRoutes(router *gin.Engine) {
	docs := router.Group("/docs")
	{
		docs.GET("/openapi.json", sh.OpenAPISpecJSON)
		docs.GET("/schemas/:name", sh.Schema)
		docs.GET("/errors", sh.ErrorCodes)
	}
}

// OpenAPISpecJSON serves the OpenAPI description of the public API
func (sh *SwaggerHandler) OpenAPISpecJSON(c *gin.Context) {
	assessment, ok := sh.schemas.RawSchema(validation.SchemaRiskAssessment)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Risk assessment schema not loaded"})
		return
	}

	servers := make([]gin.H, 0, len(sh.config.Schemes))
	for _, scheme := range sh.config.Schemes {
		servers = append(servers, gin.H{"url": scheme + "://" + sh.config.Host + sh.config.BasePath})
	}

	c.JSON(http.StatusOK, gin.H{
		"openapi": "3.0.3",
		"info": gin.H{
			"title":       sh.config.Title,
			"description": sh.config.Description,
			"version":     sh.config.Version,
		},
		"servers": servers,
		"paths":   apiPaths(),
		"components": gin.H{
			"schemas": gin.H{
				"RiskAssessment": json.RawMessage(assessment),
				"ErrorResponse":  errorResponseSchema,
			},
		},
	})
}

// Schema serves a single JSON schema by name
func (sh *SwaggerHandler) Schema(c *gin.Context) {
	raw, ok := sh.schemas.RawSchema(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error":     "Schema not found",
			"available": sh.schemas.GetAvailableSchemas(),
		})
		return
	}
	c.Data(http.StatusOK, "application/schema+json", raw)
}

// ErrorCodes lists the error codes the API can return
func (sh *SwaggerHandler) ErrorCodes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"errors": errorCodes})
}

type ErrorCodeInfo struct {
	Code        string `json:"code"`
	HTTPStatus  int    `json:"http_status"`
	Description string `json:"description"`
}

var errorCodes = []ErrorCodeInfo{
	{Code: "INVALID_JSON", HTTPStatus: 400, Description: "Request body is not valid JSON"},
	{Code: "INVALID_QUERY", HTTPStatus: 400, Description: "Query parameters could not be parsed"},
	{Code: "VALIDATION_FAILED", HTTPStatus: 400, Description: "Request validation failed"},
	{Code: "INVALID_INGREDIENT_ID", HTTPStatus: 400, Description: "Ingredient ID is not a positive integer"},
	{Code: "NOT_FOUND", HTTPStatus: 404, Description: "Ingredient does not exist"},
	{Code: "RATE_LIMIT_EXCEEDED", HTTPStatus: 429, Description: "Client exceeded its request budget for the current window"},
	{Code: "INTERNAL_SERVER_ERROR", HTTPStatus: 500, Description: "Unexpected server failure"},
	{Code: "ASSESSMENT_FAILED", HTTPStatus: 502, Description: "Reasoning service did not return a usable assessment"},
	{Code: "SEARCH_UNAVAILABLE", HTTPStatus: 503, Description: "Similarity search is temporarily unavailable"},
	{Code: "REQUEST_CANCELLED", HTTPStatus: 503, Description: "Client went away before the assessment finished"},
	{Code: "ASSESSMENT_TIMEOUT", HTTPStatus: 504, Description: "Assessment did not finish within the request deadline"},
}

var errorResponseSchema = gin.H{
	"type": "object",
	"properties": gin.H{
		"error": gin.H{
			"type": "object",
			"properties": gin.H{
				"code":    gin.H{"type": "string"},
				"message": gin.H{"type": "string"},
				"details": gin.H{},
			},
			"required": []string{"code", "message"},
		},
	},
	"required": []string{"error"},
}

func ref(name string) gin.H {
	return gin.H{"$ref": "#/components/schemas/" + name}
}

func jsonContent(schema gin.H) gin.H {
	return gin.H{"application/json": gin.H{"schema": schema}}
}

func errorResponse(description string) gin.H {
	return gin.H{"description": description, "content": jsonContent(ref("ErrorResponse"))}
}

func queryParam(name, typ, description string) gin.H {
	return gin.H{"name": name, "in": "query", "schema": gin.H{"type": typ}, "description": description}
}

func apiPaths() gin.H {
	riskLevel := queryParam("risk_level", "string", "Low, Medium, High or all")

	return gin.H{
		"/assess": gin.H{
			"post": gin.H{
				"summary": "Score a scanned ingredient list for a user",
				"requestBody": gin.H{
					"required": true,
					"content": jsonContent(gin.H{
						"type": "object",
						"properties": gin.H{
							"ingredients": gin.H{"type": "array", "maxItems": 100, "items": gin.H{"type": "string", "maxLength": 200}},
							"user_id":     gin.H{"type": "string", "maxLength": 128},
						},
						"required": []string{"ingredients"},
					}),
				},
				"responses": gin.H{
					"200": gin.H{"description": "Assessment", "content": jsonContent(ref("RiskAssessment"))},
					"400": errorResponse("Invalid request"),
					"429": errorResponse("Rate limited"),
					"502": errorResponse("Reasoning service failure"),
					"504": errorResponse("Timeout"),
				},
			},
		},
		"/ingredients": gin.H{
			"get": gin.H{
				"summary": "List reference ingredients",
				"parameters": []gin.H{
					queryParam("limit", "integer", "Page size, default 20"),
					queryParam("offset", "integer", "Page offset"),
					queryParam("name", "string", "Case-insensitive name filter"),
					riskLevel,
				},
				"responses": gin.H{
					"200": gin.H{"description": "Page of ingredients"},
					"400": errorResponse("Invalid query"),
				},
			},
		},
		"/ingredients/search": gin.H{
			"get": gin.H{
				"summary": "Find reference ingredients semantically similar to a name",
				"parameters": []gin.H{
					queryParam("q", "string", "Ingredient name"),
					queryParam("limit", "integer", "Result count, clamped to the configured maximum"),
					riskLevel,
				},
				"responses": gin.H{
					"200": gin.H{"description": "Matches ordered by similarity"},
					"400": errorResponse("Invalid query"),
					"503": errorResponse("Search unavailable"),
				},
			},
		},
		"/ingredients/{id}": gin.H{
			"get": gin.H{
				"summary": "Fetch one reference ingredient",
				"parameters": []gin.H{
					{"name": "id", "in": "path", "required": true, "schema": gin.H{"type": "integer"}},
				},
				"responses": gin.H{
					"200": gin.H{"description": "Ingredient with related names"},
					"400": errorResponse("Invalid ID"),
					"404": errorResponse("Not found"),
				},
			},
		},
	}
}

// GetSwaggerConfig returns the default API description settings
func GetSwaggerConfig() SwaggerConfig {
	return SwaggerConfig{
		Title:       "Lotus Ingredient Risk API",
		Description: "Personalized ingredient risk scoring for scanned product labels",
		Version:     "1.0.0",
		Host:        "localhost:8080",
		BasePath:    "/api/v1",
		Schemes:     []string{"http", "https"},
	}
}
