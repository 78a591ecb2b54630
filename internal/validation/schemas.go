package validation

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"sort"

	"github.com/xeipuuv/gojsonschema"
)

const (
	SchemaReasoningResponse = "reasoning-response"
	SchemaRiskAssessment    = "risk-assessment"
)

//go:embed schemas/*.json
var embeddedSchemas embed.FS

var schemaFiles = map[string]string{
	SchemaReasoningResponse: "reasoning-response.json",
	SchemaRiskAssessment:    "risk-assessment.json",
}

// SchemaValidator handles JSON schema validation for external payloads
type SchemaValidator struct {
	schemas map[string]*gojsonschema.Schema
	raw     map[string][]byte
}

// NewSchemaValidator loads the embedded schemas.
func NewSchemaValidator() (*SchemaValidator, error) {
	sv := &SchemaValidator{
		schemas: make(map[string]*gojsonschema.Schema),
		raw:     make(map[string][]byte),
	}
	if err := sv.LoadSchemaFromFS(embeddedSchemas, "schemas"); err != nil {
		return nil, err
	}
	return sv, nil
}

// MustNewSchemaValidator panics if the embedded schemas do not compile.
func MustNewSchemaValidator() *SchemaValidator {
	sv, err := NewSchemaValidator()
	if err != nil {
		panic(err)
	}
	return sv
}

// LoadSchemaFromFS loads schemas from an embedded filesystem
func (sv *SchemaValidator) LoadSchemaFromFS(fsys fs.FS, schemaDir string) error {
	for name, filename := range schemaFiles {
		schemaBytes, err := fs.ReadFile(fsys, path.Join(schemaDir, filename))
		if err != nil {
			return fmt.Errorf("failed to read schema file %s: %w", filename, err)
		}

		schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaBytes))
		if err != nil {
			return fmt.Errorf("failed to load schema %s: %w", name, err)
		}

		sv.schemas[name] = schema
		sv.raw[name] = schemaBytes
	}
	return nil
}

// ValidateReasoningResponse checks a raw reasoning-service reply.
func (sv *SchemaValidator) ValidateReasoningResponse(raw []byte) *ValidationResult {
	return sv.validate(SchemaReasoningResponse, raw)
}

// ValidateRiskAssessment checks an outgoing assessment against the API contract.
func (sv *SchemaValidator) ValidateRiskAssessment(data interface{}) *ValidationResult {
	return sv.validate(SchemaRiskAssessment, data)
}

func (sv *SchemaValidator) validate(schemaName string, data interface{}) *ValidationResult {
	schema, exists := sv.schemas[schemaName]
	if !exists {
		return &ValidationResult{
			Valid: false,
			Errors: []ValidationError{{
				Field:   "schema",
				Message: fmt.Sprintf("Schema '%s' not found", schemaName),
				Code:    "SCHEMA_NOT_FOUND",
			}},
		}
	}

	var documentLoader gojsonschema.JSONLoader
	switch v := data.(type) {
	case string:
		documentLoader = gojsonschema.NewStringLoader(v)
	case []byte:
		documentLoader = gojsonschema.NewBytesLoader(v)
	default:
		jsonBytes, err := json.Marshal(data)
		if err != nil {
			return &ValidationResult{
				Valid: false,
				Errors: []ValidationError{{
					Field:   "data",
					Message: fmt.Sprintf("Failed to marshal data to JSON: %v", err),
					Code:    "JSON_MARSHAL_ERROR",
				}},
			}
		}
		documentLoader = gojsonschema.NewBytesLoader(jsonBytes)
	}

	result, err := schema.Validate(documentLoader)
	if err != nil {
		// Not parseable as JSON at all.
		return &ValidationResult{
			Valid: false,
			Errors: []ValidationError{{
				Field:   "document",
				Message: fmt.Sprintf("Validation error: %v", err),
				Code:    "MALFORMED_JSON",
			}},
		}
	}

	validationResult := &ValidationResult{
		Valid:  result.Valid(),
		Errors: make([]ValidationError, 0),
	}

	if !result.Valid() {
		for _, err := range result.Errors() {
			validationResult.Errors = append(validationResult.Errors, ValidationError{
				Field:   err.Field(),
				Message: err.Description(),
				Code:    "VALIDATION_ERROR",
				Value:   err.Value(),
				Context: err.Context().String(),
			})
		}
	}

	return validationResult
}

// ValidationResult represents the result of a validation operation
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// ValidationError represents a single validation error
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Code    string      `json:"code"`
	Value   interface{} `json:"value,omitempty"`
	Context string      `json:"context,omitempty"`
}

func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation error in field '%s': %s", ve.Field, ve.Message)
}

// Err folds the result into a single error, or nil when valid.
func (vr *ValidationResult) Err() error {
	if vr.Valid {
		return nil
	}
	if len(vr.Errors) == 0 {
		return fmt.Errorf("document is invalid")
	}
	if len(vr.Errors) == 1 {
		return vr.Errors[0]
	}
	return fmt.Errorf("%w (and %d more)", vr.Errors[0], len(vr.Errors)-1)
}

// GetAvailableSchemas returns a list of loaded schema names
func (sv *SchemaValidator) GetAvailableSchemas() []string {
	schemas := make([]string, 0, len(sv.schemas))
	for name := range sv.schemas {
		schemas = append(schemas, name)
	}
	sort.Strings(schemas)
	return schemas
}

// RawSchema returns the JSON source of a loaded schema.
func (sv *SchemaValidator) RawSchema(name string) ([]byte, bool) {
	raw, ok := sv.raw[name]
	return raw, ok
}
