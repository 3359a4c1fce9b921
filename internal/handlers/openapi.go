package handlers

import (
	"net/http"

	"site-mass-upload/internal/models"
)

// OpenAPISpec represents the OpenAPI 3.0 specification
type OpenAPISpec struct {
	OpenAPI    string                 `json:"openapi"`
	Info       OpenAPIInfo            `json:"info"`
	Servers    []OpenAPIServer        `json:"servers"`
	Paths      map[string]interface{} `json:"paths"`
	Components OpenAPIComponents      `json:"components"`
}

type OpenAPIInfo struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Version     string `json:"version"`
}

type OpenAPIServer struct {
	URL         string `json:"url"`
	Description string `json:"description"`
}

type OpenAPIComponents struct {
	Schemas         map[string]interface{} `json:"schemas"`
	SecuritySchemes map[string]interface{} `json:"securitySchemes"`
}

// OpenAPI handles GET /api/v1/mass-upload/openapi.json
func (h *MassUploadHandler) OpenAPI(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.generateOpenAPISpec())
}

// generateOpenAPISpec describes the mass-upload API. Record schemas are
// derived from the registry so the document tracks the configured entities.
func (h *MassUploadHandler) generateOpenAPISpec() OpenAPISpec {
	return OpenAPISpec{
		OpenAPI: "3.0.3",
		Info: OpenAPIInfo{
			Title:       "Site Mass Upload API",
			Description: "Bulk import of workers, attendance, expenses, payments, advances and material purchases from CSV or Excel files",
			Version:     "1.0.0",
		},
		Servers: []OpenAPIServer{
			{URL: "/api/v1/mass-upload", Description: "Version 1 API"},
		},
		Paths:      h.generatePaths(),
		Components: h.generateComponents(),
	}
}

func (h *MassUploadHandler) generatePaths() map[string]interface{} {
	entityParam := map[string]interface{}{
		"name":     "entity",
		"in":       "path",
		"required": true,
		"schema":   map[string]interface{}{"type": "string", "enum": h.entityNames()},
	}

	return map[string]interface{}{
		"/entities": map[string]interface{}{
			"get": operation("List importable entities", "Entities", nil,
				jsonResponse("Entity catalogue", map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"entities": arrayOf(ref("EntitySummary")),
					},
				})),
		},
		"/entities/{entity}": map[string]interface{}{
			"parameters": []interface{}{entityParam},
			"get":        operation("Get entity configuration", "Entities", nil, jsonResponse("Table configuration", ref("TableConfig"))),
		},
		"/entities/{entity}/template": map[string]interface{}{
			"parameters": []interface{}{entityParam},
			"get": withParams(operation("Download upload template", "Entities", nil, map[string]interface{}{
				"description": "Template file with a header row and one example row",
				"content": map[string]interface{}{
					"text/csv":      map[string]interface{}{"schema": map[string]interface{}{"type": "string"}},
					xlsxContentType: map[string]interface{}{"schema": map[string]interface{}{"type": "string", "format": "binary"}},
				},
			}), queryParam("format", "csv or xlsx", []string{"csv", "xlsx"})),
		},
		"/entities/{entity}/parse": map[string]interface{}{
			"parameters": []interface{}{entityParam},
			"post": withParams(operation("Parse and validate an upload", "Upload", map[string]interface{}{
				"required": true,
				"content": map[string]interface{}{
					"text/csv":            map[string]interface{}{"schema": map[string]interface{}{"type": "string"}},
					xlsxContentType:       map[string]interface{}{"schema": map[string]interface{}{"type": "string", "format": "binary"}},
					"multipart/form-data": map[string]interface{}{"schema": map[string]interface{}{"type": "object", "properties": map[string]interface{}{"file": map[string]interface{}{"type": "string", "format": "binary"}}}},
				},
			}, jsonResponse("Parsed rows with validation results", ref("ParseResult"))),
				queryParam("skip_samples", "Mark detected sample rows as skipped", []string{"true", "false"})),
		},
		"/revalidate": map[string]interface{}{
			"post": operation("Revalidate rows against live reference data", "Upload",
				jsonBody(ref("RevalidateRequest")),
				jsonResponse("Refreshed rows", ref("RevalidateResponse"))),
		},
		"/import": map[string]interface{}{
			"post": operation("Import one batch of rows", "Import",
				jsonBody(ref("ImportRequest")),
				jsonResponse("Per-row outcome of the batch", ref("ImportResponse"))),
		},
		"/imports": map[string]interface{}{
			"get": withParams(operation("List recent import runs", "Import", nil,
				jsonResponse("Import runs", map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"runs":  arrayOf(ref("ImportRun")),
						"count": map[string]interface{}{"type": "integer"},
					},
				})),
				queryParam("entity", "Filter by entity", nil),
				queryParam("limit", "Maximum number of runs", nil)),
		},
		"/imports/{id}": map[string]interface{}{
			"parameters": []interface{}{map[string]interface{}{
				"name": "id", "in": "path", "required": true,
				"schema": map[string]interface{}{"type": "string", "format": "uuid"},
			}},
			"get": operation("Get one import run", "Import", nil, jsonResponse("Import run", ref("ImportRun"))),
		},
		"/references/refresh": map[string]interface{}{
			"post": withParams(map[string]interface{}{
				"summary":  "Drop cached reference lookups",
				"tags":     []string{"Import"},
				"security": bearer(),
				"responses": map[string]interface{}{
					"204": map[string]interface{}{"description": "Cache cleared"},
					"401": errorResponse("Missing or invalid token"),
				},
			}, queryParam("table", "Limit the refresh to one lookup table", nil)),
		},
	}
}

func (h *MassUploadHandler) generateComponents() OpenAPIComponents {
	schemas := map[string]interface{}{
		"Error": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"error":   map[string]interface{}{"type": "string"},
				"type":    map[string]interface{}{"type": "string"},
				"details": map[string]interface{}{"type": "string"},
			},
		},
		"EntitySummary":      objectOf("name", "display_name", "description"),
		"TableConfig":        map[string]interface{}{"type": "object"},
		"ParseResult":        map[string]interface{}{"type": "object"},
		"RevalidateRequest":  objectOf("entity"),
		"RevalidateResponse": map[string]interface{}{"type": "object"},
		"ImportRequest": map[string]interface{}{
			"type":     "object",
			"required": []string{"entity", "rows"},
			"properties": map[string]interface{}{
				"entity":  map[string]interface{}{"type": "string", "enum": h.entityNames()},
				"context": objectOf("caller_id", "caller_name", "site_id"),
				"rows": arrayOf(map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"row_number": map[string]interface{}{"type": "integer", "minimum": 1},
						"record": map[string]interface{}{
							"oneOf": h.recordRefs(),
						},
					},
				}),
			},
		},
		"ImportResponse": map[string]interface{}{"type": "object"},
		"ImportRun":      map[string]interface{}{"type": "object"},
	}

	for _, cfg := range h.registry.ListImportable() {
		schemas[recordSchemaName(cfg.Name)] = recordSchema(cfg)
	}

	return OpenAPIComponents{
		Schemas: schemas,
		SecuritySchemes: map[string]interface{}{
			"bearerAuth": map[string]interface{}{
				"type":         "http",
				"scheme":       "bearer",
				"bearerFormat": "JWT",
			},
		},
	}
}

func (h *MassUploadHandler) entityNames() []string {
	var names []string
	for _, cfg := range h.registry.ListImportable() {
		names = append(names, cfg.Name)
	}
	return names
}

func (h *MassUploadHandler) recordRefs() []interface{} {
	var refs []interface{}
	for _, name := range h.entityNames() {
		refs = append(refs, ref(recordSchemaName(name)))
	}
	return refs
}

// recordSchema describes the materialized record of one entity
func recordSchema(cfg *models.TableConfig) map[string]interface{} {
	properties := map[string]interface{}{}
	var required []string
	for _, f := range cfg.Fields {
		properties[f.Name] = fieldSchema(f)
		if f.Required {
			required = append(required, f.Name)
		}
	}
	schema := map[string]interface{}{
		"type":        "object",
		"description": cfg.Description,
		"properties":  properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func fieldSchema(f models.FieldConfig) map[string]interface{} {
	s := map[string]interface{}{"description": f.Header}
	switch f.Type {
	case models.FieldTypeNumber:
		s["type"] = "number"
	case models.FieldTypeBoolean:
		s["type"] = "boolean"
	case models.FieldTypeDate:
		s["type"], s["format"] = "string", "date"
	case models.FieldTypeTime:
		s["type"], s["pattern"] = "string", "^[0-2][0-9]:[0-5][0-9]$"
	case models.FieldTypeEnum:
		s["type"], s["enum"] = "string", f.EnumValues
	case models.FieldTypeLookup:
		s["type"], s["format"] = "string", "uuid"
	default:
		s["type"] = "string"
		if f.MaxLength > 0 {
			s["maxLength"] = f.MaxLength
		}
		if f.Pattern != "" {
			s["pattern"] = f.Pattern
		}
	}
	return s
}

func recordSchemaName(entity string) string {
	return "Record_" + entity
}

func operation(summary, tag string, body, ok map[string]interface{}) map[string]interface{} {
	op := map[string]interface{}{
		"summary":  summary,
		"tags":     []string{tag},
		"security": bearer(),
		"responses": map[string]interface{}{
			"200": ok,
			"400": errorResponse("Invalid request"),
			"401": errorResponse("Missing or invalid token"),
			"404": errorResponse("Unknown entity or run"),
		},
	}
	if body != nil {
		op["requestBody"] = body
	}
	return op
}

func withParams(op map[string]interface{}, params ...map[string]interface{}) map[string]interface{} {
	list := make([]interface{}, len(params))
	for i, p := range params {
		list[i] = p
	}
	op["parameters"] = list
	return op
}

func queryParam(name, description string, enum []string) map[string]interface{} {
	schema := map[string]interface{}{"type": "string"}
	if len(enum) > 0 {
		schema["enum"] = enum
	}
	return map[string]interface{}{
		"name":        name,
		"in":          "query",
		"description": description,
		"schema":      schema,
	}
}

func jsonBody(schema map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"required": true,
		"content":  map[string]interface{}{"application/json": map[string]interface{}{"schema": schema}},
	}
}

func jsonResponse(description string, schema map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"description": description,
		"content":     map[string]interface{}{"application/json": map[string]interface{}{"schema": schema}},
	}
}

func errorResponse(description string) map[string]interface{} {
	return jsonResponse(description, ref("Error"))
}

func ref(name string) map[string]interface{} {
	return map[string]interface{}{"$ref": "#/components/schemas/" + name}
}

func arrayOf(items map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{"type": "array", "items": items}
}

func objectOf(props ...string) map[string]interface{} {
	properties := map[string]interface{}{}
	for _, p := range props {
		properties[p] = map[string]interface{}{"type": "string"}
	}
	return map[string]interface{}{"type": "object", "properties": properties}
}

func bearer() []map[string][]string {
	return []map[string][]string{{"bearerAuth": {}}}
}
