package httpapi

import (
	"net/http"

	"github.com/Guilhem-Bonnet/Rolling-Window/internal/httpjson"
)

// handleOpenAPI renvoie la description OpenAPI de l'API v1.
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	jsonOK := func(description, schemaRef string) map[string]any {
		return map[string]any{
			"description": description,
			"content": map[string]any{
				"application/json": map[string]any{
					"schema": map[string]any{"$ref": schemaRef},
				},
			},
		}
	}

	jsonErr := map[string]any{
		"description": "Error",
		"content": map[string]any{
			"application/json": map[string]any{
				"schema": map[string]any{"$ref": "#/components/schemas/Error"},
			},
		},
	}

	idList := map[string]any{
		"type":  "array",
		"items": map[string]any{"type": "integer", "format": "int64"},
	}

	spec := map[string]any{
		"openapi": "3.0.3",
		"info": map[string]any{
			"title":   "Rolling-Window API",
			"version": "v1",
		},
		"components": map[string]any{
			"schemas": map[string]any{
				"OpenAPIDocument": map[string]any{
					"type":                 "object",
					"additionalProperties": true,
				},
				"Error": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"error": map[string]any{"type": "string"},
					},
					"required": []any{"error"},
				},
				"Health": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"status": map[string]any{"type": "string", "enum": []any{"ok", "degraded"}},
						"checks": map[string]any{"type": "object", "additionalProperties": map[string]any{"type": "string"}},
					},
					"required": []any{"status"},
				},
				"Settings": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"lookahead":        map[string]any{"type": "integer", "minimum": 1, "description": "Épisodes monitored devant chaque spectateur."},
						"retentionDays":    map[string]any{"type": "integer", "minimum": 1, "description": "Jours avant qu'un épisode vu sorte du monitoring."},
						"includeIdleShows": map[string]any{"type": "boolean"},
						"dryRun":           map[string]any{"type": "boolean"},
					},
					"additionalProperties": false,
				},
				"ShowOutcome": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"title":     map[string]any{"type": "string"},
						"showId":    map[string]any{"type": "integer", "format": "int64"},
						"viewers":   map[string]any{"type": "integer"},
						"monitor":   idList,
						"unmonitor": idList,
						"skipped":   map[string]any{"type": "integer"},
						"errorCode": map[string]any{"type": "string", "enum": []any{"fetch_error", "write_error", "canceled", "internal_error"}},
						"error":     map[string]any{"type": "string"},
					},
					"required": []any{"title", "showId", "viewers"},
				},
				"Run": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"id":         map[string]any{"type": "string"},
						"state":      map[string]any{"type": "string", "enum": []any{"running", "completed", "failed"}},
						"dryRun":     map[string]any{"type": "boolean"},
						"startedAt":  map[string]any{"type": "string", "format": "date-time"},
						"finishedAt": map[string]any{"type": "string", "format": "date-time"},
						"events":     map[string]any{"type": "integer"},
						"shows": map[string]any{
							"type":  "array",
							"items": map[string]any{"$ref": "#/components/schemas/ShowOutcome"},
						},
						"errorCode": map[string]any{"type": "string"},
						"error":     map[string]any{"type": "string"},
					},
					"required": []any{"state", "dryRun", "startedAt", "events", "shows"},
				},
				"RunList": map[string]any{
					"type":  "array",
					"items": map[string]any{"$ref": "#/components/schemas/Run"},
				},
			},
		},
		"paths": map[string]any{
			"/api/v1/health": map[string]any{
				"get": map[string]any{
					"parameters": []any{
						map[string]any{"name": "deep", "in": "query", "schema": map[string]any{"type": "boolean"}},
					},
					"responses": map[string]any{
						"200": jsonOK("OK", "#/components/schemas/Health"),
						"503": jsonOK("Dependency down", "#/components/schemas/Health"),
					},
				},
			},
			"/api/v1/version": map[string]any{
				"get": map[string]any{"responses": map[string]any{"200": map[string]any{"description": "OK"}}},
			},
			"/api/v1/openapi.json": map[string]any{
				"get": map[string]any{"responses": map[string]any{"200": jsonOK("OK", "#/components/schemas/OpenAPIDocument")}},
			},
			"/api/v1/events": map[string]any{
				"get": map[string]any{"responses": map[string]any{"200": map[string]any{"description": "SSE: run.started, run.show, run.completed, run.failed, settings.updated"}}},
			},
			"/api/v1/settings": map[string]any{
				"get": map[string]any{
					"responses": map[string]any{
						"200": jsonOK("OK", "#/components/schemas/Settings"),
						"500": jsonErr,
					},
				},
				"put": map[string]any{
					"requestBody": map[string]any{
						"required": true,
						"content": map[string]any{
							"application/json": map[string]any{
								"schema": map[string]any{"$ref": "#/components/schemas/Settings"},
							},
						},
					},
					"responses": map[string]any{
						"200": jsonOK("OK", "#/components/schemas/Settings"),
						"400": jsonErr,
						"500": jsonErr,
					},
				},
			},
			"/api/v1/runs": map[string]any{
				"get": map[string]any{
					"parameters": []any{
						map[string]any{"name": "limit", "in": "query", "schema": map[string]any{"type": "integer"}},
					},
					"responses": map[string]any{
						"200": jsonOK("OK", "#/components/schemas/RunList"),
						"500": jsonErr,
					},
				},
				"post": map[string]any{
					"responses": map[string]any{
						"202": map[string]any{"description": "Cycle started"},
						"409": jsonErr,
						"503": jsonErr,
					},
				},
			},
			"/api/v1/runs/{id}": map[string]any{
				"get": map[string]any{
					"parameters": []any{
						map[string]any{"name": "id", "in": "path", "required": true, "schema": map[string]any{"type": "string"}},
					},
					"responses": map[string]any{
						"200": jsonOK("OK", "#/components/schemas/Run"),
						"404": jsonErr,
						"500": jsonErr,
					},
				},
			},
			"/api/v1/plan": map[string]any{
				"get": map[string]any{
					"responses": map[string]any{
						"200": jsonOK("Dry-run decisions", "#/components/schemas/Run"),
						"502": jsonErr,
						"500": jsonErr,
					},
				},
			},
		},
	}

	httpjson.Write(w, http.StatusOK, spec)
}
