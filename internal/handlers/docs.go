package handlers

import (
	"encoding/json"
	"net/http"
)

type object = map[string]interface{}

func ref(name string) object {
	return object{"$ref": "#/components/schemas/" + name}
}

func jsonContent(schema object) object {
	return object{"application/json": object{"schema": schema}}
}

func operation(summary, description string, params []object, body object, responses object) object {
	op := object{
		"summary":     summary,
		"description": description,
		"responses":   responses,
	}
	if len(params) > 0 {
		op["parameters"] = params
	}
	if body != nil {
		op["requestBody"] = object{"required": true, "content": jsonContent(body)}
	}
	return op
}

func pathID(description string) object {
	return object{"name": "id", "in": "path", "required": true, "description": description, "schema": object{"type": "integer"}}
}

func queryLimit(description string) object {
	return object{"name": "limit", "in": "query", "required": false, "description": description, "schema": object{"type": "integer", "minimum": 1}}
}

func okResponse(description, schema string) object {
	return object{"200": object{"description": description, "content": jsonContent(ref(schema))}}
}

func number() object {
	return object{"type": "number"}
}

func nullableString() object {
	return object{"type": "string", "nullable": true}
}

var stateResponse = okResponse("Store state after the operation; failures appear in error", "State")

// OpenAPISpec returns the OpenAPI 3.0 specification for the dashboard API
func OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	spec := object{
		"openapi": "3.0.0",
		"info": object{
			"title":       "Solar Site Analyzer API",
			"description": "Dashboard backend holding site analysis state fetched from the remote analysis service",
			"version":     "1.0.0",
		},
		"servers": []object{
			{"url": "http://localhost:8080", "description": "Local development server"},
		},
		"paths": object{
			"/api/state": object{
				"get": operation("Current state", "Copy of held results, filters, statistics, loading flag and error", nil, nil, stateResponse),
			},
			"/api/sites/fetch": object{
				"post": object{
					"summary":     "Fetch analysis results",
					"description": "Merges the optional filter body into the current filters and refetches",
					"requestBody": object{"required": false, "content": jsonContent(ref("SiteFilters"))},
					"responses":   stateResponse,
				},
			},
			"/api/sites/list": object{
				"post": operation("Fetch sites", "Replaces the held sites with those matching the current filters", nil, nil, stateResponse),
			},
			"/api/sites/{id}": object{
				"get": operation("Site details", "Fetches a site and its analysis together", []object{pathID("Site ID")}, nil,
					okResponse("Site and analysis, or error", "SiteDetails")),
			},
			"/api/filters": object{
				"patch": operation("Update filters", "Merges filters and refetches analysis results once", nil, ref("SiteFilters"), stateResponse),
			},
			"/api/statistics/fetch": object{
				"post": operation("Fetch statistics", "Last known statistics are kept on failure", nil, nil, stateResponse),
			},
			"/api/top-sites/fetch": object{
				"post": operation("Fetch top sites", "Replaces held results with the service's top N", []object{queryLimit("Number of sites, default 10")}, nil, stateResponse),
			},
			"/api/views/filtered": object{
				"get": operation("Filtered view", "Held results within the inclusive score bounds", nil, nil, okResponse("Filtered results", "ResultList")),
			},
			"/api/views/top": object{
				"get": operation("Top view", "Ten best held results, stable on ties", nil, nil, okResponse("Top results", "ResultList")),
			},
			"/api/views/distribution": object{
				"get": operation("Score distribution", "Held results counted per score bucket", nil, nil, okResponse("Bucket counts", "ScoreDistribution")),
			},
			"/api/calculate": object{
				"post": operation("Custom suitability", "Sanitizes the weights and asks the service to score the site", nil, ref("CalculateRequest"), object{
					"200": object{"description": "Service result", "content": jsonContent(ref("CalculateResponse"))},
					"400": object{"description": "Payload rejected by the service", "content": jsonContent(ref("Error"))},
					"502": object{"description": "Analysis service failure", "content": jsonContent(ref("Error"))},
				}),
			},
			"/api/calculations": object{
				"get": operation("Calculation history", "Most recent stored calculations; 404 when history is disabled", []object{queryLimit("Number of records, default 20")}, nil,
					object{"200": object{"description": "Stored calculations", "content": jsonContent(object{"type": "array", "items": ref("CalculationRecord")})}}),
			},
			"/api/calculations/{id}": object{
				"get": operation("Stored calculation", "One stored calculation", []object{pathID("Calculation ID")}, nil, okResponse("Stored calculation", "CalculationRecord")),
			},
			"/api/parameters": object{
				"get": operation("Analysis parameters", "Fetches the service's default weights", nil, nil, okResponse("Parameters", "Parameters")),
			},
			"/api/parameters/{id}": object{
				"patch": operation("Update parameter", "Partial update of one analysis parameter", []object{pathID("Parameter ID")}, ref("ParameterPatch"), okResponse("Updated parameter", "Parameter")),
			},
			"/api/export": object{
				"post": operation("Export", "Downloads solar_sites.<format> into the export directory",
					[]object{{"name": "format", "in": "query", "required": false, "schema": object{"type": "string", "enum": []string{"csv", "json"}}}},
					nil, okResponse("Saved file", "Export")),
			},
			"/api/error": object{
				"delete": operation("Clear error", "Resets the error state", nil, nil, object{"204": object{"description": "Cleared"}}),
			},
			"/health": object{
				"get": operation("Health check", "Reports history database reachability when enabled", nil, nil, object{
					"200": object{"description": "Healthy"},
					"503": object{"description": "History database unreachable"},
				}),
			},
			"/metrics": object{
				"get": object{
					"summary": "Prometheus metrics",
					"responses": object{
						"200": object{"description": "Prometheus metrics in text format", "content": object{"text/plain": object{"schema": object{"type": "string"}}}},
					},
				},
			},
		},
		"components": object{"schemas": schemas()},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(spec)
}

func schemas() object {
	weights := object{
		"solar_weight": number(),
		"area_weight":  number(),
		"grid_weight":  number(),
		"slope_weight": number(),
		"infra_weight": number(),
	}
	siteInput := object{
		"solar_irradiance_kwh": number(),
		"area_sqm":             number(),
		"grid_distance_km":     number(),
		"slope_degrees":        number(),
		"road_distance_km":     number(),
	}
	breakdown := object{"type": "object", "properties": object{
		"solar": number(), "area": number(), "grid": number(), "slope": number(), "infrastructure": number(),
	}}

	return object{
		"SiteFilters": object{"type": "object", "additionalProperties": false, "properties": object{
			"min_score": number(),
			"max_score": number(),
			"region":    object{"type": "string"},
			"land_type": object{"type": "string"},
			"limit":     object{"type": "integer"},
			"site_id":   object{"type": "integer"},
		}},
		"Site": object{"type": "object", "properties": object{
			"site_id":              object{"type": "integer"},
			"site_name":            object{"type": "string"},
			"latitude":             number(),
			"longitude":            number(),
			"area_sqm":             number(),
			"solar_irradiance_kwh": number(),
			"grid_distance_km":     number(),
			"slope_degrees":        number(),
			"road_distance_km":     number(),
			"elevation_m":          number(),
			"land_type":            object{"type": "string"},
			"region":               object{"type": "string"},
		}},
		"AnalysisResult": object{"type": "object", "properties": object{
			"result_id":               object{"type": "integer"},
			"site":                    object{"type": "integer"},
			"site_name":               object{"type": "string"},
			"region":                  object{"type": "string"},
			"solar_irradiance_score":  number(),
			"area_score":              number(),
			"grid_distance_score":     number(),
			"slope_score":             number(),
			"infrastructure_score":    number(),
			"total_suitability_score": number(),
			"analysis_timestamp":      object{"type": "string", "format": "date-time"},
		}},
		"Statistics": object{"type": "object", "properties": object{
			"total_sites": object{"type": "integer"},
			"avg_score":   number(),
			"min_score":   number(),
			"max_score":   number(),
		}},
		"State": object{"type": "object", "properties": object{
			"sites":            object{"type": "array", "items": ref("Site")},
			"analysis_results": object{"type": "array", "items": ref("AnalysisResult")},
			"current_site":     ref("Site"),
			"current_analysis": ref("AnalysisResult"),
			"statistics":       ref("Statistics"),
			"parameters":       object{"type": "array", "items": ref("Parameter")},
			"filters":          ref("SiteFilters"),
			"loading":          object{"type": "boolean"},
			"error":            nullableString(),
		}},
		"SiteDetails": object{"type": "object", "properties": object{
			"site":     ref("Site"),
			"analysis": ref("AnalysisResult"),
			"error":    nullableString(),
		}},
		"ResultList": object{"type": "object", "properties": object{
			"results": object{"type": "array", "items": ref("AnalysisResult")},
			"count":   object{"type": "integer"},
		}},
		"ScoreDistribution": object{"type": "object", "properties": object{
			"excellent": object{"type": "integer"},
			"good":      object{"type": "integer"},
			"fair":      object{"type": "integer"},
			"poor":      object{"type": "integer"},
			"veryPoor":  object{"type": "integer"},
		}},
		"CalculateRequest": object{"type": "object", "properties": object{
			"site":    object{"type": "object", "properties": siteInput},
			"weights": object{"type": "object", "description": "Numbers or numeric strings; sanitized into [0,100]", "properties": weights},
		}},
		"CalculateResponse": object{"type": "object", "properties": object{
			"result": object{"type": "object", "properties": object{
				"total_score":  number(),
				"breakdown":    breakdown,
				"weights_used": breakdown,
			}},
			"record_id": object{"type": "integer"},
		}},
		"CalculationRecord": object{"type": "object", "properties": object{
			"id":          object{"type": "integer"},
			"total_score": number(),
			"breakdown":   breakdown,
			"created_at":  object{"type": "string", "format": "date-time"},
		}},
		"Parameter": object{"type": "object", "properties": object{
			"param_id":       object{"type": "integer"},
			"parameter_name": object{"type": "string"},
			"weight_value":   number(),
			"description":    object{"type": "string"},
			"is_active":      object{"type": "boolean"},
		}},
		"ParameterPatch": object{"type": "object", "properties": object{
			"parameter_name": object{"type": "string"},
			"weight_value":   number(),
			"description":    object{"type": "string"},
			"is_active":      object{"type": "boolean"},
		}},
		"Parameters": object{"type": "object", "properties": object{
			"parameters": object{"type": "array", "items": ref("Parameter")},
			"error":      nullableString(),
		}},
		"Export": object{"type": "object", "properties": object{
			"file":     object{"type": "string"},
			"location": object{"type": "string"},
			"error":    nullableString(),
		}},
		"Error": object{"type": "object", "properties": object{
			"error":        object{"type": "string"},
			"message":      object{"type": "string"},
			"code":         object{"type": "integer"},
			"field_errors": object{"type": "object", "additionalProperties": object{"type": "array", "items": object{"type": "string"}}},
			"retryable":    object{"type": "boolean"},
		}},
	}
}

const swaggerPage = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>Solar Site Analyzer API Documentation</title>
    <link rel="stylesheet" type="text/css" href="https://unpkg.com/swagger-ui-dist@5.10.0/swagger-ui.css">
    <style>
        html { box-sizing: border-box; overflow-y: scroll; }
        *, *:before, *:after { box-sizing: inherit; }
        body { margin:0; padding:0; }
    </style>
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5.10.0/swagger-ui-bundle.js"></script>
    <script>
        window.onload = function() {
            window.ui = SwaggerUIBundle({
                url: "/api/docs/openapi.json",
                dom_id: '#swagger-ui',
                deepLinking: true,
                presets: [SwaggerUIBundle.presets.apis]
            });
        };
    </script>
</body>
</html>`

// SwaggerUI serves the Swagger UI HTML page
func SwaggerUI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(swaggerPage))
}
