package handlers

import (
	"encoding/json"
	"net/http"
)

// selectionParameters are the query parameters shared by every analytics endpoint
var selectionParameters = []map[string]interface{}{
	{
		"name":        "crop",
		"in":          "query",
		"description": "Crop to analyse (default: first crop in the survey)",
		"required":    false,
		"schema":      map[string]string{"type": "string"},
	},
	{
		"name":        "year_min",
		"in":          "query",
		"description": "First harvest year, inclusive (default: earliest year)",
		"required":    false,
		"schema":      map[string]string{"type": "integer"},
	},
	{
		"name":        "year_max",
		"in":          "query",
		"description": "Last harvest year, inclusive (default: latest year)",
		"required":    false,
		"schema":      map[string]string{"type": "integer"},
	},
	{
		"name":        "metric",
		"in":          "query",
		"description": "Yield metric",
		"required":    false,
		"schema":      map[string]interface{}{"type": "string", "enum": []string{"YP", "YA", "YW"}},
	},
	{
		"name":        "delta",
		"in":          "query",
		"description": "Simulated temperature increase in degrees Celsius",
		"required":    false,
		"schema":      map[string]interface{}{"type": "number", "minimum": 0},
	},
	{
		"name":        "window",
		"in":          "query",
		"description": "Moving-average window in years",
		"required":    false,
		"schema":      map[string]interface{}{"type": "integer", "minimum": 1},
	},
	{
		"name":        "horizon",
		"in":          "query",
		"description": "Number of future years to forecast",
		"required":    false,
		"schema":      map[string]interface{}{"type": "integer", "minimum": 1},
	},
}

var (
	pointSchema = map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"year":  map[string]string{"type": "integer"},
			"value": map[string]interface{}{"type": "number", "nullable": true},
		},
	}
	seriesSchema = map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"name":   map[string]string{"type": "string"},
			"points": map[string]interface{}{"type": "array", "items": pointSchema},
		},
	}
	matrixSchema = map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"rows":    map[string]interface{}{"type": "array", "items": map[string]string{"type": "string"}},
			"columns": map[string]interface{}{"type": "array", "items": map[string]string{"type": "string"}},
			"values": map[string]interface{}{
				"type": "array",
				"items": map[string]interface{}{
					"type":  "array",
					"items": map[string]interface{}{"type": "number", "nullable": true},
				},
			},
		},
	}
	errorSchema = map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"error":   map[string]string{"type": "string"},
			"message": map[string]string{"type": "string"},
			"code":    map[string]string{"type": "integer"},
		},
	}
)

func jsonContent(schema interface{}) map[string]interface{} {
	return map[string]interface{}{
		"application/json": map[string]interface{}{"schema": schema},
	}
}

// analyticsOperation describes a GET endpoint taking the selection parameters
func analyticsOperation(summary, description string, schema interface{}) map[string]interface{} {
	return map[string]interface{}{
		"get": map[string]interface{}{
			"summary":     summary,
			"description": description,
			"parameters":  selectionParameters,
			"responses": map[string]interface{}{
				"200": map[string]interface{}{"description": "Successful response", "content": jsonContent(schema)},
				"400": map[string]interface{}{"description": "Invalid parameter", "content": jsonContent(errorSchema)},
				"422": map[string]interface{}{"description": "Not enough observations for this selection", "content": jsonContent(errorSchema)},
				"500": map[string]interface{}{"description": "Internal error", "content": jsonContent(errorSchema)},
			},
		},
	}
}

// OpenAPISpec returns the OpenAPI 3.0 specification for the CropCast API
func OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	spec := map[string]interface{}{
		"openapi": "3.0.0",
		"info": map[string]interface{}{
			"title":       "CropCast API",
			"description": "Agronomic analytics over GYGA yield-gap survey data: filtered series, correlations, climate-zone pivots, temperature impact, trend forecasts and risk advice",
			"version":     "1.0.0",
			"contact": map[string]string{
				"name": "CropCast Team",
			},
		},
		"servers": []map[string]string{
			{"url": "http://localhost:8080", "description": "Local development server"},
		},
		"paths": map[string]interface{}{
			"/api/v1/parameters": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Get parameter bounds",
					"description": "Crops, harvest-year span and metrics available in the loaded survey, with the defaults applied to unset parameters",
					"responses": map[string]interface{}{
						"200": map[string]interface{}{
							"description": "Successful response",
							"content": jsonContent(map[string]interface{}{
								"type": "object",
								"properties": map[string]interface{}{
									"crops":    map[string]interface{}{"type": "array", "items": map[string]string{"type": "string"}},
									"min_year": map[string]string{"type": "integer"},
									"max_year": map[string]string{"type": "integer"},
									"metrics":  map[string]interface{}{"type": "array", "items": map[string]string{"type": "string"}},
									"defaults": map[string]string{"type": "object"},
								},
							}),
						},
					},
				},
			},
			"/api/v1/analytics": analyticsOperation("Get full analytics report",
				"Every component for one selection. Components without enough data are listed in issues and left empty",
				map[string]string{"type": "object"}),
			"/api/v1/filtered": analyticsOperation("Get filtered rows",
				"Country-year rows of the crop within the year range",
				map[string]string{"type": "object"}),
			"/api/v1/correlation": analyticsOperation("Get correlation matrix",
				"Pairwise Pearson correlation of the numeric columns of the filtered rows",
				matrixSchema),
			"/api/v1/pivot": analyticsOperation("Get crop by climate zone pivot",
				"Mean of the selected metric per crop and climate zone",
				matrixSchema),
			"/api/v1/impact": analyticsOperation("Get temperature impact",
				"Potential yield after the simulated temperature increase, one point per filtered row",
				seriesSchema),
			"/api/v1/forecast": analyticsOperation("Get yield forecast",
				"Linear trend fitted on the yearly mean of the selected metric and projected over the horizon",
				map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"history":  seriesSchema,
						"forecast": map[string]string{"type": "object"},
					},
				}),
			"/api/v1/moving-average": analyticsOperation("Get moving average",
				"Trailing moving average of the yearly mean of the selected metric",
				seriesSchema),
			"/api/v1/recommendation": analyticsOperation("Get risk recommendation",
				"Risk level and advice for the simulated temperature increase",
				map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"level":   map[string]interface{}{"type": "string", "enum": []string{"HIGH", "MANAGEABLE"}},
						"delta":   map[string]string{"type": "number"},
						"message": map[string]string{"type": "string"},
					},
				}),
			"/api/v1/yield-trends": analyticsOperation("Get yield trends",
				"Yearly mean of YA, YW and YP over the filtered rows",
				map[string]interface{}{"type": "array", "items": seriesSchema}),
			"/api/v1/zone-trends": analyticsOperation("Get climate zone trends",
				"Yearly mean potential yield per climate zone for the crop",
				map[string]interface{}{"type": "array", "items": seriesSchema}),
			"/api/v1/water-productivity": analyticsOperation("Get water productivity",
				"Water productivity against actual yield for the filtered rows",
				map[string]interface{}{"type": "array", "items": map[string]string{"type": "object"}}),
			"/health": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Health check",
					"description": "Check API health status",
					"responses": map[string]interface{}{
						"200": map[string]interface{}{"description": "Service is healthy"},
						"503": map[string]interface{}{"description": "Survey store unreachable"},
					},
				},
			},
			"/metrics": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Prometheus metrics",
					"description": "Get Prometheus metrics for monitoring",
					"responses": map[string]interface{}{
						"200": map[string]interface{}{
							"description": "Metrics in Prometheus format",
							"content": map[string]interface{}{
								"text/plain": map[string]interface{}{
									"schema": map[string]string{"type": "string"},
								},
							},
						},
					},
				},
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(spec)
}
